//go:build linux

// Package reactor wraps the Linux epoll readiness API behind the thin
// create/ctl/wait shape docker-compose/archutils/epoll.go uses over
// syscall.Epoll*, but built on golang.org/x/sys/unix so the server package
// shares one syscall surface with internal/wbuf and internal/server.
package reactor

import (
	"golang.org/x/sys/unix"

	"github.com/abgandar/originhttpd/internal/statem"
)

// Event reports one fd's readiness after a Wait call.
type Event struct {
	Fd       int
	Readable bool
	Writable bool
	Err      bool
	Hup      bool
}

// Poller is a single-threaded epoll instance. It is not safe for concurrent
// use; the event loop in internal/server drives it from one goroutine.
type Poller struct {
	epfd   int
	events []unix.EpollEvent
}

// New creates an epoll instance sized to report up to maxEvents per Wait.
func New(maxEvents int) (*Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	if maxEvents < 1 {
		maxEvents = 1
	}
	return &Poller{epfd: epfd, events: make([]unix.EpollEvent, maxEvents)}, nil
}

// Close releases the underlying epoll descriptor.
func (p *Poller) Close() error {
	return unix.Close(p.epfd)
}

// Add registers fd with the given readiness interest.
func (p *Poller) Add(fd int, r statem.Readiness) error {
	ev := unix.EpollEvent{Events: interestFlags(r), Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

// Modify updates fd's readiness interest.
func (p *Poller) Modify(fd int, r statem.Readiness) error {
	ev := unix.EpollEvent{Events: interestFlags(r), Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
}

// Remove drops fd from the interest set. Callers must still close fd
// themselves; epoll removes a descriptor's registration automatically on
// close, but an explicit Remove lets a socket be reused across Add calls
// before it is closed.
func (p *Poller) Remove(fd int) error {
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// Wait blocks up to timeoutMS (or indefinitely if negative) and returns the
// fds that became ready.
func (p *Poller) Wait(timeoutMS int) ([]Event, error) {
	n, err := unix.EpollWait(p.epfd, p.events, timeoutMS)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	out := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		e := p.events[i]
		out = append(out, Event{
			Fd:       int(e.Fd),
			Readable: e.Events&unix.EPOLLIN != 0,
			Writable: e.Events&unix.EPOLLOUT != 0,
			Err:      e.Events&unix.EPOLLERR != 0,
			Hup:      e.Events&(unix.EPOLLHUP|unix.EPOLLRDHUP) != 0,
		})
	}
	return out, nil
}

// interestFlags translates a connection's readiness need into the epoll
// event mask to watch for. EPOLLRDHUP is always ORed into read interest:
// unlike EPOLLHUP/EPOLLERR (which the kernel reports regardless of the
// registered mask), EPOLLRDHUP must be requested explicitly, and the
// graceful half-close sequence (spec §4.C/§5) depends on it to notice the
// peer's shutdown while this side is only polling for a hangup.
func interestFlags(r statem.Readiness) uint32 {
	switch r {
	case statem.ReadData:
		return unix.EPOLLIN | unix.EPOLLRDHUP
	case statem.WriteData:
		return unix.EPOLLOUT
	case statem.ReadWriteData:
		return unix.EPOLLIN | unix.EPOLLOUT | unix.EPOLLRDHUP
	default:
		return 0
	}
}
