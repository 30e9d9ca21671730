// Package server ties the epoll reactor, connection state machine, and
// content-rule dispatcher into the single-threaded event loop
// original_source/src/http-server.c runs around ppoll, built on
// golang.org/x/sys/unix the way internal/wbuf and internal/reactor are.
package server

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/abgandar/originhttpd/internal/config"
	"github.com/abgandar/originhttpd/internal/dispatch"
	"github.com/abgandar/originhttpd/internal/reactor"
	"github.com/abgandar/originhttpd/internal/statem"
	"github.com/abgandar/originhttpd/internal/wbuf"
)

var overloadResponse = []byte("HTTP/1.1 503 Service unavailable\r\nContent-Length: 37\r\n\r\n503 - Service temporarily unavailable")

// Server owns the listening sockets, the epoll poller, and the live
// connection table.
type Server struct {
	cfg   *config.Config
	table *dispatch.Table
	log   *logrus.Logger

	poller *reactor.Poller
	listen4, listen6 int

	conns map[int]*statem.Connection

	stop chan struct{}
}

// New validates cfg, opens the listening sockets, drops privileges, and
// prepares the poller; it does not start accepting until Run is called.
func New(cfg *config.Config, table *dispatch.Table, log *logrus.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	fd4, fd6, err := listenRaw(cfg.IPv4, cfg.IPv6, cfg.Port)
	if err != nil {
		return nil, err
	}

	if err := dropPrivileges(cfg.User, cfg.Chroot); err != nil {
		unix.Close(fd4)
		if fd6 >= 0 {
			unix.Close(fd6)
		}
		return nil, err
	}

	p, err := reactor.New(cfg.MaxConnGlobal + 2)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:     cfg,
		table:   table,
		log:     log,
		poller:  p,
		listen4: fd4,
		listen6: fd6,
		conns:   make(map[int]*statem.Connection),
		stop:    make(chan struct{}),
	}

	if fd4 >= 0 {
		if err := p.Add(fd4, statem.ReadData); err != nil {
			return nil, err
		}
	}
	if fd6 >= 0 {
		if err := p.Add(fd6, statem.ReadData); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Run blocks, dispatching readiness events until Shutdown is called or a
// fatal error occurs on a listening socket.
func (s *Server) Run() error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	signal.Ignore(syscall.SIGPIPE)

	go func() {
		select {
		case <-sigCh:
			close(s.stop)
		case <-s.stop:
		}
	}()

	for {
		select {
		case <-s.stop:
			return s.shutdown()
		default:
		}

		events, err := s.poller.Wait(1000)
		if err != nil {
			return fmt.Errorf("server: epoll wait: %w", err)
		}

		now := time.Now()
		for _, ev := range events {
			switch ev.Fd {
			case s.listen4, s.listen6:
				if ev.Fd >= 0 {
					s.acceptLoop(ev.Fd, now)
				}
			default:
				s.handleConn(ev, now)
			}
		}
		s.reapIdle(now)
	}
}

// Shutdown requests the run loop stop at its next iteration.
func (s *Server) Shutdown() {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
}

func (s *Server) acceptLoop(listenFd int, now time.Time) {
	for {
		fd, remote, remoteIP, err := acceptNonBlocking(listenFd)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return
			}
			s.log.WithError(err).Warn("accept failed")
			return
		}

		if len(s.conns) >= s.cfg.MaxConnGlobal || s.countFromIP(remoteIP) >= s.cfg.MaxConnPerIP {
			sendCannedAndClose(fd, overloadResponse)
			s.log.WithField("remote", remote).Info("connection refused: over capacity")
			continue
		}

		conn := statem.NewConnection(fd, remote, remoteIP, statem.Params{
			Limits:      s.cfg.Limits,
			MaxWBLen:    s.cfg.MaxWBLen,
			IdleTimeout: s.cfg.IdleTimeout,
		})
		conn.Touch(now)
		s.conns[fd] = conn
		if err := s.poller.Add(fd, statem.ReadData); err != nil {
			s.closeConn(fd)
			continue
		}
		s.log.WithField("remote", remote).Debug("accepted connection")
	}
}

func (s *Server) countFromIP(ip [16]byte) int {
	n := 0
	for _, c := range s.conns {
		if c.RemoteIP == ip {
			n++
		}
	}
	return n
}

func (s *Server) handleConn(ev reactor.Event, now time.Time) {
	conn, ok := s.conns[ev.Fd]
	if !ok {
		return
	}
	conn.Touch(now)

	if ev.Err || ev.Hup {
		// The peer is gone (or errored): no point attempting the graceful
		// half-close sequence any further, hard teardown per spec §5/§7.
		s.closeConn(ev.Fd)
		return
	}

	if conn.HalfClosing() {
		// We've already shutdown(SHUT_WR) and are only watching for the
		// peer to hang up; any data it still sends is discarded (spec
		// §4.C/§5: "any further read data is discarded").
		if ev.Readable {
			var discard [4096]byte
			n, err := unix.Read(ev.Fd, discard[:])
			if n == 0 || (err != nil && err != unix.EAGAIN && err != unix.EWOULDBLOCK) {
				s.closeConn(ev.Fd)
			}
		}
		return
	}

	if conn.PendingClose() {
		// Step already decided CloseSocket; we're only here to keep
		// draining queued output, not to resume parsing.
		s.settle(ev.Fd, conn, statem.CloseSocket)
		return
	}

	if ev.Writable {
		result, err := conn.Chain.Drain(ev.Fd)
		if err != nil || result == wbuf.Fatal {
			s.closeConn(ev.Fd)
			return
		}
	}

	if ev.Readable {
		// conn.ReadBudget reflects the current parse phase's max (request
		// line + headers while in NEW/HEAD, body+trailers in BODY/TAIL), so
		// the buffer itself refuses to grow past it rather than relying
		// solely on the parser's own per-line checks.
		if err := conn.Buf.EnsureWritable(conn.ReadBudget()); err != nil {
			readiness, _ := conn.Reject(err)
			s.settle(ev.Fd, conn, readiness)
			return
		}
		n, err := unix.Read(ev.Fd, conn.Buf.Writable())
		if n > 0 {
			conn.Buf.Produce(n)
		}
		if err != nil && err != unix.EAGAIN && err != unix.EWOULDBLOCK {
			s.closeConn(ev.Fd)
			return
		}
		if n == 0 && err == nil {
			s.closeConn(ev.Fd)
			return
		}
	}

	readiness, err := conn.Step(s.table)
	if err != nil {
		s.log.WithError(err).WithField("remote", conn.RemoteAddr).Debug("request failed")
	}
	s.settle(ev.Fd, conn, readiness)
}

// settle acts on the readiness a Step/Reject call returned: CloseSocket
// drains any queued error response, then begins the graceful half-close
// (shutdown(SHUT_WR), keep polling for the peer's hangup) rather than
// tearing the connection down immediately, per spec §4.C/§5's distinction
// between graceful half-close and hard teardown.
func (s *Server) settle(fd int, conn *statem.Connection, readiness statem.Readiness) {
	if readiness != statem.CloseSocket {
		_ = s.poller.Modify(fd, readiness)
		return
	}
	result, derr := conn.Chain.Drain(fd)
	if derr != nil || result == wbuf.Fatal {
		s.closeConn(fd)
		return
	}
	if result == wbuf.MoreToWrite {
		conn.MarkPendingClose()
		_ = s.poller.Modify(fd, statem.WriteData)
		return
	}
	s.beginHalfClose(fd, conn)
}

// beginHalfClose shuts down the write side of fd and keeps it registered
// for read interest so the run loop can detect the peer's hangup (HUP/EOF)
// and hard-close then, instead of racing an RST against data the peer
// already sent.
func (s *Server) beginHalfClose(fd int, conn *statem.Connection) {
	if err := unix.Shutdown(fd, unix.SHUT_WR); err != nil {
		s.closeConn(fd)
		return
	}
	conn.MarkHalfClosed()
	_ = s.poller.Modify(fd, statem.ReadData)
}

func (s *Server) reapIdle(now time.Time) {
	for fd, c := range s.conns {
		if c.IdleExpired(now) {
			s.closeConn(fd)
		}
	}
}

func (s *Server) closeConn(fd int) {
	c, ok := s.conns[fd]
	if !ok {
		return
	}
	_ = s.poller.Remove(fd)
	if err := c.Chain.Teardown(); err != nil {
		s.log.WithError(err).Debug("error tearing down write chain")
	}
	_ = unix.Close(fd)
	delete(s.conns, fd)
}

func (s *Server) shutdown() error {
	var merr *multierror.Error
	for fd := range s.conns {
		s.closeConn(fd)
	}
	if s.listen4 >= 0 {
		if err := unix.Close(s.listen4); err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	if s.listen6 >= 0 {
		if err := unix.Close(s.listen6); err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	if err := s.poller.Close(); err != nil {
		merr = multierror.Append(merr, err)
	}
	return merr.ErrorOrNil()
}
