package wbuf

import (
	"errors"
	"os"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sys/unix"
)

// ErrBufferOverflow is returned by BufferedWrite when the chain's
// pointer-segment byte total would exceed 2×maxLen (file segments enqueued by
// BufferedSendfile do not count against it):
// the connection must be torn down.
var ErrBufferOverflow = errors.New("wbuf: buffer overflow")

// DrainResult is the outcome of one Drain call.
type DrainResult int

const (
	MoreToWrite DrainResult = iota
	CleanDrained
	Fatal
)

// Chain is the per-connection FIFO of pending output segments.
// It is not safe for concurrent use; a connection drains its own chain from
// its own goroutine/reactor tick.
type Chain struct {
	head, tail *segment
	// byteLen is the total remaining length of pointer (non-file) segments
	// only; file segments don't count against the cap since the kernel
	// holds those bytes.
	byteLen int64
	maxLen  int64
}

// NewChain returns an empty chain enforcing maxLen as the backpressure
// threshold (suspend-reading point); 2*maxLen is the hard overflow point.
func NewChain(maxLen int64) *Chain {
	return &Chain{maxLen: maxLen}
}

// PendingBytes returns the current pointer-segment byte total.
func (c *Chain) PendingBytes() int64 { return c.byteLen }

// Empty reports whether the chain has no pending segments.
func (c *Chain) Empty() bool { return c.head == nil }

// OverBackpressure reports whether reading should be suspended:
// pointer-segment bytes exceed maxLen.
func (c *Chain) OverBackpressure() bool { return c.byteLen > c.maxLen }

func (c *Chain) push(s *segment) {
	if c.tail == nil {
		c.head, c.tail = s, s
		return
	}
	c.tail.next = s
	c.tail = s
}

// enqueueBytes appends a byte segment per the given ownership, copying the
// payload first when own == Copy so later caller mutation is safe.
func (c *Chain) enqueueBytes(p []byte, own Ownership) error {
	if c.byteLen+int64(len(p)) > 2*c.maxLen {
		return ErrBufferOverflow
	}
	b := p
	if own == Copy {
		b = make([]byte, len(p))
		copy(b, p)
	}
	c.push(&segment{buf: b, own: own})
	c.byteLen += int64(len(b))
	return nil
}

// BufferedWrite enqueues iov for later draining. When the chain is already
// empty it first attempts a direct vectored write to fd; only the unwritten
// tail (if any) is appended as a segment
func (c *Chain) BufferedWrite(fd int, iov [][]byte, own []Ownership) error {
	if len(iov) == 0 {
		return nil
	}
	start := 0
	if c.Empty() {
		n, err := writevRetry(fd, iov)
		if err != nil && !isRetryable(err) {
			return err
		}
		start, iov = consumeIOV(iov, n)
		if len(iov) == 0 {
			return nil
		}
	}
	for i, p := range iov {
		o := Keep
		if i+start < len(own) {
			o = own[i+start]
		}
		if err := c.enqueueBytes(p, o); err != nil {
			return err
		}
	}
	return nil
}

// BufferedSendfile enqueues a file segment spanning [offset, offset+length).
// If the chain is empty it first attempts an immediate sendfile; any
// remaining bytes are appended as a file segment.
func (c *Chain) BufferedSendfile(fd int, f *os.File, offset int64, length int64, disp FileDisposition) error {
	if length <= 0 {
		if disp == CloseOnDrain {
			_ = f.Close()
		}
		return nil
	}
	if c.Empty() {
		off := offset
		n, err := sendfileRetry(fd, int(f.Fd()), &off, length)
		if err != nil && !isRetryable(err) {
			return err
		}
		offset += int64(n)
		length -= int64(n)
		if length <= 0 {
			if disp == CloseOnDrain {
				_ = f.Close()
			}
			return nil
		}
	}
	c.push(&segment{isFile: true, file: f, disp: disp, offset: offset, remain: length})
	return nil
}

// Drain sends segments in FIFO order to fd until it would block, an error
// occurs, or the chain empties. Short writes update the head segment's
// offset/length in place; fully-drained segments are released.
func (c *Chain) Drain(fd int) (DrainResult, error) {
	for c.head != nil {
		s := c.head
		var (
			n   int
			err error
		)
		if s.isFile {
			off := s.offset
			n, err = sendfileRetry(fd, int(s.file.Fd()), &off, int(s.remain))
			s.offset = off
			s.remain -= int64(n)
		} else {
			n, err = writeRetry(fd, s.buf)
			s.buf = s.buf[n:]
			c.byteLen -= int64(n)
		}

		if err != nil {
			if isRetryable(err) {
				return MoreToWrite, nil
			}
			c.releaseAll()
			return Fatal, err
		}

		if s.len() > 0 {
			// short write; more room needed on the socket
			return MoreToWrite, nil
		}
		c.pop()
	}
	return CleanDrained, nil
}

func (c *Chain) pop() {
	s := c.head
	c.head = s.next
	if c.head == nil {
		c.tail = nil
	}
	if s.isFile && s.disp == CloseOnDrain {
		_ = s.file.Close()
	}
}

// Teardown releases every remaining segment: Free/Copy buffers are simply
// dropped (GC reclaims them), CloseOnDrain file descriptors are closed.
func (c *Chain) Teardown() error {
	return c.releaseAll()
}

func (c *Chain) releaseAll() error {
	var merr *multierror.Error
	for s := c.head; s != nil; {
		next := s.next
		if s.isFile && s.disp == CloseOnDrain {
			if err := s.file.Close(); err != nil {
				merr = multierror.Append(merr, err)
			}
		}
		s = next
	}
	c.head, c.tail = nil, nil
	c.byteLen = 0
	return merr.ErrorOrNil()
}

// consumeIOV drops the first n bytes across the iov slices, returning how
// many whole/partial vectors were consumed from the front and the remainder.
func consumeIOV(iov [][]byte, n int) (int, [][]byte) {
	consumed := 0
	for len(iov) > 0 {
		if n < len(iov[0]) {
			iov[0] = iov[0][n:]
			break
		}
		n -= len(iov[0])
		iov = iov[1:]
		consumed++
	}
	return consumed, iov
}

func isRetryable(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EINTR)
}

func writeRetry(fd int, p []byte) (int, error) {
	for {
		n, err := unix.Write(fd, p)
		if err == unix.EINTR {
			continue
		}
		if n < 0 {
			// a failed call reports -1: nothing was written
			n = 0
		}
		return n, err
	}
}

func writevRetry(fd int, iov [][]byte) (int, error) {
	for {
		n, err := unix.Writev(fd, iov)
		if err == unix.EINTR {
			continue
		}
		if n < 0 {
			n = 0
		}
		return n, err
	}
}

func sendfileRetry(outfd, infd int, off *int64, count int) (int, error) {
	for {
		n, err := unix.Sendfile(outfd, infd, off, count)
		if err == unix.EINTR {
			continue
		}
		if n < 0 {
			n = 0
		}
		return n, err
	}
}
