// Package wbuf implements the per-connection write-buffer chain:
// an ordered FIFO of pending output segments, each either an owned/borrowed
// byte region or an open file descriptor, drained via writev/sendfile.
package wbuf

import "os"

// Ownership describes what Drain must do with a byte segment once it has
// been fully written.
type Ownership int

const (
	// Keep means the caller guarantees the backing array outlives the
	// segment; Drain does nothing to it on completion.
	Keep Ownership = iota
	// Copy means the segment allocation included its own copy of the
	// payload at enqueue time, so the caller may mutate its buffer
	// immediately after the BufferedWrite call returns.
	Copy
	// Free means the segment owned the slice for the caller's convenience;
	// Go's GC reclaims it once the segment is dropped, but Free documents
	// the intent at the call site the way the original's free()-on-drain did.
	Free
)

// FileDisposition describes what Drain does with a file segment's
// descriptor once it has been fully sent.
type FileDisposition int

const (
	// CloseOnDrain closes the file once fully sent or on teardown.
	CloseOnDrain FileDisposition = iota
	// KeepOpen leaves the file open; the caller retains ownership.
	KeepOpen
)

// segment is the tagged union of spec §3's "Write-buffer segment": either a
// byte span or an open file descriptor, each with a current offset and
// remaining length.
type segment struct {
	isFile bool

	// byte-span fields
	buf []byte
	own Ownership

	// file fields
	file   *os.File
	disp   FileDisposition
	offset int64
	remain int64

	next *segment
}

func (s *segment) len() int64 {
	if s.isFile {
		return s.remain
	}
	return int64(len(s.buf))
}
