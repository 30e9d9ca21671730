package httpx

import (
	"fmt"
)

// StatusLine formats "HTTP/x.y NNN Reason\r\n" for the given version/status.
// The core always knows its body length up front (embedded blob length,
// stat()'d file size, or a dynamic handler's fully-buffered reply) so,
// unlike the teacher's WriteResponse, there is no chunked-encoding writer
// here: every response the core emits carries Content-Length (see
// internal/wbuf.WriteResponse).
func StatusLine(v Version, status int) []byte {
	return []byte(fmt.Sprintf("%s %d %s\r\n", v, status, StatusText(status)))
}

// WriteHeaderLine formats one "Key: Value\r\n" header line with the key
// canonicalized, mirroring the teacher's Header.Write loop body.
func WriteHeaderLine(key, value string) []byte {
	return []byte(CanonicalHeaderKey(key) + ": " + value + "\r\n")
}
