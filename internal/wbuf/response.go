package wbuf

import (
	"bytes"
	"strconv"
	"time"

	"github.com/abgandar/originhttpd/internal/httpx"
)

// dateFormat matches the server-forced TZ=GMT environment: the
// C original's strftime("%a, %d %b %Y %T %z") with a forced GMT zone is
// exactly RFC 7231's IMF-fixdate when %z prints "GMT".
const dateFormat = "Mon, 02 Jan 2006 15:04:05 GMT"

// buildHead synthesizes the status line plus the mandatory Date and
// Content-Length headers, the server-global extraHeaders string (already
// "Key: Value\r\n"-formatted, verbatim), and a Connection header reflecting
// keepAlive.
func buildHead(v httpx.Version, status int, keepAlive bool, extraHeaders string, contentLength int) []byte {
	var head bytes.Buffer
	head.Write(httpx.StatusLine(v, status))
	head.Write(httpx.WriteHeaderLine("Date", time.Now().UTC().Format(dateFormat)))
	head.Write(httpx.WriteHeaderLine("Content-Length", strconv.Itoa(contentLength)))
	if keepAlive {
		head.Write(httpx.WriteHeaderLine("Connection", "keep-alive"))
	} else {
		head.Write(httpx.WriteHeaderLine("Connection", "close"))
	}
	if extraHeaders != "" {
		head.WriteString(extraHeaders)
	}
	head.WriteString("\r\n")
	return head.Bytes()
}

// WriteResponse builds a response head via buildHead and enqueues it plus an
// in-memory body. On a HEAD request (omitBody)
// the body bytes are withheld but Content-Length still reports len(body).
func WriteResponse(c *Chain, fd int, v httpx.Version, status int, keepAlive bool, extraHeaders string, body []byte, omitBody bool) error {
	head := buildHead(v, status, keepAlive, extraHeaders, len(body))
	iov := [][]byte{head}
	own := []Ownership{Keep}
	if !omitBody && len(body) > 0 {
		iov = append(iov, body)
		own = append(own, Keep)
	}
	return c.BufferedWrite(fd, iov, own)
}

// WriteHeaderOnly enqueues just a response head declaring contentLength,
// for callers that will follow up with BufferedSendfile for the body (the
// disk-file handler's zero-copy path, spec §4.E).
func WriteHeaderOnly(c *Chain, fd int, v httpx.Version, status int, keepAlive bool, extraHeaders string, contentLength int) error {
	head := buildHead(v, status, keepAlive, extraHeaders, contentLength)
	return c.BufferedWrite(fd, [][]byte{head}, []Ownership{Keep})
}
