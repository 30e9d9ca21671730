package statem

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/abgandar/originhttpd/internal/reqbuf"
	"github.com/abgandar/originhttpd/internal/wbuf"
)

func feed(c *Connection, data string) {
	n := copy(c.Buf.Writable(), data)
	c.Buf.Produce(n)
}

// devNullFd gives BufferedWrite's optimistic direct-write attempt a real,
// always-writable descriptor instead of fd 0, which would otherwise be
// stdin and typically not writable.
func devNullFd(t *testing.T) int {
	t.Helper()
	f, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = f.Close() })
	return int(f.Fd())
}

func testParams() Params {
	return Params{
		Limits:      reqbuf.Limits{MaxRequestLine: 8192, MaxHeaderBlock: 8192, MaxBody: 1 << 20},
		MaxWBLen:    1 << 16,
		IdleTimeout: time.Minute,
	}
}

// echoDispatcher writes a fixed 200 response for every request, recording
// how many times it was invoked (spec §8 scenario 2: pipelined requests get
// two in-order responses without the connection closing).
type echoDispatcher struct{ calls int }

func (d *echoDispatcher) Dispatch(c *Connection) error {
	d.calls++
	return wbuf.WriteResponse(c.Chain, c.Fd, c.Req.Line.Version, 200, c.KeepAlive(), "", []byte("ok"), c.Req.Line.Method.String() == "HEAD")
}

func TestPipelinedRequestsBothDispatch(t *testing.T) {
	c := NewConnection(devNullFd(t), "127.0.0.1:1234", [16]byte{}, testParams())
	feed(c, "GET /x HTTP/1.1\r\nHost: h\r\n\r\nGET /y HTTP/1.1\r\nHost: h\r\n\r\n")

	d := &echoDispatcher{}
	readiness, err := c.Step(d)
	if err != nil {
		t.Fatal(err)
	}
	if d.calls != 2 {
		t.Fatalf("expected 2 dispatches, got %d", d.calls)
	}
	if readiness == CloseSocket {
		t.Fatal("expected connection to remain open for keep-alive pipelining")
	}
}

func TestDuplicateContentLengthClosesWithBadRequest(t *testing.T) {
	// BufferedWrite sends the reply straight to an empty chain's fd, so read
	// it back from a pipe rather than inspecting the chain.
	pr, pw, perr := os.Pipe()
	if perr != nil {
		t.Fatal(perr)
	}
	t.Cleanup(func() { _ = pr.Close(); _ = pw.Close() })
	c := NewConnection(int(pw.Fd()), "127.0.0.1:1234", [16]byte{}, testParams())
	feed(c, "GET /foo HTTP/1.1\r\nContent-Length: 10\r\nContent-Length: 11\r\nHost: h\r\n\r\n")

	d := &echoDispatcher{}
	readiness, err := c.Step(d)
	if err == nil {
		t.Fatal("expected parse error")
	}
	if readiness != CloseSocket {
		t.Fatalf("expected CloseSocket, got %v", readiness)
	}
	_ = pr.SetReadDeadline(time.Now().Add(time.Second))
	out := make([]byte, 4096)
	n, rerr := pr.Read(out)
	if rerr != nil {
		t.Fatal(rerr)
	}
	if got := string(out[:n]); !strings.HasPrefix(got, "HTTP/1.1 400 ") {
		t.Fatalf("expected a 400 error response to have been written, got %q", got)
	}
}

func TestChunkedBodyVisibleToDispatcher(t *testing.T) {
	raw := "POST /p HTTP/1.1\r\nHost: h\r\nTransfer-Encoding: chunked\r\n\r\n" +
		"5\r\nhello\r\n6\r\n world\r\n0\r\n\r\n"
	c := NewConnection(devNullFd(t), "127.0.0.1:1234", [16]byte{}, testParams())
	feed(c, raw)

	var seenBody string
	d := dispatchFunc(func(c *Connection) error {
		seenBody = string(c.Req.Body(c.Buf))
		return wbuf.WriteResponse(c.Chain, c.Fd, c.Req.Line.Version, 200, true, "", nil, false)
	})

	if _, err := c.Step(d); err != nil {
		t.Fatal(err)
	}
	if seenBody != "hello world" {
		t.Fatalf("got body %q", seenBody)
	}
}

func TestHTTP10ClosesAfterResponse(t *testing.T) {
	c := NewConnection(devNullFd(t), "127.0.0.1:1234", [16]byte{}, testParams())
	feed(c, "GET / HTTP/1.0\r\n\r\n")

	d := &echoDispatcher{}
	readiness, err := c.Step(d)
	if err != nil {
		t.Fatal(err)
	}
	if readiness != CloseSocket {
		t.Fatalf("expected CloseSocket for HTTP/1.0, got %v", readiness)
	}
}

func TestIdleExpired(t *testing.T) {
	c := NewConnection(0, "127.0.0.1:1234", [16]byte{}, Params{IdleTimeout: time.Second})
	c.Touch(time.Now().Add(-2 * time.Second))
	if !c.IdleExpired(time.Now()) {
		t.Fatal("expected idle timeout to have elapsed")
	}
}

type dispatchFunc func(c *Connection) error

func (f dispatchFunc) Dispatch(c *Connection) error { return f(c) }
