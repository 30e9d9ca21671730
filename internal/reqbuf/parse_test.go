package reqbuf

import (
	"testing"

	"github.com/abgandar/originhttpd/internal/httpx"
)

func feed(buf *Buffer, data string) {
	n := copy(buf.Writable(), data)
	buf.Produce(n)
}

func defaultLimits() Limits {
	return Limits{MaxRequestLine: 8192, MaxHeaderBlock: 8192, MaxBody: 1 << 20}
}

func TestParseRequestLineAndHeaders(t *testing.T) {
	buf := New()
	feed(buf, "GET /a/b?x=1 HTTP/1.1\r\nHost: h\r\nX-Foo: bar\r\n\r\n")

	req := NewRequest()
	lim := defaultLimits()

	next, err := req.ParseRequestLine(buf, 0, lim)
	if err != nil {
		t.Fatal(err)
	}
	if req.Line.Method != httpx.MethodGet {
		t.Fatalf("wrong method: %v", req.Line.Method)
	}
	if req.URL.Path != "/a/b" || req.URL.RawQuery != "x=1" {
		t.Fatalf("wrong url: %+v", req.URL)
	}

	next, err = req.ParseHeaders(buf, next, lim)
	if err != nil {
		t.Fatal(err)
	}
	if req.Host != "h" {
		t.Fatalf("wrong host: %q", req.Host)
	}
	if req.Header.Get("X-Foo") != "bar" {
		t.Fatalf("wrong header: %q", req.Header.Get("X-Foo"))
	}
	if next != buf.Len() {
		t.Fatalf("expected headers to consume whole buffer, next=%d len=%d", next, buf.Len())
	}
}

func TestParseRequestLineLeadingBlankLines(t *testing.T) {
	buf := New()
	feed(buf, "\r\n\r\nGET / HTTP/1.1\r\n")
	req := NewRequest()
	_, err := req.ParseRequestLine(buf, 0, defaultLimits())
	if err != nil {
		t.Fatal(err)
	}
	if req.Line.Method != httpx.MethodGet {
		t.Fatalf("expected GET, got %v", req.Line.Method)
	}
}

func TestDuplicateContentLengthMismatch(t *testing.T) {
	// spec §8 scenario 5
	buf := New()
	feed(buf, "GET /foo HTTP/1.1\r\nContent-Length: 10\r\nContent-Length: 11\r\nHost: h\r\n\r\n")
	req := NewRequest()
	lim := defaultLimits()
	next, err := req.ParseRequestLine(buf, 0, lim)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := req.ParseHeaders(buf, next, lim); err == nil {
		t.Fatal("expected error for conflicting Content-Length")
	}
}

func TestMissingHostOnHTTP11(t *testing.T) {
	buf := New()
	feed(buf, "GET / HTTP/1.1\r\n\r\n")
	req := NewRequest()
	lim := defaultLimits()
	next, err := req.ParseRequestLine(buf, 0, lim)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := req.ParseHeaders(buf, next, lim); err == nil {
		t.Fatal("expected error for missing Host on HTTP/1.1")
	}
}

func TestChunkedBodyReassembly(t *testing.T) {
	// spec §8 scenario 3
	buf := New()
	raw := "POST /p HTTP/1.1\r\nHost: h\r\nTransfer-Encoding: chunked\r\n\r\n" +
		"5\r\nhello\r\n6\r\n world\r\n0\r\n\r\n"
	feed(buf, raw)

	req := NewRequest()
	lim := defaultLimits()
	next, err := req.ParseRequestLine(buf, 0, lim)
	if err != nil {
		t.Fatal(err)
	}
	next, err = req.ParseHeaders(buf, next, lim)
	if err != nil {
		t.Fatal(err)
	}
	if !req.Chunked {
		t.Fatal("expected Chunked=true")
	}

	_, err = req.ParseChunkedBody(buf, lim)
	if err != nil {
		t.Fatal(err)
	}
	body := req.Body(buf)
	if string(body) != "hello world" {
		t.Fatalf("got body %q, want %q", body, "hello world")
	}
	_ = next
}

func TestChunkedBodyNeedsMoreData(t *testing.T) {
	buf := New()
	feed(buf, "POST /p HTTP/1.1\r\nHost: h\r\nTransfer-Encoding: chunked\r\n\r\n5\r\nhel")

	req := NewRequest()
	lim := defaultLimits()
	next, err := req.ParseRequestLine(buf, 0, lim)
	if err != nil {
		t.Fatal(err)
	}
	next, err = req.ParseHeaders(buf, next, lim)
	if err != nil {
		t.Fatal(err)
	}

	_, err = req.ParseChunkedBody(buf, lim)
	if err != ErrNeedMoreData {
		t.Fatalf("expected ErrNeedMoreData, got %v", err)
	}

	feed(buf, "lo\r\n0\r\n\r\n")
	_, err = req.ParseChunkedBody(buf, lim)
	if err != nil {
		t.Fatal(err)
	}
	if string(req.Body(buf)) != "hello" {
		t.Fatalf("got %q", req.Body(buf))
	}
}

func TestFixedBody(t *testing.T) {
	buf := New()
	feed(buf, "POST /p HTTP/1.1\r\nHost: h\r\nContent-Length: 5\r\n\r\nhello")

	req := NewRequest()
	lim := defaultLimits()
	next, err := req.ParseRequestLine(buf, 0, lim)
	if err != nil {
		t.Fatal(err)
	}
	next, err = req.ParseHeaders(buf, next, lim)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := req.ParseFixedBody(buf); err != nil {
		t.Fatal(err)
	}
	if string(req.Body(buf)) != "hello" {
		t.Fatalf("got %q", req.Body(buf))
	}
	_ = next
}

func TestBufferGrowAndCompact(t *testing.T) {
	buf := New()
	if buf.Cap() != InitialCap {
		t.Fatalf("unexpected initial cap %d", buf.Cap())
	}
	big := make([]byte, InitialCap-50)
	for i := range big {
		big[i] = 'x'
	}
	feed(buf, string(big))
	if err := buf.EnsureWritable(0); err != nil {
		t.Fatal(err)
	}
	if buf.Cap() <= InitialCap {
		t.Fatalf("expected growth, cap=%d", buf.Cap())
	}

	buf.Compact(len(big) - 4)
	if buf.Len() != 4 {
		t.Fatalf("expected 4 bytes to remain after compact, got %d", buf.Len())
	}
}

func TestBufferEnsureWritableRefusesPastMax(t *testing.T) {
	buf := New()
	feed(buf, string(make([]byte, InitialCap)))
	err := buf.EnsureWritable(InitialCap)
	if err == nil {
		t.Fatal("expected ErrTooLarge")
	}
	if _, ok := err.(*ErrTooLarge); !ok {
		t.Fatalf("wrong error type: %T", err)
	}
}
