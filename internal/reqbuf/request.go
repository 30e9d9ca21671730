package reqbuf

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/abgandar/originhttpd/internal/httpx"
)

// ErrUnsupportedTransferEncoding is returned when Transfer-Encoding names
// anything other than "chunked".
var ErrUnsupportedTransferEncoding = errors.New("reqbuf: unsupported transfer-encoding")

// Request holds the fields parsed from one request's worth of the
// connection's Buffer: the request line, headers, and (once BODY/TAIL have
// run) the body and trailers. Body views are re-derived from offsets each
// time the buffer is inspected; Header, Trailer, Host and URL hold copied
// strings. Line.RawMethod and Line.RequestURI are the exception: they are
// slices aliasing the buffer as it was when the request line was parsed.
type Request struct {
	Line httpx.RequestLine

	Header   httpx.Header // headers, case-canonicalized
	Trailer  httpx.Header // trailers (distinct map; spec keeps them queryable but unspecial)
	Host     string
	URL      *httpx.URL
	LineEnd  LineEnding

	HeadersEnd int // offset just past the blank line ending headers
	BodyStart  int // offset where the body begins (== HeadersEnd)
	BodyEnd    int // offset just past the reassembled body
	ParsedLen  int // total bytes this request consumes, incl. trailers

	ContentLength   int64 // -1 until headers are parsed, and for chunked requests without one; 0 if neither header is present
	Chunked         bool
	ConnectionClose bool

	// Resumable chunked-decode cursor state (spec §4.B: chunk bytes are
	// copied back-to-back in place). Zero values are the correct initial
	// state (chunkPhaseHeader == 0).
	chunkState  chunkPhase
	chunkInit   bool
	chunkSrc    int
	chunkDst    int
	chunkRemain int64
}

// Body returns the reassembled request body as a slice of buf, valid for
// [BodyStart, BodyEnd). For a chunked request this is the concatenation of
// chunk payloads in order; for Content-Length it's the raw bytes.
func (r *Request) Body(buf *Buffer) []byte {
	return buf.Bytes()[r.BodyStart:r.BodyEnd]
}

// Reset clears r for reuse by the next pipelined request on the same
// connection.
func (r *Request) Reset() {
	*r = Request{ContentLength: -1}
}

// NewRequest returns a zeroed Request ready for ParseRequestLine.
func NewRequest() *Request {
	r := &Request{}
	r.Reset()
	return r
}

// ParseRequestLine scans buf starting at start for the request line,
// tolerating one or more leading blank lines (RFC 7230 §3.5). On success it
// fills r.Line, r.LineEnd and returns the offset just past the line's
// terminator. ErrNeedMoreData means the caller should read more bytes.
func (r *Request) ParseRequestLine(buf *Buffer, start int, lim Limits) (next int, err error) {
	pos := start
	for {
		line, n, end, serr := scanLine(buf.Bytes(), pos, lim.MaxRequestLine)
		if serr != nil {
			return 0, serr
		}
		if len(line) == 0 {
			// blank line before the request line: skip and keep scanning
			pos = n
			continue
		}
		rl, perr := httpx.ParseRequestLine(line)
		if perr != nil {
			return 0, perr
		}
		r.Line = rl
		r.LineEnd = end

		u, uerr := httpx.ParseRequestURI(splitURIPathQuery(string(rl.RequestURI)))
		if uerr != nil {
			return 0, uerr
		}
		r.URL = u
		if u.Host != "" {
			r.Host = strings.ToLower(u.Host)
		}
		return n, nil
	}
}

// splitURIPathQuery is a passthrough today (httpx.ParseRequestURI already
// splits path/query) kept as a named seam so canonicalization can be slotted
// in by the caller before re-parsing; see Request.Canonicalize.
func splitURIPathQuery(raw string) string { return raw }

// Canonicalize rewrites r.URL.Path in place via httpx.CleanPath. It takes no
// flag of its own; internal/statem calls it for every request. It is
// idempotent by construction since httpx.CleanPath is idempotent.
func (r *Request) Canonicalize() {
	if r.URL != nil {
		r.URL.Path = httpx.CleanPath(r.URL.Path)
	}
}

// ParseHeaders scans buf for headers starting at start, until the blank
// line that ends the header block, honoring the same line ending as the
// request line. It enforces Content-Length/Transfer-Encoding/Host/Connection
// semantics and returns the offset just past the blank line.
//
// lim.MaxHeaderBlock bounds the cumulative distance from start to the
// blank line, not any one line in isolation: each scanLine call is given
// only the budget remaining after bytes already consumed this header block,
// so many short header lines can't add up past the cap unnoticed (spec
// §4.B: "max_head_len for headers" bounds the whole phase).
func (r *Request) ParseHeaders(buf *Buffer, start int, lim Limits) (next int, err error) {
	r.Header = make(httpx.Header)
	pos := start
	seenHost := false
	seenCL := false

	for {
		budget := lim.MaxHeaderBlock
		if budget <= 0 {
			budget = 1 << 20
		} else {
			if pos-start >= budget {
				return 0, &ErrTooLarge{Max: lim.MaxHeaderBlock}
			}
			budget -= pos - start
		}

		line, n, end, serr := scanLine(buf.Bytes(), pos, budget)
		if serr != nil {
			if errors.Is(serr, ErrLineTooLong) {
				return 0, &ErrTooLarge{Max: lim.MaxHeaderBlock}
			}
			return 0, serr
		}
		if end != r.LineEnd {
			return 0, fmt.Errorf("reqbuf: inconsistent line ending in headers")
		}
		if len(line) == 0 {
			r.HeadersEnd = n
			r.BodyStart = n
			if err := r.finalizeFraming(seenHost, seenCL); err != nil {
				return 0, err
			}
			return n, nil
		}
		if line[0] == ' ' || line[0] == '\t' {
			return 0, fmt.Errorf("reqbuf: obsolete line folding rejected")
		}

		colon := indexByte(line, ':')
		if colon <= 0 {
			return 0, fmt.Errorf("reqbuf: malformed header line %q", line)
		}
		key := httpx.CanonicalHeaderKey(string(line[:colon]))
		val := strings.TrimSpace(string(line[colon+1:]))

		switch key {
		case "Host":
			if seenHost {
				return 0, fmt.Errorf("reqbuf: duplicate Host header")
			}
			seenHost = true
			r.Host = strings.ToLower(val)
		case "Content-Length":
			n, cerr := strconv.ParseInt(val, 10, 64)
			if cerr != nil || n < 0 {
				return 0, fmt.Errorf("reqbuf: malformed Content-Length")
			}
			if seenCL && r.ContentLength != n {
				return 0, fmt.Errorf("reqbuf: conflicting Content-Length values")
			}
			if lim.MaxRequestLine > 0 && n > int64(lim.MaxRequestLine) {
				return 0, &ErrTooLarge{Max: lim.MaxRequestLine}
			}
			seenCL = true
			r.ContentLength = n
		case "Transfer-Encoding":
			if !strings.EqualFold(val, "chunked") {
				return 0, fmt.Errorf("%w: %q", ErrUnsupportedTransferEncoding, val)
			}
			r.Chunked = true
		case "Connection":
			if strings.EqualFold(val, "close") {
				r.ConnectionClose = true
			}
		}

		r.Header.Add(key, val)
		pos = n
	}
}

// finalizeFraming applies RFC 7230 §3.3.3 rule 6: a request carrying
// neither Transfer-Encoding nor Content-Length has no body at all, not an
// unbounded one (that rule only applies to responses).
func (r *Request) finalizeFraming(seenHost, seenCL bool) error {
	if r.Line.Version == httpx.Version11 && !seenHost {
		return fmt.Errorf("reqbuf: missing mandatory Host header")
	}
	if !seenCL && !r.Chunked {
		r.ContentLength = 0
	}
	return nil
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}
