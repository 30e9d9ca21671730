// Package statem drives one connection through its request lifecycle:
// NEW → HEAD → BODY → TAIL → READY → FINISH, deciding readiness interest
// after each step and handling idle timeout, half-close, and
// keep-alive/pipelining.
package statem

import (
	"fmt"
	"time"

	"github.com/abgandar/originhttpd/internal/httpx"
	"github.com/abgandar/originhttpd/internal/reqbuf"
	"github.com/abgandar/originhttpd/internal/wbuf"
)

// State is the connection's position in the request lifecycle.
type State int

const (
	StateNew State = iota
	StateHead
	StateBody
	StateTail
	StateReady
	StateFinish
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateHead:
		return "HEAD"
	case StateBody:
		return "BODY"
	case StateTail:
		return "TAIL"
	case StateReady:
		return "READY"
	case StateFinish:
		return "FINISH"
	default:
		return "UNKNOWN"
	}
}

// Readiness is the interest bit set returned after each step.
type Readiness int

const (
	ReadData Readiness = iota
	WriteData
	ReadWriteData
	CloseSocket
)

// Dispatcher invokes the content-rule chain against the connection's current
// request once it reaches READY. Implemented by internal/dispatch; statem
// only depends on this interface to avoid an import cycle.
type Dispatcher interface {
	Dispatch(c *Connection) error
}

// Params are the server-configuration fields the state machine needs per
// connection.
type Params struct {
	Limits      reqbuf.Limits
	MaxWBLen    int64
	IdleTimeout time.Duration
}

// Connection is one accepted socket's worth of state: request buffer, write
// chain, current parse position, and lifecycle bookkeeping.
type Connection struct {
	Fd         int
	RemoteAddr string
	RemoteIP   [16]byte // IPv6 address, or IPv4 in the first 4 bytes (rest zero), for the per-client-IP cap

	State State
	Buf   *reqbuf.Buffer
	Req   *reqbuf.Request
	Chain *wbuf.Chain

	LastActivity time.Time
	Params       Params

	keepAlive    bool // decided once the current request's framing is known
	halfClosing  bool // shutdown(SHUT_WR) issued; awaiting peer hangup
	pendingClose bool // CloseSocket decided, still draining queued output
	parsePos     int  // offset in Buf consumed so far by the current request
	forceClose   bool // set by the dispatcher/handler layer
}

// RequestClose lets the dispatcher/handler layer signal the CLOSE_SOCKET
// outcome without writing a protocol-error body of its own: the
// reply, if any, has already been enqueued onto Chain by the handler.
func (c *Connection) RequestClose() { c.forceClose = true }

// KeepAlive reports the keep-alive decision for the request currently being
// dispatched, for handlers that echo it into a Connection response header.
func (c *Connection) KeepAlive() bool { return c.keepAlive }

// NewConnection returns a connection in state NEW, ready for its first
// request.
func NewConnection(fd int, remoteAddr string, remoteIP [16]byte, p Params) *Connection {
	return &Connection{
		Fd:           fd,
		RemoteAddr:   remoteAddr,
		RemoteIP:     remoteIP,
		State:        StateNew,
		Buf:          reqbuf.New(),
		Req:          reqbuf.NewRequest(),
		Chain:        wbuf.NewChain(p.MaxWBLen),
		LastActivity: time.Now(),
		Params:       p,
		keepAlive:    true,
	}
}

// Touch records readiness-driven activity for the idle timer.
func (c *Connection) Touch(now time.Time) { c.LastActivity = now }

// IdleExpired reports whether the connection has been idle (no readiness
// event) longer than its configured timeout.
func (c *Connection) IdleExpired(now time.Time) bool {
	if c.Params.IdleTimeout <= 0 {
		return false
	}
	return now.Sub(c.LastActivity) > c.Params.IdleTimeout
}

// ReadBudget returns the total buffer capacity the caller's read path may
// grow Buf to before the next Step call, per spec §4.B's per-phase maxima
// (max_req_len/max_head_len for the request line and header block taken
// together while still in NEW/HEAD, max_body_len for BODY/TAIL). parsePos
// is where the current phase starts (the request's first byte in NEW/HEAD,
// the body's first byte in BODY/TAIL), so the budget is relative to that
// rather than absolute: a pipelined request reuses the same buffer from a
// fresh parsePos of 0 after FINISH compacts it. Returns 0 (unbounded) for
// states that don't read, as a defensive default, and for BODY/TAIL when
// MaxBody is 0 (no explicit body cap).
func (c *Connection) ReadBudget() int {
	switch c.State {
	case StateNew, StateHead:
		return c.parsePos + c.Params.Limits.MaxRequestLine + c.Params.Limits.MaxHeaderBlock
	case StateBody, StateTail:
		if c.Params.Limits.MaxBody <= 0 {
			return 0
		}
		return c.parsePos + c.Params.Limits.MaxBody
	default:
		return 0
	}
}

// Step advances the state machine as far as the currently-buffered bytes
// allow, invoking d.Dispatch once a request reaches READY, and returns the
// readiness interest the caller (the reactor) should register next.
//
// The caller is responsible for having already appended freshly-read bytes
// to c.Buf (via Buf.Produce) before calling Step for a readable event, and
// for calling Step again after Chain.Drain makes room for a writable event.
func (c *Connection) Step(d Dispatcher) (Readiness, error) {
	if c.Chain.OverBackpressure() {
		return WriteData, nil
	}

	for {
		switch c.State {
		case StateNew, StateHead:
			next, err := c.stepHead()
			if err == reqbuf.ErrNeedMoreData {
				return ReadData, nil
			}
			if err != nil {
				return c.fail(err)
			}
			c.parsePos = next
			c.State = StateBody

		case StateBody:
			next, err := c.stepBody()
			if err == reqbuf.ErrNeedMoreData {
				return ReadData, nil
			}
			if err != nil {
				return c.fail(err)
			}
			c.parsePos = next
			if c.Req.Chunked {
				c.State = StateTail
			} else {
				c.State = StateReady
			}

		case StateTail:
			// Trailer parsing is folded into ParseChunkedBody; reaching here
			// with Chunked set but no error means trailers are done.
			c.State = StateReady

		case StateReady:
			if err := d.Dispatch(c); err != nil {
				return c.fail(err)
			}
			if c.forceClose {
				return CloseSocket, nil
			}
			c.State = StateFinish

		case StateFinish:
			r := c.finish()
			if r == CloseSocket {
				return CloseSocket, nil
			}
			// pipelined bytes, if any, are already sitting past parsePos;
			// loop back to NEW to try parsing the next request immediately.
			continue

		default:
			return c.fail(fmt.Errorf("statem: invalid state %v", c.State))
		}

		if c.Chain.OverBackpressure() {
			return WriteData, nil
		}
	}
}

func (c *Connection) stepHead() (int, error) {
	next, err := c.Req.ParseRequestLine(c.Buf, c.parsePos, c.Params.Limits)
	if err != nil {
		return 0, err
	}
	if c.Req.Line.Method == httpx.MethodUnknown || c.Req.Line.Version == httpx.VersionUnknown {
		return 0, errBadRequest
	}
	next, err = c.Req.ParseHeaders(c.Buf, next, c.Params.Limits)
	if err != nil {
		return 0, err
	}
	c.Req.Canonicalize()
	c.keepAlive = decideKeepAlive(c.Req)
	return next, nil
}

func (c *Connection) stepBody() (int, error) {
	if c.Req.Chunked {
		return c.Req.ParseChunkedBody(c.Buf, c.Params.Limits)
	}
	return c.Req.ParseFixedBody(c.Buf)
}

// finish implements the FINISH transition: close on HTTP/1.0 or
// Connection: close, otherwise compact the buffer and reset for the next
// pipelined request.
func (c *Connection) finish() Readiness {
	if !c.keepAlive {
		return CloseSocket
	}
	surplus := c.Req.ParsedLen
	c.Buf.Compact(surplus)
	c.Req.Reset()
	c.parsePos = 0
	c.State = StateNew
	if c.Chain.OverBackpressure() {
		return WriteData
	}
	return ReadData
}

// decideKeepAlive echoes the client's explicit Connection preference rather
// than only defaulting by version: an HTTP/1.0 client that explicitly asked
// for keep-alive still gets it unless some other framing rule forces a
// close.
func decideKeepAlive(r *reqbuf.Request) bool {
	if r.ConnectionClose {
		return false
	}
	if r.Line.Version == httpx.Version11 {
		return true
	}
	if v, ok := r.Header.NthValue("Connection", 0); ok && equalFoldASCII(v, "keep-alive") {
		return true
	}
	return false
}

func equalFoldASCII(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if ca >= 'A' && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if cb >= 'A' && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// fail emits the appropriate protocol-error response and tears
// the connection down: the parser/dispatch failure modes the core defines
// are all close-after-reply.
func (c *Connection) fail(err error) (Readiness, error) {
	status := statusFor(err)
	_ = wbuf.WriteResponse(c.Chain, c.Fd, protocolVersion(c.Req), status, false, "", []byte(httpx.StatusText(status)+"\n"), false)
	return CloseSocket, err
}

// HalfClosing reports whether the caller has already issued
// shutdown(SHUT_WR) on this connection's socket and is now only waiting for
// the peer's hangup (spec §4.C/§5's graceful half-close); the caller should
// discard any further data it reads rather than feeding it to Step.
func (c *Connection) HalfClosing() bool { return c.halfClosing }

// MarkHalfClosed records that the caller has issued shutdown(SHUT_WR) on
// the connection's socket, so subsequent reads should be discarded rather
// than parsed.
func (c *Connection) MarkHalfClosed() { c.halfClosing = true }

// PendingClose reports whether Step/Reject already decided CloseSocket for
// this connection and the caller is still draining queued output before it
// can proceed to the half-close sequence; while this is true the caller
// must not invoke Step again.
func (c *Connection) PendingClose() bool { return c.pendingClose }

// MarkPendingClose records that a CloseSocket outcome is still waiting on
// Chain to finish draining.
func (c *Connection) MarkPendingClose() { c.pendingClose = true }

// Reject synthesizes the protocol-error response for err via statusFor and
// tears the connection down, for failures the caller detects before Step
// runs (e.g. EnsureWritable refusing to grow the buffer past the current
// phase's max — spec §4.B: "on overflow emit 413 and close").
func (c *Connection) Reject(err error) (Readiness, error) {
	return c.fail(err)
}

func protocolVersion(r *reqbuf.Request) httpx.Version {
	if r == nil || r.Line.Version == httpx.VersionUnknown {
		return httpx.Version10
	}
	return r.Line.Version
}
