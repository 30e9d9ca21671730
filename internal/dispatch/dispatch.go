package dispatch

import (
	"github.com/abgandar/originhttpd/internal/httpx"
	"github.com/abgandar/originhttpd/internal/statem"
	"github.com/abgandar/originhttpd/internal/wbuf"
)

// notFoundBody and methodNotAllowedBody are the short textual bodies used
// for resource/protocol errors that keep the connection open.
var (
	notFoundBody         = []byte("404 Not Found\n")
	methodNotAllowedBody = []byte("405 Method Not Allowed\n")
)

// Table is the ordered content-rule list and implements
// statem.Dispatcher.
type Table struct {
	Rules []Rule

	// ExtraHeaders is the server-global extra-headers string,
	// appended verbatim to every response this table writes directly
	// (404/405); built-in handlers receive it themselves to do the same.
	ExtraHeaders string
}

// Dispatch implements statem.Dispatcher: reject non-GET/POST/HEAD with 405,
// otherwise walk the rule table in order invoking the first match, falling
// through on ResultNotFound per each rule's Stop flag, and emit 404 if
// nothing produces a reply.
func (t *Table) Dispatch(c *statem.Connection) error {
	m := c.Req.Line.Method
	if m != httpx.MethodGet && m != httpx.MethodHead && m != httpx.MethodPost {
		return wbuf.WriteResponse(c.Chain, c.Fd, c.Req.Line.Version, 405, c.KeepAlive(), t.ExtraHeaders, methodNotAllowedBody, false)
	}

	host := c.Req.Host
	path := ""
	if c.Req.URL != nil {
		path = c.Req.URL.Path
	}

	for i := range t.Rules {
		rule := &t.Rules[i]
		if !rule.Matches(host, path) {
			continue
		}
		res, err := rule.Handler.Handle(c, rule)
		if err != nil {
			return err
		}
		switch res {
		case ResultSuccess:
			return nil
		case ResultCloseSocket:
			c.RequestClose()
			return nil
		case ResultNotFound:
			if rule.Stop {
				return t.notFound(c)
			}
			continue
		}
	}
	return t.notFound(c)
}

func (t *Table) notFound(c *statem.Connection) error {
	omitBody := c.Req.Line.Method == httpx.MethodHead
	return wbuf.WriteResponse(c.Chain, c.Fd, c.Req.Line.Version, 404, c.KeepAlive(), t.ExtraHeaders, notFoundBody, omitBody)
}
