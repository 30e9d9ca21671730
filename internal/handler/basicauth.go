package handler

import (
	"strings"

	"github.com/abgandar/originhttpd/internal/dispatch"
	"github.com/abgandar/originhttpd/internal/httpx"
	"github.com/abgandar/originhttpd/internal/statem"
	"github.com/abgandar/originhttpd/internal/wbuf"
)

// BasicAuth gates a rule chain behind HTTP basic auth (spec §4.E
// "Basic-auth"): credentials are compared as raw base64 "user:pass" tokens,
// matching the original's verbatim-string comparison rather than decoding
// and comparing user/pass separately.
type BasicAuth struct {
	Realm        string
	Credentials  []string // base64("user:pass") tokens, compared verbatim
	ExtraHeaders string
}

var _ dispatch.Handler = (*BasicAuth)(nil)

func (h *BasicAuth) Handle(c *statem.Connection, rule *dispatch.Rule) (dispatch.Result, error) {
	if auth, ok := c.Req.Header.NthValue("Authorization", 0); ok {
		const prefix = "Basic "
		if strings.HasPrefix(auth, prefix) {
			token := strings.TrimSpace(auth[len(prefix):])
			for _, cred := range h.Credentials {
				if token == cred {
					// Success: let the next rule serve the actual resource.
					return dispatch.ResultNotFound, nil
				}
			}
		}
	}
	headers := h.ExtraHeaders + string(httpx.WriteHeaderLine("WWW-Authenticate", `Basic realm="`+h.Realm+`"`))
	omitBody := c.Req.Line.Method == httpx.MethodHead
	err := wbuf.WriteResponse(c.Chain, c.Fd, c.Req.Line.Version, 401, c.KeepAlive(), headers, []byte("401 Unauthorized\n"), omitBody)
	return dispatch.ResultSuccess, err
}
