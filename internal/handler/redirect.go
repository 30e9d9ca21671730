package handler

import (
	"strings"

	"github.com/abgandar/originhttpd/internal/dispatch"
	"github.com/abgandar/originhttpd/internal/httpx"
	"github.com/abgandar/originhttpd/internal/statem"
	"github.com/abgandar/originhttpd/internal/wbuf"
)

// Redirect emits a 308 pointing past the matched rule prefix at a
// configured target.
type Redirect struct {
	TargetPrefix string
	ExtraHeaders string
}

var _ dispatch.Handler = (*Redirect)(nil)

func (h *Redirect) Handle(c *statem.Connection, rule *dispatch.Rule) (dispatch.Result, error) {
	tail := strings.TrimPrefix(c.Req.URL.Path, rule.Pattern)
	loc := h.TargetPrefix + tail
	headers := h.ExtraHeaders + string(httpx.WriteHeaderLine("Location", loc))
	omitBody := c.Req.Line.Method == httpx.MethodHead
	err := wbuf.WriteResponse(c.Chain, c.Fd, c.Req.Line.Version, 308, c.KeepAlive(), headers, []byte("308 Permanent Redirect\n"), omitBody)
	return dispatch.ResultSuccess, err
}
