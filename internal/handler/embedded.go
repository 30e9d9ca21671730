// Package handler implements the built-in content-rule handlers of spec
// §4.E: embedded blob, on-disk file (with ETag/listing/redirect), plain
// redirect, and HTTP basic-auth gate.
package handler

import (
	"github.com/abgandar/originhttpd/internal/dispatch"
	"github.com/abgandar/originhttpd/internal/httpx"
	"github.com/abgandar/originhttpd/internal/statem"
	"github.com/abgandar/originhttpd/internal/wbuf"
)

// Embedded serves a fixed, compiled-in byte blob.
type Embedded struct {
	Body        []byte
	ContentType string
	// ETag, if non-empty, is compared against If-None-Match for a 304
	// short-circuit; spec describes this as driven by an "optional
	// compile-time build timestamp", so an empty ETag disables the check
	// entirely rather than comparing against "".
	ETag         string
	ExtraHeaders string
}

var _ dispatch.Handler = (*Embedded)(nil)

func (h *Embedded) Handle(c *statem.Connection, rule *dispatch.Rule) (dispatch.Result, error) {
	headers := h.headerBlock()
	omitBody := c.Req.Line.Method == httpx.MethodHead

	if h.ETag != "" {
		if inm, ok := c.Req.Header.NthValue("If-None-Match", 0); ok && inm == h.ETag {
			err := wbuf.WriteResponse(c.Chain, c.Fd, c.Req.Line.Version, 304, c.KeepAlive(), headers, nil, true)
			return dispatch.ResultSuccess, err
		}
	}
	err := wbuf.WriteResponse(c.Chain, c.Fd, c.Req.Line.Version, 200, c.KeepAlive(), headers, h.Body, omitBody)
	return dispatch.ResultSuccess, err
}

func (h *Embedded) headerBlock() string {
	s := ""
	if h.ContentType != "" {
		s += string(httpx.WriteHeaderLine("Content-Type", h.ContentType))
	}
	if h.ETag != "" {
		s += string(httpx.WriteHeaderLine("ETag", h.ETag))
	}
	return s + h.ExtraHeaders
}
