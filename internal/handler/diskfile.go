package handler

import (
	"fmt"
	"html"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/abgandar/originhttpd/internal/dispatch"
	"github.com/abgandar/originhttpd/internal/httpx"
	"github.com/abgandar/originhttpd/internal/mimefile"
	"github.com/abgandar/originhttpd/internal/statem"
	"github.com/abgandar/originhttpd/internal/wbuf"
)

// DiskFile serves files rooted at Root.
type DiskFile struct {
	Root             string
	IndexFile        string // e.g. "index.html"; empty disables index lookup
	DirectoryListing bool
	Canonicalize     bool // mirrors the server-wide URL canonicalization flag
	MIME             mimefile.Table
	ExtraHeaders     string
}

var _ dispatch.Handler = (*DiskFile)(nil)

func (h *DiskFile) Handle(c *statem.Connection, rule *dispatch.Rule) (dispatch.Result, error) {
	reqPath := c.Req.URL.Path
	if !h.Canonicalize && strings.Contains(reqPath, "..") {
		return dispatch.ResultNotFound, nil
	}

	fsPath := filepath.Join(h.Root, filepath.FromSlash(reqPath))
	if !strings.HasPrefix(fsPath, filepath.Clean(h.Root)) {
		return dispatch.ResultNotFound, nil
	}

	info, err := os.Stat(fsPath)
	if os.IsNotExist(err) {
		return dispatch.ResultNotFound, nil
	}
	if err != nil {
		return dispatch.ResultNotFound, nil
	}

	if info.IsDir() {
		return h.serveDir(c, reqPath, fsPath)
	}
	if !info.Mode().IsRegular() {
		// spec §9 open question: anything that is not a regular file, a
		// symlink to one, or a directory gets 403. os.Stat already follows
		// symlinks, so a symlink-to-regular-file reached this branch as
		// info.Mode().IsRegular() == true; only devices/sockets/etc. land
		// here.
		return h.forbidden(c)
	}
	return h.serveFile(c, fsPath, info)
}

func (h *DiskFile) serveDir(c *statem.Connection, reqPath, fsPath string) (dispatch.Result, error) {
	if !strings.HasSuffix(reqPath, "/") {
		headers := h.ExtraHeaders + string(httpx.WriteHeaderLine("Location", reqPath+"/"))
		omitBody := c.Req.Line.Method == httpx.MethodHead
		err := wbuf.WriteResponse(c.Chain, c.Fd, c.Req.Line.Version, 308, c.KeepAlive(), headers, []byte("308 Permanent Redirect\n"), omitBody)
		return dispatch.ResultSuccess, err
	}

	if h.IndexFile != "" {
		idxPath := filepath.Join(fsPath, h.IndexFile)
		if info, err := os.Stat(idxPath); err == nil && info.Mode().IsRegular() {
			return h.serveFile(c, idxPath, info)
		}
	}

	if h.DirectoryListing {
		return h.serveListing(c, fsPath)
	}
	return h.forbidden(c)
}

func (h *DiskFile) serveFile(c *statem.Connection, fsPath string, info os.FileInfo) (dispatch.Result, error) {
	etag := `"` + strconv.FormatInt(info.ModTime().Unix(), 10) + `"`
	if inm, ok := c.Req.Header.NthValue("If-None-Match", 0); ok && inm == etag {
		headers := h.ExtraHeaders + string(httpx.WriteHeaderLine("ETag", etag))
		err := wbuf.WriteResponse(c.Chain, c.Fd, c.Req.Line.Version, 304, c.KeepAlive(), headers, nil, true)
		return dispatch.ResultSuccess, err
	}

	f, err := os.Open(fsPath)
	if err != nil {
		return dispatch.ResultNotFound, nil
	}

	contentType := "application/octet-stream"
	if ct, ok := h.MIME.Lookup(fsPath); ok {
		contentType = ct
	}
	headers := h.ExtraHeaders + string(httpx.WriteHeaderLine("Content-Type", contentType)) + string(httpx.WriteHeaderLine("ETag", etag))

	size := info.Size()
	omitBody := c.Req.Line.Method == httpx.MethodHead
	if err := wbuf.WriteHeaderOnly(c.Chain, c.Fd, c.Req.Line.Version, 200, c.KeepAlive(), headers, int(size)); err != nil {
		_ = f.Close()
		return dispatch.ResultCloseSocket, err
	}
	if omitBody {
		_ = f.Close()
		return dispatch.ResultSuccess, nil
	}
	if err := c.Chain.BufferedSendfile(c.Fd, f, 0, size, wbuf.CloseOnDrain); err != nil {
		return dispatch.ResultCloseSocket, err
	}
	return dispatch.ResultSuccess, nil
}

// serveListing renders a minimal, sorted, HTML-escaped directory listing
// (original_source/src/http-server.c's make_dir_listing), sizing
// Content-Length from the rendered output rather than a pre-estimate (spec
// §9 open question resolution: size after rendering).
func (h *DiskFile) serveListing(c *statem.Connection, fsPath string) (dispatch.Result, error) {
	entries, err := os.ReadDir(fsPath)
	if err != nil {
		return h.forbidden(c)
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		n := e.Name()
		if e.IsDir() {
			n += "/"
		}
		names[i] = n
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("<!doctype html><html><head><title>Index</title></head><body><ul>")
	for _, n := range names {
		esc := html.EscapeString(n)
		fmt.Fprintf(&b, "<li><a href=\"%s\">%s</a></li>", esc, esc)
	}
	b.WriteString("</ul></body></html>")

	body := []byte(b.String())
	headers := h.ExtraHeaders + string(httpx.WriteHeaderLine("Content-Type", "text/html"))
	omitBody := c.Req.Line.Method == httpx.MethodHead
	err = wbuf.WriteResponse(c.Chain, c.Fd, c.Req.Line.Version, 200, c.KeepAlive(), headers, body, omitBody)
	return dispatch.ResultSuccess, err
}

func (h *DiskFile) forbidden(c *statem.Connection) (dispatch.Result, error) {
	omitBody := c.Req.Line.Method == httpx.MethodHead
	err := wbuf.WriteResponse(c.Chain, c.Fd, c.Req.Line.Version, 403, c.KeepAlive(), h.ExtraHeaders, []byte("403 Forbidden\n"), omitBody)
	return dispatch.ResultSuccess, err
}
