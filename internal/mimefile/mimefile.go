// Package mimefile implements the extension → Content-Type table the disk
// file handler consults, grounded on original_source/src/
// http-server-data.h: that table stores each extension reversed ("lmth."
// for ".html") so a match is a fast prefix compare against the reversed
// request path instead of a suffix compare against the forward path.
package mimefile

import "strings"

// Table maps a reversed file extension (see ReverseExt) to a Content-Type
// value. The zero value is usable; Default carries the built-in set.
type Table map[string]string

// ReverseExt reverses the bytes of ext, matching the storage convention the
// original C table uses for its suffix-compare trick.
func ReverseExt(ext string) string {
	b := []byte(ext)
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return string(b)
}

// Lookup returns the Content-Type for path's extension, or ok=false if the
// extension is unknown. path is not reversed by the caller; Lookup reverses
// the trailing extension itself.
func (t Table) Lookup(path string) (string, bool) {
	dot := strings.LastIndexByte(path, '.')
	if dot < 0 || dot == len(path)-1 {
		return "", false
	}
	ext := path[dot+1:]
	v, ok := t[ReverseExt(ext)]
	return v, ok
}

// Add registers a Content-Type for a plain (non-reversed) extension.
func (t Table) Add(ext, contentType string) {
	t[ReverseExt(ext)] = contentType
}

// Default is the built-in table from original_source/src/http-server-data.h,
// covering the common extensions a small origin server is expected to know
// without an external mime.types file.
var Default = func() Table {
	t := make(Table, 64)
	entries := map[string]string{
		"aac": "audio/aac", "avi": "video/x-msvideo", "bin": "application/octet-stream",
		"bz": "application/x-bzip", "bz2": "application/x-bzip2", "c": "text/plain",
		"cpp": "text/plain", "csh": "application/x-csh", "css": "text/css",
		"csv": "text/csv", "cxx": "text/plain", "dat": "application/octet-stream",
		"doc": "application/msword",
		"docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"eot": "application/vnd.ms-fontobject", "epub": "application/epub+zip",
		"gif": "image/gif", "html": "text/html", "htm": "text/html",
		"ico": "image/x-icon", "ics": "text/calendar", "jar": "application/java-archive",
		"jpg": "image/jpeg", "jpeg": "image/jpeg", "js": "application/javascript",
		"json": "application/json", "midi": "audio/midi", "mid": "audio/midi",
		"mpeg": "video/mpeg", "mpkg": "application/vnd.apple.installer+xml",
		"odp": "application/vnd.oasis.opendocument.presentation",
		"ods": "application/vnd.oasis.opendocument.spreadsheet",
		"odt": "application/vnd.oasis.opendocument.text", "otf": "font/otf",
		"png": "image/png", "h": "text/plain", "hpp": "text/plain",
		"pdf": "application/pdf", "ppt": "application/vnd.ms-powerpoint",
		"pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
		"rar": "application/x-rar-compressed", "rtf": "application/rtf",
		"sh": "application/x-sh", "svg": "image/svg+xml",
		"swf": "application/x-shockwave-flash", "tar": "application/x-tar",
		"tiff": "image/tiff", "tif": "image/tiff", "ttf": "font/ttf",
		"txt": "text/plain", "vsd": "application/vnd.visio", "wav": "audio/x-wav",
		"webm": "video/webm", "webp": "image/webp", "woff": "font/woff",
		"woff2": "font/woff2", "xhtml": "application/xhtml+xml",
		"xls": "application/vnd.ms-excel",
		"xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		"xml": "application/xml", "zip": "application/zip", "7z": "application/x-7z-compressed",
	}
	for ext, ct := range entries {
		t.Add(ext, ct)
	}
	return t
}()
