package httpx

import "strings"

// CleanPath canonicalizes a URL path per spec: collapses repeated "/",
// resolves "." and ".." segments, and clamps ascent past the origin at "/".
//
// CleanPath is idempotent: CleanPath(CleanPath(p)) == CleanPath(p) for all p,
// since the output never contains "//", ".", or ".." segments for the parser
// to act on again.
func CleanPath(p string) string {
	if p == "" {
		return "/"
	}
	trailingSlash := len(p) > 1 && strings.HasSuffix(p, "/")

	segments := strings.Split(p, "/")
	out := make([]string, 0, len(segments))
	for _, seg := range segments {
		switch seg {
		case "", ".":
			// collapses "//" and drops "." segments
			continue
		case "..":
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
			// ascending past the origin is clamped: nothing to pop, stay at "/"
		default:
			out = append(out, seg)
		}
	}

	cleaned := "/" + strings.Join(out, "/")
	if trailingSlash && cleaned != "/" {
		cleaned += "/"
	}
	return cleaned
}
