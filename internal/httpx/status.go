package httpx

// StatusText is the fixed phrase table for the status codes the core emits
//. Unlike net/http's exhaustive table, this one only carries the
// codes the origin server core actually produces.
var statusText = map[int]string{
	200: "OK",
	304: "Not Modified",
	308: "Permanent Redirect",
	400: "Bad Request",
	401: "Unauthorized",
	403: "Forbidden",
	404: "Not Found",
	405: "Method Not Allowed",
	413: "Request Entity Too Large",
	500: "Internal Server Error",
	501: "Not Implemented",
	503: "Service Unavailable",
}

// StatusText returns the reason phrase for code, or "Unknown" if the core
// never emits that code.
func StatusText(code int) string {
	if s, ok := statusText[code]; ok {
		return s
	}
	return "Unknown"
}
