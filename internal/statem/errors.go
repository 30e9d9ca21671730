package statem

import (
	"errors"

	"github.com/abgandar/originhttpd/internal/httpx"
	"github.com/abgandar/originhttpd/internal/reqbuf"
)

// errBadRequest is statem's own sentinel for its re-check of the parsed
// method/version enums. reqbuf already rejects unknown methods and versions
// through httpx.ParseRequestLine, so this check is a defensive backstop.
var errBadRequest = errors.New("statem: malformed request line")

// statusFor maps a parser/body-decode failure to the status code spec §7
// assigns it. Anything unrecognized is treated as a 400 rather than 500,
// since everything reaching Step's error path originates from request
// parsing, not internal server failure.
func statusFor(err error) int {
	switch {
	case errors.Is(err, reqbuf.ErrUnsupportedTransferEncoding):
		return 501
	case errors.Is(err, httpx.ErrBadChunk):
		return 400
	case isTooLarge(err):
		return 413
	case errors.Is(err, reqbuf.ErrLineTooLong):
		return 413
	case errors.Is(err, errBadRequest):
		return 400
	default:
		return 400
	}
}

func isTooLarge(err error) bool {
	_, ok := err.(*reqbuf.ErrTooLarge)
	return ok
}
