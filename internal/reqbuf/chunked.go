package reqbuf

import (
	"errors"
	"fmt"

	"github.com/abgandar/originhttpd/internal/httpx"
)

// chunkPhase is the chunked-body decoder's resumable sub-state, entered
// from statem's BODY state and exited into TAIL once the terminating
// zero-size chunk and its trailers have been consumed.
type chunkPhase int

const (
	chunkPhaseHeader chunkPhase = iota // waiting for "<hex-size>[;ext]\r\n"
	chunkPhaseData                     // copying chunk payload bytes in place
	chunkPhaseCRLF                     // expecting the terminator after chunk data
	chunkPhaseTrailer                  // reading trailer header lines
)

// bodyLineBudget returns the scanLine budget remaining for a body/trailer
// line given consumed bytes of this request's body phase so far (spec
// §4.B: max_body_len bounds "body/trailers" as a single cumulative phase,
// not any one line or chunk in isolation). It errors once consumed already
// reaches lim.MaxBody, the same way ParseHeaders budgets lim.MaxHeaderBlock.
func bodyLineBudget(consumed int, lim Limits) (int, error) {
	if lim.MaxBody <= 0 {
		return 1 << 20, nil
	}
	if consumed >= lim.MaxBody {
		return 0, &ErrTooLarge{Max: lim.MaxBody}
	}
	return lim.MaxBody - consumed, nil
}

// ParseChunkedBody advances the in-place chunked decoder as far as the
// currently-filled region of buf allows. It copies each chunk's payload
// back-to-back starting at r.BodyStart, so the reassembled body ends up
// byte-identical to the concatenation of chunk payloads in order.
// Returns ErrNeedMoreData when the caller must read more bytes and retry.
func (r *Request) ParseChunkedBody(buf *Buffer, lim Limits) (next int, err error) {
	if !r.chunkInit {
		r.chunkSrc = r.BodyStart
		r.chunkDst = r.BodyStart
		r.chunkInit = true
	}

	for {
		switch r.chunkState {
		case chunkPhaseHeader:
			budget, berr := bodyLineBudget(r.chunkSrc-r.BodyStart, lim)
			if berr != nil {
				return 0, berr
			}
			line, n, end, serr := scanLine(buf.Bytes(), r.chunkSrc, budget)
			if serr != nil {
				if errors.Is(serr, ErrLineTooLong) {
					return 0, &ErrTooLarge{Max: lim.MaxBody}
				}
				return 0, serr
			}
			if end != r.LineEnd {
				return 0, fmt.Errorf("reqbuf: inconsistent line ending in chunk header")
			}
			size, cerr := httpx.ParseChunkSize(line)
			if cerr != nil {
				return 0, cerr
			}
			if lim.MaxBody > 0 && int64(r.chunkDst-r.BodyStart)+size > int64(lim.MaxBody) {
				return 0, &ErrTooLarge{Max: lim.MaxBody}
			}
			r.chunkSrc = n
			if size == 0 {
				r.BodyEnd = r.chunkDst
				r.chunkState = chunkPhaseTrailer
				continue
			}
			r.chunkRemain = size
			r.chunkState = chunkPhaseData

		case chunkPhaseData:
			available := buf.Len() - r.chunkSrc
			if available <= 0 {
				return 0, ErrNeedMoreData
			}
			take := r.chunkRemain
			if int64(available) < take {
				take = int64(available)
			}
			if take > 0 {
				dst := buf.Bytes()
				copy(dst[r.chunkDst:r.chunkDst+int(take)], dst[r.chunkSrc:r.chunkSrc+int(take)])
				r.chunkDst += int(take)
				r.chunkSrc += int(take)
				r.chunkRemain -= take
			}
			if r.chunkRemain > 0 {
				return 0, ErrNeedMoreData
			}
			r.chunkState = chunkPhaseCRLF

		case chunkPhaseCRLF:
			termLen := 2
			if r.LineEnd == LineEndingLF {
				termLen = 1
			}
			if buf.Len()-r.chunkSrc < termLen {
				return 0, ErrNeedMoreData
			}
			b := buf.Bytes()
			if r.LineEnd == LineEndingCRLF {
				if b[r.chunkSrc] != '\r' || b[r.chunkSrc+1] != '\n' {
					return 0, fmt.Errorf("reqbuf: malformed chunk terminator")
				}
			} else if b[r.chunkSrc] != '\n' {
				return 0, fmt.Errorf("reqbuf: malformed chunk terminator")
			}
			r.chunkSrc += termLen
			r.chunkState = chunkPhaseHeader

		case chunkPhaseTrailer:
			n, terr := r.parseTrailerLines(buf, lim)
			if terr != nil {
				return 0, terr
			}
			r.ParsedLen = n
			return n, nil

		default:
			return 0, fmt.Errorf("reqbuf: invalid chunk decoder state %d", r.chunkState)
		}
	}
}

// parseTrailerLines consumes trailer header lines starting at r.chunkSrc,
// advancing r.chunkSrc after each fully-parsed line so a resumed call after
// ErrNeedMoreData never reprocesses (and re-adds) an already-seen trailer.
func (r *Request) parseTrailerLines(buf *Buffer, lim Limits) (next int, err error) {
	if r.Trailer == nil {
		r.Trailer = make(httpx.Header)
	}
	for {
		budget, berr := bodyLineBudget(r.chunkSrc-r.BodyStart, lim)
		if berr != nil {
			return 0, berr
		}
		line, n, end, serr := scanLine(buf.Bytes(), r.chunkSrc, budget)
		if serr != nil {
			if errors.Is(serr, ErrLineTooLong) {
				return 0, &ErrTooLarge{Max: lim.MaxBody}
			}
			return 0, serr
		}
		if end != r.LineEnd {
			return 0, fmt.Errorf("reqbuf: inconsistent line ending in trailer")
		}
		if len(line) == 0 {
			return n, nil
		}
		colon := indexByte(line, ':')
		if colon <= 0 {
			return 0, fmt.Errorf("reqbuf: malformed trailer line %q", line)
		}
		key := httpx.CanonicalHeaderKey(string(line[:colon]))
		val := string(line[colon+1:])
		r.Trailer.Add(key, trimLeadingSpace(val))
		r.chunkSrc = n
	}
}

func trimLeadingSpace(s string) string {
	i := 0
	for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
		i++
	}
	return s[i:]
}

// ParseFixedBody waits for the declared Content-Length to be fully present
// in buf, then marks the body span. No in-place copying is needed since a
// Content-Length body is already contiguous.
func (r *Request) ParseFixedBody(buf *Buffer) (next int, err error) {
	if r.ContentLength == 0 {
		r.BodyEnd = r.BodyStart
		r.ParsedLen = r.BodyStart
		return r.ParsedLen, nil
	}
	want := r.BodyStart + int(r.ContentLength)
	if buf.Len() < want {
		return 0, ErrNeedMoreData
	}
	r.BodyEnd = want
	r.ParsedLen = want
	return want, nil
}
