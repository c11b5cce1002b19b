// Package sse reassembles server-sent-event frames from a byte stream that
// may be split at arbitrary offsets.
package sse

import "bytes"

// maxDelimiter is the length of the longest frame boundary, "\r\n\r\n".
const maxDelimiter = 4

// Extractor accumulates bytes and emits complete frames, each ended by a
// blank line. LF and CRLF line endings are accepted, mixed freely; line
// endings inside a frame are returned as received.
// Any trailing partial frame is retained across calls to Push.
//
// An Extractor is not safe for concurrent use.
type Extractor struct {
	buf []byte
	// scan is the offset in buf before which no delimiter can start.
	scan int
}

// NewExtractor creates an empty extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Push appends p to the internal buffer and returns every frame completed by
// it, in stream order, with the delimiter stripped. Returned frames do not
// alias the internal buffer. Empty frames (runs of blank lines) are skipped.
func (x *Extractor) Push(p []byte) [][]byte {
	if len(p) == 0 {
		return nil
	}
	x.buf = append(x.buf, p...)

	var frames [][]byte
	start := 0
	for {
		idx, n := boundary(x.buf[start+x.scan:])
		if idx < 0 {
			break
		}
		end := start + x.scan + idx
		if end > start {
			frames = append(frames, bytes.Clone(x.buf[start:end]))
		}
		start = end + n
		x.scan = 0
	}

	if start > 0 {
		n := copy(x.buf, x.buf[start:])
		x.buf = x.buf[:n]
	}

	// A boundary may straddle the next push, so keep its longest prefix
	// scannable.
	x.scan = len(x.buf) - (maxDelimiter - 1)
	if x.scan < 0 {
		x.scan = 0
	}

	return frames
}

// boundary finds the first blank line in b: two consecutive line endings,
// each "\n" or "\r\n". It returns the offset where the boundary starts and its
// length, or -1 when b holds no complete boundary.
func boundary(b []byte) (int, int) {
	for i := 0; i < len(b); i++ {
		first := lineEnd(b[i:])
		if first == 0 {
			continue
		}
		if second := lineEnd(b[i+first:]); second > 0 {
			return i, first + second
		}
	}
	return -1, 0
}

// lineEnd returns the length of the line ending at the start of b, or 0.
func lineEnd(b []byte) int {
	switch {
	case len(b) > 0 && b[0] == '\n':
		return 1
	case len(b) > 1 && b[0] == '\r' && b[1] == '\n':
		return 2
	}
	return 0
}

// Buffered returns the number of bytes held for an incomplete frame.
func (x *Extractor) Buffered() int {
	return len(x.buf)
}

// Finish ends the stream. Bytes left without a terminator are an incomplete
// frame; they are returned for diagnostics and discarded.
func (x *Extractor) Finish() []byte {
	rest := x.buf
	x.buf = nil
	x.scan = 0
	if len(rest) == 0 {
		return nil
	}
	return rest
}
