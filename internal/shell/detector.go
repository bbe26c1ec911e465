package shell

import (
	"bytes"
	"unicode/utf8"
)

// scanResult describes what one chunk of input produced.
type scanResult struct {
	// visible is output that belongs to the current command and contains no
	// marker text.
	visible []byte

	// hit is set when the current command's marker was found.
	hit *markerLine

	// stale counts markers of earlier commands that were stripped.
	stale int
}

// detector scans one output stream for completion markers.
//
// It holds back only the bytes that could still turn out to be the start of
// a marker, plus any incomplete UTF-8 sequence, so callers never see marker
// text and never receive half a rune.
type detector struct {
	buf []byte
}

// scan appends data and extracts what can be published for current.
//
// Markers of the session with a lower sequence number than current are stale:
// they and the output preceding them belong to an abandoned command and are
// dropped. Marker-shaped lines with an unknown nonce or a future sequence are
// ordinary output.
func (d *detector) scan(data []byte, current marker) scanResult {
	var res scanResult
	d.buf = append(d.buf, data...)

	pattern := current.pattern()
	from := 0
	for {
		idx := bytes.Index(d.buf[from:], pattern)
		if idx < 0 {
			break
		}
		idx += from

		lineStart := idx + len(pattern)
		eol := bytes.IndexByte(d.buf[lineStart:], '\n')
		if eol < 0 {
			// Marker line not complete yet: publish up to it, hold the rest
			res.visible = append(res.visible, d.buf[:idx]...)
			d.buf = append([]byte(nil), d.buf[idx:]...)
			return res
		}

		ml, ok := parseMarkerLine(string(d.buf[lineStart : lineStart+eol]))
		switch {
		case ok && ml.seq == current.seq && ml.nonce == current.nonce:
			res.visible = append(res.visible, d.buf[:idx]...)
			res.hit = &ml
			// Nothing after the marker belongs to this command
			d.buf = nil
			return res
		case ok && ml.seq < current.seq:
			res.stale++
			d.buf = append([]byte(nil), d.buf[lineStart+eol+1:]...)
			from = 0
		default:
			from = idx + 1
		}
	}

	cut := len(d.buf) - partialSuffix(d.buf, pattern)
	cut = runeBoundary(d.buf, cut)

	res.visible = append(res.visible, d.buf[:cut]...)
	d.buf = append([]byte(nil), d.buf[cut:]...)
	return res
}

// flush returns everything held back, e.g. once the stream has ended.
func (d *detector) flush() []byte {
	out := d.buf
	d.buf = nil
	return out
}

// reset drops any held-back bytes.
func (d *detector) reset() {
	d.buf = nil
}

// partialSuffix returns the length of the longest suffix of buf that is a
// proper prefix of pattern.
func partialSuffix(buf, pattern []byte) int {
	n := len(pattern) - 1
	if n > len(buf) {
		n = len(buf)
	}
	for ; n > 0; n-- {
		if bytes.HasSuffix(buf, pattern[:n]) {
			return n
		}
	}
	return 0
}

// runeBoundary moves cut back so buf[:cut] does not end inside a UTF-8
// sequence.
func runeBoundary(buf []byte, cut int) int {
	for i := cut - 1; i >= 0 && i >= cut-utf8.UTFMax; i-- {
		if !utf8.RuneStart(buf[i]) {
			continue
		}
		if !utf8.FullRune(buf[i:cut]) {
			return i
		}
		break
	}
	return cut
}
