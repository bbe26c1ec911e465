package shell

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// markerPrefix starts every completion marker.
const markerPrefix = "__BASHAUTOM_"

// exitVar holds the command's status between the command and the marker.
const exitVar = "__bashautom_ec"

// marker identifies the end of one command's output.
//
// The tag is fixed per session so stale markers can be recognised; the nonce
// is fresh per command so output cannot predict the live marker.
type marker struct {
	tag   string
	seq   uint64
	nonce string
}

// newSessionTag returns a random tag shared by all markers of a session.
func newSessionTag() string {
	u := uuid.New()
	return hex.EncodeToString(u[:8])
}

// newMarker returns a marker for the command with the given sequence number.
func newMarker(tag string, seq uint64) marker {
	u := uuid.New()
	return marker{tag: tag, seq: seq, nonce: hex.EncodeToString(u[:])}
}

// String returns the token as it appears in the output.
func (m marker) String() string {
	return fmt.Sprintf("%s%s_%d_%s", markerPrefix, m.tag, m.seq, m.nonce)
}

// pattern is what the detector searches for: a line start followed by the
// session's marker prefix.
func (m marker) pattern() []byte {
	return []byte("\n" + markerPrefix + m.tag + "_")
}

// frame returns the text written to the shell for one command.
//
// The command runs in a brace group so state changes persist, with stdin
// from /dev/null so it cannot consume the lines that follow. The status is
// then printed after the marker on stdout, and the bare marker on stderr so
// both streams have a boundary. Each marker starts with a newline so it
// begins a line even when the command's output does not end with one.
func frame(command string, m marker) string {
	var b strings.Builder
	b.WriteString("{\n")
	b.WriteString(command)
	if !strings.HasSuffix(command, "\n") {
		b.WriteByte('\n')
	}
	b.WriteString("} </dev/null\n")
	b.WriteString(exitVar + "=$?\n")
	fmt.Fprintf(&b, "command printf '\\n%%s:%%s\\n' '%s' \"$%s\"\n", m, exitVar)
	fmt.Fprintf(&b, "command printf '\\n%%s\\n' '%s' >&2\n", m)
	return b.String()
}

// markerLine is a parsed marker found in the output.
type markerLine struct {
	seq      uint64
	nonce    string
	exitCode int
	hasCode  bool
}

// parseMarkerLine parses the part of a marker line after the session
// pattern: "<seq>_<nonce>" optionally followed by ":<status>".
func parseMarkerLine(rest string) (markerLine, bool) {
	var ml markerLine
	rest = strings.TrimSuffix(rest, "\r")

	body, code, hasCode := strings.Cut(rest, ":")
	seqStr, nonce, ok := strings.Cut(body, "_")
	if !ok || nonce == "" {
		return ml, false
	}
	seq, err := strconv.ParseUint(seqStr, 10, 64)
	if err != nil {
		return ml, false
	}
	ml.seq = seq
	ml.nonce = nonce

	if hasCode {
		n, err := strconv.Atoi(strings.TrimSpace(code))
		if err != nil {
			return ml, false
		}
		ml.exitCode = n
		ml.hasCode = true
	}
	return ml, true
}

// quote returns s as a single-quoted shell word.
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
