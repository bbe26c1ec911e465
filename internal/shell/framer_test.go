package shell

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarker_String(t *testing.T) {
	m := marker{tag: "abcd", seq: 7, nonce: "ff00"}
	assert.Equal(t, "__BASHAUTOM_abcd_7_ff00", m.String())
	assert.Equal(t, []byte("\n__BASHAUTOM_abcd_"), m.pattern())
}

func TestNewMarker_UniqueNonce(t *testing.T) {
	tag := newSessionTag()
	assert.Len(t, tag, 16)

	a := newMarker(tag, 1)
	b := newMarker(tag, 1)
	assert.Equal(t, a.tag, b.tag)
	assert.NotEqual(t, a.nonce, b.nonce)
	assert.Len(t, a.nonce, 32)
}

func TestFrame(t *testing.T) {
	m := marker{tag: "t", seq: 3, nonce: "n"}

	t.Run("wraps command in brace group", func(t *testing.T) {
		f := frame("echo hi", m)
		assert.True(t, strings.HasPrefix(f, "{\necho hi\n} </dev/null\n"))
		assert.Contains(t, f, exitVar+"=$?\n")
		assert.Contains(t, f, `command printf '\n%s:%s\n' '__BASHAUTOM_t_3_n' "$__bashautom_ec"`)
		assert.Contains(t, f, `command printf '\n%s\n' '__BASHAUTOM_t_3_n' >&2`)
		assert.True(t, strings.HasSuffix(f, "\n"))
	})

	t.Run("does not double trailing newline", func(t *testing.T) {
		f := frame("echo hi\n", m)
		assert.True(t, strings.HasPrefix(f, "{\necho hi\n} </dev/null\n"))
	})

	t.Run("multi-line command kept verbatim", func(t *testing.T) {
		cmd := "for i in 1 2; do\n  echo $i\ndone"
		f := frame(cmd, m)
		assert.Contains(t, f, "{\n"+cmd+"\n}")
	})
}

func TestParseMarkerLine(t *testing.T) {
	tests := []struct {
		name  string
		input string
		ok    bool
		seq   uint64
		nonce string
		code  int
		coded bool
	}{
		{name: "with status", input: "12_abc:0", ok: true, seq: 12, nonce: "abc", code: 0, coded: true},
		{name: "non-zero status", input: "1_abc:127", ok: true, seq: 1, nonce: "abc", code: 127, coded: true},
		{name: "stderr form", input: "4_abc", ok: true, seq: 4, nonce: "abc"},
		{name: "carriage return", input: "5_abc:2\r", ok: true, seq: 5, nonce: "abc", code: 2, coded: true},
		{name: "bad sequence", input: "x_abc:0"},
		{name: "missing nonce", input: "12"},
		{name: "empty nonce", input: "12_"},
		{name: "bad status", input: "12_abc:zz"},
		{name: "empty", input: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ml, ok := parseMarkerLine(tt.input)
			require.Equal(t, tt.ok, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.seq, ml.seq)
			assert.Equal(t, tt.nonce, ml.nonce)
			assert.Equal(t, tt.coded, ml.hasCode)
			assert.Equal(t, tt.code, ml.exitCode)
		})
	}
}

func TestQuote(t *testing.T) {
	tests := map[string]string{
		"":          "''",
		"plain":     "'plain'",
		"it's":      `'it'\''s'`,
		"$HOME `x`": "'$HOME `x`'",
		"a\nb":      "'a\nb'",
	}
	for in, want := range tests {
		assert.Equal(t, want, quote(in), "quote(%q)", in)
	}
}
