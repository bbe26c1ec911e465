package shell

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testMarker = marker{tag: "abc", seq: 2, nonce: "n2"}

const (
	testStdoutMarker = "\n__BASHAUTOM_abc_2_n2:0\n"
	testStderrMarker = "\n__BASHAUTOM_abc_2_n2\n"
)

func TestDetector_WholeChunk(t *testing.T) {
	var d detector
	res := d.scan([]byte("hello\n"+testStdoutMarker), testMarker)

	require.NotNil(t, res.hit)
	assert.Equal(t, "hello\n", string(res.visible))
	assert.True(t, res.hit.hasCode)
	assert.Equal(t, 0, res.hit.exitCode)
	assert.Empty(t, d.buf)
}

func TestDetector_ByteAtATime(t *testing.T) {
	var d detector
	input := "line one\nline two" + "\n__BASHAUTOM_abc_2_n2:42\n"

	var visible []byte
	var hit *markerLine
	for i := 0; i < len(input); i++ {
		res := d.scan([]byte{input[i]}, testMarker)
		visible = append(visible, res.visible...)
		if res.hit != nil {
			hit = res.hit
			assert.Equal(t, len(input)-1, i, "hit before the marker line ended")
		}
	}

	require.NotNil(t, hit)
	assert.Equal(t, 42, hit.exitCode)
	assert.Equal(t, "line one\nline two", string(visible))
}

func TestDetector_SplitMarkerLine(t *testing.T) {
	var d detector

	res := d.scan([]byte("out\n__BASHAUTOM_abc_2_n2"), testMarker)
	assert.Equal(t, "out", string(res.visible))
	assert.Nil(t, res.hit)

	res = d.scan([]byte(":3\n"), testMarker)
	assert.Empty(t, res.visible)
	require.NotNil(t, res.hit)
	assert.Equal(t, 3, res.hit.exitCode)
}

func TestDetector_StderrMarker(t *testing.T) {
	var d detector
	res := d.scan([]byte("oops"+testStderrMarker), testMarker)

	require.NotNil(t, res.hit)
	assert.False(t, res.hit.hasCode)
	assert.Equal(t, "oops", string(res.visible))
}

func TestDetector_StaleMarkerStripped(t *testing.T) {
	var d detector
	input := "late output\n__BASHAUTOM_abc_1_old:130\nfresh" + testStdoutMarker
	res := d.scan([]byte(input), testMarker)

	require.NotNil(t, res.hit)
	assert.Equal(t, 1, res.stale)
	assert.Equal(t, "fresh", string(res.visible))
}

func TestDetector_ForgedMarkerIsOutput(t *testing.T) {
	tests := []struct {
		name   string
		forged string
	}{
		{name: "wrong nonce", forged: "\n__BASHAUTOM_abc_2_forged:0\n"},
		{name: "future sequence", forged: "\n__BASHAUTOM_abc_9_n2:0\n"},
		{name: "malformed", forged: "\n__BASHAUTOM_abc_garbage\n"},
		{name: "other session", forged: "\n__BASHAUTOM_zzz_2_n2:0\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d detector
			res := d.scan([]byte(tt.forged+"after"+"\n__BASHAUTOM_abc_2_n2:5\n"), testMarker)

			require.NotNil(t, res.hit)
			assert.Equal(t, 5, res.hit.exitCode)
			assert.Equal(t, tt.forged+"after", string(res.visible))
			assert.Zero(t, res.stale)
		})
	}
}

func TestDetector_DiscardsAfterMarker(t *testing.T) {
	var d detector
	res := d.scan([]byte("x"+testStdoutMarker+"trailing"), testMarker)

	require.NotNil(t, res.hit)
	assert.Equal(t, "x", string(res.visible))
	assert.Empty(t, d.flush())
}

func TestDetector_HoldsIncompleteRune(t *testing.T) {
	var d detector

	// "é" is 0xC3 0xA9
	res := d.scan([]byte("h\xc3"), testMarker)
	assert.Equal(t, "h", string(res.visible))

	res = d.scan([]byte("\xa9llo"), testMarker)
	assert.Equal(t, "éllo", string(res.visible))
}

func TestDetector_HoldsPatternPrefix(t *testing.T) {
	var d detector

	res := d.scan([]byte("text\n__BASH"), testMarker)
	assert.Equal(t, "text", string(res.visible))

	res = d.scan([]byte("FUL stuff\n"), testMarker)
	assert.Equal(t, "\n__BASHFUL stuff", string(res.visible))
	assert.Equal(t, "\n", string(d.flush()))
}

func TestPartialSuffix(t *testing.T) {
	pattern := []byte("\nABC")
	tests := []struct {
		buf  string
		want int
	}{
		{buf: "", want: 0},
		{buf: "xyz", want: 0},
		{buf: "xyz\n", want: 1},
		{buf: "xyz\nA", want: 2},
		{buf: "xyz\nAB", want: 3},
		{buf: "xyz\nABC", want: 0},
		{buf: "\nAx", want: 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, partialSuffix([]byte(tt.buf), pattern), "buf %q", tt.buf)
	}
}

func TestRuneBoundary(t *testing.T) {
	tests := []struct {
		name string
		buf  string
		want int
	}{
		{name: "ascii", buf: "abc", want: 3},
		{name: "complete two-byte", buf: "é", want: 2},
		{name: "truncated two-byte", buf: "a\xc3", want: 1},
		{name: "truncated three-byte", buf: "a\xe2\x82", want: 1},
		{name: "complete four-byte", buf: "😀", want: 4},
		{name: "invalid byte passes", buf: "a\xff", want: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := []byte(tt.buf)
			assert.Equal(t, tt.want, runeBoundary(buf, len(buf)))
		})
	}
}
