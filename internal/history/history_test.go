package history

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/bashautom/internal/shell"
)

func result(cmd string, code int) *shell.CommandResult {
	return &shell.CommandResult{
		Command:   cmd,
		Stdout:    "out of " + cmd,
		ExitCode:  code,
		Duration:  15 * time.Millisecond,
		StartedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Seq:       uint64(code + 1),
	}
}

func TestRing_WrapsOldestFirst(t *testing.T) {
	r := NewRing(3)
	assert.Empty(t, r.All())

	for i := 0; i < 5; i++ {
		r.Add(Entry{Session: fmt.Sprint(i)})
	}

	var got []string
	for _, e := range r.All() {
		got = append(got, e.Session)
	}
	assert.Equal(t, []string{"2", "3", "4"}, got)
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, uint64(5), r.Total())
}

func TestRing_Last(t *testing.T) {
	r := NewRing(10)
	for i := 0; i < 4; i++ {
		r.Add(Entry{Session: fmt.Sprint(i)})
	}

	last := r.Last(2)
	require.Len(t, last, 2)
	assert.Equal(t, "2", last[0].Session)
	assert.Equal(t, "3", last[1].Session)

	assert.Len(t, r.Last(0), 4)
	assert.Len(t, r.Last(100), 4)
}

func TestRing_MinimumCapacity(t *testing.T) {
	r := NewRing(0)
	r.Add(Entry{Session: "a"})
	r.Add(Entry{Session: "b"})
	require.Len(t, r.All(), 1)
	assert.Equal(t, "b", r.All()[0].Session)
}

func TestStore_RecordAndGet(t *testing.T) {
	s := NewStore(2)
	hook := s.Hook()

	hook("build", result("make", 0))
	hook("build", result("make test", 2))
	hook("build", result("make lint", 1))
	s.Record("deploy", result("kubectl apply", 0))
	s.Record("deploy", nil)

	build := s.Get("build", 0)
	require.Len(t, build, 2)
	assert.Equal(t, "make test", build[0].Result.Command)
	assert.Equal(t, "make lint", build[1].Result.Command)
	assert.Equal(t, "build", build[0].Session)
	assert.False(t, build[0].RecordedAt.IsZero())
	assert.True(t, strings.HasPrefix(build[0].ID, "cmd_"))
	assert.Less(t, build[0].ID, build[1].ID)

	assert.Len(t, s.Get("deploy", 0), 1)
	assert.Nil(t, s.Get("missing", 0))
	assert.Equal(t, []string{"build", "deploy"}, s.Sessions())
	assert.Len(t, s.All(), 3)

	s.Forget("build")
	assert.Nil(t, s.Get("build", 0))
	assert.Equal(t, []string{"deploy"}, s.Sessions())
}

func TestStore_RecordCopiesResult(t *testing.T) {
	s := NewStore(5)
	res := result("echo", 0)
	s.Record("a", res)

	res.Stdout = "changed"
	assert.Equal(t, "out of echo", s.Get("a", 0)[0].Result.Stdout)
}

func TestStore_Concurrent(t *testing.T) {
	s := NewStore(1000)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				s.Record(fmt.Sprintf("s%d", i%2), result("cmd", j))
			}
		}(i)
	}
	wg.Wait()

	assert.Len(t, s.Get("s0", 0), 200)
	assert.Len(t, s.Get("s1", 0), 200)
}

func TestParseCompression(t *testing.T) {
	tests := map[string]Compression{
		"":     CompressionNone,
		"none": CompressionNone,
		"GZIP": CompressionGzip,
		"gz":   CompressionGzip,
		"zstd": CompressionZstd,
		"zst":  CompressionZstd,
	}
	for in, want := range tests {
		got, err := ParseCompression(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseCompression("brotli")
	assert.ErrorIs(t, err, ErrUnknownCompression)
}

func TestExportImport(t *testing.T) {
	s := NewStore(10)
	s.Record("a", result("echo one", 0))
	s.Record("a", result("false", 1))
	entries := s.Get("a", 0)

	for _, c := range []Compression{CompressionNone, CompressionGzip, CompressionZstd} {
		t.Run(string(c), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Export(&buf, entries, c))

			if c == CompressionNone {
				lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
				assert.Len(t, lines, 2)
				assert.Contains(t, string(lines[0]), `"command":"echo one"`)
			}

			got, err := Import(&buf, c)
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, "false", got[1].Result.Command)
			assert.Equal(t, entries[1].ID, got[1].ID)
			assert.Equal(t, 1, got[1].Result.ExitCode)
			assert.Equal(t, entries[0].Result.Duration, got[0].Result.Duration)
			assert.True(t, entries[0].Result.StartedAt.Equal(got[0].Result.StartedAt))
		})
	}
}

func TestExport_UnknownCompression(t *testing.T) {
	var buf bytes.Buffer
	assert.ErrorIs(t, Export(&buf, nil, "lz4"), ErrUnknownCompression)

	_, err := Import(&buf, "lz4")
	assert.ErrorIs(t, err, ErrUnknownCompression)
}

func TestImport_BadLine(t *testing.T) {
	_, err := Import(bytes.NewBufferString("{\"session\":\"a\"}\nnot json\n"), CompressionNone)
	assert.ErrorContains(t, err, "line 2")
}

func TestCompressionMetadata(t *testing.T) {
	assert.Equal(t, "application/x-ndjson", CompressionNone.ContentType())
	assert.Equal(t, ".jsonl.gz", CompressionGzip.Extension())
	assert.Equal(t, "application/zstd", CompressionZstd.ContentType())
}
