package history

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Compression selects how an export is encoded.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionGzip Compression = "gzip"
	CompressionZstd Compression = "zstd"
)

// ErrUnknownCompression is returned for unsupported compression names.
var ErrUnknownCompression = errors.New("unknown compression")

// maxLine bounds a single exported entry when importing.
const maxLine = 64 << 20

// ParseCompression accepts "", "none", "gzip", "gz", "zstd" and "zst".
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return CompressionNone, nil
	case "gzip", "gz":
		return CompressionGzip, nil
	case "zstd", "zst":
		return CompressionZstd, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCompression, s)
	}
}

// ContentType returns the HTTP media type of an export.
func (c Compression) ContentType() string {
	switch c {
	case CompressionGzip:
		return "application/gzip"
	case CompressionZstd:
		return "application/zstd"
	default:
		return "application/x-ndjson"
	}
}

// Extension returns the file name suffix of an export.
func (c Compression) Extension() string {
	switch c {
	case CompressionGzip:
		return ".jsonl.gz"
	case CompressionZstd:
		return ".jsonl.zst"
	default:
		return ".jsonl"
	}
}

// nopCloser adds a no-op Close to a writer.
type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

func compressor(w io.Writer, c Compression) (io.WriteCloser, error) {
	switch c {
	case CompressionNone, "":
		return nopCloser{w}, nil
	case CompressionGzip:
		return gzip.NewWriter(w), nil
	case CompressionZstd:
		return zstd.NewWriter(w)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCompression, c)
	}
}

// Export writes entries to w as JSON Lines.
func Export(w io.Writer, entries []Entry, c Compression) error {
	cw, err := compressor(w, c)
	if err != nil {
		return err
	}

	for i := range entries {
		line, err := sonic.Marshal(&entries[i])
		if err != nil {
			_ = cw.Close()
			return fmt.Errorf("encode entry %d: %w", i, err)
		}
		line = append(line, '\n')
		if _, err := cw.Write(line); err != nil {
			_ = cw.Close()
			return fmt.Errorf("write entry %d: %w", i, err)
		}
	}
	return cw.Close()
}

// Import reads entries written by Export.
func Import(r io.Reader, c Compression) ([]Entry, error) {
	var src io.Reader
	switch c {
	case CompressionNone, "":
		src = r
	case CompressionGzip:
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("open gzip: %w", err)
		}
		defer gz.Close()
		src = gz
	case CompressionZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("open zstd: %w", err)
		}
		defer zr.Close()
		src = zr
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCompression, c)
	}

	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)

	var entries []Entry
	for n := 1; scanner.Scan(); n++ {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := sonic.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("decode line %d: %w", n, err)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read export: %w", err)
	}
	return entries, nil
}
