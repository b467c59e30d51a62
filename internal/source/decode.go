// Package source provides the line sources behind the analysis engine:
// log files on disk, per-user uploads, and a chain that tries each in turn.
package source

import (
	"bytes"
	"compress/bzip2"
	"errors"
	"fmt"
	"io"
	"strings"

	ft "github.com/h2non/filetype"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// DefaultMaxDecodedSize bounds decompressed content (256MB).
const DefaultMaxDecodedSize = 256 * 1024 * 1024

// InvalidPolicy decides what happens to bytes that are not valid text.
type InvalidPolicy int

const (
	// Replace substitutes U+FFFD for each invalid sequence.
	Replace InvalidPolicy = iota
	// Drop removes invalid sequences.
	Drop
)

// ParsePolicy parses "replace" or "drop". Empty means Replace.
func ParsePolicy(s string) (InvalidPolicy, error) {
	switch strings.ToLower(s) {
	case "", "replace":
		return Replace, nil
	case "drop":
		return Drop, nil
	default:
		return Replace, fmt.Errorf("invalid encoding policy %q (want replace or drop)", s)
	}
}

func (p InvalidPolicy) String() string {
	if p == Drop {
		return "drop"
	}
	return "replace"
}

// ErrTooLarge is returned when decompressed content exceeds the limit.
var ErrTooLarge = errors.New("decoded content too large")

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Decoder turns raw log content into lines.
type Decoder struct {
	Policy  InvalidPolicy
	MaxSize int64
}

// Lines decompresses data if needed, decodes it as text and splits it into
// lines. Each line keeps its terminator; a final empty segment is dropped.
// Content with a UTF-16 byte order mark is transcoded, everything else is
// treated as UTF-8.
func (d Decoder) Lines(data []byte) ([]string, error) {
	raw, err := d.decompress(data)
	if err != nil {
		return nil, err
	}
	text, err := d.decodeText(raw)
	if err != nil {
		return nil, err
	}
	return SplitLines(text), nil
}

// Compressed reports the compression format of data: "gzip", "x-bzip2",
// "zstd", or "" for none.
func Compressed(data []byte) string {
	if bytes.HasPrefix(data, zstdMagic) {
		return "zstd"
	}
	tp, err := ft.Match(data)
	if err != nil {
		return ""
	}
	switch tp.MIME.Subtype {
	case "gzip", "x-bzip2":
		return tp.MIME.Subtype
	}
	return ""
}

func (d Decoder) decompress(data []byte) ([]byte, error) {
	var r io.Reader
	switch Compressed(data) {
	case "gzip":
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer zr.Close()
		r = zr
	case "x-bzip2":
		r = bzip2.NewReader(bytes.NewReader(data))
	case "zstd":
		zr, err := zstd.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		defer zr.Close()
		r = zr
	default:
		return data, nil
	}

	limit := d.MaxSize
	if limit <= 0 {
		limit = DefaultMaxDecodedSize
	}
	out, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("decompress: %w", err)
	}
	if int64(len(out)) > limit {
		return nil, ErrTooLarge
	}
	return out, nil
}

func (d Decoder) decodeText(raw []byte) (string, error) {
	// BOMOverride switches to UTF-16 when a BOM is present and strips a
	// UTF-8 BOM. Without one the fallback decides what invalid bytes become.
	var fallback transform.Transformer = unicode.UTF8.NewDecoder()
	if d.Policy == Drop {
		fallback = encoding.Nop.NewDecoder()
	}
	out, _, err := transform.Bytes(unicode.BOMOverride(fallback), raw)
	if err != nil {
		return "", fmt.Errorf("decode text: %w", err)
	}
	s := string(out)
	if d.Policy == Drop {
		s = strings.ToValidUTF8(s, "")
	}
	return s, nil
}

// SplitLines splits text after each "\n". A trailing empty segment is not
// returned, so "a\nb\n" yields two lines.
func SplitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.SplitAfter(text, "\n")
	if n := len(lines); lines[n-1] == "" {
		lines = lines[:n-1]
	}
	return lines
}
