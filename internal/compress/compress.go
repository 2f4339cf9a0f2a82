// Package compress wraps gzip for cache payloads headed to item-size-limited
// stores. Compression is only kept when it actually shrinks the payload.
package compress

import (
	"bytes"
	"compress/gzip"
	"errors"
	"io"
)

// ErrTooLarge guards against decompression bombs from a shared store.
var ErrTooLarge = errors.New("compress: decompressed data exceeds maximum size")

// MaxDecompressed bounds how much a single cache entry may inflate to (64 MB).
const MaxDecompressed = 64 << 20

// Gzip compresses data. The bool reports whether the compressed form is
// smaller; callers should store the original when it is not.
func Gzip(data []byte) ([]byte, bool, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, false, err
	}
	if err := w.Close(); err != nil {
		return nil, false, err
	}
	if buf.Len() >= len(data) {
		return data, false, nil
	}
	return buf.Bytes(), true, nil
}

// Gunzip reverses Gzip, refusing to inflate past MaxDecompressed.
func Gunzip(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out, err := io.ReadAll(io.LimitReader(r, MaxDecompressed+1))
	if err != nil {
		return nil, err
	}
	if len(out) > MaxDecompressed {
		return nil, ErrTooLarge
	}
	return out, nil
}
