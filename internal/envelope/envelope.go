// Package envelope implements the cache entry framing shared by the file,
// memory and redis backends: a 4-byte big-endian metadata length, a UTF-8
// JSON metadata document, then the opaque payload. A legacy all-JSON envelope
// is still readable for entries written before payloads could hold ciphertext.
package envelope

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"time"
)

var ErrCorrupt = errors.New("envelope: corrupt entry")

// Meta describes a stored entry. CreatedAt is epoch seconds; TTL is seconds.
type Meta struct {
	Key       string `json:"key"`
	Operation string `json:"operation"`
	CreatedAt int64  `json:"created_at"`
	TTL       int64  `json:"ttl"`
}

// Expired reports whether the entry is logically absent at now.
func (m Meta) Expired(now time.Time) bool {
	if m.TTL <= 0 {
		return false
	}
	return now.Unix() > m.CreatedAt+m.TTL
}

// ExpiresAt returns the absolute expiry time (zero when the entry never expires).
func (m Meta) ExpiresAt() time.Time {
	if m.TTL <= 0 {
		return time.Time{}
	}
	return time.Unix(m.CreatedAt+m.TTL, 0)
}

// legacy is the historical plain-JSON envelope. Data holds the payload as a
// raw JSON value; it predates binary (already encrypted) payloads.
type legacy struct {
	Data      json.RawMessage `json:"data"`
	CreatedAt int64           `json:"created_at"`
	TTL       int64           `json:"ttl"`
	Key       string          `json:"key"`
	Operation string          `json:"operation"`
}

// Encode frames meta and payload as [u32 BE len][meta JSON][payload].
func Encode(m Meta, payload []byte) ([]byte, error) {
	mb, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 4+len(mb)+len(payload))
	binary.BigEndian.PutUint32(out[:4], uint32(len(mb)))
	copy(out[4:], mb)
	copy(out[4+len(mb):], payload)
	return out, nil
}

// Decode parses either envelope format. The binary header is attempted first;
// on any structural failure the legacy format is tried. ErrCorrupt means the
// bytes match neither and the entry should be discarded.
func Decode(b []byte) (Meta, []byte, error) {
	if m, payload, err := decodeBinary(b); err == nil {
		return m, payload, nil
	}
	if m, payload, err := decodeLegacy(b); err == nil {
		return m, payload, nil
	}
	return Meta{}, nil, ErrCorrupt
}

func decodeBinary(b []byte) (Meta, []byte, error) {
	if len(b) < 4 {
		return Meta{}, nil, ErrCorrupt
	}
	mlen := int(binary.BigEndian.Uint32(b[:4]))
	if mlen <= 0 || mlen > len(b)-4 {
		return Meta{}, nil, ErrCorrupt
	}
	var m Meta
	if err := json.Unmarshal(b[4:4+mlen], &m); err != nil {
		return Meta{}, nil, ErrCorrupt
	}
	if m.Key == "" || m.CreatedAt <= 0 {
		return Meta{}, nil, ErrCorrupt
	}
	return m, b[4+mlen:], nil
}

func decodeLegacy(b []byte) (Meta, []byte, error) {
	var l legacy
	if err := json.Unmarshal(b, &l); err != nil {
		return Meta{}, nil, ErrCorrupt
	}
	if l.Key == "" || l.CreatedAt <= 0 || l.Data == nil {
		return Meta{}, nil, ErrCorrupt
	}
	m := Meta{
		Key:       l.Key,
		Operation: l.Operation,
		CreatedAt: l.CreatedAt,
		TTL:       l.TTL,
	}
	return m, []byte(l.Data), nil
}
