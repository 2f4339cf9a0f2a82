package envelope

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
	"time"
)

func TestEncodeDecodeBinary(t *testing.T) {
	meta := Meta{
		Key:       "user:list:all",
		Operation: "list_users",
		CreatedAt: time.Now().Unix(),
		TTL:       3600,
	}
	payload := []byte{0x00, 0x01, 0xff, 0xfe} // not valid JSON, like ciphertext

	b, err := Encode(meta, payload)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if got := binary.BigEndian.Uint32(b[:4]); int(got) != len(b)-4-len(payload) {
		t.Fatalf("metadata length prefix = %d, want %d", got, len(b)-4-len(payload))
	}

	gotMeta, gotPayload, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if gotMeta != meta {
		t.Fatalf("meta = %+v, want %+v", gotMeta, meta)
	}
	if !bytes.Equal(gotPayload, payload) {
		t.Fatalf("payload = %x, want %x", gotPayload, payload)
	}
}

func TestDecodeLegacy(t *testing.T) {
	raw := []byte(`{"data":{"ids":[1,2,3]},"created_at":1700000000,"ttl":3600,"key":"user:list:all","operation":"list_users"}`)

	meta, payload, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if meta.Key != "user:list:all" || meta.Operation != "list_users" || meta.TTL != 3600 {
		t.Fatalf("meta = %+v", meta)
	}
	if !bytes.Equal(payload, []byte(`{"ids":[1,2,3]}`)) {
		t.Fatalf("payload = %s", payload)
	}
}

func TestDecodeCorrupt(t *testing.T) {
	cases := map[string][]byte{
		"empty":            nil,
		"short":            {0x00, 0x01},
		"length past end":  {0x00, 0x00, 0xff, 0xff, 'x'},
		"zero length":      {0x00, 0x00, 0x00, 0x00, 'x'},
		"bad meta json":    append([]byte{0x00, 0x00, 0x00, 0x03}, []byte("abc")...),
		"legacy no key":    []byte(`{"data":"x","created_at":1700000000,"ttl":60}`),
		"legacy no data":   []byte(`{"created_at":1700000000,"ttl":60,"key":"k"}`),
		"legacy not json":  []byte("not json at all"),
		"meta missing key": append([]byte{0x00, 0x00, 0x00, 0x21}, []byte(`{"created_at":1700000000,"ttl":1}p`)...),
	}
	for name, raw := range cases {
		if _, _, err := Decode(raw); !errors.Is(err, ErrCorrupt) {
			t.Errorf("%s: err = %v, want ErrCorrupt", name, err)
		}
	}
}

func TestMetaExpired(t *testing.T) {
	now := time.Now()
	m := Meta{Key: "k", CreatedAt: now.Unix() - 10, TTL: 5}
	if !m.Expired(now) {
		t.Fatal("entry past created_at+ttl should be expired")
	}
	m.TTL = 60
	if m.Expired(now) {
		t.Fatal("entry within ttl should not be expired")
	}
	m.TTL = 0
	if m.Expired(now) {
		t.Fatal("ttl<=0 never expires")
	}
}

func TestMetaExpiresAt(t *testing.T) {
	m := Meta{Key: "k", CreatedAt: 1700000000, TTL: 60}
	if got := m.ExpiresAt().Unix(); got != 1700000060 {
		t.Fatalf("ExpiresAt = %d, want 1700000060", got)
	}
	m.TTL = 0
	if !m.ExpiresAt().IsZero() {
		t.Fatal("ttl<=0 should have zero expiry")
	}
}
