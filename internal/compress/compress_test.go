package compress

import (
	"bytes"
	"testing"
)

func TestGzipRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte("aws identity center cache payload "), 200)

	packed, compressed, err := Gzip(data)
	if err != nil {
		t.Fatalf("Gzip: %v", err)
	}
	if !compressed {
		t.Fatal("repetitive payload should compress")
	}
	if len(packed) >= len(data) {
		t.Fatalf("compressed %d >= original %d", len(packed), len(data))
	}

	out, err := Gunzip(packed)
	if err != nil {
		t.Fatalf("Gunzip: %v", err)
	}
	if !bytes.Equal(out, data) {
		t.Fatal("round trip mismatch")
	}
}

func TestGzipKeepsIncompressible(t *testing.T) {
	// Already high-entropy; gzip framing only adds overhead.
	data := []byte{0x01, 0x9f, 0x33, 0xc4}

	packed, compressed, err := Gzip(data)
	if err != nil {
		t.Fatalf("Gzip: %v", err)
	}
	if compressed {
		t.Fatal("tiny payload should not be marked compressed")
	}
	if !bytes.Equal(packed, data) {
		t.Fatal("original bytes should pass through unchanged")
	}
}

func TestGunzipRejectsGarbage(t *testing.T) {
	if _, err := Gunzip([]byte("definitely not gzip")); err == nil {
		t.Fatal("expected error for non-gzip input")
	}
}
