package memory

import (
	"bytes"
	"context"
	"testing"
	"time"
)

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := New(Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = b.Close(context.Background()) })
	return b
}

func TestRoundTrip(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	payload := []byte(`{"ids":[1,2,3]}`)

	if err := b.Set(ctx, "user:list:all", payload, time.Hour, "list_users"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok, err := b.Get(ctx, "user:list:all")
	if err != nil || !ok || !bytes.Equal(got, payload) {
		t.Fatalf("Get: %s ok=%v err=%v", got, ok, err)
	}
}

func TestMiss(t *testing.T) {
	b := newTestBackend(t)
	if _, ok, err := b.Get(context.Background(), "absent"); ok || err != nil {
		t.Fatalf("expected clean miss, got ok=%v err=%v", ok, err)
	}
}

func TestLazyExpiry(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	if err := b.Set(ctx, "short", []byte("v"), time.Second, "op"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, ok, _ := b.Get(ctx, "short"); !ok {
		t.Fatal("entry should be retrievable before expiry")
	}
	time.Sleep(1100 * time.Millisecond)
	if _, ok, err := b.Get(ctx, "short"); ok || err != nil {
		t.Fatalf("expired entry: ok=%v err=%v", ok, err)
	}
}

func TestInvalidate(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	if err := b.Set(ctx, "k", []byte("v"), time.Hour, "op"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := b.Invalidate(ctx, "k"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if _, ok, _ := b.Get(ctx, "k"); ok {
		t.Fatal("entry survived invalidation")
	}
	if err := b.Invalidate(ctx, "k"); err != nil {
		t.Fatalf("repeat Invalidate: %v", err)
	}
}

func TestInvalidateAll(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	for _, k := range []string{"a", "b", "c"} {
		if err := b.Set(ctx, k, []byte("v"), time.Hour, "op"); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}
	if err := b.InvalidateAll(ctx); err != nil {
		t.Fatalf("InvalidateAll: %v", err)
	}
	for _, k := range []string{"a", "b", "c"} {
		if _, ok, _ := b.Get(ctx, k); ok {
			t.Fatalf("entry %q survived", k)
		}
	}
}

func TestKeyValidation(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	for _, bad := range []string{"", "../up", "has space"} {
		if _, _, err := b.Get(ctx, bad); err == nil {
			t.Errorf("Get(%q) accepted", bad)
		}
		if err := b.Set(ctx, bad, []byte("v"), time.Hour, "op"); err == nil {
			t.Errorf("Set(%q) accepted", bad)
		}
	}
}
