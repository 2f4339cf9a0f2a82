package hybrid

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vikyol/awsideman-cache/backend"
)

// fakeBackend is an in-memory tier with injectable failures.
type fakeBackend struct {
	entries map[string][]byte
	ttls    map[string]time.Duration

	getErr error
	setErr error
	delErr error

	sets int
	gets int
}

var _ backend.Backend = (*fakeBackend)(nil)

func newFakeBackend() *fakeBackend {
	return &fakeBackend{entries: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (f *fakeBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	f.gets++
	if f.getErr != nil {
		return nil, false, f.getErr
	}
	v, ok := f.entries[key]
	return v, ok, nil
}

func (f *fakeBackend) Set(_ context.Context, key string, payload []byte, ttl time.Duration, _ string) error {
	f.sets++
	if f.setErr != nil {
		return f.setErr
	}
	f.entries[key] = payload
	f.ttls[key] = ttl
	return nil
}

func (f *fakeBackend) Invalidate(_ context.Context, key string) error {
	if f.delErr != nil {
		return f.delErr
	}
	delete(f.entries, key)
	return nil
}

func (f *fakeBackend) InvalidateAll(context.Context) error {
	if f.delErr != nil {
		return f.delErr
	}
	f.entries = map[string][]byte{}
	return nil
}

func (f *fakeBackend) Stats(context.Context) (map[string]any, error) {
	return map[string]any{"valid_entries": len(f.entries)}, nil
}

func (f *fakeBackend) HealthCheck(context.Context) bool { return f.getErr == nil }
func (f *fakeBackend) Close(context.Context) error      { return nil }

func newTestHybrid(t *testing.T) (*Backend, *fakeBackend, *fakeBackend) {
	t.Helper()
	local, remote := newFakeBackend(), newFakeBackend()
	b, err := New(Config{Local: local, Remote: remote, LocalTTL: time.Minute})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return b, local, remote
}

func TestLocalHitSkipsRemote(t *testing.T) {
	b, local, remote := newTestHybrid(t)
	ctx := context.Background()
	local.entries["k"] = []byte("v")

	got, ok, err := b.Get(ctx, "k")
	if err != nil || !ok || !bytes.Equal(got, []byte("v")) {
		t.Fatalf("Get: %s ok=%v err=%v", got, ok, err)
	}
	if remote.gets != 0 {
		t.Fatal("local hit must not consult the remote tier")
	}
}

func TestPromotionAfterRepeatAccess(t *testing.T) {
	b, local, remote := newTestHybrid(t)
	ctx := context.Background()
	remote.entries["k"] = []byte("v")

	// First access: no prior history, so the remote hit stays remote.
	if _, ok, _ := b.Get(ctx, "k"); !ok {
		t.Fatal("remote hit expected")
	}
	if _, held := local.entries["k"]; held {
		t.Fatal("first-ever access should not promote")
	}

	// Second access: prior record is recent, so promotion applies.
	if _, ok, _ := b.Get(ctx, "k"); !ok {
		t.Fatal("remote hit expected")
	}
	if _, held := local.entries["k"]; !held {
		t.Fatal("recently re-accessed key should be promoted")
	}
	if ttl := local.ttls["k"]; ttl != time.Minute {
		t.Fatalf("promotion ttl = %v, want local ttl", ttl)
	}
}

func TestLocalFailureFallsThroughToRemote(t *testing.T) {
	b, local, remote := newTestHybrid(t)
	ctx := context.Background()
	local.getErr = errors.New("disk on fire")
	remote.entries["k"] = []byte("v")

	got, ok, err := b.Get(ctx, "k")
	if err != nil || !ok || !bytes.Equal(got, []byte("v")) {
		t.Fatalf("Get: %s ok=%v err=%v", got, ok, err)
	}
}

func TestPromotionFailureDoesNotFailGet(t *testing.T) {
	b, local, remote := newTestHybrid(t)
	ctx := context.Background()
	remote.entries["k"] = []byte("v")
	local.setErr = errors.New("read-only filesystem")

	b.Get(ctx, "k")
	if _, ok, err := b.Get(ctx, "k"); !ok || err != nil {
		t.Fatalf("promotion failure leaked into Get: ok=%v err=%v", ok, err)
	}
}

func TestSetRemoteFirst(t *testing.T) {
	b, local, remote := newTestHybrid(t)
	ctx := context.Background()

	if err := b.Set(ctx, "k", []byte("v"), time.Hour, "describe_account"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, held := remote.entries["k"]; !held {
		t.Fatal("remote tier should hold the entry")
	}
	// Unknown key, non-hot operation: local tier is skipped.
	if _, held := local.entries["k"]; held {
		t.Fatal("cold key with cold operation should not be cached locally")
	}
}

func TestSetHighFrequencyOperationCachesLocally(t *testing.T) {
	b, local, _ := newTestHybrid(t)
	ctx := context.Background()

	if err := b.Set(ctx, "users", []byte("v"), time.Hour, "list_users"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, held := local.entries["users"]; !held {
		t.Fatal("high-frequency operation should write the local tier")
	}
	// Caller TTL shorter than the local TTL wins.
	if err := b.Set(ctx, "users", []byte("v"), 10*time.Second, "list_users"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if ttl := local.ttls["users"]; ttl != 10*time.Second {
		t.Fatalf("local ttl = %v, want caller's shorter ttl", ttl)
	}
}

func TestSetSeenKeyCachesLocally(t *testing.T) {
	b, local, _ := newTestHybrid(t)
	ctx := context.Background()

	b.Get(ctx, "k") // records the access even as a miss
	if err := b.Set(ctx, "k", []byte("v"), time.Hour, "describe_account"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, held := local.entries["k"]; !held {
		t.Fatal("previously seen key should be cached locally")
	}
}

func TestSetRemoteFailurePropagates(t *testing.T) {
	b, local, remote := newTestHybrid(t)
	remote.setErr = errors.New("table gone")

	if err := b.Set(context.Background(), "k", []byte("v"), time.Hour, "list_users"); err == nil {
		t.Fatal("remote write failure must propagate")
	}
	if local.sets != 0 {
		t.Fatal("local tier must not be written when the remote write failed")
	}
}

func TestSetLocalFailureTolerated(t *testing.T) {
	b, local, remote := newTestHybrid(t)
	local.setErr = errors.New("disk full")

	if err := b.Set(context.Background(), "k", []byte("v"), time.Hour, "list_users"); err != nil {
		t.Fatalf("local failure leaked: %v", err)
	}
	if _, held := remote.entries["k"]; !held {
		t.Fatal("remote write should have landed")
	}
}

func TestInvalidate(t *testing.T) {
	b, local, remote := newTestHybrid(t)
	ctx := context.Background()
	local.entries["k"] = []byte("v")
	remote.entries["k"] = []byte("v")

	if err := b.Invalidate(ctx, "k"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if len(local.entries)+len(remote.entries) != 0 {
		t.Fatal("both tiers should be cleared")
	}

	// Local failure swallowed, remote failure propagates.
	local.delErr = errors.New("local broken")
	if err := b.Invalidate(ctx, "k"); err != nil {
		t.Fatalf("local invalidate failure leaked: %v", err)
	}
	remote.delErr = errors.New("remote broken")
	if err := b.Invalidate(ctx, "k"); err == nil {
		t.Fatal("remote invalidate failure must propagate")
	}
}

func TestStats(t *testing.T) {
	b, local, remote := newTestHybrid(t)
	ctx := context.Background()
	local.entries["a"] = []byte("v")
	remote.entries["a"] = []byte("v")
	remote.entries["b"] = []byte("v")

	st, err := b.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if got := st["local_hit_potential"].(float64); got != 0.5 {
		t.Fatalf("local_hit_potential = %v, want 0.5", got)
	}
}

func TestHealthCheckEitherTier(t *testing.T) {
	b, local, remote := newTestHybrid(t)
	ctx := context.Background()

	if !b.HealthCheck(ctx) {
		t.Fatal("both tiers healthy")
	}
	remote.getErr = errors.New("down")
	if !b.HealthCheck(ctx) {
		t.Fatal("one healthy tier should keep the hybrid healthy")
	}
	local.getErr = errors.New("down")
	if b.HealthCheck(ctx) {
		t.Fatal("both tiers down")
	}
}

func TestTrackerSweep(t *testing.T) {
	tr := newTracker(50 * time.Millisecond)
	tr.touch("a")
	time.Sleep(60 * time.Millisecond)
	// This touch crosses the retention interval and sweeps the stale record.
	tr.touch("b")
	if _, ok := tr.peek("a"); ok {
		t.Fatal("stale tracking record should be evicted")
	}
	if _, ok := tr.peek("b"); !ok {
		t.Fatal("fresh record should survive the sweep")
	}
}
