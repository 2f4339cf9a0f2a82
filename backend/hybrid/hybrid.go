// Package hybrid composes a fast local backend with an authoritative remote
// backend. Reads go local-first; remote hits are promoted to the local tier
// when the key's access pattern justifies it. Writes always land on the
// remote tier first; the local tier is best-effort throughout.
package hybrid

import (
	"context"
	"time"

	"github.com/vikyol/awsideman-cache/backend"
	"github.com/vikyol/awsideman-cache/log"
	"github.com/vikyol/awsideman-cache/secure"
)

const defaultLocalTTL = 15 * time.Minute

// highFrequencyOps are cached locally on first write: list-shaped reads the
// CLI issues repeatedly within a session.
var highFrequencyOps = map[string]struct{}{
	"list_users":           {},
	"list_groups":          {},
	"list_accounts":        {},
	"list_permission_sets": {},
	"list_assignments":     {},
	"describe_user":        {},
	"describe_group":       {},
}

// Config tunes the hybrid backend.
type Config struct {
	// Local is the fast single-machine tier. Required.
	Local backend.Backend
	// Remote is the authoritative shared tier. Required.
	Remote backend.Backend
	// LocalTTL caps how long promoted entries live locally. 0 => 15m.
	LocalTTL time.Duration
	// Logger is optional; nil disables logging.
	Logger log.Logger
}

// Backend fans a single logical cache operation out to its two delegates.
type Backend struct {
	local    backend.Backend
	remote   backend.Backend
	localTTL time.Duration
	track    *tracker
	log      log.Logger
}

var _ backend.Backend = (*Backend)(nil)

func New(cfg Config) (*Backend, error) {
	if cfg.Local == nil || cfg.Remote == nil {
		return nil, backend.NewError(backend.TypeHybrid, "new", "local and remote backends are required", nil)
	}
	ttl := cfg.LocalTTL
	if ttl <= 0 {
		ttl = defaultLocalTTL
	}
	return &Backend{
		local:    cfg.Local,
		remote:   cfg.Remote,
		localTTL: ttl,
		track:    newTracker(2 * ttl),
		log:      log.OrNop(cfg.Logger),
	}, nil
}

// Get tries the local tier first; a local hit never consults the remote.
// On a remote hit the entry may be promoted into the local tier.
func (b *Backend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := backend.ValidateKey(backend.TypeHybrid, "get", key); err != nil {
		return nil, false, err
	}
	// The promotion decision looks at the state before this access; the
	// access itself is recorded regardless of hit or miss.
	prev, _ := b.track.peek(key)
	b.track.touch(key)

	payload, ok, err := b.local.Get(ctx, key)
	if err != nil {
		b.log.Warn("local get failed; falling through to remote", log.Fields{
			"key": secure.Redact(key), "error": err.Error(),
		})
	} else if ok {
		return payload, true, nil
	}

	payload, ok, err = b.remote.Get(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}

	if b.shouldPromote(prev) {
		if perr := b.local.Set(ctx, key, payload, b.localTTL, "promotion"); perr != nil {
			// Promotion is an optimization; the read already succeeded.
			b.log.Warn("promotion to local tier failed", log.Fields{
				"key": secure.Redact(key), "error": perr.Error(),
			})
		}
	}
	return payload, true, nil
}

// shouldPromote applies the access heuristic: repeat access, or any access
// recent relative to the local TTL.
func (b *Backend) shouldPromote(prev access) bool {
	if prev.count >= 2 {
		return true
	}
	return !prev.last.IsZero() && prev.last.After(time.Now().Add(-b.localTTL/4))
}

// Set writes remote-first; the remote tier is authoritative and its failure
// propagates. The local tier is written for keys seen before and for
// high-frequency operations, failures logged only.
func (b *Backend) Set(ctx context.Context, key string, payload []byte, ttl time.Duration, operation string) error {
	if err := backend.ValidateSet(backend.TypeHybrid, key, payload, ttl); err != nil {
		return err
	}

	if err := b.remote.Set(ctx, key, payload, ttl, operation); err != nil {
		return err
	}

	_, seen := b.track.peek(key)
	b.track.touch(key)
	if _, hot := highFrequencyOps[operation]; !seen && !hot {
		return nil
	}

	localTTL := b.localTTL
	if ttl > 0 && ttl < localTTL {
		localTTL = ttl
	}
	if err := b.local.Set(ctx, key, payload, localTTL, operation); err != nil {
		b.log.Warn("local write failed; remote write already durable", log.Fields{
			"key": secure.Redact(key), "error": err.Error(),
		})
	}
	return nil
}

// Invalidate attempts both tiers independently. A local failure is swallowed;
// a remote failure propagates, since local-only removal would leave the
// authoritative copy serving stale data to other machines.
func (b *Backend) Invalidate(ctx context.Context, key string) error {
	if err := backend.ValidateKey(backend.TypeHybrid, "invalidate", key); err != nil {
		return err
	}
	if err := b.local.Invalidate(ctx, key); err != nil {
		b.log.Warn("local invalidate failed", log.Fields{
			"key": secure.Redact(key), "error": err.Error(),
		})
	}
	if err := b.remote.Invalidate(ctx, key); err != nil {
		return err
	}
	b.track.forget(key)
	return nil
}

func (b *Backend) InvalidateAll(ctx context.Context) error {
	if err := b.local.InvalidateAll(ctx); err != nil {
		b.log.Warn("local invalidate-all failed", log.Fields{"error": err.Error()})
	}
	if err := b.remote.InvalidateAll(ctx); err != nil {
		return err
	}
	b.track.reset()
	return nil
}

// Stats merges both tiers and derives how much of the remote working set the
// local tier currently holds.
func (b *Backend) Stats(ctx context.Context) (map[string]any, error) {
	out := map[string]any{
		"backend_type":  string(backend.TypeHybrid),
		"tracked_keys":  b.track.len(),
		"local_ttl_sec": int64(b.localTTL / time.Second),
	}

	localEntries, remoteEntries := 0, 0
	if ls, err := b.local.Stats(ctx); err == nil {
		out["local"] = ls
		localEntries = intStat(ls, "valid_entries")
	} else {
		b.log.Warn("local stats failed", log.Fields{"error": err.Error()})
	}
	rs, err := b.remote.Stats(ctx)
	if err != nil {
		return nil, err
	}
	out["remote"] = rs
	remoteEntries = intStat(rs, "valid_entries")

	denom := remoteEntries
	if denom < 1 {
		denom = 1
	}
	out["local_hit_potential"] = float64(localEntries) / float64(denom)
	return out, nil
}

// HealthCheck favors availability: the hybrid is healthy while either tier is.
func (b *Backend) HealthCheck(ctx context.Context) bool {
	return b.local.HealthCheck(ctx) || b.remote.HealthCheck(ctx)
}

func (b *Backend) Close(ctx context.Context) error {
	lerr := b.local.Close(ctx)
	rerr := b.remote.Close(ctx)
	if rerr != nil {
		return rerr
	}
	return lerr
}

func intStat(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
