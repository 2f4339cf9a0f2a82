// Package memory implements an in-process cache backend on ristretto. It
// serves as the hybrid local tier where no disk should be touched, and as a
// fast test double with the full backend contract.
package memory

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/vikyol/awsideman-cache/backend"
	"github.com/vikyol/awsideman-cache/internal/envelope"
	"github.com/vikyol/awsideman-cache/log"
)

const defaultTTL = 15 * time.Minute

// Config tunes the in-memory backend.
type Config struct {
	// MaxCostBytes bounds memory use. 0 => 64MB.
	MaxCostBytes int64
	// DefaultTTL applies when Set is called with ttl <= 0. 0 => 15m.
	DefaultTTL time.Duration
	// Logger is optional; nil disables logging.
	Logger log.Logger
}

type Backend struct {
	c          *ristretto.Cache
	defaultTTL time.Duration
	log        log.Logger
}

var _ backend.Backend = (*Backend)(nil)

func New(cfg Config) (*Backend, error) {
	maxCost := cfg.MaxCostBytes
	if maxCost <= 0 {
		maxCost = 64 << 20
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e6,
		MaxCost:     maxCost,
		BufferItems: 64,
		Metrics:     true,
	})
	if err != nil {
		return nil, backend.NewError(backend.TypeMemory, "new", "create ristretto cache", err)
	}
	ttl := cfg.DefaultTTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Backend{c: c, defaultTTL: ttl, log: log.OrNop(cfg.Logger)}, nil
}

func (b *Backend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := backend.ValidateKey(backend.TypeMemory, "get", key); err != nil {
		return nil, false, err
	}
	v, ok := b.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	raw, _ := v.([]byte)
	if raw == nil {
		// self-heal: drop unexpected entry shape
		b.c.Del(key)
		return nil, false, nil
	}
	meta, payload, err := envelope.Decode(raw)
	if err != nil || meta.Key != key {
		b.c.Del(key)
		return nil, false, nil
	}
	if meta.Expired(time.Now()) {
		b.c.Del(key)
		return nil, false, nil
	}
	return payload, true, nil
}

func (b *Backend) Set(ctx context.Context, key string, payload []byte, ttl time.Duration, operation string) error {
	if err := backend.ValidateSet(backend.TypeMemory, key, payload, ttl); err != nil {
		return err
	}
	if ttl == 0 {
		ttl = b.defaultTTL
	}
	meta := envelope.Meta{
		Key:       key,
		Operation: operation,
		CreatedAt: time.Now().Unix(),
		TTL:       int64(ttl / time.Second),
	}
	raw, err := envelope.Encode(meta, payload)
	if err != nil {
		return backend.NewError(backend.TypeMemory, "set", "encode entry", err)
	}
	if !b.c.SetWithTTL(key, raw, int64(len(raw)), ttl) {
		b.log.Debug("set rejected under memory pressure", log.Fields{"key": key})
	}
	b.c.Wait()
	return nil
}

func (b *Backend) Invalidate(ctx context.Context, key string) error {
	if err := backend.ValidateKey(backend.TypeMemory, "invalidate", key); err != nil {
		return err
	}
	b.c.Del(key)
	return nil
}

func (b *Backend) InvalidateAll(context.Context) error {
	b.c.Clear()
	return nil
}

func (b *Backend) Stats(context.Context) (map[string]any, error) {
	m := b.c.Metrics
	return map[string]any{
		"backend_type":  string(backend.TypeMemory),
		"hits":          m.Hits(),
		"misses":        m.Misses(),
		"keys_added":    m.KeysAdded(),
		"keys_evicted":  m.KeysEvicted(),
		"cost_added":    m.CostAdded(),
		"cost_evicted":  m.CostEvicted(),
		"valid_entries": int(m.KeysAdded() - m.KeysEvicted()),
	}, nil
}

func (b *Backend) HealthCheck(ctx context.Context) bool { return ctx.Err() == nil }

func (b *Backend) Close(context.Context) error {
	b.c.Wait()
	b.c.Close()
	return nil
}
