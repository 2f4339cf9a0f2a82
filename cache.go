package awscache

import (
	"context"
	"maps"
	"time"

	"github.com/vikyol/awsideman-cache/backend"
	"github.com/vikyol/awsideman-cache/crypto"
	"github.com/vikyol/awsideman-cache/keys"
	"github.com/vikyol/awsideman-cache/log"
	"github.com/vikyol/awsideman-cache/secure"
)

// CacheOptions wire a facade together. Backend and Provider are required.
type CacheOptions struct {
	Backend  backend.Backend
	Provider crypto.Provider

	// DefaultTTL applies when an operation has no table entry. 0 => 1h.
	DefaultTTL time.Duration
	// OperationTTLs overrides DefaultTTL per operation name.
	OperationTTLs map[string]time.Duration

	// Logger is optional; nil disables logging.
	Logger log.Logger
}

// Cache is the value-level facade: values are serialized and encrypted by the
// provider, then stored as opaque bytes in the backend. TTLs resolve from a
// per-operation table.
type Cache struct {
	b  backend.Backend
	p  crypto.Provider
	dt time.Duration
	ot map[string]time.Duration

	log log.Logger
}

// NewCache builds a facade from pre-constructed parts.
func NewCache(opts CacheOptions) (*Cache, error) {
	if opts.Backend == nil {
		return nil, ErrNilBackend
	}
	if opts.Provider == nil {
		return nil, ErrNilProvider
	}
	return &Cache{
		b:   opts.Backend,
		p:   opts.Provider,
		dt:  coalesce(opts.DefaultTTL, defaultTTL),
		ot:  maps.Clone(opts.OperationTTLs),
		log: log.OrNop(opts.Logger),
	}, nil
}

// New builds the backend and provider from configuration and wires the
// facade. kp may be nil when the selected algorithm needs no managed key.
func New(ctx context.Context, cfg Config, enc EncryptionConfig, kp keys.KeyProvider) (*Cache, error) {
	b, err := NewBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	p, err := NewProvider(enc, kp)
	if err != nil {
		_ = b.Close(ctx)
		return nil, err
	}
	return NewCache(CacheOptions{
		Backend:       b,
		Provider:      p,
		DefaultTTL:    cfg.DefaultTTL,
		OperationTTLs: cfg.OperationTTLs,
		Logger:        cfg.Logger,
	})
}

func (c *Cache) ttlFor(operation string) time.Duration {
	if ttl, ok := c.ot[operation]; ok && ttl > 0 {
		return ttl
	}
	return c.dt
}

// Get loads and decrypts the entry under key into v. A decryption failure is
// treated as corruption: the entry is invalidated and the call reports a
// miss, never the ciphertext or the failure detail.
func (c *Cache) Get(ctx context.Context, key string, v any) (bool, error) {
	data, ok, err := c.b.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := c.p.Decrypt(ctx, data, v); err != nil {
		c.log.Warn("stored entry failed decryption; invalidating", log.Fields{
			"key": secure.Redact(key),
		})
		if ierr := c.b.Invalidate(ctx, key); ierr != nil {
			c.log.Warn("invalidate after decrypt failure", log.Fields{
				"key": secure.Redact(key), "error": ierr.Error(),
			})
		}
		return false, nil
	}
	return true, nil
}

// Set encrypts v and stores it under key with the operation's TTL.
func (c *Cache) Set(ctx context.Context, key string, v any, operation string) error {
	return c.SetWithTTL(ctx, key, v, operation, c.ttlFor(operation))
}

// SetWithTTL is Set with an explicit TTL overriding the operation table.
func (c *Cache) SetWithTTL(ctx context.Context, key string, v any, operation string, ttl time.Duration) error {
	data, err := c.p.Encrypt(ctx, v)
	if err != nil {
		return err
	}
	return c.b.Set(ctx, key, data, ttl, operation)
}

// Invalidate removes one entry; a missing target is not an error.
func (c *Cache) Invalidate(ctx context.Context, key string) error {
	return c.b.Invalidate(ctx, key)
}

// InvalidateAll clears the backend.
func (c *Cache) InvalidateAll(ctx context.Context) error {
	return c.b.InvalidateAll(ctx)
}

// Stats reports backend counters plus the active encryption algorithm.
func (c *Cache) Stats(ctx context.Context) (map[string]any, error) {
	st, err := c.b.Stats(ctx)
	if err != nil {
		return nil, err
	}
	st["encryption"] = string(c.p.Type())
	return st, nil
}

// HealthCheck reports whether both the store and the encryption provider are
// usable.
func (c *Cache) HealthCheck(ctx context.Context) bool {
	return c.b.HealthCheck(ctx) && c.p.Available(ctx)
}

// Close releases backend resources.
func (c *Cache) Close(ctx context.Context) error {
	return c.b.Close(ctx)
}
