// Package redis implements a remote cache backend on Redis. Entries carry the
// same envelope framing as the file backend; the store-level TTL mirrors the
// entry TTL so Redis evicts on its own.
package redis

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/vikyol/awsideman-cache/backend"
	"github.com/vikyol/awsideman-cache/internal/envelope"
	"github.com/vikyol/awsideman-cache/log"
	"github.com/vikyol/awsideman-cache/secure"
)

const (
	defaultTTL    = time.Hour
	defaultPrefix = "awsideman:cache:"
)

// Config tunes the redis backend.
type Config struct {
	// Client is required. Set CloseClient only when this backend
	// exclusively owns it.
	Client      goredis.UniversalClient
	CloseClient bool
	// Prefix namespaces keys in a shared instance. "" => "awsideman:cache:".
	Prefix string
	// DefaultTTL applies when Set is called with ttl <= 0. 0 => 1h.
	DefaultTTL time.Duration
	// Logger is optional; nil disables logging.
	Logger log.Logger
}

type Backend struct {
	rdb         goredis.UniversalClient
	closeClient bool
	prefix      string
	defaultTTL  time.Duration
	log         log.Logger
}

var _ backend.Backend = (*Backend)(nil)

func New(cfg Config) (*Backend, error) {
	if cfg.Client == nil {
		return nil, backend.NewError(backend.TypeRedis, "new", "client is required", nil)
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	ttl := cfg.DefaultTTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Backend{
		rdb:         cfg.Client,
		closeClient: cfg.CloseClient,
		prefix:      prefix,
		defaultTTL:  ttl,
		log:         log.OrNop(cfg.Logger),
	}, nil
}

func (b *Backend) storageKey(key string) string { return b.prefix + key }

func (b *Backend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := backend.ValidateKey(backend.TypeRedis, "get", key); err != nil {
		return nil, false, err
	}
	raw, err := b.rdb.Get(ctx, b.storageKey(key)).Bytes()
	if err == goredis.Nil {
		return nil, false, nil
	}
	if err != nil {
		if isTransient(err) {
			b.log.Warn("redis get degraded to miss", log.Fields{"key": secure.Redact(key)})
			return nil, false, nil
		}
		return nil, false, backend.NewError(backend.TypeRedis, "get", "get entry", err)
	}
	meta, payload, err := envelope.Decode(raw)
	if err != nil || meta.Key != key {
		_ = b.rdb.Del(ctx, b.storageKey(key)).Err()
		return nil, false, nil
	}
	if meta.Expired(time.Now()) {
		_ = b.rdb.Del(ctx, b.storageKey(key)).Err()
		return nil, false, nil
	}
	return payload, true, nil
}

func (b *Backend) Set(ctx context.Context, key string, payload []byte, ttl time.Duration, operation string) error {
	if err := backend.ValidateSet(backend.TypeRedis, key, payload, ttl); err != nil {
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
		return backend.NewError(backend.TypeRedis, "set", "encode entry", err)
	}
	if err := b.rdb.Set(ctx, b.storageKey(key), raw, ttl).Err(); err != nil {
		return backend.NewError(backend.TypeRedis, "set", "set entry", err)
	}
	return nil
}

func (b *Backend) Invalidate(ctx context.Context, key string) error {
	if err := backend.ValidateKey(backend.TypeRedis, "invalidate", key); err != nil {
		return err
	}
	if err := b.rdb.Del(ctx, b.storageKey(key)).Err(); err != nil {
		if isTransient(err) {
			b.log.Warn("redis invalidate skipped", log.Fields{"key": secure.Redact(key)})
			return nil
		}
		return backend.NewError(backend.TypeRedis, "invalidate", "delete entry", err)
	}
	return nil
}

func (b *Backend) InvalidateAll(ctx context.Context) error {
	iter := b.rdb.Scan(ctx, 0, b.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := b.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			return backend.NewError(backend.TypeRedis, "invalidate_all", "delete entry", err)
		}
	}
	if err := iter.Err(); err != nil {
		return backend.NewError(backend.TypeRedis, "invalidate_all", "scan keys", err)
	}
	return nil
}

func (b *Backend) Stats(ctx context.Context) (map[string]any, error) {
	var entries int
	var totalBytes int64
	iter := b.rdb.Scan(ctx, 0, b.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		entries++
		if n, err := b.rdb.StrLen(ctx, iter.Val()).Result(); err == nil {
			totalBytes += n
		}
	}
	if err := iter.Err(); err != nil {
		return nil, backend.NewError(backend.TypeRedis, "stats", "scan keys", err)
	}
	return map[string]any{
		"backend_type":     string(backend.TypeRedis),
		"prefix":           b.prefix,
		"valid_entries":    entries,
		"total_size_bytes": totalBytes,
	}, nil
}

func (b *Backend) HealthCheck(ctx context.Context) bool {
	return b.rdb.Ping(ctx).Err() == nil
}

// Close releases the underlying client only when this backend owns it.
func (b *Backend) Close(context.Context) error {
	if b.closeClient {
		if err := b.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}

// isTransient reports server-side conditions reads treat as misses, such as a
// replica still loading its dataset.
func isTransient(err error) bool {
	var rerr goredis.Error
	if errors.As(err, &rerr) {
		msg := rerr.Error()
		return len(msg) >= 7 && (msg[:7] == "LOADING" || msg[:7] == "BUSYKEY")
	}
	return false
}
