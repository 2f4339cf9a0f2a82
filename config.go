package awscache

import (
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/vikyol/awsideman-cache/backend"
	"github.com/vikyol/awsideman-cache/backend/dynamo"
	"github.com/vikyol/awsideman-cache/codec"
	"github.com/vikyol/awsideman-cache/crypto"
	"github.com/vikyol/awsideman-cache/log"
)

const defaultTTL = time.Hour

// Config selects and tunes a backend. Only the section matching Backend is
// consulted; the rest may be zero.
type Config struct {
	// Backend selects the store: file, dynamo, hybrid, memory or redis.
	Backend backend.Type

	// DefaultTTL applies when a Set carries no explicit TTL. 0 => 1h.
	DefaultTTL time.Duration

	// OperationTTLs overrides DefaultTTL per operation name.
	OperationTTLs map[string]time.Duration

	File   FileConfig
	Dynamo DynamoConfig
	Hybrid HybridConfig
	Memory MemoryConfig
	Redis  RedisConfig

	// Logger is optional; nil disables logging.
	Logger log.Logger
}

// FileConfig tunes the on-disk backend.
type FileConfig struct {
	// Dir is the cache root. "" => os.UserCacheDir()/awsideman.
	Dir string
	// Profile scopes entries to one AWS profile. "" => "default".
	Profile string
}

// DynamoConfig tunes the DynamoDB backend. The client is injected so the
// caller controls region, profile and credentials.
type DynamoConfig struct {
	// Client is required when Backend is dynamo or hybrid.
	Client dynamo.Client
	// Table is the cache table name. Required with Client.
	Table string
}

// HybridConfig tunes the two-tier backend. The remote tier is always
// DynamoDB and uses the Dynamo section.
type HybridConfig struct {
	// LocalTier selects the fast tier: file or memory. "" => file.
	LocalTier backend.Type
	// LocalTTL caps how long promoted entries live locally. 0 => 15m.
	LocalTTL time.Duration
}

// MemoryConfig tunes the in-process backend.
type MemoryConfig struct {
	// MaxCostBytes bounds memory use. 0 => 64MB.
	MaxCostBytes int64
}

// RedisConfig tunes the Redis backend.
type RedisConfig struct {
	// Client is required when Backend is redis.
	Client goredis.UniversalClient
	// CloseClient hands client ownership to the backend.
	CloseClient bool
	// Prefix namespaces keys. "" => "awsideman:cache:".
	Prefix string
}

// EncryptionConfig selects a payload encryption provider.
type EncryptionConfig struct {
	// Enabled gates encryption entirely. False => pass-through provider.
	Enabled bool
	// Algorithm is one of crypto's Algorithm values. "" => aes-256-gcm.
	Algorithm crypto.Algorithm
	// Password is consumed by the pbkdf2 provider only.
	Password []byte
	// Transit additionally wraps the provider with anti-replay framing.
	Transit bool
	// ReplayWindow tunes the transit staleness warning. 0 => 10m.
	ReplayWindow time.Duration
	// Codec serializes values before encryption. nil => JSON.
	Codec codec.Codec
	// Logger is optional; nil disables logging.
	Logger log.Logger
}

// Validate reports the first configuration problem, if any.
func (c Config) Validate() error {
	switch c.Backend {
	case backend.TypeFile, backend.TypeMemory:
		return nil
	case backend.TypeDynamo:
		return c.Dynamo.validate()
	case backend.TypeHybrid:
		switch c.Hybrid.LocalTier {
		case "", backend.TypeFile, backend.TypeMemory:
		default:
			return fmt.Errorf("awscache: hybrid local tier %q: %w", c.Hybrid.LocalTier, ErrUnknownBackend)
		}
		return c.Dynamo.validate()
	case backend.TypeRedis:
		if c.Redis.Client == nil {
			return fmt.Errorf("awscache: redis backend requires a client")
		}
		return nil
	default:
		return fmt.Errorf("awscache: backend %q: %w", c.Backend, ErrUnknownBackend)
	}
}

func (c DynamoConfig) validate() error {
	if c.Client == nil {
		return fmt.Errorf("awscache: dynamo backend requires a client")
	}
	if c.Table == "" {
		return fmt.Errorf("awscache: dynamo backend requires a table name")
	}
	return nil
}
