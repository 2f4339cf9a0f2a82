package awscache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vikyol/awsideman-cache/backend"
	"github.com/vikyol/awsideman-cache/backend/dynamo"
	"github.com/vikyol/awsideman-cache/backend/file"
	"github.com/vikyol/awsideman-cache/backend/hybrid"
	"github.com/vikyol/awsideman-cache/backend/memory"
	"github.com/vikyol/awsideman-cache/backend/redis"
	"github.com/vikyol/awsideman-cache/codec"
	"github.com/vikyol/awsideman-cache/crypto"
	"github.com/vikyol/awsideman-cache/keys"
	"github.com/vikyol/awsideman-cache/log"
)

// NewBackend builds the backend Config selects. For the hybrid backend a
// local-tier construction failure degrades to the remote tier alone; the
// remote tier is authoritative and its failure is fatal.
func NewBackend(ctx context.Context, cfg Config) (backend.Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := log.OrNop(cfg.Logger)

	switch cfg.Backend {
	case backend.TypeFile:
		return newFileBackend(cfg, logger)

	case backend.TypeDynamo:
		return dynamo.New(dynamo.Config{
			Client:     cfg.Dynamo.Client,
			Table:      cfg.Dynamo.Table,
			DefaultTTL: cfg.DefaultTTL,
			Logger:     logger,
		})

	case backend.TypeMemory:
		return memory.New(memory.Config{
			MaxCostBytes: cfg.Memory.MaxCostBytes,
			DefaultTTL:   cfg.DefaultTTL,
			Logger:       logger,
		})

	case backend.TypeRedis:
		return redis.New(redis.Config{
			Client:      cfg.Redis.Client,
			CloseClient: cfg.Redis.CloseClient,
			Prefix:      cfg.Redis.Prefix,
			DefaultTTL:  cfg.DefaultTTL,
			Logger:      logger,
		})

	case backend.TypeHybrid:
		remote, err := dynamo.New(dynamo.Config{
			Client:     cfg.Dynamo.Client,
			Table:      cfg.Dynamo.Table,
			DefaultTTL: cfg.DefaultTTL,
			Logger:     logger,
		})
		if err != nil {
			return nil, err
		}
		local, err := newHybridLocal(cfg, logger)
		if err != nil {
			logger.Warn("hybrid local tier unavailable; using remote only", log.Fields{
				"error": err.Error(),
			})
			return remote, nil
		}
		return hybrid.New(hybrid.Config{
			Local:    local,
			Remote:   remote,
			LocalTTL: cfg.Hybrid.LocalTTL,
			Logger:   logger,
		})

	default:
		return nil, fmt.Errorf("awscache: backend %q: %w", cfg.Backend, ErrUnknownBackend)
	}
}

func newHybridLocal(cfg Config, logger log.Logger) (backend.Backend, error) {
	if cfg.Hybrid.LocalTier == backend.TypeMemory {
		return memory.New(memory.Config{
			MaxCostBytes: cfg.Memory.MaxCostBytes,
			DefaultTTL:   cfg.Hybrid.LocalTTL,
			Logger:       logger,
		})
	}
	return newFileBackend(cfg, logger)
}

func newFileBackend(cfg Config, logger log.Logger) (backend.Backend, error) {
	dir := cfg.File.Dir
	if dir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			return nil, backend.NewError(backend.TypeFile, "new", "resolve user cache directory", err)
		}
		dir = filepath.Join(base, "awsideman")
	}
	return file.New(file.Config{
		Dir:        dir,
		Profile:    coalesce(cfg.File.Profile, "default"),
		DefaultTTL: cfg.DefaultTTL,
		Logger:     logger,
	})
}

// NewProvider builds the encryption provider EncryptionConfig selects. The
// key provider is consumed by the key-backed algorithms and may be nil
// otherwise.
func NewProvider(cfg EncryptionConfig, kp keys.KeyProvider) (crypto.Provider, error) {
	c := cfg.Codec
	if c == nil {
		c = codec.JSON{}
	}
	if !cfg.Enabled {
		return crypto.NewNone(c), nil
	}

	var (
		base crypto.Provider
		err  error
	)
	switch coalesce(cfg.Algorithm, crypto.AlgorithmManagedGCM) {
	case crypto.AlgorithmNone:
		base = crypto.NewNone(c)
	case crypto.AlgorithmAESCBC:
		base, err = crypto.NewAESCBC(kp, c)
	case crypto.AlgorithmPasswordGCM:
		base, err = crypto.NewPasswordGCM(cfg.Password, c)
	case crypto.AlgorithmManagedGCM:
		base, err = crypto.NewManagedGCM(kp, c, cfg.Logger)
	default:
		return nil, fmt.Errorf("awscache: algorithm %q: %w", cfg.Algorithm, ErrUnknownAlgorithm)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Transit {
		return crypto.NewTransit(base, crypto.TransitOptions{
			ReplayWindow: cfg.ReplayWindow,
			Codec:        c,
			Logger:       cfg.Logger,
		})
	}
	return base, nil
}
