// Package file implements the local cache backend. Entries live as individual
// files named by the SHA-256 of their key inside a profile-scoped directory.
package file

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vikyol/awsideman-cache/backend"
	"github.com/vikyol/awsideman-cache/internal/envelope"
	"github.com/vikyol/awsideman-cache/log"
	"github.com/vikyol/awsideman-cache/secure"
)

const defaultTTL = time.Hour

// Config tunes the file backend.
type Config struct {
	// Dir is the base cache directory. Required.
	Dir string
	// Profile scopes entries under Dir (one subdirectory per AWS profile).
	Profile string
	// DefaultTTL applies when Set is called with ttl <= 0. 0 => 1h.
	DefaultTTL time.Duration
	// Logger is optional; nil disables logging.
	Logger log.Logger
}

// Backend stores entries on the local filesystem. Writes are atomic
// (temp file + rename) so concurrent writers to the same key are race-safe:
// last rename wins and readers never observe a partial file.
type Backend struct {
	dir        string
	defaultTTL time.Duration
	log        log.Logger
}

var _ backend.Backend = (*Backend)(nil)

// New creates the profile-scoped cache directory and returns the backend.
func New(cfg Config) (*Backend, error) {
	if cfg.Dir == "" {
		return nil, backend.NewError(backend.TypeFile, "new", "cache directory is required", nil)
	}
	dir := cfg.Dir
	if cfg.Profile != "" {
		dir = filepath.Join(dir, cfg.Profile)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, backend.NewError(backend.TypeFile, "new", "create cache directory", err)
	}
	ttl := cfg.DefaultTTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Backend{
		dir:        dir,
		defaultTTL: ttl,
		log:        log.OrNop(cfg.Logger),
	}, nil
}

// Dir returns the resolved cache directory.
func (b *Backend) Dir() string { return b.dir }

func (b *Backend) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(b.dir, hex.EncodeToString(sum[:]))
}

func (b *Backend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := backend.ValidateKey(backend.TypeFile, "get", key); err != nil {
		return nil, false, err
	}
	if err := ctx.Err(); err != nil {
		return nil, false, backend.NewError(backend.TypeFile, "get", "context done", err)
	}

	path := b.path(key)
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, backend.NewError(backend.TypeFile, "get", "read cache file", err)
	}

	meta, payload, err := envelope.Decode(raw)
	if err != nil || meta.Key != key {
		// Corrupt entries self-heal: delete and report a miss.
		b.log.Warn("removing corrupt cache file", log.Fields{"key": secure.Redact(key)})
		_ = os.Remove(path)
		return nil, false, nil
	}
	if meta.Expired(time.Now()) {
		// Lazy expiry: the read that discovers it removes the record.
		_ = os.Remove(path)
		return nil, false, nil
	}
	return payload, true, nil
}

func (b *Backend) Set(ctx context.Context, key string, payload []byte, ttl time.Duration, operation string) error {
	if err := backend.ValidateSet(backend.TypeFile, key, payload, ttl); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return backend.NewError(backend.TypeFile, "set", "context done", err)
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
		return backend.NewError(backend.TypeFile, "set", "encode entry", err)
	}
	return b.writeAtomic(b.path(key), raw)
}

// writeAtomic writes to a temp file in the same directory and renames it into
// place. The temp file is removed on every failure path.
func (b *Backend) writeAtomic(path string, raw []byte) error {
	tmp, err := os.CreateTemp(b.dir, ".tmp-*")
	if err != nil {
		return backend.NewError(backend.TypeFile, "set", "create temp file", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if tmpName != "" {
			_ = os.Remove(tmpName)
		}
	}()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return backend.NewError(backend.TypeFile, "set", "restrict temp file mode", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return backend.NewError(backend.TypeFile, "set", "write temp file", err)
	}
	if err := tmp.Close(); err != nil {
		return backend.NewError(backend.TypeFile, "set", "close temp file", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return backend.NewError(backend.TypeFile, "set", "rename into place", err)
	}
	tmpName = "" // renamed; nothing to clean up
	return nil
}

func (b *Backend) Invalidate(ctx context.Context, key string) error {
	if err := backend.ValidateKey(backend.TypeFile, "invalidate", key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return backend.NewError(backend.TypeFile, "invalidate", "context done", err)
	}
	if err := os.Remove(b.path(key)); err != nil && !os.IsNotExist(err) {
		return backend.NewError(backend.TypeFile, "invalidate", "remove cache file", err)
	}
	return nil
}

func (b *Backend) InvalidateAll(ctx context.Context) error {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return backend.NewError(backend.TypeFile, "invalidate_all", "read cache directory", err)
	}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return backend.NewError(backend.TypeFile, "invalidate_all", "context done", err)
		}
		if e.IsDir() || !isEntryName(e.Name()) {
			continue
		}
		if err := os.Remove(filepath.Join(b.dir, e.Name())); err != nil && !os.IsNotExist(err) {
			return backend.NewError(backend.TypeFile, "invalidate_all", "remove cache file", err)
		}
	}
	return nil
}

func (b *Backend) Stats(ctx context.Context) (map[string]any, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, backend.NewError(backend.TypeFile, "stats", "read cache directory", err)
	}

	var valid, expired, corrupted int
	var totalBytes int64
	now := time.Now()
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, backend.NewError(backend.TypeFile, "stats", "context done", err)
		}
		if e.IsDir() || !isEntryName(e.Name()) {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(b.dir, e.Name()))
		if err != nil {
			continue
		}
		totalBytes += int64(len(raw))
		meta, _, err := envelope.Decode(raw)
		switch {
		case err != nil:
			corrupted++
		case meta.Expired(now):
			expired++
		default:
			valid++
		}
	}
	return map[string]any{
		"backend_type":      string(backend.TypeFile),
		"directory":         b.dir,
		"valid_entries":     valid,
		"expired_entries":   expired,
		"corrupted_entries": corrupted,
		"total_size_bytes":  totalBytes,
	}, nil
}

// HealthCheck probes directory access without mutating anything.
func (b *Backend) HealthCheck(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	info, err := os.Stat(b.dir)
	if err != nil || !info.IsDir() {
		return false
	}
	if _, err := os.ReadDir(b.dir); err != nil {
		return false
	}
	return true
}

func (b *Backend) Close(context.Context) error { return nil }

// isEntryName reports whether name looks like a hex SHA-256 entry file.
func isEntryName(name string) bool {
	if len(name) != sha256.Size*2 {
		return false
	}
	if _, err := hex.DecodeString(name); err != nil {
		return false
	}
	return true
}

// String implements fmt.Stringer for diagnostics.
func (b *Backend) String() string {
	return fmt.Sprintf("file backend at %s", b.dir)
}
