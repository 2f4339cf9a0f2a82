// Package keys generates, caches, stores and rotates the 256-bit cache
// encryption key. The primary store is the OS credential store (keychain,
// Secret Service, wincred); a permission-restricted file serves as fallback
// when no credential store is reachable (headless hosts, CI).
package keys

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/zalando/go-keyring"

	"github.com/vikyol/awsideman-cache/log"
	"github.com/vikyol/awsideman-cache/secure"
)

const (
	// KeySize is the length of the symmetric key in bytes (AES-256).
	KeySize = 32

	// DefaultService and DefaultUser identify the credential-store entry.
	DefaultService = "awsideman-cache"
	DefaultUser    = "encryption-key"

	// cacheTTL bounds how long a key stays in process memory.
	cacheTTL = 5 * time.Minute
)

var (
	// ErrStoreUnavailable indicates no credential store is reachable.
	ErrStoreUnavailable = errors.New("keys: credential store unavailable")

	// ErrMalformedKey indicates stored key material that is not a base64
	// 32-byte value.
	ErrMalformedKey = errors.New("keys: stored key material is malformed")
)

// KeyProvider hands out the current symmetric key. Returned slices are copies
// owned by the caller, who should zero them after use.
type KeyProvider interface {
	// Key returns the current 32-byte key, generating and storing one on
	// first use.
	Key(ctx context.Context) ([]byte, error)

	// Rotate generates and stores a new key, returning (old, fresh). Old
	// may be nil when no key existed. Callers re-encrypt with the fresh
	// key; old ciphertext is not migrated automatically.
	Rotate(ctx context.Context) (old, fresh []byte, err error)

	// Delete removes the stored key; the next Key call regenerates.
	Delete(ctx context.Context) error
}

// credentialStore is the narrow surface of the OS keyring this package uses.
type credentialStore interface {
	Get(service, user string) (string, error)
	Set(service, user, value string) error
	Delete(service, user string) error
}

// systemStore backs credentialStore with the platform keyring.
type systemStore struct{}

func (systemStore) Get(service, user string) (string, error) { return keyring.Get(service, user) }
func (systemStore) Set(service, user, v string) error        { return keyring.Set(service, user, v) }
func (systemStore) Delete(service, user string) error        { return keyring.Delete(service, user) }

func isNotFound(err error) bool {
	return errors.Is(err, keyring.ErrNotFound) || errors.Is(err, errFileKeyNotFound)
}

// Config tunes a Manager.
type Config struct {
	// Service and User select the credential-store entry. Defaults apply.
	Service string
	User    string
	// FallbackDir holds the key file when the credential store is
	// unreachable. Required for NewWithFallback.
	FallbackDir string
	// Logger is optional; nil disables logging.
	Logger log.Logger

	// store overrides the OS keyring in tests.
	store credentialStore
}

// Manager owns the credential-store key. The single cached-key slot is
// mutex-guarded and memory-locked while populated.
type Manager struct {
	store   credentialStore
	service string
	user    string
	log     log.Logger

	mu       sync.Mutex
	cached   *secure.Buffer
	cachedAt time.Time
}

var _ KeyProvider = (*Manager)(nil)

// New returns a Manager over the OS credential store.
func New(cfg Config) *Manager {
	store := cfg.store
	if store == nil {
		store = systemStore{}
	}
	service := cfg.Service
	if service == "" {
		service = DefaultService
	}
	user := cfg.User
	if user == "" {
		user = DefaultUser
	}
	return &Manager{
		store:   store,
		service: service,
		user:    user,
		log:     log.OrNop(cfg.Logger),
	}
}

func (m *Manager) Key(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cached != nil && time.Since(m.cachedAt) < cacheTTL {
		if b := m.cached.Bytes(); b != nil {
			return copyKey(b), nil
		}
	}
	key, err := m.loadOrCreateLocked()
	if err != nil {
		return nil, err
	}
	m.cacheLocked(key)
	return key, nil
}

func (m *Manager) Rotate(ctx context.Context) ([]byte, []byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var old []byte
	if enc, err := m.store.Get(m.service, m.user); err == nil {
		if k, derr := decodeKey(enc); derr == nil {
			old = k
		} else {
			m.log.Warn("discarding malformed key during rotation", nil)
		}
	} else if !isNotFound(err) {
		return nil, nil, fmt.Errorf("keys: read current key: %w", err)
	}

	newKey, err := generateKey()
	if err != nil {
		return nil, nil, err
	}
	if err := m.store.Set(m.service, m.user, base64.StdEncoding.EncodeToString(newKey)); err != nil {
		secure.Zero(newKey)
		return nil, nil, fmt.Errorf("keys: store rotated key: %w", err)
	}
	m.cacheLocked(newKey)
	m.log.Info("encryption key rotated", log.Fields{"service": m.service})
	return old, copyKey(newKey), nil
}

func (m *Manager) Delete(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.Delete(m.service, m.user); err != nil && !isNotFound(err) {
		return fmt.Errorf("keys: delete key: %w", err)
	}
	m.dropCacheLocked()
	return nil
}

func (m *Manager) loadOrCreateLocked() ([]byte, error) {
	enc, err := m.store.Get(m.service, m.user)
	switch {
	case err == nil:
		key, derr := decodeKey(enc)
		if derr != nil {
			return nil, derr
		}
		return key, nil
	case isNotFound(err):
		key, gerr := generateKey()
		if gerr != nil {
			return nil, gerr
		}
		if serr := m.store.Set(m.service, m.user, base64.StdEncoding.EncodeToString(key)); serr != nil {
			secure.Zero(key)
			return nil, fmt.Errorf("keys: store new key: %w", serr)
		}
		return key, nil
	default:
		return nil, fmt.Errorf("keys: read key: %w", err)
	}
}

func (m *Manager) cacheLocked(key []byte) {
	m.dropCacheLocked()
	m.cached = secure.NewBuffer(key)
	m.cachedAt = time.Now()
}

func (m *Manager) dropCacheLocked() {
	if m.cached != nil {
		m.cached.Destroy()
		m.cached = nil
	}
}

// probe checks credential-store availability with a throwaway entry.
func (m *Manager) probe() error {
	const probeUser = "availability-probe"
	if err := m.store.Set(m.service, probeUser, "probe"); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	if _, err := m.store.Get(m.service, probeUser); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	if err := m.store.Delete(m.service, probeUser); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return nil
}

func generateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("keys: generate key: %w", err)
	}
	return key, nil
}

func decodeKey(enc string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(enc)
	if err != nil || len(key) != KeySize {
		return nil, ErrMalformedKey
	}
	return key, nil
}

func copyKey(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
