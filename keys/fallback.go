package keys

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/vikyol/awsideman-cache/log"
)

const fallbackFileName = ".encryption_key"

// fileStore keeps the base64 key in a file restricted to the owner. It
// mirrors the credentialStore contract so the Manager logic is shared.
type fileStore struct {
	dir string
}

var errFileKeyNotFound = errors.New("keys: no key file")

func (s fileStore) path() string { return filepath.Join(s.dir, fallbackFileName) }

func (s fileStore) Get(_, _ string) (string, error) {
	raw, err := os.ReadFile(s.path())
	if os.IsNotExist(err) {
		return "", errFileKeyNotFound
	}
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (s fileStore) Set(_, _, value string) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return err
	}
	return os.WriteFile(s.path(), []byte(value), 0o600)
}

func (s fileStore) Delete(_, _ string) error {
	err := os.Remove(s.path())
	if os.IsNotExist(err) {
		return errFileKeyNotFound
	}
	return err
}

// NewWithFallback probes the OS credential store once and returns a Manager
// over it, or over the fallback key file when the store is unreachable. Both
// mirror the same contract.
func NewWithFallback(cfg Config) (*Manager, error) {
	logger := log.OrNop(cfg.Logger)

	primary := New(cfg)
	err := primary.probe()
	if err == nil {
		return primary, nil
	}
	logger.Warn("credential store unavailable; using file fallback", log.Fields{
		"error": err.Error(),
	})

	if cfg.FallbackDir == "" {
		return nil, ErrStoreUnavailable
	}
	fb := cfg
	fb.store = fileStore{dir: cfg.FallbackDir}
	return New(fb), nil
}
