package keys

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// downStore fails every call, like a headless host with no secret service.
type downStore struct{}

func (downStore) Get(_, _ string) (string, error) { return "", errors.New("no secret service") }
func (downStore) Set(_, _, _ string) error        { return errors.New("no secret service") }
func (downStore) Delete(_, _ string) error        { return errors.New("no secret service") }

func TestFileStoreLifecycle(t *testing.T) {
	dir := t.TempDir()
	fs := fileStore{dir: filepath.Join(dir, "nested")}

	_, err := fs.Get("", "")
	require.ErrorIs(t, err, errFileKeyNotFound)

	require.NoError(t, fs.Set("", "", "a2V5"))
	got, err := fs.Get("", "")
	require.NoError(t, err)
	assert.Equal(t, "a2V5", got)

	if runtime.GOOS != "windows" {
		info, err := os.Stat(fs.path())
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

		dirInfo, err := os.Stat(filepath.Join(dir, "nested"))
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o700), dirInfo.Mode().Perm())
	}

	require.NoError(t, fs.Delete("", ""))
	_, err = fs.Get("", "")
	require.ErrorIs(t, err, errFileKeyNotFound)
}

func TestNewWithFallbackUsesHealthyPrimary(t *testing.T) {
	m, err := NewWithFallback(Config{store: newMapStore()})
	require.NoError(t, err)

	key, err := m.Key(context.Background())
	require.NoError(t, err)
	assert.Len(t, key, KeySize)
}

func TestNewWithFallbackFallsBackToFile(t *testing.T) {
	dir := t.TempDir()
	m, err := NewWithFallback(Config{store: downStore{}, FallbackDir: dir})
	require.NoError(t, err)

	key, err := m.Key(context.Background())
	require.NoError(t, err)
	assert.Len(t, key, KeySize)

	_, err = os.Stat(filepath.Join(dir, fallbackFileName))
	require.NoError(t, err, "key should land in the fallback file")
}

func TestNewWithFallbackRequiresDir(t *testing.T) {
	_, err := NewWithFallback(Config{store: downStore{}})
	require.ErrorIs(t, err, ErrStoreUnavailable)
}
