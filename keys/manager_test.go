package keys

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

// mapStore is an in-memory credentialStore.
type mapStore struct {
	m    map[string]string
	gets int
	sets int
}

func newMapStore() *mapStore { return &mapStore{m: map[string]string{}} }

func (s *mapStore) key(service, user string) string { return service + "/" + user }

func (s *mapStore) Get(service, user string) (string, error) {
	s.gets++
	v, ok := s.m[s.key(service, user)]
	if !ok {
		return "", keyring.ErrNotFound
	}
	return v, nil
}

func (s *mapStore) Set(service, user, value string) error {
	s.sets++
	s.m[s.key(service, user)] = value
	return nil
}

func (s *mapStore) Delete(service, user string) error {
	k := s.key(service, user)
	if _, ok := s.m[k]; !ok {
		return keyring.ErrNotFound
	}
	delete(s.m, k)
	return nil
}

func newTestManager(store credentialStore) *Manager {
	return New(Config{store: store})
}

func TestKeyGeneratedOnFirstUse(t *testing.T) {
	store := newMapStore()
	m := newTestManager(store)
	ctx := context.Background()

	key, err := m.Key(ctx)
	require.NoError(t, err)
	require.Len(t, key, KeySize)

	// Stored base64-encoded under the default service/user.
	enc, ok := store.m[DefaultService+"/"+DefaultUser]
	require.True(t, ok)
	stored, err := base64.StdEncoding.DecodeString(enc)
	require.NoError(t, err)
	assert.Equal(t, key, stored)
}

func TestKeyCached(t *testing.T) {
	store := newMapStore()
	m := newTestManager(store)
	ctx := context.Background()

	first, err := m.Key(ctx)
	require.NoError(t, err)
	getsAfterFirst := store.gets

	second, err := m.Key(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, getsAfterFirst, store.gets, "cached key should not re-read the store")
}

func TestKeyReturnsOwnedCopy(t *testing.T) {
	m := newTestManager(newMapStore())
	ctx := context.Background()

	key, err := m.Key(ctx)
	require.NoError(t, err)
	key[0] ^= 0xff

	again, err := m.Key(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, key[0], again[0], "mutating a returned key must not corrupt the cache")
}

func TestMalformedStoredKey(t *testing.T) {
	store := newMapStore()
	store.m[DefaultService+"/"+DefaultUser] = "not base64!!"
	m := newTestManager(store)

	_, err := m.Key(context.Background())
	require.ErrorIs(t, err, ErrMalformedKey)

	// Right alphabet, wrong length.
	store.m[DefaultService+"/"+DefaultUser] = base64.StdEncoding.EncodeToString([]byte("short"))
	_, err = m.Key(context.Background())
	require.ErrorIs(t, err, ErrMalformedKey)
}

func TestRotate(t *testing.T) {
	m := newTestManager(newMapStore())
	ctx := context.Background()

	before, err := m.Key(ctx)
	require.NoError(t, err)

	old, fresh, err := m.Rotate(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, old)
	require.Len(t, fresh, KeySize)
	assert.NotEqual(t, old, fresh)

	// The fresh key is what Key now serves.
	current, err := m.Key(ctx)
	require.NoError(t, err)
	assert.Equal(t, fresh, current)
}

func TestRotateWithoutExistingKey(t *testing.T) {
	m := newTestManager(newMapStore())

	old, fresh, err := m.Rotate(context.Background())
	require.NoError(t, err)
	assert.Nil(t, old)
	require.Len(t, fresh, KeySize)
}

func TestDeleteRegenerates(t *testing.T) {
	m := newTestManager(newMapStore())
	ctx := context.Background()

	first, err := m.Key(ctx)
	require.NoError(t, err)

	require.NoError(t, m.Delete(ctx))
	require.NoError(t, m.Delete(ctx), "deleting an absent key is not an error")

	second, err := m.Key(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestKeyCancelledContext(t *testing.T) {
	m := newTestManager(newMapStore())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Key(ctx)
	require.Error(t, err)
}
