package crypto

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/vikyol/awsideman-cache/codec"
	"github.com/vikyol/awsideman-cache/keys"
	"github.com/vikyol/awsideman-cache/log"
	"github.com/vikyol/awsideman-cache/secure"
)

const fingerprintSize = 8

// ManagedGCM is the backup-path provider backed by the key manager. The
// header carries a truncated SHA-256 fingerprint of the key so a rotation
// mismatch can be spotted at decrypt time. The mismatch itself is log-only;
// the authoritative signal is the GCM tag.
type ManagedGCM struct {
	keys  keys.KeyProvider
	codec codec.Codec
	log   log.Logger
}

var _ Provider = (*ManagedGCM)(nil)

// NewManagedGCM builds the provider. A nil codec selects JSON.
func NewManagedGCM(kp keys.KeyProvider, c codec.Codec, logger log.Logger) (*ManagedGCM, error) {
	if kp == nil {
		return nil, newError(AlgorithmManagedGCM, "key provider is required", nil)
	}
	if c == nil {
		c = codec.JSON{}
	}
	return &ManagedGCM{keys: kp, codec: c, log: log.OrNop(logger)}, nil
}

func (p *ManagedGCM) Encrypt(ctx context.Context, v any) ([]byte, error) {
	plain, err := p.codec.Encode(v)
	if err != nil {
		return nil, newError(AlgorithmManagedGCM, "serialize value", err)
	}
	return p.Seal(ctx, plain)
}

func (p *ManagedGCM) Decrypt(ctx context.Context, data []byte, v any) error {
	plain, err := p.Open(ctx, data)
	if err != nil {
		return err
	}
	defer secure.Zero(plain)
	if err := p.codec.Decode(plain, v); err != nil {
		return newError(AlgorithmManagedGCM, "deserialize value", err)
	}
	return nil
}

func (p *ManagedGCM) Seal(ctx context.Context, plaintext []byte) ([]byte, error) {
	key, err := p.keys.Key(ctx)
	if err != nil {
		return nil, newError(AlgorithmManagedGCM, "obtain key", err)
	}
	secure.Lock(key)
	defer func() {
		secure.Zero(key)
		secure.Unlock(key)
	}()

	aead, nonce, err := newGCM(key, AlgorithmManagedGCM)
	if err != nil {
		return nil, err
	}

	h := header{algorithm: algByteManagedGCM, keyTag: fingerprint(key), nonce: nonce}
	hb, err := h.marshal()
	if err != nil {
		return nil, newError(AlgorithmManagedGCM, "marshal header", err)
	}

	sealed := aead.Seal(nil, nonce, plaintext, hb[:minHeaderSize])
	return assembleGCM(hb, sealed), nil
}

func (p *ManagedGCM) Open(ctx context.Context, data []byte) ([]byte, error) {
	h, body, err := parseHeader(data, algByteManagedGCM)
	if err != nil || len(body) < gcmTagSize {
		return nil, decryptError(AlgorithmManagedGCM)
	}

	key, err := p.keys.Key(ctx)
	if err != nil {
		return nil, newError(AlgorithmManagedGCM, "obtain key", err)
	}
	secure.Lock(key)
	defer func() {
		secure.Zero(key)
		secure.Unlock(key)
	}()

	if !secure.ConstantTimeEqual(h.keyTag, fingerprint(key)) {
		// Rotation mismatch detection only; the tag decides correctness.
		p.log.Warn("key fingerprint mismatch; data may predate rotation", log.Fields{
			"stored": hex.EncodeToString(h.keyTag),
		})
	}
	return openGCM(key, h, body, data[:minHeaderSize], AlgorithmManagedGCM)
}

func (p *ManagedGCM) Type() Algorithm { return AlgorithmManagedGCM }

func (p *ManagedGCM) Available(ctx context.Context) bool {
	_, err := p.keys.Key(ctx)
	return err == nil
}

// fingerprint returns the truncated SHA-256 of the key, safe to store in
// metadata.
func fingerprint(key []byte) []byte {
	sum := sha256.Sum256(key)
	return sum[:fingerprintSize]
}
