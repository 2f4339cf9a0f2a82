package crypto

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"

	"golang.org/x/crypto/pbkdf2"

	"github.com/vikyol/awsideman-cache/codec"
	"github.com/vikyol/awsideman-cache/secure"
)

const (
	pbkdf2Iterations = 100_000
	saltSize         = 16
	keySize          = 32
)

// PasswordGCM is the backup-path provider deriving its key from a password
// via PBKDF2-SHA256 with a fresh random salt per encryption. The wire layout
// is header(salt, nonce) ‖ tag(16) ‖ ciphertext.
type PasswordGCM struct {
	password []byte
	codec    codec.Codec
}

var _ Provider = (*PasswordGCM)(nil)

// NewPasswordGCM copies the password into a private buffer. A nil codec
// selects JSON.
func NewPasswordGCM(password []byte, c codec.Codec) (*PasswordGCM, error) {
	if len(password) == 0 {
		return nil, newError(AlgorithmPasswordGCM, "password is required", nil)
	}
	if c == nil {
		c = codec.JSON{}
	}
	pw := make([]byte, len(password))
	copy(pw, password)
	secure.Lock(pw)
	return &PasswordGCM{password: pw, codec: c}, nil
}

// Destroy zeroes the held password. The provider is unusable afterwards.
func (p *PasswordGCM) Destroy() {
	secure.Zero(p.password)
	secure.Unlock(p.password)
}

func (p *PasswordGCM) Encrypt(ctx context.Context, v any) ([]byte, error) {
	plain, err := p.codec.Encode(v)
	if err != nil {
		return nil, newError(AlgorithmPasswordGCM, "serialize value", err)
	}
	return p.Seal(ctx, plain)
}

func (p *PasswordGCM) Decrypt(ctx context.Context, data []byte, v any) error {
	plain, err := p.Open(ctx, data)
	if err != nil {
		return err
	}
	defer secure.Zero(plain)
	if err := p.codec.Decode(plain, v); err != nil {
		return newError(AlgorithmPasswordGCM, "deserialize value", err)
	}
	return nil
}

func (p *PasswordGCM) Seal(_ context.Context, plaintext []byte) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, newError(AlgorithmPasswordGCM, "generate salt", err)
	}
	key := pbkdf2.Key(p.password, salt, pbkdf2Iterations, keySize, sha256.New)
	secure.Lock(key)
	defer func() {
		secure.Zero(key)
		secure.Unlock(key)
	}()

	aead, nonce, err := newGCM(key, AlgorithmPasswordGCM)
	if err != nil {
		return nil, err
	}

	h := header{algorithm: algBytePasswordGCM, keyTag: salt, nonce: nonce}
	hb, err := h.marshal()
	if err != nil {
		return nil, newError(AlgorithmPasswordGCM, "marshal header", err)
	}

	sealed := aead.Seal(nil, nonce, plaintext, hb[:minHeaderSize])
	return assembleGCM(hb, sealed), nil
}

func (p *PasswordGCM) Open(_ context.Context, data []byte) ([]byte, error) {
	h, body, err := parseHeader(data, algBytePasswordGCM)
	if err != nil || len(h.keyTag) != saltSize || len(body) < gcmTagSize {
		return nil, decryptError(AlgorithmPasswordGCM)
	}
	key := pbkdf2.Key(p.password, h.keyTag, pbkdf2Iterations, keySize, sha256.New)
	secure.Lock(key)
	defer func() {
		secure.Zero(key)
		secure.Unlock(key)
	}()

	return openGCM(key, h, body, data[:minHeaderSize], AlgorithmPasswordGCM)
}

func (p *PasswordGCM) Type() Algorithm { return AlgorithmPasswordGCM }

func (p *PasswordGCM) Available(context.Context) bool { return len(p.password) > 0 }

// newGCM builds the AEAD and a fresh nonce.
func newGCM(key []byte, alg Algorithm) (cipher.AEAD, []byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, newError(alg, "initialize cipher", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, newError(alg, "initialize gcm", err)
	}
	nonce := make([]byte, gcmNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, newError(alg, "generate nonce", err)
	}
	return aead, nonce, nil
}

// assembleGCM reorders Seal's ciphertext‖tag output into the wire layout
// header ‖ tag ‖ ciphertext.
func assembleGCM(hb, sealed []byte) []byte {
	ct := sealed[:len(sealed)-gcmTagSize]
	tag := sealed[len(sealed)-gcmTagSize:]
	out := make([]byte, 0, len(hb)+len(sealed))
	out = append(out, hb...)
	out = append(out, tag...)
	out = append(out, ct...)
	return out
}

// openGCM reverses assembleGCM and opens the payload. aad must be the fixed
// header prefix the seal bound.
func openGCM(key []byte, h header, body, aad []byte, alg Algorithm) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, decryptError(alg)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, decryptError(alg)
	}
	tag := body[:gcmTagSize]
	ct := body[gcmTagSize:]
	sealed := make([]byte, 0, len(body))
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)
	plain, err := aead.Open(nil, h.nonce, sealed, aad)
	if err != nil {
		return nil, decryptError(alg)
	}
	return plain, nil
}
