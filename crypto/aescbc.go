package crypto

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"

	"github.com/vikyol/awsideman-cache/codec"
	"github.com/vikyol/awsideman-cache/keys"
	"github.com/vikyol/awsideman-cache/secure"
)

// AESCBC is the cache-path provider: AES-256-CBC with PKCS#7 padding and a
// fresh random IV per call. Output is IV‖ciphertext. Key material and the
// plaintext buffer are memory-locked and zeroed on every exit path, and
// decrypt applies randomized timing jitter so failure-mode timing does not
// reveal which validation step tripped.
type AESCBC struct {
	keys  keys.KeyProvider
	codec codec.Codec
}

var _ Provider = (*AESCBC)(nil)

// NewAESCBC builds the provider. A nil codec selects JSON.
func NewAESCBC(kp keys.KeyProvider, c codec.Codec) (*AESCBC, error) {
	if kp == nil {
		return nil, newError(AlgorithmAESCBC, "key provider is required", nil)
	}
	if c == nil {
		c = codec.JSON{}
	}
	return &AESCBC{keys: kp, codec: c}, nil
}

func (p *AESCBC) Encrypt(ctx context.Context, v any) ([]byte, error) {
	plain, err := p.codec.Encode(v)
	if err != nil {
		return nil, newError(AlgorithmAESCBC, "serialize value", err)
	}
	return p.Seal(ctx, plain)
}

func (p *AESCBC) Decrypt(ctx context.Context, data []byte, v any) error {
	plain, err := p.Open(ctx, data)
	if err != nil {
		return err
	}
	defer secure.Zero(plain)
	if err := p.codec.Decode(plain, v); err != nil {
		return newError(AlgorithmAESCBC, "deserialize value", err)
	}
	return nil
}

func (p *AESCBC) Seal(ctx context.Context, plaintext []byte) ([]byte, error) {
	key, err := p.keys.Key(ctx)
	if err != nil {
		return nil, newError(AlgorithmAESCBC, "obtain key", err)
	}
	secure.Lock(key)
	defer func() {
		secure.Zero(key)
		secure.Unlock(key)
	}()

	padded := pkcs7Pad(plaintext, aes.BlockSize)
	secure.Lock(padded)
	defer func() {
		secure.Zero(padded)
		secure.Unlock(padded)
	}()

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, newError(AlgorithmAESCBC, "initialize cipher", err)
	}

	out := make([]byte, aes.BlockSize+len(padded))
	iv := out[:aes.BlockSize]
	if _, err := rand.Read(iv); err != nil {
		return nil, newError(AlgorithmAESCBC, "generate iv", err)
	}
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[aes.BlockSize:], padded)
	return out, nil
}

func (p *AESCBC) Open(ctx context.Context, data []byte) ([]byte, error) {
	// Same jitter on success and every failure path.
	defer secure.DecryptJitter()

	// Must contain at least the IV plus a non-empty ciphertext.
	if len(data) <= aes.BlockSize {
		return nil, decryptError(AlgorithmAESCBC)
	}
	ciphertext := data[aes.BlockSize:]
	if len(ciphertext)%aes.BlockSize != 0 {
		return nil, decryptError(AlgorithmAESCBC)
	}

	key, err := p.keys.Key(ctx)
	if err != nil {
		return nil, newError(AlgorithmAESCBC, "obtain key", err)
	}
	secure.Lock(key)
	defer func() {
		secure.Zero(key)
		secure.Unlock(key)
	}()

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, decryptError(AlgorithmAESCBC)
	}

	padded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, data[:aes.BlockSize]).CryptBlocks(padded, ciphertext)

	plain, ok := pkcs7Unpad(padded, aes.BlockSize)
	if !ok {
		secure.Zero(padded)
		return nil, decryptError(AlgorithmAESCBC)
	}
	return plain, nil
}

func (p *AESCBC) Type() Algorithm { return AlgorithmAESCBC }

func (p *AESCBC) Available(ctx context.Context) bool {
	_, err := p.keys.Key(ctx)
	return err == nil
}

func pkcs7Pad(b []byte, size int) []byte {
	n := size - len(b)%size
	return append(append(make([]byte, 0, len(b)+n), b...), bytes.Repeat([]byte{byte(n)}, n)...)
}

// pkcs7Unpad validates and strips padding. The jitter applied by callers
// masks the data-dependent branch here.
func pkcs7Unpad(b []byte, size int) ([]byte, bool) {
	if len(b) == 0 || len(b)%size != 0 {
		return nil, false
	}
	n := int(b[len(b)-1])
	if n == 0 || n > size || n > len(b) {
		return nil, false
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, false
		}
	}
	return b[:len(b)-n], true
}
