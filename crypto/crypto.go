// Package crypto implements the encryption providers protecting cache and
// backup payloads: a pass-through provider, AES-256-CBC for the generic cache
// path, AES-256-GCM variants for backups (password-derived and key-manager
// backed), and a transit decorator that adds anti-replay and integrity
// framing over any base provider.
package crypto

import (
	"context"
	"errors"
	"fmt"
)

// Algorithm identifies an encryption provider in configuration and metadata.
type Algorithm string

const (
	AlgorithmNone        Algorithm = "none"
	AlgorithmAESCBC      Algorithm = "aes-256-cbc"
	AlgorithmPasswordGCM Algorithm = "aes-256-gcm-pbkdf2"
	AlgorithmManagedGCM  Algorithm = "aes-256-gcm"
	AlgorithmTransit     Algorithm = "transit"
)

// ErrDecrypt is the generic integrity failure. Its message deliberately
// carries no plaintext, key material or ciphertext fragments.
var ErrDecrypt = errors.New("crypto: decryption failed")

// Error is the single error kind the encryption layer signals failures
// through.
type Error struct {
	Algorithm Algorithm
	Message   string
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s encryption: %s: %v", e.Algorithm, e.Message, e.Err)
	}
	return fmt.Sprintf("%s encryption: %s", e.Algorithm, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(alg Algorithm, message string, cause error) *Error {
	return &Error{Algorithm: alg, Message: message, Err: cause}
}

// decryptError returns the non-leaky failure every integrity problem maps to.
func decryptError(alg Algorithm) *Error {
	return &Error{Algorithm: alg, Message: "decryption failed", Err: ErrDecrypt}
}

// Provider seals and opens payloads. Encrypt/Decrypt run values through the
// provider's codec; Seal/Open are the raw byte path used by the transit
// decorator and by callers whose data is already serialized.
type Provider interface {
	Encrypt(ctx context.Context, v any) ([]byte, error)
	Decrypt(ctx context.Context, data []byte, v any) error

	Seal(ctx context.Context, plaintext []byte) ([]byte, error)
	Open(ctx context.Context, data []byte) ([]byte, error)

	Type() Algorithm

	// Available reports whether the provider can currently operate (key
	// material reachable and so on).
	Available(ctx context.Context) bool
}
