// Package codec (de)serializes cached values to bytes. Encryption providers
// run every value through a Codec before sealing it, so the cache payload
// format is pluggable independently of the cipher.
package codec

// Codec encodes values to []byte and back.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
	Name() string
}
