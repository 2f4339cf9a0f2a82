package crypto

import (
	"context"

	"github.com/vikyol/awsideman-cache/codec"
)

// None is the pass-through provider: values are serialized but not encrypted.
// Serialization failures still surface as encryption errors so callers handle
// one error kind at the boundary.
type None struct {
	codec codec.Codec
}

var _ Provider = (*None)(nil)

// NewNone returns a pass-through provider. A nil codec selects JSON.
func NewNone(c codec.Codec) *None {
	if c == nil {
		c = codec.JSON{}
	}
	return &None{codec: c}
}

func (p *None) Encrypt(ctx context.Context, v any) ([]byte, error) {
	b, err := p.codec.Encode(v)
	if err != nil {
		return nil, newError(AlgorithmNone, "serialize value", err)
	}
	return p.Seal(ctx, b)
}

func (p *None) Decrypt(ctx context.Context, data []byte, v any) error {
	b, err := p.Open(ctx, data)
	if err != nil {
		return err
	}
	if err := p.codec.Decode(b, v); err != nil {
		return newError(AlgorithmNone, "deserialize value", err)
	}
	return nil
}

func (p *None) Seal(_ context.Context, plaintext []byte) ([]byte, error) {
	return plaintext, nil
}

func (p *None) Open(_ context.Context, data []byte) ([]byte, error) {
	return data, nil
}

func (p *None) Type() Algorithm                { return AlgorithmNone }
func (p *None) Available(context.Context) bool { return true }
