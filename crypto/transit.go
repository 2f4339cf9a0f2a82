package crypto

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"time"

	"github.com/vikyol/awsideman-cache/codec"
	"github.com/vikyol/awsideman-cache/log"
	"github.com/vikyol/awsideman-cache/secure"
)

const (
	transitMagic        = "TX"
	transitVersion      = 0x01
	transitNonceSize    = 16
	transitStampSize    = 8
	transitFrameSize    = transitStampSize + transitNonceSize
	transitHeaderSize   = 2 + 1 + sha256.Size
	defaultReplayWindow = 10 * time.Minute
)

// Transit decorates any base provider with in-transit framing: an 8-byte
// big-endian unix-nano timestamp and a 16-byte nonce are prepended to the
// plaintext before delegation, and a SHA-256 hash of the original plaintext
// travels in the outer header. On decrypt the hash is recomputed and a
// mismatch raises; a stale timestamp is a soft anti-replay signal and is
// logged only.
type Transit struct {
	base   Provider
	codec  codec.Codec
	window time.Duration
	log    log.Logger
}

var _ Provider = (*Transit)(nil)

// TransitOptions tune the decorator.
type TransitOptions struct {
	// ReplayWindow bounds how old a timestamp may be before it is flagged.
	// 0 => 10m.
	ReplayWindow time.Duration
	// Codec serializes values on the Encrypt/Decrypt path. nil => JSON.
	Codec codec.Codec
	// Logger is optional; nil disables logging.
	Logger log.Logger
}

// NewTransit wraps base with transit framing.
func NewTransit(base Provider, opts TransitOptions) (*Transit, error) {
	if base == nil {
		return nil, newError(AlgorithmTransit, "base provider is required", nil)
	}
	c := opts.Codec
	if c == nil {
		c = codec.JSON{}
	}
	w := opts.ReplayWindow
	if w <= 0 {
		w = defaultReplayWindow
	}
	return &Transit{base: base, codec: c, window: w, log: log.OrNop(opts.Logger)}, nil
}

func (p *Transit) Encrypt(ctx context.Context, v any) ([]byte, error) {
	plain, err := p.codec.Encode(v)
	if err != nil {
		return nil, newError(AlgorithmTransit, "serialize value", err)
	}
	return p.Seal(ctx, plain)
}

func (p *Transit) Decrypt(ctx context.Context, data []byte, v any) error {
	plain, err := p.Open(ctx, data)
	if err != nil {
		return err
	}
	defer secure.Zero(plain)
	if err := p.codec.Decode(plain, v); err != nil {
		return newError(AlgorithmTransit, "deserialize value", err)
	}
	return nil
}

func (p *Transit) Seal(ctx context.Context, plaintext []byte) ([]byte, error) {
	framed := make([]byte, transitFrameSize+len(plaintext))
	binary.BigEndian.PutUint64(framed[:transitStampSize], uint64(time.Now().UnixNano()))
	if _, err := rand.Read(framed[transitStampSize:transitFrameSize]); err != nil {
		return nil, newError(AlgorithmTransit, "generate nonce", err)
	}
	copy(framed[transitFrameSize:], plaintext)

	sealed, err := p.base.Seal(ctx, framed)
	if err != nil {
		secure.Zero(framed)
		return nil, err
	}

	sum := sha256.Sum256(plaintext)
	out := make([]byte, 0, transitHeaderSize+len(sealed))
	out = append(out, transitMagic...)
	out = append(out, transitVersion)
	out = append(out, sum[:]...)
	out = append(out, sealed...)
	// A pass-through base returns framed itself, so wipe only after the
	// output holds its own copy.
	secure.Zero(framed)
	return out, nil
}

func (p *Transit) Open(ctx context.Context, data []byte) ([]byte, error) {
	if len(data) < transitHeaderSize || string(data[:2]) != transitMagic || data[2] != transitVersion {
		return nil, decryptError(AlgorithmTransit)
	}
	wantSum := data[3:transitHeaderSize]

	framed, err := p.base.Open(ctx, data[transitHeaderSize:])
	if err != nil {
		return nil, err
	}
	if len(framed) < transitFrameSize {
		secure.Zero(framed)
		return nil, decryptError(AlgorithmTransit)
	}

	stamp := int64(binary.BigEndian.Uint64(framed[:transitStampSize]))
	plain := framed[transitFrameSize:]

	gotSum := sha256.Sum256(plain)
	if !secure.ConstantTimeEqual(gotSum[:], wantSum) {
		secure.Zero(framed)
		return nil, decryptError(AlgorithmTransit)
	}

	if age := time.Since(time.Unix(0, stamp)); age > p.window || age < -p.window {
		p.log.Warn("transit timestamp outside replay window", log.Fields{
			"age": age.String(),
		})
	}
	return plain, nil
}

func (p *Transit) Type() Algorithm { return AlgorithmTransit }

func (p *Transit) Available(ctx context.Context) bool { return p.base.Available(ctx) }
