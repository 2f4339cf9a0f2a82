package codec

import "fmt"

// Limit wraps another codec to enforce a maximum payload size at Decode time,
// protecting against oversized inputs from a shared cache. Encode is
// forwarded unchanged. MaxDecode <= 0 disables the check.
type Limit struct {
	Inner     Codec
	MaxDecode int
}

var _ Codec = Limit{}

func (c Limit) Encode(v any) ([]byte, error) { return c.Inner.Encode(v) }

func (c Limit) Decode(b []byte, v any) error {
	if c.MaxDecode > 0 && len(b) > c.MaxDecode {
		return fmt.Errorf("codec: payload too large: %d > %d", len(b), c.MaxDecode)
	}
	return c.Inner.Decode(b, v)
}

func (c Limit) Name() string { return "limit:" + c.Inner.Name() }
