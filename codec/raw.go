package codec

import "fmt"

// Bytes is an identity codec for values that are already raw byte slices.
// Encode accepts []byte (or string); Decode requires a *[]byte target.
type Bytes struct{}

var _ Codec = Bytes{}

func (Bytes) Encode(v any) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case string:
		return []byte(b), nil
	default:
		return nil, fmt.Errorf("codec: Bytes requires []byte or string, got %T", v)
	}
}

func (Bytes) Decode(b []byte, v any) error {
	out, ok := v.(*[]byte)
	if !ok {
		return fmt.Errorf("codec: Bytes requires *[]byte target, got %T", v)
	}
	*out = append((*out)[:0], b...)
	return nil
}

func (Bytes) Name() string { return "bytes" }
