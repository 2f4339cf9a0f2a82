package codec

import "github.com/vmihailenco/msgpack/v5"

// Msgpack serializes values with vmihailenco/msgpack/v5. The zero value is
// ready to use. Struct tags differ from JSON; use `msgpack:"fieldName"` tags
// for explicit control.
type Msgpack struct{}

var _ Codec = Msgpack{}

func (Msgpack) Encode(v any) ([]byte, error) { return msgpack.Marshal(v) }
func (Msgpack) Decode(b []byte, v any) error { return msgpack.Unmarshal(b, v) }
func (Msgpack) Name() string                 { return "msgpack" }
