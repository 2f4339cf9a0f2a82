package codec

import "encoding/json"

// JSON is the default codec; cached CLI data is JSON-shaped already.
type JSON struct{}

var _ Codec = JSON{}

func (JSON) Encode(v any) ([]byte, error) { return json.Marshal(v) }
func (JSON) Decode(b []byte, v any) error { return json.Unmarshal(b, v) }
func (JSON) Name() string                 { return "json" }
