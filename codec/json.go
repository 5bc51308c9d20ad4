package codec

import "encoding/json"

// JSON is the default Codec, backed by encoding/json. It is the only
// codec this module ships; see DESIGN.md for why no faster JSON library
// is pulled in for it.
type JSON struct{}

// Encode implements Codec.
func (JSON) Encode(v any) ([]byte, error) { return json.Marshal(v) }

// Decode implements Codec.
func (JSON) Decode(data []byte, out any) error { return json.Unmarshal(data, out) }

// Name implements Codec.
func (JSON) Name() string { return "json" }

var _ Codec = JSON{}
