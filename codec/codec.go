// Package codec provides the pluggable serialization seam the typed cache
// API uses to encode/decode values at the tier boundary. Grounded on
// original_source/src/traits.rs's CacheCodec trait and src/codecs/json.rs:
// the original ships multiple interchangeable codecs (json, postcard,
// simd_json); this module keeps the interface open but ships only JSON,
// since no second encoding library is exercised anywhere else in the
// example pack.
package codec

// Codec serializes and deserializes values at the boundary between the
// typed cache API and the opaque byte tiers. Implementations must be
// safe for concurrent use.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, out any) error
	Name() string
}
