package cache

// Value is the cache payload type: an opaque, self-describing document
// with string keys and primitive or nested values (spec §3). The core
// never interprets it beyond round-tripping it through a codec.Codec at
// the tier boundary.
type Value = map[string]any
