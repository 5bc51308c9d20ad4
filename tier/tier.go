// Package tier defines the contract every cache layer must satisfy and the
// ordered chain that composes them.
package tier

import (
	"context"
	"time"
)

// Tier is the minimal contract a cache layer must satisfy to participate in
// a Chain. Implementations must be safe for concurrent use.
//
// Every operation may fail. A Get failure is treated as a miss by the
// caller (the manager falls through to the next tier); a Set failure is
// surfaced only when the tier is required; a Remove failure is always
// surfaced. See cache.Manager for how these are interpreted.
type Tier interface {
	// Get returns the current live value for key, or ok=false if absent or
	// expired.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// GetWithRemainingTTL behaves like Get but also reports the remaining
	// TTL when the backend can introspect it. remaining is nil when the
	// backend cannot report a TTL for a present value (it should be
	// treated as "unknown", not "no expiration").
	GetWithRemainingTTL(ctx context.Context, key string) (value []byte, remaining *time.Duration, ok bool, err error)

	// Set stores value with an absolute expiration at now+ttl. A zero or
	// negative ttl is treated as an immediate delete.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Remove deletes key if present. Idempotent.
	Remove(ctx context.Context, key string) error

	// Health is a cheap liveness probe.
	Health(ctx context.Context) bool

	// Name is a stable identifier used in logs and statistics.
	Name() string
}

// KeyIterator yields keys from a Scan in bounded batches. Next returns
// false once exhausted or on error; Err reports the terminal error, if
// any.
type KeyIterator interface {
	Next(ctx context.Context) ([]string, bool)
	Err() error
}

// Lister is implemented by local, enumerable tiers (e.g. the in-memory
// reference tier) so the invalidation plane can apply glob-pattern cleanup
// without a network scan. Tiers that cannot enumerate their keys (a
// black-box remote cache) simply don't implement it and are skipped
// during local pattern cleanup.
type Lister interface {
	Keys() []string
}

// SharedTier extends Tier with the operations only a terminal, shared
// (network) tier needs to support: non-blocking pattern scanning and bulk
// deletion.
type SharedTier interface {
	Tier

	// Scan returns an iterator over keys matching a glob pattern. Scanning
	// is non-blocking and returns bounded batches per call.
	Scan(ctx context.Context, pattern string) (KeyIterator, error)

	// RemoveBulk deletes all listed keys. Best-effort per key; the first
	// error encountered is returned after attempting every key.
	RemoveBulk(ctx context.Context, keys []string) error
}
