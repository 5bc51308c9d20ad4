package cache

import "time"

// Strategy names a TTL policy for a write. It is a closed set mirroring
// original_source/src/cache_manager.rs's CacheStrategy enum, minus its
// Default variant — spec.md's closed enumeration has no Default member,
// so callers reach for Custom when none of the named strategies fit.
type Strategy struct {
	ttl time.Duration
}

var (
	// RealTime is for data that goes stale in seconds: prices, presence.
	RealTime = Strategy{ttl: 10 * time.Second}
	// ShortTerm is for data refreshed every few minutes.
	ShortTerm = Strategy{ttl: 5 * time.Minute}
	// MediumTerm is for data refreshed on the order of an hour.
	MediumTerm = Strategy{ttl: time.Hour}
	// LongTerm is for data that changes rarely: reference tables, config.
	LongTerm = Strategy{ttl: 3 * time.Hour}
)

// Custom builds a Strategy with an arbitrary TTL.
func Custom(ttl time.Duration) Strategy { return Strategy{ttl: ttl} }

// TTL returns the duration this strategy resolves to.
func (s Strategy) TTL() time.Duration { return s.ttl }
