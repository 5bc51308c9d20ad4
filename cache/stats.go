package cache

import "sync/atomic"

// TierStat is a point-in-time snapshot of one tier's hit counter.
type TierStat struct {
	Name  string
	Level int
	Hits  uint64
}

// Stats is a snapshot of manager-wide counters (spec §9: statistics are
// cloned at observation time, not a live handle onto the atomics).
type Stats struct {
	Tiers                 []TierStat
	Misses                uint64
	Promotions            uint64
	InFlightWaits         uint64
	InvalidationsSent     uint64
	InvalidationsReceived uint64
	InvalidationsByKind   map[string]uint64
	SubscriberErrors      uint64
}

// counters holds the manager's own atomic state, separate from per-tier
// hit counts (which live on tier.Bound) and invalidation counts (which
// live on the invalidate package's Publisher/Subscriber).
type counters struct {
	misses        atomic.Uint64
	promotions    atomic.Uint64
	inFlightWaits atomic.Uint64
}
