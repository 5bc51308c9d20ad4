package invalidate

import "sync/atomic"

// Stats is a point-in-time snapshot of a Subscriber's counters.
// Grounded on src/invalidation.rs's AtomicInvalidationStats.
type Stats struct {
	MessagesReceived    uint64
	RemovesReceived     uint64
	UpdatesReceived     uint64
	PatternsReceived    uint64
	BulkRemovesReceived uint64
	Errors              uint64
}

type atomicStats struct {
	received atomic.Uint64
	removes  atomic.Uint64
	updates  atomic.Uint64
	patterns atomic.Uint64
	bulk     atomic.Uint64
	errors   atomic.Uint64
}

func (a *atomicStats) snapshot() Stats {
	return Stats{
		MessagesReceived:    a.received.Load(),
		RemovesReceived:     a.removes.Load(),
		UpdatesReceived:     a.updates.Load(),
		PatternsReceived:    a.patterns.Load(),
		BulkRemovesReceived: a.bulk.Load(),
		Errors:              a.errors.Load(),
	}
}
