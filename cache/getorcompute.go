package cache

import (
	"context"
	"errors"
)

// GetOrCompute implements the read-through path (spec §4.5): check the
// chain; on a miss, coalesce concurrent callers for the same key through
// a singleflight group so produce runs at most once; the leader writes
// the result back through Set before returning it.
//
// A waiter that wakes up to a producer error re-checks the chain before
// surfacing the failure: the value may have arrived via another
// completed producer, or via a peer's invalidation update, between the
// leader's failure and this waiter noticing it.
func (m *Manager) GetOrCompute(ctx context.Context, key string, strategy Strategy, produce Producer) (Value, error) {
	if m.closed.Load() {
		return nil, ErrShutdown
	}
	if v, ok := m.readChain(ctx, key); ok {
		return v, nil
	}

	v, sfErr, shared := m.sf.Do(ctx, key, func() (Value, error) {
		if v, ok := m.readChain(ctx, key); ok {
			return v, nil
		}
		produced, err := produce(ctx)
		if err != nil {
			return nil, errors.Join(ErrUpstreamFailed, err)
		}
		if err := m.Set(ctx, key, produced, strategy); err != nil {
			m.logger.Warn("get_or_compute: write-back failed")
		}
		return produced, nil
	})

	if shared {
		m.counters.inFlightWaits.Add(1)
		if sfErr != nil {
			if v2, ok := m.readChain(ctx, key); ok {
				return v2, nil
			}
			return nil, ErrUpstreamFailed
		}
	}
	return v, sfErr
}

// GetOrComputeWithBroadcast behaves like GetOrCompute, but the leader's
// write-back uses SetWithBroadcast instead of Set, propagating the
// freshly produced value to peers.
func (m *Manager) GetOrComputeWithBroadcast(ctx context.Context, key string, strategy Strategy, produce Producer) (Value, error) {
	if m.closed.Load() {
		return nil, ErrShutdown
	}
	if v, ok := m.readChain(ctx, key); ok {
		return v, nil
	}

	v, sfErr, shared := m.sf.Do(ctx, key, func() (Value, error) {
		if v, ok := m.readChain(ctx, key); ok {
			return v, nil
		}
		produced, err := produce(ctx)
		if err != nil {
			return nil, errors.Join(ErrUpstreamFailed, err)
		}
		if err := m.SetWithBroadcast(ctx, key, produced, strategy); err != nil {
			m.logger.Warn("get_or_compute: write-back failed")
		}
		return produced, nil
	})

	if shared {
		m.counters.inFlightWaits.Add(1)
		if sfErr != nil {
			if v2, ok := m.readChain(ctx, key); ok {
				return v2, nil
			}
			return nil, ErrUpstreamFailed
		}
	}
	return v, sfErr
}
