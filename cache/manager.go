// Package cache implements the tiered lookup/promotion engine: the
// Manager walks a tier.Chain on every read, promotes hits into
// shallower tiers, coalesces concurrent misses through a singleflight
// group, and optionally broadcasts writes and pattern removals over an
// invalidate.BroadcastChannel. Grounded on the teacher repo's
// cache.Cache (New/GetOrLoad defaulting style) and on
// original_source/src/cache_manager.rs's CacheManager for the
// tier-walk/promotion/broadcast algorithm (spec §4.3-§4.6).
package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/IvanBrykalov/tiercache/internal/singleflight"
	"github.com/IvanBrykalov/tiercache/invalidate"
	"github.com/IvanBrykalov/tiercache/stream"
	"github.com/IvanBrykalov/tiercache/tier"
)

// Producer computes a value on a cache miss. It receives the caller's
// context so it can honor cancellation.
type Producer func(ctx context.Context) (Value, error)

// Manager is the tiered cache entry point.
type Manager struct {
	chain *tier.Chain
	cfg   Config

	sf       singleflight.Group[string, Value]
	counters counters

	logger *zap.Logger
	closed atomic.Bool

	broadcastCh invalidate.BroadcastChannel
	sidecar     stream.Sidecar
	publisher   *invalidate.Publisher
	subscriber  *invalidate.Subscriber
}

// New builds a Manager over chain. Config zero values are defaulted
// (see Config.withDefaults). If a broadcast channel is supplied via
// WithBroadcastChannel, a Publisher is constructed immediately; call
// StartSubscriber separately to begin receiving peer invalidations —
// starting background I/O is the one thing New avoids doing implicitly.
func New(chain *tier.Chain, cfg Config, opts ...Option) (*Manager, error) {
	if chain == nil {
		return nil, errors.New("cache: chain is required")
	}
	cfg = cfg.withDefaults()

	m := &Manager{
		chain:  chain,
		cfg:    cfg,
		logger: cfg.Logger.Named("cache"),
	}
	for _, o := range opts {
		o(m)
	}

	if m.broadcastCh != nil {
		m.publisher = invalidate.NewPublisher(m.broadcastCh, cfg.invalidateConfig(), m.sidecar, m.logger)
	}
	return m, nil
}

// StartSubscriber launches the reconnect-and-apply loop for peer
// invalidations (spec §6) and returns once the first subscribe attempt
// has completed. It returns an error if no broadcast channel was
// configured. Safe to call at most once.
func (m *Manager) StartSubscriber(ctx context.Context) error {
	if m.broadcastCh == nil {
		return errors.New("cache: no broadcast channel configured")
	}
	m.subscriber = invalidate.NewSubscriber(m.broadcastCh, m.cfg.invalidateConfig(), m, m.logger)
	m.subscriber.Start(ctx)
	return nil
}

// Shutdown stops accepting new operations and drains the subscriber
// loop, if one is running.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.closed.Store(true)
	if m.subscriber != nil {
		m.subscriber.Shutdown(ctx)
	}
	return nil
}

// withTimeout bounds one tier call by Config.Timeout; a caller deadline
// that is already earlier still wins.
func (m *Manager) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, m.cfg.Timeout)
}

// Get walks the chain in ascending level order and returns the first
// live value found, promoting it into any shallower promotion-enabled
// tier (spec §4.3, §4.4). A tier read failure is treated as a miss at
// that tier; the walk continues.
func (m *Manager) Get(ctx context.Context, key string) (Value, bool, error) {
	if m.closed.Load() {
		return nil, false, ErrShutdown
	}
	v, ok := m.readChain(ctx, key)
	return v, ok, nil
}

func (m *Manager) readChain(ctx context.Context, key string) (Value, bool) {
	for _, b := range m.chain.ReadOrder() {
		tctx, cancel := m.withTimeout(ctx)
		raw, remaining, ok, err := b.Tier.GetWithRemainingTTL(tctx, key)
		cancel()
		if err != nil {
			m.logger.Warn("tier read failed, treating as miss", zap.String("tier", b.Tier.Name()), zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		if remaining != nil && *remaining <= 0 {
			continue
		}

		var v Value
		if derr := m.cfg.Codec.Decode(raw, &v); derr != nil {
			m.logger.Warn("decode failed, purging key", zap.String("tier", b.Tier.Name()), zap.String("key", key), zap.Error(derr))
			rctx, rcancel := m.withTimeout(ctx)
			_ = b.Tier.Remove(rctx, key)
			rcancel()
			continue
		}

		b.Hit()
		m.promote(ctx, b, key, raw, remaining)
		return v, true
	}
	m.counters.misses.Add(1)
	return nil, false
}

// promote writes a deeper-tier hit into every shallower promotion-target
// tier, per spec §4.4: TTL is min(remaining, target's default) when the
// source reported a remaining TTL (a target without a positive default
// takes remaining as is), else the target's default outright.
// Promotion never extends an entry's absolute expiration beyond what the
// source tier reported.
func (m *Manager) promote(ctx context.Context, source *tier.Bound, key string, raw []byte, remaining *time.Duration) {
	for _, target := range m.chain.Shallower(source.Config.Level) {
		ttl := promotionTTL(remaining, target.Config.DefaultTTL)
		if ttl <= 0 {
			continue
		}
		tctx, cancel := m.withTimeout(ctx)
		err := target.Tier.Set(tctx, key, raw, ttl)
		cancel()
		if err != nil {
			m.logger.Warn("promotion write failed", zap.String("tier", target.Tier.Name()), zap.Error(err))
			continue
		}
		m.counters.promotions.Add(1)
	}
}

// Set encodes value and writes it to every tier in the chain, scaled by
// each tier's TTLScale. Returns the first error from a required tier, if
// any, after attempting every tier (spec §4.1, §7.1). If
// Config.AutoBroadcastOnWrite is set, a successful write also publishes
// an update to peers, exactly as SetWithBroadcast does explicitly.
func (m *Manager) Set(ctx context.Context, key string, value Value, strategy Strategy) error {
	if m.closed.Load() {
		return ErrShutdown
	}
	if m.cfg.AutoBroadcastOnWrite {
		return m.SetWithBroadcast(ctx, key, value, strategy)
	}
	raw, err := m.cfg.Codec.Encode(value)
	if err != nil {
		return &EncodeError{Key: key, Err: err}
	}
	return m.writeChain(ctx, key, raw, strategy.TTL())
}

func (m *Manager) writeChain(ctx context.Context, key string, raw []byte, ttl time.Duration) error {
	var requiredErr error
	for _, b := range m.chain.WriteOrder() {
		scaled := time.Duration(float64(ttl) * b.Config.TTLScale)
		tctx, cancel := m.withTimeout(ctx)
		err := b.Tier.Set(tctx, key, raw, scaled)
		cancel()
		if err != nil {
			wrapped := &TierError{Tier: b.Tier.Name(), Op: "set", Required: b.Config.Required, Err: err}
			if b.Config.Required {
				if requiredErr == nil {
					requiredErr = wrapped
				}
			} else {
				m.logger.Warn("non-required tier write failed", zap.String("tier", b.Tier.Name()), zap.Error(err))
			}
		}
	}
	return requiredErr
}

// SetWithBroadcast writes value through every tier, then — only if
// every required tier succeeded — broadcasts an update message to peers
// (spec §4.6's resolution of "what if the required tier write fails").
func (m *Manager) SetWithBroadcast(ctx context.Context, key string, value Value, strategy Strategy) error {
	if m.closed.Load() {
		return ErrShutdown
	}
	raw, err := m.cfg.Codec.Encode(value)
	if err != nil {
		return &EncodeError{Key: key, Err: err}
	}
	if err := m.writeChain(ctx, key, raw, strategy.TTL()); err != nil {
		return err
	}
	if m.publisher != nil {
		ttl := strategy.TTL()
		if err := m.publisher.Publish(ctx, invalidate.Update(key, value, &ttl)); err != nil {
			m.logger.Warn("broadcast publish failed", zap.Error(err))
		}
	}
	return nil
}

// Remove deletes key from every tier, returning the first error
// encountered after attempting every tier. If Config.AutoBroadcastOnWrite
// is set, a successful removal also broadcasts to peers, exactly as
// RemoveWithBroadcast does explicitly.
func (m *Manager) Remove(ctx context.Context, key string) error {
	if m.closed.Load() {
		return ErrShutdown
	}
	if m.cfg.AutoBroadcastOnWrite {
		return m.RemoveWithBroadcast(ctx, key)
	}
	return m.removeChain(ctx, key)
}

func (m *Manager) removeChain(ctx context.Context, key string) error {
	var firstErr error
	for _, b := range m.chain.WriteOrder() {
		tctx, cancel := m.withTimeout(ctx)
		err := b.Tier.Remove(tctx, key)
		cancel()
		if err != nil && firstErr == nil {
			firstErr = &TierError{Tier: b.Tier.Name(), Op: "remove", Err: err}
		}
	}
	return firstErr
}

// RemoveWithBroadcast removes key locally, then broadcasts the removal
// to peers.
func (m *Manager) RemoveWithBroadcast(ctx context.Context, key string) error {
	if m.closed.Load() {
		return ErrShutdown
	}
	if err := m.removeChain(ctx, key); err != nil {
		return err
	}
	if m.publisher != nil {
		if err := m.publisher.Publish(ctx, invalidate.Remove(key)); err != nil {
			m.logger.Warn("broadcast publish failed", zap.Error(err))
		}
	}
	return nil
}

// InvalidatePattern removes every key matching a glob pattern from the
// shared tier (via Scan+RemoveBulk), cleans up local tiers inline, and
// broadcasts a RemovePattern message so peers clean up their own local
// tiers (spec §4.6: "local cleanup is done inline by the publisher").
func (m *Manager) InvalidatePattern(ctx context.Context, pattern string) error {
	if m.closed.Load() {
		return ErrShutdown
	}

	if shared := m.sharedTier(); shared != nil {
		it, err := shared.Scan(ctx, pattern)
		if err != nil {
			return &TierError{Tier: shared.Name(), Op: "scan", Err: err}
		}
		var matched []string
		for {
			batch, more := it.Next(ctx)
			matched = append(matched, batch...)
			if !more {
				break
			}
		}
		if it.Err() != nil {
			return &TierError{Tier: shared.Name(), Op: "scan", Err: it.Err()}
		}
		if len(matched) > 0 {
			if err := shared.RemoveBulk(ctx, matched); err != nil {
				return &TierError{Tier: shared.Name(), Op: "remove_bulk", Err: err}
			}
		}
	}

	if err := m.ApplyRemovePattern(ctx, pattern); err != nil {
		m.logger.Warn("local pattern cleanup failed", zap.Error(err))
	}

	if m.publisher != nil {
		if err := m.publisher.Publish(ctx, invalidate.RemovePattern(pattern)); err != nil {
			m.logger.Warn("broadcast publish failed", zap.Error(err))
		}
	}
	return nil
}

// Append appends one entry to the named stream on the configured
// sidecar (spec §4.7). Returns stream.ErrNotConfigured if no sidecar was
// wired via WithSidecar.
func (m *Manager) Append(ctx context.Context, name string, fields map[string]string, maxLen *int) (string, error) {
	if m.closed.Load() {
		return "", ErrShutdown
	}
	if m.sidecar == nil {
		return "", stream.ErrNotConfigured
	}
	return m.sidecar.Append(ctx, name, fields, maxLen)
}

// ReadLatest returns up to n of the most recently appended entries on
// the named stream. Returns stream.ErrNotConfigured if no sidecar was
// wired via WithSidecar.
func (m *Manager) ReadLatest(ctx context.Context, name string, n int) ([]stream.Record, error) {
	if m.closed.Load() {
		return nil, ErrShutdown
	}
	if m.sidecar == nil {
		return nil, stream.ErrNotConfigured
	}
	return m.sidecar.ReadLatest(ctx, name, n)
}

// ReadBlocking returns up to n entries appended after fromID, blocking
// up to timeout for at least one to arrive. Returns
// stream.ErrNotConfigured if no sidecar was wired via WithSidecar.
func (m *Manager) ReadBlocking(ctx context.Context, name, fromID string, n int, timeout time.Duration) ([]stream.Record, error) {
	if m.closed.Load() {
		return nil, ErrShutdown
	}
	if m.sidecar == nil {
		return nil, stream.ErrNotConfigured
	}
	return m.sidecar.ReadBlocking(ctx, name, fromID, n, timeout)
}

func (m *Manager) sharedTier() tier.SharedTier {
	for _, b := range m.chain.WriteOrder() {
		if st, ok := b.Tier.(tier.SharedTier); ok {
			return st
		}
	}
	return nil
}

// Stats returns a snapshot of every counter the manager tracks.
func (m *Manager) Stats() Stats {
	tiers := make([]TierStat, 0, m.chain.Len())
	for _, b := range m.chain.ReadOrder() {
		tiers = append(tiers, TierStat{Name: b.Tier.Name(), Level: b.Config.Level, Hits: b.Hits()})
	}
	s := Stats{
		Tiers:               tiers,
		Misses:              m.counters.misses.Load(),
		Promotions:          m.counters.promotions.Load(),
		InFlightWaits:       m.counters.inFlightWaits.Load(),
		InvalidationsByKind: map[string]uint64{},
	}
	if m.publisher != nil {
		s.InvalidationsSent = m.publisher.Sent()
	}
	if m.subscriber != nil {
		st := m.subscriber.Stats()
		s.InvalidationsReceived = st.MessagesReceived
		s.SubscriberErrors = st.Errors
		s.InvalidationsByKind["remove"] = st.RemovesReceived
		s.InvalidationsByKind["update"] = st.UpdatesReceived
		s.InvalidationsByKind["remove_pattern"] = st.PatternsReceived
		s.InvalidationsByKind["remove_bulk"] = st.BulkRemovesReceived
	}
	return s
}
