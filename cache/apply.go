package cache

import (
	"context"
	"time"

	"github.com/gobwas/glob"

	"github.com/IvanBrykalov/tiercache/invalidate"
	"github.com/IvanBrykalov/tiercache/tier"
)

var _ invalidate.ApplyTarget = (*Manager)(nil)

// The methods in this file implement invalidate.ApplyTarget, letting a
// Manager act as the local application point for invalidations received
// from peers (spec §6). They apply only to non-shared tiers: the shared
// tier is, by construction, the thing every peer already observes
// directly, so re-applying a remote peer's write to it would be
// redundant at best and a stale overwrite at worst.

func isSharedTier(b *tier.Bound) bool {
	_, ok := b.Tier.(tier.SharedTier)
	return ok
}

// ApplyRemove implements invalidate.ApplyTarget.
func (m *Manager) ApplyRemove(ctx context.Context, key string) error {
	var firstErr error
	for _, b := range m.chain.WriteOrder() {
		if isSharedTier(b) {
			continue
		}
		tctx, cancel := m.withTimeout(ctx)
		err := b.Tier.Remove(tctx, key)
		cancel()
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ApplyUpdate implements invalidate.ApplyTarget.
func (m *Manager) ApplyUpdate(ctx context.Context, key string, value any, ttl *time.Duration) error {
	raw, err := m.cfg.Codec.Encode(value)
	if err != nil {
		return err
	}
	var firstErr error
	for _, b := range m.chain.WriteOrder() {
		if isSharedTier(b) {
			continue
		}
		d := b.Config.DefaultTTL
		if ttl != nil {
			d = *ttl
		}
		if d <= 0 {
			continue
		}
		tctx, cancel := m.withTimeout(ctx)
		err := b.Tier.Set(tctx, key, raw, d)
		cancel()
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ApplyRemovePattern implements invalidate.ApplyTarget. It only touches
// tiers implementing tier.Lister (the in-memory reference tier does);
// tiers that cannot enumerate their keys are skipped, best-effort.
func (m *Manager) ApplyRemovePattern(ctx context.Context, pattern string) error {
	g, err := glob.Compile(pattern)
	if err != nil {
		return err
	}
	var firstErr error
	for _, b := range m.chain.WriteOrder() {
		if isSharedTier(b) {
			continue
		}
		lister, ok := b.Tier.(tier.Lister)
		if !ok {
			continue
		}
		for _, k := range lister.Keys() {
			if !g.Match(k) {
				continue
			}
			tctx, cancel := m.withTimeout(ctx)
			err := b.Tier.Remove(tctx, k)
			cancel()
			if err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// ApplyRemoveBulk implements invalidate.ApplyTarget.
func (m *Manager) ApplyRemoveBulk(ctx context.Context, keys []string) error {
	var firstErr error
	for _, b := range m.chain.WriteOrder() {
		if isSharedTier(b) {
			continue
		}
		for _, k := range keys {
			tctx, cancel := m.withTimeout(ctx)
			err := b.Tier.Remove(tctx, k)
			cancel()
			if err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
