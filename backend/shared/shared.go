// Package shared provides the reference "shared/network" tier
// collaborator: a mutex-guarded map standing in for a distributed
// key-value service. No library in the example pack imports a real
// distributed-KV client (see DESIGN.md), and spec §1 treats the wire
// protocol to such a service as an opaque non-goal, so this tier is a
// from-scratch stand-in in the same spirit as the teacher's own
// from-scratch backend/memory/shard.go — it satisfies tier.SharedTier
// (TTL introspection, glob scanning, bulk removal) so higher layers can
// be built and tested against a real implementation of that contract.
package shared

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gobwas/glob"

	"github.com/IvanBrykalov/tiercache/tier"
)

const scanBatchSize = 256

type entry struct {
	value []byte
	exp   int64 // unix nano deadline; 0 means no expiration
}

// Clock provides time in UnixNano; lets tests use a deterministic clock.
type Clock interface{ NowUnixNano() int64 }

// Tier is the shared reference tier.
type Tier struct {
	mu   sync.RWMutex
	m    map[string]entry
	name string
	clk  Clock
}

// New constructs a Tier. name defaults to "shared".
func New(name string) *Tier {
	if name == "" {
		name = "shared"
	}
	return &Tier{m: make(map[string]entry), name: name}
}

// NewWithClock is New with an injected clock, for deterministic tests.
func NewWithClock(name string, clk Clock) *Tier {
	t := New(name)
	t.clk = clk
	return t
}

func (t *Tier) now() int64 {
	if t.clk != nil {
		return t.clk.NowUnixNano()
	}
	return time.Now().UnixNano()
}

// Get implements tier.Tier.
func (t *Tier) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, _, ok, err := t.GetWithRemainingTTL(ctx, key)
	return v, ok, err
}

// GetWithRemainingTTL implements tier.Tier.
func (t *Tier) GetWithRemainingTTL(_ context.Context, key string) ([]byte, *time.Duration, bool, error) {
	t.mu.RLock()
	e, ok := t.m[key]
	t.mu.RUnlock()
	if !ok {
		return nil, nil, false, nil
	}
	if e.exp == 0 {
		return e.value, nil, true, nil
	}
	remaining := time.Duration(e.exp - t.now())
	if remaining <= 0 {
		t.mu.Lock()
		delete(t.m, key)
		t.mu.Unlock()
		return nil, nil, false, nil
	}
	return e.value, &remaining, true, nil
}

// Set implements tier.Tier. A zero or negative ttl deletes the key.
func (t *Tier) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		t.mu.Lock()
		delete(t.m, key)
		t.mu.Unlock()
		return nil
	}
	t.mu.Lock()
	t.m[key] = entry{value: value, exp: t.now() + int64(ttl)}
	t.mu.Unlock()
	return nil
}

// Remove implements tier.Tier.
func (t *Tier) Remove(_ context.Context, key string) error {
	t.mu.Lock()
	delete(t.m, key)
	t.mu.Unlock()
	return nil
}

// Health implements tier.Tier.
func (t *Tier) Health(_ context.Context) bool { return true }

// Name implements tier.Tier.
func (t *Tier) Name() string { return t.name }

// RemoveBulk implements tier.SharedTier.
func (t *Tier) RemoveBulk(_ context.Context, keys []string) error {
	t.mu.Lock()
	for _, k := range keys {
		delete(t.m, k)
	}
	t.mu.Unlock()
	return nil
}

type keyIterator struct {
	keys []string
	pos  int
}

func (it *keyIterator) Next(_ context.Context) ([]string, bool) {
	if it.pos >= len(it.keys) {
		return nil, false
	}
	end := it.pos + scanBatchSize
	if end > len(it.keys) {
		end = len(it.keys)
	}
	batch := it.keys[it.pos:end]
	it.pos = end
	return batch, it.pos < len(it.keys)
}

func (it *keyIterator) Err() error { return nil }

// Scan implements tier.SharedTier.
func (t *Tier) Scan(_ context.Context, pattern string) (tier.KeyIterator, error) {
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("shared: compile pattern %q: %w", pattern, err)
	}

	t.mu.RLock()
	now := t.now()
	matched := make([]string, 0, len(t.m))
	for k, e := range t.m {
		if e.exp != 0 && now > e.exp {
			continue
		}
		if g.Match(k) {
			matched = append(matched, k)
		}
	}
	t.mu.RUnlock()

	sort.Strings(matched)
	return &keyIterator{keys: matched}, nil
}

// Keys returns every live key (tier.Lister), used by tests and by
// peers without their own shared-tier backing.
func (t *Tier) Keys() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	now := t.now()
	out := make([]string, 0, len(t.m))
	for k, e := range t.m {
		if e.exp == 0 || now <= e.exp {
			out = append(out, k)
		}
	}
	return out
}

var (
	_ tier.SharedTier = (*Tier)(nil)
	_ tier.Lister     = (*Tier)(nil)
)
