// Package memory provides the in-memory bounded tier reference
// collaborator: a sharded, size-and-age evicting key/value store
// implementing tier.Tier. It is adapted from the teacher repo's generic
// sharded cache (IvanBrykalov/shardcache), specialized to the concrete
// (string, []byte) shape tier.Tier requires and stripped of the
// cost-accounting machinery the teacher offered but this tier doesn't
// need.
package memory

import (
	"context"
	"runtime"
	"time"

	"github.com/IvanBrykalov/tiercache/internal/util"
	"github.com/IvanBrykalov/tiercache/policy"
	"github.com/IvanBrykalov/tiercache/policy/lru"
	"github.com/IvanBrykalov/tiercache/tier"
)

// DefaultCapacity is the default total entry-count limit (spec §6).
const DefaultCapacity = 2000

// DefaultTTL is the reference per-entry TTL for a memory tier (spec §6).
// The tier does not apply it itself: every Set carries its own ttl, and
// a zero or negative ttl deletes the key rather than falling back to
// DefaultTTL.
const DefaultTTL = 5 * time.Minute

// Clock provides time in UnixNano; lets tests use a deterministic clock
// instead of time.Now.
type Clock interface{ NowUnixNano() int64 }

// Options configures a memory tier. Zero values are safe: Capacity<=0
// becomes DefaultCapacity, Shards<=0 picks an automatic shard count, nil
// Policy defaults to LRU.
type Options struct {
	Capacity int
	Shards   int
	Policy   policy.Policy[string, []byte]
	Clock    Clock
	TierName string
}

// Tier is the in-memory bounded tier reference collaborator.
type Tier struct {
	shards []*shard
	hash   func(string) uint64
	name   string
}

// New constructs a memory Tier. It does not fail: every Options field
// that is zero or out of range is replaced by its default, so capacity
// always resolves to > 0.
func New(opt Options) *Tier {
	capacity := opt.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	pol := opt.Policy
	if pol == nil {
		pol = lru.New[string, []byte]()
	}

	sh := opt.Shards
	if sh <= 0 {
		auto := 2 * runtime.GOMAXPROCS(0)
		sh = int(util.NextPow2(uint64(auto)))
		if sh < 1 {
			sh = 1
		}
	} else {
		sh = int(util.NextPow2(uint64(sh)))
	}

	name := opt.TierName
	if name == "" {
		name = "memory"
	}

	perShardCap := (capacity + sh - 1) / sh
	shards := make([]*shard, sh)
	for i := range shards {
		shards[i] = newShard(perShardCap, pol, opt.Clock)
	}

	return &Tier{
		shards: shards,
		hash:   util.Fnv64a[string],
		name:   name,
	}
}

func (t *Tier) getShard(key string) *shard {
	h := t.hash(key)
	return t.shards[int(h)&(len(t.shards)-1)]
}

// Get implements tier.Tier.
func (t *Tier) Get(_ context.Context, key string) ([]byte, bool, error) {
	val, _, ok := t.getShard(key).Get(key)
	return val, ok, nil
}

// GetWithRemainingTTL implements tier.Tier.
func (t *Tier) GetWithRemainingTTL(_ context.Context, key string) ([]byte, *time.Duration, bool, error) {
	val, remaining, ok := t.getShard(key).Get(key)
	return val, remaining, ok, nil
}

// Set implements tier.Tier. A zero or negative ttl deletes the key.
func (t *Tier) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		t.getShard(key).Remove(key)
		return nil
	}
	s := t.getShard(key)
	s.Set(key, value, s.now()+int64(ttl))
	return nil
}

// Remove implements tier.Tier.
func (t *Tier) Remove(_ context.Context, key string) error {
	t.getShard(key).Remove(key)
	return nil
}

// Health implements tier.Tier. The memory tier has no external
// dependency, so it is always healthy.
func (t *Tier) Health(_ context.Context) bool { return true }

// Name implements tier.Tier.
func (t *Tier) Name() string { return t.name }

// Len returns the total number of resident entries across all shards.
func (t *Tier) Len() int {
	total := 0
	for _, s := range t.shards {
		total += s.Len()
	}
	return total
}

// Keys returns a snapshot of every live key across all shards. Exposed
// for the subscriber's local glob-pattern cleanup (spec §4.6:
// "RemovePattern... applies a glob match to every in-memory tier").
func (t *Tier) Keys() []string {
	out := make([]string, 0, t.Len())
	for _, s := range t.shards {
		out = append(out, s.Keys()...)
	}
	return out
}

var (
	_ tier.Tier   = (*Tier)(nil)
	_ tier.Lister = (*Tier)(nil)
)
