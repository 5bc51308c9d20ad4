package tier

import (
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
)

// ErrDuplicateLevel is returned by NewChain when two entries request the
// same level. This is a configuration error: the chain fails to build
// rather than partially initializing (spec §7.4).
var ErrDuplicateLevel = errors.New("tier: duplicate level in chain")

// ErrNoEntries is returned by NewChain when called with zero entries.
var ErrNoEntries = errors.New("tier: chain requires at least one entry")

// Entry pairs a backend with the configuration describing its place in the
// chain.
type Entry struct {
	Backend Tier
	Config  Config
}

// Bound wraps a Tier with its chain configuration and a monotone hit
// counter. Bound values are owned by a Chain and are not meant to be
// constructed directly by callers.
type Bound struct {
	Tier   Tier
	Config Config

	hits atomic.Uint64
}

// Hits returns the number of reads satisfied at this tier so far.
func (b *Bound) Hits() uint64 { return b.hits.Load() }

// Hit records a read satisfied at this tier. Called by the cache manager.
func (b *Bound) Hit() { b.hits.Add(1) }

// Chain is an ordered, level-sorted set of tiers. It is built once and is
// safe for concurrent read access afterward; the set of tiers never
// changes after construction.
type Chain struct {
	ordered []*Bound
}

// NewChain validates and builds a Chain from entries. Levels must be
// non-negative and unique across entries; violating either fails the
// build with ErrDuplicateLevel (or a level-sign error) rather than
// returning a partially usable Chain.
func NewChain(entries ...Entry) (*Chain, error) {
	if len(entries) == 0 {
		return nil, ErrNoEntries
	}

	seen := make(map[int]struct{}, len(entries))
	bound := make([]*Bound, 0, len(entries))
	for _, e := range entries {
		if e.Config.Level < 0 {
			return nil, fmt.Errorf("tier: negative level %d for tier %q", e.Config.Level, e.Backend.Name())
		}
		if _, dup := seen[e.Config.Level]; dup {
			return nil, fmt.Errorf("%w: level %d", ErrDuplicateLevel, e.Config.Level)
		}
		seen[e.Config.Level] = struct{}{}
		bound = append(bound, &Bound{Tier: e.Backend, Config: e.Config})
	}

	sort.Slice(bound, func(i, j int) bool { return bound[i].Config.Level < bound[j].Config.Level })

	return &Chain{ordered: bound}, nil
}

// NewLegacyChain reproduces the "legacy two-tier mode" spec §4.2 calls
// out: an L1 tier that accepts promoted hits and a shared tier at L2,
// marked required, with unit TTL scaling. Behaviorally identical to an
// explicit two-tier NewChain call with those configs.
func NewLegacyChain(l1, shared Tier) (*Chain, error) {
	return NewChain(
		Entry{Backend: l1, Config: L1()},
		Entry{Backend: shared, Config: L2().WithRequired(true)},
	)
}

// ReadOrder returns tiers in ascending level order, the order reads
// consult them.
func (c *Chain) ReadOrder() []*Bound { return c.ordered }

// WriteOrder returns tiers in ascending level order. Identical to
// ReadOrder per spec §4.2.
func (c *Chain) WriteOrder() []*Bound { return c.ordered }

// Shallower returns every bound tier whose level is strictly less than
// level and which accepts promotions.
func (c *Chain) Shallower(level int) []*Bound {
	out := make([]*Bound, 0, len(c.ordered))
	for _, b := range c.ordered {
		if b.Config.Level < level && b.Config.Promotion {
			out = append(out, b)
		}
	}
	return out
}

// Len returns the number of tiers in the chain.
func (c *Chain) Len() int { return len(c.ordered) }
