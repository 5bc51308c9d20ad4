package cache_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/tiercache/backend/broadcast/local"
	"github.com/IvanBrykalov/tiercache/backend/memory"
	"github.com/IvanBrykalov/tiercache/backend/shared"
	"github.com/IvanBrykalov/tiercache/cache"
	"github.com/IvanBrykalov/tiercache/stream"
	"github.com/IvanBrykalov/tiercache/tier"
)

func withDefaultTTL(c tier.Config, d time.Duration) tier.Config {
	c.DefaultTTL = d
	return c
}

func newTestChain(t *testing.T) (*tier.Chain, *memory.Tier, *shared.Tier) {
	t.Helper()
	l1 := memory.New(memory.Options{Capacity: 64, TierName: "l1"})
	sharedTier := shared.New("shared")

	chain, err := tier.NewChain(
		tier.Entry{Backend: l1, Config: withDefaultTTL(tier.L1(), time.Minute)},
		tier.Entry{Backend: sharedTier, Config: withDefaultTTL(tier.L2().WithRequired(true), time.Minute)},
	)
	require.NoError(t, err)
	return chain, l1, sharedTier
}

func TestManager_GetMissReturnsFalse(t *testing.T) {
	t.Parallel()
	chain, _, _ := newTestChain(t)
	m, err := cache.New(chain, cache.Config{})
	require.NoError(t, err)

	v, ok, err := m.Get(context.Background(), "missing")
	require.NoError(t, err)
	require.False(t, ok)
	require.Nil(t, v)
}

func TestManager_SetThenGetReadsFromShallowestTier(t *testing.T) {
	t.Parallel()
	chain, l1, _ := newTestChain(t)
	m, err := cache.New(chain, cache.Config{})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k", cache.Value{"n": float64(1)}, cache.ShortTerm))

	v, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, float64(1), v["n"])
	require.Greater(t, l1.Len(), 0)
}

func TestManager_PromotionOnDeeperHit(t *testing.T) {
	t.Parallel()
	chain, l1, sharedTier := newTestChain(t)
	m, err := cache.New(chain, cache.Config{})
	require.NoError(t, err)
	ctx := context.Background()

	// Write directly to the shared tier only, bypassing L1 entirely.
	raw, err := json.Marshal(cache.Value{"n": float64(42)})
	require.NoError(t, err)
	require.NoError(t, sharedTier.Set(ctx, "k", raw, time.Minute))
	require.Equal(t, 0, l1.Len())

	v, ok, getErr := m.Get(ctx, "k")
	require.NoError(t, getErr)
	require.True(t, ok)
	require.Equal(t, float64(42), v["n"])
	require.Equal(t, 1, l1.Len(), "a deeper hit must be promoted into L1")
}

func TestManager_RequiredTierWriteFailureSurfaces(t *testing.T) {
	t.Parallel()
	l1 := memory.New(memory.Options{Capacity: 8, TierName: "l1"})
	failing := &alwaysFailTier{name: "shared"}
	chain, err := tier.NewChain(
		tier.Entry{Backend: l1, Config: withDefaultTTL(tier.L1(), time.Minute)},
		tier.Entry{Backend: failing, Config: withDefaultTTL(tier.L2().WithRequired(true), time.Minute)},
	)
	require.NoError(t, err)

	m, err := cache.New(chain, cache.Config{})
	require.NoError(t, err)

	err = m.Set(context.Background(), "k", cache.Value{"n": float64(1)}, cache.ShortTerm)
	require.Error(t, err)
	var tierErr *cache.TierError
	require.ErrorAs(t, err, &tierErr)
	require.Equal(t, "shared", tierErr.Tier)
}

func TestManager_GetOrCompute_CoalescesConcurrentMisses(t *testing.T) {
	t.Parallel()
	chain, _, _ := newTestChain(t)
	m, err := cache.New(chain, cache.Config{})
	require.NoError(t, err)

	var calls atomic.Int64
	producer := func(ctx context.Context) (cache.Value, error) {
		calls.Add(1)
		time.Sleep(50 * time.Millisecond)
		return cache.Value{"n": float64(7)}, nil
	}

	var eg errgroup.Group
	for i := 0; i < 20; i++ {
		eg.Go(func() error {
			v, err := m.GetOrCompute(context.Background(), "k", cache.ShortTerm, producer)
			if err != nil {
				return err
			}
			if v["n"] != float64(7) {
				return errors.New("unexpected value")
			}
			return nil
		})
	}
	require.NoError(t, eg.Wait())
	require.EqualValues(t, 1, calls.Load())
	require.Greater(t, m.Stats().InFlightWaits, uint64(0))
}

func TestManager_GetOrCompute_ProducerErrorPropagates(t *testing.T) {
	t.Parallel()
	chain, _, _ := newTestChain(t)
	m, err := cache.New(chain, cache.Config{})
	require.NoError(t, err)

	boom := errors.New("boom")
	_, err = m.GetOrCompute(context.Background(), "k", cache.ShortTerm, func(ctx context.Context) (cache.Value, error) {
		return nil, boom
	})
	require.Error(t, err)
	require.ErrorIs(t, err, cache.ErrUpstreamFailed)
	require.ErrorIs(t, err, boom)
}

func TestManager_SetWithBroadcast_PeerAppliesUpdate(t *testing.T) {
	t.Parallel()
	ch := local.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	chainA, _, _ := newTestChain(t)
	mgrA, err := cache.New(chainA, cache.Config{Origin: "origin-a"}, cache.WithBroadcastChannel(ch))
	require.NoError(t, err)

	chainB, l1B, _ := newTestChain(t)
	mgrB, err := cache.New(chainB, cache.Config{Origin: "origin-b"}, cache.WithBroadcastChannel(ch))
	require.NoError(t, err)
	require.NoError(t, mgrB.StartSubscriber(ctx))

	require.NoError(t, mgrA.SetWithBroadcast(ctx, "k", cache.Value{"n": float64(9)}, cache.ShortTerm))

	require.Eventually(t, func() bool {
		return l1B.Len() > 0
	}, time.Second, 10*time.Millisecond)

	v, ok, err := mgrB.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, float64(9), v["n"])
}

func TestManager_SetWithBroadcast_OriginatorIgnoresOwnEcho(t *testing.T) {
	t.Parallel()
	ch := local.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	chainA, l1A, _ := newTestChain(t)
	mgrA, err := cache.New(chainA, cache.Config{Origin: "origin-a"}, cache.WithBroadcastChannel(ch))
	require.NoError(t, err)
	require.NoError(t, mgrA.StartSubscriber(ctx))

	require.NoError(t, mgrA.SetWithBroadcast(ctx, "k", cache.Value{"n": float64(1)}, cache.ShortTerm))

	// Give the subscriber loop a chance to observe (and discard) its own
	// echo; L1 should contain exactly the entry written by Set itself.
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 1, l1A.Len())
	require.Zero(t, mgrA.Stats().InvalidationsByKind["update"])
}

func TestManager_InvalidatePattern_CleansSharedAndLocalTiers(t *testing.T) {
	t.Parallel()
	chain, l1, sharedTier := newTestChain(t)
	m, err := cache.New(chain, cache.Config{})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "user:1", cache.Value{"n": float64(1)}, cache.ShortTerm))
	require.NoError(t, m.Set(ctx, "user:2", cache.Value{"n": float64(2)}, cache.ShortTerm))
	require.NoError(t, m.Set(ctx, "order:1", cache.Value{"n": float64(3)}, cache.ShortTerm))

	require.NoError(t, m.InvalidatePattern(ctx, "user:*"))

	_, ok, _ := m.Get(ctx, "user:1")
	require.False(t, ok)
	_, ok, _ = m.Get(ctx, "user:2")
	require.False(t, ok)
	_, ok, _ = m.Get(ctx, "order:1")
	require.True(t, ok)

	require.NotContains(t, sharedTier.Keys(), "user:1")
	require.NotContains(t, l1.Keys(), "user:1")
}

func TestManager_SetWithBroadcast_SkipsPublishOnRequiredTierFailure(t *testing.T) {
	t.Parallel()
	l1 := memory.New(memory.Options{Capacity: 8, TierName: "l1"})
	failing := &alwaysFailTier{name: "shared"}
	chain, err := tier.NewChain(
		tier.Entry{Backend: l1, Config: withDefaultTTL(tier.L1(), time.Minute)},
		tier.Entry{Backend: failing, Config: withDefaultTTL(tier.L2().WithRequired(true), time.Minute)},
	)
	require.NoError(t, err)

	ch := local.New()
	m, err := cache.New(chain, cache.Config{Origin: "origin-a"}, cache.WithBroadcastChannel(ch))
	require.NoError(t, err)

	err = m.SetWithBroadcast(context.Background(), "k", cache.Value{"n": float64(1)}, cache.ShortTerm)
	require.Error(t, err, "the required tier's write failure must surface")
	require.Zero(t, m.Stats().InvalidationsSent, "a failed required-tier write must not be broadcast to peers")
}

func TestManager_AutoBroadcastOnWrite_PlainSetReachesPeer(t *testing.T) {
	t.Parallel()
	ch := local.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	chainA, _, _ := newTestChain(t)
	mgrA, err := cache.New(chainA, cache.Config{Origin: "origin-a", AutoBroadcastOnWrite: true}, cache.WithBroadcastChannel(ch))
	require.NoError(t, err)

	chainB, l1B, _ := newTestChain(t)
	mgrB, err := cache.New(chainB, cache.Config{Origin: "origin-b"}, cache.WithBroadcastChannel(ch))
	require.NoError(t, err)
	require.NoError(t, mgrB.StartSubscriber(ctx))

	// Plain Set, not SetWithBroadcast: AutoBroadcastOnWrite should still
	// propagate it to the peer.
	require.NoError(t, mgrA.Set(ctx, "k", cache.Value{"n": float64(5)}, cache.ShortTerm))

	require.Eventually(t, func() bool {
		return l1B.Len() > 0
	}, time.Second, 10*time.Millisecond)
}

func TestManager_Shutdown_RejectsFurtherOperations(t *testing.T) {
	t.Parallel()
	chain, _, _ := newTestChain(t)
	m, err := cache.New(chain, cache.Config{})
	require.NoError(t, err)

	require.NoError(t, m.Shutdown(context.Background()))

	_, _, err = m.Get(context.Background(), "k")
	require.ErrorIs(t, err, cache.ErrShutdown)

	err = m.Set(context.Background(), "k", cache.Value{}, cache.ShortTerm)
	require.ErrorIs(t, err, cache.ErrShutdown)
}

func TestManager_Append_WithoutSidecarReturnsErrNotConfigured(t *testing.T) {
	t.Parallel()
	chain, _, _ := newTestChain(t)
	m, err := cache.New(chain, cache.Config{})
	require.NoError(t, err)

	_, err = m.Append(context.Background(), "events", map[string]string{"k": "v"}, nil)
	require.ErrorIs(t, err, stream.ErrNotConfigured)

	_, err = m.ReadLatest(context.Background(), "events", 10)
	require.ErrorIs(t, err, stream.ErrNotConfigured)

	_, err = m.ReadBlocking(context.Background(), "events", "", 10, 10*time.Millisecond)
	require.ErrorIs(t, err, stream.ErrNotConfigured)
}

func TestManager_Append_WithSidecarPassesThrough(t *testing.T) {
	t.Parallel()
	chain, _, _ := newTestChain(t)
	sidecar := shared.NewStreamLog()
	m, err := cache.New(chain, cache.Config{}, cache.WithSidecar(sidecar))
	require.NoError(t, err)
	ctx := context.Background()

	id, err := m.Append(ctx, "events", map[string]string{"type": "order_placed"}, nil)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	records, err := m.ReadLatest(ctx, "events", 5)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "order_placed", records[0].Fields["type"])
}

type alwaysFailTier struct{ name string }

func (a *alwaysFailTier) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (a *alwaysFailTier) GetWithRemainingTTL(context.Context, string) ([]byte, *time.Duration, bool, error) {
	return nil, nil, false, nil
}
func (a *alwaysFailTier) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("write failed")
}
func (a *alwaysFailTier) Remove(context.Context, string) error { return nil }
func (a *alwaysFailTier) Health(context.Context) bool          { return false }
func (a *alwaysFailTier) Name() string                          { return a.name }

var _ tier.Tier = (*alwaysFailTier)(nil)
