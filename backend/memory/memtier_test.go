package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/IvanBrykalov/tiercache/policy/twoq"
)

type fakeClock struct{ t int64 }

func (f *fakeClock) NowUnixNano() int64  { return f.t }
func (f *fakeClock) add(d time.Duration) { f.t += int64(d) }

func TestTier_TTL_FakeClock(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clk := &fakeClock{}
	tr := New(Options{Capacity: 4, Clock: clk, Shards: 1})

	require.NoError(t, tr.Set(ctx, "x", []byte("v"), 100*time.Millisecond))
	_, ok, err := tr.Get(ctx, "x")
	require.NoError(t, err)
	require.True(t, ok)

	clk.add(200 * time.Millisecond)
	_, ok, err = tr.Get(ctx, "x")
	require.NoError(t, err)
	require.False(t, ok, "expired entry must report a miss")
}

func TestTier_SetGetRemove(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tr := New(Options{Capacity: 16})

	require.NoError(t, tr.Set(ctx, "a", []byte("1"), time.Minute))
	v, ok, err := tr.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("1"), v)

	require.NoError(t, tr.Remove(ctx, "a"))
	_, ok, err = tr.Get(ctx, "a")
	require.NoError(t, err)
	require.False(t, ok)

	// Idempotent removal.
	require.NoError(t, tr.Remove(ctx, "a"))
}

func TestTier_GetWithRemainingTTL(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tr := New(Options{Capacity: 16})

	require.NoError(t, tr.Set(ctx, "k", []byte("v"), 10*time.Second))
	_, remaining, ok, err := tr.GetWithRemainingTTL(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, remaining)
	require.LessOrEqual(t, *remaining, 10*time.Second)
	require.Greater(t, *remaining, 9*time.Second)
}

func TestTier_CapacityEviction(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tr := New(Options{Capacity: 2, Shards: 1})

	require.NoError(t, tr.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, tr.Set(ctx, "b", []byte("2"), time.Minute))
	require.NoError(t, tr.Set(ctx, "c", []byte("3"), time.Minute))

	require.LessOrEqual(t, tr.Len(), 2)
	// "a" was least-recently-used and should have been evicted.
	_, ok, _ := tr.Get(ctx, "a")
	require.False(t, ok)
}

func TestTier_WithTwoQPolicy(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tr := New(Options{Capacity: 8, Shards: 1, Policy: twoq.New[string, []byte](2, 4)})

	require.NoError(t, tr.Set(ctx, "a", []byte("1"), time.Minute))
	_, ok, err := tr.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestTier_Keys(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tr := New(Options{Capacity: 16})

	require.NoError(t, tr.Set(ctx, "p:1", []byte("1"), time.Minute))
	require.NoError(t, tr.Set(ctx, "p:2", []byte("2"), time.Minute))
	require.NoError(t, tr.Set(ctx, "q:1", []byte("3"), time.Minute))

	keys := tr.Keys()
	require.Len(t, keys, 3)
}

func TestTier_ZeroTTLDeletes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tr := New(Options{Capacity: 16})

	require.NoError(t, tr.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, tr.Set(ctx, "a", []byte("1"), 0))

	_, ok, _ := tr.Get(ctx, "a")
	require.False(t, ok)
}
