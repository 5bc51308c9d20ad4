package singleflight

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestGroup_DedupesConcurrentCalls(t *testing.T) {
	t.Parallel()

	var g Group[string, int]
	var calls atomic.Int64

	var eg errgroup.Group
	results := make([]int, 50)
	for i := 0; i < 50; i++ {
		i := i
		eg.Go(func() error {
			v, err, _ := g.Do(context.Background(), "k", func() (int, error) {
				calls.Add(1)
				time.Sleep(50 * time.Millisecond)
				return 42, nil
			})
			results[i] = v
			return err
		})
	}
	require.NoError(t, eg.Wait())
	require.EqualValues(t, 1, calls.Load())
	for _, v := range results {
		require.Equal(t, 42, v)
	}
}

func TestGroup_EntryRemovedAfterCompletion(t *testing.T) {
	t.Parallel()

	var g Group[string, int]
	_, _, shared := g.Do(context.Background(), "k", func() (int, error) { return 1, nil })
	require.False(t, shared)

	// A later call should not see a stale in-flight entry; it becomes a
	// fresh leader.
	var calls atomic.Int64
	_, _, shared = g.Do(context.Background(), "k", func() (int, error) {
		calls.Add(1)
		return 2, nil
	})
	require.False(t, shared)
	require.EqualValues(t, 1, calls.Load())
}

func TestGroup_FollowerRespectsContextCancellation(t *testing.T) {
	t.Parallel()

	var g Group[string, int]
	started := make(chan struct{})
	release := make(chan struct{})

	go func() {
		_, _, _ = g.Do(context.Background(), "k", func() (int, error) {
			close(started)
			<-release
			return 7, nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err, shared := g.Do(ctx, "k", func() (int, error) {
		t.Fatal("follower must not execute fn")
		return 0, nil
	})
	require.True(t, shared)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	close(release)
}

func TestGroup_ProducerErrorPropagatesToWaiters(t *testing.T) {
	t.Parallel()

	var g Group[string, int]
	boom := errTest("boom")

	var eg errgroup.Group
	errs := make([]error, 10)
	for i := 0; i < 10; i++ {
		i := i
		eg.Go(func() error {
			_, err, _ := g.Do(context.Background(), "z", func() (int, error) {
				time.Sleep(10 * time.Millisecond)
				return 0, boom
			})
			errs[i] = err
			return nil
		})
	}
	require.NoError(t, eg.Wait())
	for _, err := range errs {
		require.ErrorIs(t, err, boom)
	}
}

type errTest string

func (e errTest) Error() string { return string(e) }
