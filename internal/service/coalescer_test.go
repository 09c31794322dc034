package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoalescer_SharesInFlightCall(t *testing.T) {
	c := NewCoalescer[int](time.Second, newFakeClock())

	var calls atomic.Int32
	release := make(chan struct{})
	factory := func(context.Context) (int, error) {
		calls.Add(1)
		<-release
		return 42, nil
	}

	const callers = 10
	var wg sync.WaitGroup
	results := make([]int, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.Do(context.Background(), "k", factory)
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, v := range results {
		assert.Equal(t, 42, v)
	}
}

func TestCoalescer_GraceWindow(t *testing.T) {
	clock := newFakeClock()
	c := NewCoalescer[int](3*time.Second, clock)

	var calls atomic.Int32
	factory := func(context.Context) (int, error) {
		return int(calls.Add(1)), nil
	}

	v, err := c.Do(context.Background(), "k", factory)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	clock.Advance(2 * time.Second)
	v, err = c.Do(context.Background(), "k", factory)
	require.NoError(t, err)
	assert.Equal(t, 1, v, "result inside the grace window is shared")

	clock.Advance(time.Second)
	v, err = c.Do(context.Background(), "k", factory)
	require.NoError(t, err)
	assert.Equal(t, 2, v, "expired result triggers a fresh call")
}

func TestCoalescer_FailureIsSharedThenRetried(t *testing.T) {
	clock := newFakeClock()
	c := NewCoalescer[string](time.Second, clock)
	boom := errors.New("boom")

	_, err := c.Do(context.Background(), "k", func(context.Context) (string, error) { return "", boom })
	assert.ErrorIs(t, err, boom)

	_, err = c.Do(context.Background(), "k", func(context.Context) (string, error) { return "ok", nil })
	assert.ErrorIs(t, err, boom, "failure is cached during the grace window")

	clock.Advance(time.Second)
	v, err := c.Do(context.Background(), "k", func(context.Context) (string, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestCoalescer_KeysAreIndependent(t *testing.T) {
	c := NewCoalescer[string](time.Second, newFakeClock())

	a, err := c.Do(context.Background(), "a", func(context.Context) (string, error) { return "A", nil })
	require.NoError(t, err)
	b, err := c.Do(context.Background(), "b", func(context.Context) (string, error) { return "B", nil })
	require.NoError(t, err)

	assert.Equal(t, "A", a)
	assert.Equal(t, "B", b)
	assert.Equal(t, 2, c.Len())
}

func TestCoalescer_SweepAndForget(t *testing.T) {
	clock := newFakeClock()
	c := NewCoalescer[int](time.Second, clock)
	one := func(context.Context) (int, error) { return 1, nil }

	_, _ = c.Do(context.Background(), "a", one)
	_, _ = c.Do(context.Background(), "b", one)
	require.Equal(t, 2, c.Len())

	c.Forget("a")
	assert.Equal(t, 1, c.Len())

	assert.Equal(t, 0, c.Sweep())
	clock.Advance(time.Second)
	assert.Equal(t, 1, c.Sweep())
	assert.Equal(t, 0, c.Len())
}

func TestCoalescer_CallerCancellation(t *testing.T) {
	c := NewCoalescer[int](time.Second, newFakeClock())

	release := make(chan struct{})
	factory := func(ctx context.Context) (int, error) {
		<-release
		return 7, ctx.Err()
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.Do(ctx, "k", factory)
		done <- err
	}()

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	// The factory keeps running for other waiters and is not canceled.
	close(release)
	v, err := c.Do(context.Background(), "k", factory)
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestCoalescer_PanicBecomesError(t *testing.T) {
	c := NewCoalescer[int](time.Second, newFakeClock())

	_, err := c.Do(context.Background(), "k", func(context.Context) (int, error) {
		panic("bad")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
}

func TestCoalescer_FactoryDeadline(t *testing.T) {
	clock := newFakeClock()
	c := NewCoalescer[int](time.Second, clock)
	c.SetCallTimeout(20 * time.Millisecond)

	var calls atomic.Int32
	hang := func(ctx context.Context) (int, error) {
		calls.Add(1)
		<-ctx.Done()
		return 0, ctx.Err()
	}

	_, err := c.Do(context.Background(), "k", hang)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, c.Len(), "timed-out call settles and stays in grace")

	clock.Advance(time.Second)
	v, err := c.Do(context.Background(), "k", func(context.Context) (int, error) {
		calls.Add(1)
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, int32(2), calls.Load())
}
