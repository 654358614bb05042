package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestQueue builds a queue whose executor skips real backoff sleeps.
func newTestQueue(interval time.Duration) *Queue {
	e := NewExecutor(NewRateLimiter(interval), zerolog.Nop())
	e.Sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return NewQueue(e, zerolog.Nop())
}

func TestQueueAllTasksResolveInOrder(t *testing.T) {
	q := newTestQueue(time.Nanosecond)
	ctx := context.Background()

	var mu sync.Mutex
	var order []string
	op := func(key string) Operation {
		return func(ctx context.Context) error {
			mu.Lock()
			order = append(order, key)
			mu.Unlock()
			return nil
		}
	}

	futs := []*Future{
		q.Enqueue(ctx, "a", op("a")),
		q.Enqueue(ctx, "b", op("b")),
		q.Enqueue(ctx, "c", op("c")),
	}
	for _, f := range futs {
		require.NoError(t, f.Wait(ctx))
	}
	assert.Equal(t, []string{"a", "b", "c"}, order, "strict submission order")
}

func TestQueueTerminalFailureCascadeAborts(t *testing.T) {
	q := newTestQueue(time.Nanosecond)
	ctx := context.Background()

	var ran []string
	var mu sync.Mutex
	record := func(key string, err error) Operation {
		return func(ctx context.Context) error {
			mu.Lock()
			ran = append(ran, key)
			mu.Unlock()
			return err
		}
	}

	boom := &refusal{reason: "SAFETY"}
	fa := q.Enqueue(ctx, "a", record("a", nil))
	fb := q.Enqueue(ctx, "b", record("b", boom))
	fc := q.Enqueue(ctx, "c", record("c", nil))

	require.NoError(t, fa.Wait(ctx))

	errB := fb.Wait(ctx)
	var got *refusal
	require.ErrorAs(t, errB, &got)
	assert.Same(t, boom, got, "failed task rejects with its own error")

	errC := fc.Wait(ctx)
	assert.ErrorIs(t, errC, ErrAborted, "queued task rejects with the cascade error")
	assert.Contains(t, errC.Error(), `"b"`, "cascade error names the trigger")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a", "b"}, ran, "c never started")
}

func TestQueueRetryExhaustionAlsoAborts(t *testing.T) {
	q := newTestQueue(time.Nanosecond)
	ctx := context.Background()

	fa := q.Enqueue(ctx, "a", func(ctx context.Context) error {
		return errors.New("permanently flaky")
	})
	fb := q.Enqueue(ctx, "b", func(ctx context.Context) error { return nil })

	var exhausted *RetryExhaustedError
	require.ErrorAs(t, fa.Wait(ctx), &exhausted)
	assert.ErrorIs(t, fb.Wait(ctx), ErrAborted)
}

func TestQueueUsableAgainAfterAbort(t *testing.T) {
	q := newTestQueue(time.Nanosecond)
	ctx := context.Background()

	f1 := q.Enqueue(ctx, "bad", func(ctx context.Context) error {
		return &refusal{reason: "SAFETY"}
	})
	require.Error(t, f1.Wait(ctx))

	// The abort drains only the in-flight batch; a later enqueue starts a
	// fresh processor run.
	f2 := q.Enqueue(ctx, "good", func(ctx context.Context) error { return nil })
	require.NoError(t, f2.Wait(ctx))
	assert.Equal(t, 0, q.Len())
}

func TestQueueEnforcesMinimumSpacing(t *testing.T) {
	const interval = 50 * time.Millisecond
	q := newTestQueue(interval)
	ctx := context.Background()

	var mu sync.Mutex
	var stamps []time.Time
	op := func(ctx context.Context) error {
		mu.Lock()
		stamps = append(stamps, time.Now())
		mu.Unlock()
		return nil
	}

	var futs []*Future
	for i := 0; i < 3; i++ {
		futs = append(futs, q.Enqueue(ctx, "t", op))
	}
	for _, f := range futs {
		require.NoError(t, f.Wait(ctx))
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, stamps, 3)
	for i := 1; i < len(stamps); i++ {
		gap := stamps[i].Sub(stamps[i-1])
		assert.GreaterOrEqual(t, gap, interval-5*time.Millisecond,
			"dispatch %d followed too quickly", i)
	}
}

func TestQueueSingleProcessorUnderConcurrentEnqueue(t *testing.T) {
	q := newTestQueue(time.Nanosecond)
	ctx := context.Background()

	var running, maxRunning int
	var mu sync.Mutex
	op := func(ctx context.Context) error {
		mu.Lock()
		running++
		if running > maxRunning {
			maxRunning = running
		}
		mu.Unlock()
		time.Sleep(time.Millisecond)
		mu.Lock()
		running--
		mu.Unlock()
		return nil
	}

	var wg sync.WaitGroup
	futs := make(chan *Future, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			futs <- q.Enqueue(ctx, "t", op)
		}()
	}
	wg.Wait()
	close(futs)
	for f := range futs {
		require.NoError(t, f.Wait(ctx))
	}

	assert.Equal(t, 1, maxRunning, "no two tasks may ever run concurrently")
}

func TestFutureWaitHonorsContext(t *testing.T) {
	f := newFuture()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, f.Wait(ctx), context.DeadlineExceeded)

	f.settle(nil)
	assert.NoError(t, f.Wait(context.Background()))
}
