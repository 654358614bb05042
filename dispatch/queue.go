// Package dispatch funnels every remote translation call through one
// serialized, rate-limited, retrying queue. Tasks run strictly in submission
// order, never concurrently; a terminal failure rejects the task that hit it
// and cascade-aborts everything still waiting behind it.
package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Future is the one-shot completion handle returned by Enqueue. It is
// settled exactly once, by the queue's processor loop; Wait may be called
// any number of times after that.
type Future struct {
	done chan struct{}
	err  error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// settle records the task's outcome. Only the processor loop calls it, once
// per task; the closed channel makes a second settle an immediate panic
// rather than a silent overwrite.
func (f *Future) settle(err error) {
	f.err = err
	close(f.done)
}

// Wait blocks until the task settles or ctx is cancelled, then returns the
// task's outcome.
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-f.done:
		return f.err
	}
}

type queuedTask struct {
	key string
	op  Operation
	ctx context.Context
	fut *Future
}

// Queue is the single global dispatcher for translation work. One processor
// loop drains tasks FIFO; the active flag guarantees at most one loop exists
// no matter how many Enqueue calls race.
type Queue struct {
	exec *Executor
	log  zerolog.Logger

	mu      sync.Mutex
	pending []*queuedTask
	active  bool
}

// NewQueue builds a queue that runs every task through exec.
func NewQueue(exec *Executor, log zerolog.Logger) *Queue {
	return &Queue{exec: exec, log: log}
}

// Enqueue submits one unit of work and returns immediately with its pending
// completion handle. The processor loop is started lazily; after a cascade
// abort the next Enqueue starts a fresh run from an empty queue.
func (q *Queue) Enqueue(ctx context.Context, key string, op Operation) *Future {
	t := &queuedTask{key: key, op: op, ctx: ctx, fut: newFuture()}

	q.mu.Lock()
	q.pending = append(q.pending, t)
	start := !q.active
	if start {
		q.active = true
	}
	q.mu.Unlock()

	if start {
		go q.drain()
	}
	return t.fut
}

// Len reports how many tasks are waiting to be dispatched.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *Queue) drain() {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.active = false
			q.mu.Unlock()
			return
		}
		t := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()

		q.log.Debug().Str("key", t.key).Msg("dispatching translation task")
		err := q.exec.Execute(t.ctx, t.key, t.op)
		if err == nil {
			t.fut.settle(nil)
			continue
		}

		// Terminal or retry-exhausted: this run is over. Reject the
		// failed task with its own error, then everything still queued
		// with the cascade error, and stop the processor.
		q.log.Error().Str("key", t.key).Err(err).Msg("translation task failed, aborting queued work")
		t.fut.settle(err)

		q.mu.Lock()
		rest := q.pending
		q.pending = nil
		q.active = false
		q.mu.Unlock()

		for _, r := range rest {
			r.fut.settle(fmt.Errorf("%w (task %q failed: %v)", ErrAborted, t.key, err))
		}
		return
	}
}
