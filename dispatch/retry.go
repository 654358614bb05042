package dispatch

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// retrySchedule holds the delay applied before each attempt. Attempt 0 runs
// immediately; the transient-failure budget is the remaining five slots.
var retrySchedule = []time.Duration{
	0,
	1 * time.Second,
	2 * time.Second,
	8 * time.Second,
	10 * time.Second,
	60 * time.Second,
}

// Operation is one unit of remote work run under the retry policy.
type Operation func(ctx context.Context) error

// Executor runs a single operation to completion: success, terminal refusal,
// or exhausted retries. Transient failures are absorbed here and never
// surface to the caller.
type Executor struct {
	limiter *RateLimiter
	log     zerolog.Logger

	// Sleep performs the backoff delay. Tests swap it out so the
	// schedule can be asserted without waiting for it.
	Sleep func(ctx context.Context, d time.Duration) error
}

// NewExecutor builds an executor that gates every attempt through limiter.
func NewExecutor(limiter *RateLimiter, log zerolog.Logger) *Executor {
	return &Executor{
		limiter: limiter,
		log:     log,
		Sleep:   sleepContext,
	}
}

// Execute runs op under the fixed backoff schedule. A terminal error (see
// IsTerminal) propagates immediately and unmodified. Any other failure is
// retried; once the schedule is spent the last error is surfaced wrapped in
// a RetryExhaustedError.
func (e *Executor) Execute(ctx context.Context, key string, op Operation) error {
	var last error
	for attempt := 0; attempt < len(retrySchedule); attempt++ {
		if err := e.Sleep(ctx, retrySchedule[attempt]); err != nil {
			return err
		}
		if err := e.limiter.WaitForSlot(ctx); err != nil {
			return err
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		if IsTerminal(err) {
			return err
		}

		last = err
		if isRateLimited(err) {
			e.log.Debug().Str("key", key).Int("attempt", attempt).Err(err).
				Msg("provider throttled, will retry")
		} else {
			e.log.Warn().Str("key", key).Int("attempt", attempt).Err(err).
				Msg("transient translation failure, will retry")
		}
	}
	return &RetryExhaustedError{Attempts: len(retrySchedule), Last: last}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
