package dispatch

import (
	"errors"
	"fmt"
	"strings"
)

// ErrAborted is the rejection handed to every not-yet-started task when an
// earlier task in the same run fails terminally. Callers use errors.Is to
// tell a cascade rejection apart from the task's own failure.
var ErrAborted = errors.New("queue aborted due to a prior failure")

// RetryExhaustedError is returned by the executor when the retry budget is
// spent. It wraps the last underlying error so errors.Is/As still see it.
type RetryExhaustedError struct {
	Attempts int
	Last     error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("giving up after %d attempts: %v", e.Attempts, e.Last)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Last }

// terminal is implemented by errors that must never be retried, such as an
// explicit translation refusal from the provider.
type terminal interface {
	Terminal() bool
}

// IsTerminal reports whether err carries a no-retry verdict.
func IsTerminal(err error) bool {
	var t terminal
	return errors.As(err, &t) && t.Terminal()
}

// isRateLimited reports whether err looks like the remote service's throttle
// response. Such failures still consume a retry slot but are logged quietly:
// under sustained throttling a warning per attempt is pure noise.
func isRateLimited(err error) bool {
	if err == nil {
		return false
	}
	message := strings.ToLower(err.Error())
	if strings.Contains(message, "429") {
		return true
	}
	return strings.Contains(message, "rate limit") || strings.Contains(message, "resource_exhausted")
}
