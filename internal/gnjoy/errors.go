// internal/gnjoy/errors.go
package gnjoy

import (
	"errors"
	"fmt"
	"time"
)

// ErrFetchFailed is returned once the bounded retry budget is exhausted.
// The wrapped cause is the last attempt's failure.
var ErrFetchFailed = errors.New("fetch failed after retries")

// RateLimitedError signals a hard lockout from the remote service. It is
// never retried internally: callers should stop issuing requests until
// Until passes.
type RateLimitedError struct {
	Until time.Time
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited until %s", e.Until.Format(time.RFC3339))
}

// RetryAfter returns the remaining lockout relative to now.
func (e *RateLimitedError) RetryAfter(now time.Time) time.Duration {
	d := e.Until.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// IsRateLimited reports whether err carries a lockout, returning the
// deadline when it does.
func IsRateLimited(err error) (time.Time, bool) {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl.Until, true
	}
	return time.Time{}, false
}

// statusError is an internal marker for non-2xx responses so the retry
// loop can distinguish transient server failures from hard ones.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("HTTP %d", e.code)
}

// retryable reports whether the status warrants another attempt. Only the
// transient upstream failures are retried; 429 is handled separately as a
// lockout and everything else fails fast.
func (e *statusError) retryable() bool {
	return e.code == 503 || e.code == 504
}
