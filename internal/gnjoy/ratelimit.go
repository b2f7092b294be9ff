// internal/gnjoy/ratelimit.go
package gnjoy

import (
	"sync"
	"time"
)

// Default lockout applied when the remote service answers 429. The block
// observed in practice lasts well over a few minutes, so a short retry
// would only extend it.
const DefaultLockoutDuration = 10 * time.Minute

// rollingWindow is the size of the requests-per-minute observation window.
const rollingWindow = time.Minute

// LimitTracker records the shared rate-limit state for one remote host:
// an optional "locked out until" deadline plus a rolling request counter.
// It is consulted before every outbound call and mutated by every attempt,
// so all methods are safe for concurrent use.
//
// The rolling counter is a monitoring aid only. It never blocks callers;
// throttling decisions belong to the lockout deadline and the client pacer.
type LimitTracker struct {
	mu          sync.Mutex
	lockedUntil time.Time
	windowStart time.Time
	requests    int

	// now is swappable for tests.
	now func() time.Time
}

// NewLimitTracker creates a tracker with no active lockout.
func NewLimitTracker() *LimitTracker {
	return &LimitTracker{now: time.Now}
}

// IsLockedOut reports whether a lockout deadline is still in the future.
func (t *LimitTracker) IsLockedOut() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.now().Before(t.lockedUntil)
}

// LockoutRemaining returns how long the current lockout still holds,
// or zero when there is none.
func (t *LimitTracker) LockoutRemaining() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	remaining := t.lockedUntil.Sub(t.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// LockedUntil returns the current lockout deadline (zero time when none).
func (t *LimitTracker) LockedUntil() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lockedUntil
}

// SetLockout records a lockout ending d from now. Repeated calls simply
// refresh the deadline forward; an earlier deadline never shortens an
// existing one.
func (t *LimitTracker) SetLockout(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	until := t.now().Add(d)
	if until.After(t.lockedUntil) {
		t.lockedUntil = until
	}
}

// ClearLockout drops any recorded lockout. Called after a successful
// response, which is taken as evidence the block has lifted.
func (t *LimitTracker) ClearLockout() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lockedUntil = time.Time{}
}

// RecordRequest counts one outbound attempt toward the rolling window.
func (t *LimitTracker) RecordRequest() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if t.windowStart.IsZero() || now.Sub(t.windowStart) >= rollingWindow {
		t.windowStart = now
		t.requests = 0
	}
	t.requests++
}

// RequestsPerMinute extrapolates the rolling counter to a per-minute rate.
func (t *LimitTracker) RequestsPerMinute() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.windowStart.IsZero() {
		return 0
	}

	elapsed := t.now().Sub(t.windowStart)
	if elapsed >= rollingWindow {
		return 0
	}
	if elapsed < time.Second {
		elapsed = time.Second
	}
	return float64(t.requests) / elapsed.Minutes()
}
