package provider

import (
	"fmt"
	"sync"
	"time"
)

// windowLength is the rolling rate-limit window.
const windowLength = 60 * time.Second

// rateWindow tracks requests and tokens spent in the current window. One
// window is owned by exactly one Provider; concurrent Run calls share it, so
// every mutation happens under the mutex.
type rateWindow struct {
	mu          sync.Mutex
	requests    int64
	tokens      int64
	windowStart time.Time
	now         func() time.Time
}

func newRateWindow(now func() time.Time) *rateWindow {
	if now == nil {
		now = time.Now
	}
	return &rateWindow{windowStart: now(), now: now}
}

// reserve resets a stale window, then checks the limits and counts one
// request. Token spend is recorded after the call via spend; the check here
// uses what the window has already seen.
func (w *rateWindow) reserve(limits *RateLimits) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.resetIfStale()

	if limits != nil {
		if limits.RequestsPerMinute > 0 && w.requests+1 > limits.RequestsPerMinute {
			return fmt.Errorf("%w: %d requests this window (limit %d/min)",
				ErrRateLimited, w.requests, limits.RequestsPerMinute)
		}
		if limits.TokensPerMinute > 0 && w.tokens >= limits.TokensPerMinute {
			return fmt.Errorf("%w: %d tokens this window (limit %d/min)",
				ErrRateLimited, w.tokens, limits.TokensPerMinute)
		}
	}

	w.requests++
	return nil
}

// spend records tokens actually consumed by a completed call.
func (w *rateWindow) spend(tokens int64) {
	if tokens <= 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.resetIfStale()
	w.tokens += tokens
}

// snapshot returns the current counters, resetting first if the window is
// stale.
func (w *rateWindow) snapshot() (requests, tokens int64, windowStart time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.resetIfStale()
	return w.requests, w.tokens, w.windowStart
}

// resetIfStale zeroes the counters once per elapsed window. Callers hold the
// mutex, so concurrent observers of a stale window reset it exactly once.
func (w *rateWindow) resetIfStale() {
	if w.now().Sub(w.windowStart) >= windowLength {
		w.requests = 0
		w.tokens = 0
		w.windowStart = w.now()
	}
}
