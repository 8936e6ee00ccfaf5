package dispatch

import (
	"sync"
	"time"
)

// senderWindow tracks one sender's event count in the current window.
type senderWindow struct {
	count       int
	windowStart time.Time
}

// RateLimiter caps inbound events per sender over a fixed window, shielding
// the fan-out path from a single flooding client.
// FUNCTIONAL DISCOVERY: A fixed per-sender window is sufficient here; a burst
// straddling the window boundary is bounded at twice the limit, which the
// broadcast path absorbs.
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	senders map[string]*senderWindow

	// TECHNICAL DISCOVERY: Injected clock enables deterministic window tests
	now func() time.Time

	lastSweep time.Time
}

// NewRateLimiter creates a limiter allowing limit events per sender per window.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:   limit,
		window:  window,
		senders: make(map[string]*senderWindow),
		now:     time.Now,
	}
}

// Allow reports whether the sender may submit another event, counting it when
// allowed. The first event in a window always passes.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.sweepLocked(now)

	w, exists := rl.senders[key]
	if !exists {
		rl.senders[key] = &senderWindow{count: 1, windowStart: now}
		return true
	}

	if now.Sub(w.windowStart) >= rl.window {
		w.count = 1
		w.windowStart = now
		return true
	}

	if w.count >= rl.limit {
		return false
	}

	w.count++
	return true
}

// sweepLocked reclaims senders idle for five windows so the map stays
// bounded without a dedicated janitor goroutine. Caller holds the lock.
func (rl *RateLimiter) sweepLocked(now time.Time) {
	if now.Sub(rl.lastSweep) < 5*rl.window {
		return
	}
	rl.lastSweep = now
	for key, w := range rl.senders {
		if now.Sub(w.windowStart) > 5*rl.window {
			delete(rl.senders, key)
		}
	}
}
