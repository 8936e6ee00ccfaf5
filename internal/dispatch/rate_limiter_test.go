package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestLimiter(limit int, window time.Duration) (*RateLimiter, *time.Time) {
	rl := NewRateLimiter(limit, window)
	now := time.Now()
	rl.now = func() time.Time { return now }
	return rl, &now
}

func TestAllowWithinLimit(t *testing.T) {
	rl, _ := newTestLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("s1/alice"), "event %d within limit", i)
	}
	assert.False(t, rl.Allow("s1/alice"), "fourth event in the window is refused")
}

func TestWindowResetRestoresAllowance(t *testing.T) {
	rl, now := newTestLimiter(2, time.Minute)

	assert.True(t, rl.Allow("s1/alice"))
	assert.True(t, rl.Allow("s1/alice"))
	assert.False(t, rl.Allow("s1/alice"))

	*now = now.Add(time.Minute)
	assert.True(t, rl.Allow("s1/alice"), "new window starts fresh")
}

func TestSendersAreIsolated(t *testing.T) {
	rl, _ := newTestLimiter(1, time.Minute)

	assert.True(t, rl.Allow("s1/alice"))
	assert.False(t, rl.Allow("s1/alice"))
	assert.True(t, rl.Allow("s1/bob"), "one flooding sender does not throttle another")
	assert.True(t, rl.Allow("s2/alice"), "same user in another session counts separately")
}

func TestIdleSendersReclaimed(t *testing.T) {
	rl, now := newTestLimiter(5, time.Minute)

	assert.True(t, rl.Allow("s1/alice"))
	assert.True(t, rl.Allow("s1/bob"))

	*now = now.Add(6 * time.Minute)
	assert.True(t, rl.Allow("s1/carol"))

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.Len(t, rl.senders, 1, "idle senders swept, only carol remains")
}
