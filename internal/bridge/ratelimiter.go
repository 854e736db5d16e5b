package bridge

import (
	"sync"
	"time"
)

// tokenBucket is a hand-rolled rate limiter (no rate-limiting dependency
// appears anywhere in the example pack). It uses no ticker: each Allow
// call refills the bucket from the time elapsed since the previous call.
// Allow reports whether a token is available right now; it never
// blocks, leaving backpressure decisions to the caller.
type tokenBucket struct {
	mu       sync.Mutex
	tokens   float64
	capacity float64
	refill   float64 // tokens added per second
	last     time.Time
}

func newTokenBucket(ratePerSecond float64, capacity int) *tokenBucket {
	return &tokenBucket{
		tokens:   float64(capacity),
		capacity: float64(capacity),
		refill:   ratePerSecond,
		last:     time.Now(),
	}
}

func (b *tokenBucket) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(b.last).Seconds()
	b.last = now

	b.tokens += elapsed * b.refill
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}
