package sanitize

import (
	"sync"
	"time"
)

const (
	// DefaultRateLimit is the number of requests allowed per window.
	DefaultRateLimit = 100

	// DefaultRateWindow is the sliding window length.
	DefaultRateWindow = 15 * time.Minute
)

// RateLimiter keeps a sliding-window request log per client key.
// Construct one per process and inject it where requests are admitted.
type RateLimiter struct {
	mu       sync.Mutex
	limit    int
	window   time.Duration
	requests map[string][]time.Time
	now      func() time.Time
}

// NewRateLimiter creates a limiter allowing limit requests per window for
// every key. Non-positive values fall back to the defaults.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = DefaultRateLimit
	}
	if window <= 0 {
		window = DefaultRateWindow
	}

	return &RateLimiter{
		limit:    limit,
		window:   window,
		requests: make(map[string][]time.Time),
		now:      time.Now,
	}
}

// Allow records a request for key and reports whether it is within the limit.
// Denied requests are not recorded.
func (l *RateLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now.Add(-l.window))

	log := l.requests[key]
	if len(log) >= l.limit {
		return false
	}

	l.requests[key] = append(log, now)
	return true
}

// Remaining returns how many more requests key may make in the current window.
func (l *RateLimiter) Remaining(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.prune(l.now().Add(-l.window))
	return l.limit - len(l.requests[key])
}

// Reset forgets every recorded request.
func (l *RateLimiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	clear(l.requests)
}

// prune drops timestamps at or before windowStart and empty keys.
func (l *RateLimiter) prune(windowStart time.Time) {
	for key, log := range l.requests {
		i := 0
		for i < len(log) && !log[i].After(windowStart) {
			i++
		}
		if i == len(log) {
			delete(l.requests, key)
			continue
		}
		if i > 0 {
			l.requests[key] = append(log[:0:0], log[i:]...)
		}
	}
}
