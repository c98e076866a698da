package reminder

import (
	"sync"
	"time"
)

// RateLimiter caps outbound reminder volume per recipient address within a
// rolling window, independent of the per-agreement attempt cap. State is
// in-memory for the life of the process; a skipped agreement is retried on
// the next scheduler cycle.
type RateLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	sends  map[string][]time.Time
	now    func() time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:  limit,
		window: window,
		sends:  make(map[string][]time.Time),
		now:    time.Now,
	}
}

// Allow records a send for recipient if it is under the window limit and
// reports whether the send may proceed.
func (l *RateLimiter) Allow(recipient string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	recent := l.sends[recipient][:0]
	for _, t := range l.sends[recipient] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= l.limit {
		l.sends[recipient] = recent
		return false
	}

	l.sends[recipient] = append(recent, now)
	return true
}

// Release returns the most recent slot recorded for recipient. Callers use it
// when the send they reserved through Allow did not happen.
func (l *RateLimiter) Release(recipient string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	sends := l.sends[recipient]
	if len(sends) == 0 {
		return
	}
	l.sends[recipient] = sends[:len(sends)-1]
}
