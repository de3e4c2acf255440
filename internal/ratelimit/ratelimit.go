// Package ratelimit implements sliding-window admission control per sender.
package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

const (
	// DefaultMaxPerWindow is the admission cap inside one window.
	DefaultMaxPerWindow = 60
	// DefaultWindow is the trailing window length.
	DefaultWindow = time.Minute
)

// ExceededError is returned when a sender is over its window budget.
type ExceededError struct {
	RetryAfter time.Duration
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry in %s", e.RetryAfter.Round(time.Second))
}

// Limiter tracks admission timestamps per sender key. One sender's volume
// never affects another's admission.
type Limiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	history map[string][]time.Time
	now     func() time.Time
}

// New creates a limiter admitting at most max calls per key per window.
func New(max int, window time.Duration) *Limiter {
	if max <= 0 {
		max = DefaultMaxPerWindow
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{
		max:     max,
		window:  window,
		history: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// Admit records one admission for key, or fails with an ExceededError
// carrying the wait until the oldest admission ages out of the window.
// Expired timestamps are evicted lazily on each call.
func (l *Limiter) Admit(key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	live := l.evictLocked(key, now)
	if len(live) >= l.max {
		return &ExceededError{RetryAfter: live[0].Add(l.window).Sub(now)}
	}
	l.history[key] = append(live, now)
	return nil
}

// Remaining returns how many admissions key has left in the current window.
func (l *Limiter) Remaining(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	live := l.evictLocked(key, l.now())
	if n := l.max - len(live); n > 0 {
		return n
	}
	return 0
}

// Reset clears the window for one key.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.history, key)
}

// ResetAll clears all per-sender state. Called on logout.
func (l *Limiter) ResetAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.history = make(map[string][]time.Time)
}

// Sweep drops keys whose admissions have all expired, bounding memory for
// long-running sessions. Lazy eviction in Admit keeps correctness without it.
func (l *Limiter) Sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key := range l.history {
		if live := l.evictLocked(key, now); len(live) == 0 {
			delete(l.history, key)
		} else {
			l.history[key] = live
		}
	}
}

func (l *Limiter) evictLocked(key string, now time.Time) []time.Time {
	stamps := l.history[key]
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(stamps) && !stamps[i].After(cutoff) {
		i++
	}
	return stamps[i:]
}
