package service

import (
	"errors"
	"sync"
	"time"
)

var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// RateLimiter limits job submissions per client over a fixed window
type RateLimiter struct {
	mu sync.Mutex

	maxSubmissions int
	window         time.Duration
	now            func() time.Time

	submissionWindows map[string]*submissionWindow
}

type submissionWindow struct {
	count     int
	windowEnd time.Time
}

// NewRateLimiter creates a limiter allowing maxSubmissions per window for each
// client. A non-positive maxSubmissions disables limiting.
func NewRateLimiter(maxSubmissions int, window time.Duration) *RateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		maxSubmissions:    maxSubmissions,
		window:            window,
		now:               time.Now,
		submissionWindows: make(map[string]*submissionWindow),
	}
}

// Allow records a submission from client and returns ErrRateLimitExceeded once
// the client's window is used up.
func (rl *RateLimiter) Allow(client string) error {
	if rl == nil || rl.maxSubmissions <= 0 {
		return nil
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	window, exists := rl.submissionWindows[client]

	if !exists || !now.Before(window.windowEnd) {
		rl.submissionWindows[client] = &submissionWindow{
			count:     1,
			windowEnd: now.Add(rl.window),
		}
		rl.evictExpired(now)
		return nil
	}

	if window.count >= rl.maxSubmissions {
		return ErrRateLimitExceeded
	}

	window.count++
	return nil
}

// evictExpired drops finished windows so idle clients do not accumulate.
func (rl *RateLimiter) evictExpired(now time.Time) {
	for client, window := range rl.submissionWindows {
		if !now.Before(window.windowEnd) {
			delete(rl.submissionWindows, client)
		}
	}
}
