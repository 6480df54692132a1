package service

import (
	"testing"
	"time"
)

func newTestLimiter(max int, clock *time.Time) *RateLimiter {
	rl := NewRateLimiter(max, time.Minute)
	rl.now = func() time.Time { return *clock }
	return rl
}

func TestRateLimiter_Allow_WithinLimit(t *testing.T) {
	now := time.Unix(1700000000, 0)
	rl := newTestLimiter(10, &now)

	if err := rl.Allow("10.0.0.1"); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestRateLimiter_Allow_ExceedsLimit(t *testing.T) {
	now := time.Unix(1700000000, 0)
	rl := newTestLimiter(2, &now)

	for i := 0; i < 2; i++ {
		if err := rl.Allow("10.0.0.1"); err != nil {
			t.Errorf("expected no error for submission %d, got %v", i+1, err)
		}
	}

	if err := rl.Allow("10.0.0.1"); err != ErrRateLimitExceeded {
		t.Errorf("expected rate limit error, got %v", err)
	}
}

func TestRateLimiter_Allow_WindowExpiry(t *testing.T) {
	now := time.Unix(1700000000, 0)
	rl := newTestLimiter(2, &now)

	rl.Allow("10.0.0.1")
	rl.Allow("10.0.0.1")
	if err := rl.Allow("10.0.0.1"); err != ErrRateLimitExceeded {
		t.Errorf("expected rate limit error, got %v", err)
	}

	now = now.Add(time.Minute)

	if err := rl.Allow("10.0.0.1"); err != nil {
		t.Errorf("expected no error after window expiry, got %v", err)
	}
}

func TestRateLimiter_MultipleClients(t *testing.T) {
	now := time.Unix(1700000000, 0)
	rl := newTestLimiter(2, &now)

	rl.Allow("10.0.0.1")
	rl.Allow("10.0.0.1")

	if err := rl.Allow("10.0.0.2"); err != nil {
		t.Errorf("expected no error for second client, got %v", err)
	}
	if err := rl.Allow("10.0.0.1"); err != ErrRateLimitExceeded {
		t.Errorf("expected rate limit error for first client, got %v", err)
	}
}

func TestRateLimiter_Disabled(t *testing.T) {
	now := time.Unix(1700000000, 0)
	rl := newTestLimiter(0, &now)

	for i := 0; i < 100; i++ {
		if err := rl.Allow("10.0.0.1"); err != nil {
			t.Fatalf("expected no error with limiting disabled, got %v", err)
		}
	}

	var nilLimiter *RateLimiter
	if err := nilLimiter.Allow("10.0.0.1"); err != nil {
		t.Errorf("expected nil limiter to allow, got %v", err)
	}
}

func TestRateLimiter_EvictsExpiredWindows(t *testing.T) {
	now := time.Unix(1700000000, 0)
	rl := newTestLimiter(5, &now)

	rl.Allow("10.0.0.1")
	rl.Allow("10.0.0.2")
	now = now.Add(2 * time.Minute)
	rl.Allow("10.0.0.3")

	if len(rl.submissionWindows) != 1 {
		t.Errorf("expected 1 tracked client, got %d", len(rl.submissionWindows))
	}
}
