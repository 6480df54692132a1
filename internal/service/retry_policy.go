package service

import (
	"math"
	"time"
)

// MaxBackoff caps a single backoff window so the eligibility time stays representable.
const MaxBackoff = 365 * 24 * time.Hour

// RetryPolicy decides whether a failed job is retried and when it becomes eligible again
type RetryPolicy struct {
	Base float64
}

// NewRetryPolicy creates a retry policy with the given backoff base
func NewRetryPolicy(base float64) RetryPolicy {
	return RetryPolicy{Base: base}
}

// BackoffDelay returns base^attempts seconds.
func (p RetryPolicy) BackoffDelay(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	seconds := math.Pow(p.Base, float64(attempts))
	if math.IsNaN(seconds) || seconds <= 0 {
		return 0
	}
	if seconds >= MaxBackoff.Seconds() {
		return MaxBackoff
	}
	return time.Duration(seconds * float64(time.Second))
}

// ShouldRetry reports whether a job with the given attempt count may run again.
// attempts is the count after the failed execution has been recorded.
func (p RetryPolicy) ShouldRetry(attempts, maxRetries int) bool {
	return attempts < maxRetries
}

// NextEligibleAt returns the earliest time a job with the given attempt count
// may be claimed again.
func (p RetryPolicy) NextEligibleAt(now time.Time, attempts int) time.Time {
	return now.Add(p.BackoffDelay(attempts))
}
