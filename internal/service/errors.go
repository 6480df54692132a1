package service

import (
	"errors"
	"queuectl/internal/repository"
	"time"
)

var (
	ErrValidation        = errors.New("validation error")
	ErrDuplicateJobID    = errors.New("duplicate job id")
	ErrJobNotFound       = errors.New("job not found")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrNotInDLQ          = errors.New("job is not in the dead letter queue")

	// ErrStorageUnavailable is returned (wrapped) when the job store cannot be used.
	ErrStorageUnavailable = repository.ErrStorageUnavailable
)

const (
	DefaultMaxRetries     = 3
	DefaultBackoffBase    = 2.0
	DefaultCandidateBatch = 10
	DefaultListLimit      = 100

	// maxErrorDetail bounds the execution output kept in last_error.
	maxErrorDetail = 4096
)

// Options carries the queue parameters supplied by the configuration provider.
type Options struct {
	MaxRetries     int
	BackoffBase    float64
	CandidateBatch int

	// Clock returns the current time; tests replace it.
	Clock func() time.Time
}

// DefaultOptions returns the queue defaults: 3 retries, backoff base 2.
func DefaultOptions() Options {
	return Options{
		MaxRetries:     DefaultMaxRetries,
		BackoffBase:    DefaultBackoffBase,
		CandidateBatch: DefaultCandidateBatch,
		Clock:          time.Now,
	}
}

func (o Options) withDefaults() Options {
	if o.MaxRetries < 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.BackoffBase < 0 {
		o.BackoffBase = DefaultBackoffBase
	}
	if o.CandidateBatch <= 0 {
		o.CandidateBatch = DefaultCandidateBatch
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}
