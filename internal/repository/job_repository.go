package repository

import (
	"context"
	"errors"
	"fmt"
	"queuectl/internal/models"
	"time"
)

var (
	// ErrStorageUnavailable wraps every failure of the backing database.
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrJobNotFound        = errors.New("job not found")
)

// ErrDuplicateJobID is returned when a job with the same id already exists
type ErrDuplicateJobID struct {
	ID string
}

func (e *ErrDuplicateJobID) Error() string {
	return fmt.Sprintf("job with id %s already exists", e.ID)
}

// ListFilter bounds a job listing. An empty State matches every state.
type ListFilter struct {
	State  models.JobState
	Limit  int
	Offset int
}

// FailureUpdate describes the row written after a failed execution.
// Attempts is the new attempt count; the update only applies while the stored
// count is Attempts-1, so a report can never be applied twice.
type FailureUpdate struct {
	Attempts       int
	State          models.JobState
	NextEligibleAt time.Time
	LastError      string
}

// JobRepository defines the interface for job persistence.
// Mutations are conditional: the bool result reports whether this caller's
// update matched the expected row state.
type JobRepository interface {
	CreateJob(ctx context.Context, job *models.Job) error
	GetJobByID(ctx context.Context, id string) (*models.Job, error)
	ListJobs(ctx context.Context, filter ListFilter) ([]*models.Job, error)
	ListCandidates(ctx context.Context, now time.Time, limit int) ([]*models.Job, error)
	ClaimJob(ctx context.Context, id, owner string, now time.Time) (bool, error)
	ReleaseJob(ctx context.Context, id, owner string, now time.Time) (bool, error)
	CompleteJob(ctx context.Context, id, owner string, now time.Time) (bool, error)
	FailJob(ctx context.Context, id, owner string, update FailureUpdate, now time.Time) (bool, error)
	RequeueDeadJob(ctx context.Context, id string, now time.Time) (bool, error)
	CountByState(ctx context.Context) (map[models.JobState]int, error)
	Close() error
}

func storageErr(op string, err error) error {
	return fmt.Errorf("failed to %s: %w: %w", op, ErrStorageUnavailable, err)
}
