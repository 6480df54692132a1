package service

import (
	"context"
	"fmt"
	"log"
	"queuectl/internal/models"
	"queuectl/internal/repository"
	"time"
)

// LeaseManager grants at most one worker the right to execute a pending job.
// The conditional update in the repository is the only synchronization.
type LeaseManager struct {
	repo  repository.JobRepository
	batch int
	now   func() time.Time
}

// NewLeaseManager creates a lease manager that inspects up to batch candidates per claim
func NewLeaseManager(repo repository.JobRepository, batch int, clock func() time.Time) *LeaseManager {
	if batch <= 0 {
		batch = DefaultCandidateBatch
	}
	if clock == nil {
		clock = time.Now
	}
	return &LeaseManager{
		repo:  repo,
		batch: batch,
		now:   clock,
	}
}

// Claim leases the oldest eligible pending job to workerID.
// It returns nil, nil when nothing is eligible or every candidate was taken
// by another worker first.
func (m *LeaseManager) Claim(ctx context.Context, workerID string) (*models.Job, error) {
	if workerID == "" {
		return nil, fmt.Errorf("%w: worker id must not be empty", ErrValidation)
	}

	now := m.now()
	candidates, err := m.repo.ListCandidates(ctx, now, m.batch)
	if err != nil {
		return nil, fmt.Errorf("failed to select candidates: %w", err)
	}

	for _, job := range candidates {
		ok, err := m.repo.ClaimJob(ctx, job.ID, workerID, now)
		if err != nil {
			return nil, fmt.Errorf("failed to claim job: %w", err)
		}
		if !ok {
			log.Printf("job_id=%s: claim lost to another worker, worker_id=%s", job.ID, workerID)
			continue
		}

		owner := workerID
		leasedAt := now
		job.State = models.StateProcessing
		job.Owner = &owner
		job.LeasedAt = &leasedAt
		job.UpdatedAt = now
		return job, nil
	}

	return nil, nil
}

// Release hands a claimed, not yet executed job back to the pending set.
// The attempt count is left unchanged.
func (m *LeaseManager) Release(ctx context.Context, jobID, workerID string) error {
	ok, err := m.repo.ReleaseJob(ctx, jobID, workerID, m.now())
	if err != nil {
		return fmt.Errorf("failed to release job: %w", err)
	}
	if !ok {
		log.Printf("job_id=%s: release rejected, not processing under worker_id=%s", jobID, workerID)
		return fmt.Errorf("%w: job %s is not leased by %s", ErrInvalidTransition, jobID, workerID)
	}
	log.Printf("job_id=%s: lease released, worker_id=%s", jobID, workerID)
	return nil
}
