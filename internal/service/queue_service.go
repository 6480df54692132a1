package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"queuectl/internal/metrics"
	"queuectl/internal/models"
	"queuectl/internal/repository"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

// QueueService handles the job lifecycle: enqueue, claim, outcome reporting and DLQ retry
type QueueService struct {
	repo    repository.JobRepository
	leases  *LeaseManager
	policy  RetryPolicy
	metrics *metrics.Metrics
	opts    Options
}

// NewQueueService creates a new queue service
func NewQueueService(repo repository.JobRepository, metrics *metrics.Metrics, opts Options) *QueueService {
	opts = opts.withDefaults()
	return &QueueService{
		repo:    repo,
		leases:  NewLeaseManager(repo, opts.CandidateBatch, opts.Clock),
		policy:  NewRetryPolicy(opts.BackoffBase),
		metrics: metrics,
		opts:    opts,
	}
}

// Policy returns the retry policy applied to failed jobs
func (s *QueueService) Policy() RetryPolicy {
	return s.policy
}

// Enqueue validates req and stores a new pending job that is eligible immediately
func (s *QueueService) Enqueue(ctx context.Context, req *models.EnqueueRequest) (*models.Job, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: request must not be nil", ErrValidation)
	}
	if strings.TrimSpace(req.Command) == "" {
		return nil, fmt.Errorf("%w: command must not be empty", ErrValidation)
	}

	maxRetries := s.opts.MaxRetries
	if req.MaxRetries != nil {
		if *req.MaxRetries < 0 {
			return nil, fmt.Errorf("%w: max_retries must be >= 0, got %d", ErrValidation, *req.MaxRetries)
		}
		maxRetries = *req.MaxRetries
	}

	id := uuid.New().String()
	if req.ID != nil {
		if err := validateJobID(*req.ID); err != nil {
			return nil, err
		}
		id = *req.ID
	}

	now := s.opts.Clock()
	job := &models.Job{
		ID:             id,
		Command:        req.Command,
		State:          models.StatePending,
		Attempts:       0,
		MaxRetries:     maxRetries,
		CreatedAt:      now,
		UpdatedAt:      now,
		NextEligibleAt: now,
	}

	if err := s.repo.CreateJob(ctx, job); err != nil {
		var dupErr *repository.ErrDuplicateJobID
		if errors.As(err, &dupErr) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateJobID, dupErr.ID)
		}
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	s.metrics.IncrementEnqueuedJobs()
	log.Printf("job_id=%s: job enqueued, max_retries=%d, command=%q", job.ID, job.MaxRetries, job.Command)

	return job, nil
}

// EnqueueRaw parses a bare command or a JSON job object and enqueues it
func (s *QueueService) EnqueueRaw(ctx context.Context, payload string) (*models.Job, error) {
	req, err := models.ParseEnqueueRequest(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return s.Enqueue(ctx, req)
}

// ClaimNext leases the next eligible job to workerID, or returns nil if none is available
func (s *QueueService) ClaimNext(ctx context.Context, workerID string) (*models.Job, error) {
	job, err := s.leases.Claim(ctx, workerID)
	if err != nil {
		return nil, err
	}
	if job != nil {
		log.Printf("job_id=%s: job claimed, worker_id=%s, attempts=%d", job.ID, workerID, job.Attempts)
	}
	return job, nil
}

// Release gives back a claim that workerID decided not to execute
func (s *QueueService) Release(ctx context.Context, jobID, workerID string) error {
	if err := s.leases.Release(ctx, jobID, workerID); err != nil {
		return err
	}
	s.metrics.IncrementReleasedJobs()
	return nil
}

// ReportSuccess moves a job processed by workerID to completed
func (s *QueueService) ReportSuccess(ctx context.Context, jobID, workerID string) error {
	ok, err := s.repo.CompleteJob(ctx, jobID, workerID, s.opts.Clock())
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	if !ok {
		log.Printf("job_id=%s: success report rejected, not processing under worker_id=%s", jobID, workerID)
		return fmt.Errorf("%w: job %s is not leased by %s", ErrInvalidTransition, jobID, workerID)
	}

	s.metrics.IncrementCompletedJobs()
	log.Printf("job_id=%s: job completed successfully, worker_id=%s", jobID, workerID)
	return nil
}

// ReportFailure records a failed execution. The job goes back to pending with
// a backoff window while retries remain, otherwise to the dead letter queue.
func (s *QueueService) ReportFailure(ctx context.Context, jobID, workerID, errorDetail string) (*models.Job, error) {
	job, err := s.repo.GetJobByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	if job.State != models.StateProcessing || job.Owner == nil || *job.Owner != workerID {
		log.Printf("job_id=%s: failure report rejected, state=%s, worker_id=%s", jobID, job.State, workerID)
		return nil, fmt.Errorf("%w: job %s is not leased by %s", ErrInvalidTransition, jobID, workerID)
	}

	now := s.opts.Clock()
	update := repository.FailureUpdate{
		Attempts:  job.Attempts + 1,
		LastError: truncateDetail(errorDetail),
	}
	if s.policy.ShouldRetry(update.Attempts, job.MaxRetries) {
		update.State = models.StatePending
		update.NextEligibleAt = s.policy.NextEligibleAt(now, update.Attempts)
	} else {
		update.State = models.StateDead
		update.NextEligibleAt = now
	}

	ok, err := s.repo.FailJob(ctx, jobID, workerID, update, now)
	if err != nil {
		return nil, fmt.Errorf("failed to record job failure: %w", err)
	}
	if !ok {
		log.Printf("job_id=%s: failure report lost a race, worker_id=%s", jobID, workerID)
		return nil, fmt.Errorf("%w: job %s changed while reporting failure", ErrInvalidTransition, jobID)
	}

	job.State = update.State
	job.Attempts = update.Attempts
	job.NextEligibleAt = update.NextEligibleAt
	job.LastError = update.LastError
	job.Owner = nil
	job.LeasedAt = nil
	job.UpdatedAt = now

	if job.State == models.StateDead {
		s.metrics.IncrementDeadJobs()
		log.Printf("job_id=%s: job moved to dead letter queue after %d attempts, reason: %s", jobID, job.Attempts, firstLine(job.LastError))
	} else {
		s.metrics.IncrementRetriedJobs()
		log.Printf("job_id=%s: job failed, retrying in %s (attempt %d/%d), reason: %s",
			jobID, job.NextEligibleAt.Sub(now), job.Attempts, job.MaxRetries, firstLine(job.LastError))
	}

	return job, nil
}

// RetryFromDLQ puts a dead job back in the queue with its attempt count reset
func (s *QueueService) RetryFromDLQ(ctx context.Context, jobID string) (*models.Job, error) {
	ok, err := s.repo.RequeueDeadJob(ctx, jobID, s.opts.Clock())
	if err != nil {
		return nil, fmt.Errorf("failed to requeue job: %w", err)
	}
	if !ok {
		job, err := s.GetJob(ctx, jobID)
		if err != nil {
			return nil, err
		}
		log.Printf("job_id=%s: dlq retry rejected, state=%s", jobID, job.State)
		return nil, fmt.Errorf("%w: job %s is %s", ErrNotInDLQ, jobID, job.State)
	}

	s.metrics.IncrementRequeuedJobs()
	log.Printf("job_id=%s: job moved from dead letter queue to pending", jobID)

	return s.GetJob(ctx, jobID)
}

// GetJob retrieves a job by ID
func (s *QueueService) GetJob(ctx context.Context, id string) (*models.Job, error) {
	job, err := s.repo.GetJobByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// ListJobs returns at most limit jobs, newest first. An empty state lists
// every state; a non-positive limit falls back to DefaultListLimit.
func (s *QueueService) ListJobs(ctx context.Context, state models.JobState, limit, offset int) ([]*models.Job, error) {
	if state != "" && !state.Valid() {
		return nil, fmt.Errorf("%w: unknown state %q", ErrValidation, state)
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if offset < 0 {
		return nil, fmt.Errorf("%w: offset must be >= 0, got %d", ErrValidation, offset)
	}

	jobs, err := s.repo.ListJobs(ctx, repository.ListFilter{State: state, Limit: limit, Offset: offset})
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}

// ListDeadJobs returns the dead letter queue, newest first
func (s *QueueService) ListDeadJobs(ctx context.Context, limit int) ([]*models.Job, error) {
	return s.ListJobs(ctx, models.StateDead, limit, 0)
}

// Stats counts jobs per state. Counts taken while workers are active are a
// snapshot, not a linearizable view.
func (s *QueueService) Stats(ctx context.Context) (*models.Stats, error) {
	counts, err := s.repo.CountByState(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}

	stats := &models.Stats{States: make(map[models.JobState]int, len(models.AllStates))}
	for _, state := range models.AllStates {
		stats.States[state] = 0
	}
	for state, count := range counts {
		stats.States[state] = count
		stats.Total += count
	}
	return stats, nil
}

func validateJobID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: job id must not be empty", ErrValidation)
	}
	if strings.IndexFunc(id, unicode.IsSpace) >= 0 {
		return fmt.Errorf("%w: job id %q must not contain whitespace", ErrValidation, id)
	}
	return nil
}

func truncateDetail(detail string) string {
	if len(detail) <= maxErrorDetail {
		return detail
	}
	return strings.ToValidUTF8(detail[:maxErrorDetail], "") + "...(truncated)"
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
