package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"queuectl/internal/executor"
	"queuectl/internal/models"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultPollInterval  = 1 * time.Second
	DefaultWorkerTimeout = 300 * time.Second

	reportAttempts = 4
)

// reportBackoff is the first pause before re-sending an outcome the store
// could not accept; it doubles per attempt.
var reportBackoff = 100 * time.Millisecond

// WorkerConfig configures one worker loop
type WorkerConfig struct {
	ID           string
	PollInterval time.Duration
	Timeout      time.Duration
}

// WorkerService polls the queue, executes claimed commands and reports outcomes
type WorkerService struct {
	queue    *QueueService
	executor executor.Executor
	cfg      WorkerConfig
}

// NewWorkerService creates a new worker service
func NewWorkerService(queue *QueueService, exec executor.Executor, cfg WorkerConfig) *WorkerService {
	if cfg.ID == "" {
		cfg.ID = NewWorkerID()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultWorkerTimeout
	}
	return &WorkerService{
		queue:    queue,
		executor: exec,
		cfg:      cfg,
	}
}

// NewWorkerID returns an identity unique across processes on this host
func NewWorkerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	return fmt.Sprintf("%s-%d-%s", host, os.Getpid(), uuid.New().String()[:8])
}

// ID returns the lease owner identity of this worker
func (s *WorkerService) ID() string {
	return s.cfg.ID
}

// ProcessJobs continuously processes jobs until ctx is cancelled.
// Cancellation is only observed between jobs; a job already claimed is
// always executed and reported.
func (s *WorkerService) ProcessJobs(ctx context.Context) error {
	log.Printf("worker_id=%s: worker started, polling every %s", s.cfg.ID, s.cfg.PollInterval)

	for {
		select {
		case <-ctx.Done():
			log.Printf("worker_id=%s: worker stopped", s.cfg.ID)
			return ctx.Err()
		default:
		}

		processed, err := s.safeProcessNext(ctx)
		if err != nil {
			log.Printf("worker_id=%s: error processing jobs: %v", s.cfg.ID, err)
		}
		if processed && err == nil {
			continue
		}

		if err := sleepCtx(ctx, s.cfg.PollInterval); err != nil {
			log.Printf("worker_id=%s: worker stopped", s.cfg.ID)
			return err
		}
	}
}

// ProcessNext claims and executes at most one job. It reports whether a job
// was executed.
func (s *WorkerService) ProcessNext(ctx context.Context) (bool, error) {
	// store writes must not be interrupted halfway by shutdown
	bg := context.WithoutCancel(ctx)

	job, err := s.queue.ClaimNext(bg, s.cfg.ID)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	if ctx.Err() != nil {
		if err := s.queue.Release(bg, job.ID, s.cfg.ID); err != nil {
			return false, fmt.Errorf("failed to release job %s on shutdown: %w", job.ID, err)
		}
		return false, nil
	}

	return true, s.execute(bg, job)
}

func (s *WorkerService) execute(ctx context.Context, job *models.Job) error {
	log.Printf("job_id=%s: executing, worker_id=%s, attempt=%d, command=%q", job.ID, s.cfg.ID, job.Attempts+1, job.Command)

	result, runErr := s.executor.Run(ctx, job.Command, s.cfg.Timeout)
	if runErr == nil && result.Succeeded() {
		return s.report(job.ID, func() error {
			return s.queue.ReportSuccess(ctx, job.ID, s.cfg.ID)
		})
	}

	var detail string
	if runErr != nil {
		detail = runErr.Error()
	} else {
		detail = executor.Describe(result, s.cfg.Timeout)
	}

	return s.report(job.ID, func() error {
		_, err := s.queue.ReportFailure(ctx, job.ID, s.cfg.ID, detail)
		return err
	})
}

// report sends an execution outcome, retrying while the store is unavailable.
// Replays are safe: every outcome update is conditional on the lease.
func (s *WorkerService) report(jobID string, send func() error) error {
	delay := reportBackoff
	var err error
	for attempt := 1; attempt <= reportAttempts; attempt++ {
		err = send()
		if err == nil || !errors.Is(err, ErrStorageUnavailable) {
			return err
		}
		if attempt == reportAttempts {
			break
		}
		log.Printf("job_id=%s: report failed, retrying in %s (attempt %d/%d): %v", jobID, delay, attempt, reportAttempts, err)
		time.Sleep(delay)
		delay *= 2
	}
	return fmt.Errorf("failed to report outcome after %d attempts: %w", reportAttempts, err)
}

func (s *WorkerService) safeProcessNext(ctx context.Context) (processed bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("worker_id=%s: recovered panic: %v\n%s", s.cfg.ID, r, debug.Stack())
			processed, err = false, fmt.Errorf("panic while processing job: %v", r)
		}
	}()
	return s.ProcessNext(ctx)
}

// RunPool starts n worker loops built by factory and waits for all of them
// to stop. The loops share nothing but the job store.
func RunPool(ctx context.Context, n int, factory func(i int) *WorkerService) {
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		w := factory(i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.ProcessJobs(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("worker_id=%s: worker error: %v", w.ID(), err)
			}
		}()
	}
	wg.Wait()
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
