package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"queuectl/internal/executor"
	"queuectl/internal/models"
	"queuectl/internal/repository"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeExecutor returns canned results keyed by command
type fakeExecutor struct {
	mu      sync.Mutex
	results map[string]*executor.Result
	errs    map[string]error
	calls   []string
	onRun   func(command string)
	panics  bool
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{
		results: make(map[string]*executor.Result),
		errs:    make(map[string]error),
	}
}

func (f *fakeExecutor) Run(ctx context.Context, command string, timeout time.Duration) (*executor.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, command)
	result, hasResult := f.results[command]
	err := f.errs[command]
	onRun := f.onRun
	panics := f.panics
	f.mu.Unlock()

	if panics {
		panic("executor exploded")
	}
	if onRun != nil {
		onRun(command)
	}
	if err != nil {
		return nil, err
	}
	if hasResult {
		return result, nil
	}
	return &executor.Result{ExitCode: 0}, nil
}

func (f *fakeExecutor) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// flakyRepository fails the first completeFailures completions as if the
// database were locked.
type flakyRepository struct {
	repository.JobRepository

	mu               sync.Mutex
	completeFailures int
}

func (f *flakyRepository) CompleteJob(ctx context.Context, id, owner string, now time.Time) (bool, error) {
	f.mu.Lock()
	if f.completeFailures > 0 {
		f.completeFailures--
		f.mu.Unlock()
		return false, fmt.Errorf("failed to complete job: %w: %w", repository.ErrStorageUnavailable, errors.New("database is locked"))
	}
	f.mu.Unlock()
	return f.JobRepository.CompleteJob(ctx, id, owner, now)
}

func withReportBackoff(t *testing.T, d time.Duration) {
	t.Helper()
	prev := reportBackoff
	reportBackoff = d
	t.Cleanup(func() { reportBackoff = prev })
}

func newTestWorker(q *testQueue, exec executor.Executor, id string) *WorkerService {
	return NewWorkerService(q.svc, exec, WorkerConfig{
		ID:           id,
		PollInterval: 10 * time.Millisecond,
		Timeout:      time.Second,
	})
}

func TestWorkerService_ProcessNext_NoJob(t *testing.T) {
	q := newTestQueue(t, DefaultOptions())
	exec := newFakeExecutor()
	worker := newTestWorker(q, exec, "w1")

	processed, err := worker.ProcessNext(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if processed {
		t.Error("expected nothing processed")
	}
	if len(exec.Calls()) != 0 {
		t.Errorf("expected executor not called, got %v", exec.Calls())
	}
}

func TestWorkerService_ProcessNext_Success(t *testing.T) {
	q := newTestQueue(t, DefaultOptions())
	exec := newFakeExecutor()
	worker := newTestWorker(q, exec, "w1")
	job := q.mustEnqueue(t, &models.EnqueueRequest{Command: "echo hello"})

	processed, err := worker.ProcessNext(context.Background())
	if err != nil {
		t.Fatalf("failed to process job: %v", err)
	}
	if !processed {
		t.Fatal("expected a job to be processed")
	}

	stored := q.mustGet(t, job.ID)
	if stored.State != models.StateCompleted {
		t.Errorf("expected state completed, got %s", stored.State)
	}
	if stored.Attempts != 1 {
		t.Errorf("expected attempts 1, got %d", stored.Attempts)
	}
	if calls := exec.Calls(); len(calls) != 1 || calls[0] != "echo hello" {
		t.Errorf("expected one call to 'echo hello', got %v", calls)
	}
}

func TestWorkerService_ProcessNext_NonZeroExit(t *testing.T) {
	q := newTestQueue(t, DefaultOptions())
	exec := newFakeExecutor()
	exec.results["exit 3"] = &executor.Result{ExitCode: 3, Stderr: "bad things"}
	worker := newTestWorker(q, exec, "w1")
	job := q.mustEnqueue(t, &models.EnqueueRequest{Command: "exit 3"})

	if _, err := worker.ProcessNext(context.Background()); err != nil {
		t.Fatalf("failed to process job: %v", err)
	}

	stored := q.mustGet(t, job.ID)
	if stored.State != models.StatePending {
		t.Errorf("expected state pending for retry, got %s", stored.State)
	}
	if stored.Attempts != 1 {
		t.Errorf("expected attempts 1, got %d", stored.Attempts)
	}
	if !strings.Contains(stored.LastError, "exit code 3") || !strings.Contains(stored.LastError, "bad things") {
		t.Errorf("expected last_error to describe the exit, got %q", stored.LastError)
	}
}

func TestWorkerService_ProcessNext_Timeout(t *testing.T) {
	q := newTestQueue(t, DefaultOptions())
	exec := newFakeExecutor()
	exec.results["sleep 10"] = &executor.Result{ExitCode: -1, TimedOut: true}
	worker := newTestWorker(q, exec, "w1")
	job := q.mustEnqueue(t, &models.EnqueueRequest{Command: "sleep 10", MaxRetries: intPtr(0)})

	if _, err := worker.ProcessNext(context.Background()); err != nil {
		t.Fatalf("failed to process job: %v", err)
	}

	stored := q.mustGet(t, job.ID)
	if stored.State != models.StateDead {
		t.Errorf("expected state dead, got %s", stored.State)
	}
	if !strings.Contains(stored.LastError, "timed out") {
		t.Errorf("expected timeout in last_error, got %q", stored.LastError)
	}
}

func TestWorkerService_ProcessNext_StartFailure(t *testing.T) {
	q := newTestQueue(t, DefaultOptions())
	exec := newFakeExecutor()
	exec.errs["nope"] = errors.New("failed to start command: no shell")
	worker := newTestWorker(q, exec, "w1")
	job := q.mustEnqueue(t, &models.EnqueueRequest{Command: "nope"})

	if _, err := worker.ProcessNext(context.Background()); err != nil {
		t.Fatalf("failed to process job: %v", err)
	}

	stored := q.mustGet(t, job.ID)
	if stored.LastError != "failed to start command: no shell" {
		t.Errorf("expected start error in last_error, got %q", stored.LastError)
	}
}

func TestWorkerService_ProcessNext_CancelledReleasesClaim(t *testing.T) {
	q := newTestQueue(t, DefaultOptions())
	exec := newFakeExecutor()
	worker := newTestWorker(q, exec, "w1")
	job := q.mustEnqueue(t, &models.EnqueueRequest{Command: "echo hello"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	processed, err := worker.ProcessNext(ctx)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if processed {
		t.Error("expected job not to be executed after cancellation")
	}
	if len(exec.Calls()) != 0 {
		t.Errorf("expected executor not called, got %v", exec.Calls())
	}

	stored := q.mustGet(t, job.ID)
	if stored.State != models.StatePending || stored.Owner != nil || stored.Attempts != 0 {
		t.Errorf("expected released pending job, got state %s owner %v attempts %d", stored.State, stored.Owner, stored.Attempts)
	}
}

func TestWorkerService_ProcessJobs_FinishesClaimedJobOnShutdown(t *testing.T) {
	q := newTestQueue(t, DefaultOptions())
	exec := newFakeExecutor()
	worker := newTestWorker(q, exec, "w1")
	job := q.mustEnqueue(t, &models.EnqueueRequest{Command: "echo hello"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	exec.onRun = func(string) { cancel() }

	done := make(chan error, 1)
	go func() { done <- worker.ProcessJobs(ctx) }()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop after cancellation")
	}

	stored := q.mustGet(t, job.ID)
	if stored.State != models.StateCompleted {
		t.Errorf("expected in-flight job completed, got %s", stored.State)
	}
}

func TestWorkerService_ProcessJobs_RecoversPanic(t *testing.T) {
	q := newTestQueue(t, DefaultOptions())
	exec := newFakeExecutor()
	exec.panics = true
	worker := newTestWorker(q, exec, "w1")
	q.mustEnqueue(t, &models.EnqueueRequest{Command: "echo hello"})

	processed, err := worker.safeProcessNext(context.Background())
	if processed {
		t.Error("expected panicking job not reported as processed")
	}
	if err == nil || !strings.Contains(err.Error(), "panic") {
		t.Errorf("expected panic error, got %v", err)
	}
}

func TestRunPool_ProcessesEveryJobOnce(t *testing.T) {
	q := newTestQueue(t, DefaultOptions())
	const jobs = 6
	for i := 0; i < jobs; i++ {
		q.mustEnqueue(t, &models.EnqueueRequest{ID: strPtr(fmt.Sprintf("job-%d", i)), Command: fmt.Sprintf("echo %d", i)})
	}

	exec := newFakeExecutor()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	ran := 0
	exec.onRun = func(string) {
		mu.Lock()
		defer mu.Unlock()
		ran++
		if ran == jobs {
			cancel()
		}
	}

	finished := make(chan struct{})
	go func() {
		RunPool(ctx, 3, func(i int) *WorkerService {
			return newTestWorker(q, exec, fmt.Sprintf("w%d", i))
		})
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(10 * time.Second):
		t.Fatal("pool did not stop")
	}

	calls := exec.Calls()
	if len(calls) != jobs {
		t.Fatalf("expected %d executions, got %d: %v", jobs, len(calls), calls)
	}
	seen := make(map[string]bool)
	for _, c := range calls {
		if seen[c] {
			t.Errorf("command %q executed twice", c)
		}
		seen[c] = true
	}

	stats, err := q.svc.Stats(context.Background())
	if err != nil {
		t.Fatalf("failed to get stats: %v", err)
	}
	if stats.States[models.StateCompleted] != jobs {
		t.Errorf("expected %d completed jobs, got %v", jobs, stats.States)
	}
}

func TestNewWorkerID(t *testing.T) {
	a := NewWorkerID()
	b := NewWorkerID()

	if a == b {
		t.Errorf("expected distinct worker ids, got %s twice", a)
	}
	if !strings.Contains(a, fmt.Sprintf("-%d-", os.Getpid())) {
		t.Errorf("expected worker id to contain the pid, got %s", a)
	}
}

func TestWorkerService_ProcessNext_RetriesReportWhileStoreBusy(t *testing.T) {
	withReportBackoff(t, time.Millisecond)
	q := newTestQueue(t, DefaultOptions())
	flaky := &flakyRepository{JobRepository: q.repo, completeFailures: reportAttempts - 1}
	svc := NewQueueService(flaky, q.metrics, Options{Clock: q.clock.Now})
	worker := NewWorkerService(svc, newFakeExecutor(), WorkerConfig{ID: "w1", Timeout: time.Second})

	job, err := svc.Enqueue(context.Background(), &models.EnqueueRequest{Command: "echo hello"})
	if err != nil {
		t.Fatalf("failed to enqueue: %v", err)
	}

	if _, err := worker.ProcessNext(context.Background()); err != nil {
		t.Fatalf("expected report to succeed after retries, got %v", err)
	}

	stored := q.mustGet(t, job.ID)
	if stored.State != models.StateCompleted {
		t.Errorf("expected state completed, got %s", stored.State)
	}
}

func TestWorkerService_ProcessNext_GivesUpReportAfterBoundedRetries(t *testing.T) {
	withReportBackoff(t, time.Millisecond)
	q := newTestQueue(t, DefaultOptions())
	flaky := &flakyRepository{JobRepository: q.repo, completeFailures: reportAttempts}
	svc := NewQueueService(flaky, q.metrics, Options{Clock: q.clock.Now})
	worker := NewWorkerService(svc, newFakeExecutor(), WorkerConfig{ID: "w1", Timeout: time.Second})

	job, err := svc.Enqueue(context.Background(), &models.EnqueueRequest{Command: "echo hello"})
	if err != nil {
		t.Fatalf("failed to enqueue: %v", err)
	}

	_, err = worker.ProcessNext(context.Background())
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected storage unavailable, got %v", err)
	}

	stored := q.mustGet(t, job.ID)
	if stored.State != models.StateProcessing {
		t.Errorf("expected job left processing, got %s", stored.State)
	}
	if flaky.completeFailures != 0 {
		t.Errorf("expected every report attempt used, %d left", flaky.completeFailures)
	}
}
