//go:build integration
// +build integration

package repository

import (
	"context"
	"os"
	"queuectl/internal/models"
	"testing"
	"time"
)

// openPostgres requires QUEUECTL_POSTGRES_DSN and starts from an empty table.
func openPostgres(t *testing.T) *SQLRepository {
	t.Helper()

	dsn := os.Getenv("QUEUECTL_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("QUEUECTL_POSTGRES_DSN not set")
	}

	repo, err := NewPostgresRepository(dsn)
	if err != nil {
		t.Fatalf("failed to open repository: %v", err)
	}
	if _, err := repo.db.Exec(`TRUNCATE jobs`); err != nil {
		repo.Close()
		t.Fatalf("failed to truncate jobs: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestPostgresRepository_Lifecycle(t *testing.T) {
	repo := openPostgres(t)
	ctx := context.Background()
	now := time.Now()

	mustCreate(t, repo, newPendingJob("pg-1", now))

	err := repo.CreateJob(ctx, newPendingJob("pg-1", now))
	if _, ok := err.(*ErrDuplicateJobID); !ok {
		t.Fatalf("expected ErrDuplicateJobID, got %v", err)
	}

	ok, err := repo.ClaimJob(ctx, "pg-1", "w1", now)
	if err != nil || !ok {
		t.Fatalf("expected claim to win, got ok=%v err=%v", ok, err)
	}

	ok, err = repo.FailJob(ctx, "pg-1", "w1", FailureUpdate{
		Attempts:       1,
		State:          models.StateDead,
		NextEligibleAt: now,
		LastError:      "boom",
	}, now)
	if err != nil || !ok {
		t.Fatalf("expected failure to apply, got ok=%v err=%v", ok, err)
	}

	ok, err = repo.RequeueDeadJob(ctx, "pg-1", now)
	if err != nil || !ok {
		t.Fatalf("expected requeue to apply, got ok=%v err=%v", ok, err)
	}

	counts, err := repo.CountByState(ctx)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if counts[models.StatePending] != 1 {
		t.Errorf("expected 1 pending job, got %v", counts)
	}
}
