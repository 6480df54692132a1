package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"queuectl/internal/models"
	"strings"
	"time"
)

const jobColumns = `id, command, state, attempts, max_retries, created_at, updated_at,
	       owner, leased_at, next_eligible_at, last_error`

var schema = []string{
	`CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		command TEXT NOT NULL,
		state TEXT NOT NULL DEFAULT 'pending',
		attempts INTEGER NOT NULL DEFAULT 0,
		max_retries INTEGER NOT NULL DEFAULT 3,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL,
		owner TEXT,
		leased_at BIGINT,
		next_eligible_at BIGINT NOT NULL,
		last_error TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_candidates ON jobs(state, next_eligible_at, created_at, id)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at, id)`,
}

// dialect isolates the driver-specific parts of the SQL store.
type dialect interface {
	driverName() string
	rebind(query string) string
	isDuplicate(err error) bool
}

// SQLRepository implements JobRepository on top of database/sql.
// Every state change is a single conditional UPDATE; RowsAffected decides
// which caller won.
type SQLRepository struct {
	db      *sql.DB
	dialect dialect
}

func newSQLRepository(d dialect, dsn string) (*SQLRepository, error) {
	db, err := sql.Open(d.driverName(), dsn)
	if err != nil {
		return nil, storageErr("open database", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, storageErr("ping database", err)
	}

	repo := &SQLRepository{db: db, dialect: d}
	if err := repo.initSchema(); err != nil {
		db.Close()
		return nil, storageErr("initialize schema", err)
	}

	return repo, nil
}

// Close closes the database connection
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

func (r *SQLRepository) initSchema() error {
	for _, stmt := range schema {
		if _, err := r.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// CreateJob inserts a new job row
func (r *SQLRepository) CreateJob(ctx context.Context, job *models.Job) error {
	query := `
		INSERT INTO jobs (id, command, state, attempts, max_retries, created_at, updated_at,
		                  owner, leased_at, next_eligible_at, last_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, NULL, NULL, ?, NULL)
	`

	now := time.Now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = job.CreatedAt
	}
	if job.NextEligibleAt.IsZero() {
		job.NextEligibleAt = job.CreatedAt
	}

	_, err := r.db.ExecContext(ctx, r.dialect.rebind(query),
		job.ID,
		job.Command,
		string(job.State),
		job.Attempts,
		job.MaxRetries,
		job.CreatedAt.UnixNano(),
		job.UpdatedAt.UnixNano(),
		job.NextEligibleAt.UnixNano(),
	)
	if err != nil {
		if r.dialect.isDuplicate(err) {
			return &ErrDuplicateJobID{ID: job.ID}
		}
		return storageErr("create job", err)
	}

	return nil
}

// GetJobByID retrieves a job by ID
func (r *SQLRepository) GetJobByID(ctx context.Context, id string) (*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = ?`

	job, err := scanJob(r.db.QueryRowContext(ctx, r.dialect.rebind(query), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, storageErr("get job", err)
	}
	return job, nil
}

// ListJobs returns jobs newest first, optionally filtered by state
func (r *SQLRepository) ListJobs(ctx context.Context, filter ListFilter) ([]*models.Job, error) {
	var b strings.Builder
	var args []any

	b.WriteString(`SELECT ` + jobColumns + ` FROM jobs`)
	if filter.State != "" {
		b.WriteString(` WHERE state = ?`)
		args = append(args, string(filter.State))
	}
	b.WriteString(` ORDER BY created_at DESC, id DESC`)
	if filter.Limit > 0 {
		b.WriteString(` LIMIT ? OFFSET ?`)
		args = append(args, filter.Limit, max(filter.Offset, 0))
	}

	return r.queryJobs(ctx, "list jobs", b.String(), args...)
}

// ListCandidates returns up to limit pending jobs eligible at now, oldest first
func (r *SQLRepository) ListCandidates(ctx context.Context, now time.Time, limit int) ([]*models.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE state = ? AND next_eligible_at <= ?
		ORDER BY created_at ASC, id ASC
		LIMIT ?
	`
	return r.queryJobs(ctx, "list candidate jobs", query, string(models.StatePending), now.UnixNano(), limit)
}

// ClaimJob moves a pending, eligible job to processing under owner
func (r *SQLRepository) ClaimJob(ctx context.Context, id, owner string, now time.Time) (bool, error) {
	query := `
		UPDATE jobs
		SET state = ?, owner = ?, leased_at = ?, updated_at = ?
		WHERE id = ? AND state = ? AND next_eligible_at <= ?
	`
	ts := now.UnixNano()
	return r.execConditional(ctx, "claim job", query,
		string(models.StateProcessing), owner, ts, ts,
		id, string(models.StatePending), ts,
	)
}

// ReleaseJob hands a claimed job back to the pending set without counting an attempt
func (r *SQLRepository) ReleaseJob(ctx context.Context, id, owner string, now time.Time) (bool, error) {
	query := `
		UPDATE jobs
		SET state = ?, owner = NULL, leased_at = NULL, updated_at = ?
		WHERE id = ? AND state = ? AND owner = ?
	`
	return r.execConditional(ctx, "release job", query,
		string(models.StatePending), now.UnixNano(),
		id, string(models.StateProcessing), owner,
	)
}

// CompleteJob marks a job owned by owner as completed
func (r *SQLRepository) CompleteJob(ctx context.Context, id, owner string, now time.Time) (bool, error) {
	query := `
		UPDATE jobs
		SET state = ?, attempts = attempts + 1, owner = NULL, leased_at = NULL,
		    last_error = NULL, updated_at = ?
		WHERE id = ? AND state = ? AND owner = ?
	`
	return r.execConditional(ctx, "complete job", query,
		string(models.StateCompleted), now.UnixNano(),
		id, string(models.StateProcessing), owner,
	)
}

// FailJob records a failed execution and moves the job to pending or dead
func (r *SQLRepository) FailJob(ctx context.Context, id, owner string, update FailureUpdate, now time.Time) (bool, error) {
	if update.State != models.StatePending && update.State != models.StateDead {
		return false, fmt.Errorf("invalid failure target state %q", update.State)
	}

	query := `
		UPDATE jobs
		SET state = ?, attempts = ?, next_eligible_at = ?, last_error = ?,
		    owner = NULL, leased_at = NULL, updated_at = ?
		WHERE id = ? AND state = ? AND owner = ? AND attempts = ?
	`
	return r.execConditional(ctx, "record job failure", query,
		string(update.State), update.Attempts, update.NextEligibleAt.UnixNano(), update.LastError, now.UnixNano(),
		id, string(models.StateProcessing), owner, update.Attempts-1,
	)
}

// RequeueDeadJob moves a dead job back to pending with a fresh attempt budget
func (r *SQLRepository) RequeueDeadJob(ctx context.Context, id string, now time.Time) (bool, error) {
	query := `
		UPDATE jobs
		SET state = ?, attempts = 0, next_eligible_at = ?, owner = NULL, leased_at = NULL, updated_at = ?
		WHERE id = ? AND state = ?
	`
	ts := now.UnixNano()
	return r.execConditional(ctx, "requeue dead job", query,
		string(models.StatePending), ts, ts,
		id, string(models.StateDead),
	)
}

// CountByState returns the number of jobs per stored state
func (r *SQLRepository) CountByState(ctx context.Context) (map[models.JobState]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT state, COUNT(*) FROM jobs GROUP BY state`)
	if err != nil {
		return nil, storageErr("count jobs", err)
	}
	defer rows.Close()

	counts := make(map[models.JobState]int)
	for rows.Next() {
		var state string
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, storageErr("scan job count", err)
		}
		counts[models.JobState(state)] = count
	}

	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate job counts", err)
	}

	return counts, nil
}

func (r *SQLRepository) execConditional(ctx context.Context, op, query string, args ...any) (bool, error) {
	res, err := r.db.ExecContext(ctx, r.dialect.rebind(query), args...)
	if err != nil {
		return false, storageErr(op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, storageErr(op, err)
	}

	return n == 1, nil
}

func (r *SQLRepository) queryJobs(ctx context.Context, op, query string, args ...any) ([]*models.Job, error) {
	rows, err := r.db.QueryContext(ctx, r.dialect.rebind(query), args...)
	if err != nil {
		return nil, storageErr(op, err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, storageErr(op, err)
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, storageErr(op, err)
	}

	return jobs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*models.Job, error) {
	var job models.Job
	var state string
	var owner, lastError sql.NullString
	var leasedAt sql.NullInt64
	var createdAt, updatedAt, nextEligibleAt int64

	err := row.Scan(
		&job.ID,
		&job.Command,
		&state,
		&job.Attempts,
		&job.MaxRetries,
		&createdAt,
		&updatedAt,
		&owner,
		&leasedAt,
		&nextEligibleAt,
		&lastError,
	)
	if err != nil {
		return nil, err
	}

	job.State = models.JobState(state)
	job.CreatedAt = time.Unix(0, createdAt)
	job.UpdatedAt = time.Unix(0, updatedAt)
	job.NextEligibleAt = time.Unix(0, nextEligibleAt)

	if owner.Valid {
		o := owner.String
		job.Owner = &o
	}

	if leasedAt.Valid {
		t := time.Unix(0, leasedAt.Int64)
		job.LeasedAt = &t
	}

	if lastError.Valid {
		job.LastError = lastError.String
	}

	return &job, nil
}
