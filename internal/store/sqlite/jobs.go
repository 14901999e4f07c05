package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fitmentiq/fitment-server/internal/domain"
	"github.com/fitmentiq/fitment-server/internal/store"
)

// jobColumns is the ordered list of columns selected in job queries.
// Must match the scan order in scanJob.
const jobColumns = `id, tenant_id, upload_ref, status, input_rows, worker_id, attempts, error, created_at, claimed_at, finished_at`

// scanJob scans a sql.Row (or sql.Rows via its Scan method) into a
// domain.Job.
func scanJob(scanner interface{ Scan(dest ...any) error }) (*domain.Job, error) {
	var j domain.Job

	var (
		inputRows  string
		errText    sql.NullString
		createdAt  string
		claimedAt  sql.NullString
		finishedAt sql.NullString
	)

	err := scanner.Scan(
		&j.ID,
		&j.TenantID,
		&j.UploadRef,
		&j.Status,
		&inputRows,
		&j.WorkerID,
		&j.Attempts,
		&errText,
		&createdAt,
		&claimedAt,
		&finishedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(inputRows), &j.InputRows); err != nil {
		return nil, fmt.Errorf("decode input rows: %w", err)
	}
	j.Error = errText.String

	j.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	j.ClaimedAt, err = parseNullableTime(claimedAt)
	if err != nil {
		return nil, err
	}
	j.FinishedAt, err = parseNullableTime(finishedAt)
	if err != nil {
		return nil, err
	}

	return &j, nil
}

// CreateJob inserts a new job in queued status.
func (s *Store) CreateJob(ctx context.Context, j *domain.Job) error {
	rows, err := json.Marshal(j.InputRows)
	if err != nil {
		return fmt.Errorf("encode input rows: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, tenant_id, upload_ref, status, input_rows, worker_id, attempts, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID,
		j.TenantID,
		j.UploadRef,
		j.Status,
		string(rows),
		j.WorkerID,
		j.Attempts,
		nullString(j.Error),
		formatTime(j.CreatedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return store.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// GetJob retrieves a job by id.
func (s *Store) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = ?`, jobID)

	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return j, nil
}

// CountQueuedJobs returns the number of jobs waiting to be claimed.
func (s *Store) CountQueuedJobs(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM jobs WHERE status = ?`, domain.JobStatusQueued).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count queued jobs: %w", err)
	}
	return count, nil
}

// ListQueuedJobs returns queued jobs in creation order (idx_jobs_status).
func (s *Store) ListQueuedJobs(ctx context.Context, limit int) ([]*domain.Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE status = ? ORDER BY created_at ASC LIMIT ?`,
		domain.JobStatusQueued, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectJobs(rows)
}

// ListJobs returns jobs filtered by tenant and/or status, newest first.
// Empty filter values match everything.
func (s *Store) ListJobs(ctx context.Context, tenantID string, status domain.JobStatus, limit int) ([]*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE 1=1`
	var args []any
	if tenantID != "" {
		query += ` AND tenant_id = ?`
		args = append(args, tenantID)
	}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectJobs(rows)
}

func collectJobs(rows *sql.Rows) ([]*domain.Job, error) {
	var jobs []*domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if jobs == nil {
		jobs = []*domain.Job{}
	}
	return jobs, nil
}

// ClaimJob atomically moves a queued job to running under the given worker.
// The compare-and-set on status guarantees at most one concurrent claim;
// losing the race returns store.ErrClaimConflict.
func (s *Store) ClaimJob(ctx context.Context, jobID, workerID string) (*domain.Job, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = ?, worker_id = ?, claimed_at = ?, attempts = attempts + 1
		WHERE id = ? AND status = ?`,
		domain.JobStatusRunning,
		workerID,
		formatTime(now),
		jobID,
		domain.JobStatusQueued,
	)
	if err != nil {
		return nil, fmt.Errorf("claim job %s: %w", jobID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("claim job %s rows affected: %w", jobID, err)
	}
	if affected == 0 {
		return nil, store.ErrClaimConflict
	}

	return s.GetJob(ctx, jobID)
}

// FinishJob moves a running job to a terminal status. The update is guarded
// on the claiming worker so a reclaimed job cannot be finished by the worker
// that lost it; such a write returns store.ErrInvalidTransition.
func (s *Store) FinishJob(ctx context.Context, jobID, workerID string, status domain.JobStatus, errText string) error {
	if status != domain.JobStatusSucceeded && status != domain.JobStatusFailed {
		return store.ErrInvalidTransition.WithMessage(fmt.Sprintf("cannot finish job with status %q", status))
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = ?, error = ?, finished_at = ?
		WHERE id = ? AND status = ? AND worker_id = ?`,
		status,
		nullString(errText),
		formatTime(time.Now().UTC()),
		jobID,
		domain.JobStatusRunning,
		workerID,
	)
	if err != nil {
		return fmt.Errorf("finish job %s: %w", jobID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish job %s rows affected: %w", jobID, err)
	}
	if affected == 0 {
		return store.ErrInvalidTransition
	}
	return nil
}

// ReclaimStaleJobs handles jobs whose running claim is older than the
// threshold. Jobs with attempts left re-enter the queue; jobs at the
// attempt limit fail with the abandoned reason. Returns (requeued, failed).
func (s *Store) ReclaimStaleJobs(ctx context.Context, threshold time.Duration, maxAttempts int) (int, int, error) {
	cutoff := formatTime(time.Now().UTC().Add(-threshold))

	failed, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = ?, error = ?, finished_at = ?
		WHERE status = ? AND claimed_at < ? AND attempts >= ?`,
		domain.JobStatusFailed,
		domain.AbandonedReason,
		formatTime(time.Now().UTC()),
		domain.JobStatusRunning,
		cutoff,
		maxAttempts,
	)
	if err != nil {
		return 0, 0, fmt.Errorf("fail abandoned jobs: %w", err)
	}
	failedCount, err := failed.RowsAffected()
	if err != nil {
		return 0, 0, err
	}

	requeued, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = ?, worker_id = '', claimed_at = NULL
		WHERE status = ? AND claimed_at < ?`,
		domain.JobStatusQueued,
		domain.JobStatusRunning,
		cutoff,
	)
	if err != nil {
		return 0, 0, fmt.Errorf("requeue stale jobs: %w", err)
	}
	requeuedCount, err := requeued.RowsAffected()
	if err != nil {
		return 0, 0, err
	}

	return int(requeuedCount), int(failedCount), nil
}

// CreateNormalizationResult persists one normalizer verdict.
func (s *Store) CreateNormalizationResult(ctx context.Context, r *domain.NormalizationResult) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO normalization_results
			(id, job_id, row_index, input_row, chosen_vehicle_id, confidence, confidence_explanation, ai_reasoning, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID,
		r.JobID,
		r.RowIndex,
		r.InputRow,
		nullInt(r.ChosenVehicleID),
		r.Confidence,
		nullString(r.ConfidenceExplanation),
		nullString(r.AIReasoning),
		formatTime(r.CreatedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return store.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// ListNormalizationResults returns a job's results in input-row order.
func (s *Store) ListNormalizationResults(ctx context.Context, jobID string) ([]*domain.NormalizationResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job_id, row_index, input_row, chosen_vehicle_id, confidence, confidence_explanation, ai_reasoning, created_at
		FROM normalization_results WHERE job_id = ? ORDER BY row_index ASC`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*domain.NormalizationResult
	for rows.Next() {
		var (
			r           domain.NormalizationResult
			vehicleID   sql.NullInt64
			explanation sql.NullString
			reasoning   sql.NullString
			createdAt   string
		)
		err := rows.Scan(
			&r.ID,
			&r.JobID,
			&r.RowIndex,
			&r.InputRow,
			&vehicleID,
			&r.Confidence,
			&explanation,
			&reasoning,
			&createdAt,
		)
		if err != nil {
			return nil, err
		}
		if vehicleID.Valid {
			v := int(vehicleID.Int64)
			r.ChosenVehicleID = &v
		}
		r.ConfidenceExplanation = explanation.String
		r.AIReasoning = reasoning.String
		r.CreatedAt, err = parseTime(createdAt)
		if err != nil {
			return nil, err
		}
		results = append(results, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if results == nil {
		results = []*domain.NormalizationResult{}
	}
	return results, nil
}
