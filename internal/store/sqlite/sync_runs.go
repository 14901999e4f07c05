package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fitmentiq/fitment-server/internal/domain"
	"github.com/fitmentiq/fitment-server/internal/store"
)

// syncRunColumns is the ordered list of columns selected in sync run
// queries. Must match the scan order in scanSyncRun.
const syncRunColumns = `id, status, entity_counts, checkpoint, error, started_at, finished_at, next_run_at`

func scanSyncRun(scanner interface{ Scan(dest ...any) error }) (*domain.SyncRun, error) {
	var r domain.SyncRun

	var (
		counts     string
		checkpoint string
		errText    sql.NullString
		startedAt  string
		finishedAt sql.NullString
		nextRunAt  sql.NullString
	)

	err := scanner.Scan(
		&r.ID,
		&r.Status,
		&counts,
		&checkpoint,
		&errText,
		&startedAt,
		&finishedAt,
		&nextRunAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(counts), &r.EntityCounts); err != nil {
		return nil, fmt.Errorf("decode entity counts: %w", err)
	}
	r.Checkpoint = domain.CatalogEntity(checkpoint)
	r.Error = errText.String

	r.StartedAt, err = parseTime(startedAt)
	if err != nil {
		return nil, err
	}
	r.FinishedAt, err = parseNullableTime(finishedAt)
	if err != nil {
		return nil, err
	}
	r.NextRunAt, err = parseNullableTime(nextRunAt)
	if err != nil {
		return nil, err
	}

	return &r, nil
}

// CreateSyncRun opens a new sync run. The partial unique index on
// status='running' serializes the running slot; a second concurrent open
// returns store.ErrConflict.
func (s *Store) CreateSyncRun(ctx context.Context, r *domain.SyncRun) error {
	counts, err := json.Marshal(r.EntityCounts)
	if err != nil {
		return fmt.Errorf("encode entity counts: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sync_runs (id, status, entity_counts, checkpoint, error, started_at, finished_at, next_run_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID,
		r.Status,
		string(counts),
		string(r.Checkpoint),
		nullString(r.Error),
		formatTime(r.StartedAt),
		nullTimeString(r.FinishedAt),
		nullTimeString(r.NextRunAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			if strings.Contains(err.Error(), "idx_sync_runs_single_running") {
				return store.ErrConflict.WithMessage("a sync run is already running")
			}
			return store.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// UpdateSyncRun persists run progress: status, counts, checkpoint,
// error, and timestamps. A checkpoint write carrying status running never
// overwrites a concurrent cancellation; the engine sees the cancelled
// status at its next entity boundary.
func (s *Store) UpdateSyncRun(ctx context.Context, r *domain.SyncRun) error {
	counts, err := json.Marshal(r.EntityCounts)
	if err != nil {
		return fmt.Errorf("encode entity counts: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE sync_runs
		SET status = CASE WHEN status = 'cancelled' AND ? = 'running' THEN status ELSE ? END,
		    entity_counts = ?, checkpoint = ?, error = ?, finished_at = ?, next_run_at = ?
		WHERE id = ?`,
		r.Status,
		r.Status,
		string(counts),
		string(r.Checkpoint),
		nullString(r.Error),
		nullTimeString(r.FinishedAt),
		nullTimeString(r.NextRunAt),
		r.ID,
	)
	if err != nil {
		return fmt.Errorf("update sync run %s: %w", r.ID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// GetSyncRun retrieves a sync run by id.
func (s *Store) GetSyncRun(ctx context.Context, runID string) (*domain.SyncRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+syncRunColumns+` FROM sync_runs WHERE id = ?`, runID)

	r, err := scanSyncRun(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// GetLatestSyncRun returns the most recently started run.
func (s *Store) GetLatestSyncRun(ctx context.Context) (*domain.SyncRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+syncRunColumns+` FROM sync_runs ORDER BY started_at DESC LIMIT 1`)

	r, err := scanSyncRun(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// GetLastSuccessfulSyncRun returns the most recent succeeded run.
func (s *Store) GetLastSuccessfulSyncRun(ctx context.Context) (*domain.SyncRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+syncRunColumns+` FROM sync_runs WHERE status = ? ORDER BY started_at DESC LIMIT 1`,
		domain.SyncStatusSucceeded)

	r, err := scanSyncRun(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// GetRunningSyncRun returns the active run, if any.
func (s *Store) GetRunningSyncRun(ctx context.Context) (*domain.SyncRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+syncRunColumns+` FROM sync_runs WHERE status = ? LIMIT 1`,
		domain.SyncStatusRunning)

	r, err := scanSyncRun(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// CancelSyncRun marks the run cancelled. The engine observes the flag at
// the next entity boundary and exits cleanly.
func (s *Store) CancelSyncRun(ctx context.Context, runID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sync_runs SET status = ? WHERE id = ? AND status = ?`,
		domain.SyncStatusCancelled, runID, domain.SyncStatusRunning)
	if err != nil {
		return fmt.Errorf("cancel sync run %s: %w", runID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound.WithMessage("no running sync run with that id")
	}
	return nil
}

// SyncRunCancelled reports whether a run has been marked cancelled.
func (s *Store) SyncRunCancelled(ctx context.Context, runID string) (bool, error) {
	var status string
	err := s.db.QueryRowContext(ctx,
		`SELECT status FROM sync_runs WHERE id = ?`, runID).Scan(&status)
	if err == sql.ErrNoRows {
		return false, store.ErrNotFound
	}
	if err != nil {
		return false, err
	}
	return domain.SyncStatus(status) == domain.SyncStatusCancelled, nil
}
