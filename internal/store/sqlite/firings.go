package sqlite

import (
	"context"
	"strings"
	"time"

	"github.com/fitmentiq/fitment-server/internal/store"
)

// RecordFiring inserts the (trigger, scheduled instant) idempotency key for
// one scheduler firing. A duplicate key returns store.ErrConflict; the
// scheduler drops the firing silently on conflict.
func (s *Store) RecordFiring(ctx context.Context, triggerName string, scheduledAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scheduled_firings (trigger_name, scheduled_at, fired_at)
		VALUES (?, ?, ?)`,
		triggerName,
		formatTime(scheduledAt),
		formatTime(time.Now().UTC()),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return store.ErrConflict.WithMessage("trigger already fired for this instant")
		}
		return err
	}
	return nil
}

// CountFirings returns the number of recorded firings for a trigger. Used
// by tests and the status surface.
func (s *Store) CountFirings(ctx context.Context, triggerName string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM scheduled_firings WHERE trigger_name = ?`, triggerName).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// PruneFirings deletes firing records older than the cutoff. The log only
// needs to cover the window in which a duplicate fire could occur.
func (s *Store) PruneFirings(ctx context.Context, before time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM scheduled_firings WHERE scheduled_at < ?`, formatTime(before))
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}
