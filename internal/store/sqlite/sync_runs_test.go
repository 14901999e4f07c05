package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fitmentiq/fitment-server/internal/domain"
	"github.com/fitmentiq/fitment-server/internal/store"
)

func newTestSyncRun(t *testing.T, s *Store, runID string) *domain.SyncRun {
	t.Helper()
	r := &domain.SyncRun{
		ID:        runID,
		Status:    domain.SyncStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := s.CreateSyncRun(context.Background(), r); err != nil {
		t.Fatalf("create sync run: %v", err)
	}
	return r
}

func TestCreateSyncRunSingleRunning(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	newTestSyncRun(t, s, "sync_1")

	// A second running run is rejected by the partial unique index.
	second := &domain.SyncRun{
		ID:        "sync_2",
		Status:    domain.SyncStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	err := s.CreateSyncRun(ctx, second)
	var serr *store.Error
	if !errors.As(err, &serr) || serr.Code != store.ErrConflict.Code {
		t.Fatalf("expected conflict error, got %v", err)
	}
}

func TestSyncRunLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := newTestSyncRun(t, s, "sync_1")

	r.RecordCounts(domain.EntityYear, domain.EntityCount{Remote: 50, LocalBefore: 0, LocalAfter: 50})
	r.RecordCounts(domain.EntityMake, domain.EntityCount{Remote: 120, LocalBefore: 100, LocalAfter: 120})
	if err := s.UpdateSyncRun(ctx, r); err != nil {
		t.Fatalf("update sync run: %v", err)
	}

	got, err := s.GetSyncRun(ctx, "sync_1")
	if err != nil {
		t.Fatalf("get sync run: %v", err)
	}
	if got.Checkpoint != domain.EntityMake {
		t.Errorf("expected checkpoint make, got %s", got.Checkpoint)
	}
	if got.EntityCounts[domain.EntityMake].Remote != 120 {
		t.Errorf("expected remote count 120, got %d", got.EntityCounts[domain.EntityMake].Remote)
	}

	next := domain.NextQuarterStart(time.Now())
	r.Finish(domain.SyncStatusSucceeded, "")
	r.NextRunAt = &next
	if err := s.UpdateSyncRun(ctx, r); err != nil {
		t.Fatalf("finish sync run: %v", err)
	}

	got, err = s.GetSyncRun(ctx, "sync_1")
	if err != nil {
		t.Fatalf("get finished run: %v", err)
	}
	if got.Status != domain.SyncStatusSucceeded {
		t.Errorf("expected succeeded, got %s", got.Status)
	}
	if got.FinishedAt == nil {
		t.Error("expected finished_at to be set")
	}
	if got.FinishedAt != nil && got.FinishedAt.Before(got.StartedAt) {
		t.Error("finished_at must not precede started_at")
	}
	if got.NextRunAt == nil {
		t.Error("expected next_run_at to be set")
	}

	// The running slot is free again.
	newTestSyncRun(t, s, "sync_2")
}

func TestGetLastSuccessfulSyncRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GetLastSuccessfulSyncRun(ctx); err != store.ErrNotFound {
		t.Errorf("expected ErrNotFound with no runs, got %v", err)
	}

	r1 := newTestSyncRun(t, s, "sync_1")
	r1.Finish(domain.SyncStatusFailed, "remote unavailable")
	if err := s.UpdateSyncRun(ctx, r1); err != nil {
		t.Fatalf("fail run: %v", err)
	}

	if _, err := s.GetLastSuccessfulSyncRun(ctx); err != store.ErrNotFound {
		t.Errorf("expected ErrNotFound with only failed runs, got %v", err)
	}

	r2 := &domain.SyncRun{
		ID:        "sync_2",
		Status:    domain.SyncStatusRunning,
		StartedAt: time.Now().UTC().Add(time.Second),
	}
	if err := s.CreateSyncRun(ctx, r2); err != nil {
		t.Fatalf("create second run: %v", err)
	}
	r2.Finish(domain.SyncStatusSucceeded, "")
	if err := s.UpdateSyncRun(ctx, r2); err != nil {
		t.Fatalf("succeed run: %v", err)
	}

	got, err := s.GetLastSuccessfulSyncRun(ctx)
	if err != nil {
		t.Fatalf("get last successful run: %v", err)
	}
	if got.ID != "sync_2" {
		t.Errorf("expected sync_2, got %s", got.ID)
	}

	latest, err := s.GetLatestSyncRun(ctx)
	if err != nil {
		t.Fatalf("get latest run: %v", err)
	}
	if latest.ID != "sync_2" {
		t.Errorf("expected latest sync_2, got %s", latest.ID)
	}
}

func TestGetRunningSyncRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GetRunningSyncRun(ctx); err != store.ErrNotFound {
		t.Errorf("expected ErrNotFound with no running run, got %v", err)
	}

	newTestSyncRun(t, s, "sync_1")
	got, err := s.GetRunningSyncRun(ctx)
	if err != nil {
		t.Fatalf("get running run: %v", err)
	}
	if got.ID != "sync_1" {
		t.Errorf("expected sync_1, got %s", got.ID)
	}
}

func TestCancelSyncRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	newTestSyncRun(t, s, "sync_1")

	cancelled, err := s.SyncRunCancelled(ctx, "sync_1")
	if err != nil {
		t.Fatalf("check cancelled: %v", err)
	}
	if cancelled {
		t.Error("run should not start cancelled")
	}

	if err := s.CancelSyncRun(ctx, "sync_1"); err != nil {
		t.Fatalf("cancel sync run: %v", err)
	}

	cancelled, err = s.SyncRunCancelled(ctx, "sync_1")
	if err != nil {
		t.Fatalf("check cancelled: %v", err)
	}
	if !cancelled {
		t.Error("expected run to be cancelled")
	}

	// Cancelling a non-running run is an error.
	if err := s.CancelSyncRun(ctx, "sync_1"); err == nil {
		t.Error("expected error cancelling an already-cancelled run")
	}

	// Cancellation frees the running slot.
	newTestSyncRun(t, s, "sync_2")
}
