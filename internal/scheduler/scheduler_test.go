package scheduler

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fitmentiq/fitment-server/internal/config"
	"github.com/fitmentiq/fitment-server/internal/domain"
	"github.com/fitmentiq/fitment-server/internal/errors"
	"github.com/fitmentiq/fitment-server/internal/store/sqlite"
)

type stubRunner struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (r *stubRunner) Run(_ context.Context, _ bool) (*domain.SyncRun, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	return &domain.SyncRun{ID: "sync_test", Status: domain.SyncStatusSucceeded}, nil
}

func (r *stubRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func newTestScheduler(t *testing.T, runner SyncRunner) (*Scheduler, *sqlite.Store) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	st, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"), log)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cfg := config.SchedulerConfig{
		QuarterlySyncSpec: "0 2 1 1,4,7,10 *",
		DailyCheckSpec:    "0 6 * * *",
		NextRunSpec:       "0 3 1 1,4,7,10 *",
		Timezone:          "America/Chicago",
	}
	syncCfg := config.SyncConfig{
		MinInterval:       90 * 24 * time.Hour,
		StaleRunThreshold: 12 * time.Hour,
		MaxSuccessAge:     120 * 24 * time.Hour,
	}

	s, err := New(st, runner, cfg, syncCfg, time.UTC, log)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s, st
}

func (s *Scheduler) triggerByName(t *testing.T, name string) trigger {
	t.Helper()
	for _, tr := range s.triggers {
		if tr.name == name {
			return tr
		}
	}
	t.Fatalf("trigger %q not registered", name)
	return trigger{}
}

func TestNewRegistersTriggers(t *testing.T) {
	s, _ := newTestScheduler(t, &stubRunner{})
	if len(s.triggers) != 3 {
		t.Fatalf("triggers = %d, want 3", len(s.triggers))
	}
	for _, name := range []string{TriggerQuarterlySync, TriggerDailyCheck, TriggerNextRun} {
		s.triggerByName(t, name)
	}
}

func TestNewRejectsBadSpec(t *testing.T) {
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	st, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"), log)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	cfg := config.SchedulerConfig{
		QuarterlySyncSpec: "not a cron spec",
		DailyCheckSpec:    "0 6 * * *",
		NextRunSpec:       "0 3 1 1,4,7,10 *",
	}
	if _, err := New(st, &stubRunner{}, cfg, config.SyncConfig{}, time.UTC, log); err == nil {
		t.Fatal("New() accepted an invalid cron spec")
	}
}

func TestFireAtMostOncePerInstant(t *testing.T) {
	runner := &stubRunner{}
	s, st := newTestScheduler(t, runner)
	tr := s.triggerByName(t, TriggerQuarterlySync)

	instant := time.Date(2026, time.October, 1, 2, 0, 30, 0, time.UTC)

	// The same scheduled instant delivered twice, e.g. by two processes
	// sharing the store. Only the first firing executes.
	s.fire(tr, instant)
	s.fire(tr, instant)

	if got := runner.callCount(); got != 1 {
		t.Errorf("runner called %d times, want 1", got)
	}

	count, err := st.CountFirings(context.Background(), TriggerQuarterlySync)
	if err != nil {
		t.Fatalf("CountFirings() error = %v", err)
	}
	if count != 1 {
		t.Errorf("recorded firings = %d, want 1", count)
	}

	// A different instant fires again.
	s.fire(tr, instant.Add(time.Minute))
	if got := runner.callCount(); got != 2 {
		t.Errorf("runner called %d times after second instant, want 2", got)
	}
}

func TestFireSurvivesHandlerFailure(t *testing.T) {
	runner := &stubRunner{err: errors.FatalRemote("upstream exploded")}
	s, st := newTestScheduler(t, runner)
	tr := s.triggerByName(t, TriggerQuarterlySync)

	instant := time.Date(2026, time.October, 1, 2, 0, 0, 0, time.UTC)
	s.fire(tr, instant)

	if got := runner.callCount(); got != 1 {
		t.Errorf("runner called %d times, want 1", got)
	}
	// The firing is recorded even though the handler failed; the instant
	// is spent and is not retried.
	count, err := st.CountFirings(context.Background(), TriggerQuarterlySync)
	if err != nil {
		t.Fatalf("CountFirings() error = %v", err)
	}
	if count != 1 {
		t.Errorf("recorded firings = %d, want 1", count)
	}
	s.fire(tr, instant)
	if got := runner.callCount(); got != 1 {
		t.Errorf("runner retried a spent instant, calls = %d", got)
	}
}

func TestQuarterlySyncTreatsConflictAsSkip(t *testing.T) {
	runner := &stubRunner{err: errors.Conflict("a sync run is already active")}
	s, _ := newTestScheduler(t, runner)

	if err := s.runQuarterlySync(context.Background()); err != nil {
		t.Errorf("runQuarterlySync() error = %v, want conflict swallowed", err)
	}
}

func TestCheckSyncHealth(t *testing.T) {
	s, st := newTestScheduler(t, &stubRunner{})
	ctx := context.Background()

	// No runs at all: the catalog has never synced.
	report, err := s.CheckSyncHealth(ctx)
	if err != nil {
		t.Fatalf("CheckSyncHealth() error = %v", err)
	}
	if !report.SuccessStale || report.RunningStale {
		t.Errorf("empty store report = %+v, want success stale only", report)
	}

	// A fresh success clears the staleness.
	fresh := &domain.SyncRun{
		ID:        "sync_fresh",
		Status:    domain.SyncStatusRunning,
		StartedAt: time.Now().UTC().Add(-time.Hour),
	}
	if err := st.CreateSyncRun(ctx, fresh); err != nil {
		t.Fatalf("CreateSyncRun() error = %v", err)
	}
	fresh.Finish(domain.SyncStatusSucceeded, "")
	if err := st.UpdateSyncRun(ctx, fresh); err != nil {
		t.Fatalf("UpdateSyncRun() error = %v", err)
	}

	report, err = s.CheckSyncHealth(ctx)
	if err != nil {
		t.Fatalf("CheckSyncHealth() error = %v", err)
	}
	if report.SuccessStale || report.RunningStale {
		t.Errorf("fresh success report = %+v, want healthy", report)
	}
	if report.LastSuccessAt == nil {
		t.Error("LastSuccessAt not set")
	}

	// A run stuck in running past the threshold raises the alert.
	stuck := &domain.SyncRun{
		ID:        "sync_stuck",
		Status:    domain.SyncStatusRunning,
		StartedAt: time.Now().UTC().Add(-24 * time.Hour),
	}
	if err := st.CreateSyncRun(ctx, stuck); err != nil {
		t.Fatalf("CreateSyncRun() error = %v", err)
	}

	report, err = s.CheckSyncHealth(ctx)
	if err != nil {
		t.Fatalf("CheckSyncHealth() error = %v", err)
	}
	if !report.RunningStale || report.StaleRunID != "sync_stuck" {
		t.Errorf("stuck run report = %+v, want running stale", report)
	}
}

func TestDailyCheckPrunesOldFirings(t *testing.T) {
	s, st := newTestScheduler(t, &stubRunner{})
	ctx := context.Background()

	old := time.Now().Add(-2 * 365 * 24 * time.Hour).Truncate(time.Minute)
	if err := st.RecordFiring(ctx, TriggerDailyCheck, old); err != nil {
		t.Fatalf("RecordFiring() error = %v", err)
	}
	recent := time.Now().Add(-time.Hour).Truncate(time.Minute)
	if err := st.RecordFiring(ctx, TriggerDailyCheck, recent); err != nil {
		t.Fatalf("RecordFiring() error = %v", err)
	}

	if err := s.runDailyCheck(ctx); err != nil {
		t.Fatalf("runDailyCheck() error = %v", err)
	}

	count, err := st.CountFirings(ctx, TriggerDailyCheck)
	if err != nil {
		t.Fatalf("CountFirings() error = %v", err)
	}
	if count != 1 {
		t.Errorf("firings after prune = %d, want 1", count)
	}
}
