// Package scheduler drives the time-based triggers: the quarterly catalog
// sync, the daily status check, and the quarterly next-run marker. Every
// firing is recorded under a (trigger, scheduled instant) key before its
// handler runs, so a re-delivered tick executes at most once.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/fitmentiq/fitment-server/internal/config"
	"github.com/fitmentiq/fitment-server/internal/domain"
	"github.com/fitmentiq/fitment-server/internal/errors"
	"github.com/fitmentiq/fitment-server/internal/store"
	"github.com/fitmentiq/fitment-server/internal/store/sqlite"
)

// Trigger names, persisted in the firing log.
const (
	TriggerQuarterlySync = "quarterly_sync"
	TriggerDailyCheck    = "daily_check"
	TriggerNextRun       = "next_run"
)

// firingRetention bounds the firing log; older rows are pruned by the
// daily check.
const firingRetention = 365 * 24 * time.Hour

// SyncRunner starts catalog sync runs. Satisfied by the sync engine.
type SyncRunner interface {
	Run(ctx context.Context, force bool) (*domain.SyncRun, error)
}

// trigger pairs a persisted trigger name with its cron spec and handler.
type trigger struct {
	name string
	spec string
	run  func(ctx context.Context) error
}

// Scheduler owns the cron runner and the trigger set.
type Scheduler struct {
	cron     *cron.Cron
	store    *sqlite.Store
	runner   SyncRunner
	cfg      config.SchedulerConfig
	syncCfg  config.SyncConfig
	loc      *time.Location
	logger   *slog.Logger
	triggers []trigger
}

// New creates a scheduler with the three standing triggers registered.
func New(
	st *sqlite.Store,
	runner SyncRunner,
	cfg config.SchedulerConfig,
	syncCfg config.SyncConfig,
	loc *time.Location,
	logger *slog.Logger,
) (*Scheduler, error) {
	s := &Scheduler{
		store:   st,
		runner:  runner,
		cfg:     cfg,
		syncCfg: syncCfg,
		loc:     loc,
		logger:  logger,
	}

	cronLog := &cronLogger{logger: logger}
	s.cron = cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cronLog), cron.Recover(cronLog)),
	)

	s.triggers = []trigger{
		{name: TriggerQuarterlySync, spec: cfg.QuarterlySyncSpec, run: s.runQuarterlySync},
		{name: TriggerDailyCheck, spec: cfg.DailyCheckSpec, run: s.runDailyCheck},
		{name: TriggerNextRun, spec: cfg.NextRunSpec, run: s.runNextRunMarker},
	}

	for _, tr := range s.triggers {
		tr := tr
		_, err := s.cron.AddFunc(tr.spec, func() {
			s.fire(tr, time.Now().In(s.loc))
		})
		if err != nil {
			return nil, fmt.Errorf("register trigger %s (%q): %w", tr.name, tr.spec, err)
		}
	}

	return s, nil
}

// Start begins cron dispatch.
func (s *Scheduler) Start() {
	s.logger.Info("starting scheduler",
		slog.String("timezone", s.loc.String()),
		slog.Int("triggers", len(s.triggers)),
	)
	s.cron.Start()
}

// Stop halts dispatch and waits for running triggers to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}

// fire records the firing and runs the handler. Cron fires on minute
// boundaries, so the wall clock truncated to the minute identifies the
// scheduled instant; a duplicate key means another process (or a repeated
// tick) already handled it and the firing is dropped silently. Handler
// failures are logged, never propagated: a broken trigger must not take
// the scheduler down.
func (s *Scheduler) fire(tr trigger, now time.Time) {
	scheduledAt := now.Truncate(time.Minute)
	ctx := context.Background()

	if err := s.store.RecordFiring(ctx, tr.name, scheduledAt); err != nil {
		if serr, ok := err.(*store.Error); ok && serr.Code == store.ErrConflict.Code {
			s.logger.Debug("trigger already fired for this instant",
				slog.String("trigger", tr.name),
				slog.Time("scheduled_at", scheduledAt),
			)
			return
		}
		s.logger.Error("failed to record trigger firing",
			slog.String("trigger", tr.name),
			slog.Any("error", err),
		)
		return
	}

	s.logger.Info("trigger fired",
		slog.String("trigger", tr.name),
		slog.Time("scheduled_at", scheduledAt),
	)

	if err := tr.run(ctx); err != nil {
		s.logger.Error("trigger handler failed",
			slog.String("trigger", tr.name),
			slog.Any("error", err),
		)
	}
}

// runQuarterlySync starts a non-forced sync run. A skip inside the window
// or a conflicting running sync is an expected outcome, not a failure.
func (s *Scheduler) runQuarterlySync(ctx context.Context) error {
	run, err := s.runner.Run(ctx, false)
	if err != nil {
		if errors.Is(err, errors.ErrConflict) {
			s.logger.Info("quarterly sync skipped, another run is active")
			return nil
		}
		return err
	}
	s.logger.Info("quarterly sync finished",
		slog.String("run", run.ID),
		slog.String("status", string(run.Status)),
	)
	return nil
}

// DailyReport is the outcome of the daily status check.
type DailyReport struct {
	// RunningStale is set when a run has been in status running longer
	// than the stale-run threshold.
	RunningStale bool
	StaleRunID   string

	// SuccessStale is set when the last success is older than the
	// max-success age, or no success exists at all.
	SuccessStale  bool
	LastSuccessAt *time.Time
}

// runDailyCheck evaluates sync health and prunes the firing log.
func (s *Scheduler) runDailyCheck(ctx context.Context) error {
	report, err := s.CheckSyncHealth(ctx)
	if err != nil {
		return err
	}

	if report.RunningStale {
		s.logger.Warn("sync run stuck in running status",
			slog.String("run", report.StaleRunID),
			slog.Duration("threshold", s.syncCfg.StaleRunThreshold),
		)
	}
	if report.SuccessStale {
		if report.LastSuccessAt != nil {
			s.logger.Warn("catalog data is stale",
				slog.Time("last_success", *report.LastSuccessAt),
				slog.Duration("max_age", s.syncCfg.MaxSuccessAge),
			)
		} else {
			s.logger.Warn("catalog has never completed a sync")
		}
	}

	pruned, err := s.store.PruneFirings(ctx, time.Now().Add(-firingRetention))
	if err != nil {
		return fmt.Errorf("prune firing log: %w", err)
	}
	if pruned > 0 {
		s.logger.Info("pruned old trigger firings", slog.Int("count", pruned))
	}
	return nil
}

// CheckSyncHealth inspects sync run state for the daily check and the
// operational surface.
func (s *Scheduler) CheckSyncHealth(ctx context.Context) (*DailyReport, error) {
	report := &DailyReport{}
	now := time.Now().UTC()

	running, err := s.store.GetRunningSyncRun(ctx)
	if err == nil {
		if now.Sub(running.StartedAt) > s.syncCfg.StaleRunThreshold {
			report.RunningStale = true
			report.StaleRunID = running.ID
		}
	} else if err != store.ErrNotFound {
		return nil, fmt.Errorf("check running sync run: %w", err)
	}

	success, err := s.store.GetLastSuccessfulSyncRun(ctx)
	switch {
	case err == nil:
		report.LastSuccessAt = &success.StartedAt
		if now.Sub(success.StartedAt) > s.syncCfg.MaxSuccessAge {
			report.SuccessStale = true
		}
	case err == store.ErrNotFound:
		report.SuccessStale = true
	default:
		return nil, fmt.Errorf("check last successful sync run: %w", err)
	}

	return report, nil
}

// runNextRunMarker records the quarterly boundary. The firing row itself is
// the marker; the handler only logs the next boundary for operators.
func (s *Scheduler) runNextRunMarker(_ context.Context) error {
	next := domain.NextQuarterStart(time.Now().In(s.loc))
	s.logger.Info("quarter boundary reached", slog.Time("next_quarter_start", next))
	return nil
}

// cronLogger adapts slog to the cron logger interface.
type cronLogger struct {
	logger *slog.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Info(msg, keysAndValues...)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
