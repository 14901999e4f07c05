package providers

import (
	"context"
	"time"

	"github.com/samber/do/v2"

	"github.com/fitmentiq/fitment-server/internal/catalog/autocare"
	"github.com/fitmentiq/fitment-server/internal/config"
	"github.com/fitmentiq/fitment-server/internal/domain"
	"github.com/fitmentiq/fitment-server/internal/logger"
	"github.com/fitmentiq/fitment-server/internal/scheduler"
	syncengine "github.com/fitmentiq/fitment-server/internal/sync"
)

// AutoCareClientHandle wraps the upstream catalog client with shutdown capability.
type AutoCareClientHandle struct {
	*autocare.Client
}

// Shutdown implements do.Shutdownable.
func (h *AutoCareClientHandle) Shutdown() error {
	h.Close()
	return nil
}

// ProvideAutoCareClient provides the paged upstream catalog client.
func ProvideAutoCareClient(i do.Injector) (*AutoCareClientHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	client, err := autocare.New(cfg.AutoCare, log.Logger)
	if err != nil {
		return nil, err
	}

	return &AutoCareClientHandle{Client: client}, nil
}

// ProvideSyncEngine provides the catalog sync engine.
func ProvideSyncEngine(i do.Injector) (*syncengine.Engine, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	clientHandle := do.MustInvoke[*AutoCareClientHandle](i)
	loc := do.MustInvoke[*time.Location](i)

	engine := syncengine.New(
		storeHandle.Store,
		clientHandle.Client,
		cfg.Sync,
		cfg.AutoCare.MaxRetries,
		loc,
		log.Logger,
	)

	return engine, nil
}

// SchedulerHandle wraps the cron scheduler with lifecycle management.
type SchedulerHandle struct {
	*scheduler.Scheduler
	started bool
}

// Shutdown implements do.Shutdownable.
func (h *SchedulerHandle) Shutdown() error {
	if h.started {
		h.Stop()
	}
	return nil
}

// ProvideScheduler provides the cron scheduler. Triggers are registered here
// but firing starts only when the entrypoint calls Start.
func ProvideScheduler(i do.Injector) (*SchedulerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	engine := do.MustInvoke[*syncengine.Engine](i)
	loc := do.MustInvoke[*time.Location](i)

	sched, err := scheduler.New(storeHandle.Store, engine, cfg.Scheduler, cfg.Sync, loc, log.Logger)
	if err != nil {
		return nil, err
	}

	handle := &SchedulerHandle{Scheduler: sched}
	handle.Start()
	handle.started = true

	log.Info("Scheduler started",
		"quarterly_spec", cfg.Scheduler.QuarterlySyncSpec,
		"daily_spec", cfg.Scheduler.DailyCheckSpec,
		"timezone", cfg.Scheduler.Timezone,
	)

	return handle, nil
}

// ReportStartupSyncState logs where the catalog stands at boot so operators
// see a stale or interrupted sync without waiting for the daily check.
func ReportStartupSyncState(i do.Injector) {
	log := do.MustInvoke[*logger.Logger](i)
	engine := do.MustInvoke[*syncengine.Engine](i)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	status, err := engine.Status(ctx)
	if err != nil {
		log.Warn("Could not read sync status at startup", "error", err)
		return
	}

	switch {
	case status.Latest == nil:
		log.Info("No catalog sync has run yet")
	case status.Latest.Status == domain.SyncStatusRunning:
		log.Info("Resumable sync run found",
			"run_id", status.Latest.ID,
			"checkpoint", status.Latest.Checkpoint,
			"started_at", status.Latest.StartedAt,
		)
	default:
		log.Info("Catalog sync state",
			"latest_run", status.Latest.ID,
			"latest_status", status.Latest.Status,
		)
	}
}
