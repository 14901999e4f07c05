// Package sync reconciles the local catalog with the upstream enumeration
// API. Runs are streaming, resumable at entity boundaries, and idempotent;
// rows absent upstream are never deleted without an explicit tombstone.
package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fitmentiq/fitment-server/internal/catalog/autocare"
	"github.com/fitmentiq/fitment-server/internal/config"
	"github.com/fitmentiq/fitment-server/internal/domain"
	"github.com/fitmentiq/fitment-server/internal/errors"
	"github.com/fitmentiq/fitment-server/internal/id"
	"github.com/fitmentiq/fitment-server/internal/store"
	"github.com/fitmentiq/fitment-server/internal/store/sqlite"
)

// retryBaseDelay is the first backoff step for transient remote failures.
// Each further attempt doubles it.
var retryBaseDelay = 2 * time.Second

// Engine drives catalog sync runs. It is the single writer of catalog rows
// and SyncRun records; the store's partial unique index keeps two engines
// from running concurrently.
type Engine struct {
	store      *sqlite.Store
	client     *autocare.Client
	cfg        config.SyncConfig
	maxRetries int
	loc        *time.Location
	logger     *slog.Logger
}

// New creates a sync engine.
func New(st *sqlite.Store, client *autocare.Client, cfg config.SyncConfig, maxRetries int, loc *time.Location, logger *slog.Logger) *Engine {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Engine{
		store:      st,
		client:     client,
		cfg:        cfg,
		maxRetries: maxRetries,
		loc:        loc,
		logger:     logger,
	}
}

// Run executes one sync. With force=false a run is skipped when the last
// success is younger than the minimum interval; the returned SyncRun then
// has status skipped and is not persisted. An interrupted run left in
// status running is resumed at the entity after its checkpoint.
func (e *Engine) Run(ctx context.Context, force bool) (*domain.SyncRun, error) {
	if !force {
		last, err := e.store.GetLastSuccessfulSyncRun(ctx)
		if err == nil && time.Since(last.StartedAt) < e.cfg.MinInterval {
			e.logger.Info("sync skipped, last success is recent",
				"last_run", last.ID, "started_at", last.StartedAt)
			return &domain.SyncRun{
				ID:        last.ID,
				Status:    domain.SyncStatusSkipped,
				StartedAt: last.StartedAt,
			}, nil
		}
		if err != nil && err != store.ErrNotFound {
			return nil, errors.Wrap(err, errors.CodeStoreFailure, "read last successful run")
		}
	}

	run, err := e.openRun(ctx)
	if err != nil {
		return nil, err
	}

	e.logger.Info("sync run started", "run", run.ID, "checkpoint", run.Checkpoint, "force", force)

	for _, entity := range domain.SyncOrder {
		if run.Completed(entity) {
			continue
		}

		// Cancellation and context are only observed here; mid-entity
		// aborts would leave half-written bridge rows.
		cancelled, err := e.store.SyncRunCancelled(ctx, run.ID)
		if err != nil {
			return run, errors.Wrap(err, errors.CodeStoreFailure, "check cancellation")
		}
		if cancelled {
			e.logger.Info("sync run cancelled, exiting at entity boundary", "run", run.ID, "next_entity", entity)
			run.Status = domain.SyncStatusCancelled
			now := time.Now().UTC()
			run.FinishedAt = &now
			if err := e.store.UpdateSyncRun(ctx, run); err != nil {
				return run, errors.Wrap(err, errors.CodeStoreFailure, "close cancelled run")
			}
			return run, nil
		}
		if err := ctx.Err(); err != nil {
			return run, e.failRun(run, entity, err)
		}

		counts, err := e.syncEntity(ctx, entity)
		if err != nil {
			return run, e.failRun(run, entity, err)
		}

		run.RecordCounts(entity, counts)
		if err := e.store.UpdateSyncRun(ctx, run); err != nil {
			return run, errors.Wrap(err, errors.CodeStoreFailure, "checkpoint run")
		}

		e.logger.Info("entity synced", "run", run.ID, "entity", entity,
			"remote", counts.Remote, "local_before", counts.LocalBefore, "local_after", counts.LocalAfter)
	}

	run.Finish(domain.SyncStatusSucceeded, "")
	next := domain.NextQuarterStart(time.Now().In(e.loc))
	run.NextRunAt = &next
	if err := e.store.UpdateSyncRun(ctx, run); err != nil {
		return run, errors.Wrap(err, errors.CodeStoreFailure, "close run")
	}

	e.logger.Info("sync run succeeded", "run", run.ID, "next_run_at", next)
	return run, nil
}

// openRun resumes the running run if one exists, otherwise creates a new
// one. A creation race lost to another engine surfaces as Conflict.
func (e *Engine) openRun(ctx context.Context) (*domain.SyncRun, error) {
	running, err := e.store.GetRunningSyncRun(ctx)
	if err == nil {
		e.logger.Info("resuming interrupted sync run", "run", running.ID, "checkpoint", running.Checkpoint)
		return running, nil
	}
	if err != store.ErrNotFound {
		return nil, errors.Wrap(err, errors.CodeStoreFailure, "read running run")
	}

	runID, err := id.Generate("sync")
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "generate run id")
	}
	run := &domain.SyncRun{
		ID:        runID,
		Status:    domain.SyncStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := e.store.CreateSyncRun(ctx, run); err != nil {
		if serr, ok := err.(*store.Error); ok && serr.Code == store.ErrConflict.Code {
			return nil, errors.Conflict("a sync run is already active")
		}
		return nil, errors.Wrap(err, errors.CodeStoreFailure, "open run")
	}
	return run, nil
}

// failRun closes the run as failed, preserving the error text. Close uses a
// fresh context so a cancelled run context cannot strand the run in status
// running.
func (e *Engine) failRun(run *domain.SyncRun, entity domain.CatalogEntity, cause error) error {
	errText := fmt.Sprintf("sync %s: %v", entity, cause)
	run.Finish(domain.SyncStatusFailed, errText)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.store.UpdateSyncRun(ctx, run); err != nil {
		e.logger.Error("failed to close failed sync run", "run", run.ID, "error", err)
	}
	e.logger.Error("sync run failed", "run", run.ID, "entity", entity, "error", cause)

	if errors.Is(cause, autocare.ErrAuth) {
		return errors.AuthFailure(errText)
	}
	if autocare.Transient(cause) {
		return errors.TransientRemote(errText)
	}
	return errors.FatalRemote(errText)
}

// syncEntity streams one entity from upstream with bounded retry on
// transient failures. Upserts are idempotent by remote id, so retrying the
// whole entity after a partial page is safe.
func (e *Engine) syncEntity(ctx context.Context, entity domain.CatalogEntity) (domain.EntityCount, error) {
	localBefore, err := e.store.CountCatalog(ctx, entity)
	if err != nil {
		return domain.EntityCount{}, err
	}

	var remote int
	for attempt := 0; ; attempt++ {
		remote = 0
		err = e.enumerateEntity(ctx, entity, &remote)
		if err == nil {
			break
		}
		if !autocare.Transient(err) || attempt+1 >= e.maxRetries {
			return domain.EntityCount{}, err
		}

		delay := retryBaseDelay << attempt
		e.logger.Warn("transient failure, retrying entity",
			"entity", entity, "attempt", attempt+1, "delay", delay, "error", err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return domain.EntityCount{}, ctx.Err()
		}
	}

	localAfter, err := e.store.CountCatalog(ctx, entity)
	if err != nil {
		return domain.EntityCount{}, err
	}

	return domain.EntityCount{
		Remote:      remote,
		LocalBefore: localBefore,
		LocalAfter:  localAfter,
	}, nil
}

// enumerateEntity dispatches to the typed client enumeration and upserts
// each streamed row. Memory stays bounded at one page.
func (e *Engine) enumerateEntity(ctx context.Context, entity domain.CatalogEntity, remote *int) error {
	switch entity {
	case domain.EntityYear:
		return e.client.EnumerateYears(ctx, func(r *domain.Year) error {
			*remote++
			return e.store.UpsertYear(ctx, r)
		})
	case domain.EntityMake:
		return e.client.EnumerateMakes(ctx, func(r *domain.Make) error {
			*remote++
			return e.store.UpsertMake(ctx, r)
		})
	case domain.EntityVehicleTypeGroup:
		return e.client.EnumerateVehicleTypeGroups(ctx, func(r *domain.VehicleTypeGroup) error {
			*remote++
			return e.store.UpsertVehicleTypeGroup(ctx, r)
		})
	case domain.EntityVehicleType:
		return e.client.EnumerateVehicleTypes(ctx, func(r *domain.VehicleType) error {
			*remote++
			return e.store.UpsertVehicleType(ctx, r)
		})
	case domain.EntityModel:
		return e.client.EnumerateModels(ctx, func(r *domain.Model) error {
			*remote++
			return e.store.UpsertModel(ctx, r)
		})
	case domain.EntityRegion:
		return e.client.EnumerateRegions(ctx, func(r *domain.Region) error {
			*remote++
			return e.store.UpsertRegion(ctx, r)
		})
	case domain.EntityDriveType:
		return e.client.EnumerateDriveTypes(ctx, func(r *domain.DriveType) error {
			*remote++
			return e.store.UpsertDriveType(ctx, r)
		})
	case domain.EntityBodyStyleConfig:
		return e.client.EnumerateBodyStyleConfigs(ctx, func(r *domain.BodyStyleConfig) error {
			*remote++
			return e.store.UpsertBodyStyleConfig(ctx, r)
		})
	case domain.EntityEngineConfig:
		return e.client.EnumerateEngineConfigs(ctx, func(r *domain.EngineConfig) error {
			*remote++
			return e.store.UpsertEngineConfig(ctx, r)
		})
	case domain.EntityBaseVehicle:
		return e.client.EnumerateBaseVehicles(ctx, func(r *domain.BaseVehicle) error {
			*remote++
			return e.store.UpsertBaseVehicle(ctx, r)
		})
	case domain.EntityVehicle:
		return e.client.EnumerateVehicles(ctx, func(r *domain.Vehicle) error {
			*remote++
			return e.store.UpsertVehicle(ctx, r)
		})
	case domain.EntityVehicleToDriveType:
		return e.client.EnumerateVehicleToDriveTypes(ctx, func(r *domain.VehicleToDriveType) error {
			*remote++
			return e.store.UpsertVehicleToDriveType(ctx, r)
		})
	case domain.EntityVehicleToBodyStyle:
		return e.client.EnumerateVehicleToBodyStyleConfigs(ctx, func(r *domain.VehicleToBodyStyleConfig) error {
			*remote++
			return e.store.UpsertVehicleToBodyStyleConfig(ctx, r)
		})
	case domain.EntityVehicleToEngine:
		return e.client.EnumerateVehicleToEngineConfigs(ctx, func(r *domain.VehicleToEngineConfig) error {
			*remote++
			return e.store.UpsertVehicleToEngineConfig(ctx, r)
		})
	default:
		return fmt.Errorf("unknown catalog entity %q", entity)
	}
}

// Cancel marks a running sync run cancelled. The engine observes the flag
// at the next entity boundary.
func (e *Engine) Cancel(ctx context.Context, runID string) error {
	return e.store.CancelSyncRun(ctx, runID)
}

// Status summarizes sync state for the operational surface and the daily
// status check.
type Status struct {
	Latest      *domain.SyncRun `json:"latest,omitempty"`
	LastSuccess *domain.SyncRun `json:"last_success,omitempty"`
}

// Status reads the latest and last successful runs.
func (e *Engine) Status(ctx context.Context) (*Status, error) {
	st := &Status{}

	latest, err := e.store.GetLatestSyncRun(ctx)
	if err == nil {
		st.Latest = latest
	} else if err != store.ErrNotFound {
		return nil, errors.Wrap(err, errors.CodeStoreFailure, "read latest run")
	}

	success, err := e.store.GetLastSuccessfulSyncRun(ctx)
	if err == nil {
		st.LastSuccess = success
	} else if err != store.ErrNotFound {
		return nil, errors.Wrap(err, errors.CodeStoreFailure, "read last success")
	}

	return st, nil
}
