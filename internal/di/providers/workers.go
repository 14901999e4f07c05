package providers

import (
	"github.com/samber/do/v2"

	"github.com/fitmentiq/fitment-server/internal/config"
	"github.com/fitmentiq/fitment-server/internal/logger"
	"github.com/fitmentiq/fitment-server/internal/normalize"
	"github.com/fitmentiq/fitment-server/internal/worker"
)

// ProvideNormalizer provides the AI normalizer.
func ProvideNormalizer(i do.Injector) (normalize.Normalizer, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)

	return normalize.NewAINormalizer(cfg.AI, storeHandle.Store, log.Logger), nil
}

// ProvideCandidateBuilder provides the catalog candidate builder.
func ProvideCandidateBuilder(i do.Injector) (*normalize.CandidateBuilder, error) {
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	indexHandle := do.MustInvoke[*SearchIndexHandle](i)

	return normalize.NewCandidateBuilder(storeHandle.Store, indexHandle.CatalogIndex, log.Logger), nil
}

// WorkerPoolHandle wraps the job worker pool with lifecycle management.
type WorkerPoolHandle struct {
	*worker.Pool
}

// Shutdown implements do.Shutdownable.
func (h *WorkerPoolHandle) Shutdown() error {
	h.Pool.Stop()
	return nil
}

// ProvideWorkerPool provides the normalization job worker pool, started.
func ProvideWorkerPool(i do.Injector) (*WorkerPoolHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	builder := do.MustInvoke[*normalize.CandidateBuilder](i)
	normalizer := do.MustInvoke[normalize.Normalizer](i)

	pool, err := worker.New(storeHandle.Store, builder, normalizer, cfg.Worker, log.Logger)
	if err != nil {
		return nil, err
	}

	pool.Start()

	log.Info("Worker pool started",
		"identity", pool.Identity(),
		"concurrency", cfg.Worker.MaxConcurrent,
	)

	return &WorkerPoolHandle{Pool: pool}, nil
}
