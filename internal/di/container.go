// Package di provides dependency injection configuration for the fitment server.
package di

import (
	"time"

	"github.com/samber/do/v2"

	"github.com/fitmentiq/fitment-server/internal/config"
	"github.com/fitmentiq/fitment-server/internal/di/providers"
	"github.com/fitmentiq/fitment-server/internal/logger"
	"github.com/fitmentiq/fitment-server/internal/normalize"
	syncengine "github.com/fitmentiq/fitment-server/internal/sync"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideSlogLogger)
	do.Provide(injector, providers.ProvideTimezone)

	// Storage layer
	do.Provide(injector, providers.ProvideStore)
	do.Provide(injector, providers.ProvideSearchIndex)

	// Catalog sync
	do.Provide(injector, providers.ProvideAutoCareClient)
	do.Provide(injector, providers.ProvideSyncEngine)
	do.Provide(injector, providers.ProvideScheduler)

	// Normalization workers
	do.Provide(injector, providers.ProvideNormalizer)
	do.Provide(injector, providers.ProvideCandidateBuilder)
	do.Provide(injector, providers.ProvideWorkerPool)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// Bootstrap initializes all services and returns handles for lifecycle
// management. This triggers lazy initialization of all core services.
func Bootstrap(injector *do.RootScope) error {
	_ = do.MustInvoke[*config.Config](injector)
	_ = do.MustInvoke[*logger.Logger](injector)
	_ = do.MustInvoke[*time.Location](injector)
	_ = do.MustInvoke[*providers.StoreHandle](injector)
	_ = do.MustInvoke[*providers.SearchIndexHandle](injector)
	_ = do.MustInvoke[*providers.AutoCareClientHandle](injector)
	_ = do.MustInvoke[*syncengine.Engine](injector)
	_ = do.MustInvoke[*providers.SchedulerHandle](injector)
	_ = do.MustInvoke[normalize.Normalizer](injector)
	_ = do.MustInvoke[*normalize.CandidateBuilder](injector)
	_ = do.MustInvoke[*providers.WorkerPoolHandle](injector)
	_ = do.MustInvoke[*providers.HTTPServerHandle](injector)

	providers.ReportStartupSyncState(injector)

	return nil
}
