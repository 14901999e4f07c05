package providers

import (
	"context"
	"net/http"

	"github.com/samber/do/v2"

	"github.com/fitmentiq/fitment-server/internal/api"
	"github.com/fitmentiq/fitment-server/internal/config"
	"github.com/fitmentiq/fitment-server/internal/logger"
	syncengine "github.com/fitmentiq/fitment-server/internal/sync"
)

// HTTPServerHandle wraps http.Server with Shutdownable.
type HTTPServerHandle struct {
	*http.Server
}

// Shutdown implements do.Shutdownable.
func (h *HTTPServerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Server.Shutdown(ctx)
}

// ProvideHTTPServer provides the HTTP server, listening in the background.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	indexHandle := do.MustInvoke[*SearchIndexHandle](i)
	engine := do.MustInvoke[*syncengine.Engine](i)
	poolHandle := do.MustInvoke[*WorkerPoolHandle](i)
	schedHandle := do.MustInvoke[*SchedulerHandle](i)

	handler := api.NewServer(
		storeHandle.Store,
		engine,
		poolHandle.Pool,
		indexHandle.CatalogIndex,
		schedHandle.Scheduler,
		log.Logger,
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", "error", err)
		}
	}()

	return &HTTPServerHandle{Server: srv}, nil
}
