// Package api provides the HTTP API server and handlers for the fitment backend.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/fitmentiq/fitment-server/internal/scheduler"
	"github.com/fitmentiq/fitment-server/internal/search"
	"github.com/fitmentiq/fitment-server/internal/store/sqlite"
	syncengine "github.com/fitmentiq/fitment-server/internal/sync"
	"github.com/fitmentiq/fitment-server/internal/validation"
	"github.com/fitmentiq/fitment-server/internal/worker"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	store     *sqlite.Store
	engine    *syncengine.Engine
	pool      *worker.Pool
	index     *search.CatalogIndex
	scheduler *scheduler.Scheduler
	validator *validation.Validator
	router    *chi.Mux
	logger    *slog.Logger
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(
	store *sqlite.Store,
	engine *syncengine.Engine,
	pool *worker.Pool,
	index *search.CatalogIndex,
	sched *scheduler.Scheduler,
	logger *slog.Logger,
) *Server {
	s := &Server{
		store:     store,
		engine:    engine,
		pool:      pool,
		index:     index,
		scheduler: sched,
		validator: validation.New(),
		router:    chi.NewRouter(),
		logger:    logger,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// setupMiddleware configures middleware stack.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	// Health check.
	s.router.Get("/health", s.handleHealthCheck)

	// API v1.
	s.router.Route("/api/v1", func(r chi.Router) {
		// Sync operations.
		r.Route("/sync", func(r chi.Router) {
			r.Get("/status", s.handleSyncStatus)
			r.Post("/run", s.handleStartSync)
			r.Get("/runs/{id}", s.handleGetSyncRun)
			r.Post("/runs/{id}/cancel", s.handleCancelSyncRun)
		})

		// Normalization jobs.
		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", s.handleEnqueueJob)
			r.Get("/", s.handleListJobs)
			r.Get("/{id}", s.handleGetJob)
			r.Get("/{id}/results", s.handleGetJobResults)
		})

		// Catalog reads.
		r.Route("/catalog", func(r chi.Router) {
			r.Get("/stats", s.handleCatalogStats)
			r.Get("/names", s.handleSearchNames)
			r.Get("/base-vehicles", s.handleFindBaseVehicles)
			r.Get("/base-vehicles/{id}/vehicles", s.handleGetVehicles)
		})

		// Tenant fitment writes and field configuration.
		r.Route("/tenants/{slug}", func(r chi.Router) {
			r.Use(s.resolveTenant)
			r.Post("/fitments", s.handleCreateFitment)
			r.Post("/fitments/validate", s.handleValidateFitment)
			r.Get("/field-configs", s.handleListFieldConfigs)
			r.Post("/field-configs", s.handleCreateFieldConfig)
		})
	})
}
