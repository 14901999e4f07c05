package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fitmentiq/fitment-server/internal/http/response"
	"github.com/fitmentiq/fitment-server/internal/store"
)

// handleSyncStatus returns the latest and last successful sync runs.
func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.engine.Status(r.Context())
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	response.Success(w, status, s.logger)
}

// handleStartSync kicks off a sync run in the background and returns 202.
// Progress is observable through /sync/status. ?force=true bypasses the
// minimum-interval window.
func (s *Server) handleStartSync(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force") == "true"

	// One quick conflict check up front so a concurrent run surfaces as
	// 409 instead of a silently failed background run.
	if _, err := s.store.GetRunningSyncRun(r.Context()); err == nil && !force {
		response.Conflict(w, "a sync run is already active", s.logger)
		return
	} else if err != nil && err != store.ErrNotFound {
		response.HandleError(w, err, s.logger)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 6*time.Hour)
		defer cancel()
		if run, err := s.engine.Run(ctx, force); err != nil {
			s.logger.Error("background sync run failed", "error", err)
		} else {
			s.logger.Info("background sync run finished",
				"run", run.ID, "status", string(run.Status))
		}
	}()

	response.Accepted(w, map[string]string{"message": "sync started"}, s.logger)
}

// handleGetSyncRun returns one sync run by id.
func (s *Server) handleGetSyncRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.GetSyncRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	response.Success(w, run, s.logger)
}

// handleCancelSyncRun requests cancellation of a running sync. The engine
// exits at its next entity boundary.
func (s *Server) handleCancelSyncRun(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Cancel(r.Context(), chi.URLParam(r, "id")); err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	response.Success(w, map[string]string{"message": "cancellation requested"}, s.logger)
}
