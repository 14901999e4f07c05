package api

import (
	"encoding/json/v2"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fitmentiq/fitment-server/internal/domain"
	"github.com/fitmentiq/fitment-server/internal/http/response"
)

const defaultJobListLimit = 100

// EnqueueJobRequest is the payload for creating a normalization job.
type EnqueueJobRequest struct {
	TenantSlug string   `json:"tenant_slug" validate:"required"`
	UploadRef  string   `json:"upload_ref" validate:"required"`
	Rows       []string `json:"rows" validate:"required,min=1,dive,required"`
}

// handleEnqueueJob creates a queued normalization job from uploaded rows.
func (s *Server) handleEnqueueJob(w http.ResponseWriter, r *http.Request) {
	var req EnqueueJobRequest
	if err := json.UnmarshalRead(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body", s.logger)
		return
	}
	if err := s.validator.Validate(req); err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	tenant, err := s.store.GetTenantBySlug(r.Context(), req.TenantSlug)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	job, err := s.pool.EnqueueJob(r.Context(), tenant.ID, req.UploadRef, req.Rows)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	response.Accepted(w, job, s.logger)
}

// handleListJobs lists jobs, optionally filtered by tenant slug and status.
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	var tenantID string
	if slug := r.URL.Query().Get("tenant"); slug != "" {
		tenant, err := s.store.GetTenantBySlug(r.Context(), slug)
		if err != nil {
			response.HandleError(w, err, s.logger)
			return
		}
		tenantID = tenant.ID
	}

	status := domain.JobStatus(r.URL.Query().Get("status"))
	switch status {
	case "", domain.JobStatusQueued, domain.JobStatusRunning, domain.JobStatusSucceeded, domain.JobStatusFailed:
	default:
		response.BadRequest(w, "unknown job status", s.logger)
		return
	}

	jobs, err := s.store.ListJobs(r.Context(), tenantID, status, defaultJobListLimit)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	response.Success(w, jobs, s.logger)
}

// handleGetJob returns one job by id.
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.store.GetJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	response.Success(w, job, s.logger)
}

// handleGetJobResults returns the per-row normalization results of a job,
// in row order.
func (s *Server) handleGetJobResults(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")

	// 404 for an unknown job rather than an empty result list.
	if _, err := s.store.GetJob(r.Context(), jobID); err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	results, err := s.store.ListNormalizationResults(r.Context(), jobID)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	response.Success(w, results, s.logger)
}
