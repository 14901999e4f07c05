package api

import (
	"encoding/json/v2"
	"net/http"
	"time"

	"github.com/fitmentiq/fitment-server/internal/domain"
	"github.com/fitmentiq/fitment-server/internal/errors"
	"github.com/fitmentiq/fitment-server/internal/http/response"
	"github.com/fitmentiq/fitment-server/internal/id"
	"github.com/fitmentiq/fitment-server/internal/validation"
)

// FitmentRequest is the payload for creating or validating a fitment.
type FitmentRequest struct {
	VehicleID     int                  `json:"vehicle_id" validate:"gt=0"`
	PartID        string               `json:"part_id" validate:"required"`
	DynamicFields domain.DynamicFields `json:"dynamicFields,omitempty"`
}

// checkFitment validates the request against the catalog and the tenant's
// field configs. Shared by create and validate.
func (s *Server) checkFitment(r *http.Request, tenantID string, req FitmentRequest) error {
	if err := s.validator.Validate(req); err != nil {
		return err
	}

	exists, err := s.store.VehicleExists(r.Context(), req.VehicleID)
	if err != nil {
		return err
	}
	if !exists {
		return errors.Validationf("vehicle %d is not in the catalog", req.VehicleID)
	}

	known, err := s.store.KnownFieldConfigIDs(r.Context(), tenantID)
	if err != nil {
		return err
	}
	return validation.ValidateDynamicFields(req.DynamicFields, known)
}

// handleCreateFitment persists a fitment after validation.
func (s *Server) handleCreateFitment(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r.Context())

	var req FitmentRequest
	if err := json.UnmarshalRead(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body", s.logger)
		return
	}
	if err := s.checkFitment(r, tenant.ID, req); err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	fitmentID, err := id.Generate("fit")
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	now := time.Now().UTC()
	fitment := &domain.Fitment{
		ID:            fitmentID,
		TenantID:      tenant.ID,
		VehicleID:     req.VehicleID,
		PartID:        req.PartID,
		DynamicFields: req.DynamicFields,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.CreateFitment(r.Context(), fitment); err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	response.Created(w, fitment, s.logger)
}

// handleValidateFitment runs fitment validation without persisting.
func (s *Server) handleValidateFitment(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r.Context())

	var req FitmentRequest
	if err := json.UnmarshalRead(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body", s.logger)
		return
	}
	if err := s.checkFitment(r, tenant.ID, req); err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	response.Success(w, map[string]bool{"valid": true}, s.logger)
}

// FieldConfigRequest is the payload for creating a field config.
type FieldConfigRequest struct {
	FieldName string `json:"field_name" validate:"required,min=1,max=128"`
}

// handleListFieldConfigs returns the tenant's dynamic field configs.
func (s *Server) handleListFieldConfigs(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r.Context())

	configs, err := s.store.ListFieldConfigs(r.Context(), tenant.ID)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	response.Success(w, configs, s.logger)
}

// handleCreateFieldConfig adds a dynamic field config for the tenant.
func (s *Server) handleCreateFieldConfig(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r.Context())

	var req FieldConfigRequest
	if err := json.UnmarshalRead(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid JSON body", s.logger)
		return
	}
	if err := s.validator.Validate(req); err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	configID, err := id.Generate("fc")
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	config := &domain.FieldConfig{
		ID:        configID,
		TenantID:  tenant.ID,
		FieldName: req.FieldName,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateFieldConfig(r.Context(), config); err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	response.Created(w, config, s.logger)
}
