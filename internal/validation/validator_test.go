package validation_test

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fitmentiq/fitment-server/internal/domain"
	domainerrors "github.com/fitmentiq/fitment-server/internal/errors"
	"github.com/fitmentiq/fitment-server/internal/validation"
)

type TestRequest struct {
	TenantSlug string `json:"tenant_slug" validate:"required,min=2,max=64"`
	UploadRef  string `json:"upload_ref" validate:"required"`
	VehicleID  int    `json:"vehicle_id" validate:"gt=0"`
}

func TestValidator_ValidateSuccess(t *testing.T) {
	v := validation.New()

	req := TestRequest{
		TenantSlug: "acme-offroad",
		UploadRef:  "upload-2026-01",
		VehicleID:  100,
	}

	err := v.Validate(req)
	assert.NoError(t, err)
}

func TestValidator_ValidateErrors(t *testing.T) {
	v := validation.New()

	//nolint:govet // fieldalignment: Minor memory optimization not worth the complexity in test code
	tests := []struct {
		name        string
		req         TestRequest
		wantErrCode int
		wantField   string
	}{
		{
			name: "missing required field",
			req: TestRequest{
				TenantSlug: "acme-offroad",
				UploadRef:  "", // Missing
				VehicleID:  100,
			},
			wantErrCode: http.StatusBadRequest,
			wantField:   "upload_ref",
		},
		{
			name: "slug too short",
			req: TestRequest{
				TenantSlug: "a",
				UploadRef:  "upload-1",
				VehicleID:  100,
			},
			wantErrCode: http.StatusBadRequest,
			wantField:   "tenant_slug",
		},
		{
			name: "non-positive vehicle id",
			req: TestRequest{
				TenantSlug: "acme-offroad",
				UploadRef:  "upload-1",
				VehicleID:  0,
			},
			wantErrCode: http.StatusBadRequest,
			wantField:   "vehicle_id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.req)
			assert.Error(t, err)

			var domainErr *domainerrors.Error
			if assert.True(t, errors.As(err, &domainErr)) {
				assert.Equal(t, tt.wantErrCode, domainErr.HTTPStatus())
				details, ok := domainErr.Details.(map[string]string)
				if assert.True(t, ok, "details should be per-field messages") {
					assert.Contains(t, details, tt.wantField)
				}
			}
		})
	}
}

func TestValidator_JSONFieldNames(t *testing.T) {
	v := validation.New()

	req := TestRequest{
		TenantSlug: "",
		UploadRef:  "upload-1",
		VehicleID:  100,
	}

	err := v.Validate(req)
	assert.Error(t, err)

	var domainErr *domainerrors.Error
	if assert.True(t, errors.As(err, &domainErr)) {
		details := domainErr.Details.(map[string]string)
		// Should use JSON tag name "tenant_slug", not struct field name
		assert.Contains(t, details, "tenant_slug")
		assert.NotContains(t, details, "TenantSlug")
	}
}

func TestValidateDynamicFields(t *testing.T) {
	known := map[string]bool{"fc_1": true, "fc_2": true}

	tests := []struct {
		name    string
		fields  domain.DynamicFields
		wantErr bool
	}{
		{
			name:    "empty fields pass",
			fields:  nil,
			wantErr: false,
		},
		{
			name: "known fields pass",
			fields: domain.DynamicFields{
				"fc_1": {Value: "front", FieldName: "position", FieldConfigID: "fc_1"},
			},
			wantErr: false,
		},
		{
			name: "unknown config rejected",
			fields: domain.DynamicFields{
				"fc_other": {Value: "front", FieldName: "position", FieldConfigID: "fc_other"},
			},
			wantErr: true,
		},
		{
			name: "mismatched key and config id rejected",
			fields: domain.DynamicFields{
				"fc_1": {Value: "front", FieldName: "position", FieldConfigID: "fc_2"},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validation.ValidateDynamicFields(tt.fields, known)
			if tt.wantErr {
				assert.Error(t, err)
				var domainErr *domainerrors.Error
				assert.True(t, errors.As(err, &domainErr))
				assert.Equal(t, domainerrors.CodeValidation, domainErr.Code)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
