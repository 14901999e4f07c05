package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/fitmentiq/fitment-server/internal/domain"
	"github.com/fitmentiq/fitment-server/internal/store"
)

func TestFieldConfigs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	fc := &domain.FieldConfig{
		ID:        "fc_1",
		TenantID:  "tnt_1",
		FieldName: "liftKit",
		CreatedAt: time.Now().UTC(),
	}
	if err := s.CreateFieldConfig(ctx, fc); err != nil {
		t.Fatalf("create field config: %v", err)
	}

	// Same (tenant, field name) is rejected.
	dup := &domain.FieldConfig{ID: "fc_2", TenantID: "tnt_1", FieldName: "liftKit", CreatedAt: time.Now().UTC()}
	if err := s.CreateFieldConfig(ctx, dup); err != store.ErrAlreadyExists {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}

	// Another tenant may reuse the field name.
	other := &domain.FieldConfig{ID: "fc_3", TenantID: "tnt_2", FieldName: "liftKit", CreatedAt: time.Now().UTC()}
	if err := s.CreateFieldConfig(ctx, other); err != nil {
		t.Fatalf("create field config for other tenant: %v", err)
	}

	configs, err := s.ListFieldConfigs(ctx, "tnt_1")
	if err != nil {
		t.Fatalf("list field configs: %v", err)
	}
	if len(configs) != 1 || configs[0].ID != "fc_1" {
		t.Errorf("expected single config fc_1, got %+v", configs)
	}

	ids, err := s.KnownFieldConfigIDs(ctx, "tnt_1")
	if err != nil {
		t.Fatalf("known field config ids: %v", err)
	}
	if !ids["fc_1"] || ids["fc_3"] {
		t.Errorf("unexpected id set: %v", ids)
	}
}

func TestCreateGetFitment(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	f := &domain.Fitment{
		ID:        "fit_1",
		TenantID:  "tnt_1",
		VehicleID: 100,
		PartID:    "part-8812",
		DynamicFields: domain.DynamicFields{
			"fc_1": {Value: "3 inch", FieldName: "liftKit", FieldConfigID: "fc_1"},
		},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.CreateFitment(ctx, f); err != nil {
		t.Fatalf("create fitment: %v", err)
	}

	got, err := s.GetFitment(ctx, "fit_1")
	if err != nil {
		t.Fatalf("get fitment: %v", err)
	}
	if got.VehicleID != 100 || got.PartID != "part-8812" {
		t.Errorf("unexpected fitment: %+v", got)
	}
	df, ok := got.DynamicFields["fc_1"]
	if !ok {
		t.Fatal("expected dynamic field fc_1")
	}
	if df.Value != "3 inch" || df.FieldName != "liftKit" || df.FieldConfigID != "fc_1" {
		t.Errorf("unexpected dynamic field: %+v", df)
	}

	if _, err := s.GetFitment(ctx, "fit_missing"); err != store.ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
