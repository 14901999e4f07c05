package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fitmentiq/fitment-server/internal/domain"
	"github.com/fitmentiq/fitment-server/internal/store"
)

// CreateFieldConfig inserts a tenant field config.
func (s *Store) CreateFieldConfig(ctx context.Context, fc *domain.FieldConfig) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO field_configs (id, tenant_id, field_name, created_at)
		VALUES (?, ?, ?, ?)`,
		fc.ID, fc.TenantID, fc.FieldName, formatTime(fc.CreatedAt))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return store.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// ListFieldConfigs returns a tenant's field configs.
func (s *Store) ListFieldConfigs(ctx context.Context, tenantID string) ([]*domain.FieldConfig, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, field_name, created_at
		FROM field_configs WHERE tenant_id = ? ORDER BY field_name`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []*domain.FieldConfig
	for rows.Next() {
		var (
			fc        domain.FieldConfig
			createdAt string
		)
		if err := rows.Scan(&fc.ID, &fc.TenantID, &fc.FieldName, &createdAt); err != nil {
			return nil, err
		}
		fc.CreatedAt, err = parseTime(createdAt)
		if err != nil {
			return nil, err
		}
		configs = append(configs, &fc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if configs == nil {
		configs = []*domain.FieldConfig{}
	}
	return configs, nil
}

// KnownFieldConfigIDs returns the set of field config ids for a tenant,
// used by write-time dynamic-field validation.
func (s *Store) KnownFieldConfigIDs(ctx context.Context, tenantID string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM field_configs WHERE tenant_id = ?`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make(map[string]bool)
	for rows.Next() {
		var fcID string
		if err := rows.Scan(&fcID); err != nil {
			return nil, err
		}
		ids[fcID] = true
	}
	return ids, rows.Err()
}

// CreateFitment inserts a fitment. The dynamicFields map is serialized as
// JSON; the caller validates it against the tenant's field configs first.
func (s *Store) CreateFitment(ctx context.Context, f *domain.Fitment) error {
	fields, err := json.Marshal(f.DynamicFields)
	if err != nil {
		return fmt.Errorf("encode dynamic fields: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO fitments (id, tenant_id, vehicle_id, part_id, dynamicFields, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.ID,
		f.TenantID,
		f.VehicleID,
		f.PartID,
		string(fields),
		formatTime(f.CreatedAt),
		formatTime(f.UpdatedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return store.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// GetFitment retrieves a fitment by id.
func (s *Store) GetFitment(ctx context.Context, fitmentID string) (*domain.Fitment, error) {
	var (
		f         domain.Fitment
		fields    string
		createdAt string
		updatedAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, vehicle_id, part_id, dynamicFields, created_at, updated_at
		FROM fitments WHERE id = ?`, fitmentID).
		Scan(&f.ID, &f.TenantID, &f.VehicleID, &f.PartID, &fields, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(fields), &f.DynamicFields); err != nil {
		return nil, fmt.Errorf("decode dynamic fields: %w", err)
	}
	f.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	f.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return nil, err
	}
	return &f, nil
}
