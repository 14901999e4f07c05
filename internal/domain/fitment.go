package domain

import "time"

// FieldConfig defines one tenant-configured dynamic field that fitments may
// carry. Fitment dynamic fields are validated against these at write time,
// not schema time.
type FieldConfig struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	FieldName string    `json:"field_name"`
	CreatedAt time.Time `json:"created_at"`
}

// DynamicFieldValue is one entry of a fitment's dynamicFields map. The
// FieldConfigID inside the value repeats the map key; the two must agree.
type DynamicFieldValue struct {
	Value         string `json:"value"`
	FieldName     string `json:"field_name"`
	FieldConfigID string `json:"field_config_id"`
}

// DynamicFields maps field config id -> value entry. Serialized as the
// fitment table's dynamicFields JSON column.
type DynamicFields map[string]DynamicFieldValue

// Fitment associates a catalog vehicle with a part for one tenant. Fitments
// are owned by the tenant subsystem; the core reads them and validates
// their dynamic fields.
type Fitment struct {
	ID            string        `json:"id"`
	TenantID      string        `json:"tenant_id"`
	VehicleID     int           `json:"vehicle_id"`
	PartID        string        `json:"part_id"`
	DynamicFields DynamicFields `json:"dynamicFields,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}
