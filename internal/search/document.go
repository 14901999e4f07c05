// Package search provides the catalog name index used to narrow
// normalization candidates. Free-text fitment rows are matched against make
// and model names with fuzzy matching before the normalizer sees them.
package search

import (
	"fmt"

	"github.com/fitmentiq/fitment-server/internal/domain"
)

// DocType discriminates documents in the catalog index.
type DocType string

const (
	DocTypeMake  DocType = "make"
	DocTypeModel DocType = "model"
)

// CatalogDocument is the indexed shape of a catalog name. The remote id is
// kept so hits resolve back to store rows.
type CatalogDocument struct {
	ID       string  `json:"id"` // "make_54", "model_700"
	Type     DocType `json:"type"`
	RemoteID int     `json:"remote_id"`
	Name     string  `json:"name"`

	// VehicleType is denormalized onto model documents so a row like
	// "Tacoma truck" can boost the right model without a store lookup.
	VehicleType string `json:"vehicle_type,omitempty"`
}

// ToMap converts the document to a map with lowercase field names matching
// the index mapping.
func (d *CatalogDocument) ToMap() map[string]interface{} {
	m := map[string]interface{}{
		"id":        d.ID,
		"type":      string(d.Type),
		"remote_id": d.RemoteID,
		"name":      d.Name,
	}
	if d.VehicleType != "" {
		m["vehicle_type"] = d.VehicleType
	}
	return m
}

// MakeDocID returns the index document id for a make.
func MakeDocID(makeID int) string { return fmt.Sprintf("make_%d", makeID) }

// ModelDocID returns the index document id for a model.
func ModelDocID(modelID int) string { return fmt.Sprintf("model_%d", modelID) }

// MakeToDocument converts a domain Make to its index document.
func MakeToDocument(m *domain.Make) *CatalogDocument {
	return &CatalogDocument{
		ID:       MakeDocID(m.MakeID),
		Type:     DocTypeMake,
		RemoteID: m.MakeID,
		Name:     m.Name,
	}
}

// ModelToDocument converts a domain Model to its index document. The vehicle
// type name is denormalized by the caller.
func ModelToDocument(m *domain.Model, vehicleType string) *CatalogDocument {
	return &CatalogDocument{
		ID:          ModelDocID(m.ModelID),
		Type:        DocTypeModel,
		RemoteID:    m.ModelID,
		Name:        m.Name,
		VehicleType: vehicleType,
	}
}
