// Package normalize maps free-text fitment rows to concrete catalog
// vehicles. Candidate vehicles are narrowed through the catalog search index
// before the AI completion service is asked to pick one.
package normalize

import (
	"context"
)

// Input is one row of normalization work.
type Input struct {
	RowText  string
	TenantID string

	// Candidates narrows the decision space. Built by a CandidateBuilder
	// from the row text; may be empty when nothing in the catalog matched.
	Candidates []Candidate
}

// Candidate is one catalog vehicle offered to the normalizer.
type Candidate struct {
	VehicleID int    `json:"vehicle_id"`
	Year      int    `json:"year"`
	Make      string `json:"make"`
	Model     string `json:"model"`
}

// Output is the normalizer verdict for one input row.
type Output struct {
	ChosenVehicleID       *int
	Confidence            float64
	ConfidenceExplanation string
	Reasoning             string
}

// Normalizer resolves a free-text fitment row to a catalog vehicle. The
// verdict's ChosenVehicleID is nil when no candidate fits.
type Normalizer interface {
	Normalize(ctx context.Context, in Input) (*Output, error)
}
