package normalize

import (
	"context"
	"log/slog"
	"regexp"
	"strconv"

	"github.com/fitmentiq/fitment-server/internal/domain"
	"github.com/fitmentiq/fitment-server/internal/search"
	"github.com/fitmentiq/fitment-server/internal/store/sqlite"
)

// maxCandidates bounds the decision space offered to the normalizer. Rows
// matching more vehicles than this are ambiguous enough that extra
// candidates only add noise.
const maxCandidates = 25

var yearPattern = regexp.MustCompile(`\b(19|20)\d{2}\b`)

// CandidateBuilder narrows the catalog to the vehicles a free-text row could
// plausibly mean: fuzzy name matching for make and model, a literal year
// token if present, then the base-vehicle indexes.
type CandidateBuilder struct {
	store  *sqlite.Store
	index  *search.CatalogIndex
	logger *slog.Logger
}

// NewCandidateBuilder creates a candidate builder.
func NewCandidateBuilder(store *sqlite.Store, index *search.CatalogIndex, logger *slog.Logger) *CandidateBuilder {
	return &CandidateBuilder{store: store, index: index, logger: logger}
}

// Build returns candidate vehicles for the row text. An empty result is not
// an error; the normalizer reports low confidence instead.
func (b *CandidateBuilder) Build(ctx context.Context, rowText string) ([]Candidate, error) {
	yearID := 0
	if m := yearPattern.FindString(rowText); m != "" {
		value, _ := strconv.Atoi(m)
		if y, err := b.store.GetYearByValue(ctx, value); err == nil {
			yearID = y.YearID
		}
	}

	makeHits, err := b.index.MatchNames(ctx, rowText, search.DocTypeMake, 3)
	if err != nil {
		return nil, err
	}
	modelHits, err := b.index.MatchNames(ctx, rowText, search.DocTypeModel, 5)
	if err != nil {
		return nil, err
	}

	var candidates []Candidate
	seen := make(map[int]bool)

	add := func(ctx context.Context, filter sqlite.BaseVehicleFilter) error {
		bvs, err := b.store.FindBaseVehicles(ctx, filter)
		if err != nil {
			return err
		}
		for _, bv := range bvs {
			vehicles, err := b.store.GetVehiclesByBaseVehicle(ctx, bv.BaseVehicleID)
			if err != nil {
				return err
			}
			for _, v := range vehicles {
				if seen[v.VehicleID] || len(candidates) >= maxCandidates {
					continue
				}
				seen[v.VehicleID] = true
				candidates = append(candidates, b.describe(ctx, v.VehicleID, bv))
			}
		}
		return nil
	}

	// Make+model pairs first; they are the tightest filter.
	for _, mk := range makeHits {
		for _, md := range modelHits {
			filter := sqlite.BaseVehicleFilter{MakeID: mk.RemoteID, ModelID: md.RemoteID, YearID: yearID}
			if err := add(ctx, filter); err != nil {
				return nil, err
			}
		}
	}

	// Fall back to year+make when no model matched.
	if len(candidates) == 0 && yearID != 0 {
		for _, mk := range makeHits {
			if err := add(ctx, sqlite.BaseVehicleFilter{YearID: yearID, MakeID: mk.RemoteID}); err != nil {
				return nil, err
			}
		}
	}

	return candidates, nil
}

// describe resolves the display attributes of one candidate. Lookup misses
// leave fields empty rather than failing the build.
func (b *CandidateBuilder) describe(ctx context.Context, vehicleID int, bv *domain.BaseVehicle) Candidate {
	c := Candidate{VehicleID: vehicleID}
	if mk, err := b.store.GetMake(ctx, bv.MakeID); err == nil {
		c.Make = mk.Name
	}
	if md, err := b.store.GetModel(ctx, bv.ModelID); err == nil {
		c.Model = md.Name
	}
	if y, err := b.store.GetYear(ctx, bv.YearID); err == nil {
		c.Year = y.Value
	}
	return c
}
