package normalize

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fitmentiq/fitment-server/internal/config"
	"github.com/fitmentiq/fitment-server/internal/domain"
	"github.com/fitmentiq/fitment-server/internal/errors"
	"github.com/fitmentiq/fitment-server/internal/search"
	"github.com/fitmentiq/fitment-server/internal/store/sqlite"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	s, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"), logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedVehicles(t *testing.T, s *sqlite.Store) {
	t.Helper()
	ctx := context.Background()
	for _, err := range []error{
		s.UpsertYear(ctx, &domain.Year{YearID: 2020, Value: 2020}),
		s.UpsertMake(ctx, &domain.Make{MakeID: 54, Name: "Toyota"}),
		s.UpsertVehicleTypeGroup(ctx, &domain.VehicleTypeGroup{GroupID: 1, Name: "Light Duty"}),
		s.UpsertVehicleType(ctx, &domain.VehicleType{VehicleTypeID: 5, Name: "Truck", GroupID: 1}),
		s.UpsertModel(ctx, &domain.Model{ModelID: 700, Name: "Tacoma", VehicleTypeID: 5}),
		s.UpsertRegion(ctx, &domain.Region{RegionID: 1, Name: "United States"}),
		s.UpsertBaseVehicle(ctx, &domain.BaseVehicle{BaseVehicleID: 9000, YearID: 2020, MakeID: 54, ModelID: 700}),
		s.UpsertVehicle(ctx, &domain.Vehicle{VehicleID: 100, BaseVehicleID: 9000, RegionID: 1}),
	} {
		if err != nil {
			t.Fatalf("seed vehicles: %v", err)
		}
	}
}

// completionHandler returns a handler answering every chat completion with
// the given verdict JSON.
func completionHandler(t *testing.T, verdictJSON string) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("api-key") != "test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if !strings.Contains(r.URL.Path, "/openai/deployments/") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		resp := map[string]any{
			"id": "cmpl_1",
			"choices": []map[string]any{
				{
					"message":       map[string]string{"role": "assistant", "content": verdictJSON},
					"finish_reason": "stop",
				},
			},
		}
		json.NewEncoder(w).Encode(resp)
	})
}

func newTestNormalizer(t *testing.T, s *sqlite.Store, handler http.Handler) *AINormalizer {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	return NewAINormalizer(config.AIConfig{
		Endpoint:   srv.URL,
		APIKey:     "test-key",
		Deployment: "gpt-4o",
		APIVersion: "2024-06-01",
		Timeout:    5 * time.Second,
	}, s, logger)
}

func TestNormalize(t *testing.T) {
	s := newTestStore(t)
	seedVehicles(t, s)

	n := newTestNormalizer(t, s, completionHandler(t,
		`{"chosen_vehicle_id": 100, "confidence": 0.92, "confidence_explanation": "exact match", "reasoning": "year, make and model all line up"}`))

	out, err := n.Normalize(context.Background(), Input{
		RowText:  "2020 Toyota Tacoma",
		TenantID: "tnt_1",
		Candidates: []Candidate{
			{VehicleID: 100, Year: 2020, Make: "Toyota", Model: "Tacoma"},
		},
	})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if out.ChosenVehicleID == nil || *out.ChosenVehicleID != 100 {
		t.Errorf("expected chosen vehicle 100, got %v", out.ChosenVehicleID)
	}
	if out.Confidence != 0.92 {
		t.Errorf("expected confidence 0.92, got %f", out.Confidence)
	}
	if out.Reasoning == "" {
		t.Error("expected reasoning text")
	}
}

func TestNormalizeNullVerdict(t *testing.T) {
	s := newTestStore(t)
	n := newTestNormalizer(t, s, completionHandler(t,
		`{"chosen_vehicle_id": null, "confidence": 0.1, "confidence_explanation": "no candidate fits", "reasoning": "row names a motorcycle"}`))

	out, err := n.Normalize(context.Background(), Input{RowText: "1987 Honda CBR600"})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if out.ChosenVehicleID != nil {
		t.Errorf("expected null verdict, got %v", *out.ChosenVehicleID)
	}
}

func TestNormalizeUnknownVehicleNulled(t *testing.T) {
	s := newTestStore(t)
	seedVehicles(t, s)

	// The model hallucinates an id that is not in the catalog.
	n := newTestNormalizer(t, s, completionHandler(t,
		`{"chosen_vehicle_id": 424242, "confidence": 0.9, "confidence_explanation": "looks right", "reasoning": "made up"}`))

	out, err := n.Normalize(context.Background(), Input{RowText: "2020 Toyota Tacoma"})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if out.ChosenVehicleID != nil {
		t.Errorf("expected hallucinated id to be nulled, got %v", *out.ChosenVehicleID)
	}
	if out.Confidence != 0 {
		t.Errorf("expected zero confidence, got %f", out.Confidence)
	}
}

func TestNormalizeConfidenceClamped(t *testing.T) {
	s := newTestStore(t)
	seedVehicles(t, s)

	n := newTestNormalizer(t, s, completionHandler(t,
		`{"chosen_vehicle_id": 100, "confidence": 1.7, "confidence_explanation": "over-eager", "reasoning": "x"}`))

	out, err := n.Normalize(context.Background(), Input{RowText: "2020 Toyota Tacoma"})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if out.Confidence != 1 {
		t.Errorf("expected clamped confidence 1, got %f", out.Confidence)
	}
}

func TestNormalizeUpstreamErrorPreserved(t *testing.T) {
	s := newTestStore(t)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "deployment overloaded")
	})
	n := newTestNormalizer(t, s, handler)

	_, err := n.Normalize(context.Background(), Input{RowText: "2020 Toyota Tacoma"})
	if err == nil {
		t.Fatal("expected error")
	}
	var derr *errors.Error
	if !errors.As(err, &derr) || derr.Code != errors.CodeNormalizationFailure {
		t.Errorf("expected normalization failure, got %v", err)
	}
	if !strings.Contains(err.Error(), "deployment overloaded") {
		t.Errorf("expected upstream text preserved, got %q", err.Error())
	}
}

func TestNormalizeNoEndpoint(t *testing.T) {
	s := newTestStore(t)
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	n := NewAINormalizer(config.AIConfig{}, s, logger)

	_, err := n.Normalize(context.Background(), Input{RowText: "2020 Toyota Tacoma"})
	if err == nil {
		t.Fatal("expected error with no endpoint configured")
	}
}

func TestCandidateBuilder(t *testing.T) {
	s := newTestStore(t)
	seedVehicles(t, s)

	idx, err := search.NewCatalogIndex(search.Options{DataPath: t.TempDir()})
	if err != nil {
		t.Fatalf("new catalog index: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	s.SetCatalogIndexer(idx)

	// Reindex now that the indexer is attached.
	ctx := context.Background()
	if err := s.UpsertMake(ctx, &domain.Make{MakeID: 54, Name: "Toyota"}); err != nil {
		t.Fatalf("reindex make: %v", err)
	}
	if err := s.UpsertModel(ctx, &domain.Model{ModelID: 700, Name: "Tacoma", VehicleTypeID: 5}); err != nil {
		t.Fatalf("reindex model: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	builder := NewCandidateBuilder(s, idx, logger)

	candidates, err := builder.Build(ctx, "2020 Toyota Tacoma 4WD")
	if err != nil {
		t.Fatalf("build candidates: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(candidates))
	}
	c := candidates[0]
	if c.VehicleID != 100 || c.Make != "Toyota" || c.Model != "Tacoma" || c.Year != 2020 {
		t.Errorf("unexpected candidate: %+v", c)
	}
}

func TestCandidateBuilderNoMatch(t *testing.T) {
	s := newTestStore(t)
	seedVehicles(t, s)

	idx, err := search.NewCatalogIndex(search.Options{DataPath: t.TempDir()})
	if err != nil {
		t.Fatalf("new catalog index: %v", err)
	}
	t.Cleanup(func() { idx.Close() })

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	builder := NewCandidateBuilder(s, idx, logger)

	candidates, err := builder.Build(context.Background(), "lawnmower blade 3000")
	if err != nil {
		t.Fatalf("build candidates: %v", err)
	}
	if len(candidates) != 0 {
		t.Errorf("expected no candidates, got %+v", candidates)
	}
}
