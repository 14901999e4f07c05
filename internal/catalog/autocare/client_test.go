package autocare

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/fitmentiq/fitment-server/internal/config"
	"github.com/fitmentiq/fitment-server/internal/domain"
)

func newTestClient(t *testing.T, handler http.Handler, pageSize int) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	c, err := New(config.AutoCareConfig{
		BaseURL:      srv.URL,
		ClientID:     "test-client",
		ClientSecret: "test-secret",
		PageSize:     pageSize,
		Timeout:      5 * time.Second,
	}, logger)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestEnumeratePaging(t *testing.T) {
	// 5 makes at pageSize 2: three pages, last one short.
	makes := []makeRecord{
		{MakeID: 1, MakeName: "Ford"},
		{MakeID: 2, MakeName: "Toyota"},
		{MakeID: 3, MakeName: "Honda"},
		{MakeID: 4, MakeName: "Subaru"},
		{MakeID: 5, MakeName: "Mazda"},
	}

	var requested []int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Client-Id") != "test-client" || r.Header.Get("Client-Secret") != "test-secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		size, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))
		requested = append(requested, page)

		start := (page - 1) * size
		end := start + size
		if start > len(makes) {
			start = len(makes)
		}
		if end > len(makes) {
			end = len(makes)
		}
		json.NewEncoder(w).Encode(pageEnvelope[makeRecord]{
			Items:      makes[start:end],
			Page:       page,
			PageSize:   size,
			TotalCount: len(makes),
		})
	})

	c := newTestClient(t, handler, 2)

	var got []*domain.Make
	err := c.EnumerateMakes(context.Background(), func(m *domain.Make) error {
		got = append(got, m)
		return nil
	})
	if err != nil {
		t.Fatalf("enumerate makes: %v", err)
	}

	if len(got) != 5 {
		t.Errorf("expected 5 makes, got %d", len(got))
	}
	if got[0].Name != "Ford" || got[4].Name != "Mazda" {
		t.Errorf("unexpected makes: first %s, last %s", got[0].Name, got[4].Name)
	}
	if len(requested) != 3 {
		t.Errorf("expected 3 page requests, got %v", requested)
	}
}

func TestEnumerateCallbackError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(pageEnvelope[yearRecord]{
			Items: []yearRecord{{YearID: 2020, Year: 2020}, {YearID: 2021, Year: 2021}},
		})
	})
	c := newTestClient(t, handler, 10)

	boom := fmt.Errorf("sink full")
	seen := 0
	err := c.EnumerateYears(context.Background(), func(*domain.Year) error {
		seen++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("expected callback error, got %v", err)
	}
	if seen != 1 {
		t.Errorf("expected enumeration to stop after first row, got %d", seen)
	}
}

func TestEnumerateStatusClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		want      error
		transient bool
	}{
		{"unauthorized", http.StatusUnauthorized, ErrAuth, false},
		{"forbidden", http.StatusForbidden, ErrAuth, false},
		{"rate limited", http.StatusTooManyRequests, ErrRateLimited, true},
		{"server error", http.StatusInternalServerError, ErrServer, true},
		{"bad gateway", http.StatusBadGateway, ErrServer, true},
		{"bad request", http.StatusBadRequest, ErrBadRequest, false},
		{"not found", http.StatusNotFound, ErrBadRequest, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})
			c := newTestClient(t, handler, 10)

			err := c.EnumerateVehicles(context.Background(), func(*domain.Vehicle) error {
				t.Fatal("callback should not run")
				return nil
			})
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
			if Transient(err) != tt.transient {
				t.Errorf("Transient(%v) = %v, want %v", err, Transient(err), tt.transient)
			}

			var aerr *Error
			if !errors.As(err, &aerr) {
				t.Errorf("expected wrapped *Error, got %T", err)
			}
		})
	}
}

func TestEnumerateDecodeError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	})
	c := newTestClient(t, handler, 10)

	err := c.EnumerateRegions(context.Background(), func(*domain.Region) error { return nil })
	if err == nil {
		t.Fatal("expected decode error")
	}
	if Transient(err) {
		t.Error("decode errors must not be retried")
	}
}

func TestEnumerateContextCancelled(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(pageEnvelope[yearRecord]{
			Items: make([]yearRecord, 10),
		})
	})
	c := newTestClient(t, handler, 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.EnumerateYears(ctx, func(*domain.Year) error { return nil })
	if err == nil {
		t.Fatal("expected error on cancelled context")
	}
}
