package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/fitmentiq/fitment-server/internal/domain"
	"github.com/fitmentiq/fitment-server/internal/http/response"
	"github.com/fitmentiq/fitment-server/internal/search"
	"github.com/fitmentiq/fitment-server/internal/store/sqlite"
)

const defaultNameSearchLimit = 10

// handleCatalogStats returns local row counts for every catalog entity.
func (s *Server) handleCatalogStats(w http.ResponseWriter, r *http.Request) {
	stats := make(map[domain.CatalogEntity]int, len(domain.SyncOrder))
	for _, entity := range domain.SyncOrder {
		count, err := s.store.CountCatalog(r.Context(), entity)
		if err != nil {
			response.HandleError(w, err, s.logger)
			return
		}
		stats[entity] = count
	}
	response.Success(w, stats, s.logger)
}

// handleSearchNames fuzzy-matches make and model names through the search
// index. ?q is the query text, ?type restricts to make or model.
func (s *Server) handleSearchNames(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		response.BadRequest(w, "missing query parameter q", s.logger)
		return
	}

	var docType search.DocType
	switch t := r.URL.Query().Get("type"); t {
	case "":
	case "make":
		docType = search.DocTypeMake
	case "model":
		docType = search.DocTypeModel
	default:
		response.BadRequest(w, "type must be make or model", s.logger)
		return
	}

	hits, err := s.index.MatchNames(r.Context(), query, docType, defaultNameSearchLimit)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	response.Success(w, hits, s.logger)
}

// handleFindBaseVehicles filters base vehicles by ?year, ?make_id and
// ?model_id. Year is the model year value, not the year id.
func (s *Server) handleFindBaseVehicles(w http.ResponseWriter, r *http.Request) {
	var filter sqlite.BaseVehicleFilter

	if yearStr := r.URL.Query().Get("year"); yearStr != "" {
		value, err := strconv.Atoi(yearStr)
		if err != nil {
			response.BadRequest(w, "year must be an integer", s.logger)
			return
		}
		year, err := s.store.GetYearByValue(r.Context(), value)
		if err != nil {
			response.HandleError(w, err, s.logger)
			return
		}
		filter.YearID = year.YearID
	}
	if v := r.URL.Query().Get("make_id"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			response.BadRequest(w, "make_id must be an integer", s.logger)
			return
		}
		filter.MakeID = id
	}
	if v := r.URL.Query().Get("model_id"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			response.BadRequest(w, "model_id must be an integer", s.logger)
			return
		}
		filter.ModelID = id
	}

	if filter.YearID == 0 && filter.MakeID == 0 && filter.ModelID == 0 {
		response.BadRequest(w, "at least one of year, make_id, model_id is required", s.logger)
		return
	}

	bvs, err := s.store.FindBaseVehicles(r.Context(), filter)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	response.Success(w, bvs, s.logger)
}

// handleGetVehicles returns the vehicles of one base vehicle.
func (s *Server) handleGetVehicles(w http.ResponseWriter, r *http.Request) {
	bvID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "base vehicle id must be an integer", s.logger)
		return
	}

	if _, err := s.store.GetBaseVehicle(r.Context(), bvID); err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	vehicles, err := s.store.GetVehiclesByBaseVehicle(r.Context(), bvID)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}
	response.Success(w, vehicles, s.logger)
}
