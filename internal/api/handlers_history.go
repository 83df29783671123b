package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/retail-insights/internal/model"
	"github.com/sells-group/retail-insights/internal/store"
)

// listQuery is the query of the history list endpoints.
type listQuery struct {
	Limit  int    `validate:"omitempty,min=1,max=500"`
	Status string `validate:"omitempty,oneof=complete failed"`
	Hours  int    `validate:"omitempty,min=1,max=8760"`
}

func (s *Server) parseListQuery(w http.ResponseWriter, r *http.Request) (listQuery, bool) {
	q := listQuery{Status: r.URL.Query().Get("status")}
	for name, dst := range map[string]*int{"limit": &q.Limit, "hours": &q.Hours} {
		raw := r.URL.Query().Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, name+" must be an integer.")
			return q, false
		}
		*dst = n
	}
	if err := s.validate.Struct(q); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid query: "+err.Error())
		return q, false
	}
	return q, true
}

func (s *Server) handleListForecasts(w http.ResponseWriter, r *http.Request) {
	q, ok := s.parseListQuery(w, r)
	if !ok {
		return
	}
	runs, err := s.deps.Store.ListForecasts(r.Context(), store.ForecastFilter{
		Status: model.ForecastStatus(q.Status),
		Limit:  q.Limit,
	})
	if err != nil {
		zap.L().Error("api: list forecasts", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Error listing forecasts: "+err.Error())
		return
	}
	respondJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetForecast(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, err := s.deps.Store.GetForecast(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Forecast run not found.")
		return
	}
	if err != nil {
		zap.L().Error("api: get forecast", zap.String("id", id), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Error loading forecast: "+err.Error())
		return
	}
	respondJSON(w, http.StatusOK, run)
}

func (s *Server) handleListPredictions(w http.ResponseWriter, r *http.Request) {
	q, ok := s.parseListQuery(w, r)
	if !ok {
		return
	}
	recs, err := s.deps.Store.ListPredictions(r.Context(), q.Limit)
	if err != nil {
		zap.L().Error("api: list predictions", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Error listing predictions: "+err.Error())
		return
	}
	respondJSON(w, http.StatusOK, recs)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	q, ok := s.parseListQuery(w, r)
	if !ok {
		return
	}
	hours := q.Hours
	if hours == 0 {
		hours = 24
	}
	snap, err := s.collector.Collect(r.Context(), hours)
	if err != nil {
		zap.L().Error("api: collect stats", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Error collecting stats: "+err.Error())
		return
	}
	respondJSON(w, http.StatusOK, snap)
}
