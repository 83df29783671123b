package api

import (
	"bytes"
	"net/http"
	"slices"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/retail-insights/internal/forecast"
	"github.com/sells-group/retail-insights/internal/metrics"
	"github.com/sells-group/retail-insights/internal/model"
)

const msgForecastFailed = "Error generating forecast: "

// forecastPage is the data of the forecast template.
type forecastPage struct {
	ForecastImage    string
	TopProductsImage string
	TopProductsPie   string
	Steps            int
	Order            string
	AIC              float64
	Points           []model.DailyPoint
	Top              []model.ProductTotal
	Duration         time.Duration
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Forecaster.Generate(r.Context(), s.deps.Data)
	if err != nil {
		s.recordForecastFailure(r, err)
		respondError(w, http.StatusInternalServerError, msgForecastFailed+err.Error())
		return
	}
	metrics.RecordForecast(res.Duration, nil)

	opts := s.deps.Forecaster.Options()
	run := model.ForecastRun{
		Steps:    opts.Steps,
		Order:    [3]int{res.Model.Order.P, res.Model.Order.D, res.Model.Order.Q},
		Status:   model.ForecastStatusComplete,
		Images:   res.Images,
		Duration: res.Duration,
		Points:   res.Forecast,
	}
	if _, err := s.deps.Store.RecordForecast(r.Context(), run); err != nil {
		zap.L().Warn("api: record forecast run", zap.Error(err))
	}

	page := forecastPage{
		ForecastImage:    staticURL(forecast.ForecastImage),
		TopProductsImage: staticURL(forecast.TopProductsImage),
		Steps:            opts.Steps,
		Order:            res.Model.Order.String(),
		AIC:              res.Model.AIC,
		Points:           res.Forecast,
		Top:              res.Top,
		Duration:         res.Duration,
	}
	if slices.Contains(res.Images, forecast.TopProductsPie) {
		page.TopProductsPie = staticURL(forecast.TopProductsPie)
	}
	var buf bytes.Buffer
	if err := s.pages.ExecuteTemplate(&buf, "forecast.html", page); err != nil {
		zap.L().Error("api: render forecast page", zap.Error(err))
		respondError(w, http.StatusInternalServerError, msgForecastFailed+err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = buf.WriteTo(w)
}

func (s *Server) recordForecastFailure(r *http.Request, err error) {
	metrics.RecordForecast(0, err)
	zap.L().Error("api: forecast failed", zap.Error(err))

	order := s.deps.Forecaster.Options().Order
	run := model.ForecastRun{
		Steps:  s.deps.Forecaster.Options().Steps,
		Order:  [3]int{order.P, order.D, order.Q},
		Status: model.ForecastStatusFailed,
		Error:  err.Error(),
	}
	if _, err := s.deps.Store.RecordForecast(r.Context(), run); err != nil {
		zap.L().Warn("api: record failed forecast run", zap.Error(err))
	}
}

// modelForecast is the body of GET /api/forecast.
type modelForecast struct {
	Order  string             `json:"order"`
	Steps  int                `json:"steps"`
	AIC    float64            `json:"aic"`
	Points []model.DailyPoint `json:"points"`
}

// forecastQuery is the query of GET /api/forecast.
type forecastQuery struct {
	Steps int `validate:"min=1,max=365"`
}

func (s *Server) handleModelForecast(w http.ResponseWriter, r *http.Request) {
	m := s.deps.ForecastModel
	if m == nil {
		respondError(w, http.StatusNotFound, "No forecast model is loaded.")
		return
	}

	q := forecastQuery{Steps: 30}
	if raw := r.URL.Query().Get("steps"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "steps must be an integer.")
			return
		}
		q.Steps = n
	}
	if err := s.validate.Struct(q); err != nil {
		respondError(w, http.StatusBadRequest, "steps must be between 1 and 365.")
		return
	}

	values, err := m.Forecast(q.Steps)
	if err != nil {
		respondError(w, http.StatusInternalServerError, msgForecastFailed+err.Error())
		return
	}
	points := make([]model.DailyPoint, len(values))
	for i, day := range m.ForecastDates(len(values)) {
		points[i] = model.DailyPoint{Day: day, Quantity: values[i]}
	}
	respondJSON(w, http.StatusOK, modelForecast{
		Order:  m.Order.String(),
		Steps:  q.Steps,
		AIC:    m.AIC,
		Points: points,
	})
}

func staticURL(name string) string {
	return "/static/" + name
}
