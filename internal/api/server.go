// Package api serves the prediction form, the /predict and /forecast
// endpoints and the JSON history API over chi.
package api

import (
	"context"
	"html/template"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/retail-insights/internal/arima"
	"github.com/sells-group/retail-insights/internal/config"
	"github.com/sells-group/retail-insights/internal/estimate"
	"github.com/sells-group/retail-insights/internal/forecast"
	"github.com/sells-group/retail-insights/internal/metrics"
	"github.com/sells-group/retail-insights/internal/monitoring"
	"github.com/sells-group/retail-insights/internal/store"
)

// Catalog is the read-only transaction data the handlers query.
type Catalog interface {
	estimate.SalesHistory
	forecast.Source
	Products() []string
}

// Recommender returns products bought together with item.
type Recommender interface {
	Recommend(item string) ([]string, error)
}

// SalesPredictor predicts line revenue.
type SalesPredictor interface {
	Predict(quantity, unitPrice float64) float64
}

// Forecaster regenerates the forecast charts.
type Forecaster interface {
	Generate(ctx context.Context, src forecast.Source) (*forecast.Result, error)
	Options() forecast.Options
}

// Deps holds everything the server needs. Data, Rules, Sales and Forecaster
// are required; a nil ForecastModel disables /api/forecast and a nil Store
// keeps no history.
type Deps struct {
	Data          Catalog
	Rules         Recommender
	Sales         SalesPredictor
	Forecaster    Forecaster
	ForecastModel *arima.Model
	Store         store.Store
	Config        config.ServerConfig
	// StaticDir holds the rendered chart images.
	StaticDir string
}

// Server is the HTTP front of the service.
type Server struct {
	deps      Deps
	products  []string
	collector *monitoring.Collector
	pages     *template.Template
	printer   *message.Printer
	validate  *validator.Validate
}

// New validates deps and parses the page templates.
func New(deps Deps) (*Server, error) {
	switch {
	case deps.Data == nil:
		return nil, eris.New("api: data is required")
	case deps.Rules == nil:
		return nil, eris.New("api: rules are required")
	case deps.Sales == nil:
		return nil, eris.New("api: sales model is required")
	case deps.Forecaster == nil:
		return nil, eris.New("api: forecaster is required")
	}
	if deps.Store == nil {
		deps.Store = store.Nop{}
	}
	if deps.StaticDir == "" {
		deps.StaticDir = deps.Forecaster.Options().OutputDir
	}

	s := &Server{
		deps:      deps,
		products:  deps.Data.Products(),
		collector: monitoring.NewCollector(deps.Store),
		printer:   message.NewPrinter(language.English),
		validate:  validator.New(),
	}
	pages, err := parsePages(s.printer)
	if err != nil {
		return nil, err
	}
	s.pages = pages
	return s, nil
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(CORS(s.deps.Config.CORSOrigins))

	r.Get("/", s.handleIndex)
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", metrics.Handler())

	r.Get("/static/scripts.js", s.handleScript)
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(s.deps.StaticDir))))

	r.Group(func(r chi.Router) {
		r.Use(RateLimit(s.deps.Config.RateLimitPerMin, time.Minute))
		r.Post("/predict", s.handlePredict)
		r.Get("/forecast", s.handleForecast)
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/products", s.handleProducts)
		r.Get("/forecast", s.handleModelForecast)
		r.Get("/forecasts", s.handleListForecasts)
		r.Get("/forecasts/{id}", s.handleGetForecast)
		r.Get("/predictions", s.handleListPredictions)
		r.Get("/stats", s.handleStats)
	})

	return r
}
