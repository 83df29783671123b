// Package store persists prediction and forecast history. Recording is best
// effort from the HTTP layer's point of view: callers log failures instead of
// failing the request.
package store

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/retail-insights/internal/model"
)

// List limits.
const (
	DefaultListLimit = 20
	MaxListLimit     = 500
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = eris.New("store: not found")

// ForecastFilter specifies criteria for listing forecast runs.
type ForecastFilter struct {
	Status model.ForecastStatus `json:"status,omitempty"`
	Limit  int                  `json:"limit,omitempty"`
}

func (f ForecastFilter) limit() int {
	switch {
	case f.Limit <= 0:
		return DefaultListLimit
	case f.Limit > MaxListLimit:
		return MaxListLimit
	default:
		return f.Limit
	}
}

// Store defines the history persistence interface.
type Store interface {
	RecordPrediction(ctx context.Context, p model.Prediction) (*model.PredictionRecord, error)
	ListPredictions(ctx context.Context, limit int) ([]model.PredictionRecord, error)

	RecordForecast(ctx context.Context, run model.ForecastRun) (*model.ForecastRun, error)
	ListForecasts(ctx context.Context, filter ForecastFilter) ([]model.ForecastRun, error)
	GetForecast(ctx context.Context, id string) (*model.ForecastRun, error)

	Migrate(ctx context.Context) error
	Close() error
}

// Open returns the Store for driver: "sqlite", "postgres", or "none"/"" for a
// store that discards everything.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch strings.ToLower(driver) {
	case "sqlite":
		return NewSQLite(dsn)
	case "postgres":
		return NewPostgres(ctx, dsn, nil)
	case "none", "":
		return Nop{}, nil
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
}
