package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/sells-group/retail-insights/internal/model"
)

// Nop is a Store that keeps nothing.
type Nop struct{}

func (Nop) RecordPrediction(_ context.Context, p model.Prediction) (*model.PredictionRecord, error) {
	return &model.PredictionRecord{ID: uuid.NewString(), Prediction: p, CreatedAt: time.Now().UTC()}, nil
}

func (Nop) ListPredictions(context.Context, int) ([]model.PredictionRecord, error) {
	return []model.PredictionRecord{}, nil
}

func (Nop) RecordForecast(_ context.Context, run model.ForecastRun) (*model.ForecastRun, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	return &run, nil
}

func (Nop) ListForecasts(context.Context, ForecastFilter) ([]model.ForecastRun, error) {
	return []model.ForecastRun{}, nil
}

func (Nop) GetForecast(context.Context, string) (*model.ForecastRun, error) {
	return nil, ErrNotFound
}

func (Nop) Migrate(context.Context) error { return nil }

func (Nop) Close() error { return nil }
