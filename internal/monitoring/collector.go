package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/retail-insights/internal/model"
	"github.com/sells-group/retail-insights/internal/store"
)

// Snapshot holds a point-in-time view of the request history.
type Snapshot struct {
	ForecastTotal    int     `json:"forecast_total"`
	ForecastComplete int     `json:"forecast_complete"`
	ForecastFailed   int     `json:"forecast_failed"`
	ForecastFailRate float64 `json:"forecast_fail_rate"`
	ForecastAvgMS    int64   `json:"forecast_avg_ms"`

	Predictions int `json:"predictions"`
	// NeverSells counts predictions whose days-to-sell was infinite.
	NeverSells int `json:"never_sells"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// HistoryReader is the part of store.Store the collector reads.
type HistoryReader interface {
	ListForecasts(ctx context.Context, filter store.ForecastFilter) ([]model.ForecastRun, error)
	ListPredictions(ctx context.Context, limit int) ([]model.PredictionRecord, error)
}

// Collector gathers history metrics from the store.
type Collector struct {
	store HistoryReader
}

// NewCollector creates a new metrics collector.
func NewCollector(st HistoryReader) *Collector {
	return &Collector{store: st}
}

// Collect summarizes the most recent records (at most store.MaxListLimit of
// each kind) created within the lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*Snapshot, error) {
	snap := &Snapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   time.Now().UTC(),
	}
	cutoff := snap.CollectedAt.Add(-time.Duration(lookbackHours) * time.Hour)

	runs, err := c.store.ListForecasts(ctx, store.ForecastFilter{Limit: store.MaxListLimit})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list forecasts")
	}

	var totalDuration time.Duration
	for _, r := range runs {
		if r.CreatedAt.Before(cutoff) {
			continue
		}
		snap.ForecastTotal++
		totalDuration += r.Duration
		switch r.Status {
		case model.ForecastStatusComplete:
			snap.ForecastComplete++
		case model.ForecastStatusFailed:
			snap.ForecastFailed++
		}
	}
	if snap.ForecastTotal > 0 {
		snap.ForecastFailRate = float64(snap.ForecastFailed) / float64(snap.ForecastTotal)
		snap.ForecastAvgMS = (totalDuration / time.Duration(snap.ForecastTotal)).Milliseconds()
	}

	preds, err := c.store.ListPredictions(ctx, store.MaxListLimit)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list predictions")
	}
	for _, p := range preds {
		if p.CreatedAt.Before(cutoff) {
			continue
		}
		snap.Predictions++
		if p.Prediction.DaysToSell.IsInf() {
			snap.NeverSells++
		}
	}

	return snap, nil
}
