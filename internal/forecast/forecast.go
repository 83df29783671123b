// Package forecast regenerates the sales forecast and top-product charts
// served under /static.
package forecast

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/retail-insights/internal/arima"
	"github.com/sells-group/retail-insights/internal/charts"
	"github.com/sells-group/retail-insights/internal/dataset"
	"github.com/sells-group/retail-insights/internal/model"
)

// Image file names, relative to the output directory.
const (
	ForecastImage    = "sales_forecast.png"
	TopProductsImage = "top_10_products.png"
	TopProductsPie   = "top_10_products_pie.png"
)

// ErrNoSales is returned when the dataset has no positive-quantity rows.
var ErrNoSales = eris.New("forecast: no positive sales to forecast")

// Source is the slice of the dataset the renderer reads.
type Source interface {
	DailySeries(keep func(model.Transaction) bool) []model.DailyPoint
	TopProducts(n int) []model.ProductTotal
}

// Options configures a Renderer.
type Options struct {
	Order     arima.Order
	Steps     int
	TopN      int
	OutputDir string
	// ForecastSize is the size of the forecast line chart.
	ForecastSize charts.Size
}

// Result describes one successful generation.
type Result struct {
	Images   []string // file names inside the output directory
	Model    *arima.Model
	History  []model.DailyPoint
	Forecast []model.DailyPoint
	Top      []model.ProductTotal
	Duration time.Duration
}

// Renderer fits the forecast model and writes the chart images. Generations
// are serialized since they overwrite the same files.
type Renderer struct {
	opts Options
	mu   sync.Mutex
}

// NewRenderer validates opts and returns a Renderer.
func NewRenderer(opts Options) (*Renderer, error) {
	if err := opts.Order.Validate(); err != nil {
		return nil, err
	}
	if opts.Steps <= 0 {
		return nil, eris.Errorf("forecast: steps must be positive, got %d", opts.Steps)
	}
	if opts.TopN <= 0 {
		return nil, eris.Errorf("forecast: top_n must be positive, got %d", opts.TopN)
	}
	if opts.OutputDir == "" {
		opts.OutputDir = "static"
	}
	if opts.ForecastSize.Width <= 0 || opts.ForecastSize.Height <= 0 {
		opts.ForecastSize = charts.Inches(14, 7)
	}
	return &Renderer{opts: opts}, nil
}

// Options returns the renderer configuration.
func (r *Renderer) Options() Options { return r.opts }

// Path returns the on-disk path of an image name.
func (r *Renderer) Path(name string) string {
	return filepath.Join(r.opts.OutputDir, name)
}

// Generate builds the positive-sales daily series, fits the configured
// ARIMA order, forecasts Steps days ahead and renders the forecast, bar and
// pie charts concurrently. The pie is skipped when no top product has a
// positive net quantity; Result.Images lists what was written.
func (r *Renderer) Generate(ctx context.Context, src Source) (*Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	history := src.DailySeries(dataset.PositiveSales)
	if len(history) == 0 {
		return nil, ErrNoSales
	}

	values := make([]float64, len(history))
	for i, p := range history {
		values[i] = p.Quantity
	}
	m, err := arima.Fit(values, r.opts.Order)
	if err != nil {
		return nil, eris.Wrap(err, "forecast: fit")
	}
	m.Start = history[0].Day

	predicted, err := m.Forecast(r.opts.Steps)
	if err != nil {
		return nil, eris.Wrap(err, "forecast: predict")
	}
	future := make([]model.DailyPoint, len(predicted))
	for i, day := range m.ForecastDates(len(predicted)) {
		future[i] = model.DailyPoint{Day: day, Quantity: predicted[i]}
	}

	top := src.TopProducts(r.opts.TopN)
	var positive []model.ProductTotal
	for _, t := range top {
		if t.Quantity > 0 {
			positive = append(positive, t)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	render := func(name string, fn func(path string) error) {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return eris.Wrap(err, "forecast: cancelled")
			}
			if err := fn(r.Path(name)); err != nil {
				return eris.Wrapf(err, "forecast: render %s", name)
			}
			return nil
		})
	}
	render(ForecastImage, func(path string) error {
		title := fmt.Sprintf("Sales Forecast for Next %d Days", r.opts.Steps)
		return charts.Forecast(path, title, history, future, r.opts.ForecastSize)
	})
	render(TopProductsImage, func(path string) error {
		return charts.Bar(path, fmt.Sprintf("Top %d Selling Products", r.opts.TopN), top, charts.Inches(10, 6))
	})
	images := []string{ForecastImage, TopProductsImage}
	if len(positive) > 0 {
		render(TopProductsPie, func(path string) error {
			return charts.Pie(path, fmt.Sprintf("Sales Distribution of Top %d Products", r.opts.TopN), positive, charts.Inches(8, 8))
		})
		images = append(images, TopProductsPie)
	} else {
		// Shares of a net-negative total mean nothing; drop any stale pie.
		if err := os.Remove(r.Path(TopProductsPie)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			zap.L().Warn("forecast: remove stale pie chart", zap.Error(err))
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{
		Images:   images,
		Model:    m,
		History:  history,
		Forecast: future,
		Top:      top,
		Duration: time.Since(start),
	}
	zap.L().Info("forecast: generated",
		zap.Stringer("order", m.Order),
		zap.Int("history_days", len(history)),
		zap.Int("steps", len(future)),
		zap.Float64("aic", m.AIC),
		zap.Duration("duration", res.Duration),
	)
	return res, nil
}
