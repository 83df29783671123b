package main

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/retail-insights/internal/arima"
	"github.com/sells-group/retail-insights/internal/charts"
	"github.com/sells-group/retail-insights/internal/config"
	"github.com/sells-group/retail-insights/internal/dataset"
	"github.com/sells-group/retail-insights/internal/fetcher"
	"github.com/sells-group/retail-insights/internal/forecast"
	"github.com/sells-group/retail-insights/internal/rules"
	"github.com/sells-group/retail-insights/internal/salesmodel"
)

// artifacts is everything the server loads at start-up.
type artifacts struct {
	Data          *dataset.Dataset
	Rules         *rules.Table
	Sales         *salesmodel.Model
	ForecastModel *arima.Model // nil when no artifact exists
}

// loadDataset reads the transactions spreadsheet, downloading it first when
// the configured location is a URL.
func loadDataset(ctx context.Context, c *config.Config) (*dataset.Dataset, error) {
	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{UserAgent: c.Data.UserAgent})
	return dataset.Fetch(ctx, dataset.Source{
		Location: c.Data.Transactions,
		FileOptions: dataset.FileOptions{
			SheetName:  c.Data.SheetName,
			SheetIndex: c.Data.SheetIndex,
			Charset:    c.Data.Charset,
		},
		CacheDir: c.Data.CacheDir,
	}, f)
}

// loadForecastModel returns nil without error when the artifact is not
// configured or does not exist yet.
func loadForecastModel(path string) (*arima.Model, error) {
	if path == "" {
		return nil, nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		zap.L().Warn("forecast model artifact missing, /api/forecast disabled", zap.String("path", path))
		return nil, nil
	}
	return arima.Load(path)
}

// loadArtifacts loads the independent artifacts concurrently.
func loadArtifacts(ctx context.Context, c *config.Config) (*artifacts, error) {
	var a artifacts
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		d, err := loadDataset(gctx, c)
		if err != nil {
			return eris.Wrap(err, "load transactions")
		}
		a.Data = d
		return nil
	})
	g.Go(func() error {
		t, err := rules.Load(c.Artifacts.Rules)
		if err != nil {
			return eris.Wrap(err, "load rules")
		}
		a.Rules = t
		return nil
	})
	g.Go(func() error {
		m, err := salesmodel.Load(c.Artifacts.SalesModel)
		if err != nil {
			return eris.Wrap(err, "load sales model")
		}
		a.Sales = m
		return nil
	})
	g.Go(func() error {
		m, err := loadForecastModel(c.Artifacts.ForecastModel)
		if err != nil {
			return eris.Wrap(err, "load forecast model")
		}
		a.ForecastModel = m
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	zap.L().Info("artifacts loaded",
		zap.Int("transactions", a.Data.Len()),
		zap.Int("products", len(a.Data.Products())),
		zap.Int("rules", a.Rules.Len()),
		zap.Bool("forecast_model", a.ForecastModel != nil),
	)
	return &a, nil
}

func newRenderer(c *config.Config, steps int) (*forecast.Renderer, error) {
	if steps <= 0 {
		steps = c.Forecast.Steps
	}
	return forecast.NewRenderer(forecast.Options{
		Order:        arima.OrderOf(c.Forecast.Order()),
		Steps:        steps,
		TopN:         c.Forecast.TopN,
		OutputDir:    c.Forecast.OutputDir,
		ForecastSize: charts.Inches(c.Forecast.WidthInches, c.Forecast.HeightInches),
	})
}

// printYAML writes v as a YAML document.
func printYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return eris.Wrap(err, "encode yaml")
	}
	return eris.Wrap(enc.Close(), "close yaml encoder")
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
