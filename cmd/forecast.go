package main

import (
	"context"
	"io"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/retail-insights/internal/config"
	"github.com/sells-group/retail-insights/internal/metrics"
	"github.com/sells-group/retail-insights/internal/model"
	"github.com/sells-group/retail-insights/internal/store"
)

var forecastSteps int

var forecastCmd = &cobra.Command{
	Use:   "forecast",
	Short: "Render the forecast and top-product charts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runForecast(cmd.Context(), cfg, forecastSteps, cmd.OutOrStdout())
	},
}

type forecastSummary struct {
	Order    string   `yaml:"order"`
	Steps    int      `yaml:"steps"`
	History  int      `yaml:"history_days"`
	AIC      float64  `yaml:"aic"`
	Images   []string `yaml:"images"`
	Duration string   `yaml:"duration"`
	RunID    string   `yaml:"run_id,omitempty"`
}

func runForecast(ctx context.Context, c *config.Config, steps int, out io.Writer) error {
	renderer, err := newRenderer(c, steps)
	if err != nil {
		return err
	}
	ds, err := loadDataset(ctx, c)
	if err != nil {
		return err
	}

	st, err := store.Open(ctx, c.Store.Driver, c.Store.DatabaseURL)
	if err != nil {
		return eris.Wrap(err, "open store")
	}
	defer st.Close() //nolint:errcheck
	if err := st.Migrate(ctx); err != nil {
		return eris.Wrap(err, "migrate store")
	}

	opts := renderer.Options()
	res, err := renderer.Generate(ctx, ds)
	if err != nil {
		metrics.RecordForecast(0, err)
		_, recErr := st.RecordForecast(ctx, model.ForecastRun{
			Steps:  opts.Steps,
			Order:  [3]int{opts.Order.P, opts.Order.D, opts.Order.Q},
			Status: model.ForecastStatusFailed,
			Error:  err.Error(),
		})
		if recErr != nil {
			zap.L().Warn("record failed forecast run", zap.Error(recErr))
		}
		return err
	}
	metrics.RecordForecast(res.Duration, nil)

	run, err := st.RecordForecast(ctx, model.ForecastRun{
		Steps:    opts.Steps,
		Order:    [3]int{res.Model.Order.P, res.Model.Order.D, res.Model.Order.Q},
		Status:   model.ForecastStatusComplete,
		Images:   res.Images,
		Duration: res.Duration,
		Points:   res.Forecast,
	})
	if err != nil {
		return eris.Wrap(err, "record forecast run")
	}

	images := make([]string, len(res.Images))
	for i, name := range res.Images {
		images[i] = renderer.Path(name)
		zap.L().Debug("chart written", zap.String("path", images[i]), zap.Int64("bytes", fileSize(images[i])))
	}
	return printYAML(out, forecastSummary{
		Order:    res.Model.Order.String(),
		Steps:    opts.Steps,
		History:  len(res.History),
		AIC:      res.Model.AIC,
		Images:   images,
		Duration: res.Duration.Round(time.Millisecond).String(),
		RunID:    run.ID,
	})
}

func init() {
	forecastCmd.Flags().IntVar(&forecastSteps, "steps", 0, "days to forecast (default from config)")
	rootCmd.AddCommand(forecastCmd)
}
