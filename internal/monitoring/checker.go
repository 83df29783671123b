package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/retail-insights/internal/config"
)

// Checker periodically collects a snapshot and warns when the forecast
// failure rate crosses the configured threshold.
type Checker struct {
	collector *Collector
	cfg       config.MonitoringConfig
}

// NewChecker creates a background checker.
func NewChecker(collector *Collector, cfg config.MonitoringConfig) *Checker {
	return &Checker{collector: collector, cfg: cfg}
}

// Run starts the periodic check loop. It blocks until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	interval := time.Duration(c.cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting history checker",
		zap.Duration("interval", interval),
		zap.Int("lookback_hours", c.cfg.LookbackWindowHours),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("history checker stopped")
			return
		case <-ticker.C:
			c.Check(ctx, log)
		}
	}
}

// Check runs one collection and reports whether the failure threshold was
// breached.
func (c *Checker) Check(ctx context.Context, log *zap.Logger) bool {
	snap, err := c.collector.Collect(ctx, c.cfg.LookbackWindowHours)
	if err != nil {
		log.Error("monitoring: failed to collect metrics", zap.Error(err))
		return false
	}

	breached := c.cfg.FailureRateThreshold > 0 &&
		snap.ForecastTotal > 0 &&
		snap.ForecastFailRate > c.cfg.FailureRateThreshold
	if !breached {
		log.Debug("monitoring: forecast failure rate within threshold",
			zap.Float64("fail_rate", snap.ForecastFailRate))
		return false
	}

	log.Warn("monitoring: forecast failure rate above threshold",
		zap.Float64("fail_rate", snap.ForecastFailRate),
		zap.Float64("threshold", c.cfg.FailureRateThreshold),
		zap.Int("failed", snap.ForecastFailed),
		zap.Int("total", snap.ForecastTotal),
	)
	return true
}
