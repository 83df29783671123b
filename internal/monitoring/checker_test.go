package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sells-group/retail-insights/internal/config"
	"github.com/sells-group/retail-insights/internal/model"
)

func TestChecker_RunStopsOnCancel(t *testing.T) {
	checker := NewChecker(NewCollector(&mockHistory{}), config.MonitoringConfig{
		CheckIntervalSecs:   1,
		LookbackWindowHours: 24,
	})

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Checker.Run did not stop after context cancellation")
	}
}

func TestChecker_DefaultInterval(t *testing.T) {
	checker := NewChecker(NewCollector(&mockHistory{}), config.MonitoringConfig{})
	assert.NotNil(t, checker)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	checker.Run(ctx)
}

func TestChecker_Check(t *testing.T) {
	now := time.Now().UTC()
	h := &mockHistory{runs: []model.ForecastRun{
		{Status: model.ForecastStatusFailed, CreatedAt: now},
		{Status: model.ForecastStatusComplete, CreatedAt: now},
	}}
	cfg := config.MonitoringConfig{LookbackWindowHours: 24, FailureRateThreshold: 0.25}

	core, logs := observer.New(zap.WarnLevel)
	assert.True(t, NewChecker(NewCollector(h), cfg).Check(context.Background(), zap.New(core)))
	assert.Equal(t, 1, logs.FilterMessage("monitoring: forecast failure rate above threshold").Len())

	cfg.FailureRateThreshold = 0.75
	assert.False(t, NewChecker(NewCollector(h), cfg).Check(context.Background(), zap.NewNop()))

	cfg.FailureRateThreshold = 0
	assert.False(t, NewChecker(NewCollector(h), cfg).Check(context.Background(), zap.NewNop()))

	broken := NewChecker(NewCollector(&mockHistory{listErr: errors.New("down")}), cfg)
	assert.False(t, broken.Check(context.Background(), zap.NewNop()))
}
