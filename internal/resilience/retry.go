// Package resilience retries calls that leave the process, such as dataset
// downloads and database connects, with jittered exponential backoff.
package resilience

import (
	"context"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Backoff computes the pause before each retry.
type Backoff struct {
	Initial time.Duration // pause before the first retry
	Max     time.Duration // upper bound for any pause
	Factor  float64       // growth per retry
	Jitter  float64       // ± fraction of the pause, 0 disables
}

// Delay returns the pause before retry n (0-based).
func (b Backoff) Delay(n int) time.Duration {
	d := float64(b.Initial)
	for i := 0; i < n && d < float64(b.Max); i++ {
		d *= b.Factor
	}
	d = min(d, float64(b.Max))
	if b.Jitter > 0 {
		d += d * b.Jitter * (2*rand.Float64() - 1)
	}
	return time.Duration(max(d, 0))
}

// RetryConfig bounds a retried call.
type RetryConfig struct {
	// MaxAttempts counts the first call too; 1 disables retries.
	MaxAttempts int
	Backoff     Backoff

	// Retryable decides which errors are retried. IsTransient when nil.
	Retryable func(error) bool

	// OnRetry runs before each pause with the 1-based number of the failed
	// attempt.
	OnRetry func(attempt int, err error)
}

var defaultBackoff = Backoff{
	Initial: 500 * time.Millisecond,
	Max:     30 * time.Second,
	Factor:  2,
	Jitter:  0.25,
}

// DefaultRetryConfig is three attempts with the default backoff.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, Backoff: defaultBackoff}
}

func (c RetryConfig) normalized() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.Backoff.Initial <= 0 {
		c.Backoff.Initial = defaultBackoff.Initial
	}
	if c.Backoff.Max <= 0 {
		c.Backoff.Max = defaultBackoff.Max
	}
	if c.Backoff.Factor < 1 {
		c.Backoff.Factor = defaultBackoff.Factor
	}
	c.Backoff.Jitter = max(c.Backoff.Jitter, 0)
	if c.Retryable == nil {
		c.Retryable = IsTransient
	}
	return c
}

// Retry calls fn until it succeeds, returns an error cfg does not retry, the
// attempts run out or ctx is done. The last error is returned.
func Retry[T any](ctx context.Context, cfg RetryConfig, fn func(context.Context) (T, error)) (T, error) {
	cfg = cfg.normalized()

	var (
		val T
		err error
	)
	for attempt := 1; ; attempt++ {
		val, err = fn(ctx)
		if err == nil {
			return val, nil
		}
		if attempt >= cfg.MaxAttempts || ctx.Err() != nil || !cfg.Retryable(err) {
			var zero T
			return zero, err
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err)
		}

		pause := time.NewTimer(cfg.Backoff.Delay(attempt - 1))
		select {
		case <-ctx.Done():
			pause.Stop()
			var zero T
			return zero, err
		case <-pause.C:
		}
	}
}

// LogRetries returns an OnRetry hook that logs each failed attempt.
func LogRetries(component, op string) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("retrying after failure",
			zap.String("component", component),
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}
