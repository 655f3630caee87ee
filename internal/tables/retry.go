package tables

import (
	"context"
	"errors"
	"io/fs"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/branch-insights/internal/model"
)

// RetryPolicy controls how a failed source load is retried.
type RetryPolicy struct {
	// Attempts is the total number of loads, including the first. Values
	// below 1 mean a single attempt.
	Attempts int

	// Backoff is the delay before the first retry. It doubles per attempt
	// up to MaxBackoff.
	Backoff    time.Duration
	MaxBackoff time.Duration

	// Jitter adds up to ±Jitter of the computed delay.
	Jitter float64
}

// RetryFromConfig builds the policy used for configured sources.
func RetryFromConfig(attempts int, backoff time.Duration) RetryPolicy {
	return RetryPolicy{Attempts: attempts, Backoff: backoff, MaxBackoff: 30 * time.Second, Jitter: 0.25}
}

// retryable reports whether another load could succeed. Missing files and
// bad rows are permanent.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var rowErr *RowError
	return !errors.Is(err, fs.ErrNotExist) && !errors.As(err, &rowErr)
}

// loadWithRetry loads src, retrying transient failures. Cancellation stops
// the loop and returns the last load error.
func loadWithRetry(ctx context.Context, src Source, p RetryPolicy) (*model.Tables, error) {
	attempts := max(p.Attempts, 1)

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		t, err := src.Load(ctx)
		if err == nil {
			return t, nil
		}
		lastErr = err

		if ctx.Err() != nil || !retryable(err) || attempt == attempts-1 {
			break
		}

		delay := p.delay(attempt)
		zap.L().Warn("tables: retrying load",
			zap.String("source", src.Name()),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, lastErr
		case <-timer.C:
		}
	}
	return nil, lastErr
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	d := float64(p.Backoff) * math.Pow(2, float64(attempt))
	if p.MaxBackoff > 0 && d > float64(p.MaxBackoff) {
		d = float64(p.MaxBackoff)
	}
	if p.Jitter > 0 {
		d += (rand.Float64()*2 - 1) * d * p.Jitter
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}
