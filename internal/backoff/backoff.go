// Package backoff computes exponential retry delays shared by the fetcher and translator.
package backoff

import (
	"context"
	"math"
	"time"
)

// Exponential returns base^attempt seconds plus jitter seconds.
// Negative inputs are clamped to zero.
func Exponential(base float64, attempt int, jitter float64) time.Duration {
	if base < 0 {
		base = 0
	}
	if attempt < 0 {
		attempt = 0
	}
	if jitter < 0 {
		jitter = 0
	}
	secs := math.Pow(base, float64(attempt)) + jitter
	if secs > math.MaxInt64/float64(time.Second) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(secs * float64(time.Second))
}

// Sleep blocks for d or until ctx is done, returning ctx.Err() in the latter case.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
