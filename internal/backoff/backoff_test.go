package backoff

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestExponential(t *testing.T) {
	tests := []struct {
		base    float64
		attempt int
		jitter  float64
		want    time.Duration
	}{
		{2, 0, 0, time.Second},
		{2, 1, 0, 2 * time.Second},
		{2, 3, 0.5, 8500 * time.Millisecond},
		{1, 4, 0.25, 1250 * time.Millisecond},
		{2, -1, 0, time.Second},
	}

	for _, tt := range tests {
		if got := Exponential(tt.base, tt.attempt, tt.jitter); got != tt.want {
			t.Errorf("Exponential(%v, %d, %v) = %v, want %v", tt.base, tt.attempt, tt.jitter, got, tt.want)
		}
	}
}

func TestSleepCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := Sleep(ctx, time.Hour)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Sleep should return immediately on a cancelled context")
	}
}

func TestSleepElapses(t *testing.T) {
	if err := Sleep(context.Background(), 5*time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
