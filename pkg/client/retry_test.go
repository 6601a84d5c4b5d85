package client

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDefaultRetryPolicy(t *testing.T) {
	policy := DefaultRetryPolicy()

	if policy.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want 5", policy.MaxAttempts)
	}
	if policy.InitialWait != 1*time.Second {
		t.Errorf("InitialWait = %v, want 1s", policy.InitialWait)
	}
}

func TestRetryPolicy_Backoff(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 6, InitialWait: 2 * time.Second}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{attempt: 1, expected: 0},
		{attempt: 2, expected: 2 * time.Second},
		{attempt: 3, expected: 4 * time.Second},
		{attempt: 4, expected: 8 * time.Second},
		{attempt: 5, expected: 16 * time.Second},
	}

	for _, tt := range tests {
		if got := policy.Backoff(tt.attempt); got != tt.expected {
			t.Errorf("Backoff(%d) = %v, want %v", tt.attempt, got, tt.expected)
		}
	}
}

func TestDefaultSleeper_ZeroDuration(t *testing.T) {
	if err := defaultSleeper(context.Background(), 0); err != nil {
		t.Errorf("defaultSleeper(0) = %v, want nil", err)
	}
}

func TestDefaultSleeper_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := defaultSleeper(ctx, 10*time.Second)
	if !errors.Is(err, ErrContextCancelled) {
		t.Errorf("defaultSleeper() = %v, want ErrContextCancelled", err)
	}
}

func TestDefaultSleeper_Waits(t *testing.T) {
	start := time.Now()
	if err := defaultSleeper(context.Background(), 20*time.Millisecond); err != nil {
		t.Fatalf("defaultSleeper() = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("slept %v, want at least 20ms", elapsed)
	}
}
