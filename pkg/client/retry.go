package client

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for retry behavior.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zendesk_retries_total",
		Help: "Total number of retry attempts by outcome",
	}, []string{"outcome"})

	retryBackoffSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "zendesk_retry_backoff_seconds",
		Help:    "Backoff duration before retries",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
	})

	retryExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zendesk_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted",
	})

	rateLimitWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zendesk_rate_limit_waits_total",
		Help: "Total number of Retry-After waits honored",
	})
)

// RetryPolicy bounds the request loop. Attempts are capped at MaxAttempts;
// the backoff before attempt n (n >= 2) is InitialWait * 2^(n-2).
type RetryPolicy struct {
	MaxAttempts int
	InitialWait time.Duration
}

// DefaultRetryPolicy is 5 attempts starting at a one second backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		InitialWait: 1 * time.Second,
	}
}

// Backoff returns the wait before the given attempt number. Attempt 1 never
// waits.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	wait := p.InitialWait
	for i := 2; i < attempt; i++ {
		wait *= 2
	}
	return wait
}

// sleeper suspends the calling goroutine, honoring context cancellation.
// Tests swap it out to avoid real waits.
type sleeper func(ctx context.Context, d time.Duration) error

func defaultSleeper(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ErrContextCancelled
	case <-timer.C:
		return nil
	}
}
