package ratelimit

import (
	"testing"
	"time"
)

func TestState_IsStale(t *testing.T) {
	tests := []struct {
		name       string
		lastUpdate time.Time
		maxAge     time.Duration
		want       bool
	}{
		{name: "fresh", lastUpdate: time.Now(), maxAge: time.Minute, want: false},
		{name: "stale", lastUpdate: time.Now().Add(-2 * time.Minute), maxAge: time.Minute, want: true},
		{name: "zero value is stale", lastUpdate: time.Time{}, maxAge: time.Minute, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := State{LastUpdate: tt.lastUpdate}
			if got := s.IsStale(tt.maxAge); got != tt.want {
				t.Errorf("IsStale() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestState_LowBudget(t *testing.T) {
	tests := []struct {
		name      string
		perMinute int
		remaining int
		want      bool
	}{
		{name: "plenty of budget", perMinute: 700, remaining: 650, want: false},
		{name: "at threshold", perMinute: 700, remaining: RemainingThresholdLow, want: false},
		{name: "below threshold", perMinute: 700, remaining: RemainingThresholdLow - 1, want: true},
		{name: "zero remaining", perMinute: 700, remaining: 0, want: true},
		{name: "unobserved state never throttles", perMinute: 0, remaining: 0, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := State{PerMinute: tt.perMinute, Remaining: tt.remaining}
			if got := s.LowBudget(); got != tt.want {
				t.Errorf("LowBudget() = %v, want %v", got, tt.want)
			}
		})
	}
}
