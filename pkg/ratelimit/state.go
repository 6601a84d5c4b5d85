// Package ratelimit paces requests against the Zendesk per-minute budget.
// It seeds a local limiter from the x-rate-limit response header and can
// mirror the remaining budget into Redis so cooperating export processes
// share one view of the account's allowance.
package ratelimit

import (
	"time"
)

// Redis keys for the shared rate-limit state.
const (
	RedisKeyPerMinute  = "zendesk:rate_limit:per_minute"
	RedisKeyRemaining  = "zendesk:rate_limit:remaining"
	RedisKeyLastUpdate = "zendesk:rate_limit:last_update"
)

// RemainingThresholdLow throttles requests when the remaining per-minute
// budget drops below this value, spreading the tail of the window instead of
// slamming into a 429.
const RemainingThresholdLow = 10

// State is the most recently observed rate-limit budget.
type State struct {
	// PerMinute is the account's request allowance, from x-rate-limit.
	PerMinute int `json:"per_minute"`

	// Remaining is the unused allowance in the current minute window, from
	// x-rate-limit-remaining.
	Remaining int `json:"remaining"`

	// LastUpdate is when this state was last refreshed from headers.
	LastUpdate time.Time `json:"last_update"`
}

// IsStale reports whether the state is older than maxAge. A stale state says
// nothing about the current window and should not trigger throttling.
func (s *State) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// LowBudget reports whether the remaining allowance calls for throttling.
func (s *State) LowBudget() bool {
	return s.PerMinute > 0 && s.Remaining < RemainingThresholdLow
}
