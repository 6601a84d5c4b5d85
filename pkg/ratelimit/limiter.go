package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Prometheus metrics for rate-limit tracking.
var (
	budgetRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "zendesk_rate_limit_remaining",
		Help: "Remaining requests in the current Zendesk per-minute window",
	})

	throttlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zendesk_rate_limit_throttles_total",
		Help: "Total number of requests throttled due to a low remaining budget",
	})
)

// Limiter paces outgoing requests. The pacing rate is seeded once, from the
// first response carrying an x-rate-limit header, at (per_minute - 1) / 60
// requests per second. Before seeding, requests pass through unpaced.
type Limiter struct {
	redis  *redis.Client
	logger zerolog.Logger

	mu      sync.Mutex
	limiter *rate.Limiter
	state   State
}

// NewLimiter creates a limiter. redisClient is optional; nil keeps all state
// local to this process.
func NewLimiter(redisClient *redis.Client, logger zerolog.Logger) *Limiter {
	return &Limiter{
		redis:  redisClient,
		logger: logger,
	}
}

// Wait blocks until the pacer admits the next request. When the observed
// remaining budget is low it adds a one second throttle on top.
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	limiter := l.limiter
	throttle := !l.state.IsStale(time.Minute) && l.state.LowBudget()
	remaining := l.state.Remaining
	l.mu.Unlock()

	if throttle {
		l.logger.Warn().
			Int("remaining", remaining).
			Msg("Rate limit budget low, throttling request")
		throttlesTotal.Inc()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(1 * time.Second):
		}
	}

	if limiter == nil {
		return nil
	}
	return limiter.Wait(ctx)
}

// Observe parses the x-rate-limit headers from a response, updates the local
// state, seeds the pacer on first sight, and mirrors the state into Redis
// when configured. Responses without the headers are ignored.
func (l *Limiter) Observe(ctx context.Context, headers http.Header) {
	perMinuteStr := headers.Get("x-rate-limit")
	if perMinuteStr == "" {
		return
	}
	perMinute, err := strconv.Atoi(perMinuteStr)
	if err != nil || perMinute <= 0 {
		l.logger.Warn().Str("x-rate-limit", perMinuteStr).Msg("Unparsable x-rate-limit header")
		return
	}

	remaining := perMinute
	if remainStr := headers.Get("x-rate-limit-remaining"); remainStr != "" {
		if r, err := strconv.Atoi(remainStr); err == nil {
			remaining = r
		}
	}

	l.mu.Lock()
	l.state = State{
		PerMinute:  perMinute,
		Remaining:  remaining,
		LastUpdate: time.Now(),
	}
	if l.limiter == nil {
		// Leave one request per minute of headroom for other consumers of
		// the same account.
		permitsPerSecond := float64(perMinute-1) / 60
		if permitsPerSecond <= 0 {
			permitsPerSecond = float64(perMinute) / 60
		}
		l.limiter = rate.NewLimiter(rate.Limit(permitsPerSecond), 1)
		l.logger.Info().
			Int("per_minute", perMinute).
			Float64("permits_per_second", permitsPerSecond).
			Msg("Rate limiter seeded from response headers")
	}
	l.mu.Unlock()

	budgetRemaining.Set(float64(remaining))

	if l.redis != nil {
		if err := l.storeState(ctx, perMinute, remaining); err != nil {
			l.logger.Warn().Err(err).Msg("Failed to mirror rate limit state to Redis")
		}
	}
}

// Seeded reports whether the pacer has been initialized from headers.
func (l *Limiter) Seeded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limiter != nil
}

// State returns a copy of the most recently observed budget.
func (l *Limiter) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// storeState mirrors the budget into Redis atomically.
func (l *Limiter) storeState(ctx context.Context, perMinute, remaining int) error {
	lastUpdateJSON, err := json.Marshal(time.Now())
	if err != nil {
		return fmt.Errorf("marshal last update: %w", err)
	}

	pipe := l.redis.Pipeline()
	pipe.Set(ctx, RedisKeyPerMinute, perMinute, 0)
	pipe.Set(ctx, RedisKeyRemaining, remaining, 0)
	pipe.Set(ctx, RedisKeyLastUpdate, lastUpdateJSON, 0)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store rate limit state in redis: %w", err)
	}
	return nil
}

// SharedState reads the budget mirrored in Redis by any cooperating process.
// It returns a zero state when Redis is unconfigured or holds no data.
func (l *Limiter) SharedState(ctx context.Context) (*State, error) {
	if l.redis == nil {
		return &State{}, nil
	}

	perMinute, err := l.redis.Get(ctx, RedisKeyPerMinute).Int()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get per-minute budget: %w", err)
	}

	remaining, err := l.redis.Get(ctx, RedisKeyRemaining).Int()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get remaining budget: %w", err)
	}

	lastUpdateStr, err := l.redis.Get(ctx, RedisKeyLastUpdate).Result()
	if err == redis.Nil {
		return &State{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get last update: %w", err)
	}

	var lastUpdate time.Time
	if lastUpdateStr != "" {
		if err := json.Unmarshal([]byte(lastUpdateStr), &lastUpdate); err != nil {
			return nil, fmt.Errorf("parse last update: %w", err)
		}
	}

	return &State{
		PerMinute:  perMinute,
		Remaining:  remaining,
		LastUpdate: lastUpdate,
	}, nil
}
