// Package client provides the core Zendesk HTTP client with authentication,
// retry with exponential backoff, rate-limit cooperation, and response
// classification.
package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/exportkit/zendesk/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for request execution.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zendesk_requests_total",
		Help: "Total Zendesk requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "zendesk_request_duration_seconds",
		Help:    "Zendesk request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"endpoint"})
)

// Exports can return very large payloads, so timeouts are generous.
const requestTimeout = 240 * time.Second

// Config holds the client configuration.
type Config struct {
	// LoginURL is the account base URL, e.g. https://example.zendesk.com/.
	LoginURL string

	// AuthMethod is one of basic, token or oauth.
	AuthMethod AuthMethod

	// Credentials; the set matching AuthMethod must be complete.
	Username    string
	Password    string
	Token       string
	AccessToken string

	// Retry behavior. Zero values take the defaults.
	RetryLimit       int
	RetryInitialWait time.Duration

	// Marketplace app identification headers, optional.
	MarketplaceName  string
	MarketplaceOrgID string
	MarketplaceAppID string

	// Redis mirrors rate-limit state across cooperating export processes.
	// Optional; nil keeps pacing local to this process.
	Redis *redis.Client
}

// GetOptions adjust how a single GET behaves.
type GetOptions struct {
	// Preview marks a sampling/guess fetch: a rate-limit response becomes a
	// DataError immediately instead of sleeping, keeping previews responsive.
	Preview bool

	// Subresource marks a nested-collection fetch, where 404 means the parent
	// has no items rather than a failure.
	Subresource bool
}

// Client issues authenticated GET requests against one Zendesk account.
// The underlying transport is constructed once and shared; it is safe for
// concurrent use by export worker pools.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	config     Config
	policy     RetryPolicy
	limiter    *ratelimit.Limiter
	logger     zerolog.Logger
	sleep      sleeper
}

// New creates a client, validating the login URL and credentials before any
// request is made. Validation is idempotent and runs exactly once.
func New(cfg Config) (*Client, error) {
	if err := cfg.validateCredentials(); err != nil {
		return nil, err
	}

	base, err := url.Parse(cfg.LoginURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, &ConfigError{Message: fmt.Sprintf("login URL is invalid: '%s'", cfg.LoginURL)}
	}

	policy := DefaultRetryPolicy()
	if cfg.RetryLimit > 0 {
		policy.MaxAttempts = cfg.RetryLimit
	}
	if cfg.RetryInitialWait > 0 {
		policy.InitialWait = cfg.RetryInitialWait
	}

	logger := log.With().Str("component", "zendesk-client").Logger()

	return &Client{
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		baseURL: base,
		config:  cfg,
		policy:  policy,
		limiter: ratelimit.NewLimiter(cfg.Redis, logger),
		logger:  logger,
		sleep:   defaultSleeper,
	}, nil
}

// Get performs a GET against path with the given query, retrying per policy.
// On success it returns the full response body. A nil body with nil error
// means an empty subresource result (404 on a subresource fetch).
func (c *Client) Get(ctx context.Context, path string, query url.Values, opts GetOptions) ([]byte, error) {
	var lastErr error

	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		// rateLimitWait > 0 replaces the exponential backoff before the next
		// attempt: the API already told us exactly how long to wait.
		rateLimitWait := time.Duration(0)

		status, header, body, err := c.do(ctx, path, query)
		if err != nil {
			// Network failures are transient.
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
			}
			lastErr = err
			retriesTotal.WithLabelValues("network").Inc()
			c.logger.Warn().Err(err).Str("endpoint", path).Msg("Request failed")
		} else {
			outcome, outcomeErr := classify(status, header, body, c.config.LoginURL, opts.Subresource)
			switch outcome {
			case OutcomeSuccess:
				return body, nil

			case OutcomeEmpty:
				return nil, nil

			case OutcomeStop, OutcomeConfig, OutcomeFatal:
				return nil, outcomeErr

			case OutcomeRateLimited:
				apiErr := outcomeErr.(*APIError)
				if opts.Preview {
					// Previews stay interactive: surface instead of sleeping.
					return nil, &DataError{Message: fmt.Sprintf("rate limited, waiting '%d' seconds to re-run", apiErr.RetryAfter)}
				}
				lastErr = apiErr
				rateLimitWait = time.Duration(apiErr.RetryAfter) * time.Second
				retriesTotal.WithLabelValues("rate_limited").Inc()

			case OutcomeTransient:
				lastErr = outcomeErr
				retriesTotal.WithLabelValues("transient").Inc()
			}
		}

		if attempt >= c.policy.MaxAttempts {
			break
		}

		wait := c.policy.Backoff(attempt + 1)
		if rateLimitWait > 0 {
			wait = rateLimitWait
			rateLimitWaitsTotal.Inc()
			c.logger.Warn().
				Dur("wait", wait).
				Str("endpoint", path).
				Msg("Reached API limitation, waiting before retry")
		} else {
			c.logger.Warn().
				Int("attempt", attempt).
				Int("limit", c.policy.MaxAttempts).
				Dur("backoff", wait).
				Str("endpoint", path).
				Msg("Retrying request after backoff")
		}
		retryBackoffSeconds.Observe(wait.Seconds())
		if err := c.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}

	retryExhaustedTotal.Inc()
	return nil, fmt.Errorf("%w after %d attempts: %v", ErrRetryExhausted, c.policy.MaxAttempts, lastErr)
}

// GetChunk performs a single non-retried GET and reads at most limit+1 bytes
// of the body, abandoning the rest of the stream. It backs the partial-JSON
// sampling path, so rate limits and transient failures surface immediately.
func (c *Client) GetChunk(ctx context.Context, path string, query url.Values, limit int) ([]byte, error) {
	req, err := c.newRequest(ctx, path, query)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &DataError{Message: "chunked fetch failed", Err: err}
	}
	defer resp.Body.Close()
	defer func() {
		requestDuration.WithLabelValues(path).Observe(time.Since(start).Seconds())
	}()

	c.limiter.Observe(ctx, resp.Header)
	requestsTotal.WithLabelValues(path, fmt.Sprintf("%d", resp.StatusCode)).Inc()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		outcome, outcomeErr := classify(resp.StatusCode, resp.Header, body, c.config.LoginURL, false)
		if outcome == OutcomeStop {
			return nil, outcomeErr
		}
		if outcome == OutcomeRateLimited {
			after := outcomeErr.(*APIError).RetryAfter
			return nil, &DataError{Message: fmt.Sprintf("rate limited, waiting '%d' seconds to re-run", after)}
		}
		if outcomeErr == nil {
			outcomeErr = &APIError{StatusCode: resp.StatusCode, Body: string(body)}
		}
		return nil, outcomeErr
	}

	// Read one byte past the limit so the extractor sees a truncated tail
	// rather than a suspiciously exact boundary.
	buf, err := io.ReadAll(io.LimitReader(resp.Body, int64(limit)+1))
	if err != nil {
		return nil, &DataError{Message: "reading chunked response", Err: err}
	}
	return buf, nil
}

// do executes exactly one request and returns the raw response parts.
func (c *Client) do(ctx context.Context, path string, query url.Values) (int, http.Header, []byte, error) {
	req, err := c.newRequest(ctx, path, query)
	if err != nil {
		return 0, nil, nil, err
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return 0, nil, nil, err
	}

	c.logger.Info().Msgf(">>> GET %s%s", req.URL.Path, queryString(req.URL))

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, nil, err
	}
	defer resp.Body.Close()
	requestDuration.WithLabelValues(path).Observe(time.Since(start).Seconds())

	c.limiter.Observe(ctx, resp.Header)
	requestsTotal.WithLabelValues(path, fmt.Sprintf("%d", resp.StatusCode)).Inc()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, nil, err
	}
	return resp.StatusCode, resp.Header, body, nil
}

// newRequest builds an authenticated GET against the login URL's host; path
// replaces any path component of the configured URL.
func (c *Client) newRequest(ctx context.Context, path string, query url.Values) (*http.Request, error) {
	u := *c.baseURL
	u.Path = path
	if query != nil {
		u.RawQuery = query.Encode()
	} else {
		u.RawQuery = ""
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &ConfigError{Message: "building request", Err: err}
	}
	c.applyHeaders(req)
	return req, nil
}

func queryString(u *url.URL) string {
	if u.RawQuery == "" {
		return ""
	}
	return "?" + u.RawQuery
}

// Limiter exposes the rate-limit tracker, shared with export worker pools.
func (c *Client) Limiter() *ratelimit.Limiter {
	return c.limiter
}

// BaseURL returns the parsed login URL.
func (c *Client) BaseURL() *url.URL {
	return c.baseURL
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.httpClient = hc
}
