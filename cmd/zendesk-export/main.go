// Command zendesk-export runs one export of a Zendesk resource and writes
// the records to stdout as NDJSON. The closing cursor is printed to stderr
// so a wrapper can persist it as the next run's START_TIME.
package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/exportkit/zendesk/pkg/client"
	"github.com/exportkit/zendesk/pkg/export"
	"github.com/exportkit/zendesk/pkg/logging"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(getEnv("LOG_LEVEL", "info")),
		Pretty: getEnv("LOG_PRETTY", "") != "",
		Output: os.Stderr,
	})

	cfg := client.Config{
		LoginURL:    os.Getenv("ZENDESK_LOGIN_URL"),
		AuthMethod:  client.AuthMethod(getEnv("ZENDESK_AUTH_METHOD", "basic")),
		Username:    os.Getenv("ZENDESK_USERNAME"),
		Password:    os.Getenv("ZENDESK_PASSWORD"),
		Token:       os.Getenv("ZENDESK_TOKEN"),
		AccessToken: os.Getenv("ZENDESK_ACCESS_TOKEN"),
	}
	if v := os.Getenv("RETRY_LIMIT"); v != "" {
		cfg.RetryLimit = mustAtoi("RETRY_LIMIT", v, logger.Fatal)
	}
	if v := os.Getenv("RETRY_INITIAL_WAIT_SEC"); v != "" {
		cfg.RetryInitialWait = time.Duration(mustAtoi("RETRY_INITIAL_WAIT_SEC", v, logger.Fatal)) * time.Second
	}

	// Optional shared rate-limit state for fleets of exporters.
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: redisURL})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Fatal().Err(err).Str("redis_url", redisURL).Msg("Failed to connect to Redis")
		}
		cfg.Redis = redisClient
		logger.Info().Str("redis_url", redisURL).Msg("Sharing rate limit state via Redis")
	}

	// Optional Prometheus endpoint.
	if addr := os.Getenv("METRICS_ADDR"); addr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(addr, mux); err != nil {
				logger.Error().Err(err).Msg("Metrics server failed")
			}
		}()
		logger.Info().Str("addr", addr).Msg("Serving Prometheus metrics")
	}

	zd, err := client.New(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create Zendesk client")
	}

	opts := export.Options{
		Target:             getEnv("TARGET", "tickets"),
		Includes:           splitList(os.Getenv("INCLUDES")),
		DisableIncremental: getEnv("INCREMENTAL", "true") == "false",
	}
	if v := os.Getenv("START_TIME"); v != "" {
		startTime, err := parseStartTime(v)
		if err != nil {
			logger.Fatal().Err(err).Str("start_time", v).Msg("Invalid START_TIME")
		}
		opts.StartTime = startTime
	}
	if v := os.Getenv("WORKERS"); v != "" {
		opts.Workers = mustAtoi("WORKERS", v, logger.Fatal)
	}

	exporter, err := export.New(zd, opts)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create exporter")
	}

	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()
	var outMu sync.Mutex
	consume := func(record []byte) error {
		outMu.Lock()
		defer outMu.Unlock()
		if _, err := out.Write(record); err != nil {
			return err
		}
		return out.WriteByte('\n')
	}

	ctx := context.Background()
	if os.Getenv("PREVIEW") != "" {
		if err := exporter.Preview(ctx, consume); err != nil {
			logger.Fatal().Err(err).Msg("Preview failed")
		}
		return
	}

	cursor, err := exporter.Run(ctx, consume)
	if err != nil {
		logger.Fatal().Err(err).Msg("Export failed")
	}
	out.Flush()
	logger.Info().Int64("cursor", cursor).Msg("Export complete")
	fmt.Fprintf(os.Stderr, "next start_time: %d\n", cursor)
}

// parseStartTime accepts epoch seconds or an RFC 3339 timestamp.
func parseStartTime(value string) (int64, error) {
	if epoch, err := strconv.ParseInt(value, 10, 64); err == nil {
		return epoch, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return 0, err
	}
	return t.Unix(), nil
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func mustAtoi(name, value string, fatal func() *zerolog.Event) int {
	n, err := strconv.Atoi(value)
	if err != nil {
		fatal().Str(name, value).Msg("Expected an integer")
	}
	return n
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
