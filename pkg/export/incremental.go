package export

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"time"

	"github.com/exportkit/zendesk/pkg/client"
	"github.com/tidwall/gjson"
)

// incrementalJob parametrizes the incremental loop so the ticket-metrics
// composite can reuse it with its own filtering and delivery.
type incrementalJob struct {
	path string
	key  string

	// skip drops a record before dedup; nil skips nothing.
	skip func(rec gjson.Result) bool

	// deliver overrides the default subresource-embedding delivery; nil uses
	// the default. Overridden delivery always runs on the worker pool.
	deliver func(ctx context.Context, rec gjson.Result) error
}

// incrementalJob builds the default job for this exporter's target.
func (e *Exporter) incrementalJob() incrementalJob {
	return incrementalJob{
		path: e.target.IncrementalPath(),
		key:  e.target.JSONKey,
	}
}

// runIncremental drives the incremental export loop: request with start_time,
// filter and deduplicate, deliver, advance start_time to end_time, and
// continue while the page is full. The known set is carried through every
// page of this invocation; it is never reset mid-run.
//
// The returned cursor is the closing end_time plus one second, since the
// server compares start_time inclusively. With no records at all, the
// wall-clock start of the run keeps periodic re-runs making progress.
func (e *Exporter) runIncremental(ctx context.Context, job incrementalJob, known *idSet, fn Consumer) (int64, error) {
	runStart := time.Now().Unix()
	startTime := e.opts.StartTime
	var lastEnd int64

	// Subresource fetches and overridden delivery fan out on a pool; plain
	// delivery stays inline so per-page record order survives.
	var pool *workerPool
	if job.deliver != nil || len(e.opts.Includes) > 0 {
		pool = newPool(e.opts.Workers)
		defer pool.drain()
	}

	badPages := 0
	for {
		query := url.Values{"start_time": {strconv.FormatInt(startTime, 10)}}
		page, err := e.fetchEnvelope(ctx, job.path, query, job.key, client.GetOptions{}, envelopeRetries)
		if errors.Is(err, client.ErrTooRecentStartTime) {
			// The window is already closed, nothing new since start_time.
			break
		}
		if err != nil {
			return 0, err
		}

		// A full page without end_time cannot advance the cursor; treating it
		// as the next start_time would reset the window to zero and re-fetch
		// the same data forever. Refetch like any other malformed page.
		if page.count >= incrementalPageLimit && page.endTime <= 0 {
			badPages++
			if badPages >= envelopeRetries {
				return 0, &client.DataError{Message: "missing 'end_time' from Zendesk API response"}
			}
			e.logger.Warn().
				Int("attempt", badPages).
				Int64("start_time", startTime).
				Msg("Full page missing end_time, refetching")
			continue
		}
		badPages = 0

		// When every record of a full page shares one update time, end_time
		// alone would fetch the same page forever; the next start_time gets
		// bumped by one second below.
		allSameTime := true
		var previousTime int64

		delivered := 0
		for _, rec := range page.records {
			if updatedBySystem(rec, startTime) {
				continue
			}
			if job.skip != nil && job.skip(rec) {
				continue
			}
			if !e.opts.DisableDedup {
				if !known.add(rec.Get("id").String()) {
					dedupSkipsTotal.WithLabelValues(e.target.Name).Inc()
					continue
				}
			}

			if allSameTime {
				if ts, ok := recordTime(rec); ok {
					if previousTime == 0 {
						previousTime = ts
					} else if ts != previousTime {
						allSameTime = false
					}
				} else {
					allSameTime = false
				}
			}

			if pool != nil {
				rec := rec
				pool.submit(func() error {
					if job.deliver != nil {
						return job.deliver(ctx, rec)
					}
					return e.deliver(ctx, rec, fn)
				})
			} else {
				if err := e.deliver(ctx, rec, fn); err != nil {
					return 0, err
				}
			}
			delivered++
		}

		e.logger.Info().
			Int("records", delivered).
			Int64("start_time", startTime).
			Int64("end_time", page.endTime).
			Int64("count", page.count).
			Msg("Fetched incremental page")

		lastEnd = page.endTime
		startTime = page.endTime

		if page.count < incrementalPageLimit {
			break
		}
		if allSameTime {
			startTime++
		}
	}

	if pool != nil {
		if err := pool.drain(); err != nil {
			return 0, err
		}
	}

	if lastEnd == 0 {
		return runStart, nil
	}
	return lastEnd + 1, nil
}
