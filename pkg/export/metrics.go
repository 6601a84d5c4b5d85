package export

import (
	"context"

	"github.com/exportkit/zendesk/pkg/client"
	"github.com/exportkit/zendesk/pkg/target"
	"github.com/tidwall/gjson"
)

// metricSubresource is the per-ticket metrics endpoint and its envelope key.
const (
	metricSubresource = "metrics"
	metricJSONKey     = "ticket_metric"
)

// runMetrics is the two-phase ticket-metrics export. Metrics have no uniform
// incremental endpoint, so phase one parallel-exports the flat listing while
// remembering which tickets it covered, and phase two runs the incremental
// ticket export for everything newer, fetching each surfaced ticket's metrics
// subresource and delivering that instead of the ticket.
func (e *Exporter) runMetrics(ctx context.Context, known *idSet, fn Consumer) (int64, error) {
	coveredTickets := newIDSet()
	collect := func(record []byte) error {
		if tid := gjson.GetBytes(record, "ticket_id"); tid.Exists() {
			coveredTickets.add(tid.String())
		}
		return fn(record)
	}

	if err := e.runPaged(ctx, e.target, known, collect); err != nil {
		return 0, err
	}
	e.logger.Info().
		Int("tickets_covered", coveredTickets.len()).
		Msg("Metrics listing exported, running incremental ticket sweep")

	tickets, err := target.Lookup("tickets")
	if err != nil {
		return 0, err
	}

	job := incrementalJob{
		path: tickets.IncrementalPath(),
		key:  tickets.JSONKey,
		skip: func(rec gjson.Result) bool {
			return coveredTickets.has(rec.Get("id").String())
		},
		deliver: func(ctx context.Context, rec gjson.Result) error {
			body, err := e.client.Get(ctx, tickets.SubresourcePath(rec.Get("id").String(), metricSubresource), nil, client.GetOptions{Subresource: true})
			if err != nil {
				return err
			}
			if body == nil {
				// Ticket without metrics, e.g. deleted mid-export.
				return nil
			}
			metric := gjson.GetBytes(body, metricJSONKey)
			if !metric.Exists() {
				return nil
			}
			if err := fn([]byte(metric.Raw)); err != nil {
				return err
			}
			recordsExportedTotal.WithLabelValues(e.target.Name).Inc()
			return nil
		},
	}

	// Ticket ids live in a different id space than metric record ids, so the
	// sweep dedups against its own set.
	return e.runIncremental(ctx, job, newIDSet(), fn)
}
