// Package target is the static registry of exportable Zendesk resources.
// Each target maps a logical name to its endpoint paths and extraction
// strategy; unknown names fail at validation time, before any network call.
package target

import (
	"fmt"
	"sort"
	"strings"
)

// Strategy selects how a target is exported.
type Strategy int

const (
	// Incremental targets support the incremental export API: previews sample
	// a truncated incremental page, full runs drive the start_time loop.
	Incremental Strategy = iota

	// Paged targets only have a flat paginated listing: previews fetch the
	// first page, full runs fetch all pages in parallel.
	Paged

	// MetricsComposite is the two-phase ticket-metrics strategy: parallel
	// export of the flat metrics listing, then an incremental ticket export
	// fetching the metrics subresource of tickets not yet covered.
	MetricsComposite
)

// API path roots.
const (
	apiRoot         = "/api/v2"
	incrementalRoot = apiRoot + "/incremental"
)

// Target describes one exportable resource.
type Target struct {
	// Name is the logical resource name, e.g. "tickets".
	Name string

	// JSONKey is the array key in the response envelope. Usually equal to
	// Name; differs for per-ticket metric sets.
	JSONKey string

	// Strategy selects the extraction flow.
	Strategy Strategy
}

// IncrementalPath is the incremental export endpoint.
func (t Target) IncrementalPath() string {
	return fmt.Sprintf("%s/%s.json", incrementalRoot, t.Name)
}

// ListPath is the flat paginated listing endpoint.
func (t Target) ListPath() string {
	return fmt.Sprintf("%s/%s.json", apiRoot, t.Name)
}

// SubresourcePath is the nested collection endpoint under one parent record.
func (t Target) SubresourcePath(id, subresource string) string {
	return fmt.Sprintf("%s/%s/%s/%s.json", apiRoot, t.Name, id, subresource)
}

var registry = map[string]Target{
	"tickets":       {Name: "tickets", JSONKey: "tickets", Strategy: Incremental},
	"users":         {Name: "users", JSONKey: "users", Strategy: Incremental},
	"organizations": {Name: "organizations", JSONKey: "organizations", Strategy: Incremental},
	"ticket_events": {Name: "ticket_events", JSONKey: "ticket_events", Strategy: Incremental},
	// Per-ticket metric sets ride on the ticket export, hence the key.
	"ticket_metrics":       {Name: "ticket_metrics", JSONKey: "ticket_metrics", Strategy: MetricsComposite},
	"ticket_metric_events": {Name: "ticket_metric_events", JSONKey: "ticket_metric_events", Strategy: Incremental},
	"ticket_fields":        {Name: "ticket_fields", JSONKey: "ticket_fields", Strategy: Paged},
	"ticket_forms":         {Name: "ticket_forms", JSONKey: "ticket_forms", Strategy: Paged},
	"satisfaction_ratings": {Name: "satisfaction_ratings", JSONKey: "satisfaction_ratings", Strategy: Paged},
}

// Lookup resolves a logical resource name. Unknown names return an error
// listing the supported targets.
func Lookup(name string) (Target, error) {
	t, ok := registry[strings.TrimSpace(strings.ToLower(name))]
	if !ok {
		return Target{}, fmt.Errorf("unsupported target '%s', supported values: '%s'", name, strings.Join(Names(), ", "))
	}
	return t, nil
}

// Names returns the supported target names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
