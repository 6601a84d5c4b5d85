package target

import (
	"sort"
	"strings"
	"testing"
)

func TestLookup(t *testing.T) {
	tests := []struct {
		name         string
		input        string
		wantStrategy Strategy
		wantKey      string
		expectError  bool
	}{
		{name: "tickets", input: "tickets", wantStrategy: Incremental, wantKey: "tickets"},
		{name: "users", input: "users", wantStrategy: Incremental, wantKey: "users"},
		{name: "organizations", input: "organizations", wantStrategy: Incremental, wantKey: "organizations"},
		{name: "ticket events", input: "ticket_events", wantStrategy: Incremental, wantKey: "ticket_events"},
		{name: "ticket metrics", input: "ticket_metrics", wantStrategy: MetricsComposite, wantKey: "ticket_metrics"},
		{name: "ticket metric events", input: "ticket_metric_events", wantStrategy: Incremental, wantKey: "ticket_metric_events"},
		{name: "ticket fields", input: "ticket_fields", wantStrategy: Paged, wantKey: "ticket_fields"},
		{name: "ticket forms", input: "ticket_forms", wantStrategy: Paged, wantKey: "ticket_forms"},
		{name: "satisfaction ratings", input: "satisfaction_ratings", wantStrategy: Paged, wantKey: "satisfaction_ratings"},
		{name: "case and whitespace normalized", input: "  Tickets ", wantStrategy: Incremental, wantKey: "tickets"},
		{name: "unknown target", input: "recipients", expectError: true},
		{name: "empty name", input: "", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tgt, err := Lookup(tt.input)
			if tt.expectError {
				if err == nil {
					t.Fatal("expected error but got nil")
				}
				if !strings.Contains(err.Error(), "supported values") {
					t.Errorf("error %q should list supported targets", err.Error())
				}
				return
			}
			if err != nil {
				t.Fatalf("Lookup(%q) error: %v", tt.input, err)
			}
			if tgt.Strategy != tt.wantStrategy {
				t.Errorf("Strategy = %v, want %v", tgt.Strategy, tt.wantStrategy)
			}
			if tgt.JSONKey != tt.wantKey {
				t.Errorf("JSONKey = %q, want %q", tgt.JSONKey, tt.wantKey)
			}
		})
	}
}

func TestPaths(t *testing.T) {
	tgt, err := Lookup("tickets")
	if err != nil {
		t.Fatal(err)
	}

	if got := tgt.IncrementalPath(); got != "/api/v2/incremental/tickets.json" {
		t.Errorf("IncrementalPath() = %q", got)
	}
	if got := tgt.ListPath(); got != "/api/v2/tickets.json" {
		t.Errorf("ListPath() = %q", got)
	}
	if got := tgt.SubresourcePath("42", "metrics"); got != "/api/v2/tickets/42/metrics.json" {
		t.Errorf("SubresourcePath() = %q", got)
	}
}

func TestNames_Sorted(t *testing.T) {
	names := Names()
	if len(names) != 9 {
		t.Fatalf("Names() returned %d entries, want 9", len(names))
	}
	if !sort.StringsAreSorted(names) {
		t.Errorf("Names() not sorted: %v", names)
	}
}
