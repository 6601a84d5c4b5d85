package integration

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/exportkit/zendesk/internal/testutil"
	"github.com/exportkit/zendesk/pkg/client"
	"github.com/exportkit/zendesk/pkg/export"
	"github.com/tidwall/gjson"
)

func newClient(t *testing.T, mock *testutil.MockZendesk) *client.Client {
	t.Helper()
	c, err := client.New(client.Config{
		LoginURL:         mock.URL(),
		AuthMethod:       client.AuthToken,
		Username:         "agent@example.com",
		Token:            "apitoken",
		RetryLimit:       3,
		RetryInitialWait: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	return c
}

// TestFullExportFlow tests the complete export flow: incremental pagination →
// dedup → subresource embedding → cursor.
func TestFullExportFlow(t *testing.T) {
	mock := testutil.NewMockZendesk()
	defer mock.Close()

	mock.HandleSequence("/api/v2/incremental/tickets.json",
		testutil.MockResponse{
			StatusCode: 200,
			Headers:    map[string]string{"x-rate-limit": "700", "x-rate-limit-remaining": "699"},
			Body: `{"tickets":[
				{"id":1,"updated_at":"2020-09-13T12:26:40Z"},
				{"id":2,"updated_at":"2020-09-13T12:28:20Z"}
			],"count":1000,"end_time":1600000100}`,
		},
		testutil.MockResponse{
			StatusCode: 200,
			Headers:    map[string]string{"x-rate-limit": "700", "x-rate-limit-remaining": "698"},
			Body: `{"tickets":[
				{"id":2,"updated_at":"2020-09-13T12:28:20Z"},
				{"id":3,"updated_at":"2020-09-13T12:31:40Z"}
			],"count":2,"end_time":1600000400}`,
		},
	)
	mock.HandleJSON("/api/v2/tickets/3/comments.json", 200,
		`{"comments":[{"id":55,"body":"resolved"}]}`)

	c := newClient(t, mock)
	exporter, err := export.New(c, export.Options{
		Target:    "tickets",
		StartTime: 1600000000,
		Includes:  []string{"comments"},
	})
	if err != nil {
		t.Fatalf("Failed to create exporter: %v", err)
	}

	var mu sync.Mutex
	records := map[int64][]byte{}
	cursor, err := exporter.Run(context.Background(), func(record []byte) error {
		mu.Lock()
		defer mu.Unlock()
		records[gjson.GetBytes(record, "id").Int()] = append([]byte(nil), record...)
		return nil
	})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if len(records) != 3 {
		t.Errorf("exported %d unique records, want 3", len(records))
	}
	if rec, ok := records[3]; !ok || gjson.GetBytes(rec, "comments.0.body").String() != "resolved" {
		t.Errorf("ticket 3 = %s, want embedded comments", rec)
	}
	if cursor != 1600000401 {
		t.Errorf("cursor = %d, want end_time+1 = 1600000401", cursor)
	}

	// The rate limiter must have seeded itself from the response headers.
	if !c.Limiter().Seeded() {
		t.Error("rate limiter not seeded after observing x-rate-limit headers")
	}
	if got := c.Limiter().State().PerMinute; got != 700 {
		t.Errorf("observed per-minute budget = %d, want 700", got)
	}
}

// TestPreviewFlow tests the sampling path end to end: truncated chunk fetch →
// object extraction → record cap.
func TestPreviewFlow(t *testing.T) {
	mock := testutil.NewMockZendesk()
	defer mock.Close()

	body := `{"users":[`
	for i := 1; i <= 10; i++ {
		if i > 1 {
			body += ","
		}
		body += fmt.Sprintf(`{"id":%d,"name":"user-%d"}`, i, i)
	}
	body += `],"count":10,"end_time":1600000400}`
	mock.HandleJSON("/api/v2/incremental/users.json", 200, body)

	c := newClient(t, mock)
	exporter, err := export.New(c, export.Options{Target: "users", PreviewRecords: 3})
	if err != nil {
		t.Fatalf("Failed to create exporter: %v", err)
	}

	var sampled [][]byte
	if err := exporter.Preview(context.Background(), func(record []byte) error {
		sampled = append(sampled, append([]byte(nil), record...))
		return nil
	}); err != nil {
		t.Fatalf("Preview() error: %v", err)
	}

	if len(sampled) != 3 {
		t.Fatalf("preview delivered %d records, want 3", len(sampled))
	}
	if gjson.GetBytes(sampled[0], "name").String() != "user-1" {
		t.Errorf("first sample = %s, want user-1", sampled[0])
	}
}

// TestRateLimitRecovery tests that an export survives a mid-run 429 and
// continues after the advertised wait.
func TestRateLimitRecovery(t *testing.T) {
	mock := testutil.NewMockZendesk()
	defer mock.Close()

	var mu sync.Mutex
	calls := 0
	mock.Handle("/api/v2/incremental/organizations.json", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()

		if n == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(429)
			return
		}
		w.WriteHeader(200)
		fmt.Fprint(w, `{"organizations":[{"id":9,"updated_at":"2020-09-13T12:26:40Z"}],"count":1,"end_time":1600000100}`)
	})

	c := newClient(t, mock)
	exporter, err := export.New(c, export.Options{Target: "organizations", StartTime: 1599990000})
	if err != nil {
		t.Fatalf("Failed to create exporter: %v", err)
	}

	delivered := 0
	cursor, err := exporter.Run(context.Background(), func(record []byte) error {
		delivered++
		return nil
	})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if delivered != 1 {
		t.Errorf("delivered %d records, want 1", delivered)
	}
	if cursor != 1600000101 {
		t.Errorf("cursor = %d, want 1600000101", cursor)
	}
	if calls != 2 {
		t.Errorf("requests = %d, want 2 (429 then success)", calls)
	}
}
