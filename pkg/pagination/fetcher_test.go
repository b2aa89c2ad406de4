package pagination

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/atlas-tools/atlas-fetch/internal/testutil"
	"github.com/atlas-tools/atlas-fetch/pkg/client"
)

func newMockTransport(t *testing.T) (*testutil.MockRegistry, *client.Client) {
	t.Helper()

	mock := testutil.NewMockRegistry()
	t.Cleanup(mock.Close)

	cfg := client.DefaultConfig("atlas-fetch-test/1.0")
	cfg.Retry = client.RetryConfig{
		MaxAttempts:       0,
		InitialBackoff:    1 * time.Millisecond,
		MaxBackoff:        10 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}

	transport, err := client.New(cfg)
	if err != nil {
		t.Fatalf("client.New() failed: %v", err)
	}
	return mock, transport
}

func TestFetchPage(t *testing.T) {
	mock, transport := newMockTransport(t)
	mock.SetPages("/api/v2/measurements/", [][]map[string]any{
		{{"id": 100}, {"id": 90}},
		{{"id": 80}},
	})

	fetcher := NewFetcher(transport)

	page, err := fetcher.FetchPage(context.Background(), mock.URL()+"/api/v2/measurements/")
	if err != nil {
		t.Fatalf("FetchPage() failed: %v", err)
	}
	if len(page.Records) != 2 {
		t.Fatalf("Records = %d, want 2", len(page.Records))
	}
	if page.Next == "" {
		t.Fatal("Expected a next cursor on the first page")
	}

	// The cursor URL is self-contained; following it yields page two.
	page2, err := fetcher.FetchPage(context.Background(), page.Next)
	if err != nil {
		t.Fatalf("FetchPage(next) failed: %v", err)
	}
	if len(page2.Records) != 1 || page2.Next != "" {
		t.Errorf("Second page: records=%d next=%q, want 1 and empty", len(page2.Records), page2.Next)
	}
}

func TestFetchPage_RetryableFailuresAbsorbed(t *testing.T) {
	mock, transport := newMockTransport(t)
	mock.SetPages("/api/v2/measurements/", [][]map[string]any{
		{{"id": 100}},
	})
	mock.FailNTimes("/api/v2/measurements/", 3, http.StatusServiceUnavailable, `{"error": "overloaded"}`)

	fetcher := NewFetcher(transport)

	page, err := fetcher.FetchPage(context.Background(), mock.URL()+"/api/v2/measurements/")
	if err != nil {
		t.Fatalf("FetchPage() should absorb retryable failures, got %v", err)
	}
	if len(page.Records) != 1 {
		t.Errorf("Records = %d, want 1", len(page.Records))
	}
	if n := mock.GetRequestCount(); n != 4 {
		t.Errorf("Requests = %d, want 4 (3 failures + success)", n)
	}
}

func TestFetchPage_FatalShortCircuit(t *testing.T) {
	mock, transport := newMockTransport(t)
	mock.SetPages("/api/v2/measurements/", [][]map[string]any{
		{{"id": 100}},
	})
	mock.FailNTimes("/api/v2/measurements/", 10, http.StatusForbidden, `{"error": "forbidden"}`)

	fetcher := NewFetcher(transport)

	_, err := fetcher.FetchPage(context.Background(), mock.URL()+"/api/v2/measurements/")

	var apiErr *client.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusForbidden {
		t.Fatalf("Expected a 403 APIError, got %v", err)
	}
	if n := mock.GetRequestCount(); n != 1 {
		t.Errorf("Requests = %d, want 1 (zero retries on 4xx)", n)
	}
}

func TestFetchPage_MalformedEnvelope(t *testing.T) {
	mock, transport := newMockTransport(t)
	mock.SetHandler("/api/v2/measurements/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>login required</html>`))
	})

	fetcher := NewFetcher(transport)

	_, err := fetcher.FetchPage(context.Background(), mock.URL()+"/api/v2/measurements/")
	if !errors.Is(err, client.ErrMalformedResponse) {
		t.Errorf("Expected ErrMalformedResponse, got %v", err)
	}
	if n := mock.GetRequestCount(); n != 1 {
		t.Errorf("Requests = %d, want 1 (malformed bodies are fatal)", n)
	}
}

// TestEngineWithLiveTransport walks the full stack: engine → fetcher →
// client → mock registry, with a transient failure injected mid-run.
func TestEngineWithLiveTransport(t *testing.T) {
	mock, transport := newMockTransport(t)
	mock.SetPages("/api/v2/measurements/", [][]map[string]any{
		testutil.IDRecords(100, 90, 80),
		testutil.IDRecords(70, 60, 50),
	})
	mock.FailNTimes("/api/v2/measurements/", 2, http.StatusTooManyRequests, `{"error": "rate limited"}`)

	cfg := descendingConfig(0)
	cfg.BaseURL = mock.URL() + "/api/v2"

	engine := newTestEngine(t, EngineConfig{Query: cfg}, NewFetcher(transport))

	emit, ids := collectIDs(t)
	result := engine.Run(context.Background(), emit)

	if result.Outcome != OutcomeExhausted {
		t.Fatalf("Outcome = %s (err=%v)", result.Outcome, result.Err)
	}
	want := []int64{100, 90, 80, 70, 60, 50}
	if len(*ids) != len(want) {
		t.Fatalf("Emitted %v, want %v", *ids, want)
	}
	for i := range want {
		if (*ids)[i] != want[i] {
			t.Fatalf("Emitted %v, want %v", *ids, want)
		}
	}
}
