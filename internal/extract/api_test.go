package extract

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"salesetl/pkg/table"
)

// newTestClient keeps backoff waits in the low milliseconds so retry tests
// stay fast.
func newTestClient(maxRetries int) *APIClient {
	return NewAPIClient(APIConfig{
		MaxRetries:     maxRetries,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	})
}

func TestFetchJSONSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"order_id": "O1", "quantity": 2}]`))
	}))
	defer srv.Close()

	c := newTestClient(0)
	tb, err := c.FetchJSON(context.Background(), srv.URL, "")
	if err != nil {
		t.Fatal(err)
	}
	if got := tb.At(0, "quantity"); got != table.Int(2) {
		t.Fatalf("quantity = %v", got)
	}
}

func TestFetchJSONRecordPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results": [{"id": 1}], "count": 1}`))
	}))
	defer srv.Close()

	c := newTestClient(0)
	tb, err := c.FetchJSON(context.Background(), srv.URL, "results")
	if err != nil {
		t.Fatal(err)
	}
	if tb.NumRows() != 1 || !tb.HasColumn("id") {
		t.Fatalf("rows=%d cols=%v", tb.NumRows(), tb.Columns())
	}
}

func TestFetchUsesConfiguredMethod(t *testing.T) {
	var gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		w.Write([]byte(`[{"id": 1}]`))
	}))
	defer srv.Close()

	c := newTestClient(0)
	tb, err := c.Fetch(context.Background(), http.MethodPost, srv.URL, "")
	if err != nil {
		t.Fatal(err)
	}
	if gotMethod != http.MethodPost {
		t.Fatalf("method = %q", gotMethod)
	}
	if tb.NumRows() != 1 {
		t.Fatalf("rows = %d", tb.NumRows())
	}
}

func TestFetchEmptyMethodDefaultsToGet(t *testing.T) {
	var gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := newTestClient(0)
	if _, err := c.Fetch(context.Background(), "", srv.URL, ""); err != nil {
		t.Fatal(err)
	}
	if gotMethod != http.MethodGet {
		t.Fatalf("method = %q", gotMethod)
	}
}

func TestFetchJSONRetriesServerErrors(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`[{"id": 1}]`))
	}))
	defer srv.Close()

	c := newTestClient(3)
	tb, err := c.FetchJSON(context.Background(), srv.URL, "")
	if err != nil {
		t.Fatal(err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d", calls)
	}
	if tb.NumRows() != 1 {
		t.Fatalf("rows = %d", tb.NumRows())
	}
}

func TestFetchJSONExhaustedRetriesNamesURLAndAttempts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(2)
	_, err := c.FetchJSON(context.Background(), srv.URL, "")
	if err == nil {
		t.Fatal("expected failure")
	}
	if !strings.Contains(err.Error(), srv.URL) || !strings.Contains(err.Error(), "3 attempts") {
		t.Fatalf("error should name url and attempts: %v", err)
	}
}

func TestFetchJSONClientErrorIsFinal(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(3)
	_, err := c.FetchJSON(context.Background(), srv.URL, "")
	if err == nil {
		t.Fatal("expected failure")
	}
	if calls != 1 {
		t.Fatalf("4xx must not retry, calls = %d", calls)
	}
}

func TestFetchJSONHonorsRetryAfter(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := newTestClient(1)
	tb, err := c.FetchJSON(context.Background(), srv.URL, "")
	if err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Fatalf("calls = %d", calls)
	}
	if tb.NumRows() != 0 {
		t.Fatalf("rows = %d", tb.NumRows())
	}
}

func TestFetchJSONContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := newTestClient(5)
	if _, err := c.FetchJSON(ctx, srv.URL, ""); err != context.Canceled {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}

func TestBackoffDuration(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{5, time.Second},
	}
	for _, c := range cases {
		got := backoffDuration(100*time.Millisecond, c.attempt, time.Second)
		if got != c.want {
			t.Fatalf("attempt %d: got %v, want %v", c.attempt, got, c.want)
		}
	}
}
