package tui

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAPIClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/rate":
			_, _ = w.Write([]byte(`{"budgets":[{"service":"coingecko","limit":30,"window":60000000000,"state":{"count":2}}],"quota_remaining":9,"cycle_running":true}`))
		case "/api/threads":
			if r.URL.Query().Get("hours") != "48" {
				t.Errorf("unexpected query: %s", r.URL.RawQuery)
			}
			_, _ = w.Write([]byte(`{"hours":48,"count":1,"threads":[{"timestamp":"2026-05-04T12:00:00Z","post_fingerprints":["aa","bb"]}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewAPIClient(srv.URL)
	st, err := c.Status(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.QuotaRemaining != 9 || !st.CycleRunning || st.Budgets[0].State.Count != 2 {
		t.Fatalf("unexpected status: %+v", st)
	}

	entries, err := c.Threads(context.Background())
	if err != nil {
		t.Fatalf("threads: %v", err)
	}
	if len(entries) != 1 || len(entries[0].Fingerprints) != 2 {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestAPIClientStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	if _, err := NewAPIClient(srv.URL).Status(context.Background()); err == nil {
		t.Fatal("expected error for 500")
	}
}
