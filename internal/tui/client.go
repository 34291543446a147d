package tui

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"cryptothreads/internal/job"
	"cryptothreads/internal/ledger"
	"cryptothreads/internal/ratebudget"
)

// Status mirrors the body of GET /api/rate.
type Status struct {
	Budgets        []ratebudget.Status `json:"budgets"`
	QuotaRemaining int                 `json:"quota_remaining"`
	CycleRunning   bool                `json:"cycle_running"`
	LastCycle      *job.LastRun        `json:"last_cycle,omitempty"`
}

// Source feeds the dashboard.
type Source interface {
	Threads(ctx context.Context) ([]ledger.Entry, error)
	Status(ctx context.Context) (Status, error)
}

// APIClient reads dashboard data from the server's HTTP API, since rate
// budgets only exist inside the server process.
type APIClient struct {
	baseURL string
	client  *http.Client
}

func NewAPIClient(baseURL string) *APIClient {
	return &APIClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *APIClient) Threads(ctx context.Context) ([]ledger.Entry, error) {
	var body struct {
		Threads []ledger.Entry `json:"threads"`
	}
	if err := c.get(ctx, "/api/threads?hours=48", &body); err != nil {
		return nil, err
	}
	return body.Threads, nil
}

func (c *APIClient) Status(ctx context.Context) (Status, error) {
	var st Status
	err := c.get(ctx, "/api/rate", &st)
	return st, err
}

func (c *APIClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("GET %s: status %d: %s", path, resp.StatusCode, body)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
