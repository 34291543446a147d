package mcp

import (
	"context"
	"errors"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const defaultHistoryHours = 48

// PreviewArgs are the arguments for the preview_thread tool.
type PreviewArgs struct{}

// PreviewResult is the result of the preview_thread tool.
type PreviewResult struct {
	Thread  []string `json:"thread"`
	Message string   `json:"message"`
	Errors  []string `json:"errors,omitempty"`
}

func (s *Server) handlePreviewThread(ctx context.Context,
	req *mcp.CallToolRequest, args PreviewArgs) (*mcp.CallToolResult, PreviewResult, error) {

	p, err := s.threads.Preview(ctx)
	if err != nil {
		return nil, PreviewResult{}, err
	}
	return nil, PreviewResult{Thread: p.Thread, Message: p.Message, Errors: p.Errors}, nil
}

// HistoryArgs are the arguments for the thread_history tool.
type HistoryArgs struct {
	Hours int `json:"hours,omitempty" jsonschema:"Look-back window in hours; 48 when omitted"`
}

// HistoryResult is the result of the thread_history tool.
type HistoryResult struct {
	Threads []ThreadSummary `json:"threads"`
}

// ThreadSummary is one published thread.
type ThreadSummary struct {
	PublishedAt  string   `json:"published_at"`
	Posts        int      `json:"posts"`
	Fingerprints []string `json:"fingerprints"`
	Influencers  []string `json:"influencers,omitempty"`
}

func (s *Server) handleThreadHistory(ctx context.Context,
	req *mcp.CallToolRequest, args HistoryArgs) (*mcp.CallToolResult, HistoryResult, error) {

	hours := args.Hours
	if hours <= 0 {
		hours = defaultHistoryHours
	}
	entries, err := s.threads.History(ctx, time.Duration(hours)*time.Hour)
	if err != nil {
		return nil, HistoryResult{}, err
	}

	out := HistoryResult{Threads: make([]ThreadSummary, 0, len(entries))}
	for _, e := range entries {
		out.Threads = append(out.Threads, ThreadSummary{
			PublishedAt:  e.Timestamp.UTC().Format(time.RFC3339),
			Posts:        len(e.Fingerprints),
			Fingerprints: e.Fingerprints,
			Influencers:  e.Influencers,
		})
	}
	return nil, out, nil
}

// RateStatusArgs are the arguments for the rate_status tool.
type RateStatusArgs struct{}

// RateStatusResult is the result of the rate_status tool.
type RateStatusResult struct {
	Budgets        []BudgetStatus `json:"budgets"`
	QuotaRemaining int            `json:"quota_remaining"`
}

// BudgetStatus is one service's request window.
type BudgetStatus struct {
	Service string `json:"service"`
	Used    int    `json:"used"`
	Limit   int    `json:"limit"`
	Window  string `json:"window"`
	Waiting bool   `json:"waiting"`
}

func (s *Server) handleRateStatus(ctx context.Context,
	req *mcp.CallToolRequest, args RateStatusArgs) (*mcp.CallToolResult, RateStatusResult, error) {

	out := RateStatusResult{Budgets: []BudgetStatus{}}
	if s.rates != nil {
		for _, st := range s.rates.Snapshot() {
			out.Budgets = append(out.Budgets, BudgetStatus{
				Service: st.Service,
				Used:    st.State.Count,
				Limit:   st.Limit,
				Window:  st.Window.String(),
				Waiting: st.Waiting,
			})
		}
	}
	left, err := s.threads.QuotaRemaining(ctx)
	if err != nil {
		return nil, RateStatusResult{}, err
	}
	out.QuotaRemaining = left
	return nil, out, nil
}

// CheckUniquenessArgs are the arguments for the check_uniqueness tool.
type CheckUniquenessArgs struct {
	Posts []string `json:"posts" jsonschema:"Candidate thread posts in publish order"`
}

// CheckUniquenessResult is the result of the check_uniqueness tool.
type CheckUniquenessResult struct {
	Unique           bool   `json:"unique"`
	Duplicates       int    `json:"duplicates"`
	Total            int    `json:"total"`
	DuplicateIndexes []int  `json:"duplicate_indexes,omitempty"`
	Policy           string `json:"policy"`
	Window           string `json:"window"`
}

func (s *Server) handleCheckUniqueness(ctx context.Context,
	req *mcp.CallToolRequest, args CheckUniquenessArgs) (*mcp.CallToolResult, CheckUniquenessResult, error) {

	if len(args.Posts) == 0 {
		return nil, CheckUniquenessResult{}, errors.New("posts must not be empty")
	}
	history, err := s.threads.History(ctx, s.gate.Window)
	if err != nil {
		return nil, CheckUniquenessResult{}, err
	}
	v := s.gate.Evaluate(args.Posts, history, s.now())
	return nil, CheckUniquenessResult{
		Unique:           v.Unique,
		Duplicates:       v.Duplicates,
		Total:            v.Total,
		DuplicateIndexes: v.DuplicateIndexes,
		Policy:           s.gate.Policy.String(),
		Window:           s.gate.Window.String(),
	}, nil
}
