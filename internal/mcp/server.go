// Package mcp exposes read-only thread tooling to MCP clients.
package mcp

import (
	"context"
	"time"

	"cryptothreads/internal/ledger"
	"cryptothreads/internal/ratebudget"
	"cryptothreads/internal/service"
	"cryptothreads/internal/uniqueness"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type ThreadService interface {
	Preview(ctx context.Context) (service.Preview, error)
	History(ctx context.Context, maxAge time.Duration) ([]ledger.Entry, error)
	QuotaRemaining(ctx context.Context) (int, error)
}

type RateReporter interface {
	Snapshot() []ratebudget.Status
}

// Server wraps the MCP server with the thread service dependencies.
type Server struct {
	server  *mcp.Server
	threads ThreadService
	rates   RateReporter
	gate    uniqueness.Gate
	now     func() time.Time
}

// Config holds configuration for the MCP server.
type Config struct {
	Threads ThreadService

	// Rates is optional; rate_status reports no budgets without it.
	Rates RateReporter

	// Gate decides check_uniqueness; the zero value uses the default
	// window and majority policy.
	Gate uniqueness.Gate

	Version string
}

func NewServer(cfg Config) *Server {
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if cfg.Gate.Window <= 0 {
		cfg.Gate = uniqueness.NewGate(0, cfg.Gate.Policy)
	}
	s := &Server{
		server: mcp.NewServer(&mcp.Implementation{
			Name:    "cryptothreads",
			Version: cfg.Version,
		}, nil),
		threads: cfg.Threads,
		rates:   cfg.Rates,
		gate:    cfg.Gate,
		now:     time.Now,
	}
	s.registerTools()
	return s
}

// Run starts the MCP server on the given transport.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	return s.server.Run(ctx, transport)
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "preview_thread",
		Description: "Gather market data and compose the next thread and chat digest without publishing",
	}, s.handlePreviewThread)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "thread_history",
		Description: "List recently published threads, newest first",
	}, s.handleThreadHistory)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "rate_status",
		Description: "Show per-service request budgets and the monthly post quota",
	}, s.handleRateStatus)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "check_uniqueness",
		Description: "Check a candidate thread against recent history the way the publisher does",
	}, s.handleCheckUniqueness)
}
