package commands

import (
	"log/slog"
	"os"

	threadmcp "cryptothreads/internal/mcp"
	"cryptothreads/pkg/tracing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve thread tools over MCP on stdio",
	Long: `Starts an MCP server on stdin/stdout exposing preview_thread,
thread_history, rate_status and check_uniqueness. Logs go to stderr.`,
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	// stdout carries the protocol
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := threadmcp.NewServer(threadmcp.Config{
		Threads: a.Threads,
		Rates:   a.Tracker,
		Gate:    a.Gate,
		Version: tracing.Version,
	})
	return srv.Run(ctx, &mcp.StdioTransport{})
}
