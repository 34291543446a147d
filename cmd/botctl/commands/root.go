package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	// envFile is loaded before the environment is read.
	envFile string

	// outputFormat is text or json.
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "botctl",
	Short: "Operator CLI for the cryptothreads publisher",
	Long: `botctl inspects and maintains a cryptothreads deployment using the same
configuration as the server: preview the next thread, list published
history, prune the ledger, sweep stale cache entries, or serve the
read-only tools over MCP on stdio.`,
	SilenceUsage: true,
}

// Execute runs the CLI until the command finishes or SIGINT/SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&envFile, "env", ".env",
		"Path to a dotenv file to load (missing files are ignored)",
	)
	rootCmd.PersistentFlags().StringVar(
		&outputFormat, "format", "text",
		"Output format: text, json",
	)

	rootCmd.AddCommand(previewCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(pruneCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(mcpCmd)
}
