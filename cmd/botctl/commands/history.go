package commands

import (
	"fmt"
	"io"
	"strings"
	"time"

	"cryptothreads/internal/ledger"

	"github.com/spf13/cobra"
)

var historyHours int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List published threads, newest first",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyHours, "hours", 48, "Look-back window in hours")
}

func runHistory(cmd *cobra.Command, args []string) error {
	if historyHours <= 0 {
		return fmt.Errorf("--hours must be positive, got %d", historyHours)
	}
	ctx := cmd.Context()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	entries, err := a.Threads.History(ctx, time.Duration(historyHours)*time.Hour)
	if err != nil {
		return err
	}

	if outputFormat == "json" {
		return outputJSON(cmd.OutOrStdout(), entries)
	}
	renderHistory(cmd.OutOrStdout(), entries)
	return nil
}

func renderHistory(w io.Writer, entries []ledger.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No threads published in this window.")
		return
	}
	for _, e := range entries {
		line := fmt.Sprintf("%s  %2d posts", e.Timestamp.UTC().Format("2006-01-02 15:04"), len(e.Fingerprints))
		if len(e.Influencers) > 0 {
			line += "  " + strings.Join(e.Influencers, " ")
		}
		fmt.Fprintln(w, line)
	}
}
