package commands

import (
	"fmt"
	"sort"
	"time"

	"cryptothreads/internal/job"

	"github.com/spf13/cobra"
)

var pruneDays int

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete ledger entries older than the retention period",
	RunE:  runPrune,
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run every maintenance sweep once",
	Long: `Removes cached responses past CACHE_RETENTION_HOURS, expired sent-post
records and ledger entries past HISTORY_RETENTION_DAYS.`,
	RunE: runSweep,
}

func init() {
	pruneCmd.Flags().IntVar(&pruneDays, "days", 0, "Retention in days (default HISTORY_RETENTION_DAYS)")
}

func runPrune(cmd *cobra.Command, args []string) error {
	if pruneDays < 0 {
		return fmt.Errorf("--days must not be negative, got %d", pruneDays)
	}
	ctx := cmd.Context()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	retention := a.Config.HistoryRetention
	if pruneDays > 0 {
		retention = time.Duration(pruneDays) * 24 * time.Hour
	}

	n, err := a.Ledger.Prune(ctx, retention)
	if err != nil {
		return fmt.Errorf("prune ledger: %w", err)
	}

	if outputFormat == "json" {
		return outputJSON(cmd.OutOrStdout(), map[string]any{"pruned": n, "retention_hours": int(retention.Hours())})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d entries older than %s.\n", n, retention)
	return nil
}

func runSweep(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	sweep := job.NewSweepJob(a.Tracer, 0, a.Metrics, a.SweepTasks()...)
	deleted := sweep.RunOnce(ctx)

	if outputFormat == "json" {
		return outputJSON(cmd.OutOrStdout(), deleted)
	}
	names := make([]string, 0, len(deleted))
	for name := range deleted {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(cmd.OutOrStdout(), "%-12s %d removed\n", name, deleted[name])
	}
	return nil
}
