package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/steveyegge/dedup/internal/storage"
	"github.com/steveyegge/dedup/internal/storage/sqlite"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded deduplication runs",
	Long: `Show runs recorded in the report database (--report-db, DEDUP_REPORT_DB
or report_db in the config file).

With --run, show the per-document decisions or per-file line counts of one
run. With --prune-days, delete runs older than that many days first.

Examples:
  dedup history --report-db runs.db             # Last 20 runs
  dedup history --report-db runs.db -n 5
  dedup history --report-db runs.db --run 7f3c2a9e  # ID prefix from the listing
  dedup history --report-db runs.db --prune-days 30`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(cmd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if cfg.ReportDB == "" {
			fmt.Fprintf(os.Stderr, "Error: no report database configured (use --report-db)\n")
			os.Exit(1)
		}
		limit, _ := cmd.Flags().GetInt("limit")
		runID, _ := cmd.Flags().GetString("run")
		pruneDays, _ := cmd.Flags().GetInt("prune-days")
		if pruneDays < 0 {
			fmt.Fprintf(os.Stderr, "Error: --prune-days cannot be negative\n")
			os.Exit(1)
		}

		store, err := sqlite.New(cfg.ReportDB)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = store.Close() }()

		ctx := context.Background()
		if pruneDays > 0 {
			n, err := store.PruneRuns(ctx, time.Now().AddDate(0, 0, -pruneDays))
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				_ = store.Close()
				os.Exit(1)
			}
			green := color.New(color.FgGreen).SprintFunc()
			fmt.Printf("%s Pruned %d runs older than %d days\n\n", green("✓"), n, pruneDays)
		}
		if runID != "" {
			full, err := resolveRunID(ctx, store, runID)
			if err == nil {
				err = showRun(ctx, store, full)
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				_ = store.Close()
				os.Exit(1)
			}
			return
		}

		runs, err := store.ListRuns(ctx, limit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			_ = store.Close()
			os.Exit(1)
		}

		gray := color.New(color.FgHiBlack).SprintFunc()
		cyan := color.New(color.FgCyan).SprintFunc()
		if len(runs) == 0 {
			fmt.Printf("%s\n", gray("No runs recorded"))
			return
		}
		for _, r := range runs {
			unit := "docs"
			if r.Kind == storage.RunLines {
				unit = "lines"
			}
			fmt.Printf("%s  %s  %-5s  %d inputs, %s %s kept, %s removed  %s\n",
				cyan(shortID(r.ID)),
				r.StartedAt.Format("2006-01-02 15:04:05"),
				r.Kind,
				r.Inputs,
				formatCount(r.Kept), unit,
				formatCount(r.Removed),
				gray(r.Duration().Round(time.Millisecond).String()))
		}
	},
}

func showRun(ctx context.Context, store storage.Store, runID string) error {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	decisions, err := store.GetDecisions(ctx, runID)
	if err != nil {
		return err
	}
	stats, err := store.GetLineStats(ctx, runID)
	if err != nil {
		return err
	}
	if len(decisions) == 0 && len(stats) == 0 {
		return fmt.Errorf("run %s has no recorded details", runID)
	}

	for _, d := range decisions {
		if d.Kept {
			fmt.Printf("  %s %s\n", green("✓"), d.Document)
			continue
		}
		fmt.Printf("  %s %s → %s %s\n", red("✗"), d.Document, d.DuplicateOf, gray(fmt.Sprintf("(%.2f)", d.Similarity)))
	}
	for _, l := range stats {
		fmt.Printf("  %-32s %s of %s lines kept %s\n",
			l.File, formatCount(l.Kept), formatCount(l.Lines),
			gray(fmt.Sprintf("(%d blank)", l.Lines-l.NonEmpty)))
	}
	return nil
}

// resolveRunID expands a unique run ID prefix, as printed by the listing.
func resolveRunID(ctx context.Context, store storage.Store, prefix string) (string, error) {
	runs, err := store.ListRuns(ctx, 0)
	if err != nil {
		return "", err
	}
	var match string
	for _, r := range runs {
		if strings.HasPrefix(r.ID, prefix) {
			if match != "" {
				return "", fmt.Errorf("run ID prefix %q is ambiguous", prefix)
			}
			match = r.ID
		}
	}
	if match == "" {
		return "", fmt.Errorf("no run matches %q", prefix)
	}
	return match, nil
}

// shortID abbreviates a run ID for listings.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	historyCmd.Flags().IntP("limit", "n", 20, "Number of recent runs to show")
	historyCmd.Flags().String("run", "", "Show details of one run")
	historyCmd.Flags().Int("prune-days", 0, "Delete runs older than this many days before listing")
	rootCmd.AddCommand(historyCmd)
}
