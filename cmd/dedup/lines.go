package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var linesCmd = &cobra.Command{
	Use:   "lines -o DIR INPUT...",
	Short: "Remove lines that occur more than once across the corpus",
	Long: `Exact-line deduplication.

Every non-empty line is compared by its whitespace-stripped content. A line
that occurs more than once anywhere in the input set is removed from every
file, including the first occurrence. Lines that occur exactly once are kept
as written, in their original order.

One output file is written per input, under the same base name, even when
it ends up empty.

Examples:
  dedup lines -o out/ corpus/                  # Every file in corpus/
  dedup lines -o out/ 'shards/**/*.txt'        # Glob
  dedup lines -o out/ --counter bloom data/    # Bounded memory counting`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		asJSON, _ := cmd.Flags().GetBool("json")

		pipeline, inputs, outDir, cleanup, err := prepareRun(cmd, args)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer cleanup()

		ctx, cancel := signalContext()
		defer cancel()

		res, err := pipeline.DeduplicateExactLines(ctx, inputs, outDir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			cleanup()
			os.Exit(1)
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(res); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				cleanup()
				os.Exit(1)
			}
			return
		}

		green := color.New(color.FgGreen).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()
		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()

		verbose, _ := cmd.Flags().GetBool("verbose")
		if verbose {
			for _, f := range res.Files {
				fmt.Printf("  %-32s %s kept of %s\n",
					filepath.Base(f.Input), formatCount(f.KeptLines), formatCount(f.Lines))
			}
			fmt.Println()
		}

		fmt.Printf("%s Deduplicated %d files into %s\n", green("✓"), res.Stats.TotalFiles, cyan(outDir))
		fmt.Printf("  Lines:   %s total, %s kept, %s removed\n",
			formatCount(res.Stats.TotalLines), green(formatCount(res.Stats.KeptLines)), formatCount(res.Stats.RemovedLines))
		fmt.Printf("  Repeats: %s distinct repeated lines %s\n",
			formatCount(res.Stats.DuplicateFingerprints), gray("("+res.Stats.Counter+" counter)"))
		fmt.Printf("  Time:    %s\n", formatMillis(res.Stats.ProcessingTimeMs))
	},
}

func init() {
	linesCmd.Flags().StringP("output", "o", "", "Output directory (created if missing)")
	linesCmd.Flags().String("counter", "exact", "Line counter: exact or bloom")
	linesCmd.Flags().Uint("bloom-lines", 10_000_000, "Expected distinct lines (bloom counter)")
	linesCmd.Flags().Float64("bloom-fp-rate", 0.001, "Bloom filter false positive rate")
	linesCmd.Flags().IntP("workers", "w", 0, "Parallel file workers (0 = CPU count)")
	linesCmd.Flags().Duration("progress", 0, "Minimum interval between progress log lines")
	linesCmd.Flags().BoolP("verbose", "v", false, "Show per-file counts")
	linesCmd.Flags().Bool("json", false, "Print the result as JSON")
	rootCmd.AddCommand(linesCmd)
}
