package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/steveyegge/dedup/internal/lsh"
)

var bandsCmd = &cobra.Command{
	Use:   "bands",
	Short: "Show the LSH candidate S-curve for a band configuration",
	Long: `Print the probability that a pair with a given Jaccard similarity becomes
an LSH candidate, 1-(1-s^r)^b for b bands of r rows.

The curve's midpoint (1/b)^(1/r) should sit a little below --threshold:
pairs far below it are rarely compared, pairs above it are rarely missed.

Examples:
  dedup bands                                   # Defaults: 100 hashes, 10 bands
  dedup bands --num-hashes 128 --num-bands 32
  dedup bands --sweep                           # Every valid band count`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(cmd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		sweep, _ := cmd.Flags().GetBool("sweep")

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		green := color.New(color.FgGreen).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		if sweep {
			fmt.Printf("%s\n", cyan(fmt.Sprintf("Band counts for %d hashes", cfg.NumHashes)))
			for b := 1; b <= cfg.NumHashes; b++ {
				r, err := lsh.RowsPerBand(cfg.NumHashes, b)
				if err != nil {
					continue
				}
				mid := lsh.Threshold(b, r)
				line := fmt.Sprintf("  %4d bands × %3d rows  midpoint %.3f  P(candidate | s=%.2f) = %.4f",
					b, r, mid, cfg.JaccardThreshold, lsh.CandidateProbability(cfg.JaccardThreshold, b, r))
				if b == cfg.NumBands {
					line = green(line + "  ← current")
				}
				fmt.Println(line)
			}
			return
		}

		rows, err := lsh.RowsPerBand(cfg.NumHashes, cfg.NumBands)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		mid := lsh.Threshold(cfg.NumBands, rows)

		fmt.Printf("%s\n", cyan(fmt.Sprintf("%d hashes = %d bands × %d rows", cfg.NumHashes, cfg.NumBands, rows)))
		fmt.Printf("  Midpoint:  %.3f\n", mid)
		fmt.Printf("  Threshold: %.3f", cfg.JaccardThreshold)
		if mid > cfg.JaccardThreshold {
			fmt.Printf("  %s", yellow("(midpoint above threshold: true duplicates near the threshold may be missed)"))
		}
		fmt.Println()
		fmt.Println()

		const width = 40
		for i := 1; i <= 10; i++ {
			s := float64(i) / 10
			p := lsh.CandidateProbability(s, cfg.NumBands, rows)
			bar := strings.Repeat("█", int(p*width+0.5))
			fmt.Printf("  s=%.1f  %6.4f  %s%s\n", s, p, bar, gray(strings.Repeat("·", width-len([]rune(bar)))))
		}
	},
}

func init() {
	bandsCmd.Flags().Int("num-hashes", 100, "MinHash signature length")
	bandsCmd.Flags().Int("num-bands", 10, "LSH bands (must divide --num-hashes)")
	bandsCmd.Flags().Float64P("threshold", "t", 0.8, "Similarity threshold to compare against")
	bandsCmd.Flags().Bool("sweep", false, "List every band count that divides --num-hashes")
	rootCmd.AddCommand(bandsCmd)
}
