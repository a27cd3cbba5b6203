package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var nearCmd = &cobra.Command{
	Use:   "near -o DIR INPUT...",
	Short: "Drop documents that are near-duplicates of an earlier document",
	Long: `Near-duplicate document detection.

Each document is split into k-token shingles and summarised by a MinHash
signature. Banded LSH proposes candidate pairs, and a candidate whose
estimated Jaccard similarity is strictly above --threshold is a duplicate.
Retained documents are copied unmodified into the output directory.

Cluster modes:
  greedy      documents are visited in input order; each retained document
              drops its direct matches (fast, not transitive)
  union-find  every verified pair is joined; each connected group keeps its
              earliest document

Examples:
  dedup near -o out/ corpus/
  dedup near -o out/ --threshold 0.9 --ngram 3 'docs/*.txt'
  dedup near -o out/ --num-hashes 128 --num-bands 32 --cluster union-find data/`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		asJSON, _ := cmd.Flags().GetBool("json")
		showPairs, _ := cmd.Flags().GetBool("pairs")

		pipeline, inputs, outDir, cleanup, err := prepareRun(cmd, args)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer cleanup()

		ctx, cancel := signalContext()
		defer cancel()

		res, err := pipeline.DeduplicateNearDuplicates(ctx, inputs, outDir)
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
		yellow := color.New(color.FgYellow).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()
		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()

		cfg := pipeline.Config()
		fmt.Printf("%s Kept %s of %d documents in %s\n",
			green("✓"), green(fmt.Sprintf("%d", res.Stats.KeptCount)), res.Stats.TotalDocuments, cyan(outDir))
		fmt.Printf("  Duplicates: %d", res.Stats.DuplicateCount)
		if res.Stats.EmptyDocuments > 0 {
			fmt.Printf("  %s", gray(fmt.Sprintf("(%d too short to compare, kept)", res.Stats.EmptyDocuments)))
		}
		fmt.Println()
		fmt.Printf("  Compared:   %s candidates, %d above %.2f\n",
			formatCount(res.Stats.CandidatesCompared), res.Stats.VerifiedPairs, cfg.JaccardThreshold)
		fmt.Printf("  Index:      %d hashes, %d bands, %s buckets, %s clustering\n",
			cfg.NumHashes, cfg.NumBands, formatCount(res.Stats.Buckets), cfg.ClusterMode)
		fmt.Printf("  Time:       %s\n", formatMillis(res.Stats.ProcessingTimeMs))

		if len(res.DuplicateOf) > 0 {
			fmt.Println()
			fmt.Printf("%s\n", yellow("Dropped:"))
			dups := make([]string, 0, len(res.DuplicateOf))
			for name := range res.DuplicateOf {
				dups = append(dups, name)
			}
			sort.Strings(dups)
			for _, name := range dups {
				fmt.Printf("  %s → %s %s\n", name, res.DuplicateOf[name],
					gray(fmt.Sprintf("(%.2f)", res.Similarity[name])))
			}
		}

		if showPairs && len(res.Pairs) > 0 {
			fmt.Println()
			fmt.Printf("%s\n", yellow("Verified pairs:"))
			for _, p := range res.Pairs {
				fmt.Printf("  %.3f  %s  %s\n", p.Similarity, p.First, p.Second)
			}
		}
	},
}

func init() {
	nearCmd.Flags().StringP("output", "o", "", "Output directory (created if missing)")
	nearCmd.Flags().Int("num-hashes", 100, "MinHash signature length")
	nearCmd.Flags().Int("num-bands", 10, "LSH bands (must divide --num-hashes)")
	nearCmd.Flags().IntP("ngram", "k", 5, "Shingle size in tokens")
	nearCmd.Flags().Float64P("threshold", "t", 0.8, "Similarity a duplicate must exceed")
	nearCmd.Flags().String("cluster", "greedy", "Cluster mode: greedy or union-find")
	nearCmd.Flags().IntP("workers", "w", 0, "Parallel file workers (0 = CPU count)")
	nearCmd.Flags().Bool("lowercase", false, "Fold case before shingling")
	nearCmd.Flags().String("stem", "", "Snowball stemmer language (e.g. english)")
	nearCmd.Flags().Duration("progress", 0, "Minimum interval between progress log lines")
	nearCmd.Flags().Bool("pairs", false, "List every verified pair")
	nearCmd.Flags().Bool("json", false, "Print the result as JSON")
	rootCmd.AddCommand(nearCmd)
}
