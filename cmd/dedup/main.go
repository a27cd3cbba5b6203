package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/steveyegge/dedup/internal/corpus"
	"github.com/steveyegge/dedup/internal/deduplication"
	"github.com/steveyegge/dedup/internal/logging"
	"github.com/steveyegge/dedup/internal/storage/sqlite"
)

var rootCmd = &cobra.Command{
	Use:   "dedup",
	Short: "Corpus deduplication: near-duplicate documents and repeated lines",
	Long: `dedup removes redundancy from a text corpus.

  dedup near   drops documents that are near-duplicates of an earlier one
               (MinHash signatures + banded LSH + similarity threshold)
  dedup lines  drops every line that occurs more than once across all files

Inputs may be files, directories (regular files, sorted, non-recursive) or
doublestar globs such as 'corpus/**/*.txt'. Files ending in .sz or .snappy
are read as snappy-framed streams.

Configuration precedence: defaults < --config YAML < DEDUP_* env < flags.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "YAML config file")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-file", "", "Append logs to this file instead of stderr")
	rootCmd.PersistentFlags().String("report-db", "", "SQLite database to record run reports in")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// newLogger builds the run logger from the persistent flags. The returned
// cleanup closes the log file, if any.
func newLogger(cmd *cobra.Command) (*log.Logger, func(), error) {
	level, _ := cmd.Flags().GetString("log-level")
	path, _ := cmd.Flags().GetString("log-file")
	if path == "" {
		logger, err := logging.New(os.Stderr, level)
		return logger, func() {}, err
	}
	logger, f, err := logging.OpenFile(path, level)
	if err != nil {
		return nil, nil, err
	}
	return logger, func() { _ = f.Close() }, nil
}

// newPipeline wires config, logger and optional report store into a
// pipeline. The returned cleanup releases the logger and store.
func newPipeline(cmd *cobra.Command) (*deduplication.Pipeline, func(), error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	logger, closeLog, err := newLogger(cmd)
	if err != nil {
		return nil, nil, err
	}
	logger.Debug("configuration", "config", cfg.String())

	opts := []deduplication.Option{deduplication.WithLogger(logger)}
	closeStore := func() {}
	if cfg.ReportDB != "" {
		store, err := sqlite.New(cfg.ReportDB)
		if err != nil {
			closeLog()
			return nil, nil, fmt.Errorf("opening report database: %w", err)
		}
		opts = append(opts, deduplication.WithStore(store))
		closeStore = func() { _ = store.Close() }
	}

	p, err := deduplication.NewPipeline(cfg, opts...)
	if err != nil {
		closeStore()
		closeLog()
		return nil, nil, err
	}
	return p, func() { closeStore(); closeLog() }, nil
}

// prepareRun builds the pipeline before touching the output directory or
// the inputs, so a configuration error leaves the filesystem untouched.
func prepareRun(cmd *cobra.Command, args []string) (*deduplication.Pipeline, []string, string, func(), error) {
	pipeline, cleanup, err := newPipeline(cmd)
	if err != nil {
		return nil, nil, "", nil, err
	}
	inputs, outDir, err := resolveInputs(cmd, args)
	if err != nil {
		cleanup()
		return nil, nil, "", nil, err
	}
	return pipeline, inputs, outDir, cleanup, nil
}

// resolveInputs expands INPUT arguments and checks the output directory.
func resolveInputs(cmd *cobra.Command, args []string) ([]string, string, error) {
	outDir, _ := cmd.Flags().GetString("output")
	if outDir == "" {
		return nil, "", fmt.Errorf("--output is required")
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, "", fmt.Errorf("creating output directory: %w", err)
	}
	inputs, err := corpus.Expand(args)
	if err != nil {
		return nil, "", err
	}
	return inputs, outDir, nil
}
