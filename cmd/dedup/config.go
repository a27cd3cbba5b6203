package main

import (
	"github.com/spf13/cobra"
	"github.com/steveyegge/dedup/internal/deduplication"
)

// loadConfig applies defaults, then --config, then DEDUP_* variables, then
// any flag the user set explicitly, and validates the result.
func loadConfig(cmd *cobra.Command) (deduplication.Config, error) {
	cfg := deduplication.DefaultConfig()
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		loaded, err := deduplication.LoadConfigFile(path)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	if err := deduplication.ApplyEnv(&cfg); err != nil {
		return cfg, err
	}
	applyFlags(cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyFlags copies explicitly set flags onto cfg. Commands register only
// the flags that apply to them; absent flags are skipped.
func applyFlags(cmd *cobra.Command, cfg *deduplication.Config) {
	flags := cmd.Flags()
	changed := func(name string) bool {
		f := flags.Lookup(name)
		return f != nil && f.Changed
	}

	if changed("num-hashes") {
		cfg.NumHashes, _ = flags.GetInt("num-hashes")
	}
	if changed("num-bands") {
		cfg.NumBands, _ = flags.GetInt("num-bands")
	}
	if changed("ngram") {
		cfg.NgramSize, _ = flags.GetInt("ngram")
	}
	if changed("threshold") {
		cfg.JaccardThreshold, _ = flags.GetFloat64("threshold")
	}
	if changed("cluster") {
		cfg.ClusterMode, _ = flags.GetString("cluster")
	}
	if changed("workers") {
		cfg.Workers, _ = flags.GetInt("workers")
	}
	if changed("lowercase") {
		cfg.Lowercase, _ = flags.GetBool("lowercase")
	}
	if changed("stem") {
		cfg.StemLanguage, _ = flags.GetString("stem")
	}
	if changed("counter") {
		cfg.LineCounter, _ = flags.GetString("counter")
	}
	if changed("bloom-lines") {
		cfg.BloomExpectedLines, _ = flags.GetUint("bloom-lines")
	}
	if changed("bloom-fp-rate") {
		cfg.BloomFalsePositiveRate, _ = flags.GetFloat64("bloom-fp-rate")
	}
	if changed("report-db") {
		cfg.ReportDB, _ = flags.GetString("report-db")
	}
	if changed("progress") {
		cfg.ProgressInterval, _ = flags.GetDuration("progress")
	}
}
