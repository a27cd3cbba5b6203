package deduplication

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/steveyegge/dedup/internal/cluster"
	"github.com/steveyegge/dedup/internal/linededup"
	"github.com/steveyegge/dedup/internal/lsh"
	"github.com/steveyegge/dedup/internal/shingle"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every configuration error.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds configuration for both deduplication algorithms
type Config struct {
	// NumHashes is the MinHash signature length.
	// More hashes = tighter similarity estimates, proportionally more CPU.
	// Default: 100
	NumHashes int `yaml:"num_hashes"`

	// NumBands is the number of LSH bands; it must divide NumHashes.
	// More bands (fewer rows each) = more candidates at lower similarity.
	// Default: 10 (10 rows per band, S-curve midpoint near 0.79)
	NumBands int `yaml:"num_bands"`

	// NgramSize is the shingle length in tokens.
	// Default: 5
	NgramSize int `yaml:"ngram_size"`

	// JaccardThreshold is the estimated similarity a candidate must strictly
	// exceed to count as a near-duplicate.
	// Default: 0.8
	JaccardThreshold float64 `yaml:"jaccard_threshold"`

	// ClusterMode is "greedy" or "union-find".
	// Default: greedy
	ClusterMode string `yaml:"cluster_mode"`

	// Workers bounds file-level parallelism. 0 means runtime.NumCPU().
	Workers int `yaml:"workers"`

	// Lowercase folds case before shingling.
	// Default: false
	Lowercase bool `yaml:"lowercase"`

	// StemLanguage enables snowball stemming ("english", "french", ...).
	// Stemming implies Lowercase. Default: "" (off)
	StemLanguage string `yaml:"stem_language"`

	// LineCounter is "exact" or "bloom" for exact-line dedup.
	// Default: exact
	LineCounter string `yaml:"line_counter"`

	// BloomExpectedLines sizes the bloom filter in bloom mode.
	// Default: 10,000,000
	BloomExpectedLines uint `yaml:"bloom_expected_lines"`

	// BloomFalsePositiveRate is the target filter false positive rate; each
	// false positive removes one unique line.
	// Default: 0.001
	BloomFalsePositiveRate float64 `yaml:"bloom_false_positive_rate"`

	// ReportDB is the SQLite run-report path. Empty disables reporting.
	ReportDB string `yaml:"report_db"`

	// ProgressInterval is the minimum time between progress log lines.
	// Default: 2 seconds
	ProgressInterval time.Duration `yaml:"progress_interval"`
}

// DefaultConfig returns the default deduplication configuration
func DefaultConfig() Config {
	return Config{
		NumHashes:              100,
		NumBands:               10,
		NgramSize:              5,
		JaccardThreshold:       0.8,
		ClusterMode:            string(cluster.ModeGreedy),
		Workers:                0,
		Lowercase:              false,
		StemLanguage:           "",
		LineCounter:            string(linededup.CounterExact),
		BloomExpectedLines:     10_000_000,
		BloomFalsePositiveRate: 0.001,
		ReportDB:               "",
		ProgressInterval:       2 * time.Second,
	}
}

// Validate checks if the configuration has valid values. Every error wraps
// ErrInvalidConfig; a band count that does not divide the signature length
// also wraps lsh.ErrBandMismatch.
func (c Config) Validate() error {
	if err := c.validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

func (c Config) validate() error {
	if c.NumHashes <= 0 {
		return fmt.Errorf("num_hashes must be positive (got %d)", c.NumHashes)
	}
	if c.NumBands <= 0 {
		return fmt.Errorf("num_bands must be positive (got %d)", c.NumBands)
	}
	if _, err := lsh.RowsPerBand(c.NumHashes, c.NumBands); err != nil {
		return fmt.Errorf("num_bands (%d) and num_hashes (%d): %w", c.NumBands, c.NumHashes, err)
	}
	if c.NgramSize <= 0 {
		return fmt.Errorf("ngram_size must be positive (got %d)", c.NgramSize)
	}
	if c.JaccardThreshold < 0.0 || c.JaccardThreshold > 1.0 {
		return fmt.Errorf("jaccard_threshold must be between 0.0 and 1.0 (got %.2f)", c.JaccardThreshold)
	}
	if _, err := cluster.ParseMode(c.ClusterMode); err != nil {
		return err
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers cannot be negative (got %d)", c.Workers)
	}
	if c.StemLanguage != "" {
		if _, err := shingle.NewTokenizer(shingle.TokenizerOptions{StemLanguage: c.StemLanguage}); err != nil {
			return err
		}
	}
	kind, err := linededup.ParseCounterKind(c.LineCounter)
	if err != nil {
		return err
	}
	if kind == linededup.CounterBloom {
		if c.BloomExpectedLines == 0 {
			return fmt.Errorf("bloom_expected_lines must be positive")
		}
		if c.BloomFalsePositiveRate <= 0 || c.BloomFalsePositiveRate >= 1 {
			return fmt.Errorf("bloom_false_positive_rate must be between 0.0 and 1.0 exclusive (got %g)", c.BloomFalsePositiveRate)
		}
	}
	if c.ProgressInterval < 0 {
		return fmt.Errorf("progress_interval cannot be negative (got %v)", c.ProgressInterval)
	}
	return nil
}

// EffectiveWorkers resolves Workers, mapping 0 to the CPU count.
func (c Config) EffectiveWorkers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.NumCPU()
}

// String returns a human-readable representation of the config
func (c Config) String() string {
	return fmt.Sprintf(
		"Config{NumHashes: %d, NumBands: %d, NgramSize: %d, Threshold: %.2f, "+
			"Cluster: %s, Workers: %d, Lowercase: %t, Stem: %q, "+
			"LineCounter: %s, BloomLines: %d, BloomFP: %g, ReportDB: %q, Progress: %v}",
		c.NumHashes, c.NumBands, c.NgramSize, c.JaccardThreshold,
		c.ClusterMode, c.Workers, c.Lowercase, c.StemLanguage,
		c.LineCounter, c.BloomExpectedLines, c.BloomFalsePositiveRate, c.ReportDB, c.ProgressInterval,
	)
}

// LoadConfigFile reads a YAML config file over the defaults. Keys absent
// from the file keep their default values. The result is not validated.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: parsing YAML: %w", ErrInvalidConfig, err)
	}
	return cfg, nil
}

// ConfigFromEnv creates a Config from environment variables, falling back to defaults
//
// Environment variables:
//   - DEDUP_NUM_HASHES: MinHash signature length (default: 100)
//   - DEDUP_NUM_BANDS: LSH band count (default: 10)
//   - DEDUP_NGRAM_SIZE: Shingle length in tokens (default: 5)
//   - DEDUP_JACCARD_THRESHOLD: Similarity a duplicate must exceed (default: 0.8)
//   - DEDUP_CLUSTER_MODE: greedy or union-find (default: greedy)
//   - DEDUP_WORKERS: Parallel workers, 0 for CPU count (default: 0)
//   - DEDUP_LOWERCASE: Fold case before shingling (default: false)
//   - DEDUP_STEM_LANGUAGE: Snowball stemmer language (default: off)
//   - DEDUP_LINE_COUNTER: exact or bloom (default: exact)
//   - DEDUP_BLOOM_EXPECTED_LINES: Bloom filter capacity (default: 10000000)
//   - DEDUP_BLOOM_FP_RATE: Bloom filter false positive rate (default: 0.001)
//   - DEDUP_REPORT_DB: SQLite run-report path (default: off)
//   - DEDUP_PROGRESS_SECS: Seconds between progress lines (default: 2)
//
// Returns an error if any environment variable has an invalid value.
func ConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := ApplyEnv(&cfg); err != nil {
		return cfg, err
	}

	// Validate the final configuration
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration from environment: %w", err)
	}

	return cfg, nil
}

// ApplyEnv overlays any DEDUP_* variables that are set onto cfg.
func ApplyEnv(cfg *Config) error {
	steps := []func() error{
		func() error { return parseEnvInt("DEDUP_NUM_HASHES", &cfg.NumHashes) },
		func() error { return parseEnvInt("DEDUP_NUM_BANDS", &cfg.NumBands) },
		func() error { return parseEnvInt("DEDUP_NGRAM_SIZE", &cfg.NgramSize) },
		func() error { return parseEnvFloat("DEDUP_JACCARD_THRESHOLD", &cfg.JaccardThreshold) },
		func() error { return parseEnvString("DEDUP_CLUSTER_MODE", &cfg.ClusterMode) },
		func() error { return parseEnvInt("DEDUP_WORKERS", &cfg.Workers) },
		func() error { return parseEnvBool("DEDUP_LOWERCASE", &cfg.Lowercase) },
		func() error { return parseEnvString("DEDUP_STEM_LANGUAGE", &cfg.StemLanguage) },
		func() error { return parseEnvString("DEDUP_LINE_COUNTER", &cfg.LineCounter) },
		func() error { return parseEnvUint("DEDUP_BLOOM_EXPECTED_LINES", &cfg.BloomExpectedLines) },
		func() error { return parseEnvFloat("DEDUP_BLOOM_FP_RATE", &cfg.BloomFalsePositiveRate) },
		func() error { return parseEnvString("DEDUP_REPORT_DB", &cfg.ReportDB) },
		func() error { return parseEnvDuration("DEDUP_PROGRESS_SECS", &cfg.ProgressInterval, time.Second) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}
	return nil
}

// parseEnvString copies a non-empty environment variable
func parseEnvString(key string, dest *string) error {
	if value := os.Getenv(key); value != "" {
		*dest = value
	}
	return nil
}

// parseEnvFloat parses a float64 from an environment variable
func parseEnvFloat(key string, dest *float64) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvInt parses an int from an environment variable
func parseEnvInt(key string, dest *int) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvUint parses a uint from an environment variable
func parseEnvUint(key string, dest *uint) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.ParseUint(value, 10, 0)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = uint(parsed)
	return nil
}

// parseEnvBool parses a bool from an environment variable
func parseEnvBool(key string, dest *bool) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvDuration parses a duration from an environment variable
// The multiplier is used to convert the numeric value to a duration
// (e.g., for seconds: multiplier = time.Second)
func parseEnvDuration(key string, dest *time.Duration, multiplier time.Duration) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = time.Duration(parsed) * multiplier
	return nil
}
