package deduplication

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/steveyegge/dedup/internal/cluster"
	"github.com/steveyegge/dedup/internal/corpus"
	"github.com/steveyegge/dedup/internal/linededup"
	"github.com/steveyegge/dedup/internal/logging"
	"github.com/steveyegge/dedup/internal/lsh"
	"github.com/steveyegge/dedup/internal/minhash"
	"github.com/steveyegge/dedup/internal/shingle"
	"github.com/steveyegge/dedup/internal/storage"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Pipeline runs deduplication with one validated Config. All per-run state
// (bucket tables, frequency tables, signatures) is created inside each call
// and dropped when it returns, so a Pipeline may be reused and runs do not
// share anything.
type Pipeline struct {
	cfg    Config
	logger *log.Logger
	store  storage.Store
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the pipeline logger. Nil discards.
func WithLogger(l *log.Logger) Option {
	return func(p *Pipeline) { p.logger = logging.OrDiscard(l) }
}

// WithStore records a report of every completed run in s. Recording is fail
// open: a store error is logged and the run still succeeds, since outputs
// are already in place.
func WithStore(s storage.Store) Option {
	return func(p *Pipeline) { p.store = s }
}

// NewPipeline validates cfg and returns a Pipeline. Configuration errors are
// reported here, before any input is read.
func NewPipeline(cfg Config, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Pipeline{cfg: cfg, logger: logging.Discard()}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Config returns the pipeline configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// DeduplicateExactLines writes, for each input, a file of the same base name
// in outputDir holding only the non-empty lines whose stripped content occurs
// exactly once across all inputs.
func (p *Pipeline) DeduplicateExactLines(ctx context.Context, inputs []string, outputDir string) (*LineResult, error) {
	started := time.Now()
	logger := p.logger.WithPrefix("lines")

	d, err := linededup.New(linededup.Options{
		Counter:                linededup.CounterKind(p.cfg.LineCounter),
		BloomExpectedLines:     p.cfg.BloomExpectedLines,
		BloomFalsePositiveRate: p.cfg.BloomFalsePositiveRate,
		Workers:                p.cfg.EffectiveWorkers(),
		ProgressInterval:       p.cfg.ProgressInterval,
		Logger:                 logger,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if _, err := corpus.Names(inputs); err != nil {
		return nil, err
	}
	if err := corpus.CheckReadable(inputs); err != nil {
		return nil, err
	}
	if err := corpus.CheckOutputDir(outputDir); err != nil {
		return nil, err
	}
	release, err := corpus.LockOutputDir(outputDir, "dedup lines")
	if err != nil {
		return nil, err
	}
	defer p.unlock(logger, release)

	res, err := d.Run(ctx, inputs, outputDir)
	if err != nil {
		return nil, err
	}

	out := &LineResult{
		Files: res.Files,
		Stats: LineStats{
			TotalFiles:            len(res.Files),
			TotalLines:            res.TotalLines,
			KeptLines:             res.KeptLines,
			RemovedLines:          res.TotalLines - res.KeptLines,
			DuplicateFingerprints: res.DuplicateFingerprints,
			Counter:               string(res.Counter),
			ProcessingTimeMs:      time.Since(started).Milliseconds(),
		},
	}
	p.recordLines(ctx, started, outputDir, out)
	return out, nil
}

// DeduplicateNearDuplicates copies every retained input document unmodified
// into outputDir and returns the retained names. A document is dropped when
// it is judged a near-duplicate of an earlier retained document.
func (p *Pipeline) DeduplicateNearDuplicates(ctx context.Context, inputs []string, outputDir string) (*NearResult, error) {
	started := time.Now()
	logger := p.logger.WithPrefix("near")

	names, err := corpus.Names(inputs)
	if err != nil {
		return nil, err
	}
	if err := corpus.CheckReadable(inputs); err != nil {
		return nil, err
	}
	if err := corpus.CheckOutputDir(outputDir); err != nil {
		return nil, err
	}
	release, err := corpus.LockOutputDir(outputDir, "dedup near")
	if err != nil {
		return nil, err
	}
	defer p.unlock(logger, release)

	tokenizer, err := shingle.NewTokenizer(shingle.TokenizerOptions{
		Lowercase:    p.cfg.Lowercase,
		StemLanguage: p.cfg.StemLanguage,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	shingler, err := shingle.NewShingler(p.cfg.NgramSize, tokenizer)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	builder, err := minhash.NewBuilder(p.cfg.NumHashes)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	index, err := lsh.NewIndex(p.cfg.NumHashes, p.cfg.NumBands)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	mode, err := cluster.ParseMode(p.cfg.ClusterMode)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	verifier, err := cluster.NewVerifier(p.cfg.JaccardThreshold, mode)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	// Signatures are computed in parallel into index-addressed slots, then
	// inserted in input order so bucket contents never depend on scheduling.
	sigs, err := p.signatures(ctx, logger, inputs, shingler, builder)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]minhash.Signature, len(names))
	empty := 0
	for i, name := range names {
		byName[name] = sigs[i]
		if sigs[i].IsEmpty() {
			empty++
			logger.Debug("document has no shingles; keeping without comparison", "document", name)
			continue
		}
		if err := index.Insert(name, sigs[i]); err != nil {
			return nil, fmt.Errorf("indexing %s: %w", name, err)
		}
	}
	index.Seal()
	logger.Info("built index",
		"documents", index.Len(),
		"empty", empty,
		"bands", index.NumBands(),
		"rows", index.Rows(),
		"buckets", index.BucketCount())

	logger.Debug("resolving clusters", "mode", verifier.Mode(), "ngram", shingler.Size(), "threshold", p.cfg.JaccardThreshold)
	clusters, err := verifier.Resolve(names, byName, index)
	if err != nil {
		return nil, err
	}

	position := make(map[string]int, len(names))
	for i, name := range names {
		position[name] = i
	}
	outputs, err := p.copyKept(ctx, logger, inputs, position, clusters.Kept, outputDir)
	if err != nil {
		return nil, err
	}

	res := &NearResult{
		Kept:        clusters.Kept,
		DuplicateOf: clusters.DuplicateOf,
		Similarity:  clusters.Similarity,
		Pairs:       clusters.Pairs,
		Outputs:     outputs,
		Stats: NearStats{
			TotalDocuments:     len(names),
			KeptCount:          len(clusters.Kept),
			DuplicateCount:     len(clusters.DuplicateOf),
			EmptyDocuments:     empty,
			CandidatesCompared: clusters.Compared,
			VerifiedPairs:      len(clusters.Pairs),
			Buckets:            index.BucketCount(),
		},
	}
	res.Stats.ProcessingTimeMs = time.Since(started).Milliseconds()

	logger.Info("done",
		"documents", res.Stats.TotalDocuments,
		"kept", res.Stats.KeptCount,
		"duplicates", res.Stats.DuplicateCount,
		"compared", res.Stats.CandidatesCompared,
		"elapsed", time.Since(started).Round(time.Millisecond))

	p.recordNear(ctx, started, outputDir, names, res)
	return res, nil
}

func (p *Pipeline) signatures(ctx context.Context, logger *log.Logger, inputs []string, shingler *shingle.Shingler, builder *minhash.Builder) ([]minhash.Signature, error) {
	sigs := make([]minhash.Signature, len(inputs))
	var done atomic.Int64
	progress := rate.Sometimes{Interval: p.cfg.ProgressInterval}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.EffectiveWorkers())
	for i, path := range inputs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			text, err := corpus.ReadText(path)
			if err != nil {
				return err
			}
			sigs[i] = builder.Signature(shingler.Shingles(text))
			n := done.Add(1)
			progress.Do(func() {
				logger.Info("signing", "done", n, "total", len(inputs))
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return sigs, nil
}

func (p *Pipeline) copyKept(ctx context.Context, logger *log.Logger, inputs []string, position map[string]int, kept []string, outputDir string) ([]string, error) {
	outputs := make([]string, len(kept))
	progress := rate.Sometimes{Interval: p.cfg.ProgressInterval}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.EffectiveWorkers())
	for i, name := range kept {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out, err := corpus.CopyFile(inputs[position[name]], outputDir)
			if err != nil {
				return err
			}
			outputs[i] = out
			progress.Do(func() {
				logger.Info("writing", "document", name)
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outputs, nil
}

func (p *Pipeline) recordNear(ctx context.Context, started time.Time, outputDir string, names []string, res *NearResult) {
	if p.store == nil {
		return
	}
	report := &storage.RunReport{
		RunSummary: storage.RunSummary{
			Kind:       storage.RunNear,
			StartedAt:  started,
			FinishedAt: time.Now(),
			OutputDir:  outputDir,
			Config:     p.cfg.String(),
			Inputs:     res.Stats.TotalDocuments,
			Kept:       res.Stats.KeptCount,
			Removed:    res.Stats.DuplicateCount,
		},
	}
	for i, name := range names {
		d := &storage.DocumentDecision{Document: name, Position: i, Kept: true}
		if target, ok := res.DuplicateOf[name]; ok {
			d.Kept = false
			d.DuplicateOf = target
			d.Similarity = res.Similarity[name]
		}
		report.Decisions = append(report.Decisions, d)
	}
	p.record(ctx, report)
}

func (p *Pipeline) recordLines(ctx context.Context, started time.Time, outputDir string, res *LineResult) {
	if p.store == nil {
		return
	}
	report := &storage.RunReport{
		RunSummary: storage.RunSummary{
			Kind:       storage.RunLines,
			StartedAt:  started,
			FinishedAt: time.Now(),
			OutputDir:  outputDir,
			Config:     p.cfg.String(),
			Inputs:     res.Stats.TotalFiles,
			Kept:       res.Stats.KeptLines,
			Removed:    res.Stats.RemovedLines,
		},
	}
	for i, f := range res.Files {
		report.LineStats = append(report.LineStats, &storage.LineStat{
			File:     corpus.DocumentName(f.Input),
			Position: i,
			Lines:    f.Lines,
			NonEmpty: f.NonEmpty,
			Kept:     f.KeptLines,
		})
	}
	p.record(ctx, report)
}

func (p *Pipeline) record(ctx context.Context, report *storage.RunReport) {
	if err := p.store.RecordRun(ctx, report); err != nil {
		p.logger.Warn("failed to record run report", "err", err)
		return
	}
	p.logger.Debug("recorded run report", "run", report.ID)
}

func (p *Pipeline) unlock(logger *log.Logger, release func() error) {
	if err := release(); err != nil {
		logger.Warn("output lock not released", "err", err)
	}
}

// DeduplicateExactLines runs exact-line deduplication with default settings.
func DeduplicateExactLines(ctx context.Context, inputs []string, outputDir string) error {
	p, err := NewPipeline(DefaultConfig())
	if err != nil {
		return err
	}
	_, err = p.DeduplicateExactLines(ctx, inputs, outputDir)
	return err
}

// DeduplicateNearDuplicates runs near-duplicate detection with the given
// parameters and defaults for everything else, returning the retained
// document names.
func DeduplicateNearDuplicates(ctx context.Context, inputs []string, numHashes, numBands, ngramSize int, jaccardThreshold float64, outputDir string) (map[string]struct{}, error) {
	cfg := DefaultConfig()
	cfg.NumHashes = numHashes
	cfg.NumBands = numBands
	cfg.NgramSize = ngramSize
	cfg.JaccardThreshold = jaccardThreshold

	p, err := NewPipeline(cfg)
	if err != nil {
		return nil, err
	}
	res, err := p.DeduplicateNearDuplicates(ctx, inputs, outputDir)
	if err != nil {
		return nil, err
	}
	return res.KeptSet(), nil
}
