// Package linededup removes lines that occur more than once anywhere in a
// corpus.
//
// A line's identity is the xxh3 fingerprint of its whitespace-stripped form.
// Pass 1 counts fingerprints across all inputs; pass 2 rewrites each input
// keeping only lines whose fingerprint occurred exactly once. Every copy of
// a repeated line is dropped, including the first. Blank lines are dropped.
// Kept lines are written exactly as read.
package linededup

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/steveyegge/dedup/internal/corpus"
	"github.com/steveyegge/dedup/internal/logging"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

const readBufSize = 256 * 1024

// Options controls a run. The zero value counts exactly on NumCPU workers.
type Options struct {
	Counter                CounterKind
	BloomExpectedLines     uint
	BloomFalsePositiveRate float64
	Workers                int
	ProgressInterval       time.Duration
	Logger                 *log.Logger
}

// FileStats describes one input/output pair.
type FileStats struct {
	Input     string `json:"input"`
	Output    string `json:"output"`
	Lines     int    `json:"lines"`
	NonEmpty  int    `json:"non_empty"`
	KeptLines int    `json:"kept_lines"`
}

// Result summarises a run.
type Result struct {
	Files                 []FileStats `json:"files"`
	TotalLines            int         `json:"total_lines"`
	KeptLines             int         `json:"kept_lines"`
	DuplicateFingerprints int         `json:"duplicate_fingerprints"`
	TrackedFingerprints   int         `json:"tracked_fingerprints"`
	Counter               CounterKind `json:"counter"`
}

// Validate checks internal consistency of the result.
func (r *Result) Validate() error {
	total, kept := 0, 0
	for _, f := range r.Files {
		if f.KeptLines > f.NonEmpty || f.NonEmpty > f.Lines {
			return fmt.Errorf("file %s: kept=%d non_empty=%d lines=%d out of order", f.Input, f.KeptLines, f.NonEmpty, f.Lines)
		}
		total += f.Lines
		kept += f.KeptLines
	}
	if total != r.TotalLines {
		return fmt.Errorf("total_lines (%d) != sum of file lines (%d)", r.TotalLines, total)
	}
	if kept != r.KeptLines {
		return fmt.Errorf("kept_lines (%d) != sum of file kept lines (%d)", r.KeptLines, kept)
	}
	return nil
}

// Deduplicator runs exact-line deduplication.
type Deduplicator struct {
	opts   Options
	logger *log.Logger
}

// New validates opts and returns a Deduplicator.
func New(opts Options) (*Deduplicator, error) {
	kind, err := ParseCounterKind(string(opts.Counter))
	if err != nil {
		return nil, err
	}
	opts.Counter = kind
	if opts.Workers < 0 {
		return nil, fmt.Errorf("workers must be non-negative (got %d)", opts.Workers)
	}
	if opts.Workers == 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = 2 * time.Second
	}
	return &Deduplicator{opts: opts, logger: logging.OrDiscard(opts.Logger)}, nil
}

// Run deduplicates inputs into outputDir, writing one output per input under
// the input's base name. Outputs are written only after every input has been
// counted; a failure in pass 1 leaves outputDir untouched.
func (d *Deduplicator) Run(ctx context.Context, inputs []string, outputDir string) (*Result, error) {
	if _, err := corpus.Names(inputs); err != nil {
		return nil, err
	}
	if err := corpus.CheckReadable(inputs); err != nil {
		return nil, err
	}
	if err := corpus.CheckOutputDir(outputDir); err != nil {
		return nil, err
	}

	table, err := newFrequencyTable(d.opts.Counter, d.opts.BloomExpectedLines, d.opts.BloomFalsePositiveRate)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	if err := d.count(ctx, inputs, table); err != nil {
		return nil, err
	}
	d.logger.Info("counted lines",
		"files", len(inputs),
		"duplicates", table.Duplicates(),
		"tracked", table.Tracked(),
		"elapsed", time.Since(start).Round(time.Millisecond))

	files, err := d.write(ctx, inputs, outputDir, table)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Files:                 files,
		DuplicateFingerprints: table.Duplicates(),
		TrackedFingerprints:   table.Tracked(),
		Counter:               d.opts.Counter,
	}
	for _, f := range files {
		res.TotalLines += f.Lines
		res.KeptLines += f.KeptLines
	}
	d.logger.Info("wrote outputs",
		"files", len(files),
		"lines", res.TotalLines,
		"kept", res.KeptLines,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return res, nil
}

// count runs pass 1. Files are counted concurrently into per-file maps which
// are merged into table strictly in input order, so bloom false positives are
// reproducible. The semaphore slot taken for a file is released only after
// its map is merged, which bounds the number of maps alive at once.
func (d *Deduplicator) count(ctx context.Context, inputs []string, table frequencyTable) error {
	sem := semaphore.NewWeighted(int64(d.opts.Workers))
	results := make([]chan map[uint64]uint32, len(inputs))
	for i := range results {
		results[i] = make(chan map[uint64]uint32, 1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for i, path := range inputs {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			g.Go(func() error {
				local, err := countFile(gctx, path)
				if err != nil {
					return err
				}
				results[i] <- local
				return nil
			})
		}
		return nil
	})

	progress := rate.Sometimes{Interval: d.opts.ProgressInterval}
	g.Go(func() error {
		for i := range results {
			select {
			case local := <-results[i]:
				table.Merge(local)
				sem.Release(1)
			case <-gctx.Done():
				return gctx.Err()
			}
			progress.Do(func() {
				d.logger.Info("counting", "done", i+1, "total", len(inputs))
			})
		}
		return nil
	})
	return g.Wait()
}

func countFile(ctx context.Context, path string) (map[uint64]uint32, error) {
	r, err := corpus.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()

	local := make(map[uint64]uint32)
	err = eachLine(ctx, r, func(_, stripped string) error {
		if stripped == "" {
			return nil
		}
		fp := Fingerprint(stripped)
		if n := local[fp]; n < math.MaxUint32 {
			local[fp] = n + 1
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("counting %s: %w", path, err)
	}
	return local, nil
}

// write runs pass 2. table is read-only here.
func (d *Deduplicator) write(ctx context.Context, inputs []string, outputDir string, table frequencyTable) ([]FileStats, error) {
	files := make([]FileStats, len(inputs))
	var done atomic.Int64
	progress := rate.Sometimes{Interval: d.opts.ProgressInterval}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.Workers)
	for i, path := range inputs {
		g.Go(func() error {
			st, err := writeFile(gctx, path, outputDir, table)
			if err != nil {
				return err
			}
			files[i] = st
			n := done.Add(1)
			progress.Do(func() {
				d.logger.Info("writing", "done", n, "total", len(inputs))
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return files, nil
}

func writeFile(ctx context.Context, path, outputDir string, table frequencyTable) (FileStats, error) {
	st := FileStats{Input: path}
	r, err := corpus.Open(path)
	if err != nil {
		return st, err
	}
	defer func() { _ = r.Close() }()

	out, err := corpus.Create(outputDir, corpus.DocumentName(path), corpus.IsCompressed(path))
	if err != nil {
		return st, err
	}
	err = eachLine(ctx, r, func(raw, stripped string) error {
		st.Lines++
		if stripped == "" {
			return nil
		}
		st.NonEmpty++
		if !table.Unique(Fingerprint(stripped)) {
			return nil
		}
		st.KeptLines++
		_, err := out.WriteString(raw)
		return err
	})
	if err != nil {
		out.Abort()
		return st, fmt.Errorf("deduplicating %s: %w", path, err)
	}
	if err := out.Commit(); err != nil {
		return st, err
	}
	st.Output = out.Path()
	return st, nil
}

// eachLine calls fn for every line of r with the raw line (terminator
// included, if any) and its whitespace-stripped form. A final line without
// a terminator is still a line.
func eachLine(ctx context.Context, r io.Reader, fn func(raw, stripped string) error) error {
	br := bufio.NewReaderSize(r, readBufSize)
	for n := 0; ; n++ {
		if n%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		raw, err := br.ReadString('\n')
		if raw != "" {
			if ferr := fn(raw, strings.TrimSpace(raw)); ferr != nil {
				return ferr
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
