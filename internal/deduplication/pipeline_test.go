package deduplication

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/steveyegge/dedup/internal/corpus"
	"github.com/steveyegge/dedup/internal/logging"
	"github.com/steveyegge/dedup/internal/lsh"
	"github.com/steveyegge/dedup/internal/storage"
	"github.com/steveyegge/dedup/internal/storage/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// words returns n space-separated tokens "<prefix>0 <prefix>1 ...".
func words(prefix string, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("%s%d", prefix, i)
	}
	return strings.Join(parts, " ")
}

func writeDoc(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func outputNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func newTestPipeline(t *testing.T, cfg Config, opts ...Option) *Pipeline {
	t.Helper()
	p, err := NewPipeline(cfg, opts...)
	require.NoError(t, err)
	return p
}

func TestNear_IdenticalDocumentsKeepOne(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	text := words("lorem", 60)
	a := writeDoc(t, in, "a.txt", text)
	b := writeDoc(t, in, "b.txt", text)

	kept, err := DeduplicateNearDuplicates(context.Background(), []string{a, b}, 100, 10, 5, 0.8, out)
	require.NoError(t, err)

	assert.Len(t, kept, 1)
	assert.Contains(t, kept, "a.txt", "the earlier document is retained")
	assert.Equal(t, []string{"a.txt"}, outputNames(t, out))
}

func TestNear_ResultDetails(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	base := words("tok", 200)
	edited := strings.Replace(base, "tok100 ", "changed ", 1)
	inputs := []string{
		writeDoc(t, in, "orig.txt", base),
		writeDoc(t, in, "other.txt", words("zzz", 200)),
		writeDoc(t, in, "edit.txt", edited),
	}

	res, err := newTestPipeline(t, DefaultConfig()).DeduplicateNearDuplicates(context.Background(), inputs, out)
	require.NoError(t, err)
	require.NoError(t, res.Validate())

	assert.Equal(t, []string{"orig.txt", "other.txt"}, res.Kept)
	assert.Equal(t, map[string]string{"edit.txt": "orig.txt"}, res.DuplicateOf)
	assert.Greater(t, res.Similarity["edit.txt"], 0.8)
	assert.Less(t, res.Similarity["edit.txt"], 1.0+1e-9)
	assert.Equal(t, []string{filepath.Join(out, "orig.txt"), filepath.Join(out, "other.txt")}, res.Outputs)
	assert.Equal(t, 3, res.Stats.TotalDocuments)
	assert.Positive(t, res.Stats.CandidatesCompared)
	assert.Positive(t, res.Stats.Buckets)
}

func TestNear_OutputIsByteIdentical(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	content := "  Title\r\n\n" + words("body", 80) + "\n\ttrailing tab\t"
	path := writeDoc(t, in, "doc.txt", content)

	_, err := newTestPipeline(t, DefaultConfig()).DeduplicateNearDuplicates(context.Background(), []string{path}, out)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(out, "doc.txt"))
	require.NoError(t, err)
	assert.Equal(t, content, string(data))
}

func TestNear_EmptyDocumentsAlwaysKept(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	inputs := []string{
		writeDoc(t, in, "short1.txt", "too short"),
		writeDoc(t, in, "short2.txt", "too short"),
		writeDoc(t, in, "blank.txt", ""),
		writeDoc(t, in, "long.txt", words("x", 50)),
	}

	res, err := newTestPipeline(t, DefaultConfig()).DeduplicateNearDuplicates(context.Background(), inputs, out)
	require.NoError(t, err)
	require.NoError(t, res.Validate())

	assert.Equal(t, []string{"short1.txt", "short2.txt", "blank.txt", "long.txt"}, res.Kept)
	assert.Equal(t, 3, res.Stats.EmptyDocuments)
	assert.Empty(t, res.DuplicateOf)
}

func TestNear_UnionFindMode(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	text := words("same", 70)
	inputs := []string{
		writeDoc(t, in, "one.txt", words("diff", 70)),
		writeDoc(t, in, "two.txt", text),
		writeDoc(t, in, "three.txt", text),
		writeDoc(t, in, "four.txt", text),
	}
	cfg := DefaultConfig()
	cfg.ClusterMode = "union-find"
	cfg.Workers = 2

	res, err := newTestPipeline(t, cfg).DeduplicateNearDuplicates(context.Background(), inputs, out)
	require.NoError(t, err)
	require.NoError(t, res.Validate())

	assert.Equal(t, []string{"one.txt", "two.txt"}, res.Kept)
	assert.Equal(t, map[string]string{"three.txt": "two.txt", "four.txt": "two.txt"}, res.DuplicateOf)
	assert.Len(t, res.Pairs, 3)
}

func TestNear_ConfigErrorBeforeWork(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	a := writeDoc(t, in, "a.txt", words("w", 60))

	_, err := DeduplicateNearDuplicates(context.Background(), []string{a}, 100, 7, 5, 0.8, out)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.ErrorIs(t, err, lsh.ErrBandMismatch)
	assert.Empty(t, outputNames(t, out))
}

func TestNear_InputErrors(t *testing.T) {
	p := newTestPipeline(t, DefaultConfig())
	in1, in2, out := t.TempDir(), t.TempDir(), t.TempDir()

	t.Run("duplicate base names", func(t *testing.T) {
		a := writeDoc(t, in1, "doc.txt", "a")
		b := writeDoc(t, in2, "doc.txt", "b")
		_, err := p.DeduplicateNearDuplicates(context.Background(), []string{a, b}, out)
		assert.ErrorIs(t, err, corpus.ErrDuplicateName)
	})

	t.Run("missing input", func(t *testing.T) {
		_, err := p.DeduplicateNearDuplicates(context.Background(), []string{filepath.Join(in1, "gone.txt")}, out)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("missing output directory", func(t *testing.T) {
		a := writeDoc(t, in1, "ok.txt", "a")
		_, err := p.DeduplicateNearDuplicates(context.Background(), []string{a}, filepath.Join(out, "nope"))
		assert.Error(t, err)
	})

	t.Run("no inputs", func(t *testing.T) {
		_, err := p.DeduplicateNearDuplicates(context.Background(), nil, out)
		assert.ErrorIs(t, err, corpus.ErrNoInputs)
	})
}

func TestNear_DeterministicAcrossWorkerCounts(t *testing.T) {
	in := t.TempDir()
	var inputs []string
	for i := 0; i < 20; i++ {
		// Pairs of documents share most of their text.
		text := words(fmt.Sprintf("g%d-", i/2), 60) + fmt.Sprintf(" tail%d", i)
		inputs = append(inputs, writeDoc(t, in, fmt.Sprintf("d%02d.txt", i), text))
	}

	var results []*NearResult
	for _, workers := range []int{1, 8} {
		cfg := DefaultConfig()
		cfg.Workers = workers
		res, err := newTestPipeline(t, cfg).DeduplicateNearDuplicates(context.Background(), inputs, t.TempDir())
		require.NoError(t, err)
		results = append(results, res)
	}
	assert.Equal(t, results[0].Kept, results[1].Kept)
	assert.Equal(t, results[0].DuplicateOf, results[1].DuplicateOf)
	assert.Len(t, results[0].Kept, 10)
}

func TestLines_RepeatedLineRemovedFromBothFiles(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	x := writeDoc(t, in, "x.txt", "hello world\nunique to x\nhello world\n")
	y := writeDoc(t, in, "y.txt", "hello world\n")

	require.NoError(t, DeduplicateExactLines(context.Background(), []string{x, y}, out))

	xs, err := os.ReadFile(filepath.Join(out, "x.txt"))
	require.NoError(t, err)
	ys, err := os.ReadFile(filepath.Join(out, "y.txt"))
	require.NoError(t, err)
	assert.NotContains(t, string(xs), "hello world")
	assert.NotContains(t, string(ys), "hello world")
	assert.Contains(t, string(xs), "unique to x")
}

func TestLines_ResultStats(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	inputs := []string{
		writeDoc(t, in, "a.txt", "one\ntwo\n\nthree\n"),
		writeDoc(t, in, "b.txt", "two\nfour\n"),
	}
	cfg := DefaultConfig()
	cfg.LineCounter = "bloom"
	cfg.BloomExpectedLines = 1000

	res, err := newTestPipeline(t, cfg).DeduplicateExactLines(context.Background(), inputs, out)
	require.NoError(t, err)
	require.NoError(t, res.Validate())

	assert.Equal(t, 2, res.Stats.TotalFiles)
	assert.Equal(t, 6, res.Stats.TotalLines)
	assert.Equal(t, 3, res.Stats.KeptLines)
	assert.Equal(t, 3, res.Stats.RemovedLines)
	assert.Equal(t, 1, res.Stats.DuplicateFingerprints)
	assert.Equal(t, "bloom", res.Stats.Counter)
}

func TestPipeline_RecordsReports(t *testing.T) {
	ctx := context.Background()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "report.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	in := t.TempDir()
	text := words("rep", 60)
	docs := []string{writeDoc(t, in, "a.txt", text), writeDoc(t, in, "b.txt", text)}
	p := newTestPipeline(t, DefaultConfig(), WithStore(store))

	_, err = p.DeduplicateNearDuplicates(ctx, docs, t.TempDir())
	require.NoError(t, err)
	_, err = p.DeduplicateExactLines(ctx, docs, t.TempDir())
	require.NoError(t, err)

	runs, err := store.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	var nearID, linesID string
	for _, r := range runs {
		switch r.Kind {
		case storage.RunNear:
			nearID = r.ID
			assert.Equal(t, 2, r.Inputs)
			assert.Equal(t, 1, r.Kept)
			assert.Equal(t, 1, r.Removed)
		case storage.RunLines:
			linesID = r.ID
		}
	}
	require.NotEmpty(t, nearID)
	require.NotEmpty(t, linesID)

	decisions, err := store.GetDecisions(ctx, nearID)
	require.NoError(t, err)
	require.Len(t, decisions, 2)
	assert.True(t, decisions[0].Kept)
	assert.Equal(t, "a.txt", decisions[1].DuplicateOf)
	assert.InDelta(t, 1.0, decisions[1].Similarity, 1e-9)

	stats, err := store.GetLineStats(ctx, linesID)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, 0, stats[0].Kept, "the only line is shared by both files")
}

type failingStore struct{ storage.Store }

func (failingStore) RecordRun(context.Context, *storage.RunReport) error {
	return errors.New("disk full")
}

func TestPipeline_ReportFailureIsLoggedNotFatal(t *testing.T) {
	var logs bytes.Buffer
	logger, err := logging.New(&logs, "info")
	require.NoError(t, err)

	in, out := t.TempDir(), t.TempDir()
	doc := writeDoc(t, in, "a.txt", words("w", 60))
	p := newTestPipeline(t, DefaultConfig(), WithStore(failingStore{}), WithLogger(logger))

	res, err := p.DeduplicateNearDuplicates(context.Background(), []string{doc}, out)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt"}, res.Kept)
	assert.Contains(t, logs.String(), "failed to record run report")
}

func TestNewPipeline_RejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NgramSize = 0
	_, err := NewPipeline(cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestPipeline_OutputDirLock(t *testing.T) {
	p := newTestPipeline(t, DefaultConfig())
	in, out := t.TempDir(), t.TempDir()
	a := writeDoc(t, in, "a.txt", words("w", 20))

	release, err := corpus.LockOutputDir(out, "other run")
	require.NoError(t, err)

	_, err = p.DeduplicateNearDuplicates(context.Background(), []string{a}, out)
	assert.ErrorIs(t, err, corpus.ErrLocked)
	_, err = p.DeduplicateExactLines(context.Background(), []string{a}, out)
	assert.ErrorIs(t, err, corpus.ErrLocked)

	require.NoError(t, release())
	_, err = p.DeduplicateNearDuplicates(context.Background(), []string{a}, out)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt"}, outputNames(t, out), "lock is removed after the run")
}

func TestPipeline_InputErrorsPrecedeOutputDir(t *testing.T) {
	p := newTestPipeline(t, DefaultConfig())
	ctx := context.Background()
	missing := filepath.Join(t.TempDir(), "nope")

	_, err := p.DeduplicateExactLines(ctx, nil, missing)
	assert.ErrorIs(t, err, corpus.ErrNoInputs)
	_, err = p.DeduplicateNearDuplicates(ctx, nil, missing)
	assert.ErrorIs(t, err, corpus.ErrNoInputs)

	in1, in2, out := t.TempDir(), t.TempDir(), t.TempDir()
	a := writeDoc(t, in1, "doc.txt", "shared\n")
	b := writeDoc(t, in2, "doc.txt", "shared\n")
	_, err = p.DeduplicateExactLines(ctx, []string{a, b}, out)
	assert.ErrorIs(t, err, corpus.ErrDuplicateName)
	assert.Empty(t, outputNames(t, out), "nothing is created in the output directory")
}
