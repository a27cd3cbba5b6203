package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/steveyegge/dedup/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *SQLiteStorage {
	t.Helper()

	store, err := New(filepath.Join(t.TempDir(), "reports", "dedup.db"))
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func nearReport(started time.Time) *storage.RunReport {
	return &storage.RunReport{
		RunSummary: storage.RunSummary{
			Kind:       storage.RunNear,
			StartedAt:  started,
			FinishedAt: started.Add(1500 * time.Millisecond),
			OutputDir:  "/tmp/out",
			Config:     "Config{NumHashes: 100}",
			Inputs:     3,
			Kept:       2,
			Removed:    1,
		},
		Decisions: []*storage.DocumentDecision{
			{Document: "a.txt", Position: 0, Kept: true},
			{Document: "b.txt", Position: 1, Kept: false, DuplicateOf: "a.txt", Similarity: 0.93},
			{Document: "c.txt", Position: 2, Kept: true},
		},
	}
}

func TestRecordRun_Near(t *testing.T) {
	ctx := context.Background()
	store := setupTestDB(t)

	started := time.UnixMilli(time.Now().UnixMilli())
	report := nearReport(started)
	if err := store.RecordRun(ctx, report); err != nil {
		t.Fatalf("Failed to record run: %v", err)
	}
	if report.ID == "" {
		t.Fatal("Expected run ID to be assigned")
	}

	runs, err := store.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	got := runs[0]
	assert.Equal(t, report.ID, got.ID)
	assert.Equal(t, storage.RunNear, got.Kind)
	assert.True(t, got.StartedAt.Equal(started))
	assert.Equal(t, 1500*time.Millisecond, got.Duration())
	assert.Equal(t, 3, got.Inputs)
	assert.Equal(t, 2, got.Kept)
	assert.Equal(t, 1, got.Removed)
	assert.Equal(t, "Config{NumHashes: 100}", got.Config)

	decisions, err := store.GetDecisions(ctx, report.ID)
	require.NoError(t, err)
	require.Len(t, decisions, 3)
	assert.Equal(t, "a.txt", decisions[0].Document)
	assert.True(t, decisions[0].Kept)
	assert.False(t, decisions[1].Kept)
	assert.Equal(t, "a.txt", decisions[1].DuplicateOf)
	assert.InDelta(t, 0.93, decisions[1].Similarity, 1e-9)

	lines, err := store.GetLineStats(ctx, report.ID)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestRecordRun_Lines(t *testing.T) {
	ctx := context.Background()
	store := setupTestDB(t)

	now := time.Now()
	report := &storage.RunReport{
		RunSummary: storage.RunSummary{
			Kind:       storage.RunLines,
			StartedAt:  now,
			FinishedAt: now,
			Inputs:     2,
			Kept:       5,
			Removed:    3,
		},
		LineStats: []*storage.LineStat{
			{File: "x.txt", Position: 0, Lines: 4, NonEmpty: 4, Kept: 2},
			{File: "y.txt", Position: 1, Lines: 5, NonEmpty: 4, Kept: 3},
		},
	}
	require.NoError(t, store.RecordRun(ctx, report))

	stats, err := store.GetLineStats(ctx, report.ID)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, "y.txt", stats[1].File)
	assert.Equal(t, 5, stats[1].Lines)
	assert.Equal(t, 3, stats[1].Kept)
}

func TestListRuns_NewestFirstWithLimit(t *testing.T) {
	ctx := context.Background()
	store := setupTestDB(t)

	base := time.Now().Add(-time.Hour)
	var ids []string
	for i := 0; i < 3; i++ {
		r := nearReport(base.Add(time.Duration(i) * time.Minute))
		require.NoError(t, store.RecordRun(ctx, r))
		ids = append(ids, r.ID)
	}

	runs, err := store.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, ids[2], runs[0].ID)
	assert.Equal(t, ids[1], runs[1].ID)

	all, err := store.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestRecordRun_RejectsInvalidReport(t *testing.T) {
	ctx := context.Background()
	store := setupTestDB(t)

	tests := []struct {
		name   string
		mutate func(r *storage.RunReport)
	}{
		{"unknown kind", func(r *storage.RunReport) { r.Kind = "fuzzy" }},
		{"missing start", func(r *storage.RunReport) { r.StartedAt = time.Time{} }},
		{"finish before start", func(r *storage.RunReport) { r.FinishedAt = r.StartedAt.Add(-time.Second) }},
		{"dropped without target", func(r *storage.RunReport) { r.Decisions[1].DuplicateOf = "" }},
		{"kept with target", func(r *storage.RunReport) { r.Decisions[0].DuplicateOf = "b.txt" }},
		{"line stats on near run", func(r *storage.RunReport) { r.LineStats = []*storage.LineStat{{File: "x"}} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := nearReport(time.Now())
			tt.mutate(r)
			if err := store.RecordRun(ctx, r); err == nil {
				t.Errorf("Expected error for %s", tt.name)
			}
		})
	}

	runs, err := store.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, runs, "rejected reports must not be stored")
}

func TestRecordRun_DuplicateDocumentRollsBack(t *testing.T) {
	ctx := context.Background()
	store := setupTestDB(t)

	r := nearReport(time.Now())
	r.Decisions = append(r.Decisions, &storage.DocumentDecision{Document: "a.txt", Position: 3, Kept: true})
	assert.Error(t, store.RecordRun(ctx, r))

	runs, err := store.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, runs, "failed insert must roll back the run row")
}

func TestNew_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "dedup.db")

	store, err := New(path)
	require.NoError(t, err)
	require.NoError(t, store.RecordRun(ctx, nearReport(time.Now())))
	require.NoError(t, store.Close())

	reopened, err := New(path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	runs, err := reopened.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
