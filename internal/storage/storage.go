// Package storage defines the run-report store: an audit log of deduplication
// runs. Nothing stored here is read back into a run.
package storage

import (
	"context"
	"fmt"
	"time"
)

// RunKind identifies which algorithm a run executed.
type RunKind string

const (
	RunLines RunKind = "lines"
	RunNear  RunKind = "near"
)

// Store records and lists runs.
type Store interface {
	// RecordRun persists report and its per-document or per-file rows in one
	// transaction. An empty report.ID is filled with a new run ID.
	RecordRun(ctx context.Context, report *RunReport) error

	// ListRuns returns the most recent runs, newest first.
	ListRuns(ctx context.Context, limit int) ([]*RunSummary, error)

	// GetDecisions returns the document decisions of a near-duplicate run in
	// input order.
	GetDecisions(ctx context.Context, runID string) ([]*DocumentDecision, error)

	// GetLineStats returns the per-file stats of a line run in input order.
	GetLineStats(ctx context.Context, runID string) ([]*LineStat, error)

	// PruneRuns deletes runs started before cutoff, together with their
	// decisions and line stats, and returns how many runs were removed.
	PruneRuns(ctx context.Context, cutoff time.Time) (int, error)

	Close() error
}

// RunSummary is one row of the runs table.
type RunSummary struct {
	ID         string    `json:"id"`
	Kind       RunKind   `json:"kind"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	OutputDir  string    `json:"output_dir"`
	Config     string    `json:"config"`
	Inputs     int       `json:"inputs"`
	Kept       int       `json:"kept"`
	Removed    int       `json:"removed"`
}

// Duration returns the wall time of the run.
func (r *RunSummary) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// DocumentDecision records the fate of one document in a near-duplicate run.
type DocumentDecision struct {
	Document    string  `json:"document"`
	Position    int     `json:"position"`
	Kept        bool    `json:"kept"`
	DuplicateOf string  `json:"duplicate_of,omitempty"`
	Similarity  float64 `json:"similarity,omitempty"`
}

// LineStat records the line counts of one file in a line run.
type LineStat struct {
	File     string `json:"file"`
	Position int    `json:"position"`
	Lines    int    `json:"lines"`
	NonEmpty int    `json:"non_empty"`
	Kept     int    `json:"kept"`
}

// RunReport is everything recorded for one run.
type RunReport struct {
	RunSummary
	Decisions []*DocumentDecision `json:"decisions,omitempty"`
	LineStats []*LineStat         `json:"line_stats,omitempty"`
}

// Validate checks the report before it is written.
func (r *RunReport) Validate() error {
	switch r.Kind {
	case RunLines:
		if len(r.Decisions) > 0 {
			return fmt.Errorf("lines run cannot carry document decisions")
		}
	case RunNear:
		if len(r.LineStats) > 0 {
			return fmt.Errorf("near run cannot carry line stats")
		}
	default:
		return fmt.Errorf("invalid run kind %q", r.Kind)
	}
	if r.StartedAt.IsZero() {
		return fmt.Errorf("started_at must be set")
	}
	if r.FinishedAt.Before(r.StartedAt) {
		return fmt.Errorf("finished_at (%v) is before started_at (%v)", r.FinishedAt, r.StartedAt)
	}
	if r.Inputs < 0 || r.Kept < 0 || r.Removed < 0 {
		return fmt.Errorf("counts cannot be negative (inputs=%d kept=%d removed=%d)", r.Inputs, r.Kept, r.Removed)
	}
	for _, d := range r.Decisions {
		if d.Kept && d.DuplicateOf != "" {
			return fmt.Errorf("document %s: duplicate_of should not be set when kept", d.Document)
		}
		if !d.Kept && d.DuplicateOf == "" {
			return fmt.Errorf("document %s: duplicate_of must be set when dropped", d.Document)
		}
	}
	return nil
}
