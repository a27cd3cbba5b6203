package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/steveyegge/dedup/internal/storage"
)

// RecordRun stores a run and its detail rows atomically.
func (s *SQLiteStorage) RecordRun(ctx context.Context, report *storage.RunReport) error {
	if err := report.Validate(); err != nil {
		return fmt.Errorf("invalid run report: %w", err)
	}
	if report.ID == "" {
		report.ID = uuid.NewString()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, kind, started_at, finished_at, output_dir, config, inputs, kept, removed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, report.ID, string(report.Kind),
		report.StartedAt.UnixMilli(), report.FinishedAt.UnixMilli(),
		report.OutputDir, report.Config, report.Inputs, report.Kept, report.Removed)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	if len(report.Decisions) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO document_decisions (run_id, position, document, kept, duplicate_of, similarity)
			VALUES (?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare decision insert: %w", err)
		}
		defer func() { _ = stmt.Close() }()
		for _, d := range report.Decisions {
			if _, err := stmt.ExecContext(ctx, report.ID, d.Position, d.Document, d.Kept, d.DuplicateOf, d.Similarity); err != nil {
				return fmt.Errorf("failed to insert decision for %s: %w", d.Document, err)
			}
		}
	}

	if len(report.LineStats) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO line_stats (run_id, position, file, lines, non_empty, kept)
			VALUES (?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare line stat insert: %w", err)
		}
		defer func() { _ = stmt.Close() }()
		for _, l := range report.LineStats {
			if _, err := stmt.ExecContext(ctx, report.ID, l.Position, l.File, l.Lines, l.NonEmpty, l.Kept); err != nil {
				return fmt.Errorf("failed to insert line stats for %s: %w", l.File, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

// ListRuns returns up to limit runs, newest first. limit <= 0 means all.
func (s *SQLiteStorage) ListRuns(ctx context.Context, limit int) ([]*storage.RunSummary, error) {
	query := `
		SELECT id, kind, started_at, finished_at, output_dir, config, inputs, kept, removed
		FROM runs
		ORDER BY started_at DESC, id
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*storage.RunSummary
	for rows.Next() {
		run := &storage.RunSummary{}
		var kind string
		var started, finished int64
		err := rows.Scan(
			&run.ID,
			&kind,
			&started,
			&finished,
			&run.OutputDir,
			&run.Config,
			&run.Inputs,
			&run.Kept,
			&run.Removed,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run.Kind = storage.RunKind(kind)
		run.StartedAt = time.UnixMilli(started)
		run.FinishedAt = time.UnixMilli(finished)
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run rows: %w", err)
	}
	return runs, nil
}

// GetDecisions returns the decisions recorded for runID in input order.
func (s *SQLiteStorage) GetDecisions(ctx context.Context, runID string) ([]*storage.DocumentDecision, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT position, document, kept, duplicate_of, similarity
		FROM document_decisions
		WHERE run_id = ?
		ORDER BY position ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query decisions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var decisions []*storage.DocumentDecision
	for rows.Next() {
		d := &storage.DocumentDecision{}
		if err := rows.Scan(&d.Position, &d.Document, &d.Kept, &d.DuplicateOf, &d.Similarity); err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}
		decisions = append(decisions, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating decision rows: %w", err)
	}
	return decisions, nil
}

// GetLineStats returns the per-file stats recorded for runID in input order.
func (s *SQLiteStorage) GetLineStats(ctx context.Context, runID string) ([]*storage.LineStat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT position, file, lines, non_empty, kept
		FROM line_stats
		WHERE run_id = ?
		ORDER BY position ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query line stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var stats []*storage.LineStat
	for rows.Next() {
		l := &storage.LineStat{}
		if err := rows.Scan(&l.Position, &l.File, &l.Lines, &l.NonEmpty, &l.Kept); err != nil {
			return nil, fmt.Errorf("failed to scan line stats: %w", err)
		}
		stats = append(stats, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating line stat rows: %w", err)
	}
	return stats, nil
}
