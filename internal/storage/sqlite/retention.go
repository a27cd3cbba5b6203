package sqlite

import (
	"context"
	"fmt"
	"time"
)

// pruneBatchSize bounds how many runs one delete transaction removes.
const pruneBatchSize = 500

// PruneRuns deletes runs started before cutoff. Decision and line-stat rows
// go with their run through ON DELETE CASCADE. Deletes are batched so a large
// backlog does not hold the write lock for long.
func (s *SQLiteStorage) PruneRuns(ctx context.Context, cutoff time.Time) (int, error) {
	if cutoff.IsZero() {
		return 0, fmt.Errorf("prune cutoff must be set")
	}

	total := 0
	for {
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		default:
		}

		res, err := s.db.ExecContext(ctx, `
			DELETE FROM runs
			WHERE id IN (
				SELECT id FROM runs
				WHERE started_at < ?
				ORDER BY started_at
				LIMIT ?
			)
		`, cutoff.UnixMilli(), pruneBatchSize)
		if err != nil {
			return total, fmt.Errorf("failed to prune runs: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("failed to count pruned runs: %w", err)
		}
		total += int(n)
		if n < pruneBatchSize {
			return total, nil
		}
	}
}
