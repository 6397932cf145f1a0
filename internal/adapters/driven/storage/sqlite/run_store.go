package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/custodia-labs/triage/internal/core/domain"
	"github.com/custodia-labs/triage/internal/core/ports/driven"
)

// runStore implements driven.RunStore over poll_runs.
type runStore struct {
	store *Store
}

var _ driven.RunStore = (*runStore)(nil)

// Record stores a cycle result and assigns its ID.
func (s *runStore) Record(ctx context.Context, r *domain.CycleResult) error {
	if r == nil {
		return domain.ErrInvalidInput
	}
	res, err := s.store.db.ExecContext(ctx, `
		INSERT INTO poll_runs (started_at, ended_at, synced, listed, drafted, skipped, failed, sync_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, toUnix(r.StartedAt), toUnix(r.EndedAt), r.Synced, r.Listed,
		r.Drafted, r.Skipped, r.Failed, nullString(r.SyncError))
	if err != nil {
		return fmt.Errorf("recording poll run: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		r.ID = id
	}
	return nil
}

// Recent returns the latest results, newest first.
func (s *runStore) Recent(ctx context.Context, limit int) ([]domain.CycleResult, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, started_at, ended_at, synced, listed, drafted, skipped, failed, sync_error
		FROM poll_runs ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying poll runs: %w", err)
	}
	defer rows.Close()

	var out []domain.CycleResult
	for rows.Next() {
		var r domain.CycleResult
		var started, ended int64
		var syncErr sql.NullString
		if err := rows.Scan(&r.ID, &started, &ended, &r.Synced, &r.Listed,
			&r.Drafted, &r.Skipped, &r.Failed, &syncErr); err != nil {
			return nil, fmt.Errorf("scanning poll run: %w", err)
		}
		r.StartedAt = fromUnix(started)
		r.EndedAt = fromUnix(ended)
		r.SyncError = syncErr.String
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating poll runs: %w", err)
	}
	return out, nil
}

// Prune keeps only the newest keep results.
func (s *runStore) Prune(ctx context.Context, keep int) error {
	_, err := s.store.db.ExecContext(ctx, `
		DELETE FROM poll_runs WHERE id NOT IN (
			SELECT id FROM poll_runs ORDER BY id DESC LIMIT ?
		)
	`, keep)
	if err != nil {
		return fmt.Errorf("pruning poll runs: %w", err)
	}
	return nil
}
