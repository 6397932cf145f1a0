package driven

import (
	"context"

	"github.com/custodia-labs/triage/internal/core/domain"
)

// WatermarkStore persists the history sync cursor.
type WatermarkStore interface {
	// Get returns the stored cursor. ok is false when none was saved yet.
	Get(ctx context.Context) (cursor uint64, ok bool, err error)

	// Save replaces the stored cursor.
	Save(ctx context.Context, cursor uint64) error
}

// ProcessedStore persists the IDs of messages that already received a draft.
// The set only grows.
type ProcessedStore interface {
	Contains(ctx context.Context, id string) (bool, error)

	// Add records an ID. Adding a known ID is a no-op.
	Add(ctx context.Context, id string) error

	// List returns the IDs in insertion order.
	List(ctx context.Context) ([]string, error)
}

// IndexSnapshotStore persists the retrieval index.
type IndexSnapshotStore interface {
	// Save replaces the stored snapshot.
	Save(ctx context.Context, snapshot *domain.IndexSnapshot) error

	// Load returns the stored snapshot, or domain.ErrNotFound.
	Load(ctx context.Context) (*domain.IndexSnapshot, error)

	// Close releases resources.
	Close() error
}

// RunStore records polling cycle outcomes.
type RunStore interface {
	// Record stores a cycle result.
	Record(ctx context.Context, result *domain.CycleResult) error

	// Recent returns the latest results, newest first.
	Recent(ctx context.Context, limit int) ([]domain.CycleResult, error)

	// Prune keeps only the newest keep results.
	Prune(ctx context.Context, keep int) error
}
