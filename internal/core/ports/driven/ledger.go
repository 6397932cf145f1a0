package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/triage/internal/core/domain"
)

// EmailLedger stores history records together with their vectors.
type EmailLedger interface {
	// Exists reports whether a record with this ID is stored.
	Exists(ctx context.Context, id string) (bool, error)

	// Insert writes the record and its vector as one unit: either both are
	// stored or neither is. Inserting an existing ID is a no-op and returns
	// false.
	Insert(ctx context.Context, record domain.EmailRecord, vector domain.VectorEntry) (bool, error)

	// Get retrieves a record by ID. Returns domain.ErrNotFound if absent.
	Get(ctx context.Context, id string) (*domain.EmailRecord, error)

	// GetByVectorID resolves a vector hit to its record.
	GetByVectorID(ctx context.Context, vectorID string) (*domain.EmailRecord, error)

	// SearchVectors returns up to k hits ordered by cosine similarity.
	SearchVectors(ctx context.Context, query []float32, k int) ([]domain.VectorHit, error)

	// ListByDateRange returns records received in [from, to), newest first.
	ListByDateRange(ctx context.Context, from, to time.Time) ([]domain.EmailRecord, error)

	// Count returns the number of records and the number of vectors.
	Count(ctx context.Context) (records, vectors int, err error)
}
