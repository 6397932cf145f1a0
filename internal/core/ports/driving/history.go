package driving

import (
	"context"

	"github.com/custodia-labs/triage/internal/core/domain"
)

// HistoryService exposes the email history ledger.
type HistoryService interface {
	// AddEmail stores a record and its vector. Idempotent by ID.
	AddEmail(ctx context.Context, record domain.EmailRecord) error

	// SearchSimilar returns at most k records ranked by similarity.
	SearchSimilar(ctx context.Context, query string, k int) ([]domain.EmailMatch, error)

	// SyncFromWatermark pulls new messages from the mailbox into the ledger.
	SyncFromWatermark(ctx context.Context) (*domain.SyncReport, error)

	// Recent returns records received in the last days, newest first.
	Recent(ctx context.Context, days int) ([]domain.EmailRecord, error)
}
