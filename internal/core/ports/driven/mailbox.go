package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/triage/internal/core/domain"
)

// MessageSource reads messages from the mailbox.
type MessageSource interface {
	// ListUnprocessed returns candidate messages awaiting a draft.
	ListUnprocessed(ctx context.Context) ([]domain.MessageSummary, error)

	// Get fetches a full message.
	Get(ctx context.Context, id string) (*domain.Message, error)

	// ListSince returns one page of messages added after cursor.
	// Returns domain.ErrCursorExpired when the cursor is too old.
	ListSince(ctx context.Context, cursor uint64, pageToken string) (*domain.HistoryPage, error)

	// ListWindow returns one page of messages received after since.
	ListWindow(ctx context.Context, since time.Time, pageToken string) (*domain.HistoryPage, error)

	// CurrentCursor returns the mailbox's latest history position.
	CurrentCursor(ctx context.Context) (uint64, error)
}

// DraftSink persists replies and marks handled messages.
type DraftSink interface {
	// CreateDraft stores an unsent reply in its thread and returns the draft ID.
	CreateDraft(ctx context.Context, reply domain.Reply) (string, error)

	// ApplyLabel adds a label to a message, creating the label if needed.
	ApplyLabel(ctx context.Context, messageID, label string) error
}
