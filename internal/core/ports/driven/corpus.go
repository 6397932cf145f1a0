package driven

import (
	"context"

	"github.com/custodia-labs/triage/internal/core/domain"
)

// CorpusLoader enumerates the knowledge base.
type CorpusLoader interface {
	// Load returns every readable document under root.
	// A missing root is reported with domain.ErrIngestion.
	Load(ctx context.Context, root string) ([]domain.Document, error)
}

// Normaliser extracts text from one kind of corpus file.
type Normaliser interface {
	// SupportedMIMETypes returns the MIME types this normaliser handles.
	SupportedMIMETypes() []string

	// Priority returns the selection priority (higher = preferred).
	Priority() int

	// Normalise transforms a raw file into a document.
	Normalise(ctx context.Context, raw *domain.RawDocument) (*domain.Document, error)
}
