package driven

import (
	"context"

	"github.com/custodia-labs/triage/internal/core/domain"
)

// NormaliserRegistry selects the normaliser for a corpus file.
type NormaliserRegistry interface {
	// Normalise converts raw with the highest-priority matching normaliser.
	Normalise(ctx context.Context, raw *domain.RawDocument) (*domain.Document, error)

	// Register adds a normaliser.
	Register(normaliser Normaliser)

	// SupportedMIMETypes returns every MIME type that can be normalised.
	SupportedMIMETypes() []string
}
