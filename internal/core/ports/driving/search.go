package driving

import (
	"context"

	"github.com/custodia-labs/triage/internal/core/domain"
)

// KnowledgeSearch provides hybrid retrieval over the knowledge base.
type KnowledgeSearch interface {
	// Search returns at most k chunks ranked by max(dense, lexical) score.
	// An empty index yields an empty result, never an error.
	Search(ctx context.Context, query string, k int) ([]domain.ScoredChunk, error)
}

// KnowledgeIndexer rebuilds the knowledge base index.
type KnowledgeIndexer interface {
	// Rebuild ingests the corpus, indexes it and saves a snapshot.
	// It returns the number of chunks indexed.
	Rebuild(ctx context.Context) (int, error)
}
