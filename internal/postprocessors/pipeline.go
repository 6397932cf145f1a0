// Package postprocessors turns normalised corpus documents into the chunks
// held by the retrieval index.
package postprocessors

import (
	"context"
	"fmt"

	"github.com/custodia-labs/triage/internal/core/domain"
	"github.com/custodia-labs/triage/internal/core/ports/driven"
	"github.com/custodia-labs/triage/internal/logger"
)

// Ensure Pipeline implements the interface.
var _ driven.PostProcessorPipeline = (*Pipeline)(nil)

// Pipeline runs a chunk-producing processor followed by any refiners.
type Pipeline struct {
	processors []driven.PostProcessor
}

// NewPipeline creates a pipeline that runs processors in the order given.
func NewPipeline(processors ...driven.PostProcessor) *Pipeline {
	return &Pipeline{processors: processors}
}

// Process chunks doc. Every returned chunk belongs to doc and ordinals
// run 0..n-1 in document order.
func (p *Pipeline) Process(ctx context.Context, doc *domain.Document) ([]domain.Chunk, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: document is nil", domain.ErrInvalidInput)
	}

	var chunks []domain.Chunk
	for _, processor := range p.processors {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var err error
		chunks, err = processor.Process(ctx, doc, chunks)
		if err != nil {
			return nil, fmt.Errorf("processor %s: %w", processor.Name(), err)
		}
	}

	for i := range chunks {
		if chunks[i].SourceID == "" {
			chunks[i].SourceID = doc.ID
		}
		if chunks[i].SourceID != doc.ID {
			return nil, fmt.Errorf("chunk %d of %s claims source %s", i, doc.ID, chunks[i].SourceID)
		}
		chunks[i].Ordinal = i
	}

	logger.Debug("document chunked", "doc", doc.ID, "chunks", len(chunks))
	return chunks, nil
}

// Names lists the processors in execution order.
func (p *Pipeline) Names() []string {
	names := make([]string, len(p.processors))
	for i, proc := range p.processors {
		names[i] = proc.Name()
	}
	return names
}

// Len returns the number of processors in the pipeline.
func (p *Pipeline) Len() int {
	return len(p.processors)
}
