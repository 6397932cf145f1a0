// Package chunker provides a fixed-size overlapping window chunker.
package chunker

import (
	"context"
	"strconv"

	"github.com/google/uuid"

	"github.com/custodia-labs/triage/internal/core/domain"
)

// DefaultChunkSize is the default number of characters per chunk.
const DefaultChunkSize = 1000

// DefaultChunkOverlap is the default number of characters shared by neighbouring chunks.
const DefaultChunkOverlap = 200

// chunkNamespace seeds deterministic chunk IDs.
var chunkNamespace = uuid.MustParse("6f1c9a52-2f1e-4d8e-9a63-0d6f3b1c4e21")

// Processor splits document content into fixed-size windows.
// It implements the PostProcessor interface.
type Processor struct {
	chunkSize int
	overlap   int
}

// Option configures the chunker processor.
type Option func(*Processor)

// WithChunkSize sets the chunk size in characters.
func WithChunkSize(size int) Option {
	return func(p *Processor) {
		if size > 0 {
			p.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between chunks in characters.
func WithOverlap(overlap int) Option {
	return func(p *Processor) {
		if overlap >= 0 {
			p.overlap = overlap
		}
	}
}

// New creates a new chunker processor with the given options.
func New(opts ...Option) *Processor {
	p := &Processor{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
	}

	for _, opt := range opts {
		opt(p)
	}

	// Overlap must leave room for the window to advance.
	if p.overlap >= p.chunkSize {
		p.overlap = p.chunkSize / 4
	}

	return p
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "chunker"
}

// Size returns the window size in characters.
func (p *Processor) Size() int {
	return p.chunkSize
}

// Overlap returns the number of characters shared by consecutive windows.
func (p *Processor) Overlap() int {
	return p.overlap
}

// Process cuts the document content into windows of chunkSize characters,
// each starting chunkSize-overlap characters after the previous one.
// Windows are measured in runes so multi-byte text is never split mid-character.
// Input chunks are ignored.
func (p *Processor) Process(_ context.Context, doc *domain.Document, _ []domain.Chunk) ([]domain.Chunk, error) {
	if doc.Content == "" {
		return nil, nil
	}

	runes := []rune(doc.Content)
	n := len(runes)
	step := p.chunkSize - p.overlap

	chunks := make([]domain.Chunk, 0, n/step+1)
	for start, ordinal := 0, 0; start < n; start, ordinal = start+step, ordinal+1 {
		end := start + p.chunkSize
		if end > n {
			end = n
		}

		chunks = append(chunks, domain.Chunk{
			ID:       chunkID(doc.ID, ordinal),
			SourceID: doc.ID,
			Ordinal:  ordinal,
			Content:  string(runes[start:end]),
		})

		// The final window already reaches the end of the text.
		if end == n {
			break
		}
	}

	return chunks, nil
}

// chunkID derives a stable ID from the document ID and ordinal so that
// re-indexing an unchanged corpus reproduces the same chunk IDs.
func chunkID(docID string, ordinal int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(docID+"#"+strconv.Itoa(ordinal))).String()
}
