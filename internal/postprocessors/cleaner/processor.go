// Package cleaner normalises chunk text before it reaches the indexes.
package cleaner

import (
	"context"
	"strings"
	"unicode"

	"github.com/custodia-labs/triage/internal/core/domain"
)

// Processor collapses runs of whitespace inside each chunk and drops
// chunks left with no content. Ordinals are renumbered so they stay dense.
type Processor struct{}

// New creates a cleaner processor.
func New() *Processor {
	return &Processor{}
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "cleaner"
}

// Process cleans the chunks produced by an earlier stage.
func (p *Processor) Process(_ context.Context, _ *domain.Document, chunks []domain.Chunk) ([]domain.Chunk, error) {
	out := chunks[:0]
	for _, c := range chunks {
		c.Content = collapse(c.Content)
		if c.Content == "" {
			continue
		}
		c.Ordinal = len(out)
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func collapse(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}
