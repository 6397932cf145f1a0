// Package tokens measures prompt text with a BPE tokenizer so retrieved
// chunks and message bodies fit a model's context.
package tokens

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"

	"github.com/custodia-labs/triage/internal/core/ports/driven"
)

// Ensure Budget implements the interface.
var _ driven.TokenBudget = (*Budget)(nil)

// DefaultEncoding is compatible with current OpenAI and Anthropic models
// closely enough for budgeting.
const DefaultEncoding = "cl100k_base"

// Encoding files are bundled with the binary; no network access at runtime.
func init() {
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

var (
	defaultBudget *Budget
	defaultOnce   sync.Once
	defaultErr    error
)

// Budget counts and truncates text by tokens.
type Budget struct {
	mu       sync.RWMutex
	encoding *tiktoken.Tiktoken
}

// Default returns the shared cl100k_base budget. The encoding is loaded once.
func Default() (*Budget, error) {
	defaultOnce.Do(func() {
		defaultBudget, defaultErr = New(DefaultEncoding)
	})
	return defaultBudget, defaultErr
}

// New loads the named encoding.
func New(encoding string) (*Budget, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, err
	}
	return &Budget{encoding: enc}, nil
}

// Count returns the number of tokens in text.
func (b *Budget) Count(text string) int {
	if text == "" {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.encoding.Encode(text, nil, nil))
}

// Truncate returns the longest token prefix of text within maxTokens.
// Text that already fits is returned unchanged.
func (b *Budget) Truncate(text string, maxTokens int) string {
	if text == "" || maxTokens <= 0 {
		return ""
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	ids := b.encoding.Encode(text, nil, nil)
	if len(ids) <= maxTokens {
		return text
	}
	return b.encoding.Decode(ids[:maxTokens])
}
