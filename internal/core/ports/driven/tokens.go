package driven

// TokenBudget measures and trims text against a model token limit.
type TokenBudget interface {
	// Count returns the number of tokens in text.
	Count(text string) int

	// Truncate returns the longest prefix of text that fits in maxTokens.
	Truncate(text string, maxTokens int) string
}
