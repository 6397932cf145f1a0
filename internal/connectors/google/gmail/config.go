package gmail

import (
	"github.com/custodia-labs/triage/internal/connectors/google"
	"github.com/custodia-labs/triage/internal/core/domain"
)

// Config holds Gmail connector configuration.
type Config struct {
	// UserID is the mailbox to act on; "me" is the authenticated user.
	UserID string

	// LabelIDs limits candidate messages to these labels.
	LabelIDs []string

	// Query selects candidate messages in Gmail search syntax.
	Query string

	// MaxResults is the page size for list requests.
	MaxResults int64

	// IncludeSpamTrash includes spam and trash in history syncs.
	IncludeSpamTrash bool

	// RateLimit bounds request throughput.
	RateLimit google.RateLimitConfig
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	defaults := domain.DefaultSettings()
	return Config{
		UserID:     "me",
		LabelIDs:   []string{"INBOX"},
		Query:      defaults.Gmail.Query,
		MaxResults: int64(defaults.History.MaxResults),
		RateLimit:  google.DefaultGmailRateLimit,
	}
}

// ConfigFromSettings derives the connector configuration from settings.
func ConfigFromSettings(s domain.Settings) Config {
	cfg := DefaultConfig()
	if s.Gmail.Query != "" {
		cfg.Query = s.Gmail.Query
	}
	if s.History.MaxResults > 0 {
		cfg.MaxResults = int64(s.History.MaxResults)
	}
	return cfg
}
