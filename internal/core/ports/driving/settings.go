package driving

import "github.com/custodia-labs/triage/internal/core/domain"

// SettingsService manages application settings.
type SettingsService interface {
	// Get returns the settings from the config file over the defaults, with
	// API keys from the environment taking precedence.
	Get() (*domain.Settings, error)

	// SetEmbeddingProvider configures the embedding provider.
	SetEmbeddingProvider(provider domain.AIProvider, model, apiKey string) error

	// SetLLMProvider configures the LLM provider.
	SetLLMProvider(provider domain.AIProvider, model, apiKey string) error

	// Validate checks that the settings can run a triage cycle.
	Validate() error

	// ValidateEmbeddingConfig pings the configured embedding provider.
	ValidateEmbeddingConfig() error

	// ValidateLLMConfig pings the configured LLM provider.
	ValidateLLMConfig() error
}
