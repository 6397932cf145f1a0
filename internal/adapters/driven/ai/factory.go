// Package ai builds the embedding and LLM adapters selected by settings.
package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/triage/internal/adapters/driven/embedding/cache"
	"github.com/custodia-labs/triage/internal/adapters/driven/embedding/local"
	ollamaembed "github.com/custodia-labs/triage/internal/adapters/driven/embedding/ollama"
	openaiembed "github.com/custodia-labs/triage/internal/adapters/driven/embedding/openai"
	anthropicllm "github.com/custodia-labs/triage/internal/adapters/driven/llm/anthropic"
	ollamallm "github.com/custodia-labs/triage/internal/adapters/driven/llm/ollama"
	openaillm "github.com/custodia-labs/triage/internal/adapters/driven/llm/openai"
	"github.com/custodia-labs/triage/internal/core/domain"
	"github.com/custodia-labs/triage/internal/core/ports/driven"
	"github.com/custodia-labs/triage/internal/logger"
)

// pingTimeout is the maximum time to wait for service connectivity validation.
const pingTimeout = 5 * time.Second

// InitResult contains the result of AI service initialisation.
type InitResult struct {
	EmbeddingService driven.EmbeddingService
	LLMService       driven.LLMService
	Warnings         []string // Non-fatal issues, including fallbacks.
	FellBack         bool     // True if the embedder fell back to local hashing.
}

// Close releases all resources held by InitResult.
func (r *InitResult) Close() {
	if r.EmbeddingService != nil {
		_ = r.EmbeddingService.Close()
	}
	if r.LLMService != nil {
		_ = r.LLMService.Close()
	}
}

// Init builds both services. An unreachable embedding provider falls back to
// the local hashing embedder so the index can always be built. An
// unreachable LLM is kept with a warning: the poll loop fails each message
// until it comes back. Only an LLM that cannot be constructed is an error.
func Init(settings domain.Settings, prompts driven.PromptStore) (*InitResult, error) {
	result := &InitResult{}

	embedder, err := CreateAndValidateEmbeddingService(&settings.Embedding)
	if err != nil || embedder == nil {
		if err != nil {
			result.Warnings = append(result.Warnings, err.Error())
			result.FellBack = true
		}
		embedder = local.NewEmbeddingService(settings.Embedding.Dimensions)
	}
	cached, err := cache.Wrap(embedder, settings.Embedding.CacheSize)
	if err != nil {
		return nil, err
	}
	result.EmbeddingService = cached

	if settings.LLM.IsConfigured() {
		llm, err := CreateLLMService(&settings.LLM)
		if err != nil {
			result.Close()
			return nil, fmt.Errorf("%w: %w", domain.ErrLLMUnavailable, err)
		}
		if aware, ok := llm.(driven.PromptStoreAware); ok && prompts != nil {
			aware.SetPromptStore(prompts)
		}
		if err := ping(llm.Ping); err != nil {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("LLM %s at %s is unreachable: %v", settings.LLM.Provider, settings.LLM.BaseURL, err))
		}
		result.LLMService = llm
	} else {
		result.Warnings = append(result.Warnings, "no LLM configured; drafting is unavailable")
	}

	for _, w := range result.Warnings {
		logger.Warn("ai init", "warning", w)
	}
	return result, nil
}

// CreateAndValidateEmbeddingService creates an embedding service and validates connectivity.
func CreateAndValidateEmbeddingService(settings *domain.EmbeddingSettings) (driven.EmbeddingService, error) {
	svc, err := CreateEmbeddingService(settings)
	if err != nil {
		return nil, fmt.Errorf("%w: %w. Run 'triage config set embedding.provider' to fix",
			domain.ErrEmbeddingUnavailable, err)
	}
	if svc == nil {
		return nil, nil
	}

	if err := ping(svc.Ping); err != nil {
		_ = svc.Close()
		return nil, fmt.Errorf("%w: service unreachable (%w)", domain.ErrEmbeddingUnavailable, err)
	}
	return svc, nil
}

// CreateAndValidateLLMService creates an LLM service and validates connectivity.
func CreateAndValidateLLMService(settings *domain.LLMSettings) (driven.LLMService, error) {
	svc, err := CreateLLMService(settings)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrLLMUnavailable, err)
	}
	if svc == nil {
		return nil, nil
	}

	if err := ping(svc.Ping); err != nil {
		_ = svc.Close()
		return nil, fmt.Errorf("%w: service unreachable (%w)", domain.ErrLLMUnavailable, err)
	}
	return svc, nil
}

// ValidateEmbeddingConfig creates the configured embedder and pings it.
func ValidateEmbeddingConfig(settings *domain.EmbeddingSettings) error {
	svc, err := CreateAndValidateEmbeddingService(settings)
	if svc != nil {
		_ = svc.Close()
	}
	return err
}

// ValidateLLMConfig creates the configured LLM and pings it.
func ValidateLLMConfig(settings *domain.LLMSettings) error {
	svc, err := CreateAndValidateLLMService(settings)
	if svc != nil {
		_ = svc.Close()
	}
	return err
}

// CreateEmbeddingService creates the embedding service named by settings.
// Returns nil if the provider is not configured.
func CreateEmbeddingService(settings *domain.EmbeddingSettings) (driven.EmbeddingService, error) {
	if settings == nil {
		return nil, nil
	}
	if settings.Provider == domain.AIProviderAnthropic {
		return nil, errors.New("anthropic does not support embeddings, use local, ollama or openai")
	}
	if !settings.IsConfigured() {
		return nil, nil
	}

	switch settings.Provider {
	case domain.AIProviderLocal:
		return local.NewEmbeddingService(embeddingDimensions(settings, local.DefaultDimensions)), nil

	case domain.AIProviderOllama:
		return ollamaembed.NewEmbeddingService(ollamaembed.Config{
			BaseURL:    settings.BaseURL,
			Model:      settings.Model,
			Dimensions: embeddingDimensions(settings, ollamaembed.DefaultDimensions),
		}), nil

	case domain.AIProviderOpenAI:
		return openaiembed.NewEmbeddingService(openaiembed.Config{
			APIKey:     settings.APIKey,
			BaseURL:    settings.BaseURL,
			Model:      settings.Model,
			Dimensions: embeddingDimensions(settings, 0),
		})

	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", settings.Provider)
	}
}

// CreateLLMService creates the LLM service named by settings.
// Returns nil if the provider is not configured.
func CreateLLMService(settings *domain.LLMSettings) (driven.LLMService, error) {
	if settings == nil || !settings.IsConfigured() {
		return nil, nil
	}

	switch settings.Provider {
	case domain.AIProviderOllama:
		return ollamallm.NewLLMService(ollamallm.LLMConfig{
			BaseURL:   settings.BaseURL,
			Model:     settings.Model,
			Timeout:   settings.Timeout,
			MaxTokens: settings.MaxTokens,
		}), nil

	case domain.AIProviderOpenAI:
		return openaillm.NewLLMService(openaillm.LLMConfig{
			APIKey:    settings.APIKey,
			BaseURL:   settings.BaseURL,
			Model:     settings.Model,
			Timeout:   settings.Timeout,
			MaxTokens: settings.MaxTokens,
		})

	case domain.AIProviderAnthropic:
		return anthropicllm.NewLLMService(anthropicllm.Config{
			APIKey:    settings.APIKey,
			BaseURL:   settings.BaseURL,
			Model:     settings.Model,
			Timeout:   settings.Timeout,
			MaxTokens: settings.MaxTokens,
		})

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", settings.Provider)
	}
}

// embeddingDimensions prefers the explicit setting, then the known size of
// the model, then fallback.
func embeddingDimensions(settings *domain.EmbeddingSettings, fallback int) int {
	if settings.Dimensions > 0 {
		return settings.Dimensions
	}
	if d := domain.EmbeddingDimensions()[settings.Model]; d > 0 {
		return d
	}
	return fallback
}

func ping(fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	return fn(ctx)
}
