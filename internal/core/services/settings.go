package services

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/custodia-labs/triage/internal/core/domain"
	"github.com/custodia-labs/triage/internal/core/ports/driven"
	"github.com/custodia-labs/triage/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// Config keys for settings storage.
//
//nolint:gosec // G101: These are config key names, not actual credentials.
const (
	keyDataDir = "data_dir"

	keyCorpusPath    = "corpus.path"
	keyCorpusInclude = "corpus.include"
	keyCorpusExclude = "corpus.exclude"

	keyChunkSize    = "retrieval.chunk_size"
	keyChunkOverlap = "retrieval.chunk_overlap"
	keyRetrievalK   = "retrieval.top_k"
	keyPromptTokens = "retrieval.prompt_tokens"

	keyHistoryK        = "history.top_k"
	keyFullSyncDays    = "history.full_sync_days"
	keyMaxResults      = "history.max_results"
	keySummaryLength   = "history.summary_length"
	keyGmailAddress    = "gmail.address"
	keyGmailQuery      = "gmail.query"
	keyGmailTodayOnly  = "gmail.today_only"
	keyGmailCreds      = "gmail.credentials_file"
	keyGmailToken      = "gmail.token_file"
	keyDraftMinWords   = "draft.min_words"
	keyDraftLabel      = "draft.label"
	keyPollInterval    = "poll.interval"
	keyEmbedProvider   = "embedding.provider"
	keyEmbedModel      = "embedding.model"
	keyEmbedBaseURL    = "embedding.base_url"
	keyEmbedAPIKey     = "embedding.api_key"
	keyEmbedDims       = "embedding.dimensions"
	keyEmbedCache      = "embedding.cache_size"
	keyLLMProvider     = "llm.provider"
	keyLLMModel        = "llm.model"
	keyLLMBaseURL      = "llm.base_url"
	keyLLMAPIKey       = "llm.api_key"
	keyLLMMaxTokens    = "llm.max_tokens"
	keyLLMTimeout      = "llm.timeout"
	defaultOllamaURL   = "http://localhost:11434"
	envOpenAIKey       = "OPENAI_API_KEY"
	envTriageOpenAIKey = "TRIAGE_OPENAI_API_KEY"
	envAnthropicKey    = "ANTHROPIC_API_KEY"
)

// SettingsKeys returns every config key Get reads, sorted.
func SettingsKeys() []string {
	keys := []string{
		keyDataDir, keyCorpusPath, keyCorpusInclude, keyCorpusExclude,
		keyChunkSize, keyChunkOverlap, keyRetrievalK, keyPromptTokens,
		keyHistoryK, keyFullSyncDays, keyMaxResults, keySummaryLength,
		keyGmailAddress, keyGmailQuery, keyGmailTodayOnly, keyGmailCreds, keyGmailToken,
		keyDraftMinWords, keyDraftLabel, keyPollInterval,
		keyEmbedProvider, keyEmbedModel, keyEmbedBaseURL, keyEmbedAPIKey, keyEmbedDims, keyEmbedCache,
		keyLLMProvider, keyLLMModel, keyLLMBaseURL, keyLLMAPIKey, keyLLMMaxTokens, keyLLMTimeout,
	}
	sort.Strings(keys)
	return keys
}

// SettingsService reads and updates the typed settings held in the config store.
type SettingsService struct {
	configStore driven.ConfigStore
	aiValidator driven.AIConfigValidator
	lookupEnv   func(string) (string, bool)
}

// NewSettingsService creates a new settings service.
// aiValidator may be nil, in which case provider pings are skipped.
func NewSettingsService(configStore driven.ConfigStore, aiValidator driven.AIConfigValidator) *SettingsService {
	return &SettingsService{
		configStore: configStore,
		aiValidator: aiValidator,
		lookupEnv:   os.LookupEnv,
	}
}

// Get retrieves current application settings.
func (s *SettingsService) Get() (*domain.Settings, error) {
	d := domain.DefaultSettings()

	interval, err := s.getDuration(keyPollInterval, d.Poll.Interval)
	if err != nil {
		return nil, err
	}
	timeout, err := s.getDuration(keyLLMTimeout, d.LLM.Timeout)
	if err != nil {
		return nil, err
	}

	settings := &domain.Settings{
		DataDir: s.getString(keyDataDir, s.defaultDataDir()),
		Corpus: domain.CorpusSettings{
			Path:    s.getString(keyCorpusPath, d.Corpus.Path),
			Include: s.getStrings(keyCorpusInclude, d.Corpus.Include),
			Exclude: s.getStrings(keyCorpusExclude, d.Corpus.Exclude),
		},
		Retrieval: domain.RetrievalSettings{
			ChunkSize:    s.getInt(keyChunkSize, d.Retrieval.ChunkSize),
			ChunkOverlap: s.getInt(keyChunkOverlap, d.Retrieval.ChunkOverlap),
			TopK:         s.getInt(keyRetrievalK, d.Retrieval.TopK),
			PromptTokens: s.getInt(keyPromptTokens, d.Retrieval.PromptTokens),
		},
		History: domain.HistorySettings{
			TopK:          s.getInt(keyHistoryK, d.History.TopK),
			FullSyncDays:  s.getInt(keyFullSyncDays, d.History.FullSyncDays),
			MaxResults:    s.getInt(keyMaxResults, d.History.MaxResults),
			SummaryLength: s.getInt(keySummaryLength, d.History.SummaryLength),
		},
		Gmail: domain.GmailSettings{
			Address:         s.configStore.GetString(keyGmailAddress),
			Query:           s.getString(keyGmailQuery, d.Gmail.Query),
			TodayOnly:       s.getBool(keyGmailTodayOnly, d.Gmail.TodayOnly),
			CredentialsFile: s.configStore.GetString(keyGmailCreds),
			TokenFile:       s.configStore.GetString(keyGmailToken),
		},
		Draft: domain.DraftSettings{
			MinWords: s.getInt(keyDraftMinWords, d.Draft.MinWords),
			Label:    s.getString(keyDraftLabel, d.Draft.Label),
		},
		Poll: domain.PollSettings{Interval: interval},
		Embedding: domain.EmbeddingSettings{
			Provider:   s.getProvider(keyEmbedProvider, d.Embedding.Provider),
			Model:      s.configStore.GetString(keyEmbedModel),
			BaseURL:    s.configStore.GetString(keyEmbedBaseURL),
			APIKey:     s.configStore.GetString(keyEmbedAPIKey),
			Dimensions: s.configStore.GetInt(keyEmbedDims),
			CacheSize:  s.getInt(keyEmbedCache, d.Embedding.CacheSize),
		},
		LLM: domain.LLMSettings{
			Provider:  s.getProvider(keyLLMProvider, d.LLM.Provider),
			Model:     s.configStore.GetString(keyLLMModel),
			BaseURL:   s.configStore.GetString(keyLLMBaseURL),
			APIKey:    s.configStore.GetString(keyLLMAPIKey),
			MaxTokens: s.getInt(keyLLMMaxTokens, d.LLM.MaxTokens),
			Timeout:   timeout,
		},
	}

	// The local OpenAI-compatible server is the default LLM endpoint.
	if settings.LLM.Provider == d.LLM.Provider && settings.LLM.BaseURL == "" && settings.LLM.APIKey == "" {
		settings.LLM.BaseURL = d.LLM.BaseURL
	}
	if settings.Embedding.Provider == d.Embedding.Provider && settings.Embedding.BaseURL == "" {
		settings.Embedding.BaseURL = d.Embedding.BaseURL
	}
	if settings.Embedding.Model == "" {
		settings.Embedding.Model = domain.DefaultEmbeddingModels()[settings.Embedding.Provider]
	}
	if settings.LLM.Model == "" {
		settings.LLM.Model = domain.DefaultLLMModels()[settings.LLM.Provider]
	}

	s.applyEnv(settings)
	return settings, nil
}

// applyEnv lets API keys from the environment override the config file.
func (s *SettingsService) applyEnv(settings *domain.Settings) {
	key := func(provider domain.AIProvider) string {
		switch provider {
		case domain.AIProviderOpenAI:
			if v, ok := s.lookupEnv(envTriageOpenAIKey); ok && v != "" {
				return v
			}
			if v, ok := s.lookupEnv(envOpenAIKey); ok && v != "" {
				return v
			}
		case domain.AIProviderAnthropic:
			if v, ok := s.lookupEnv(envAnthropicKey); ok && v != "" {
				return v
			}
		}
		return ""
	}
	if v := key(settings.LLM.Provider); v != "" {
		settings.LLM.APIKey = v
	}
	if v := key(settings.Embedding.Provider); v != "" {
		settings.Embedding.APIKey = v
	}
}

// SetEmbeddingProvider configures the embedding provider.
func (s *SettingsService) SetEmbeddingProvider(provider domain.AIProvider, model, apiKey string) error {
	if !provider.IsValid() || provider == domain.AIProviderAnthropic {
		return fmt.Errorf("provider %s does not support embeddings", provider)
	}

	if model == "" {
		model = domain.DefaultEmbeddingModels()[provider]
	}
	baseURL := ""
	if provider == domain.AIProviderOllama {
		baseURL = defaultOllamaURL
	}

	values := map[string]any{
		keyEmbedProvider: provider.String(),
		keyEmbedModel:    model,
		keyEmbedBaseURL:  baseURL,
	}
	if apiKey != "" {
		values[keyEmbedAPIKey] = apiKey
	}
	if d, ok := domain.EmbeddingDimensions()[model]; ok {
		values[keyEmbedDims] = d
	}
	return s.setAll(values)
}

// SetLLMProvider configures the LLM provider.
func (s *SettingsService) SetLLMProvider(provider domain.AIProvider, model, apiKey string) error {
	if !provider.IsValid() || provider == domain.AIProviderLocal {
		return fmt.Errorf("invalid LLM provider: %s", provider)
	}
	if provider.RequiresAPIKey() && apiKey == "" {
		if v, ok := s.lookupEnv(envAnthropicKey); !ok || v == "" {
			return fmt.Errorf("API key required for %s", provider)
		}
	}

	if model == "" {
		model = domain.DefaultLLMModels()[provider]
	}
	baseURL := ""
	if provider == domain.AIProviderOllama {
		baseURL = defaultOllamaURL
	}

	values := map[string]any{
		keyLLMProvider: provider.String(),
		keyLLMModel:    model,
		keyLLMBaseURL:  baseURL,
	}
	if apiKey != "" {
		values[keyLLMAPIKey] = apiKey
	}
	return s.setAll(values)
}

func (s *SettingsService) setAll(values map[string]any) error {
	for key, val := range values {
		if err := s.configStore.Set(key, val); err != nil {
			return fmt.Errorf("save %s: %w", key, err)
		}
	}
	return nil
}

// Validate checks that the settings can run a triage cycle.
func (s *SettingsService) Validate() error {
	settings, err := s.Get()
	if err != nil {
		return err
	}
	if !settings.LLM.IsConfigured() {
		return fmt.Errorf("LLM provider %q is not configured", settings.LLM.Provider)
	}
	if !settings.Embedding.IsConfigured() {
		return fmt.Errorf("embedding provider %q is not configured", settings.Embedding.Provider)
	}
	if settings.Retrieval.ChunkOverlap >= settings.Retrieval.ChunkSize {
		return fmt.Errorf("retrieval.chunk_overlap (%d) must be smaller than retrieval.chunk_size (%d)",
			settings.Retrieval.ChunkOverlap, settings.Retrieval.ChunkSize)
	}
	if settings.Poll.Interval < time.Second {
		return fmt.Errorf("poll.interval %s is too short", settings.Poll.Interval)
	}
	return nil
}

// ValidateEmbeddingConfig validates the current embedding configuration by pinging the provider.
func (s *SettingsService) ValidateEmbeddingConfig() error {
	if s.aiValidator == nil {
		return nil
	}
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return s.aiValidator.ValidateEmbedding(&settings.Embedding)
}

// ValidateLLMConfig validates the current LLM configuration by pinging the provider.
func (s *SettingsService) ValidateLLMConfig() error {
	if s.aiValidator == nil {
		return nil
	}
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return s.aiValidator.ValidateLLM(&settings.LLM)
}

// defaultDataDir places state next to the config file.
func (s *SettingsService) defaultDataDir() string {
	if p := s.configStore.Path(); p != "" {
		return filepath.Dir(p)
	}
	return "."
}

// Helper methods for reading config with defaults.

func (s *SettingsService) getString(key, defaultVal string) string {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getInt(key string, defaultVal int) int {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetInt(key)
}

func (s *SettingsService) getBool(key string, defaultVal bool) bool {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetBool(key)
}

func (s *SettingsService) getStrings(key string, defaultVal []string) []string {
	if val := s.configStore.GetStringSlice(key); len(val) > 0 {
		return val
	}
	return defaultVal
}

func (s *SettingsService) getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func (s *SettingsService) getProvider(key string, defaultVal domain.AIProvider) domain.AIProvider {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	provider := domain.AIProvider(val)
	if !provider.IsValid() {
		return defaultVal
	}
	return provider
}
