package domain

import "time"

const unknownDescription = "Unknown"

// AIProvider identifies an AI service provider for embeddings or LLM.
type AIProvider string

// Available AI providers.
const (
	// AIProviderOllama is a local Ollama instance.
	AIProviderOllama AIProvider = "ollama"

	// AIProviderOpenAI is the OpenAI API or any server speaking its protocol,
	// such as LM Studio.
	AIProviderOpenAI AIProvider = "openai"

	// AIProviderAnthropic is the Anthropic API.
	AIProviderAnthropic AIProvider = "anthropic"

	// AIProviderLocal is the built-in hashing embedder. Embeddings only.
	AIProviderLocal AIProvider = "local"
)

// IsValid returns true if the AI provider is recognised.
func (p AIProvider) IsValid() bool {
	switch p {
	case AIProviderOllama, AIProviderOpenAI, AIProviderAnthropic, AIProviderLocal:
		return true
	default:
		return false
	}
}

// RequiresAPIKey returns true if this provider needs an API key.
// OpenAI-compatible servers on localhost accept any key, so only
// Anthropic is strict.
func (p AIProvider) RequiresAPIKey() bool {
	return p == AIProviderAnthropic
}

// String returns the string representation.
func (p AIProvider) String() string {
	return string(p)
}

// Description returns a human-readable description of the provider.
func (p AIProvider) Description() string {
	switch p {
	case AIProviderOllama:
		return "Ollama (local)"
	case AIProviderOpenAI:
		return "OpenAI-compatible API"
	case AIProviderAnthropic:
		return "Anthropic (cloud)"
	case AIProviderLocal:
		return "Built-in hashing embedder"
	default:
		return unknownDescription
	}
}

// EmbeddingSettings holds embedding provider configuration.
type EmbeddingSettings struct {
	Provider AIProvider
	Model    string
	BaseURL  string
	APIKey   string

	// Dimensions overrides the model's known vector size.
	Dimensions int

	// CacheSize is the number of query embeddings kept in memory. 0 disables caching.
	CacheSize int
}

// IsConfigured returns true if the embedding provider is set up.
func (e EmbeddingSettings) IsConfigured() bool {
	if !e.Provider.IsValid() || e.Provider == AIProviderAnthropic {
		return false
	}
	if e.Provider.RequiresAPIKey() && e.APIKey == "" {
		return false
	}
	return true
}

// LLMSettings holds LLM provider configuration.
type LLMSettings struct {
	Provider AIProvider
	Model    string
	BaseURL  string
	APIKey   string

	// MaxTokens bounds every completion.
	MaxTokens int

	// Timeout bounds every call.
	Timeout time.Duration
}

// IsConfigured returns true if the LLM provider is set up.
func (l LLMSettings) IsConfigured() bool {
	if !l.Provider.IsValid() || l.Provider == AIProviderLocal {
		return false
	}
	if l.Provider.RequiresAPIKey() && l.APIKey == "" {
		return false
	}
	return true
}

// CorpusSettings locates the knowledge base.
type CorpusSettings struct {
	Path    string
	Include []string
	Exclude []string
}

// RetrievalSettings configures chunking and knowledge search.
type RetrievalSettings struct {
	ChunkSize    int
	ChunkOverlap int
	TopK         int

	// PromptTokens caps the retrieved text placed in a prompt.
	PromptTokens int
}

// HistorySettings configures the history ledger and its sync.
type HistorySettings struct {
	TopK int

	// FullSyncDays is the window fetched when no watermark exists.
	FullSyncDays int

	// MaxResults is the page size requested from the mailbox.
	MaxResults int

	// SummaryLength is the maximum length of each per-record summary.
	SummaryLength int
}

// GmailSettings configures the mailbox connector.
type GmailSettings struct {
	// Address is the mailbox the assistant answers from.
	Address string

	// Query selects candidate messages, in Gmail search syntax.
	Query string

	// TodayOnly restricts candidates to messages received today.
	TodayOnly bool

	// CredentialsFile is the OAuth client JSON downloaded from Google Cloud.
	CredentialsFile string

	// TokenFile stores the OAuth token obtained by "triage auth login".
	TokenFile string
}

// DraftSettings configures the draft sink.
type DraftSettings struct {
	// MinWords is the reply length a draft must exceed to be saved.
	MinWords int

	// Label is applied to every message that received a draft.
	Label string
}

// PollSettings configures the polling loop.
type PollSettings struct {
	Interval time.Duration
}

// Settings holds all application settings.
type Settings struct {
	// DataDir holds the ledger, index snapshot and state files.
	DataDir string

	Corpus    CorpusSettings
	Retrieval RetrievalSettings
	History   HistorySettings
	Gmail     GmailSettings
	Draft     DraftSettings
	Poll      PollSettings
	LLM       LLMSettings
	Embedding EmbeddingSettings
}

// DefaultSettings returns settings with sensible defaults.
// The LLM defaults to a local OpenAI-compatible server.
func DefaultSettings() Settings {
	return Settings{
		Corpus: CorpusSettings{
			Path:    "knowledge_base",
			Include: []string{"**/*.txt", "**/*.pdf", "**/*.md", "**/*.eml"},
			Exclude: []string{"**/.*"},
		},
		Retrieval: RetrievalSettings{
			ChunkSize:    1000,
			ChunkOverlap: 200,
			TopK:         3,
			PromptTokens: 2000,
		},
		History: HistorySettings{
			TopK:          5,
			FullSyncDays:  30,
			MaxResults:    100,
			SummaryLength: 50,
		},
		Gmail: GmailSettings{
			Query:     "is:unread -label:AI_Drafted",
			TodayOnly: true,
		},
		Draft: DraftSettings{
			MinWords: 50,
			Label:    "AI_Drafted",
		},
		Poll: PollSettings{
			Interval: 2 * time.Minute,
		},
		LLM: LLMSettings{
			Provider:  AIProviderOpenAI,
			BaseURL:   "http://localhost:1234/v1",
			MaxTokens: 500,
			Timeout:   120 * time.Second,
		},
		Embedding: EmbeddingSettings{
			Provider:  AIProviderOllama,
			BaseURL:   "http://localhost:11434",
			CacheSize: 256,
		},
	}
}

// AllEmbeddingProviders returns the providers that can embed text.
func AllEmbeddingProviders() []AIProvider {
	return []AIProvider{AIProviderLocal, AIProviderOllama, AIProviderOpenAI}
}

// AllLLMProviders returns the providers that can generate text.
func AllLLMProviders() []AIProvider {
	return []AIProvider{AIProviderOpenAI, AIProviderOllama, AIProviderAnthropic}
}

// DefaultEmbeddingModels returns default models for each embedding provider.
func DefaultEmbeddingModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama: "nomic-embed-text",
		AIProviderOpenAI: "text-embedding-3-small",
		AIProviderLocal:  "hash-384",
	}
}

// DefaultLLMModels returns default models for each LLM provider.
func DefaultLLMModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama:    "llama3.2",
		AIProviderOpenAI:    "gpt-4o-mini",
		AIProviderAnthropic: "claude-haiku-4-5-20251001",
	}
}

// EmbeddingDimensions returns the vector dimensions for known models.
func EmbeddingDimensions() map[string]int {
	return map[string]int{
		"nomic-embed-text":       768,
		"mxbai-embed-large":      1024,
		"all-minilm":             384,
		"text-embedding-3-small": 1536,
		"text-embedding-3-large": 3072,
		"text-embedding-ada-002": 1536,
		"hash-384":               384,
	}
}
