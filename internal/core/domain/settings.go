package domain

import (
	"errors"
	"fmt"
	"time"
)

const unknownDescription = "Unknown"

// AIProvider identifies an AI service provider for embeddings or completions.
type AIProvider string

// Available AI providers.
const (
	// AIProviderOllama is local Ollama instance.
	AIProviderOllama AIProvider = "ollama"

	// AIProviderOpenAI is OpenAI cloud API or a compatible endpoint.
	AIProviderOpenAI AIProvider = "openai"

	// AIProviderAnthropic is Anthropic cloud API. Completions only.
	AIProviderAnthropic AIProvider = "anthropic"
)

// IsValid returns true if the AI provider is recognised.
func (p AIProvider) IsValid() bool {
	switch p {
	case AIProviderOllama, AIProviderOpenAI, AIProviderAnthropic:
		return true
	default:
		return false
	}
}

// RequiresAPIKey returns true if this provider needs an API key.
func (p AIProvider) RequiresAPIKey() bool {
	return p == AIProviderOpenAI || p == AIProviderAnthropic
}

// IsLocal returns true if this provider runs locally.
func (p AIProvider) IsLocal() bool {
	return p == AIProviderOllama
}

// SupportsEmbeddings returns true if the provider can produce embeddings.
func (p AIProvider) SupportsEmbeddings() bool {
	return p == AIProviderOllama || p == AIProviderOpenAI
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
		return "OpenAI (cloud)"
	case AIProviderAnthropic:
		return "Anthropic (cloud)"
	default:
		return unknownDescription
	}
}

// DefaultEmbeddingModels returns default models for each embedding provider.
func DefaultEmbeddingModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama: "nomic-embed-text",
		AIProviderOpenAI: "text-embedding-3-small",
	}
}

// DefaultLLMModels returns default models for each completion provider.
func DefaultLLMModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama:    "llama3.2",
		AIProviderOpenAI:    "gpt-4o-mini",
		AIProviderAnthropic: "claude-3-5-haiku-latest",
	}
}

// EmbeddingDimensions returns the vector dimensions for known models.
// The postgres store sizes its vector column from this table.
func EmbeddingDimensions() map[string]int {
	return map[string]int{
		"nomic-embed-text":       768,
		"mxbai-embed-large":      1024,
		"all-minilm":             384,
		"text-embedding-3-small": 1536,
		"text-embedding-3-large": 3072,
		"text-embedding-ada-002": 1536,
	}
}

// StorageBackend selects the document/vector store implementation.
type StorageBackend string

const (
	// StorageSQLite is an embedded SQLite database in the data directory.
	StorageSQLite StorageBackend = "sqlite"

	// StoragePostgres is PostgreSQL with the pgvector extension.
	StoragePostgres StorageBackend = "postgres"

	// StorageMemory keeps everything in process memory.
	StorageMemory StorageBackend = "memory"
)

// IsValid returns true if the backend is recognised.
func (b StorageBackend) IsValid() bool {
	return b == StorageSQLite || b == StoragePostgres || b == StorageMemory
}

// ConversationBackend selects where session history is mirrored.
type ConversationBackend string

const (
	ConversationMemory   ConversationBackend = "memory"
	ConversationSQLite   ConversationBackend = "sqlite"
	ConversationPostgres ConversationBackend = "postgres"
	ConversationBolt     ConversationBackend = "bolt"
)

// IsValid returns true if the backend is recognised.
func (b ConversationBackend) IsValid() bool {
	switch b {
	case ConversationMemory, ConversationSQLite, ConversationPostgres, ConversationBolt:
		return true
	default:
		return false
	}
}

// EmbeddingSettings holds embedding provider configuration.
type EmbeddingSettings struct {
	// Provider is the embedding service provider.
	Provider AIProvider

	// Model is the embedding model name.
	Model string

	// BaseURL is the API endpoint. Empty uses the provider default.
	BaseURL string

	// APIKey is the API key (for OpenAI).
	APIKey string

	// BatchSize caps the number of texts per provider call.
	// The provider's own limit applies when it is lower.
	BatchSize int

	// Concurrency is the number of batches in flight at once.
	Concurrency int

	// RequestsPerSecond throttles provider calls.
	RequestsPerSecond float64
}

// IsConfigured returns true if the embedding provider is set up.
func (e EmbeddingSettings) IsConfigured() bool {
	if !e.Provider.SupportsEmbeddings() {
		return false
	}
	if e.Provider.RequiresAPIKey() && e.APIKey == "" {
		return false
	}
	return true
}

// LLMSettings holds completion provider configuration.
type LLMSettings struct {
	// Provider is the LLM service provider.
	Provider AIProvider

	// Model is the LLM model name.
	Model string

	// BaseURL is the API endpoint. Empty uses the provider default.
	BaseURL string

	// APIKey is the API key (for OpenAI/Anthropic).
	APIKey string

	// MaxTokens bounds the completion length.
	MaxTokens int

	// Temperature is the sampling temperature.
	Temperature float64

	// RequestsPerSecond throttles provider calls.
	RequestsPerSecond float64
}

// IsConfigured returns true if the LLM provider is set up.
func (l LLMSettings) IsConfigured() bool {
	if !l.Provider.IsValid() {
		return false
	}
	if l.Provider.RequiresAPIKey() && l.APIKey == "" {
		return false
	}
	return true
}

// ChunkingSettings configures how extracted text is split.
type ChunkingSettings struct {
	// Size is the maximum chunk length in characters.
	Size int

	// Overlap is the number of characters shared by consecutive chunks.
	// Must be strictly less than Size.
	Overlap int

	// Processors is the ordered list of chunk pipeline processors.
	Processors []string
}

// RetrievalSettings configures similarity retrieval.
type RetrievalSettings struct {
	// K is the number of chunks fed to the synthesizer.
	K int

	// PerDocumentCap limits results from one document. Zero disables the cap.
	PerDocumentCap int

	// Margin is the number of extra candidates fetched before capping.
	Margin int

	// MaxCandidates bounds the widened candidate window.
	MaxCandidates int
}

// ConversationSettings configures session history retention.
type ConversationSettings struct {
	// MaxTurns is the number of retained turns. Zero means unbounded.
	MaxTurns int

	// MaxTokens is the retained history budget in estimated tokens. Zero means unbounded.
	MaxTokens int

	// MaxAge hides turns older than this from History. Zero disables the window.
	MaxAge time.Duration

	// RecentWindow is the window used for SessionStats.RecentTurns.
	RecentWindow time.Duration

	// Backend selects where history is mirrored.
	Backend ConversationBackend
}

// SynthesisSettings configures prompt budgeting.
type SynthesisSettings struct {
	// MaxPromptTokens is the completion provider's input limit.
	MaxPromptTokens int

	// MaxHistoryTokens is the share of the prompt history may use.
	MaxHistoryTokens int
}

// RetrySettings configures bounded exponential backoff at provider boundaries.
type RetrySettings struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// StorageSettings configures the document and vector store.
type StorageSettings struct {
	// Backend selects the implementation.
	Backend StorageBackend

	// DataDir holds the SQLite database and bolt files.
	DataDir string

	// DatabaseURL is the PostgreSQL connection string.
	DatabaseURL string
}

// IngestSettings configures the ingestion pipeline.
type IngestSettings struct {
	// Workers is the number of documents ingested concurrently.
	Workers int

	// MaxFileBytes rejects larger uploads.
	MaxFileBytes int64
}

// TelegramSettings configures the Telegram front-end.
type TelegramSettings struct {
	Token        string
	AllowUploads bool
}

// HTTPSettings configures the HTTP API.
type HTTPSettings struct {
	Addr string
}

// AppSettings holds all application settings.
type AppSettings struct {
	Embedding    EmbeddingSettings
	LLM          LLMSettings
	Chunking     ChunkingSettings
	Retrieval    RetrievalSettings
	Conversation ConversationSettings
	Synthesis    SynthesisSettings
	Retry        RetrySettings
	Storage      StorageSettings
	Ingest       IngestSettings
	Telegram     TelegramSettings
	HTTP         HTTPSettings
}

// DefaultAppSettings returns settings with sensible defaults.
// Provider API keys are left empty and must come from config or environment.
func DefaultAppSettings() AppSettings {
	return AppSettings{
		Embedding: EmbeddingSettings{
			Provider:          AIProviderOpenAI,
			Model:             "text-embedding-3-small",
			BatchSize:         64,
			Concurrency:       4,
			RequestsPerSecond: 5,
		},
		LLM: LLMSettings{
			Provider:          AIProviderOpenAI,
			Model:             "gpt-4o-mini",
			MaxTokens:         500,
			Temperature:       0.7,
			RequestsPerSecond: 2,
		},
		Chunking: ChunkingSettings{
			Size:       1000,
			Overlap:    200,
			Processors: []string{"chunker", "sections"},
		},
		Retrieval: RetrievalSettings{
			K:              3,
			PerDocumentCap: 2,
			Margin:         5,
			MaxCandidates:  64,
		},
		Conversation: ConversationSettings{
			MaxTurns:     20,
			MaxTokens:    2000,
			MaxAge:       24 * time.Hour,
			RecentWindow: 24 * time.Hour,
			Backend:      ConversationSQLite,
		},
		Synthesis: SynthesisSettings{
			MaxPromptTokens:  6000,
			MaxHistoryTokens: 1500,
		},
		Retry: RetrySettings{
			MaxAttempts: 4,
			BaseDelay:   500 * time.Millisecond,
			MaxDelay:    8 * time.Second,
		},
		Storage: StorageSettings{
			Backend: StorageSQLite,
		},
		Ingest: IngestSettings{
			Workers:      2,
			MaxFileBytes: 50 << 20,
		},
		HTTP: HTTPSettings{
			Addr: ":8000",
		},
	}
}

// Validate checks the settings once at startup.
// Every problem is reported, joined, and wrapped in ErrConfiguration.
func (s *AppSettings) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if s.Chunking.Size <= 0 {
		add("chunking.size must be positive, got %d", s.Chunking.Size)
	}
	if s.Chunking.Overlap < 0 || s.Chunking.Overlap >= s.Chunking.Size {
		add("chunking.overlap must be in [0, chunking.size), got %d with size %d",
			s.Chunking.Overlap, s.Chunking.Size)
	}
	if s.Retrieval.K <= 0 {
		add("retrieval.k must be positive, got %d", s.Retrieval.K)
	}
	if s.Retrieval.PerDocumentCap < 0 {
		add("retrieval.per_document_cap must not be negative")
	}
	if s.Retrieval.Margin < 0 {
		add("retrieval.margin must not be negative")
	}
	if s.Retrieval.MaxCandidates < s.Retrieval.K+s.Retrieval.Margin {
		add("retrieval.max_candidates must be at least k + margin")
	}
	if s.Conversation.MaxTurns < 0 || s.Conversation.MaxTokens < 0 {
		add("conversation retention budgets must not be negative")
	}
	if !s.Conversation.Backend.IsValid() {
		add("conversation.backend %q is not one of memory, sqlite, postgres, bolt", s.Conversation.Backend)
	}
	if s.Synthesis.MaxPromptTokens <= 0 {
		add("synthesis.max_prompt_tokens must be positive")
	}
	if s.Synthesis.MaxHistoryTokens < 0 || s.Synthesis.MaxHistoryTokens > s.Synthesis.MaxPromptTokens {
		add("synthesis.max_history_tokens must be in [0, max_prompt_tokens]")
	}
	if s.Retry.MaxAttempts < 1 {
		add("retry.max_attempts must be at least 1")
	}
	if s.Retry.BaseDelay < 0 || s.Retry.MaxDelay < s.Retry.BaseDelay {
		add("retry delays must satisfy 0 <= base_delay <= max_delay")
	}
	if s.Embedding.BatchSize <= 0 || s.Embedding.Concurrency <= 0 {
		add("embedding.batch_size and embedding.concurrency must be positive")
	}
	if !s.Embedding.Provider.SupportsEmbeddings() {
		add("embedding.provider %q cannot produce embeddings", s.Embedding.Provider)
	} else if !s.Embedding.IsConfigured() {
		add("embedding.api_key is required for %s", s.Embedding.Provider)
	}
	if !s.LLM.Provider.IsValid() {
		add("llm.provider %q is not recognised", s.LLM.Provider)
	} else if !s.LLM.IsConfigured() {
		add("llm.api_key is required for %s", s.LLM.Provider)
	}
	switch {
	case !s.Storage.Backend.IsValid():
		add("storage.backend %q is not one of sqlite, postgres, memory", s.Storage.Backend)
	case s.Storage.Backend == StoragePostgres && s.Storage.DatabaseURL == "":
		add("storage.database_url is required for the postgres backend")
	}
	if s.Conversation.Backend == ConversationSQLite && s.Storage.Backend != StorageSQLite {
		add("conversation.backend sqlite requires storage.backend sqlite")
	}
	if s.Conversation.Backend == ConversationPostgres && s.Storage.Backend != StoragePostgres {
		add("conversation.backend postgres requires storage.backend postgres")
	}
	if s.Ingest.Workers <= 0 {
		add("ingest.workers must be positive")
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrConfiguration, errors.Join(errs...))
}
