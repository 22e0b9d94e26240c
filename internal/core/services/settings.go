package services

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/ragbot/internal/core/domain"
	"github.com/custodia-labs/ragbot/internal/core/ports/driven"
	"github.com/custodia-labs/ragbot/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// Config keys with special handling.
//
//nolint:gosec // G101: These are config key names, not actual credentials.
const (
	keyEmbedAPIKey = "embedding.api_key"
	keyLLMAPIKey   = "llm.api_key"
)

// providerKeyEnv maps a provider to the environment variable holding its API key.
var providerKeyEnv = map[domain.AIProvider]string{
	domain.AIProviderOpenAI:    "OPENAI_API_KEY",
	domain.AIProviderAnthropic: "ANTHROPIC_API_KEY",
}

// SettingsService assembles settings from defaults, the config file and the environment.
// Environment variables win over the file.
type SettingsService struct {
	configStore driven.ConfigStore
	aiValidator driven.AIConfigValidator
	dataDir     string
	lookupEnv   func(string) (string, bool)
}

// NewSettingsService creates a new settings service.
// dataDir is the default storage.data_dir. The validator is optional.
func NewSettingsService(
	configStore driven.ConfigStore, aiValidator driven.AIConfigValidator, dataDir string,
) *SettingsService {
	return &SettingsService{
		configStore: configStore,
		aiValidator: aiValidator,
		dataDir:     dataDir,
		lookupEnv:   os.LookupEnv,
	}
}

// Get returns the effective settings without validating them.
// A value that cannot be parsed is a configuration error.
func (s *SettingsService) Get() (*domain.AppSettings, error) {
	settings := s.GetDefaults()
	var errs []error

	for _, f := range fields {
		raw, ok := s.configStore.Get(f.key)
		if !ok {
			continue
		}
		if err := f.parse(&settings, configString(raw)); err != nil {
			errs = append(errs, fmt.Errorf("%s in %s: %w", f.key, s.configStore.Path(), err))
		}
	}

	// Provider keys first, so the explicit RAGBOT_* variables below win.
	if v, ok := s.env(providerKeyEnv[settings.Embedding.Provider]); ok {
		settings.Embedding.APIKey = v
	}
	if v, ok := s.env(providerKeyEnv[settings.LLM.Provider]); ok {
		settings.LLM.APIKey = v
	}

	for _, f := range fields {
		for _, name := range f.env {
			v, ok := s.env(name)
			if !ok {
				continue
			}
			if err := f.parse(&settings, v); err != nil {
				errs = append(errs, fmt.Errorf("%s from $%s: %w", f.key, name, err))
			}
		}
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", domain.ErrConfiguration, errors.Join(errs...))
	}
	return &settings, nil
}

// Load returns validated settings.
func (s *SettingsService) Load() (*domain.AppSettings, error) {
	settings, err := s.Get()
	if err != nil {
		return nil, err
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

// Set stores one key in the config file. The value is parsed first so a
// typo never reaches the file.
func (s *SettingsService) Set(key, value string) error {
	f, ok := fieldByKey(key)
	if !ok {
		return fmt.Errorf("%w: unknown setting %q (known: %s)",
			domain.ErrInvalidInput, key, strings.Join(Keys(), ", "))
	}

	scratch := s.GetDefaults()
	if err := f.parse(&scratch, value); err != nil {
		return fmt.Errorf("%w: %s: %w", domain.ErrInvalidInput, key, err)
	}

	if err := s.configStore.Set(key, f.stored(&scratch)); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// Values lists the effective value of every known key. Secrets are masked.
func (s *SettingsService) Values() (map[string]string, error) {
	settings, err := s.Get()
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(fields))
	for _, f := range fields {
		v := f.format(settings)
		if f.secret {
			v = maskSecret(v)
		}
		out[f.key] = v
	}
	return out, nil
}

// Path returns the config file location.
func (s *SettingsService) Path() string {
	return s.configStore.Path()
}

// GetDefaults returns default settings with the data directory filled in.
func (s *SettingsService) GetDefaults() domain.AppSettings {
	d := domain.DefaultAppSettings()
	d.Storage.DataDir = s.dataDir
	return d
}

// ValidateProviders pings the configured providers.
func (s *SettingsService) ValidateProviders() error {
	if s.aiValidator == nil {
		return nil
	}
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return errors.Join(
		s.aiValidator.ValidateEmbedding(&settings.Embedding),
		s.aiValidator.ValidateLLM(&settings.LLM),
	)
}

func (s *SettingsService) env(name string) (string, bool) {
	if name == "" {
		return "", false
	}
	v, ok := s.lookupEnv(name)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

// Keys returns every known config key, sorted.
func Keys() []string {
	keys := make([]string, len(fields))
	for i, f := range fields {
		keys[i] = f.key
	}
	slices.Sort(keys)
	return keys
}

// IsSecretKey reports whether key holds a credential that is masked on display.
func IsSecretKey(key string) bool {
	f, ok := fieldByKey(key)
	return ok && f.secret
}

// field binds a config key to one AppSettings value.
type field struct {
	key    string
	env    []string
	secret bool

	parse  func(s *domain.AppSettings, raw string) error
	format func(s *domain.AppSettings) string
	stored func(s *domain.AppSettings) any
}

//nolint:lll // Bindings are kept one per line.
var fields = []field{
	stringField("embedding.provider", nil, func(s *domain.AppSettings) *domain.AIProvider { return &s.Embedding.Provider }),
	stringField("embedding.model", []string{"EMBEDDING_MODEL"}, func(s *domain.AppSettings) *string { return &s.Embedding.Model }),
	stringField("embedding.base_url", nil, func(s *domain.AppSettings) *string { return &s.Embedding.BaseURL }),
	secretField(keyEmbedAPIKey, []string{"RAGBOT_EMBEDDING_API_KEY"}, func(s *domain.AppSettings) *string { return &s.Embedding.APIKey }),
	intField("embedding.batch_size", nil, func(s *domain.AppSettings) *int { return &s.Embedding.BatchSize }),
	intField("embedding.concurrency", nil, func(s *domain.AppSettings) *int { return &s.Embedding.Concurrency }),
	floatField("embedding.requests_per_second", nil, func(s *domain.AppSettings) *float64 { return &s.Embedding.RequestsPerSecond }),

	stringField("llm.provider", nil, func(s *domain.AppSettings) *domain.AIProvider { return &s.LLM.Provider }),
	stringField("llm.model", []string{"CHAT_MODEL"}, func(s *domain.AppSettings) *string { return &s.LLM.Model }),
	stringField("llm.base_url", nil, func(s *domain.AppSettings) *string { return &s.LLM.BaseURL }),
	secretField(keyLLMAPIKey, []string{"RAGBOT_LLM_API_KEY"}, func(s *domain.AppSettings) *string { return &s.LLM.APIKey }),
	intField("llm.max_tokens", []string{"MAX_TOKENS"}, func(s *domain.AppSettings) *int { return &s.LLM.MaxTokens }),
	floatField("llm.temperature", []string{"TEMPERATURE"}, func(s *domain.AppSettings) *float64 { return &s.LLM.Temperature }),
	floatField("llm.requests_per_second", nil, func(s *domain.AppSettings) *float64 { return &s.LLM.RequestsPerSecond }),

	intField("chunking.size", []string{"CHUNK_SIZE"}, func(s *domain.AppSettings) *int { return &s.Chunking.Size }),
	intField("chunking.overlap", []string{"CHUNK_OVERLAP"}, func(s *domain.AppSettings) *int { return &s.Chunking.Overlap }),
	listField("chunking.processors", nil, func(s *domain.AppSettings) *[]string { return &s.Chunking.Processors }),

	intField("retrieval.k", nil, func(s *domain.AppSettings) *int { return &s.Retrieval.K }),
	intField("retrieval.per_document_cap", nil, func(s *domain.AppSettings) *int { return &s.Retrieval.PerDocumentCap }),
	intField("retrieval.margin", nil, func(s *domain.AppSettings) *int { return &s.Retrieval.Margin }),
	intField("retrieval.max_candidates", nil, func(s *domain.AppSettings) *int { return &s.Retrieval.MaxCandidates }),

	intField("conversation.max_turns", nil, func(s *domain.AppSettings) *int { return &s.Conversation.MaxTurns }),
	intField("conversation.max_tokens", nil, func(s *domain.AppSettings) *int { return &s.Conversation.MaxTokens }),
	durationField("conversation.max_age", nil, func(s *domain.AppSettings) *time.Duration { return &s.Conversation.MaxAge }),
	durationField("conversation.recent_window", nil, func(s *domain.AppSettings) *time.Duration { return &s.Conversation.RecentWindow }),
	stringField("conversation.backend", nil, func(s *domain.AppSettings) *domain.ConversationBackend { return &s.Conversation.Backend }),

	intField("synthesis.max_prompt_tokens", nil, func(s *domain.AppSettings) *int { return &s.Synthesis.MaxPromptTokens }),
	intField("synthesis.max_history_tokens", nil, func(s *domain.AppSettings) *int { return &s.Synthesis.MaxHistoryTokens }),

	intField("retry.max_attempts", nil, func(s *domain.AppSettings) *int { return &s.Retry.MaxAttempts }),
	durationField("retry.base_delay", nil, func(s *domain.AppSettings) *time.Duration { return &s.Retry.BaseDelay }),
	durationField("retry.max_delay", nil, func(s *domain.AppSettings) *time.Duration { return &s.Retry.MaxDelay }),

	stringField("storage.backend", []string{"RAGBOT_STORAGE_BACKEND"}, func(s *domain.AppSettings) *domain.StorageBackend { return &s.Storage.Backend }),
	pathField("storage.data_dir", []string{"RAGBOT_DATA_DIR"}, func(s *domain.AppSettings) *string { return &s.Storage.DataDir }),
	secretField("storage.database_url", []string{"DATABASE_URL"}, func(s *domain.AppSettings) *string { return &s.Storage.DatabaseURL }),

	intField("ingest.workers", nil, func(s *domain.AppSettings) *int { return &s.Ingest.Workers }),
	intField("ingest.max_file_bytes", nil, func(s *domain.AppSettings) *int64 { return &s.Ingest.MaxFileBytes }),

	secretField("telegram.token", []string{"TELEGRAM_BOT_TOKEN"}, func(s *domain.AppSettings) *string { return &s.Telegram.Token }),
	boolField("telegram.allow_uploads", nil, func(s *domain.AppSettings) *bool { return &s.Telegram.AllowUploads }),

	stringField("http.addr", []string{"RAGBOT_HTTP_ADDR"}, func(s *domain.AppSettings) *string { return &s.HTTP.Addr }),
}

func fieldByKey(key string) (field, bool) {
	for _, f := range fields {
		if f.key == key {
			return f, true
		}
	}
	return field{}, false
}

func stringField[T ~string](key string, env []string, ptr func(*domain.AppSettings) *T) field {
	return field{
		key: key,
		env: env,
		parse: func(s *domain.AppSettings, raw string) error {
			*ptr(s) = T(strings.TrimSpace(raw))
			return nil
		},
		format: func(s *domain.AppSettings) string { return string(*ptr(s)) },
		stored: func(s *domain.AppSettings) any { return string(*ptr(s)) },
	}
}

func secretField(key string, env []string, ptr func(*domain.AppSettings) *string) field {
	f := stringField(key, env, ptr)
	f.secret = true
	return f
}

// pathField expands a leading ~ to the home directory.
func pathField(key string, env []string, ptr func(*domain.AppSettings) *string) field {
	f := stringField(key, env, ptr)
	f.parse = func(s *domain.AppSettings, raw string) error {
		raw = strings.TrimSpace(raw)
		if rest, ok := strings.CutPrefix(raw, "~"); ok {
			home, err := os.UserHomeDir()
			if err != nil {
				return err
			}
			raw = filepath.Join(home, rest)
		}
		*ptr(s) = raw
		return nil
	}
	return f
}

func intField[T ~int | ~int64](key string, env []string, ptr func(*domain.AppSettings) *T) field {
	return field{
		key: key,
		env: env,
		parse: func(s *domain.AppSettings, raw string) error {
			n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
			if err != nil {
				return fmt.Errorf("%q is not an integer", raw)
			}
			*ptr(s) = T(n)
			return nil
		},
		format: func(s *domain.AppSettings) string { return strconv.FormatInt(int64(*ptr(s)), 10) },
		stored: func(s *domain.AppSettings) any { return int64(*ptr(s)) },
	}
}

func floatField(key string, env []string, ptr func(*domain.AppSettings) *float64) field {
	return field{
		key: key,
		env: env,
		parse: func(s *domain.AppSettings, raw string) error {
			v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
			if err != nil {
				return fmt.Errorf("%q is not a number", raw)
			}
			*ptr(s) = v
			return nil
		},
		format: func(s *domain.AppSettings) string { return strconv.FormatFloat(*ptr(s), 'g', -1, 64) },
		stored: func(s *domain.AppSettings) any { return *ptr(s) },
	}
}

func boolField(key string, env []string, ptr func(*domain.AppSettings) *bool) field {
	return field{
		key: key,
		env: env,
		parse: func(s *domain.AppSettings, raw string) error {
			v, err := strconv.ParseBool(strings.TrimSpace(raw))
			if err != nil {
				return fmt.Errorf("%q is not a boolean", raw)
			}
			*ptr(s) = v
			return nil
		},
		format: func(s *domain.AppSettings) string { return strconv.FormatBool(*ptr(s)) },
		stored: func(s *domain.AppSettings) any { return *ptr(s) },
	}
}

// durationField accepts Go durations ("90s", "24h") and plain seconds.
func durationField(key string, env []string, ptr func(*domain.AppSettings) *time.Duration) field {
	return field{
		key: key,
		env: env,
		parse: func(s *domain.AppSettings, raw string) error {
			raw = strings.TrimSpace(raw)
			if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
				*ptr(s) = time.Duration(secs) * time.Second
				return nil
			}
			d, err := time.ParseDuration(raw)
			if err != nil {
				return fmt.Errorf("%q is not a duration", raw)
			}
			*ptr(s) = d
			return nil
		},
		format: func(s *domain.AppSettings) string { return ptr(s).String() },
		stored: func(s *domain.AppSettings) any { return ptr(s).String() },
	}
}

// listField reads comma separated values.
func listField(key string, env []string, ptr func(*domain.AppSettings) *[]string) field {
	return field{
		key: key,
		env: env,
		parse: func(s *domain.AppSettings, raw string) error {
			var out []string
			for item := range strings.SplitSeq(raw, ",") {
				if item = strings.TrimSpace(item); item != "" {
					out = append(out, item)
				}
			}
			*ptr(s) = out
			return nil
		},
		format: func(s *domain.AppSettings) string { return strings.Join(*ptr(s), ",") },
		stored: func(s *domain.AppSettings) any { return slices.Clone(*ptr(s)) },
	}
}

// configString renders a decoded TOML value in the form the field parsers accept.
func configString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []string:
		return strings.Join(t, ",")
	case []any:
		parts := make([]string, len(t))
		for i, item := range t {
			parts[i] = fmt.Sprint(item)
		}
		return strings.Join(parts, ",")
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

// maskSecret hides all but the last four characters of long secrets.
func maskSecret(v string) string {
	switch {
	case v == "":
		return ""
	case len(v) <= 8:
		return "****"
	default:
		return "****" + v[len(v)-4:]
	}
}
