// Package ai provides factory functions for creating AI service adapters.
package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	ollamaembed "github.com/custodia-labs/ragbot/internal/adapters/driven/embedding/ollama"
	openaiembed "github.com/custodia-labs/ragbot/internal/adapters/driven/embedding/openai"
	anthropicllm "github.com/custodia-labs/ragbot/internal/adapters/driven/llm/anthropic"
	ollamallm "github.com/custodia-labs/ragbot/internal/adapters/driven/llm/ollama"
	openaillm "github.com/custodia-labs/ragbot/internal/adapters/driven/llm/openai"
	"github.com/custodia-labs/ragbot/internal/adapters/driven/ratelimit"
	"github.com/custodia-labs/ragbot/internal/core/domain"
	"github.com/custodia-labs/ragbot/internal/core/ports/driven"
)

// pingTimeout is the maximum time to wait for service connectivity validation.
const pingTimeout = 5 * time.Second

// Services holds the AI providers of one process.
type Services struct {
	Embedding driven.EmbeddingService
	LLM       driven.LLMService
}

// Close releases all resources held by the providers.
func (s *Services) Close() {
	if s.Embedding != nil {
		_ = s.Embedding.Close()
	}
	if s.LLM != nil {
		_ = s.LLM.Close()
	}
}

// New creates both providers. Either one missing is a configuration error;
// reachability is not checked here, Diagnose reports it.
func New(settings *domain.AppSettings) (*Services, error) {
	embedding, embedErr := CreateEmbeddingService(&settings.Embedding)
	if embedErr == nil && embedding == nil {
		embedErr = fmt.Errorf("%w: embedding provider %q is not configured", domain.ErrConfiguration, settings.Embedding.Provider)
	}
	llm, llmErr := CreateLLMService(&settings.LLM)
	if llmErr == nil && llm == nil {
		llmErr = fmt.Errorf("%w: llm provider %q is not configured", domain.ErrConfiguration, settings.LLM.Provider)
	}

	s := &Services{Embedding: embedding, LLM: llm}
	if err := errors.Join(embedErr, llmErr); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// ValidateEmbeddingConfig creates an embedding service from settings and pings it.
// Unconfigured settings have nothing to validate.
func ValidateEmbeddingConfig(settings *domain.EmbeddingSettings) error {
	svc, err := CreateEmbeddingService(settings)
	if err != nil || svc == nil {
		return err
	}
	defer svc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := svc.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %s unreachable: %w", domain.ErrEmbeddingUnavailable, settings.Provider, err)
	}
	return nil
}

// ValidateLLMConfig creates an LLM service from settings and pings it.
// Unconfigured settings have nothing to validate.
func ValidateLLMConfig(settings *domain.LLMSettings) error {
	svc, err := CreateLLMService(settings)
	if err != nil || svc == nil {
		return err
	}
	defer svc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := svc.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %s unreachable: %w", domain.ErrGenerationUnavailable, settings.Provider, err)
	}
	return nil
}

// CreateEmbeddingService creates the appropriate embedding service based on settings.
// Returns nil if the provider is not configured.
func CreateEmbeddingService(settings *domain.EmbeddingSettings) (driven.EmbeddingService, error) {
	if settings == nil {
		return nil, nil
	}
	if settings.Provider == domain.AIProviderAnthropic {
		return nil, fmt.Errorf("%w: anthropic does not support embeddings, use ollama or openai",
			domain.ErrConfiguration)
	}
	if !settings.IsConfigured() {
		return nil, nil
	}

	limiter := ratelimit.New(settings.RequestsPerSecond)
	switch settings.Provider {
	case domain.AIProviderOllama:
		return ollamaembed.NewEmbeddingService(ollamaembed.Config{
			BaseURL: settings.BaseURL,
			Model:   settings.Model,
			Limiter: limiter,
		}), nil

	case domain.AIProviderOpenAI:
		return openaiembed.NewEmbeddingService(openaiembed.Config{
			APIKey:  settings.APIKey,
			BaseURL: settings.BaseURL,
			Model:   settings.Model,
			Limiter: limiter,
		})

	default:
		return nil, fmt.Errorf("%w: unsupported embedding provider: %s", domain.ErrConfiguration, settings.Provider)
	}
}

// CreateLLMService creates the appropriate LLM service based on settings.
// Returns nil if the provider is not configured.
func CreateLLMService(settings *domain.LLMSettings) (driven.LLMService, error) {
	if settings == nil || !settings.IsConfigured() {
		return nil, nil
	}

	limiter := ratelimit.New(settings.RequestsPerSecond)
	switch settings.Provider {
	case domain.AIProviderOllama:
		return ollamallm.NewLLMService(ollamallm.LLMConfig{
			BaseURL: settings.BaseURL,
			Model:   settings.Model,
			Limiter: limiter,
		}), nil

	case domain.AIProviderOpenAI:
		return openaillm.NewLLMService(openaillm.LLMConfig{
			APIKey:  settings.APIKey,
			BaseURL: settings.BaseURL,
			Model:   settings.Model,
			Limiter: limiter,
		})

	case domain.AIProviderAnthropic:
		return anthropicllm.NewLLMService(anthropicllm.Config{
			APIKey:  settings.APIKey,
			BaseURL: settings.BaseURL,
			Model:   settings.Model,
			Limiter: limiter,
		})

	default:
		return nil, fmt.Errorf("%w: unsupported LLM provider: %s", domain.ErrConfiguration, settings.Provider)
	}
}
