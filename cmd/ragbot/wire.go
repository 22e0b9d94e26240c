package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/custodia-labs/ragbot/internal/adapters/driven/ai"
	"github.com/custodia-labs/ragbot/internal/adapters/driven/config/file"
	"github.com/custodia-labs/ragbot/internal/adapters/driven/extractor/pdf"
	"github.com/custodia-labs/ragbot/internal/adapters/driven/storage/bolt"
	"github.com/custodia-labs/ragbot/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/ragbot/internal/adapters/driven/storage/postgres"
	"github.com/custodia-labs/ragbot/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/ragbot/internal/adapters/driving/cli"
	"github.com/custodia-labs/ragbot/internal/core/domain"
	"github.com/custodia-labs/ragbot/internal/core/ports/driven"
	"github.com/custodia-labs/ragbot/internal/core/services"
	"github.com/custodia-labs/ragbot/internal/logger"
	"github.com/custodia-labs/ragbot/internal/postprocessors"
)

// closers releases resources in reverse order of acquisition.
type closers []func() error

func (c *closers) add(f func() error) {
	*c = append(*c, f)
}

func (c closers) close() error {
	var errs []error
	for i := len(c) - 1; i >= 0; i-- {
		errs = append(errs, c[i]())
	}
	return errors.Join(errs...)
}

// bootstrap builds the services for one command. Settings are validated
// once here; a bad configuration stops the process before any work starts.
func bootstrap(ctx context.Context, configDir string, full bool) (*cli.Services, error) {
	if configDir == "" {
		dir, err := file.DefaultDir()
		if err != nil {
			return nil, err
		}
		configDir = dir
	}

	configStore, err := file.NewConfigStore(configDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrConfiguration, err)
	}
	settingsService := services.NewSettingsService(
		configStore, ai.NewConfigValidator(), filepath.Join(configDir, "data"))

	if !full {
		return &cli.Services{Settings: settingsService}, nil
	}

	settings, err := settingsService.Load()
	if err != nil {
		return nil, err
	}
	logger.Debug("config: %s", settingsService.Path())

	var cs closers
	svc, err := build(ctx, configDir, settings, &cs)
	if err != nil {
		_ = cs.close()
		return nil, err
	}
	svc.Settings = settingsService
	svc.AppSettings = settings
	svc.Close = cs.close
	return svc, nil
}

func build(ctx context.Context, configDir string, settings *domain.AppSettings, cs *closers) (*cli.Services, error) {
	providers, err := ai.New(settings)
	if err != nil {
		return nil, err
	}
	cs.add(func() error {
		providers.Close()
		return nil
	})

	vectors, conversations, err := openStores(ctx, settings, providers.Embedding, cs)
	if err != nil {
		return nil, err
	}

	pipeline, err := postprocessors.NewDefaultRegistry().BuildPipeline(settings.Chunking)
	if err != nil {
		return nil, err
	}

	prompts, err := file.NewPromptStore(filepath.Join(configDir, "prompts"))
	if err != nil {
		return nil, err
	}

	retry := services.NewRetryPolicy(settings.Retry)
	embedder := services.NewEmbeddingClient(providers.Embedding, settings.Embedding, retry)

	history := services.NewConversationManager(conversations, settings.Conversation)
	rag := services.NewRAGService(
		services.NewRetriever(embedder, vectors, settings.Retrieval),
		history,
		services.NewSynthesizer(providers.LLM, prompts, retry, settings.Synthesis, settings.LLM),
		settings.Retrieval.K,
	)

	return &cli.Services{
		RAG:           rag,
		Ingest:        services.NewIngestService(vectors, pdf.New(), pipeline, embedder, settings.Ingest),
		Documents:     services.NewDocumentService(vectors),
		Conversations: history,
		Status: services.NewStatusService(
			vectors, string(settings.Storage.Backend), providers.Embedding, providers.LLM),
	}, nil
}

// openStores opens the document store and the conversation mirror.
func openStores(
	ctx context.Context, settings *domain.AppSettings, embedding driven.EmbeddingService, cs *closers,
) (driven.VectorStore, driven.ConversationStore, error) {
	var (
		vectors       driven.VectorStore
		sqliteStore   *sqlite.Store
		postgresStore *postgres.Store
	)

	switch settings.Storage.Backend {
	case domain.StorageSQLite:
		s, err := sqlite.NewStore(settings.Storage.DataDir)
		if err != nil {
			return nil, nil, err
		}
		cs.add(s.Close)
		sqliteStore = s
		vectors = s.VectorStore()

	case domain.StoragePostgres:
		s, err := postgres.NewStore(ctx, postgres.Config{
			DatabaseURL: settings.Storage.DatabaseURL,
			Dimensions:  embeddingDimensions(settings.Embedding, embedding),
		})
		if err != nil {
			return nil, nil, err
		}
		cs.add(s.Close)
		postgresStore = s
		vectors = s.VectorStore()

	case domain.StorageMemory:
		s := memory.NewVectorStore()
		cs.add(s.Close)
		vectors = s

	default:
		return nil, nil, fmt.Errorf("%w: unknown storage backend %q", domain.ErrConfiguration, settings.Storage.Backend)
	}

	var conversations driven.ConversationStore
	switch settings.Conversation.Backend {
	case domain.ConversationSQLite:
		conversations = sqliteStore.ConversationStore()
	case domain.ConversationPostgres:
		conversations = postgresStore.ConversationStore()
	case domain.ConversationBolt:
		s, err := bolt.NewConversationStore(settings.Storage.DataDir)
		if err != nil {
			return nil, nil, err
		}
		cs.add(s.Close)
		conversations = s
	default:
		conversations = memory.NewConversationStore()
	}

	logger.Debug("storage: %s, conversations: %s", settings.Storage.Backend, settings.Conversation.Backend)
	return vectors, conversations, nil
}

// embeddingDimensions sizes the pgvector column: the provider's own value,
// then the known-model table.
func embeddingDimensions(settings domain.EmbeddingSettings, embedding driven.EmbeddingService) int {
	if embedding != nil {
		if d := embedding.Dimensions(); d > 0 {
			return d
		}
	}
	return domain.EmbeddingDimensions()[settings.Model]
}
