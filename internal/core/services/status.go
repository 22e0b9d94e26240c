package services

import (
	"context"
	"time"

	"github.com/custodia-labs/ragbot/internal/core/ports/driven"
	"github.com/custodia-labs/ragbot/internal/core/ports/driving"
)

// Ensure StatusService implements the interface.
var _ driving.StatusService = (*StatusService)(nil)

// probeTimeout bounds each dependency check.
const probeTimeout = 5 * time.Second

// StatusService probes the store and the AI providers.
type StatusService struct {
	store        driven.VectorStore
	storeName    string
	embedding    driven.EmbeddingService
	llm          driven.LLMService
	probeTimeout time.Duration
}

// NewStatusService creates a status service. The providers may be nil
// when they could not be constructed; they are then reported as failing.
func NewStatusService(
	store driven.VectorStore,
	storeName string,
	embedding driven.EmbeddingService,
	llm driven.LLMService,
) *StatusService {
	return &StatusService{
		store:        store,
		storeName:    storeName,
		embedding:    embedding,
		llm:          llm,
		probeTimeout: probeTimeout,
	}
}

// Diagnose checks every dependency and reports corpus statistics.
func (s *StatusService) Diagnose(ctx context.Context) *driving.Diagnosis {
	d := &driving.Diagnosis{Healthy: true}

	d.Checks = append(d.Checks, s.probe(ctx, "store", s.storeName, s.store != nil, func(ctx context.Context) error {
		return s.store.Ping(ctx)
	}))

	embedModel := ""
	if s.embedding != nil {
		embedModel = s.embedding.ModelName()
	}
	d.Checks = append(d.Checks, s.probe(ctx, "embedding", embedModel, s.embedding != nil, func(ctx context.Context) error {
		return s.embedding.Ping(ctx)
	}))

	llmModel := ""
	if s.llm != nil {
		llmModel = s.llm.ModelName()
	}
	d.Checks = append(d.Checks, s.probe(ctx, "llm", llmModel, s.llm != nil, func(ctx context.Context) error {
		return s.llm.Ping(ctx)
	}))

	for _, c := range d.Checks {
		if !c.OK {
			d.Healthy = false
		}
	}

	if s.store != nil && d.Checks[0].OK {
		if stats, err := s.store.Stats(ctx); err == nil {
			d.Corpus = stats
		}
	}
	return d
}

func (s *StatusService) probe(
	ctx context.Context, name, detail string, configured bool, ping func(context.Context) error,
) driving.Check {
	check := driving.Check{Name: name, Detail: detail}
	if !configured {
		check.Error = "not configured"
		return check
	}

	ctx, cancel := context.WithTimeout(ctx, s.probeTimeout)
	defer cancel()

	start := time.Now()
	err := ping(ctx)
	check.Latency = time.Since(start)
	if err != nil {
		check.Error = err.Error()
		return check
	}
	check.OK = true
	return check
}
