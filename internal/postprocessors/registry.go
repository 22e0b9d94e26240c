package postprocessors

import (
	"fmt"
	"slices"

	"github.com/custodia-labs/ragbot/internal/core/domain"
	"github.com/custodia-labs/ragbot/internal/core/ports/driven"
)

// BuilderFunc creates a PostProcessor from chunking settings.
type BuilderFunc func(settings domain.ChunkingSettings) (driven.PostProcessor, error)

// Registry maps processor names to their builders.
// It allows dynamic construction of the pipeline from configuration.
type Registry struct {
	builders map[string]BuilderFunc
}

// NewRegistry creates a new processor registry.
func NewRegistry() *Registry {
	return &Registry{
		builders: make(map[string]BuilderFunc),
	}
}

// Register adds a processor builder to the registry.
// Name should be unique and match the processor's Name() return value.
func (r *Registry) Register(name string, builder BuilderFunc) {
	r.builders[name] = builder
}

// Build creates a processor by name.
// Returns an error wrapping domain.ErrConfiguration if the name is not registered.
func (r *Registry) Build(name string, settings domain.ChunkingSettings) (driven.PostProcessor, error) {
	builder, ok := r.builders[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown processor: %s", domain.ErrConfiguration, name)
	}
	return builder(settings)
}

// BuildPipeline creates the pipeline named by settings.Processors.
// The first processor must create chunks, so it has to be the chunker.
func (r *Registry) BuildPipeline(settings domain.ChunkingSettings) (*Pipeline, error) {
	if len(settings.Processors) == 0 || settings.Processors[0] != chunkerName {
		return nil, fmt.Errorf("%w: pipeline must start with %q, got %v",
			domain.ErrConfiguration, chunkerName, settings.Processors)
	}

	pipeline := NewPipeline()
	for _, name := range settings.Processors {
		proc, err := r.Build(name, settings)
		if err != nil {
			return nil, err
		}
		pipeline.Add(proc)
	}
	return pipeline, nil
}

// Has returns true if a processor with the given name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.builders[name]
	return ok
}

// Names returns all registered processor names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.builders))
	for name := range r.builders {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
