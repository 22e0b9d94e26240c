package postprocessors

import (
	"github.com/custodia-labs/ragbot/internal/core/domain"
	"github.com/custodia-labs/ragbot/internal/core/ports/driven"
	"github.com/custodia-labs/ragbot/internal/postprocessors/chunker"
	"github.com/custodia-labs/ragbot/internal/postprocessors/sections"
)

const chunkerName = "chunker"

// RegisterDefaults registers all built-in processors with the registry.
// Call this during application initialisation to enable standard processors.
func RegisterDefaults(r *Registry) {
	r.Register(chunkerName, buildChunker)
	r.Register("sections", buildSections)
}

// NewDefaultRegistry returns a registry with the built-in processors.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	RegisterDefaults(r)
	return r
}

// buildChunker creates a chunker processor. Size and overlap are
// validated here as well as at startup so a bad pipeline never builds.
func buildChunker(settings domain.ChunkingSettings) (driven.PostProcessor, error) {
	if err := chunker.Validate(settings.Size, settings.Overlap); err != nil {
		return nil, err
	}
	return chunker.New(
		chunker.WithChunkSize(settings.Size),
		chunker.WithOverlap(settings.Overlap),
	), nil
}

func buildSections(_ domain.ChunkingSettings) (driven.PostProcessor, error) {
	return sections.New(), nil
}
