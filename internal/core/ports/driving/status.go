package driving

import (
	"context"
	"time"

	"github.com/custodia-labs/ragbot/internal/core/domain"
)

// StatusService reports the health of the running system.
type StatusService interface {
	// Diagnose checks every dependency. It never fails; problems are reported in the result.
	Diagnose(ctx context.Context) *Diagnosis
}

// Diagnosis is the outcome of a health check.
type Diagnosis struct {
	Checks  []Check
	Corpus  *domain.CorpusStats
	Healthy bool
}

// Check is one probed dependency.
type Check struct {
	// Name identifies the dependency (store, embedding, llm).
	Name string

	// Detail is the backend or model name.
	Detail string

	// OK is true when the dependency answered.
	OK bool

	// Error is the failure text when OK is false.
	Error string

	// Latency is how long the probe took.
	Latency time.Duration
}
