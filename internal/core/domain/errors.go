package domain

import (
	"context"
	"errors"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates malformed or invalid input from a caller.
	ErrInvalidInput = errors.New("invalid input")

	// ErrExtraction indicates the uploaded bytes are not a readable PDF
	// or no page yielded any text. The document is marked failed.
	ErrExtraction = errors.New("text extraction failed")

	// ErrEmbeddingUnavailable indicates the embedding provider failed
	// after bounded retries, or is not configured.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrGenerationUnavailable indicates the completion provider failed
	// after bounded retries, or is not configured.
	ErrGenerationUnavailable = errors.New("generation service unavailable")

	// ErrStorage indicates a datastore constraint or connectivity failure.
	ErrStorage = errors.New("storage error")

	// ErrConfiguration indicates invalid startup parameters.
	// It is fatal: ragbot refuses to serve traffic with a bad configuration.
	ErrConfiguration = errors.New("invalid configuration")

	// Provider Errors.

	// ErrRateLimited indicates the provider rejected the call with a rate limit.
	// Retried locally by the embedding client and the synthesizer.
	ErrRateLimited = errors.New("rate limited")

	// ErrProviderTransient indicates a temporary provider failure (5xx, reset connection).
	// Retried locally by the embedding client and the synthesizer.
	ErrProviderTransient = errors.New("transient provider failure")
)

// IsTransient reports whether err is worth retrying at a provider boundary.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrProviderTransient) ||
		errors.Is(err, context.DeadlineExceeded)
}

// ErrorKind names the failure kind of err for operator logs.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrExtraction):
		return "extraction_error"
	case errors.Is(err, ErrEmbeddingUnavailable):
		return "embedding_unavailable"
	case errors.Is(err, ErrGenerationUnavailable):
		return "generation_unavailable"
	case errors.Is(err, ErrStorage):
		return "storage_error"
	case errors.Is(err, ErrConfiguration):
		return "configuration_error"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyExists):
		return "already_exists"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "internal"
	}
}

// User-visible replies for failed questions.
const (
	MessageTryAgain         = "Sorry, the assistant is temporarily unavailable. Please try again in a moment."
	MessageRetrievalFailure = "Sorry, I could not search the documents right now. Please try again later."
	MessageInvalidQuestion  = "Please send a non-empty question."
	MessageApology          = "Sorry, something went wrong while processing your question."
)

// UserMessage maps a query failure to the text shown to the user.
// The precise error is never shown; callers log ErrorKind(err) instead.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrEmbeddingUnavailable), errors.Is(err, ErrGenerationUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return MessageTryAgain
	case errors.Is(err, ErrStorage):
		return MessageRetrievalFailure
	case errors.Is(err, ErrInvalidInput):
		return MessageInvalidQuestion
	default:
		return MessageApology
	}
}
