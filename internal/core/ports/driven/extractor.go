package driven

import (
	"context"

	"github.com/custodia-labs/ragbot/internal/core/domain"
)

// TextExtractor turns an uploaded file into plain text.
type TextExtractor interface {
	// Extract returns the text of every page that yielded any.
	// Returns domain.ErrExtraction when the bytes are not a readable
	// container or no page yields text.
	Extract(ctx context.Context, data []byte) (*domain.ExtractedText, error)
}
