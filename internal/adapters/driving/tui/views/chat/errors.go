package chat

import "errors"

// ErrNoRAGService is returned when the view has no service to ask.
var ErrNoRAGService = errors.New("rag service not available")
