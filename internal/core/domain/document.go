package domain

import "time"

// DocumentStatus is the ingestion stage a document has reached.
type DocumentStatus string

const (
	// StatusPending means the document record exists but no text was extracted yet.
	StatusPending DocumentStatus = "pending"

	// StatusChunked means text was extracted and split; embeddings are outstanding.
	StatusChunked DocumentStatus = "chunked"

	// StatusEmbedded means every chunk is stored with its vector and is queryable.
	StatusEmbedded DocumentStatus = "embedded"

	// StatusFailed means a stage failed. Failed documents own no queryable chunks.
	StatusFailed DocumentStatus = "failed"
)

// IsValid returns true if the status is a known value.
func (s DocumentStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusChunked, StatusEmbedded, StatusFailed:
		return true
	}
	return false
}

// IsQueryable returns true if chunks of a document in this status may be retrieved.
func (s DocumentStatus) IsQueryable() bool {
	return s == StatusEmbedded
}

// IsTerminal returns true if no further ingestion stage follows.
func (s DocumentStatus) IsTerminal() bool {
	return s == StatusEmbedded || s == StatusFailed
}

// String returns the string representation.
func (s DocumentStatus) String() string {
	return string(s)
}

// AllDocumentStatuses returns every status in lifecycle order.
func AllDocumentStatuses() []DocumentStatus {
	return []DocumentStatus{StatusPending, StatusChunked, StatusEmbedded, StatusFailed}
}

// Document is an uploaded PDF and its ingestion state.
// Documents own their chunks; deleting a document deletes its chunks.
type Document struct {
	// ID is the unique identifier for the document.
	ID string

	// Filename is the name the PDF was uploaded under. Used for citations.
	Filename string

	// Status is the ingestion stage reached so far.
	Status DocumentStatus

	// TextLength is the number of characters (runes) extracted from the PDF.
	TextLength int

	// PageCount is the number of pages in the PDF container.
	PageCount int

	// ChunkCount is the number of chunks stored for the document.
	ChunkCount int

	// Error holds the failure reason when Status is StatusFailed.
	Error string

	// Content is the extracted text. It is only populated while the
	// document moves through the ingestion pipeline and is never persisted.
	Content string

	// UploadedAt is when the document was received.
	UploadedAt time.Time

	// UpdatedAt is when the status last changed.
	UpdatedAt time.Time
}

// Chunk is a bounded text segment of a document, the unit of embedding and retrieval.
type Chunk struct {
	// ID is the unique identifier for the chunk.
	ID string

	// DocumentID links to the owning Document.
	DocumentID string

	// Ordinal is the sequence index within the document, starting at 0.
	Ordinal int

	// Content is the text of the chunk.
	Content string

	// StartOffset is the rune offset of the first character in the extracted text.
	StartOffset int

	// EndOffset is the rune offset one past the last character.
	EndOffset int

	// Section is the heading the chunk falls under, if one was detected.
	Section string

	// Embedding is the vector representation of Content.
	Embedding []float32

	// CreatedAt is when the chunk was produced.
	CreatedAt time.Time
}

// PageText is the text of a single PDF page.
type PageText struct {
	// Number is the 1-based page number.
	Number int

	// Text is the plain text of the page.
	Text string
}

// ExtractedText is the output of text extraction.
type ExtractedText struct {
	// Pages holds the pages that yielded text, in page order.
	Pages []PageText

	// PageCount is the total number of pages in the container,
	// including pages that were skipped.
	PageCount int

	// Text is the concatenation of Pages separated by newlines.
	Text string
}
