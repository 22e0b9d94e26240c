package domain

import (
	"time"
	"unicode/utf8"
)

// RetrievalResult is a ranked chunk returned by similarity search.
// It is ephemeral and never persisted.
type RetrievalResult struct {
	// Chunk is the matched chunk. Embedding is not populated.
	Chunk Chunk

	// Score is the cosine similarity between the query and the chunk, higher is closer.
	Score float64

	// Filename is the source document's filename, used for citations.
	Filename string
}

// Answer is the output of a question.
type Answer struct {
	// Text is the generated answer.
	Text string

	// Citations lists the filenames whose chunks were fed into the prompt, in rank order.
	Citations []string

	// Evidence is the retrieval results that made it into the prompt.
	Evidence []RetrievalResult
}

// CorpusStats summarises the stored documents.
type CorpusStats struct {
	Documents      int
	Chunks         int
	ByStatus       map[DocumentStatus]int
	LastIngestedAt time.Time
}

// EstimateTokens approximates the token count of text as one token per four characters.
// Prompt and history budgets are expressed in this unit.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}
