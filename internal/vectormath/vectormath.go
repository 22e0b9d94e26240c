// Package vectormath provides the similarity scoring and ranking shared by
// stores that search vectors in process.
package vectormath

import (
	"cmp"
	"encoding/binary"
	"fmt"
	"math"
	"slices"

	"github.com/custodia-labs/ragbot/internal/core/domain"
)

// Cosine returns the cosine similarity of a and b.
// Mismatched lengths and zero vectors score 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Compare orders results best first: higher score, then lower chunk
// ordinal, then lower document id.
func Compare(a, b domain.RetrievalResult) int {
	if c := cmp.Compare(b.Score, a.Score); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Chunk.Ordinal, b.Chunk.Ordinal); c != 0 {
		return c
	}
	return cmp.Compare(a.Chunk.DocumentID, b.Chunk.DocumentID)
}

// TopK sorts results with Compare and returns at most k of them.
func TopK(results []domain.RetrievalResult, k int) []domain.RetrievalResult {
	slices.SortFunc(results, Compare)
	if len(results) > k {
		results = results[:k]
	}
	return results
}

// Encode serialises a vector as little-endian float32 values.
func Encode(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

// Decode is the inverse of Encode.
func Decode(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}
