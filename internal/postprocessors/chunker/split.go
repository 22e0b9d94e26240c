package chunker

import (
	"fmt"
	"iter"
	"unicode"

	"github.com/custodia-labs/ragbot/internal/core/domain"
)

// Span is one window of the split text. Start and End are rune offsets, half-open.
type Span struct {
	Index int
	Start int
	End   int
	Text  string
}

// Validate reports whether size and overlap describe a usable window.
func Validate(size, overlap int) error {
	if size <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", domain.ErrConfiguration, size)
	}
	if overlap < 0 || overlap >= size {
		return fmt.Errorf("%w: chunk overlap must be in [0, %d), got %d", domain.ErrConfiguration, size, overlap)
	}
	return nil
}

// Split yields consecutive windows of at most size runes. Consecutive windows
// share exactly overlap runes, so dropping the first overlap runes of every
// window but the first and concatenating reconstructs text.
//
// Within a window the cut is moved back to the last paragraph break, else
// the last sentence end, else the last whitespace found after the overlap
// region. Without any of those the window is cut hard at size.
//
// Invalid parameters never loop forever: a non-positive size falls back to
// DefaultChunkSize and an out-of-range overlap to zero. Validate at startup
// to reject them instead.
func Split(text string, size, overlap int) iter.Seq[Span] {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	return func(yield func(Span) bool) {
		if text == "" {
			return
		}
		runes := []rune(text)
		n := len(runes)

		start := 0
		for idx := 0; ; idx++ {
			end := n
			if start+size < n {
				end = cutPoint(runes, start+overlap, start+size)
			}
			span := Span{Index: idx, Start: start, End: end, Text: string(runes[start:end])}
			if !yield(span) || end == n {
				return
			}
			start = end - overlap
		}
	}
}

// cutPoint picks the exclusive end of a window in (low, high].
func cutPoint(runes []rune, low, high int) int {
	sentence, space := -1, -1
	for e := high; e > low; e-- {
		prev := runes[e-1]
		if prev == '\n' && e-2 >= 0 && runes[e-2] == '\n' {
			return e
		}
		if sentence < 0 && unicode.IsSpace(prev) && e-2 >= 0 && isSentenceEnd(runes[e-2]) {
			sentence = e
		}
		if space < 0 && unicode.IsSpace(prev) {
			space = e
		}
	}
	switch {
	case sentence > 0:
		return sentence
	case space > 0:
		return space
	default:
		return high
	}
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}
