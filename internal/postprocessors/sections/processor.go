// Package sections tags chunks with the chapter or section heading they fall under.
package sections

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/custodia-labs/ragbot/internal/core/domain"
)

// maxHeadingLength bounds the stored heading in runes.
const maxHeadingLength = 80

var headingPattern = regexp.MustCompile(`(?i)^(Capítulo|Capitulo|Chapter|Sección|Seccion|Section|Parte|Part)\b`)

type heading struct {
	offset int
	title  string
}

// Processor sets Chunk.Section from headings found in the document text.
// It implements the PostProcessor interface.
type Processor struct{}

// New creates a section tagging processor.
func New() *Processor {
	return &Processor{}
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "sections"
}

// Process tags each chunk with the last heading that starts at or before
// the chunk. A chunk preceding every heading takes the first heading it
// contains, if any.
func (p *Processor) Process(_ context.Context, doc *domain.Document, chunks []domain.Chunk) ([]domain.Chunk, error) {
	headings := findHeadings(doc.Content)
	if len(headings) == 0 {
		return chunks, nil
	}

	for i := range chunks {
		chunks[i].Section = sectionFor(headings, chunks[i].StartOffset, chunks[i].EndOffset)
	}
	return chunks, nil
}

// findHeadings returns heading lines with their rune offsets.
func findHeadings(text string) []heading {
	var out []heading
	offset := 0
	for line := range strings.Lines(text) {
		trimmed := strings.TrimSpace(line)
		if headingPattern.MatchString(trimmed) {
			out = append(out, heading{offset: offset, title: truncate(trimmed)})
		}
		offset += utf8.RuneCountInString(line)
	}
	return out
}

func sectionFor(headings []heading, start, end int) string {
	current := ""
	for _, h := range headings {
		if h.offset > start {
			if current == "" && h.offset < end {
				return h.title
			}
			break
		}
		current = h.title
	}
	return current
}

func truncate(s string) string {
	if utf8.RuneCountInString(s) <= maxHeadingLength {
		return s
	}
	return string([]rune(s)[:maxHeadingLength])
}
