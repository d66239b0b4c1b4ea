// Package splitter turns raw document content into ordered chunk texts.
package splitter

import (
	"regexp"
	"strings"

	"capture/internal/rag"
)

var sentenceRe = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?]+)`)

// TextSplitter splits content into overlapping windows of sentences or
// words. Output is deterministic for identical input and configuration.
type TextSplitter struct {
	splitBy      string
	splitLength  int
	splitOverlap int
	minChunkSize int
}

var _ rag.Splitter = (*TextSplitter)(nil)

// New creates a TextSplitter. splitBy is "sentence" or "word";
// minChunkSize is the minimum unit count for a trailing chunk before it is
// merged into its predecessor.
func New(splitBy string, splitLength, splitOverlap, minChunkSize int) *TextSplitter {
	if splitBy != "word" {
		splitBy = "sentence"
	}
	if splitLength <= 0 {
		splitLength = 10
	}
	if splitOverlap < 0 || splitOverlap >= splitLength {
		splitOverlap = 0
	}
	if minChunkSize < 0 {
		minChunkSize = 0
	}
	return &TextSplitter{
		splitBy:      splitBy,
		splitLength:  splitLength,
		splitOverlap: splitOverlap,
		minChunkSize: minChunkSize,
	}
}

// Split returns the ordered chunk texts for content. Blank content yields nil.
func (s *TextSplitter) Split(content string) []string {
	units := s.units(content)
	if len(units) == 0 {
		return nil
	}

	var chunks []string
	i := 0
	for i < len(units) {
		end := i + s.splitLength
		if end > len(units) {
			end = len(units)
		}
		size := end - i
		text := strings.Join(units[i:end], " ")

		// A short trailing window is folded into the previous chunk rather
		// than indexed as a fragment on its own.
		if size < s.minChunkSize && len(chunks) > 0 && end == len(units) {
			chunks[len(chunks)-1] = chunks[len(chunks)-1] + " " + text
			break
		}
		chunks = append(chunks, text)

		if end == len(units) {
			break
		}
		i = end - s.splitOverlap
	}
	return chunks
}

func (s *TextSplitter) units(content string) []string {
	if s.splitBy == "word" {
		return strings.Fields(content)
	}

	sentences := sentenceRe.FindAllString(content, -1)
	if len(sentences) == 0 {
		trimmed := strings.TrimSpace(content)
		if trimmed == "" {
			return nil
		}
		return []string{trimmed}
	}
	for i := range sentences {
		sentences[i] = strings.TrimSpace(sentences[i])
	}
	return sentences
}
