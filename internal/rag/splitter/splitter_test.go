package splitter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitSentences(t *testing.T) {
	s := New("sentence", 2, 0, 0)

	chunks := s.Split("One. Two. Three. Four.")

	require.Len(t, chunks, 2)
	assert.Equal(t, "One. Two.", chunks[0])
	assert.Equal(t, "Three. Four.", chunks[1])
}

func TestSplitOverlap(t *testing.T) {
	s := New("sentence", 2, 1, 0)

	chunks := s.Split("One. Two. Three.")

	require.Len(t, chunks, 2)
	assert.Equal(t, "One. Two.", chunks[0])
	assert.Equal(t, "Two. Three.", chunks[1])
}

func TestSplitWords(t *testing.T) {
	s := New("word", 3, 0, 0)

	chunks := s.Split("alpha beta gamma delta epsilon")

	require.Len(t, chunks, 2)
	assert.Equal(t, "alpha beta gamma", chunks[0])
	assert.Equal(t, "delta epsilon", chunks[1])
}

func TestSplitMergesShortTrailingChunk(t *testing.T) {
	s := New("sentence", 3, 0, 3)

	chunks := s.Split("One. Two. Three. Four.")

	require.Len(t, chunks, 1)
	assert.Equal(t, "One. Two. Three. Four.", chunks[0])
}

func TestSplitNoSentenceBoundary(t *testing.T) {
	s := New("sentence", 5, 0, 0)

	chunks := s.Split("no terminal punctuation here")

	require.Len(t, chunks, 1)
	assert.Equal(t, "no terminal punctuation here", chunks[0])
}

func TestSplitBlankContent(t *testing.T) {
	s := New("sentence", 5, 0, 0)

	assert.Nil(t, s.Split(""))
	assert.Nil(t, s.Split("   \n\t "))
}

func TestSplitDeterministic(t *testing.T) {
	s := New("sentence", 4, 1, 2)
	content := strings.Repeat("The quick brown fox jumps. ", 12)

	assert.Equal(t, s.Split(content), s.Split(content))
}
