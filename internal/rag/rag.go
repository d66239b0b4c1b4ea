// Package rag defines the external capability contracts consumed by the
// ingestion and query coordinators: splitting content into chunks, computing
// embeddings, similarity search over a vector index, and text generation.
// All implementations are fallible and slow; every call takes a context and
// is bounded by a per-call timeout.
package rag

import (
	"context"

	"capture/internal/model"
)

// Splitter splits document content into ordered chunk texts. Deterministic
// for identical input and configuration.
type Splitter interface {
	Split(content string) []string
}

// Embedder converts free text into numeric vector representations.
type Embedder interface {
	// EmbedText computes an embedding for a single text.
	EmbedText(ctx context.Context, text string) ([]float64, error)
	// EmbedChunks computes one vector per chunk text, order-preserving.
	EmbedChunks(ctx context.Context, texts []string) ([][]float64, error)
}

// VectorIndex persists chunk vectors and supports similarity search.
type VectorIndex interface {
	// Upsert writes chunks with their vectors and metadata to the index and
	// returns the number of points written.
	Upsert(ctx context.Context, chunks []model.Chunk, vectors [][]float64) (int, error)
	// Search returns the topK most similar chunks, descending by score.
	Search(ctx context.Context, vector []float64, topK int) ([]model.ScoredChunk, error)
}

// GenerationOptions tune the generative model invocation.
type GenerationOptions struct {
	Temperature float64
	MaxTokens   int
}

// Generator produces text from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts GenerationOptions) (string, error)
}
