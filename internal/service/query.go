package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"capture/internal/model"
	"capture/internal/rag"
	"capture/internal/retrieval"
)

var (
	// ErrUnavailable means a retrieval or generation backend could not be
	// reached after retries. Callers should surface it as a temporary outage.
	ErrUnavailable = errors.New("knowledge base unavailable")
	// ErrNoAnswer means generation succeeded but produced an empty response.
	ErrNoAnswer = errors.New("no answer generated")

	ErrEmptyQuery   = fmt.Errorf("%w: query is required", ErrInvalidInput)
	ErrQueryTooLong = fmt.Errorf("%w: query exceeds the maximum length", ErrInvalidInput)
)

const (
	maxQueryLength = 1000
	// sourceSnippetLen caps how much chunk text is echoed back per source.
	sourceSnippetLen = 200

	generateTemperature = 0.7
	generateMaxTokens   = 512
)

// Source attributes part of an answer to an indexed chunk.
type Source struct {
	DocumentID string  `json:"document_id"`
	Title      string  `json:"title"`
	Type       string  `json:"type"`
	Snippet    string  `json:"snippet"`
	Score      float64 `json:"score"`
}

// QueryResult is the answer to a knowledge-base question together with the
// chunks it was grounded on.
type QueryResult struct {
	Answer      string   `json:"answer"`
	Sources     []Source `json:"sources"`
	QueryTimeMS int64    `json:"query_time_ms"`
}

// QueryService answers questions against the indexed documents.
type QueryService interface {
	// Answer embeds the query, retrieves and filters similar chunks, and
	// generates an answer grounded on them. contextLimit <= 0 uses the
	// configured default.
	Answer(ctx context.Context, query string, contextLimit int) (*QueryResult, error)
}

// QueryServiceParams bundles the dependencies of the query service.
type QueryServiceParams struct {
	Embedder  rag.Embedder
	Index     rag.VectorIndex
	Generator rag.Generator
	Filter    *retrieval.Filter
	// TopK is how many candidates to pull from the index before filtering.
	TopK  int
	Log   *slog.Logger
	Retry rag.RetryPolicy
}

type queryService struct {
	embedder  rag.Embedder
	index     rag.VectorIndex
	generator rag.Generator
	filter    *retrieval.Filter
	topK      int
	log       *slog.Logger
	retry     rag.RetryPolicy
}

// NewQueryService constructs a new QueryService.
func NewQueryService(p QueryServiceParams) QueryService {
	topK := p.TopK
	if topK <= 0 {
		topK = 50
	}
	return &queryService{
		embedder:  p.Embedder,
		index:     p.Index,
		generator: p.Generator,
		filter:    p.Filter,
		topK:      topK,
		log:       p.Log,
		retry:     p.Retry,
	}
}

func (s *queryService) Answer(ctx context.Context, query string, contextLimit int) (*QueryResult, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return nil, ErrEmptyQuery
	}
	if utf8.RuneCountInString(q) > maxQueryLength {
		return nil, fmt.Errorf("%w (%d characters, limit %d)", ErrQueryTooLong, utf8.RuneCountInString(q), maxQueryLength)
	}

	start := time.Now()

	var vector []float64
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		var embedErr error
		vector, embedErr = s.embedder.EmbedText(ctx, q)
		return embedErr
	})
	if err != nil {
		return nil, s.backendError("embed query", err)
	}

	var candidates []model.ScoredChunk
	err = s.retry.Do(ctx, func(ctx context.Context) error {
		var searchErr error
		candidates, searchErr = s.index.Search(ctx, vector, s.topK)
		return searchErr
	})
	if err != nil {
		return nil, s.backendError("search index", err)
	}

	kept := s.filter.Apply(candidates, contextLimit)
	prompt := buildPrompt(q, kept)

	var answer string
	err = s.retry.Do(ctx, func(ctx context.Context) error {
		var genErr error
		answer, genErr = s.generator.Generate(ctx, prompt, rag.GenerationOptions{
			Temperature: generateTemperature,
			MaxTokens:   generateMaxTokens,
		})
		return genErr
	})
	if err != nil {
		return nil, s.backendError("generate answer", err)
	}
	if strings.TrimSpace(answer) == "" {
		return nil, ErrNoAnswer
	}

	elapsed := time.Since(start).Milliseconds()
	s.log.Info("query answered", "candidates", len(candidates), "sources", len(kept), "elapsed_ms", elapsed)

	return &QueryResult{
		Answer:      strings.TrimSpace(answer),
		Sources:     toSources(kept),
		QueryTimeMS: elapsed,
	}, nil
}

func (s *queryService) backendError(op string, err error) error {
	if rag.IsTransient(err) {
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func buildPrompt(query string, chunks []model.ScoredChunk) string {
	var b strings.Builder
	b.WriteString("You are a helpful assistant answering questions from a personal knowledge base.\n\nContext:\n")
	if len(chunks) == 0 {
		b.WriteString("(no relevant documents found)\n")
	}
	for i, c := range chunks {
		fmt.Fprintf(&b, "[%d] %s\n%s\n\n", i+1, c.Chunk.Title, c.Chunk.Text)
	}
	fmt.Fprintf(&b, "\nQuestion: %s\n\nAnswer using only the context above. If the context does not contain the answer, say that you do not know.", query)
	return b.String()
}

func toSources(chunks []model.ScoredChunk) []Source {
	sources := make([]Source, len(chunks))
	for i, c := range chunks {
		sources[i] = Source{
			DocumentID: c.Chunk.DocumentID,
			Title:      c.Chunk.Title,
			Type:       c.Chunk.Type,
			Snippet:    snippet(c.Chunk.Text),
			Score:      c.Score,
		}
	}
	return sources
}

func snippet(text string) string {
	runes := []rune(text)
	if len(runes) <= sourceSnippetLen {
		return text
	}
	return string(runes[:sourceSnippetLen]) + "..."
}
