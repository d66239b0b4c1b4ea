// Package qdrant implements the vector index capability against Qdrant's
// REST API. It assumes cosine distance and creates the collection on the
// first write if it is missing.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"capture/internal/model"
	"capture/internal/rag"
)

// Index is a minimal REST client to Qdrant implementing rag.VectorIndex.
type Index struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client

	mu      sync.Mutex
	ensured bool
}

var _ rag.VectorIndex = (*Index)(nil)

// Config contains connection details for the Qdrant vector index.
type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

// New creates a Qdrant index client.
func New(cfg Config) *Index {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if cfg.Collection == "" {
		cfg.Collection = "knowledge_base"
	}
	return &Index{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}
}

// Upsert writes chunks with their vectors and provenance payloads and
// returns the number of points written.
func (x *Index) Upsert(ctx context.Context, chunks []model.Chunk, vectors [][]float64) (int, error) {
	if len(chunks) != len(vectors) {
		return 0, fmt.Errorf("qdrant upsert: %d chunks but %d vectors", len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	if err := x.ensureCollection(ctx, len(vectors[0])); err != nil {
		return 0, err
	}

	points := make([]map[string]any, len(chunks))
	for i, ch := range chunks {
		points[i] = map[string]any{
			"id":     ch.ID,
			"vector": vectors[i],
			"payload": map[string]any{
				"doc_id":      ch.DocumentID,
				"chunk_id":    ch.ID,
				"chunk_index": ch.Index,
				"title":       ch.Title,
				"type":        ch.Type,
				"text":        ch.Text,
			},
		}
	}
	body := map[string]any{"points": points}
	if err := x.do(ctx, http.MethodPut, fmt.Sprintf("/collections/%s/points?wait=true", x.collection), body, nil); err != nil {
		return 0, err
	}
	return len(points), nil
}

// Search returns the topK most similar chunks, descending by score.
func (x *Index) Search(ctx context.Context, vector []float64, topK int) ([]model.ScoredChunk, error) {
	if topK <= 0 {
		topK = 10
	}
	body := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := x.do(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/search", x.collection), body, &resp); err != nil {
		return nil, err
	}

	results := make([]model.ScoredChunk, 0, len(resp.Result))
	for _, r := range resp.Result {
		chunk := model.Chunk{}
		if v, ok := r.Payload["doc_id"].(string); ok {
			chunk.DocumentID = v
		}
		if v, ok := r.Payload["chunk_id"].(string); ok {
			chunk.ID = v
		}
		if v, ok := r.Payload["chunk_index"].(float64); ok {
			chunk.Index = int(v)
		}
		if v, ok := r.Payload["title"].(string); ok {
			chunk.Title = v
		}
		if v, ok := r.Payload["type"].(string); ok {
			chunk.Type = v
		}
		if v, ok := r.Payload["text"].(string); ok {
			chunk.Text = v
		}
		results = append(results, model.ScoredChunk{Chunk: chunk, Score: r.Score})
	}
	return results, nil
}

func (x *Index) ensureCollection(ctx context.Context, dimension int) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.ensured {
		return nil
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	// Qdrant returns 409 when the collection already exists; treat it as ok.
	err := x.do(ctx, http.MethodPut, fmt.Sprintf("/collections/%s", x.collection), body, nil)
	if err != nil && !isConflict(err) {
		return err
	}
	x.ensured = true
	return nil
}

type statusError struct {
	code int
	msg  string
}

func (e *statusError) Error() string { return e.msg }

func isConflict(err error) bool {
	var se *statusError
	return errors.As(err, &se) && se.code == http.StatusConflict
}

func (x *Index) do(ctx context.Context, method, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("qdrant marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, x.url+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("qdrant request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if x.apiKey != "" {
		req.Header.Set("api-key", x.apiKey)
	}

	resp, err := x.client.Do(req)
	if err != nil {
		return rag.Unavailablef("qdrant: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return rag.Unavailablef("qdrant %s %s: %s", method, path, resp.Status)
	}
	if resp.StatusCode >= 300 {
		return &statusError{code: resp.StatusCode, msg: fmt.Sprintf("qdrant %s %s: %s", method, path, resp.Status)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("qdrant decode: %w", err)
		}
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	return nil
}
