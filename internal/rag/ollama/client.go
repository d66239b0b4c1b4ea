// Package ollama implements the embedding and generation capabilities
// against a local or remote Ollama server.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"capture/internal/rag"
)

// Client talks to the Ollama HTTP API. It implements rag.Embedder and
// rag.Generator. Safe for concurrent use.
type Client struct {
	baseURL         string
	embeddingModel  string
	generativeModel string
	http            *http.Client
}

var (
	_ rag.Embedder  = (*Client)(nil)
	_ rag.Generator = (*Client)(nil)
)

// Config configures the Ollama client.
type Config struct {
	BaseURL         string
	EmbeddingModel  string
	GenerativeModel string
	// Timeout bounds every call so a stalled backend cannot hold a
	// processing claim indefinitely.
	Timeout time.Duration
}

// New creates an Ollama client with the given configuration.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = "mxbai-embed-large"
	}
	if cfg.GenerativeModel == "" {
		cfg.GenerativeModel = "gemma3n:e4b"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &Client{
		baseURL:         cfg.BaseURL,
		embeddingModel:  cfg.EmbeddingModel,
		generativeModel: cfg.GenerativeModel,
		http:            &http.Client{Timeout: cfg.Timeout},
	}
}

// EmbedText computes an embedding for a single text.
func (c *Client) EmbedText(ctx context.Context, text string) ([]float64, error) {
	body := map[string]any{
		"model":  c.embeddingModel,
		"prompt": text,
	}

	var out struct {
		Embedding []float64 `json:"embedding"`
	}
	if err := c.post(ctx, "/api/embeddings", body, &out); err != nil {
		return nil, fmt.Errorf("ollama embeddings: %w", err)
	}
	if len(out.Embedding) == 0 {
		return nil, fmt.Errorf("ollama embeddings: empty vector for model %s", c.embeddingModel)
	}
	return out.Embedding, nil
}

// EmbedChunks computes one vector per chunk text, order-preserving.
func (c *Client) EmbedChunks(ctx context.Context, texts []string) ([][]float64, error) {
	vectors := make([][]float64, 0, len(texts))
	for _, text := range texts {
		vec, err := c.EmbedText(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, vec)
	}
	return vectors, nil
}

// Generate produces text from a prompt.
func (c *Client) Generate(ctx context.Context, prompt string, opts rag.GenerationOptions) (string, error) {
	options := map[string]any{}
	if opts.Temperature > 0 {
		options["temperature"] = opts.Temperature
	}
	if opts.MaxTokens > 0 {
		options["num_predict"] = opts.MaxTokens
	}
	body := map[string]any{
		"model":   c.generativeModel,
		"prompt":  prompt,
		"stream":  false,
		"options": options,
	}

	var out struct {
		Response string `json:"response"`
	}
	if err := c.post(ctx, "/api/generate", body, &out); err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}
	return out.Response, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// Connection refused, DNS failure, timeout: all transient.
		return rag.Unavailablef("%v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return rag.Unavailablef("%s", readErrorBody(resp))
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s", readErrorBody(resp))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func readErrorBody(resp *http.Response) string {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil || len(data) == 0 {
		return resp.Status
	}
	var apiErr struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
		return fmt.Sprintf("%s: %s", resp.Status, apiErr.Error)
	}
	return fmt.Sprintf("%s: %s", resp.Status, data)
}
