package model

import "time"

// Document is the unit of work for asynchronous indexing and the unit of
// retrieval provenance. It is a pure domain model with no database-specific
// dependencies or tags, usable across layers (HTTP, service, repository).
type Document struct {
	ID                string     `json:"id"`
	Type              string     `json:"type"`
	Title             string     `json:"title"`
	Content           string     `json:"content"`
	SourceURL         string     `json:"source_url,omitempty"`
	Status            Status     `json:"status"`
	ProcessingError   string     `json:"processing_error,omitempty"`
	LastError         string     `json:"last_error,omitempty"`
	RetryCount        int        `json:"retry_count"`
	MaxRetries        int        `json:"max_retries"`
	NextAttemptAt     *time.Time `json:"next_attempt_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	Tags              []string   `json:"tags"`
	LinkedDocumentIDs []string   `json:"linked_document_ids"`
}

// Chunk is one indexed slice of a document, traceable back to its origin via
// the document id and its position within the split sequence.
type Chunk struct {
	ID         string
	DocumentID string
	Index      int
	Text       string
	Title      string
	Type       string
}

// ScoredChunk is a retrieval candidate together with its similarity score.
type ScoredChunk struct {
	Chunk Chunk
	Score float64
}
