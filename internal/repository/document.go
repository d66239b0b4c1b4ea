package repository

import (
	"context"
	"errors"
	"time"

	"capture/internal/model"
)

var (
	// ErrNotFound is returned when a document lookup misses.
	ErrNotFound = errors.New("document not found")
	// ErrNotPending is returned by ClaimPending when the document exists but
	// is not in the pending state. Processing a document after this error is
	// a logic error, not a retryable condition.
	ErrNotPending = errors.New("document is not pending")
	// ErrNotFailed is returned by RequeueFailed when the document is missing
	// or no longer in the failed state, typically because a concurrent sweep
	// already re-armed it.
	ErrNotFailed = errors.New("document is not failed")
)

// CreateParams are the caller-provided fields for a new document record.
// The repository assigns the identifier, timestamps, the initial pending
// status, and a zero retry count.
type CreateParams struct {
	Type      string
	Title     string
	Content   string
	SourceURL string
	Tags      []string
	// LinkTo optionally links the new document to an existing one. Links are
	// symmetric: either side sees the other in LinkedDocumentIDs.
	LinkTo string
	// MaxRetries is the per-document retry budget. Values <= 0 fall back to
	// the repository default.
	MaxRetries int
}

// DocumentRepository defines data access for documents using SQL queries only.
// No business logic here — strictly persistence operations. Every mutation is
// atomic with respect to concurrent callers on the same record.
type DocumentRepository interface {
	// Create inserts a new document record with status pending, persisting
	// tags and the optional outbound link. Returns the stored document with
	// tags and linked ids resolved.
	Create(ctx context.Context, p CreateParams) (*model.Document, error)

	// FindByID returns a document with its tags and the union of inbound and
	// outbound linked ids. Returns ErrNotFound when no row exists.
	FindByID(ctx context.Context, id string) (*model.Document, error)

	// List returns documents ordered by created_at descending with a total
	// count. Tags and links are resolved in bulk for the page, not per row.
	List(ctx context.Context, pq PageQuery) (*PageResult[model.Document], error)

	// ClaimPending atomically transitions pending -> processing. Returns
	// ErrNotPending when the row is in any other state and ErrNotFound when
	// it does not exist.
	ClaimPending(ctx context.Context, id string) error

	// RequeueFailed atomically transitions failed -> pending for a retry
	// attempt. Returns ErrNotFailed when the row is missing or its status
	// changed since it was read, so concurrent sweeps cannot re-arm the same
	// document twice or resurrect a completed one.
	RequeueFailed(ctx context.Context, id string) error

	// UpdateStatus sets the document status. When processingErr is non-empty
	// it also records the error, increments retry_count, and schedules
	// next_attempt_at from the backoff policy — all as one atomic write.
	UpdateStatus(ctx context.Context, id string, status model.Status, processingErr string) error

	// FindRetryable returns failed documents with retry_count below both the
	// stored per-document budget and maxRetries, whose next_attempt_at is
	// unset or has elapsed, oldest first, capped at 50 rows per sweep.
	FindRetryable(ctx context.Context, maxRetries int, now time.Time) ([]model.Document, error)
}

// PageQuery holds limit/offset pagination parameters.
type PageQuery struct {
	Limit  int
	Offset int
}

// PageResult is a generic pagination result wrapper.
// T is typically a model type.
type PageResult[T any] struct {
	Items []T
	Total int
}
