package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"capture/internal/metrics"
	"capture/internal/model"
	"capture/internal/queue"
	"capture/internal/rag"
	"capture/internal/repository"
	"capture/internal/storage"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrIDRequired   = errors.New("id is required")
	ErrNotFound     = errors.New("document not found")

	ErrTitleRequired    = fmt.Errorf("%w: title is required", ErrInvalidInput)
	ErrContentRequired  = fmt.Errorf("%w: content is required", ErrInvalidInput)
	ErrContentTooLarge  = fmt.Errorf("%w: content exceeds the maximum size", ErrInvalidInput)
	ErrInvalidSourceURL = fmt.Errorf("%w: source_url must be an http or https URL", ErrInvalidInput)
	ErrTooManyTags      = fmt.Errorf("%w: too many tags", ErrInvalidInput)
)

const (
	// maxErrorMessageLen caps the stored processing error; anything longer is
	// cut so a huge upstream stack trace cannot bloat the record.
	maxErrorMessageLen = 500

	maxTags         = 20
	defaultDocType  = "note"
	defaultListSize = 10
	maxListSize     = 100
)

// IngestInput carries the caller-provided fields for a new document.
type IngestInput struct {
	Type      string
	Title     string
	Content   string
	SourceURL string
	Tags      []string
	LinkTo    string
}

// DocumentListResult is the service-level DTO for paginated documents.
type DocumentListResult struct {
	Items []model.Document `json:"data"`
	Total int              `json:"total"`
}

// DocumentService defines the use cases for handling documents.
type DocumentService interface {
	// Ingest validates and stores a new document as pending, archives the raw
	// content when an archive is configured, and schedules background
	// processing. It returns as soon as the record is durable.
	Ingest(ctx context.Context, in IngestInput) (*model.Document, error)

	// List returns documents using limit/offset and a total count.
	List(ctx context.Context, limit, offset int) (*DocumentListResult, error)

	// Get returns a single document by its ID.
	Get(ctx context.Context, id string) (*model.Document, error)

	// Process runs the indexing pipeline for one document: claim it, split
	// the content, embed the chunks, and write them to the vector index.
	// Failures are recorded on the document with backoff scheduling.
	Process(ctx context.Context, id string) error
}

// DocumentServiceParams bundles the dependencies of the document service.
type DocumentServiceParams struct {
	Repo     repository.DocumentRepository
	Splitter rag.Splitter
	Embedder rag.Embedder
	Index    rag.VectorIndex
	Dispatch *queue.Dispatcher
	// Archive is optional; nil disables raw-content archiving.
	Archive storage.Storage
	Metrics *metrics.Processing
	Log     *slog.Logger
	// MaxContentSize bounds accepted content in bytes.
	MaxContentSize int
	// MaxRetries is the retry budget stamped on every new document.
	MaxRetries int
	// Retry is applied around every embedder and index call.
	Retry rag.RetryPolicy
}

// documentService is a concrete implementation of DocumentService.
type documentService struct {
	repo           repository.DocumentRepository
	splitter       rag.Splitter
	embedder       rag.Embedder
	index          rag.VectorIndex
	dispatch       *queue.Dispatcher
	archive        storage.Storage
	metrics        *metrics.Processing
	log            *slog.Logger
	maxContentSize int
	maxRetries     int
	retry          rag.RetryPolicy
}

// NewDocumentService constructs a new DocumentService.
func NewDocumentService(p DocumentServiceParams) DocumentService {
	return &documentService{
		repo:           p.Repo,
		splitter:       p.Splitter,
		embedder:       p.Embedder,
		index:          p.Index,
		dispatch:       p.Dispatch,
		archive:        p.Archive,
		metrics:        p.Metrics,
		log:            p.Log,
		maxContentSize: p.MaxContentSize,
		maxRetries:     p.MaxRetries,
		retry:          p.Retry,
	}
}

func (s *documentService) Ingest(ctx context.Context, in IngestInput) (*model.Document, error) {
	if err := s.validate(in); err != nil {
		return nil, err
	}

	docType := strings.TrimSpace(in.Type)
	if docType == "" {
		docType = defaultDocType
	}

	doc, err := s.repo.Create(ctx, repository.CreateParams{
		Type:       docType,
		Title:      strings.TrimSpace(in.Title),
		Content:    in.Content,
		SourceURL:  strings.TrimSpace(in.SourceURL),
		Tags:       in.Tags,
		LinkTo:     in.LinkTo,
		MaxRetries: s.maxRetries,
	})
	if err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}

	s.archiveContent(ctx, doc)

	// The task outlives the request, so it must not inherit its deadline.
	bg := context.WithoutCancel(ctx)
	if !s.dispatch.Enqueue(bg, doc.ID, func(taskCtx context.Context) {
		if procErr := s.Process(taskCtx, doc.ID); procErr != nil {
			s.log.Error("background processing failed", "id", doc.ID, "error", procErr)
		}
	}) {
		// The retry sweep will pick the document up later.
		s.log.Warn("processing not scheduled", "id", doc.ID)
	}

	return doc, nil
}

func (s *documentService) validate(in IngestInput) error {
	if strings.TrimSpace(in.Title) == "" {
		return ErrTitleRequired
	}
	if strings.TrimSpace(in.Content) == "" {
		return ErrContentRequired
	}
	if s.maxContentSize > 0 && len(in.Content) > s.maxContentSize {
		return fmt.Errorf("%w (%d bytes, limit %d)", ErrContentTooLarge, len(in.Content), s.maxContentSize)
	}
	if u := strings.TrimSpace(in.SourceURL); u != "" &&
		!strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		return ErrInvalidSourceURL
	}
	if len(in.Tags) > maxTags {
		return fmt.Errorf("%w (%d, limit %d)", ErrTooManyTags, len(in.Tags), maxTags)
	}
	return nil
}

// archiveContent writes the raw content to object storage. Best effort: the
// database record is the source of truth, so archive failures are logged and
// swallowed.
func (s *documentService) archiveContent(ctx context.Context, doc *model.Document) {
	if s.archive == nil {
		return
	}
	key := storage.ContentKey(doc.ID)
	_, err := s.archive.Put(ctx, key, strings.NewReader(doc.Content), storage.PutObjectOptions{
		Size:        int64(len(doc.Content)),
		ContentType: "text/plain; charset=utf-8",
		Metadata: map[string]string{
			"document-title": doc.Title,
			"document-type":  doc.Type,
		},
	})
	if err != nil {
		s.log.Warn("archive raw content", "id", doc.ID, "error", err)
	}
}

// List returns paginated documents without exposing repository types.
func (s *documentService) List(ctx context.Context, limit, offset int) (*DocumentListResult, error) {
	if limit <= 0 {
		limit = defaultListSize
	}
	if limit > maxListSize {
		limit = maxListSize
	}
	if offset < 0 {
		offset = 0
	}

	res, err := s.repo.List(ctx, repository.PageQuery{Limit: limit, Offset: offset})
	if err != nil {
		return nil, err
	}
	return &DocumentListResult{Items: res.Items, Total: res.Total}, nil
}

// Get returns a document by ID.
func (s *documentService) Get(ctx context.Context, id string) (*model.Document, error) {
	if id == "" {
		return nil, ErrIDRequired
	}
	doc, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return doc, nil
}

func (s *documentService) Process(ctx context.Context, id string) error {
	if id == "" {
		return ErrIDRequired
	}

	if err := s.repo.ClaimPending(ctx, id); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			// The record vanished between scheduling and processing. Nothing
			// to transition; this is an anomaly, not a retryable failure.
			s.log.Error("document missing at claim", "id", id)
		case errors.Is(err, repository.ErrNotPending):
			// Double dispatch or a concurrent claim. The other worker owns
			// the document now.
			s.log.Error("claim on non-pending document", "id", id)
		}
		return fmt.Errorf("claim document %s: %w", id, err)
	}

	doc, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.log.Error("document missing after claim", "id", id)
			return fmt.Errorf("fetch document %s: %w", id, err)
		}
		s.fail(ctx, id, fmt.Errorf("fetch document: %w", err))
		return err
	}

	texts := s.splitter.Split(doc.Content)
	if len(texts) == 0 {
		// Nothing to index; the document is still done.
		return s.complete(ctx, id, 0)
	}

	chunks := make([]model.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = model.Chunk{
			ID:         uuid.New().String(),
			DocumentID: doc.ID,
			Index:      i,
			Text:       text,
			Title:      doc.Title,
			Type:       doc.Type,
		}
	}

	var vectors [][]float64
	err = s.retry.Do(ctx, func(ctx context.Context) error {
		var embedErr error
		vectors, embedErr = s.embedder.EmbedChunks(ctx, texts)
		return embedErr
	})
	if err != nil {
		err = fmt.Errorf("embed chunks: %w", err)
		s.fail(ctx, id, err)
		return err
	}
	if len(vectors) != len(chunks) {
		err = fmt.Errorf("embedding count mismatch: %d chunks, %d vectors", len(chunks), len(vectors))
		s.fail(ctx, id, err)
		return err
	}

	var written int
	err = s.retry.Do(ctx, func(ctx context.Context) error {
		var upsertErr error
		written, upsertErr = s.index.Upsert(ctx, chunks, vectors)
		return upsertErr
	})
	if err != nil {
		err = fmt.Errorf("index chunks: %w", err)
		s.fail(ctx, id, err)
		return err
	}

	return s.complete(ctx, id, written)
}

func (s *documentService) complete(ctx context.Context, id string, chunks int) error {
	// The terminal write must land even when ctx was cancelled mid-pipeline
	// (shutdown), or the row would stay claimed as processing forever.
	if err := s.repo.UpdateStatus(context.WithoutCancel(ctx), id, model.StatusCompleted, ""); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	s.metrics.Completed.Inc()
	s.log.Info("document indexed", "id", id, "chunks", chunks)
	return nil
}

// fail records the failure on the document. The repository increments the
// retry count and schedules the next attempt atomically. The write is
// detached from ctx cancellation for the same reason as complete.
func (s *documentService) fail(ctx context.Context, id string, cause error) {
	if err := s.repo.UpdateStatus(context.WithoutCancel(ctx), id, model.StatusFailed, truncateError(cause.Error())); err != nil {
		s.log.Error("record processing failure", "id", id, "error", err)
	}
	s.metrics.Failed.Inc()
	s.log.Error("document processing failed", "id", id, "error", cause)
}

func truncateError(msg string) string {
	runes := []rune(msg)
	if len(runes) <= maxErrorMessageLen {
		return msg
	}
	return string(runes[:maxErrorMessageLen])
}
