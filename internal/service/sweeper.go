package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"capture/internal/metrics"
	"capture/internal/repository"
)

// Processor runs the indexing pipeline for a single document.
type Processor interface {
	Process(ctx context.Context, id string) error
}

// RetrySweeper periodically re-queues failed documents whose backoff delay
// has elapsed and retries them one at a time. Per-document errors are logged
// and never abort the sweep.
type RetrySweeper struct {
	repo       repository.DocumentRepository
	proc       Processor
	metrics    *metrics.Processing
	log        *slog.Logger
	maxRetries int
	interval   time.Duration
}

// NewRetrySweeper constructs a RetrySweeper. A non-positive interval falls
// back to 15 minutes.
func NewRetrySweeper(repo repository.DocumentRepository, proc Processor, m *metrics.Processing, log *slog.Logger, maxRetries int, interval time.Duration) *RetrySweeper {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &RetrySweeper{
		repo:       repo,
		proc:       proc,
		metrics:    m,
		log:        log,
		maxRetries: maxRetries,
		interval:   interval,
	}
}

// Run sweeps on every tick until ctx is cancelled. It blocks; run it on its
// own goroutine.
func (s *RetrySweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info("retry sweeper started", "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("retry sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.log.Error("retry sweep failed", "error", err)
			}
		}
	}
}

// Sweep re-queues every eligible failed document and processes it
// sequentially. It returns how many documents were re-queued.
func (s *RetrySweeper) Sweep(ctx context.Context) (int, error) {
	docs, err := s.repo.FindRetryable(ctx, s.maxRetries, time.Now().UTC())
	if err != nil {
		return 0, err
	}

	requeued := 0
	for _, doc := range docs {
		if ctx.Err() != nil {
			break
		}
		// Re-arm with a status guard: a row that is no longer failed was
		// taken by a concurrent sweep or finished since the query, and must
		// not be touched again.
		if err := s.repo.RequeueFailed(ctx, doc.ID); err != nil {
			if errors.Is(err, repository.ErrNotFailed) {
				s.log.Debug("document no longer failed, skipping", "id", doc.ID)
			} else {
				s.log.Error("re-queue document", "id", doc.ID, "error", err)
			}
			continue
		}
		s.metrics.Retried.Inc()
		requeued++

		s.log.Info("retrying document", "id", doc.ID, "retry_count", doc.RetryCount)
		if err := s.proc.Process(ctx, doc.ID); err != nil {
			// The processor already recorded the failure on the document.
			s.log.Warn("retry attempt failed", "id", doc.ID, "error", err)
		}
	}

	if len(docs) > 0 {
		s.log.Info("retry sweep finished", "eligible", len(docs), "requeued", requeued)
	}
	return requeued, nil
}
