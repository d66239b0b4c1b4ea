package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"capture/internal/lifecycle"
	"capture/internal/model"
	"capture/internal/repository"
)

// retrySweepBatch bounds one sweep so it cannot starve indexing of new
// documents.
const retrySweepBatch = 50

// defaultMaxRetries applies when CreateParams does not carry a positive
// per-document budget.
const defaultMaxRetries = 3

// DocumentPostgres is a PostgreSQL implementation of repository.DocumentRepository.
// It uses database/sql with parameterized queries and contains no business
// logic beyond the atomic write contracts.
type DocumentPostgres struct {
	db *sql.DB
}

// NewDocumentPostgres creates a new DocumentPostgres repository.
func NewDocumentPostgres(db *sql.DB) *DocumentPostgres {
	return &DocumentPostgres{db: db}
}

var _ repository.DocumentRepository = (*DocumentPostgres)(nil)

const docColumns = `id, type, title, content, source_url, status, processing_error, last_error, retry_count, max_retries, next_attempt_at, created_at, updated_at`

// Create inserts a new document row plus its tags and optional link in one
// transaction and returns the stored record.
func (r *DocumentPostgres) Create(ctx context.Context, p repository.CreateParams) (*model.Document, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	id := uuid.NewString()
	now := time.Now().UTC()
	maxRetries := p.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	const qInsert = `
		INSERT INTO documents (id, type, title, content, source_url, status, retry_count, max_retries, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	if _, err := tx.ExecContext(ctx, qInsert,
		id,
		p.Type,
		p.Title,
		p.Content,
		nullString(p.SourceURL),
		model.StatusPending,
		0,
		maxRetries,
		now,
		now,
	); err != nil {
		return nil, err
	}

	tags := dedupe(p.Tags)
	for _, tag := range tags {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO document_tags (document_id, tag) VALUES ($1, $2)`,
			id, tag,
		); err != nil {
			return nil, err
		}
	}

	var linked []string
	if p.LinkTo != "" {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO document_links (source_doc_id, target_doc_id) VALUES ($1, $2)`,
			id, p.LinkTo,
		); err != nil {
			return nil, err
		}
		linked = []string{p.LinkTo}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &model.Document{
		ID:                id,
		Type:              p.Type,
		Title:             p.Title,
		Content:           p.Content,
		SourceURL:         p.SourceURL,
		Status:            model.StatusPending,
		RetryCount:        0,
		MaxRetries:        maxRetries,
		CreatedAt:         now,
		UpdatedAt:         now,
		Tags:              tags,
		LinkedDocumentIDs: linked,
	}, nil
}

// FindByID fetches a single document along with its tags and the union of
// inbound and outbound linked ids.
func (r *DocumentPostgres) FindByID(ctx context.Context, id string) (*model.Document, error) {
	q := `SELECT ` + docColumns + ` FROM documents WHERE id = $1`
	row := r.db.QueryRowContext(ctx, q, id)

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT tag FROM document_tags WHERE document_id = $1 ORDER BY tag`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, err
		}
		doc.Tags = append(doc.Tags, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	const qLinks = `
		SELECT target_doc_id FROM document_links WHERE source_doc_id = $1
		UNION
		SELECT source_doc_id FROM document_links WHERE target_doc_id = $1
	`
	linkRows, err := r.db.QueryContext(ctx, qLinks, id)
	if err != nil {
		return nil, err
	}
	defer linkRows.Close()
	for linkRows.Next() {
		var linked string
		if err := linkRows.Scan(&linked); err != nil {
			return nil, err
		}
		doc.LinkedDocumentIDs = append(doc.LinkedDocumentIDs, linked)
	}
	if err := linkRows.Err(); err != nil {
		return nil, err
	}

	return doc, nil
}

// List returns documents using LIMIT/OFFSET pagination and a total count.
// Tags and links for the page are resolved with two bulk queries instead of
// per-row lookups.
func (r *DocumentPostgres) List(ctx context.Context, pq repository.PageQuery) (*repository.PageResult[model.Document], error) {
	const qCount = `SELECT COUNT(*) FROM documents`
	var total int
	if err := r.db.QueryRowContext(ctx, qCount).Scan(&total); err != nil {
		return nil, err
	}

	q := `SELECT ` + docColumns + `
		FROM documents
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2`
	rows, err := r.db.QueryContext(ctx, q, pq.Limit, pq.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.Document, 0)
	ids := make([]string, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *doc)
		ids = append(ids, doc.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(ids) == 0 {
		return &repository.PageResult[model.Document]{Items: items, Total: total}, nil
	}

	tagsByID, err := r.tagsForDocuments(ctx, ids)
	if err != nil {
		return nil, err
	}
	linksByID, err := r.linksForDocuments(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i].Tags = tagsByID[items[i].ID]
		items[i].LinkedDocumentIDs = linksByID[items[i].ID]
	}

	return &repository.PageResult[model.Document]{Items: items, Total: total}, nil
}

// ClaimPending atomically transitions a pending document into processing.
func (r *DocumentPostgres) ClaimPending(ctx context.Context, id string) error {
	const q = `
		UPDATE documents
		SET status = $2, updated_at = $3
		WHERE id = $1 AND status = $4
	`
	res, err := r.db.ExecContext(ctx, q, id, model.StatusProcessing, time.Now().UTC(), model.StatusPending)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 1 {
		return nil
	}

	// Distinguish a missing row from a row in the wrong state.
	var exists bool
	if err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM documents WHERE id = $1)`, id,
	).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return repository.ErrNotFound
	}
	return repository.ErrNotPending
}

// RequeueFailed atomically transitions a failed document back to pending.
// The status guard in the WHERE clause is what keeps concurrent sweeps from
// double-arming a row or reviving one that completed in the meantime.
func (r *DocumentPostgres) RequeueFailed(ctx context.Context, id string) error {
	const q = `
		UPDATE documents
		SET status = $2, updated_at = $3
		WHERE id = $1 AND status = $4
	`
	res, err := r.db.ExecContext(ctx, q, id, model.StatusPending, time.Now().UTC(), model.StatusFailed)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return repository.ErrNotFailed
	}
	return nil
}

// UpdateStatus sets the document status. A non-empty processingErr also
// records the error, bumps retry_count, and schedules next_attempt_at from
// the backoff policy; the retry count is read and the whole write performed
// under a row lock so concurrent failures cannot interleave.
func (r *DocumentPostgres) UpdateStatus(ctx context.Context, id string, status model.Status, processingErr string) error {
	now := time.Now().UTC()

	if processingErr == "" {
		const q = `UPDATE documents SET status = $2, updated_at = $3 WHERE id = $1`
		res, err := r.db.ExecContext(ctx, q, id, status, now)
		if err != nil {
			return err
		}
		return requireRow(res)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var retryCount int
	err = tx.QueryRowContext(ctx,
		`SELECT retry_count FROM documents WHERE id = $1 FOR UPDATE`, id,
	).Scan(&retryCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return repository.ErrNotFound
		}
		return err
	}

	// Delay is computed from the count before this failure increments it.
	nextAttempt := now.Add(lifecycle.Delay(retryCount))

	const qUpdate = `
		UPDATE documents
		SET status = $2, processing_error = $3, last_error = $3,
		    retry_count = retry_count + 1, next_attempt_at = $4, updated_at = $5
		WHERE id = $1
	`
	if _, err := tx.ExecContext(ctx, qUpdate, id, status, processingErr, nextAttempt, now); err != nil {
		return err
	}
	return tx.Commit()
}

// FindRetryable returns failed documents still inside their retry budget
// whose backoff window has elapsed, oldest first.
func (r *DocumentPostgres) FindRetryable(ctx context.Context, maxRetries int, now time.Time) ([]model.Document, error) {
	q := `SELECT ` + docColumns + `
		FROM documents
		WHERE status = $1
		  AND retry_count < max_retries
		  AND retry_count < $2
		  AND (next_attempt_at IS NULL OR next_attempt_at <= $3)
		ORDER BY created_at ASC
		LIMIT $4`
	rows, err := r.db.QueryContext(ctx, q, model.StatusFailed, maxRetries, now, retrySweepBatch)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []model.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

func (r *DocumentPostgres) tagsForDocuments(ctx context.Context, ids []string) (map[string][]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT document_id, tag FROM document_tags WHERE document_id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]string)
	for rows.Next() {
		var docID, tag string
		if err := rows.Scan(&docID, &tag); err != nil {
			return nil, err
		}
		out[docID] = append(out[docID], tag)
	}
	return out, rows.Err()
}

func (r *DocumentPostgres) linksForDocuments(ctx context.Context, ids []string) (map[string][]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT source_doc_id, target_doc_id FROM document_links WHERE source_doc_id = ANY($1) OR target_doc_id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	inPage := make(map[string]bool, len(ids))
	for _, id := range ids {
		inPage[id] = true
	}
	seen := make(map[string]map[string]bool)
	out := make(map[string][]string)
	add := func(docID, linked string) {
		if !inPage[docID] {
			return
		}
		if seen[docID] == nil {
			seen[docID] = make(map[string]bool)
		}
		if seen[docID][linked] {
			return
		}
		seen[docID][linked] = true
		out[docID] = append(out[docID], linked)
	}
	for rows.Next() {
		var source, target string
		if err := rows.Scan(&source, &target); err != nil {
			return nil, err
		}
		add(source, target)
		add(target, source)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*model.Document, error) {
	var d model.Document
	var sourceURL, processingError, lastError sql.NullString
	var nextAttempt sql.NullTime
	if err := row.Scan(
		&d.ID,
		&d.Type,
		&d.Title,
		&d.Content,
		&sourceURL,
		&d.Status,
		&processingError,
		&lastError,
		&d.RetryCount,
		&d.MaxRetries,
		&nextAttempt,
		&d.CreatedAt,
		&d.UpdatedAt,
	); err != nil {
		return nil, err
	}
	d.SourceURL = sourceURL.String
	d.ProcessingError = processingError.String
	d.LastError = lastError.String
	if nextAttempt.Valid {
		t := nextAttempt.Time
		d.NextAttemptAt = &t
	}
	return &d, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func requireRow(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func dedupe(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
