package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"capture/internal/model"
	"capture/internal/repository"
)

var docCols = []string{
	"id", "type", "title", "content", "source_url", "status",
	"processing_error", "last_error", "retry_count", "max_retries",
	"next_attempt_at", "created_at", "updated_at",
}

func docRow(id string, status model.Status, retryCount int, nextAttempt any) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows(docCols).
		AddRow(id, "note", "Title", "Content", nil, status, nil, nil, retryCount, 3, nextAttempt, now, now)
}

func TestDocumentPostgres_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewDocumentPostgres(db)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO documents").
		WithArgs(sqlmock.AnyArg(), "note", "Title", "Hello world", nil, model.StatusPending, 0, 3, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO document_tags").
		WithArgs(sqlmock.AnyArg(), "go").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO document_links").
		WithArgs(sqlmock.AnyArg(), "other-id").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	doc, err := repo.Create(ctx, repository.CreateParams{
		Type:    "note",
		Title:   "Title",
		Content: "Hello world",
		Tags:    []string{"go", "go"}, // duplicates collapse
		LinkTo:  "other-id",
	})

	assert.NoError(t, err)
	require.NotNil(t, doc)
	assert.NotEmpty(t, doc.ID)
	assert.Equal(t, model.StatusPending, doc.Status)
	assert.Equal(t, 0, doc.RetryCount)
	assert.Equal(t, 3, doc.MaxRetries)
	assert.Nil(t, doc.NextAttemptAt)
	assert.Equal(t, []string{"go"}, doc.Tags)
	assert.Equal(t, []string{"other-id"}, doc.LinkedDocumentIDs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentPostgres_FindByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewDocumentPostgres(db)
	ctx := context.Background()

	t.Run("found with tags and links", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM documents WHERE id = ?").
			WithArgs("doc-1").
			WillReturnRows(docRow("doc-1", model.StatusCompleted, 0, nil))
		mock.ExpectQuery("SELECT tag FROM document_tags").
			WithArgs("doc-1").
			WillReturnRows(sqlmock.NewRows([]string{"tag"}).AddRow("go").AddRow("rag"))
		mock.ExpectQuery("SELECT target_doc_id FROM document_links").
			WithArgs("doc-1").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("doc-2"))

		doc, err := repo.FindByID(ctx, "doc-1")

		assert.NoError(t, err)
		require.NotNil(t, doc)
		assert.Equal(t, []string{"go", "rag"}, doc.Tags)
		assert.Equal(t, []string{"doc-2"}, doc.LinkedDocumentIDs)
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM documents WHERE id = ?").
			WithArgs("missing").
			WillReturnError(sql.ErrNoRows)

		doc, err := repo.FindByID(ctx, "missing")

		assert.ErrorIs(t, err, repository.ErrNotFound)
		assert.Nil(t, doc)
	})
}

// passthroughConverter hands arguments to the driver untouched, the way pgx
// accepts the []string bound to = ANY($1). sqlmock's default converter would
// reject the slice.
type passthroughConverter struct{}

func (passthroughConverter) ConvertValue(v any) (driver.Value, error) {
	return driver.Value(v), nil
}

func TestDocumentPostgres_List(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.ValueConverterOption(passthroughConverter{}))
	require.NoError(t, err)
	defer db.Close()

	repo := NewDocumentPostgres(db)
	ctx := context.Background()

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM documents").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	rows := docRow("doc-1", model.StatusCompleted, 0, nil)
	now := time.Now().UTC()
	rows.AddRow("doc-2", "note", "Other", "Text", nil, model.StatusPending, nil, nil, 0, 3, nil, now, now)
	mock.ExpectQuery("SELECT (.+) FROM documents ORDER BY").
		WithArgs(10, 0).
		WillReturnRows(rows)
	mock.ExpectQuery("SELECT document_id, tag FROM document_tags").
		WillReturnRows(sqlmock.NewRows([]string{"document_id", "tag"}).AddRow("doc-1", "go"))
	mock.ExpectQuery("SELECT source_doc_id, target_doc_id FROM document_links").
		WillReturnRows(sqlmock.NewRows([]string{"source_doc_id", "target_doc_id"}).
			AddRow("doc-1", "doc-2"))

	res, err := repo.List(ctx, repository.PageQuery{Limit: 10, Offset: 0})

	require.NoError(t, err)
	require.Len(t, res.Items, 2)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, []string{"go"}, res.Items[0].Tags)
	// The link is symmetric: both sides of the page see each other.
	assert.Equal(t, []string{"doc-2"}, res.Items[0].LinkedDocumentIDs)
	assert.Equal(t, []string{"doc-1"}, res.Items[1].LinkedDocumentIDs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentPostgres_ClaimPending(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewDocumentPostgres(db)
	ctx := context.Background()

	t.Run("claims pending row", func(t *testing.T) {
		mock.ExpectExec("UPDATE documents").
			WithArgs("doc-1", model.StatusProcessing, sqlmock.AnyArg(), model.StatusPending).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.ClaimPending(ctx, "doc-1"))
	})

	t.Run("row exists but not pending", func(t *testing.T) {
		mock.ExpectExec("UPDATE documents").
			WithArgs("doc-1", model.StatusProcessing, sqlmock.AnyArg(), model.StatusPending).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs("doc-1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		assert.ErrorIs(t, repo.ClaimPending(ctx, "doc-1"), repository.ErrNotPending)
	})

	t.Run("row missing", func(t *testing.T) {
		mock.ExpectExec("UPDATE documents").
			WithArgs("missing", model.StatusProcessing, sqlmock.AnyArg(), model.StatusPending).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs("missing").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		assert.ErrorIs(t, repo.ClaimPending(ctx, "missing"), repository.ErrNotFound)
	})
}

func TestDocumentPostgres_RequeueFailed(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewDocumentPostgres(db)
	ctx := context.Background()

	t.Run("re-arms failed row", func(t *testing.T) {
		mock.ExpectExec("UPDATE documents").
			WithArgs("doc-1", model.StatusPending, sqlmock.AnyArg(), model.StatusFailed).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.RequeueFailed(ctx, "doc-1"))
	})

	t.Run("row no longer failed", func(t *testing.T) {
		// A concurrent sweep re-armed the row, or it completed: the guarded
		// update matches nothing and the caller must skip it.
		mock.ExpectExec("UPDATE documents").
			WithArgs("doc-1", model.StatusPending, sqlmock.AnyArg(), model.StatusFailed).
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.ErrorIs(t, repo.RequeueFailed(ctx, "doc-1"), repository.ErrNotFailed)
	})
}

func TestDocumentPostgres_UpdateStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewDocumentPostgres(db)
	ctx := context.Background()

	t.Run("plain status change", func(t *testing.T) {
		mock.ExpectExec("UPDATE documents SET status").
			WithArgs("doc-1", model.StatusCompleted, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.UpdateStatus(ctx, "doc-1", model.StatusCompleted, ""))
	})

	t.Run("failure increments retry count and schedules next attempt", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT retry_count FROM documents").
			WithArgs("doc-1").
			WillReturnRows(sqlmock.NewRows([]string{"retry_count"}).AddRow(1))
		mock.ExpectExec("UPDATE documents").
			WithArgs("doc-1", model.StatusFailed, "embed failed", sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		assert.NoError(t, repo.UpdateStatus(ctx, "doc-1", model.StatusFailed, "embed failed"))
	})

	t.Run("failure on missing row", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT retry_count FROM documents").
			WithArgs("missing").
			WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		assert.ErrorIs(t, repo.UpdateStatus(ctx, "missing", model.StatusFailed, "boom"), repository.ErrNotFound)
	})
}

func TestDocumentPostgres_FindRetryable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewDocumentPostgres(db)
	ctx := context.Background()
	now := time.Now().UTC()

	past := now.Add(-time.Minute)
	mock.ExpectQuery("SELECT (.+) FROM documents").
		WithArgs(model.StatusFailed, 3, now, 50).
		WillReturnRows(docRow("doc-1", model.StatusFailed, 1, past))

	docs, err := repo.FindRetryable(ctx, 3, now)

	assert.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "doc-1", docs[0].ID)
	assert.Equal(t, 1, docs[0].RetryCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}
