package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest"
)

var docColumns = []string{
	"id", "content_hash", "name", "media_type", "size_bytes",
	"storage_key", "status", "last_error", "created_at", "updated_at",
}

func newMock(t *testing.T) (pgxmock.PgxPoolIface, *PostgresRepository) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, NewPostgresRepository(mock)
}

func TestInsertDocument_New(t *testing.T) {
	mock, repo := newMock(t)
	ctx := context.Background()
	now := time.Now()

	doc := &ingest.Document{
		ID:          uuid.New(),
		ContentHash: "abc123",
		Name:        "extrato.pdf",
		MediaType:   "application/pdf",
		SizeBytes:   42,
		StorageKey:  "raw/ab/abc123",
	}

	mock.ExpectQuery(`INSERT INTO documents`).
		WithArgs(doc.ID, "abc123", "extrato.pdf", "application/pdf", int64(42), "raw/ab/abc123", "STORED").
		WillReturnRows(pgxmock.NewRows(docColumns).AddRow(
			doc.ID, "abc123", "extrato.pdf", "application/pdf", int64(42),
			"raw/ab/abc123", "STORED", nil, now, now,
		))

	inserted, err := repo.InsertDocument(ctx, doc)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Equal(t, ingest.StatusStored, doc.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertDocument_ConflictResolvesExisting(t *testing.T) {
	mock, repo := newMock(t)
	ctx := context.Background()
	now := time.Now()
	existingID := uuid.New()

	doc := &ingest.Document{ContentHash: "abc123", Name: "copy.pdf", StorageKey: "raw/ab/abc123"}

	mock.ExpectQuery(`INSERT INTO documents`).
		WithArgs(pgxmock.AnyArg(), "abc123", "copy.pdf", "", int64(0), "raw/ab/abc123", "STORED").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`SELECT (.+) FROM documents WHERE content_hash = \$1`).
		WithArgs("abc123").
		WillReturnRows(pgxmock.NewRows(docColumns).AddRow(
			existingID, "abc123", "original.pdf", "application/pdf", int64(42),
			"raw/ab/abc123", "HITL_REVIEW", nil, now, now,
		))

	inserted, err := repo.InsertDocument(ctx, doc)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, existingID, doc.ID)
	assert.Equal(t, "original.pdf", doc.Name)
	assert.Equal(t, ingest.StatusHITLReview, doc.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDocument_NotFound(t *testing.T) {
	mock, repo := newMock(t)
	id := uuid.New()

	mock.ExpectQuery(`SELECT (.+) FROM documents WHERE id = \$1`).
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetDocument(context.Background(), id)
	assert.ErrorIs(t, err, ingest.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListDocuments_ByStatus(t *testing.T) {
	mock, repo := newMock(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT (.+) FROM documents`).
		WithArgs([]string{"STORED"}, 10).
		WillReturnRows(pgxmock.NewRows(docColumns).
			AddRow(uuid.New(), "h1", "a.csv", "text/csv", int64(1), "raw/h1/h1", "STORED", nil, now, now).
			AddRow(uuid.New(), "h2", "b.csv", "text/csv", int64(2), "raw/h2/h2", "STORED", nil, now, now))

	docs, err := repo.ListDocuments(context.Background(), []ingest.Status{ingest.StatusStored}, 10)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "a.csv", docs[0].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionStatus(t *testing.T) {
	t.Run("claims when status matches", func(t *testing.T) {
		mock, repo := newMock(t)
		id := uuid.New()

		mock.ExpectExec(`UPDATE documents`).
			WithArgs(id, "PROCESSING", pgxmock.AnyArg(), []string{"STORED"}).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		ok, err := repo.TransitionStatus(context.Background(), id, ingest.StatusProcessing, nil, ingest.StatusStored)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("skips when someone else owns it", func(t *testing.T) {
		mock, repo := newMock(t)
		id := uuid.New()

		mock.ExpectExec(`UPDATE documents`).
			WithArgs(id, "PROCESSING", pgxmock.AnyArg(), []string{"STORED"}).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		ok, err := repo.TransitionStatus(context.Background(), id, ingest.StatusProcessing, nil, ingest.StatusStored)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestInsertArtifact_EncodesMetadata(t *testing.T) {
	mock, repo := newMock(t)
	docID := uuid.New()

	mock.ExpectExec(`INSERT INTO artifacts`).
		WithArgs(pgxmock.AnyArg(), docID, "checks", "artifacts/h/checks.json", "deadbeef", []byte(`{"passed":false}`)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := repo.InsertArtifact(context.Background(), &ingest.Artifact{
		DocumentID:  docID,
		Kind:        ingest.ArtifactChecks,
		StorageKey:  "artifacts/h/checks.json",
		ContentHash: "deadbeef",
		Metadata:    map[string]any{"passed": false},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListArtifacts(t *testing.T) {
	mock, repo := newMock(t)
	docID := uuid.New()
	now := time.Now()

	mock.ExpectQuery(`SELECT (.+) FROM artifacts`).
		WithArgs(docID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "document_id", "kind", "storage_key", "content_hash", "metadata", "created_at"}).
			AddRow(uuid.New(), docID, "ocr_text", "artifacts/h/ocr.txt", "aa", []byte(`{"pages":2}`), now))

	artifacts, err := repo.ListArtifacts(context.Background(), docID)
	require.NoError(t, err)
	require.Len(t, artifacts, 1)
	assert.Equal(t, ingest.ArtifactOCRText, artifacts[0].Kind)
	assert.Equal(t, float64(2), artifacts[0].Metadata["pages"])
}

func TestLatestExtraction(t *testing.T) {
	mock, repo := newMock(t)
	docID := uuid.New()
	extID := uuid.New()
	now := time.Now()

	mock.ExpectQuery(`ORDER BY created_at DESC, seq DESC`).
		WithArgs(docID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "document_id", "extractor", "payload_key", "confidence", "checks_key", "status", "created_at"}).
			AddRow(extID, docID, "pattern", "artifacts/h/candidates.json", 0.6, "artifacts/h/checks.json", "PENDING", now))

	e, err := repo.LatestExtraction(context.Background(), docID)
	require.NoError(t, err)
	assert.Equal(t, extID, e.ID)
	assert.Equal(t, 0.6, e.Confidence)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertReview(t *testing.T) {
	mock, repo := newMock(t)
	docID := uuid.New()
	now := time.Now()

	mock.ExpectQuery(`INSERT INTO reviews`).
		WithArgs(pgxmock.AnyArg(), docID, "ana", "APPROVED", "artifacts/h/review.json", "").
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(now))

	rv := &ingest.Review{DocumentID: docID, Reviewer: "ana", Decision: ingest.DecisionApproved, PayloadKey: "artifacts/h/review.json"}
	require.NoError(t, repo.InsertReview(context.Background(), rv))
	assert.NotEqual(t, uuid.Nil, rv.ID)
	assert.Equal(t, now, rv.CreatedAt)
}

func TestLatestAdvancingReview_None(t *testing.T) {
	mock, repo := newMock(t)
	docID := uuid.New()

	mock.ExpectQuery(`decision IN \('APPROVED', 'CHANGES'\)`).
		WithArgs(docID).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.LatestAdvancingReview(context.Background(), docID)
	assert.ErrorIs(t, err, ingest.ErrNotFound)
}
