package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest"
)

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db DBTX
}

func NewPostgresRepository(db DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const documentColumns = `id, content_hash, name, media_type, size_bytes, storage_key, status, last_error, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*ingest.Document, error) {
	var d ingest.Document
	var status string
	if err := row.Scan(
		&d.ID, &d.ContentHash, &d.Name, &d.MediaType, &d.SizeBytes,
		&d.StorageKey, &status, &d.LastError, &d.CreatedAt, &d.UpdatedAt,
	); err != nil {
		return nil, err
	}
	d.Status = ingest.Status(status)
	return &d, nil
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ingest.ErrNotFound
	}
	return err
}

func (r *PostgresRepository) InsertDocument(ctx context.Context, doc *ingest.Document) (bool, error) {
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	if doc.Status == "" {
		doc.Status = ingest.StatusStored
	}

	query := `
		INSERT INTO documents (id, content_hash, name, media_type, size_bytes, storage_key, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (content_hash) DO NOTHING
		RETURNING ` + documentColumns

	stored, err := scanDocument(r.db.QueryRow(ctx, query,
		doc.ID, doc.ContentHash, doc.Name, doc.MediaType, doc.SizeBytes, doc.StorageKey, string(doc.Status),
	))
	if err == nil {
		*doc = *stored
		return true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, fmt.Errorf("failed to insert document: %w", err)
	}

	// Lost the race (or a plain re-upload): resolve to the existing row.
	existing, err := r.GetDocumentByHash(ctx, doc.ContentHash)
	if err != nil {
		return false, fmt.Errorf("failed to resolve duplicate document: %w", err)
	}
	*doc = *existing
	return false, nil
}

func (r *PostgresRepository) GetDocument(ctx context.Context, id uuid.UUID) (*ingest.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	doc, err := scanDocument(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err)
	}
	return doc, nil
}

func (r *PostgresRepository) GetDocumentByHash(ctx context.Context, hash string) (*ingest.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE content_hash = $1`
	doc, err := scanDocument(r.db.QueryRow(ctx, query, hash))
	if err != nil {
		return nil, notFound(err)
	}
	return doc, nil
}

// ListDocuments returns documents oldest first. Empty statuses means all;
// limit <= 0 means unbounded.
func (r *PostgresRepository) ListDocuments(ctx context.Context, statuses []ingest.Status, limit int) ([]ingest.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents
		WHERE (cardinality($1::text[]) = 0 OR status = ANY($1::text[]))
		ORDER BY created_at ASC, id ASC`
	args := []any{statusStrings(statuses)}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []ingest.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

func (r *PostgresRepository) TransitionStatus(ctx context.Context, id uuid.UUID, to ingest.Status, lastError *string, from ...ingest.Status) (bool, error) {
	query := `
		UPDATE documents
		SET status = $2, last_error = $3, updated_at = now()
		WHERE id = $1 AND status = ANY($4::text[])`

	tag, err := r.db.Exec(ctx, query, id, string(to), lastError, statusStrings(from))
	if err != nil {
		return false, fmt.Errorf("failed to update document status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresRepository) InsertArtifact(ctx context.Context, a *ingest.Artifact) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	metadata := a.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to encode artifact metadata: %w", err)
	}

	query := `
		INSERT INTO artifacts (id, document_id, kind, storage_key, content_hash, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (document_id, kind, storage_key) DO NOTHING`

	if _, err := r.db.Exec(ctx, query, a.ID, a.DocumentID, string(a.Kind), a.StorageKey, a.ContentHash, raw); err != nil {
		return fmt.Errorf("failed to insert artifact: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListArtifacts(ctx context.Context, documentID uuid.UUID) ([]ingest.Artifact, error) {
	query := `
		SELECT id, document_id, kind, storage_key, content_hash, metadata, created_at
		FROM artifacts
		WHERE document_id = $1
		ORDER BY created_at ASC, kind ASC`

	rows, err := r.db.Query(ctx, query, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	defer rows.Close()

	var artifacts []ingest.Artifact
	for rows.Next() {
		var a ingest.Artifact
		var kind string
		var raw []byte
		if err := rows.Scan(&a.ID, &a.DocumentID, &kind, &a.StorageKey, &a.ContentHash, &raw, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		a.Kind = ingest.ArtifactKind(kind)
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &a.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode artifact metadata: %w", err)
			}
		}
		artifacts = append(artifacts, a)
	}
	return artifacts, rows.Err()
}

func (r *PostgresRepository) InsertExtraction(ctx context.Context, e *ingest.Extraction) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Status == "" {
		e.Status = ingest.ExtractionStatusPending
	}

	query := `
		INSERT INTO extractions (id, document_id, extractor, payload_key, confidence, checks_key, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`

	if err := r.db.QueryRow(ctx, query,
		e.ID, e.DocumentID, e.Extractor, e.PayloadKey, e.Confidence, e.ChecksKey, e.Status,
	).Scan(&e.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert extraction: %w", err)
	}
	return nil
}

func (r *PostgresRepository) LatestExtraction(ctx context.Context, documentID uuid.UUID) (*ingest.Extraction, error) {
	query := `
		SELECT id, document_id, extractor, payload_key, confidence, checks_key, status, created_at
		FROM extractions
		WHERE document_id = $1
		ORDER BY created_at DESC, seq DESC
		LIMIT 1`

	var e ingest.Extraction
	err := r.db.QueryRow(ctx, query, documentID).Scan(
		&e.ID, &e.DocumentID, &e.Extractor, &e.PayloadKey, &e.Confidence, &e.ChecksKey, &e.Status, &e.CreatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return &e, nil
}

func (r *PostgresRepository) InsertReview(ctx context.Context, rv *ingest.Review) error {
	if rv.ID == uuid.Nil {
		rv.ID = uuid.New()
	}

	query := `
		INSERT INTO reviews (id, document_id, reviewer, decision, payload_key, notes)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`

	if err := r.db.QueryRow(ctx, query,
		rv.ID, rv.DocumentID, rv.Reviewer, string(rv.Decision), rv.PayloadKey, rv.Notes,
	).Scan(&rv.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert review: %w", err)
	}
	return nil
}

// LatestAdvancingReview returns the newest APPROVED or CHANGES review.
func (r *PostgresRepository) LatestAdvancingReview(ctx context.Context, documentID uuid.UUID) (*ingest.Review, error) {
	query := `
		SELECT id, document_id, reviewer, decision, payload_key, notes, created_at
		FROM reviews
		WHERE document_id = $1 AND decision IN ('APPROVED', 'CHANGES')
		ORDER BY created_at DESC, seq DESC
		LIMIT 1`

	var rv ingest.Review
	var decision string
	err := r.db.QueryRow(ctx, query, documentID).Scan(
		&rv.ID, &rv.DocumentID, &rv.Reviewer, &decision, &rv.PayloadKey, &rv.Notes, &rv.CreatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	rv.Decision = ingest.Decision(decision)
	return &rv, nil
}

func statusStrings(statuses []ingest.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
