// Package repository persists documents, artifacts, extractions and reviews
// in the PostgreSQL ingestion store.
package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest"
)

// DBTX is satisfied by *pgxpool.Pool, pgx.Tx and pgxmock pools.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository defines ingestion store access.
type Repository interface {
	// InsertDocument inserts doc unless its content hash already exists. On
	// conflict doc is overwritten with the stored row and inserted is false.
	InsertDocument(ctx context.Context, doc *ingest.Document) (inserted bool, err error)
	GetDocument(ctx context.Context, id uuid.UUID) (*ingest.Document, error)
	GetDocumentByHash(ctx context.Context, hash string) (*ingest.Document, error)
	ListDocuments(ctx context.Context, statuses []ingest.Status, limit int) ([]ingest.Document, error)
	// TransitionStatus moves a document to `to` only if its current status is
	// one of from. Reports whether a row changed.
	TransitionStatus(ctx context.Context, id uuid.UUID, to ingest.Status, lastError *string, from ...ingest.Status) (bool, error)

	InsertArtifact(ctx context.Context, a *ingest.Artifact) error
	ListArtifacts(ctx context.Context, documentID uuid.UUID) ([]ingest.Artifact, error)

	InsertExtraction(ctx context.Context, e *ingest.Extraction) error
	LatestExtraction(ctx context.Context, documentID uuid.UUID) (*ingest.Extraction, error)

	InsertReview(ctx context.Context, r *ingest.Review) error
	LatestAdvancingReview(ctx context.Context, documentID uuid.UUID) (*ingest.Review, error)
}
