// Package service implements the ingestion pipeline: the content store, the
// processing state machine, the review store and the ledger writer.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/document"
	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/import/parser"
	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest"
	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest/extraction"
	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest/quality"
	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest/repository"
	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ledger"
	"github.com/FACorreiaa/smart-finance-ingest/pkg/llm"
	"github.com/FACorreiaa/smart-finance-ingest/pkg/metrics"
	"github.com/FACorreiaa/smart-finance-ingest/pkg/storage"
)

// TabularParser turns spreadsheet and bank exports into rows.
type TabularParser interface {
	Parse(ctx context.Context, data []byte, name string) ([]parser.Row, error)
}

// Notifier is told when a document is waiting for a human reviewer.
type Notifier interface {
	ReviewReady(ctx context.Context, doc ingest.Document, checks quality.Checks) error
}

// Dependencies wires the service. Repo, Blobs and Ledger are required; the
// collaborators may be nil, in which case their stage is skipped.
type Dependencies struct {
	Repo   repository.Repository
	Blobs  storage.BlobStore
	Ledger ledger.Repository

	Engine      *extraction.Engine
	Gate        *quality.Gate
	Tabular     TabularParser
	Text        document.TextExtractor
	Pages       document.PageRasterizer
	OCR         document.OCR
	Extractor   llm.Extractor
	Categorizer llm.Categorizer
	Notifier    Notifier

	OCRConcurrency int
	Metrics        *metrics.Metrics
	Logger         *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// IngestService is the batch operation surface of the pipeline.
type IngestService struct {
	repo        repository.Repository
	blobs       storage.BlobStore
	ledger      ledger.Repository
	engine      *extraction.Engine
	gate        *quality.Gate
	tabular     TabularParser
	text        document.TextExtractor
	pages       document.PageRasterizer
	ocr         document.OCR
	extractor   llm.Extractor
	categorizer llm.Categorizer
	notifier    Notifier

	ocrConcurrency int
	metrics        *metrics.Metrics
	logger         *slog.Logger
	tracer         trace.Tracer
	now            func() time.Time
}

// NewIngestService creates a new ingest service
func NewIngestService(deps Dependencies) *IngestService {
	s := &IngestService{
		repo:           deps.Repo,
		blobs:          deps.Blobs,
		ledger:         deps.Ledger,
		engine:         deps.Engine,
		gate:           deps.Gate,
		tabular:        deps.Tabular,
		text:           deps.Text,
		pages:          deps.Pages,
		ocr:            deps.OCR,
		extractor:      deps.Extractor,
		categorizer:    deps.Categorizer,
		notifier:       deps.Notifier,
		ocrConcurrency: deps.OCRConcurrency,
		metrics:        deps.Metrics,
		logger:         deps.Logger,
		tracer:         otel.Tracer("ingest"),
		now:            deps.Now,
	}
	if s.engine == nil {
		s.engine = extraction.NewEngine()
	}
	if s.gate == nil {
		s.gate = quality.NewGate()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.ocrConcurrency <= 0 {
		s.ocrConcurrency = 1
	}
	return s
}

// SweepResult counts what a batch sweep did. Processed is used by the
// process sweep and Finalized by the finalize sweep.
type SweepResult struct {
	Found     int `json:"found"`
	Processed int `json:"processed,omitempty"`
	Finalized int `json:"finalized,omitempty"`
	Skipped   int `json:"skipped,omitempty"`
	Failed    int `json:"failed"`
}

// StoreResult is the outcome of storing raw bytes.
type StoreResult struct {
	Document    ingest.Document `json:"document"`
	IsDuplicate bool            `json:"is_duplicate"`
}

// Store saves data content-addressed by its SHA-256. Identical bytes always
// resolve to the same document, including under concurrent uploads.
func (s *IngestService) Store(ctx context.Context, name, mediaType string, data []byte) (*StoreResult, error) {
	hash := storage.Hash(data)

	existing, err := s.repo.GetDocumentByHash(ctx, hash)
	if err == nil {
		s.metrics.DocumentStored(true)
		return &StoreResult{Document: *existing, IsDuplicate: true}, nil
	}
	if !errors.Is(err, ingest.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up document: %w", err)
	}

	key := storage.RawKey(hash)
	if err := s.blobs.Put(ctx, key, data, mediaType); err != nil {
		return nil, fmt.Errorf("failed to write blob: %w", err)
	}

	doc := &ingest.Document{
		ContentHash: hash,
		Name:        name,
		MediaType:   mediaType,
		SizeBytes:   int64(len(data)),
		StorageKey:  key,
		Status:      ingest.StatusStored,
	}
	inserted, err := s.repo.InsertDocument(ctx, doc)
	if err != nil {
		return nil, err
	}
	s.metrics.DocumentStored(!inserted)

	if inserted {
		s.logger.Info("document stored",
			slog.String("document_id", doc.ID.String()),
			slog.String("name", name),
			slog.Int64("size_bytes", doc.SizeBytes),
		)
	}
	return &StoreResult{Document: *doc, IsDuplicate: !inserted}, nil
}

// StoreRawDocument is Store for callers that only need the document.
func (s *IngestService) StoreRawDocument(ctx context.Context, name, mediaType string, data []byte) (*ingest.Document, error) {
	res, err := s.Store(ctx, name, mediaType, data)
	if err != nil {
		return nil, err
	}
	return &res.Document, nil
}

// ListDocuments returns documents in any of statuses, or all documents.
func (s *IngestService) ListDocuments(ctx context.Context, statuses ...ingest.Status) ([]ingest.Document, error) {
	return s.repo.ListDocuments(ctx, statuses, 0)
}

// GetDocument returns the document with id, or ingest.ErrNotFound.
func (s *IngestService) GetDocument(ctx context.Context, id uuid.UUID) (*ingest.Document, error) {
	return s.repo.GetDocument(ctx, id)
}

// ListArtifacts returns every artifact recorded for a document.
func (s *IngestService) ListArtifacts(ctx context.Context, id uuid.UUID) ([]ingest.Artifact, error) {
	return s.repo.ListArtifacts(ctx, id)
}

// ExtractionPayload is the latest extraction of a document with its
// decoded candidates and checks.
type ExtractionPayload struct {
	Extraction ingest.Extraction  `json:"extraction"`
	Candidates []ingest.Candidate `json:"candidates"`
	Checks     quality.Checks     `json:"checks"`
}

// GetLatestExtractionPayload loads what a reviewer should look at.
func (s *IngestService) GetLatestExtractionPayload(ctx context.Context, id uuid.UUID) (*ExtractionPayload, error) {
	e, err := s.repo.LatestExtraction(ctx, id)
	if err != nil {
		return nil, err
	}

	out := &ExtractionPayload{Extraction: *e, Candidates: []ingest.Candidate{}}
	if err := s.readJSON(ctx, e.PayloadKey, &out.Candidates); err != nil {
		return nil, fmt.Errorf("failed to read candidates: %w", err)
	}
	if err := s.readJSON(ctx, e.ChecksKey, &out.Checks); err != nil {
		return nil, fmt.Errorf("failed to read checks: %w", err)
	}
	return out, nil
}

// ResetDocument moves a document out of an error state back to STORED so
// the next process sweep picks it up again.
func (s *IngestService) ResetDocument(ctx context.Context, id uuid.UUID) (*ingest.Document, error) {
	changed, err := s.repo.TransitionStatus(ctx, id, ingest.StatusStored, nil,
		ingest.StatusErrorStorage, ingest.StatusErrorProcessing)
	if err != nil {
		return nil, err
	}
	doc, err := s.repo.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, fmt.Errorf("%w: %s is %s", ingest.ErrWrongStatus, id, doc.Status)
	}
	s.logger.Info("document reset", slog.String("document_id", id.String()))
	return doc, nil
}

// putArtifact writes a blob under the document's artifact prefix and records
// it. The key embeds the content hash so re-processing never collides with
// an earlier, different blob.
func (s *IngestService) putArtifact(ctx context.Context, doc ingest.Document, kind ingest.ArtifactKind, ext, contentType string, data []byte, metadata map[string]any) (string, error) {
	hash := storage.Hash(data)
	key := storage.ArtifactKey(doc.ContentHash, fmt.Sprintf("%s-%s.%s", kind, hash[:16], ext))

	if err := s.blobs.Put(ctx, key, data, contentType); err != nil {
		return "", fmt.Errorf("failed to write %s artifact: %w", kind, err)
	}
	if err := s.repo.InsertArtifact(ctx, &ingest.Artifact{
		DocumentID:  doc.ID,
		Kind:        kind,
		StorageKey:  key,
		ContentHash: hash,
		Metadata:    metadata,
	}); err != nil {
		return "", err
	}
	return key, nil
}

func (s *IngestService) putJSON(ctx context.Context, doc ingest.Document, kind ingest.ArtifactKind, v any, metadata map[string]any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode %s: %w", kind, err)
	}
	return s.putArtifact(ctx, doc, kind, "json", "application/json", data, metadata)
}

func (s *IngestService) readJSON(ctx context.Context, key string, v any) error {
	data, err := s.blobs.Get(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
