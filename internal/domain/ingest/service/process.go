package service

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/document"
	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/import/parser"
	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/import/sniffer"
	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest"
	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest/extraction"
	"github.com/FACorreiaa/smart-finance-ingest/pkg/llm"
	"github.com/FACorreiaa/smart-finance-ingest/pkg/metrics"
	"github.com/FACorreiaa/smart-finance-ingest/pkg/storage"
)

// storageFault marks failures that leave a document in ERROR_STORAGE.
type storageFault struct {
	err error
}

func (e *storageFault) Error() string { return e.err.Error() }
func (e *storageFault) Unwrap() error { return e.err }

// ProcessPending claims up to limit STORED documents and runs each through
// extraction. A failing document never stops the sweep.
func (s *IngestService) ProcessPending(ctx context.Context, limit int) (SweepResult, error) {
	var result SweepResult

	docs, err := s.repo.ListDocuments(ctx, []ingest.Status{ingest.StatusStored}, limit)
	if err != nil {
		return result, err
	}
	result.Found = len(docs)

	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		claimed, err := s.claim(ctx, doc.ID)
		if err != nil {
			s.logger.Error("failed to claim document", slog.String("document_id", doc.ID.String()), slog.Any("error", err))
			result.Failed++
			s.metrics.SweepDocument(metrics.SweepProcess, metrics.OutcomeFailed)
			continue
		}
		if !claimed {
			result.Skipped++
			s.metrics.SweepDocument(metrics.SweepProcess, metrics.OutcomeSkipped)
			continue
		}

		if err := s.processClaimed(ctx, doc); err != nil {
			result.Failed++
			s.metrics.SweepDocument(metrics.SweepProcess, metrics.OutcomeFailed)
			continue
		}
		result.Processed++
		s.metrics.SweepDocument(metrics.SweepProcess, metrics.OutcomeSuccess)
	}

	s.logger.Info("process sweep finished",
		slog.Int("found", result.Found),
		slog.Int("processed", result.Processed),
		slog.Int("skipped", result.Skipped),
		slog.Int("failed", result.Failed),
	)
	return result, nil
}

// ProcessDocument claims and processes a single STORED document.
func (s *IngestService) ProcessDocument(ctx context.Context, id uuid.UUID) (*ingest.Document, error) {
	doc, err := s.repo.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	claimed, err := s.claim(ctx, id)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, fmt.Errorf("%w: %s is %s", ingest.ErrWrongStatus, id, doc.Status)
	}
	if err := s.processClaimed(ctx, *doc); err != nil {
		return nil, err
	}
	return s.repo.GetDocument(ctx, id)
}

func (s *IngestService) claim(ctx context.Context, id uuid.UUID) (bool, error) {
	return s.repo.TransitionStatus(ctx, id, ingest.StatusProcessing, nil, ingest.StatusStored)
}

// processClaimed runs a PROCESSING document to HITL_REVIEW, or parks it in
// an error state with the failure message.
func (s *IngestService) processClaimed(ctx context.Context, doc ingest.Document) error {
	ctx, span := s.tracer.Start(ctx, "ingest.process_document")
	defer span.End()
	span.SetAttributes(
		attribute.String("document.id", doc.ID.String()),
		attribute.String("document.name", doc.Name),
	)

	logger := s.logger.With(slog.String("document_id", doc.ID.String()), slog.String("name", doc.Name))

	err := s.process(ctx, doc, logger)
	if err == nil {
		return nil
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	status := ingest.StatusErrorProcessing
	var fault *storageFault
	if errors.As(err, &fault) {
		status = ingest.StatusErrorStorage
	}
	logger.Error("document processing failed", slog.String("status", string(status)), slog.Any("error", err))

	msg := err.Error()
	if _, terr := s.repo.TransitionStatus(ctx, doc.ID, status, &msg,
		ingest.StatusProcessing, ingest.StatusLLMReview); terr != nil {
		logger.Error("failed to record processing error", slog.Any("error", terr))
	}
	return err
}

func (s *IngestService) process(ctx context.Context, doc ingest.Document, logger *slog.Logger) error {
	data, err := s.blobs.Get(ctx, doc.StorageKey)
	if err != nil {
		return &storageFault{fmt.Errorf("failed to read raw blob: %w", err)}
	}
	if got := storage.Hash(data); got != doc.ContentHash {
		return &storageFault{fmt.Errorf("%w: stored %s, read %s", ingest.ErrIntegrity, doc.ContentHash, got)}
	}

	kind := sniffer.DetectSourceKind(doc.MediaType, doc.Name, data)
	logger = logger.With(slog.String("kind", string(kind)))

	var (
		candidates []ingest.Candidate
		extractor  string
	)
	if kind.Tabular() {
		candidates, err = s.extractTabular(ctx, doc, data, logger)
		if err != nil {
			return err
		}
		extractor = ingest.ExtractorTabular
	} else {
		text, err := s.readText(ctx, doc, kind, data, logger)
		if err != nil {
			return err
		}
		if _, err := s.putArtifact(ctx, doc, ingest.ArtifactOCRText, "txt", "text/plain; charset=utf-8", []byte(text),
			map[string]any{"source_kind": string(kind), "chars": len([]rune(text))}); err != nil {
			return err
		}
		candidates, extractor = s.extractText(ctx, text, logger)
	}

	candidates = s.categorize(ctx, candidates, logger)
	if candidates == nil {
		candidates = []ingest.Candidate{}
	}

	checks := s.gate.Run(candidates, s.now())

	payloadKey, err := s.putJSON(ctx, doc, ingest.ArtifactCandidates, candidates,
		map[string]any{"extractor": extractor, "count": len(candidates)})
	if err != nil {
		return err
	}
	checksKey, err := s.putJSON(ctx, doc, ingest.ArtifactChecks, checks,
		map[string]any{"passed": checks.Passed, "issues": len(checks.Issues)})
	if err != nil {
		return err
	}

	if err := s.repo.InsertExtraction(ctx, &ingest.Extraction{
		DocumentID: doc.ID,
		Extractor:  extractor,
		PayloadKey: payloadKey,
		Confidence: checks.Confidence,
		ChecksKey:  checksKey,
		Status:     ingest.ExtractionStatusPending,
	}); err != nil {
		return err
	}

	if err := s.advance(ctx, doc.ID, ingest.StatusLLMReview, ingest.StatusProcessing); err != nil {
		return err
	}
	logger.Info("extraction ready", slog.String("extractor", extractor), slog.Int("candidates", len(candidates)),
		slog.Bool("passed", checks.Passed))
	if err := s.advance(ctx, doc.ID, ingest.StatusHITLReview, ingest.StatusLLMReview); err != nil {
		return err
	}
	logger.Info("document awaiting review")

	if s.notifier != nil {
		doc.Status = ingest.StatusHITLReview
		if err := s.notifier.ReviewReady(ctx, doc, checks); err != nil {
			logger.Warn("failed to notify reviewers", slog.Any("error", err))
		}
	}
	return nil
}

func (s *IngestService) advance(ctx context.Context, id uuid.UUID, to, from ingest.Status) error {
	changed, err := s.repo.TransitionStatus(ctx, id, to, nil, from)
	if err != nil {
		return err
	}
	if !changed {
		return fmt.Errorf("%w: expected %s before moving to %s", ingest.ErrWrongStatus, from, to)
	}
	return nil
}

func (s *IngestService) extractTabular(ctx context.Context, doc ingest.Document, data []byte, logger *slog.Logger) ([]ingest.Candidate, error) {
	if s.tabular == nil {
		return nil, fmt.Errorf("no tabular parser configured")
	}

	rows, err := s.tabular.Parse(ctx, data, doc.Name)
	if errors.Is(err, parser.ErrNoRows) {
		logger.Warn("tabular file has no transaction rows", slog.Any("error", err))
		rows = nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to parse tabular file: %w", err)
	}
	if rows == nil {
		rows = []parser.Row{}
	}

	if _, err := s.putJSON(ctx, doc, ingest.ArtifactTabularRows, rows, map[string]any{"rows": len(rows)}); err != nil {
		return nil, err
	}
	return parser.Candidates(rows), nil
}

// readText gets the plain text of a non-tabular document, running OCR where
// the document has no usable native text.
func (s *IngestService) readText(ctx context.Context, doc ingest.Document, kind sniffer.SourceKind, data []byte, logger *slog.Logger) (string, error) {
	switch kind {
	case sniffer.KindPDF:
		if s.text == nil {
			return "", fmt.Errorf("no pdf text extractor configured")
		}
		text, scanned, err := s.text.ExtractText(ctx, data)
		if err != nil {
			return "", err
		}
		if !scanned || s.pages == nil {
			return text, nil
		}
		logger.Info("pdf looks scanned, running ocr")
		ocrText, err := s.recognize(ctx, doc, s.pages.Pages(ctx, data), logger)
		if errors.Is(err, document.ErrOCRDisabled) {
			logger.Warn("ocr disabled, keeping native pdf text")
			return text, nil
		}
		return ocrText, err

	case sniffer.KindImage:
		page := document.ImagePage(doc.MediaType, data)
		var single iter.Seq2[document.Page, error] = func(yield func(document.Page, error) bool) { yield(page, nil) }
		text, err := s.recognize(ctx, doc, single, logger)
		if errors.Is(err, document.ErrOCRDisabled) {
			logger.Warn("ocr disabled, image has no text")
			return "", nil
		}
		return text, err

	default:
		return document.PlainText(data), nil
	}
}

func (s *IngestService) recognize(ctx context.Context, doc ingest.Document, pages iter.Seq2[document.Page, error], logger *slog.Logger) (string, error) {
	if s.ocr == nil {
		return "", document.ErrOCRDisabled
	}

	results, err := document.RecognizeAll(ctx, s.ocr, pages, s.ocrConcurrency, func(p document.Page) error {
		ext := "pdf"
		if p.MIMEType != "application/pdf" {
			ext = "img"
		}
		_, err := s.putArtifact(ctx, doc, ingest.ArtifactPageImage, ext, p.MIMEType, p.Data,
			map[string]any{"page": p.Number, "mime_type": p.MIMEType})
		return err
	})
	if err != nil {
		return "", err
	}
	for _, r := range results {
		logger.Debug("page recognized", slog.Int("page", r.Page.Number), slog.Duration("elapsed", r.Elapsed))
	}
	return document.JoinPages(results), nil
}

// extractText runs the pattern engine and falls back to the LLM when the
// result looks unusable. LLM failures never fail the document.
func (s *IngestService) extractText(ctx context.Context, text string, logger *slog.Logger) ([]ingest.Candidate, string) {
	candidates := s.engine.Extract(text)
	if !extraction.IsLowQuality(candidates) || s.extractor == nil {
		return candidates, ingest.ExtractorPattern
	}

	llmCandidates, err := s.extractor.ExtractCandidates(ctx, text)
	switch {
	case err != nil:
		level := slog.LevelWarn
		if errors.Is(err, llm.ErrNotConfigured) {
			level = slog.LevelDebug
		}
		logger.Log(ctx, level, "llm extraction fallback failed", slog.Int("pattern_candidates", len(candidates)), slog.Any("error", err))
	case len(llmCandidates) == 0:
		logger.Info("llm extraction fallback returned no transactions")
	default:
		return llmCandidates, ingest.ExtractorLLM
	}
	return candidates, ingest.ExtractorPattern
}

func (s *IngestService) categorize(ctx context.Context, candidates []ingest.Candidate, logger *slog.Logger) []ingest.Candidate {
	if s.categorizer == nil || len(candidates) == 0 {
		return candidates
	}
	out, err := s.categorizer.Categorize(ctx, candidates)
	if err != nil {
		level := slog.LevelWarn
		if errors.Is(err, llm.ErrNotConfigured) {
			level = slog.LevelDebug
		}
		logger.Log(ctx, level, "categorization incomplete", slog.Any("error", err))
	}
	if len(out) != len(candidates) {
		return candidates
	}
	return out
}
