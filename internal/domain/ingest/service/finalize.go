package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest"
	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest/review"
	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ledger"
	"github.com/FACorreiaa/smart-finance-ingest/pkg/metrics"
	"github.com/FACorreiaa/smart-finance-ingest/pkg/storage"
)

// FinalizeResult reports what finalizing one document wrote.
type FinalizeResult struct {
	DocumentID       uuid.UUID `json:"document_id"`
	Inserted         int       `json:"inserted"`
	Linked           int       `json:"linked"`
	AlreadyFinalized bool      `json:"already_finalized"`
}

// Finalize merges the latest approved review payload into the ledger and
// marks the document FINALIZED. Finalizing a FINALIZED document is a no-op.
func (s *IngestService) Finalize(ctx context.Context, id uuid.UUID) (*FinalizeResult, error) {
	ctx, span := s.tracer.Start(ctx, "ingest.finalize")
	defer span.End()
	span.SetAttributes(attribute.String("document.id", id.String()))

	res, err := s.finalize(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return res, err
}

func (s *IngestService) finalize(ctx context.Context, id uuid.UUID) (*FinalizeResult, error) {
	doc, err := s.repo.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	result := &FinalizeResult{DocumentID: id}

	switch doc.Status {
	case ingest.StatusFinalized:
		result.AlreadyFinalized = true
		return result, nil
	case ingest.StatusFinalizePending:
	default:
		return nil, fmt.Errorf("%w: %s is %s, finalization needs %s",
			ingest.ErrWrongStatus, id, doc.Status, ingest.StatusFinalizePending)
	}

	rv, err := s.repo.LatestAdvancingReview(ctx, id)
	if errors.Is(err, ingest.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ingest.ErrNoApprovedReview, id)
	}
	if err != nil {
		return nil, err
	}

	data, err := s.blobs.Get(ctx, rv.PayloadKey)
	if errors.Is(err, storage.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ingest.ErrPayloadMissing, rv.PayloadKey)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read review payload: %w", err)
	}
	draft, err := review.ParseDraft(data)
	if err != nil {
		return nil, err
	}

	txs := s.ledgerEntries(*doc, draft.Items)
	inserted, err := s.ledger.InsertBatch(ctx, doc.ID, doc.Name, doc.ContentHash, txs)
	if err != nil {
		return nil, err
	}
	result.Inserted = inserted.Inserted
	result.Linked = inserted.Linked

	changed, err := s.repo.TransitionStatus(ctx, id, ingest.StatusFinalized, nil, ingest.StatusFinalizePending)
	if err != nil {
		return nil, err
	}
	if !changed {
		// A concurrent finalizer won; the ledger writes above were no-ops.
		current, err := s.repo.GetDocument(ctx, id)
		if err != nil {
			return nil, err
		}
		if current.Status != ingest.StatusFinalized {
			return nil, fmt.Errorf("%w: %s is %s", ingest.ErrWrongStatus, id, current.Status)
		}
		result.AlreadyFinalized = true
	}

	s.logger.Info("document finalized",
		slog.String("document_id", id.String()),
		slog.Int("entries", len(txs)),
		slog.Int("inserted", result.Inserted),
	)
	return result, nil
}

// ledgerEntries applies the ledger defaults to reviewed candidates. Entries
// without a description are dropped.
func (s *IngestService) ledgerEntries(doc ingest.Document, items []ingest.Candidate) []ledger.Transaction {
	today := s.now().Format(ingest.DateLayout)

	txs := make([]ledger.Transaction, 0, len(items))
	for _, c := range items {
		desc := strings.TrimSpace(c.Description)
		if desc == "" {
			continue
		}

		date := today
		if t, ok := c.ParsedDate(); ok {
			date = t.Format(ingest.DateLayout)
		}

		direction := ingest.DirectionOut
		if c.Direction != nil && c.Direction.Valid() {
			direction = *c.Direction
		}

		category := strings.TrimSpace(c.CategoryOrEmpty())
		if category == "" {
			category = ledger.DefaultCategory
		}

		txs = append(txs, ledger.Transaction{
			Date:        date,
			Description: desc,
			Amount:      decimal.NewFromFloat(c.Amount).Abs().Round(2),
			Direction:   direction,
			Source:      doc.Name,
			Category:    category,
			DocumentID:  &doc.ID,
		})
	}
	return txs
}

// FinalizePending finalizes up to limit FINALIZE_PENDING documents.
func (s *IngestService) FinalizePending(ctx context.Context, limit int) (SweepResult, error) {
	var result SweepResult

	docs, err := s.repo.ListDocuments(ctx, []ingest.Status{ingest.StatusFinalizePending}, limit)
	if err != nil {
		return result, err
	}
	result.Found = len(docs)

	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if _, err := s.Finalize(ctx, doc.ID); err != nil {
			s.logger.Error("failed to finalize document",
				slog.String("document_id", doc.ID.String()), slog.Any("error", err))
			result.Failed++
			s.metrics.SweepDocument(metrics.SweepFinalize, metrics.OutcomeFailed)
			continue
		}
		result.Finalized++
		s.metrics.SweepDocument(metrics.SweepFinalize, metrics.OutcomeSuccess)
	}

	s.logger.Info("finalize sweep finished",
		slog.Int("found", result.Found),
		slog.Int("finalized", result.Finalized),
		slog.Int("failed", result.Failed),
	)
	return result, nil
}

// SearchTransactions rebuilds the ledger index and runs query against it.
func (s *IngestService) SearchTransactions(ctx context.Context, index *ledger.SearchIndex, query string, limit int) ([]ledger.Transaction, error) {
	all, err := s.ledger.List(ctx, 0)
	if err != nil {
		return nil, err
	}
	if err := index.Rebuild(all); err != nil {
		return nil, err
	}
	hits, err := index.Search(query, limit)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	return s.ledger.GetByIDs(ctx, ids)
}

// MonthlySummary aggregates the ledger for month (YYYY-MM). An empty month
// means the current one.
func (s *IngestService) MonthlySummary(ctx context.Context, month string) (*ledger.MonthlySummary, error) {
	if month == "" {
		month = s.now().Format(ledger.MonthLayout)
	}
	txs, err := s.ledger.ListMonth(ctx, month)
	if err != nil {
		return nil, err
	}
	summary := ledger.Summarize(month, txs)
	return &summary, nil
}
