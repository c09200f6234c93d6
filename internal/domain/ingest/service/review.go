package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest"
	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest/review"
)

// ReviewInput is a reviewer's decision on a document in HITL_REVIEW.
type ReviewInput struct {
	DocumentID uuid.UUID
	Reviewer   string
	Decision   ingest.Decision
	Draft      *review.Draft
	Notes      string
}

// SubmitReview validates and records a decision. APPROVED and CHANGES move
// the document to FINALIZE_PENDING; REJECTED leaves it in HITL_REVIEW for
// another pass. Validation failures change nothing.
func (s *IngestService) SubmitReview(ctx context.Context, in ReviewInput) (string, error) {
	if _, err := ingest.ParseDecision(string(in.Decision)); err != nil || in.Decision == "" {
		return "", fmt.Errorf("%w: unknown decision %q", ingest.ErrInvalidPayload, in.Decision)
	}
	reviewer := strings.TrimSpace(in.Reviewer)
	if reviewer == "" {
		return "", fmt.Errorf("%w: reviewer is required", ingest.ErrInvalidPayload)
	}
	if in.Draft == nil {
		return "", fmt.Errorf("%w: payload is required", ingest.ErrInvalidPayload)
	}

	doc, err := s.repo.GetDocument(ctx, in.DocumentID)
	if err != nil {
		return "", err
	}
	if doc.Status != ingest.StatusHITLReview {
		return "", fmt.Errorf("%w: %s is %s, reviews need %s",
			ingest.ErrWrongStatus, doc.ID, doc.Status, ingest.StatusHITLReview)
	}
	if err := in.Draft.Validate(); err != nil {
		return "", err
	}

	key, err := s.putJSON(ctx, *doc, ingest.ArtifactReviewPayload, in.Draft,
		map[string]any{"reviewer": reviewer, "decision": string(in.Decision), "count": in.Draft.Len()})
	if err != nil {
		return "", err
	}

	if err := s.repo.InsertReview(ctx, &ingest.Review{
		DocumentID: doc.ID,
		Reviewer:   reviewer,
		Decision:   in.Decision,
		PayloadKey: key,
		Notes:      in.Notes,
	}); err != nil {
		return "", err
	}

	if in.Decision.Advances() {
		if err := s.advance(ctx, doc.ID, ingest.StatusFinalizePending, ingest.StatusHITLReview); err != nil {
			return "", err
		}
	}

	s.logger.Info("review recorded",
		slog.String("document_id", doc.ID.String()),
		slog.String("reviewer", reviewer),
		slog.String("decision", string(in.Decision)),
		slog.Int("entries", in.Draft.Len()),
	)
	return key, nil
}

// DraftFromLatest seeds a review draft with the latest extraction payload.
func (s *IngestService) DraftFromLatest(ctx context.Context, id uuid.UUID) (*review.Draft, error) {
	payload, err := s.GetLatestExtractionPayload(ctx, id)
	if err != nil {
		return nil, err
	}
	return review.NewDraft(payload.Candidates), nil
}
