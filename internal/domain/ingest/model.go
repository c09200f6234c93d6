// Package ingest holds the types shared by the document ingestion pipeline:
// documents and their lifecycle, processing artifacts, extraction attempts,
// human reviews and the candidate transaction records that flow between them.
package ingest

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle position of a Document.
type Status string

const (
	StatusStored          Status = "STORED"
	StatusProcessing      Status = "PROCESSING"
	StatusLLMReview       Status = "LLM_REVIEW"
	StatusHITLReview      Status = "HITL_REVIEW"
	StatusFinalizePending Status = "FINALIZE_PENDING"
	StatusFinalized       Status = "FINALIZED"
	StatusErrorStorage    Status = "ERROR_STORAGE"
	StatusErrorProcessing Status = "ERROR_PROCESSING"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{
	StatusStored,
	StatusProcessing,
	StatusLLMReview,
	StatusHITLReview,
	StatusFinalizePending,
	StatusFinalized,
	StatusErrorStorage,
	StatusErrorProcessing,
}

// ParseStatus accepts a status name in any case.
func ParseStatus(s string) (Status, error) {
	for _, st := range AllStatuses {
		if strings.EqualFold(string(st), s) {
			return st, nil
		}
	}
	return "", errors.New("unknown status: " + s)
}

// IsError reports whether the status is one of the absorbing error states.
func (s Status) IsError() bool {
	return s == StatusErrorStorage || s == StatusErrorProcessing
}

// ArtifactKind classifies a processing byproduct.
type ArtifactKind string

const (
	ArtifactOCRText       ArtifactKind = "ocr_text"
	ArtifactPageImage     ArtifactKind = "page_image"
	ArtifactTabularRows   ArtifactKind = "tabular_rows"
	ArtifactCandidates    ArtifactKind = "candidates"
	ArtifactChecks        ArtifactKind = "checks"
	ArtifactReviewPayload ArtifactKind = "review_payload"
)

// Extractor names recorded on Extraction rows.
const (
	ExtractorPattern = "pattern"
	ExtractorLLM     = "llm"
	ExtractorTabular = "tabular"
)

// ExtractionStatusPending is the only status an Extraction row is written with.
const ExtractionStatusPending = "PENDING"

// Decision is the reviewer's verdict on a candidate payload.
type Decision string

const (
	DecisionApproved Decision = "APPROVED"
	DecisionChanges  Decision = "CHANGES"
	DecisionRejected Decision = "REJECTED"
)

// ParseDecision accepts a decision name in any case.
func ParseDecision(s string) (Decision, error) {
	for _, d := range []Decision{DecisionApproved, DecisionChanges, DecisionRejected} {
		if strings.EqualFold(string(d), s) {
			return d, nil
		}
	}
	return "", errors.New("unknown decision: " + s)
}

// Advances reports whether the decision moves a document to finalization.
func (d Decision) Advances() bool {
	return d == DecisionApproved || d == DecisionChanges
}

// Document is one ingested file, identified for dedup by its content hash.
type Document struct {
	ID          uuid.UUID `json:"id"`
	ContentHash string    `json:"content_hash"`
	Name        string    `json:"name"`
	MediaType   string    `json:"media_type"`
	SizeBytes   int64     `json:"size_bytes"`
	StorageKey  string    `json:"storage_key"`
	Status      Status    `json:"status"`
	LastError   *string   `json:"last_error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Artifact is an immutable byproduct of processing a document.
type Artifact struct {
	ID          uuid.UUID      `json:"id"`
	DocumentID  uuid.UUID      `json:"document_id"`
	Kind        ArtifactKind   `json:"kind"`
	StorageKey  string         `json:"storage_key"`
	ContentHash string         `json:"content_hash"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Extraction records one extraction attempt for a document.
type Extraction struct {
	ID         uuid.UUID `json:"id"`
	DocumentID uuid.UUID `json:"document_id"`
	Extractor  string    `json:"extractor"`
	PayloadKey string    `json:"payload_key"`
	Confidence float64   `json:"confidence"`
	ChecksKey  string    `json:"checks_key"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

// Review records a human decision on a document's latest payload.
type Review struct {
	ID         uuid.UUID `json:"id"`
	DocumentID uuid.UUID `json:"document_id"`
	Reviewer   string    `json:"reviewer"`
	Decision   Decision  `json:"decision"`
	PayloadKey string    `json:"payload_key"`
	Notes      string    `json:"notes,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

var (
	ErrNotFound         = errors.New("not found")
	ErrWrongStatus      = errors.New("document is not in the required status")
	ErrInvalidPayload   = errors.New("invalid review payload")
	ErrNoApprovedReview = errors.New("document has no approved review")
	ErrPayloadMissing   = errors.New("review payload artifact is missing")
	ErrIntegrity        = errors.New("content hash mismatch")
)
