// Package handler exposes the ingestion batch operations over HTTP with gin.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest"
	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest/review"
	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest/service"
	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ledger"
)

// IngestService is the part of the service the handler calls.
type IngestService interface {
	Store(ctx context.Context, name, mediaType string, data []byte) (*service.StoreResult, error)
	ListDocuments(ctx context.Context, statuses ...ingest.Status) ([]ingest.Document, error)
	ProcessPending(ctx context.Context, limit int) (service.SweepResult, error)
	GetLatestExtractionPayload(ctx context.Context, id uuid.UUID) (*service.ExtractionPayload, error)
	DraftFromLatest(ctx context.Context, id uuid.UUID) (*review.Draft, error)
	SubmitReview(ctx context.Context, in service.ReviewInput) (string, error)
	ResetDocument(ctx context.Context, id uuid.UUID) (*ingest.Document, error)
	FinalizePending(ctx context.Context, limit int) (service.SweepResult, error)
	SearchTransactions(ctx context.Context, index *ledger.SearchIndex, query string, limit int) ([]ledger.Transaction, error)
	MonthlySummary(ctx context.Context, month string) (*ledger.MonthlySummary, error)
}

// IngestHandler handles the /v1 document and transaction routes
type IngestHandler struct {
	svc        IngestService
	index      *ledger.SearchIndex
	logger     *slog.Logger
	sweepLimit int
	maxUpload  int64
}

// NewIngestHandler creates a new ingest handler
func NewIngestHandler(svc IngestService, index *ledger.SearchIndex, sweepLimit int, maxUploadBytes int64, logger *slog.Logger) *IngestHandler {
	if sweepLimit <= 0 {
		sweepLimit = 50
	}
	return &IngestHandler{
		svc:        svc,
		index:      index,
		logger:     logger,
		sweepLimit: sweepLimit,
		maxUpload:  maxUploadBytes,
	}
}

// RegisterRoutes mounts the handler under /v1.
func (h *IngestHandler) RegisterRoutes(r gin.IRouter) {
	v1 := r.Group("/v1")
	v1.POST("/documents", h.StoreDocument)
	v1.GET("/documents", h.ListDocuments)
	v1.POST("/documents/process", h.ProcessPending)
	v1.POST("/documents/finalize", h.FinalizePending)
	v1.GET("/documents/:id/extraction", h.GetExtraction)
	v1.POST("/documents/:id/reviews", h.SubmitReview)
	v1.POST("/documents/:id/reset", h.ResetDocument)
	v1.GET("/transactions/search", h.SearchTransactions)
	v1.GET("/transactions/summary", h.MonthlySummary)
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (h *IngestHandler) fail(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "INTERNAL_ERROR"
	switch {
	case errors.Is(err, ingest.ErrNotFound):
		status, code = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, ingest.ErrInvalidPayload), errors.Is(err, review.ErrIndexOutOfRange),
		errors.Is(err, ledger.ErrInvalidMonth):
		status, code = http.StatusBadRequest, "INVALID_PAYLOAD"
	case errors.Is(err, ingest.ErrWrongStatus):
		status, code = http.StatusConflict, "WRONG_STATUS"
	case errors.Is(err, ingest.ErrNoApprovedReview), errors.Is(err, ingest.ErrPayloadMissing):
		status, code = http.StatusConflict, "NOT_FINALIZABLE"
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", slog.String("path", c.FullPath()), slog.Any("error", err))
		c.JSON(status, errorResponse{Error: code, Message: "An internal error occurred"})
		return
	}
	c.JSON(status, errorResponse{Error: code, Message: err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, errorResponse{Error: "INVALID_REQUEST", Message: msg})
}

func documentID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid document id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *IngestHandler) limit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return h.sweepLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		badRequest(c, "limit must be a positive integer")
		return 0, false
	}
	return n, true
}

// StoreDocument accepts a multipart upload in the "file" field.
func (h *IngestHandler) StoreDocument(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "multipart field \"file\" is required")
		return
	}
	if h.maxUpload > 0 && fh.Size > h.maxUpload {
		c.JSON(http.StatusRequestEntityTooLarge, errorResponse{Error: "TOO_LARGE", Message: "file exceeds the upload limit"})
		return
	}

	f, err := fh.Open()
	if err != nil {
		h.fail(c, err)
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		h.fail(c, err)
		return
	}

	res, err := h.svc.Store(c.Request.Context(), fh.Filename, fh.Header.Get("Content-Type"), data)
	if err != nil {
		h.fail(c, err)
		return
	}
	status := http.StatusCreated
	if res.IsDuplicate {
		status = http.StatusOK
	}
	c.JSON(status, res)
}

// ListDocuments accepts ?status=A,B or repeated status parameters.
func (h *IngestHandler) ListDocuments(c *gin.Context) {
	var statuses []ingest.Status
	for _, raw := range c.QueryArray("status") {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part == "" {
				continue
			}
			st, err := ingest.ParseStatus(part)
			if err != nil {
				badRequest(c, err.Error())
				return
			}
			statuses = append(statuses, st)
		}
	}

	docs, err := h.svc.ListDocuments(c.Request.Context(), statuses...)
	if err != nil {
		h.fail(c, err)
		return
	}
	if docs == nil {
		docs = []ingest.Document{}
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs})
}

func (h *IngestHandler) ProcessPending(c *gin.Context) {
	limit, ok := h.limit(c)
	if !ok {
		return
	}
	res, err := h.svc.ProcessPending(c.Request.Context(), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *IngestHandler) FinalizePending(c *gin.Context) {
	limit, ok := h.limit(c)
	if !ok {
		return
	}
	res, err := h.svc.FinalizePending(c.Request.Context(), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *IngestHandler) GetExtraction(c *gin.Context) {
	id, ok := documentID(c)
	if !ok {
		return
	}
	payload, err := h.svc.GetLatestExtractionPayload(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, payload)
}

type reviewRequest struct {
	Reviewer string          `json:"reviewer"`
	Decision string          `json:"decision"`
	Notes    string          `json:"notes"`
	Payload  json.RawMessage `json:"payload"`
}

// SubmitReview records a decision. Without a payload the latest extraction
// is submitted as-is.
func (h *IngestHandler) SubmitReview(c *gin.Context) {
	id, ok := documentID(c)
	if !ok {
		return
	}
	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid review payload")
		return
	}

	decision, err := ingest.ParseDecision(req.Decision)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	var draft *review.Draft
	if len(req.Payload) == 0 || string(req.Payload) == "null" {
		draft, err = h.svc.DraftFromLatest(ctx, id)
	} else {
		draft, err = review.ParseDraft(req.Payload)
	}
	if err != nil {
		h.fail(c, err)
		return
	}

	key, err := h.svc.SubmitReview(ctx, service.ReviewInput{
		DocumentID: id,
		Reviewer:   req.Reviewer,
		Decision:   decision,
		Draft:      draft,
		Notes:      req.Notes,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"payload_key": key, "decision": decision})
}

func (h *IngestHandler) ResetDocument(c *gin.Context) {
	id, ok := documentID(c)
	if !ok {
		return
	}
	doc, err := h.svc.ResetDocument(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (h *IngestHandler) SearchTransactions(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		badRequest(c, "query parameter q is required")
		return
	}
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			badRequest(c, "limit must be a positive integer")
			return
		}
		limit = n
	}

	txs, err := h.svc.SearchTransactions(c.Request.Context(), h.index, q, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	if txs == nil {
		txs = []ledger.Transaction{}
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}

// MonthlySummary handles GET /v1/transactions/summary?month=YYYY-MM
func (h *IngestHandler) MonthlySummary(c *gin.Context) {
	summary, err := h.svc.MonthlySummary(c.Request.Context(), strings.TrimSpace(c.Query("month")))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
