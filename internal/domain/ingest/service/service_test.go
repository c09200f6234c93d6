package service

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/import/parser"
	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest"
	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest/quality"
	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest/review"
	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ledger"
	"github.com/FACorreiaa/smart-finance-ingest/pkg/llm"
)

const statement = "10/01/2026 Pagamento Fornecedor 1.500,50\n12/01/2026 Venda Cliente 3.200,00"

func (f *fixture) processed(t *testing.T, name, mediaType, content string) ingest.Document {
	t.Helper()
	doc := f.store(t, name, mediaType, content)
	_, err := f.svc.ProcessPending(context.Background(), 10)
	require.NoError(t, err)
	return doc
}

func (f *fixture) approve(t *testing.T, id uuid.UUID) string {
	t.Helper()
	ctx := context.Background()
	draft, err := f.svc.DraftFromLatest(ctx, id)
	require.NoError(t, err)
	key, err := f.svc.SubmitReview(ctx, ReviewInput{
		DocumentID: id,
		Reviewer:   "ana",
		Decision:   ingest.DecisionApproved,
		Draft:      draft,
	})
	require.NoError(t, err)
	return key
}

func TestStore_Dedup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Store(ctx, "extrato.txt", "text/plain", []byte(statement))
	require.NoError(t, err)
	assert.False(t, first.IsDuplicate)
	assert.Equal(t, ingest.StatusStored, first.Document.Status)

	second, err := f.svc.Store(ctx, "renamed.txt", "text/plain", []byte(statement))
	require.NoError(t, err)
	assert.True(t, second.IsDuplicate)
	assert.Equal(t, first.Document.ID, second.Document.ID)
	assert.Equal(t, "extrato.txt", second.Document.Name)
	assert.Equal(t, 1, f.blobs.Writes())

	docs, err := f.svc.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestStore_ConcurrentIdenticalUploads(t *testing.T) {
	f := newFixture(t)

	const n = 8
	results := make([]*StoreResult, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.svc.Store(context.Background(), "extrato.txt", "text/plain", []byte(statement))
			assert.NoError(t, err)
			results[i] = res
		}()
	}
	wg.Wait()

	fresh := 0
	for _, r := range results {
		require.NotNil(t, r)
		assert.Equal(t, results[0].Document.ID, r.Document.ID)
		if !r.IsDuplicate {
			fresh++
		}
	}
	assert.Equal(t, 1, fresh)
	assert.Equal(t, 1, f.blobs.Writes())
}

func TestProcessPending_SegmentsStatement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.store(t, "extrato.txt", "text/plain", statement)

	result, err := f.svc.ProcessPending(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Found: 1, Processed: 1}, result)
	assert.Equal(t, ingest.StatusHITLReview, f.status(t, doc.ID))

	payload, err := f.svc.GetLatestExtractionPayload(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, ingest.ExtractorPattern, payload.Extraction.Extractor)
	require.Len(t, payload.Candidates, 2)
	assert.Equal(t, "2026-01-10", *payload.Candidates[0].Date)
	assert.InDelta(t, 1500.50, payload.Candidates[0].Amount, 0.001)
	assert.Equal(t, "2026-01-12", *payload.Candidates[1].Date)
	assert.InDelta(t, 3200.00, payload.Candidates[1].Amount, 0.001)
	assert.True(t, payload.Checks.Passed)
	assert.InDelta(t, quality.PassedConfidence, payload.Extraction.Confidence, 1e-9)

	assert.Len(t, f.repo.artifactsOf(doc.ID, ingest.ArtifactOCRText), 1)
	assert.Len(t, f.repo.artifactsOf(doc.ID, ingest.ArtifactCandidates), 1)
	assert.Len(t, f.repo.artifactsOf(doc.ID, ingest.ArtifactChecks), 1)
	assert.Equal(t, []uuid.UUID{doc.ID}, f.notifier.notified)
}

func TestProcessPending_RescuesSingleFact(t *testing.T) {
	f := newFixture(t)
	doc := f.processed(t, "recibo.txt", "text/plain", "SUPERMERCADO BOM PRECO\nTOTAL R$ 85,90")

	payload, err := f.svc.GetLatestExtractionPayload(context.Background(), doc.ID)
	require.NoError(t, err)
	require.Len(t, payload.Candidates, 1)
	assert.InDelta(t, 85.90, payload.Candidates[0].Amount, 0.001)
	assert.Nil(t, payload.Candidates[0].Date)
	assert.Equal(t, ingest.StatusHITLReview, f.status(t, doc.ID))
}

func TestProcessPending_LLMFallbackReplacesLowQuality(t *testing.T) {
	extractor := &MockExtractor{candidates: []ingest.Candidate{{
		Date:        ingest.Ptr("2026-02-01"),
		Amount:      85.9,
		Description: "Supermercado Bom Preco",
		Direction:   ingest.Ptr(ingest.DirectionOut),
	}}}
	f := newFixture(t, func(d *Dependencies) { d.Extractor = extractor })
	doc := f.processed(t, "recibo.txt", "text/plain", "TOTAL R$ 85,90")

	payload, err := f.svc.GetLatestExtractionPayload(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, extractor.calls)
	assert.Equal(t, ingest.ExtractorLLM, payload.Extraction.Extractor)
	require.Len(t, payload.Candidates, 1)
	assert.Equal(t, "2026-02-01", *payload.Candidates[0].Date)
}

func TestProcessPending_LLMFailureKeepsPatternCandidates(t *testing.T) {
	extractor := &MockExtractor{err: llm.ErrRetriesExhausted}
	f := newFixture(t, func(d *Dependencies) { d.Extractor = extractor })
	doc := f.processed(t, "recibo.txt", "text/plain", "TOTAL R$ 85,90")

	payload, err := f.svc.GetLatestExtractionPayload(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, ingest.ExtractorPattern, payload.Extraction.Extractor)
	assert.Len(t, payload.Candidates, 1)
	assert.Equal(t, ingest.StatusHITLReview, f.status(t, doc.ID))
}

func TestProcessPending_GoodPatternSkipsLLM(t *testing.T) {
	extractor := &MockExtractor{}
	f := newFixture(t, func(d *Dependencies) { d.Extractor = extractor })
	f.processed(t, "extrato.txt", "text/plain", statement)
	assert.Zero(t, extractor.calls)
}

func TestProcessPending_EmptyPayloadStillReachesReview(t *testing.T) {
	f := newFixture(t)
	doc := f.processed(t, "vazio.txt", "text/plain", "\n   \n")

	assert.Equal(t, ingest.StatusHITLReview, f.status(t, doc.ID))
	payload, err := f.svc.GetLatestExtractionPayload(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Empty(t, payload.Candidates)
	assert.False(t, payload.Checks.Passed)
	assert.InDelta(t, quality.FailedConfidence, payload.Extraction.Confidence, 1e-9)
	require.NotEmpty(t, payload.Checks.Issues)
	assert.Equal(t, quality.RuleEmptyPayload, payload.Checks.Issues[0].Rule)
}

func TestProcessPending_Categorizes(t *testing.T) {
	f := newFixture(t, func(d *Dependencies) {
		d.Categorizer = &MockCategorizer{category: "Serviços", err: llm.ErrNotConfigured}
	})
	doc := f.processed(t, "extrato.txt", "text/plain", statement)

	payload, err := f.svc.GetLatestExtractionPayload(context.Background(), doc.ID)
	require.NoError(t, err)
	for _, c := range payload.Candidates {
		assert.Equal(t, "Serviços", c.CategoryOrEmpty())
	}
}

func TestProcessPending_Tabular(t *testing.T) {
	rows := []parser.Row{
		{Date: "2026-01-10", Description: "SUPERMERCADO", Amount: decimal.RequireFromString("85.90"), Direction: ingest.DirectionOut, Source: "fatura.csv", Line: 2},
		{Date: "2026-01-12", Description: "SALARIO", Amount: decimal.RequireFromString("3200"), Direction: ingest.DirectionIn, Source: "fatura.csv", Line: 3},
	}
	f := newFixture(t, func(d *Dependencies) { d.Tabular = &MockTabular{rows: rows} })
	doc := f.processed(t, "fatura.csv", "text/csv", "data;descricao;valor\n")

	payload, err := f.svc.GetLatestExtractionPayload(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, ingest.ExtractorTabular, payload.Extraction.Extractor)
	require.Len(t, payload.Candidates, 2)
	assert.Equal(t, ingest.DirectionIn, payload.Candidates[1].DirectionOrEmpty())
	assert.Len(t, f.repo.artifactsOf(doc.ID, ingest.ArtifactTabularRows), 1)
	assert.Empty(t, f.repo.artifactsOf(doc.ID, ingest.ArtifactOCRText))
}

func TestProcessPending_TabularWithoutRowsReachesReview(t *testing.T) {
	f := newFixture(t, func(d *Dependencies) { d.Tabular = &MockTabular{err: parser.ErrNoRows} })
	doc := f.processed(t, "fatura.csv", "text/csv", "data;descricao;valor\n")
	assert.Equal(t, ingest.StatusHITLReview, f.status(t, doc.ID))
}

func TestProcessPending_ImageThroughOCR(t *testing.T) {
	f := newFixture(t, func(d *Dependencies) {
		d.OCR = &MockOCR{text: "PADARIA CENTRAL\nTOTAL R$ 12,50"}
	})
	doc := f.processed(t, "recibo.png", "image/png", "\x89PNG\r\n\x1a\nfake image body")

	pages := f.repo.artifactsOf(doc.ID, ingest.ArtifactPageImage)
	require.Len(t, pages, 1)
	assert.Equal(t, 1, pages[0].Metadata["page"])

	payload, err := f.svc.GetLatestExtractionPayload(context.Background(), doc.ID)
	require.NoError(t, err)
	require.Len(t, payload.Candidates, 1)
	assert.InDelta(t, 12.50, payload.Candidates[0].Amount, 0.001)
}

func TestProcessPending_IntegrityFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tampered := f.store(t, "a.txt", "text/plain", statement)
	lost := f.store(t, "b.txt", "text/plain", "TOTAL 10,00")
	f.blobs.Overwrite(tampered.StorageKey, []byte("tampered"))
	f.blobs.Delete(lost.StorageKey)

	result, err := f.svc.ProcessPending(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Found: 2, Failed: 2}, result)

	doc, err := f.svc.GetDocument(ctx, tampered.ID)
	require.NoError(t, err)
	assert.Equal(t, ingest.StatusErrorStorage, doc.Status)
	require.NotNil(t, doc.LastError)
	assert.Contains(t, *doc.LastError, ingest.ErrIntegrity.Error())
	assert.Equal(t, ingest.StatusErrorStorage, f.status(t, lost.ID))
}

func TestProcessPending_ProcessingFailureIsIsolated(t *testing.T) {
	f := newFixture(t, func(d *Dependencies) {
		d.Tabular = &MockTabular{err: parser.ErrUnsupported}
	})
	ctx := context.Background()
	bad := f.store(t, "fatura.csv", "text/csv", "lixo")
	good := f.store(t, "extrato.txt", "text/plain", statement)

	result, err := f.svc.ProcessPending(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Found: 2, Processed: 1, Failed: 1}, result)

	doc, err := f.svc.GetDocument(ctx, bad.ID)
	require.NoError(t, err)
	assert.Equal(t, ingest.StatusErrorProcessing, doc.Status)
	require.NotNil(t, doc.LastError)
	assert.Contains(t, *doc.LastError, "unsupported")
	assert.Equal(t, ingest.StatusHITLReview, f.status(t, good.ID))
}

func TestProcessPending_SkipsDocumentsClaimedElsewhere(t *testing.T) {
	f := newFixture(t)
	doc := f.store(t, "extrato.txt", "text/plain", statement)

	var once sync.Once
	f.repo.beforeTransition = func(id uuid.UUID, to ingest.Status) {
		if to == ingest.StatusProcessing {
			once.Do(func() { f.repo.setStatus(id, ingest.StatusProcessing) })
		}
	}

	result, err := f.svc.ProcessPending(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Found: 1, Skipped: 1}, result)
	assert.Equal(t, ingest.StatusProcessing, f.status(t, doc.ID))
}

func TestProcessPending_RespectsLimit(t *testing.T) {
	f := newFixture(t)
	f.store(t, "a.txt", "text/plain", statement)
	f.store(t, "b.txt", "text/plain", "TOTAL 10,00")

	result, err := f.svc.ProcessPending(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Found)

	stored, err := f.svc.ListDocuments(context.Background(), ingest.StatusStored)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestProcessDocument_WrongStatus(t *testing.T) {
	f := newFixture(t)
	doc := f.processed(t, "extrato.txt", "text/plain", statement)

	_, err := f.svc.ProcessDocument(context.Background(), doc.ID)
	assert.ErrorIs(t, err, ingest.ErrWrongStatus)
}

func TestSubmitReview_Gating(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.store(t, "extrato.txt", "text/plain", statement)

	_, err := f.svc.SubmitReview(ctx, ReviewInput{
		DocumentID: doc.ID, Reviewer: "ana", Decision: ingest.DecisionApproved, Draft: review.NewDraft(nil),
	})
	assert.ErrorIs(t, err, ingest.ErrWrongStatus)

	_, err = f.svc.ProcessPending(ctx, 10)
	require.NoError(t, err)

	_, err = f.svc.Finalize(ctx, doc.ID)
	assert.ErrorIs(t, err, ingest.ErrWrongStatus)

	draft, err := f.svc.DraftFromLatest(ctx, doc.ID)
	require.NoError(t, err)

	_, err = f.svc.SubmitReview(ctx, ReviewInput{DocumentID: doc.ID, Reviewer: " ", Decision: ingest.DecisionApproved, Draft: draft})
	assert.ErrorIs(t, err, ingest.ErrInvalidPayload)

	_, err = f.svc.SubmitReview(ctx, ReviewInput{DocumentID: doc.ID, Reviewer: "ana", Decision: "MAYBE", Draft: draft})
	assert.ErrorIs(t, err, ingest.ErrInvalidPayload)

	bad := review.NewDraft(draft.Items)
	require.NoError(t, bad.Set(0, ingest.Candidate{Description: "x", Direction: ingest.Ptr(ingest.Direction("talvez"))}))
	_, err = f.svc.SubmitReview(ctx, ReviewInput{DocumentID: doc.ID, Reviewer: "ana", Decision: ingest.DecisionApproved, Draft: bad})
	assert.ErrorIs(t, err, ingest.ErrInvalidPayload)

	assert.Empty(t, f.repo.reviews)
	assert.Equal(t, ingest.StatusHITLReview, f.status(t, doc.ID))

	_, err = f.svc.SubmitReview(ctx, ReviewInput{DocumentID: doc.ID, Reviewer: "ana", Decision: ingest.DecisionRejected, Draft: draft, Notes: "datas erradas"})
	require.NoError(t, err)
	assert.Equal(t, ingest.StatusHITLReview, f.status(t, doc.ID))

	key, err := f.svc.SubmitReview(ctx, ReviewInput{DocumentID: doc.ID, Reviewer: "ana", Decision: ingest.DecisionChanges, Draft: draft})
	require.NoError(t, err)
	assert.NotEmpty(t, key)
	assert.Equal(t, ingest.StatusFinalizePending, f.status(t, doc.ID))
	assert.Len(t, f.repo.reviews, 2)
	assert.Len(t, f.repo.artifactsOf(doc.ID, ingest.ArtifactReviewPayload), 1)
}

func TestFinalize_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.processed(t, "extrato.txt", "text/plain", statement)
	f.approve(t, doc.ID)

	first, err := f.svc.Finalize(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Inserted)
	assert.False(t, first.AlreadyFinalized)
	assert.Equal(t, ingest.StatusFinalized, f.status(t, doc.ID))

	second, err := f.svc.Finalize(ctx, doc.ID)
	require.NoError(t, err)
	assert.True(t, second.AlreadyFinalized)
	assert.Zero(t, second.Inserted)

	all, err := f.ledger.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestFinalize_NaturalKeyDedupAcrossDocuments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Same entries, same display name, different bytes.
	a := f.processed(t, "extrato.txt", "text/plain", statement)
	b := f.processed(t, "extrato.txt", "text/plain", statement+"\n")
	require.NotEqual(t, a.ID, b.ID)
	f.approve(t, a.ID)
	f.approve(t, b.ID)

	result, err := f.svc.FinalizePending(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Found: 2, Finalized: 2}, result)

	all, err := f.ledger.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	linked, err := f.ledger.CountByDocument(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, linked)
}

func TestFinalize_AppliesLedgerDefaults(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.processed(t, "recibo.txt", "text/plain", "TOTAL R$ 85,90")

	draft := review.NewDraft([]ingest.Candidate{
		{Amount: -85.9, Description: "  Padaria Central  "},
		{Amount: 10, Description: "   "},
	})
	_, err := f.svc.SubmitReview(ctx, ReviewInput{DocumentID: doc.ID, Reviewer: "ana", Decision: ingest.DecisionChanges, Draft: draft})
	require.NoError(t, err)

	res, err := f.svc.Finalize(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)

	all, err := f.ledger.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 1)
	tx := all[0]
	assert.Equal(t, "2026-03-15", tx.Date)
	assert.Equal(t, "Padaria Central", tx.Description)
	assert.True(t, decimal.RequireFromString("85.90").Equal(tx.Amount), "got %s", tx.Amount)
	assert.Equal(t, ingest.DirectionOut, tx.Direction)
	assert.Equal(t, ledger.DefaultCategory, tx.Category)
	assert.Equal(t, "recibo.txt", tx.Source)
	require.NotNil(t, tx.DocumentID)
	assert.Equal(t, doc.ID, *tx.DocumentID)
}

func TestFinalize_Failures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	noReview := f.processed(t, "a.txt", "text/plain", statement)
	f.repo.setStatus(noReview.ID, ingest.StatusFinalizePending)
	_, err := f.svc.Finalize(ctx, noReview.ID)
	assert.ErrorIs(t, err, ingest.ErrNoApprovedReview)

	lostPayload := f.processed(t, "b.txt", "text/plain", "TOTAL 10,00")
	key := f.approve(t, lostPayload.ID)
	f.blobs.Delete(key)
	_, err = f.svc.Finalize(ctx, lostPayload.ID)
	assert.ErrorIs(t, err, ingest.ErrPayloadMissing)

	_, err = f.svc.Finalize(ctx, uuid.New())
	assert.ErrorIs(t, err, ingest.ErrNotFound)

	all, err := f.ledger.List(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Equal(t, ingest.StatusFinalizePending, f.status(t, lostPayload.ID))

	result, err := f.svc.FinalizePending(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Found: 2, Failed: 2}, result)
}

func TestResetDocument(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.store(t, "a.txt", "text/plain", statement)
	f.blobs.Overwrite(doc.StorageKey, []byte("tampered"))
	_, err := f.svc.ProcessPending(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, ingest.StatusErrorStorage, f.status(t, doc.ID))

	reset, err := f.svc.ResetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, ingest.StatusStored, reset.Status)
	assert.Nil(t, reset.LastError)

	_, err = f.svc.ResetDocument(ctx, doc.ID)
	assert.ErrorIs(t, err, ingest.ErrWrongStatus)

	_, err = f.svc.ResetDocument(ctx, uuid.New())
	assert.ErrorIs(t, err, ingest.ErrNotFound)
}

func TestSearchTransactions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.processed(t, "extrato.txt", "text/plain", statement)
	f.approve(t, doc.ID)
	_, err := f.svc.Finalize(ctx, doc.ID)
	require.NoError(t, err)

	index, err := ledger.NewSearchIndex()
	require.NoError(t, err)
	defer index.Close()

	txs, err := f.svc.SearchTransactions(ctx, index, "fornecedor", 10)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "Pagamento Fornecedor", txs[0].Description)
}

func TestMonthlySummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.processed(t, "extrato.txt", "text/plain", statement)
	f.approve(t, doc.ID)
	_, err := f.svc.Finalize(ctx, doc.ID)
	require.NoError(t, err)

	summary, err := f.svc.MonthlySummary(ctx, "2026-01")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Count)
	assert.True(t, summary.TotalIn.Equal(decimal.RequireFromString("3200")))
	assert.True(t, summary.TotalOut.Equal(decimal.RequireFromString("1500.50")))

	// No month means the current one.
	summary, err = f.svc.MonthlySummary(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "2026-03", summary.Month)
	assert.Zero(t, summary.Count)

	_, err = f.svc.MonthlySummary(ctx, "janeiro")
	assert.ErrorIs(t, err, ledger.ErrInvalidMonth)
}
