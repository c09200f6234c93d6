package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/document"
	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/import/parser"
	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest"
	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest/quality"
	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ledger"
	"github.com/FACorreiaa/smart-finance-ingest/pkg/db"
	"github.com/FACorreiaa/smart-finance-ingest/pkg/storage"
)

// MockRepository is an in-memory repository.Repository with the same
// conditional-update semantics as the Postgres one.
type MockRepository struct {
	mu          sync.Mutex
	docs        map[uuid.UUID]*ingest.Document
	artifacts   []ingest.Artifact
	extractions []ingest.Extraction
	reviews     []ingest.Review
	clock       time.Time

	// beforeTransition runs (unlocked) before every status update.
	beforeTransition func(id uuid.UUID, to ingest.Status)
}

func NewMockRepository() *MockRepository {
	return &MockRepository{
		docs:  make(map[uuid.UUID]*ingest.Document),
		clock: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// tick returns strictly increasing timestamps so "latest" is well defined.
func (m *MockRepository) tick() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

func (m *MockRepository) InsertDocument(ctx context.Context, doc *ingest.Document) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.docs {
		if d.ContentHash == doc.ContentHash {
			*doc = *d
			return false, nil
		}
	}
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	if doc.Status == "" {
		doc.Status = ingest.StatusStored
	}
	doc.CreatedAt = m.tick()
	doc.UpdatedAt = doc.CreatedAt
	stored := *doc
	m.docs[doc.ID] = &stored
	return true, nil
}

func (m *MockRepository) GetDocument(ctx context.Context, id uuid.UUID) (*ingest.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return nil, ingest.ErrNotFound
	}
	out := *d
	return &out, nil
}

func (m *MockRepository) GetDocumentByHash(ctx context.Context, hash string) (*ingest.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.docs {
		if d.ContentHash == hash {
			out := *d
			return &out, nil
		}
	}
	return nil, ingest.ErrNotFound
}

func (m *MockRepository) ListDocuments(ctx context.Context, statuses []ingest.Status, limit int) ([]ingest.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ingest.Document
	for _, d := range m.docs {
		if len(statuses) == 0 || slices.Contains(statuses, d.Status) {
			out = append(out, *d)
		}
	}
	slices.SortFunc(out, func(a, b ingest.Document) int { return a.CreatedAt.Compare(b.CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockRepository) TransitionStatus(ctx context.Context, id uuid.UUID, to ingest.Status, lastError *string, from ...ingest.Status) (bool, error) {
	if m.beforeTransition != nil {
		m.beforeTransition(id, to)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok || !slices.Contains(from, d.Status) {
		return false, nil
	}
	d.Status = to
	d.LastError = lastError
	d.UpdatedAt = m.tick()
	return true, nil
}

// setStatus forces a status, bypassing the state machine.
func (m *MockRepository) setStatus(id uuid.UUID, status ingest.Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[id].Status = status
}

func (m *MockRepository) InsertArtifact(ctx context.Context, a *ingest.Artifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.artifacts {
		if existing.DocumentID == a.DocumentID && existing.Kind == a.Kind && existing.StorageKey == a.StorageKey {
			return nil
		}
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.CreatedAt = m.tick()
	m.artifacts = append(m.artifacts, *a)
	return nil
}

func (m *MockRepository) ListArtifacts(ctx context.Context, documentID uuid.UUID) ([]ingest.Artifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ingest.Artifact
	for _, a := range m.artifacts {
		if a.DocumentID == documentID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *MockRepository) InsertExtraction(ctx context.Context, e *ingest.Extraction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	e.CreatedAt = m.tick()
	m.extractions = append(m.extractions, *e)
	return nil
}

func (m *MockRepository) LatestExtraction(ctx context.Context, documentID uuid.UUID) (*ingest.Extraction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.extractions) - 1; i >= 0; i-- {
		if m.extractions[i].DocumentID == documentID {
			out := m.extractions[i]
			return &out, nil
		}
	}
	return nil, ingest.ErrNotFound
}

func (m *MockRepository) InsertReview(ctx context.Context, r *ingest.Review) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	r.CreatedAt = m.tick()
	m.reviews = append(m.reviews, *r)
	return nil
}

func (m *MockRepository) LatestAdvancingReview(ctx context.Context, documentID uuid.UUID) (*ingest.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.reviews) - 1; i >= 0; i-- {
		r := m.reviews[i]
		if r.DocumentID == documentID && r.Decision.Advances() {
			return &r, nil
		}
	}
	return nil, ingest.ErrNotFound
}

func (m *MockRepository) artifactsOf(id uuid.UUID, kind ingest.ArtifactKind) []ingest.Artifact {
	all, _ := m.ListArtifacts(context.Background(), id)
	var out []ingest.Artifact
	for _, a := range all {
		if a.Kind == kind {
			out = append(out, a)
		}
	}
	return out
}

type MockExtractor struct {
	candidates []ingest.Candidate
	err        error
	calls      int
}

func (m *MockExtractor) ExtractCandidates(ctx context.Context, text string) ([]ingest.Candidate, error) {
	m.calls++
	return m.candidates, m.err
}

type MockCategorizer struct {
	category string
	err      error
}

func (m *MockCategorizer) Categorize(ctx context.Context, candidates []ingest.Candidate) ([]ingest.Candidate, error) {
	out := make([]ingest.Candidate, len(candidates))
	copy(out, candidates)
	if m.category != "" {
		for i := range out {
			out[i].Category = ingest.Ptr(m.category)
		}
	}
	return out, m.err
}

type MockTabular struct {
	rows []parser.Row
	err  error
}

func (m *MockTabular) Parse(ctx context.Context, data []byte, name string) ([]parser.Row, error) {
	return m.rows, m.err
}

type MockOCR struct {
	text string
	err  error
}

func (m *MockOCR) Recognize(ctx context.Context, page document.Page) (string, time.Duration, error) {
	return m.text, time.Millisecond, m.err
}

type MockNotifier struct {
	mu       sync.Mutex
	notified []uuid.UUID
}

func (m *MockNotifier) ReviewReady(ctx context.Context, doc ingest.Document, checks quality.Checks) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notified = append(m.notified, doc.ID)
	return errors.New("smtp down")
}

// fixture bundles a service over in-memory stores and a real SQLite ledger.
type fixture struct {
	svc      *IngestService
	repo     *MockRepository
	blobs    *storage.MemoryStore
	ledger   *ledger.SQLiteRepository
	notifier *MockNotifier
	now      time.Time
}

func newFixture(t *testing.T, configure ...func(*Dependencies)) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	sqlDB, err := db.OpenLedger(context.Background(), ":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	f := &fixture{
		repo:     NewMockRepository(),
		blobs:    storage.NewMemoryStore(),
		ledger:   ledger.NewSQLiteRepository(sqlDB),
		notifier: &MockNotifier{},
		now:      time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC),
	}
	deps := Dependencies{
		Repo:     f.repo,
		Blobs:    f.blobs,
		Ledger:   f.ledger,
		Tabular:  parser.NewTabular(),
		Text:     document.NewPDF(0),
		Notifier: f.notifier,
		Logger:   logger,
		Now:      func() time.Time { return f.now },
	}
	for _, c := range configure {
		c(&deps)
	}
	f.svc = NewIngestService(deps)
	return f
}

func (f *fixture) store(t *testing.T, name, mediaType, content string) ingest.Document {
	t.Helper()
	res, err := f.svc.Store(context.Background(), name, mediaType, []byte(content))
	require.NoError(t, err)
	return res.Document
}

func (f *fixture) status(t *testing.T, id uuid.UUID) ingest.Status {
	t.Helper()
	doc, err := f.repo.GetDocument(context.Background(), id)
	require.NoError(t, err)
	return doc.Status
}
