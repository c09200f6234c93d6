package categorization

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest"
)

type MockFallback struct {
	received []ingest.Candidate
	category string
	err      error
}

func (m *MockFallback) Categorize(_ context.Context, candidates []ingest.Candidate) ([]ingest.Candidate, error) {
	m.received = append(m.received, candidates...)
	if m.err != nil {
		return candidates, m.err
	}
	out := make([]ingest.Candidate, len(candidates))
	for i, c := range candidates {
		c.Category = ingest.Ptr(m.category)
		out[i] = c
	}
	return out, nil
}

func newTestService(fallback Fallback) *Service {
	return NewService(
		NewEngine(DefaultRules),
		NewNormalizer(Categories, 0),
		fallback,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
}

func TestService_KeywordsThenFallback(t *testing.T) {
	fallback := &MockFallback{category: "serviços"}
	svc := newTestService(fallback)

	in := []ingest.Candidate{
		{Description: "PADARIA CENTRAL", Amount: 12},
		{Description: "PIX MARIA", Amount: 50},
		{Description: "UBER TRIP", Amount: 22},
	}

	out, err := svc.Categorize(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, out, 3)

	assert.Equal(t, CategoryFood, *out[0].Category)
	assert.Equal(t, CategoryServices, *out[1].Category)
	assert.Equal(t, CategoryTransport, *out[2].Category)

	require.Len(t, fallback.received, 1)
	assert.Equal(t, "PIX MARIA", fallback.received[0].Description)

	assert.Nil(t, in[0].Category, "input must not be mutated")
}

func TestService_KeepsValidExistingCategory(t *testing.T) {
	fallback := &MockFallback{category: CategoryFood}
	svc := newTestService(fallback)

	out, err := svc.Categorize(context.Background(), []ingest.Candidate{
		{Description: "UBER", Category: ingest.Ptr("outros")},
	})
	require.NoError(t, err)
	assert.Equal(t, CategoryOther, *out[0].Category)
	assert.Empty(t, fallback.received)
}

func TestService_FallbackErrorIsNonBlocking(t *testing.T) {
	boom := errors.New("llm api key not configured")
	svc := newTestService(&MockFallback{err: boom})

	out, err := svc.Categorize(context.Background(), []ingest.Candidate{
		{Description: "PIX JOAO"},
		{Description: "POSTO SHELL"},
	})
	assert.ErrorIs(t, err, boom)
	require.Len(t, out, 2)
	assert.Equal(t, CategoryOther, *out[0].Category)
	assert.Equal(t, CategoryTransport, *out[1].Category)
}

func TestService_UnknownFallbackCategoryBecomesOther(t *testing.T) {
	svc := newTestService(&MockFallback{category: "Viagem"})

	out, err := svc.Categorize(context.Background(), []ingest.Candidate{{Description: "HOTEL"}})
	require.NoError(t, err)
	assert.Equal(t, CategoryOther, *out[0].Category)
}

func TestService_NoFallback(t *testing.T) {
	svc := newTestService(nil)

	out, err := svc.Categorize(context.Background(), []ingest.Candidate{{Description: "HOTEL"}})
	require.NoError(t, err)
	assert.Equal(t, CategoryOther, *out[0].Category)
}
