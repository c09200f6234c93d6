package llm

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest"
)

func sampleCandidates() []ingest.Candidate {
	return []ingest.Candidate{
		{Date: ingest.Ptr("2026-01-10"), Amount: 30, Description: "UBER TRIP"},
		{Date: ingest.Ptr("2026-01-11"), Amount: 50, Description: "PADARIA"},
		{Date: ingest.Ptr("2026-01-12"), Amount: 70, Description: "HOTEL"},
	}
}

func TestCategorizer_AssignsByIndex(t *testing.T) {
	c, _ := newTestClient(t, respond(http.StatusOK, chatBody(
		`[{"index": 1, "categoria": "alimentação"}, {"index": 0, "categoria": "Transporte"}, {"index": 2, "categoria": "Viagem"}]`)))

	got, err := NewCategorizer(c, nil, nil).Categorize(context.Background(), sampleCandidates())
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "Transporte", *got[0].Category)
	assert.Equal(t, "Alimentação", *got[1].Category)
	assert.Equal(t, "Outros", *got[2].Category)
	assert.Equal(t, "HOTEL", got[2].Description)
}

func TestCategorizer_CustomNormalize(t *testing.T) {
	c, _ := newTestClient(t, respond(http.StatusOK, chatBody(`[{"index": 0, "categoria": "Transp."}]`)))

	normalize := func(name string) (string, bool) {
		if name == "Transp." {
			return "Transporte", true
		}
		return "", false
	}

	got, err := NewCategorizer(c, nil, normalize).Categorize(context.Background(), sampleCandidates()[:1])
	require.NoError(t, err)
	assert.Equal(t, "Transporte", *got[0].Category)
}

func TestCategorizer_NotConfigured(t *testing.T) {
	in := sampleCandidates()
	c := NewClient(Config{}, discardLogger(), nil)

	got, err := NewCategorizer(c, nil, nil).Categorize(context.Background(), in)
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.Equal(t, in, got)
}

func TestCategorizer_Empty(t *testing.T) {
	got, err := NewCategorizer(nil, nil, nil).Categorize(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}
