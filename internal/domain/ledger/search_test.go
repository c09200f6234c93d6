package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest"
)

func TestSearchIndex(t *testing.T) {
	index, err := NewSearchIndex()
	require.NoError(t, err)
	defer index.Close()

	txs := []Transaction{
		{ID: 1, Date: "2026-01-12", Description: "Almoco Restaurante", Amount: decimal.NewFromInt(85), Direction: ingest.DirectionOut, Source: "recibo.png", Category: "Alimentação"},
		{ID: 2, Date: "2026-01-13", Description: "Uber Centro", Amount: decimal.NewFromInt(29), Direction: ingest.DirectionOut, Source: "extrato.pdf", Category: "Transporte"},
		{ID: 3, Date: "2026-01-14", Description: "Venda Cliente", Amount: decimal.NewFromInt(3200), Direction: ingest.DirectionIn, Source: "extrato.pdf", Category: DefaultCategory},
	}
	require.NoError(t, index.Rebuild(txs))

	count, err := index.DocumentCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), count)

	t.Run("plain word", func(t *testing.T) {
		hits, err := index.Search("uber", 10)
		require.NoError(t, err)
		require.NotEmpty(t, hits)
		assert.Equal(t, int64(2), hits[0].ID)
	})

	t.Run("field query", func(t *testing.T) {
		hits, err := index.Search("categoria:transporte", 10)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, int64(2), hits[0].ID)
	})

	t.Run("typo falls back to fuzzy", func(t *testing.T) {
		hits, err := index.Search("restaurnte", 10)
		require.NoError(t, err)
		require.NotEmpty(t, hits)
		assert.Equal(t, int64(1), hits[0].ID)
	})

	t.Run("rebuild replaces contents", func(t *testing.T) {
		require.NoError(t, index.Rebuild(txs[:1]))
		hits, err := index.Search("uber", 10)
		require.NoError(t, err)
		assert.Empty(t, hits)
	})
}
