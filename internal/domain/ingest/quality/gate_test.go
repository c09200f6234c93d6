package quality

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func rules(c Checks) map[string]bool {
	out := make(map[string]bool)
	for _, issue := range c.Issues {
		out[issue.Rule] = true
	}
	return out
}

func TestGate_ValidPayload(t *testing.T) {
	checks := NewGate().Run([]ingest.Candidate{{
		Date:        ingest.Ptr("2026-01-12"),
		Amount:      85.9,
		Description: "Almoço restaurante",
		Direction:   ingest.Ptr(ingest.DirectionOut),
	}}, now)

	assert.True(t, checks.Passed)
	assert.Empty(t, checks.Issues)
	assert.Equal(t, PassedConfidence, checks.Confidence)
	assert.Equal(t, 0, checks.Summary.Entrada.Count)
	assert.Equal(t, 1, checks.Summary.Saida.Count)
	assert.InDelta(t, 85.9, checks.Summary.Saida.Total, 0.001)
}

func TestGate_MissingFields(t *testing.T) {
	checks := NewGate().Run([]ingest.Candidate{{
		Date:        ingest.Ptr(""),
		Direction:   nil,
		Description: "",
	}}, now)

	got := rules(checks)
	assert.False(t, checks.Passed)
	assert.Equal(t, FailedConfidence, checks.Confidence)
	assert.True(t, got[RuleMissingDate])
	assert.True(t, got[RuleMissingType])
	assert.True(t, got[RuleMissingDescription])
	assert.True(t, got[RuleZeroValue])
	assert.Equal(t, 1, checks.Summary.Unknown.Count)
}

func TestGate_NoiseAndInvalidValues(t *testing.T) {
	checks := NewGate().Run([]ingest.Candidate{{
		Date:        ingest.Ptr("2026-02-30"),
		Amount:      10,
		Description: "RECIBO AUTENTICACAO 123 TERMINAL TM-001 PROTOCOLO XYZ",
		Direction:   ingest.Ptr(ingest.Direction("despesa")),
	}}, now)

	got := rules(checks)
	assert.False(t, checks.Passed)
	assert.True(t, got[RuleInvalidDate])
	assert.True(t, got[RuleInvalidType])
	assert.True(t, got[RuleDescriptionNoise])
}

func TestGate_FutureAndRange(t *testing.T) {
	checks := NewGate().Run([]ingest.Candidate{
		{
			Date:        ingest.Ptr("2026-03-02"),
			Amount:      20_000_000,
			Description: "IMOVEL",
			Direction:   ingest.Ptr(ingest.DirectionIn),
		},
		{
			Date:        ingest.Ptr("2026-03-01"),
			Amount:      1,
			Description: "HOJE",
			Direction:   ingest.Ptr(ingest.DirectionIn),
		},
	}, now)

	require.Len(t, checks.Issues, 2)
	for _, issue := range checks.Issues {
		assert.Equal(t, 0, issue.Index)
	}
	got := rules(checks)
	assert.True(t, got[RuleFutureDate])
	assert.True(t, got[RuleValueOutOfRange])
	assert.Equal(t, 2, checks.Summary.Entrada.Count)
}

func TestGate_DescriptionTooLong(t *testing.T) {
	long := make([]rune, MaxDescriptionLength+1)
	for i := range long {
		long[i] = 'é'
	}
	checks := NewGate().Run([]ingest.Candidate{{
		Date:        ingest.Ptr("2026-01-01"),
		Amount:      5,
		Description: string(long),
		Direction:   ingest.Ptr(ingest.DirectionOut),
	}}, now)

	assert.True(t, rules(checks)[RuleDescriptionTooLong])
}

func TestGate_NoiseAcronymNeedsWholeWord(t *testing.T) {
	gate := NewGate()

	term, ok := gate.noiseTerm("CONSULTA MEDICA")
	assert.False(t, ok, term)

	term, ok = gate.noiseTerm("COMPRA NSU 000123")
	require.True(t, ok)
	assert.Equal(t, "NSU", term)

	term, ok = gate.noiseTerm("pagamento via cliente")
	require.True(t, ok)
	assert.Equal(t, "VIA CLIENTE", term)
}

func TestGate_EmptyPayloadIsReportedNotBlocked(t *testing.T) {
	checks := NewGate().Run(nil, now)

	assert.False(t, checks.Passed)
	require.Len(t, checks.Issues, 1)
	assert.Equal(t, RuleEmptyPayload, checks.Issues[0].Rule)
	assert.Equal(t, -1, checks.Issues[0].Index)
	assert.Equal(t, FailedConfidence, checks.Confidence)
}

func TestGate_NeverDropsCandidates(t *testing.T) {
	candidates := []ingest.Candidate{
		{Description: "A"},
		{Description: "B", Amount: 1},
		{Description: "C", Amount: 2, Direction: ingest.Ptr(ingest.DirectionOut)},
	}
	checks := NewGate().Run(candidates, now)

	s := checks.Summary
	assert.Equal(t, len(candidates), s.Entrada.Count+s.Saida.Count+s.Unknown.Count)
	assert.Len(t, candidates, 3)
}
