package categorization

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizer_Normalize(t *testing.T) {
	n := NewNormalizer(nil, 0)

	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"Alimentação", CategoryFood, true},
		{"alimentacao", CategoryFood, true},
		{"SERVICOS", CategoryServices, true},
		{"Transportes", CategoryTransport, true},
		{"Alimentação e bebidas", CategoryFood, true},
		{"outros", CategoryOther, true},
		{"Viagem", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := n.Normalize(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFuzzyScore(t *testing.T) {
	assert.Equal(t, 100, fuzzyScore("OUTROS", "OUTROS"))
	assert.GreaterOrEqual(t, fuzzyScore("TRANSPORTES", "TRANSPORTE"), 90)
	assert.Less(t, fuzzyScore("VIAGEM", "OUTROS"), DefaultNormalizeThreshold)
}

func TestLevenshteinDistance(t *testing.T) {
	assert.Equal(t, 0, levenshteinDistance("abc", "abc"))
	assert.Equal(t, 3, levenshteinDistance("", "abc"))
	assert.Equal(t, 1, levenshteinDistance("serviço", "servico"))
	assert.Equal(t, 3, levenshteinDistance("kitten", "sitting"))
}
