package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest"
)

// Categorizer assigns a category to each candidate.
type Categorizer interface {
	Categorize(ctx context.Context, candidates []ingest.Candidate) ([]ingest.Candidate, error)
}

// Budget categories understood by the ledger.
var Categories = []string{"Alimentação", "Transporte", "Serviços", "Outros"}

// FallbackCategory is used when nothing better is known.
const FallbackCategory = "Outros"

const (
	categorizeHead = 12000
	categorizeTail = 3000
)

const categorizeSystemPrompt = "Você classifica transações financeiras em categorias de orçamento pessoal com alta precisão."

// NormalizeFunc maps a free-form category name onto a known one.
type NormalizeFunc func(name string) (string, bool)

// LLMCategorizer classifies candidates by index.
type LLMCategorizer struct {
	client     *Client
	categories []string
	normalize  NormalizeFunc
}

// NewCategorizer builds a categorizer. A nil normalize accepts only exact
// (case-insensitive) category names.
func NewCategorizer(client *Client, categories []string, normalize NormalizeFunc) *LLMCategorizer {
	if len(categories) == 0 {
		categories = Categories
	}
	if normalize == nil {
		normalize = exactCategory(categories)
	}
	return &LLMCategorizer{client: client, categories: categories, normalize: normalize}
}

type classification struct {
	Index     *int   `json:"index"`
	Categoria string `json:"categoria"`
}

// Categorize never drops or reorders candidates. Without an API key the
// input comes back unchanged together with ErrNotConfigured.
func (c *LLMCategorizer) Categorize(ctx context.Context, candidates []ingest.Candidate) ([]ingest.Candidate, error) {
	if len(candidates) == 0 {
		return candidates, nil
	}
	if !c.client.Configured() {
		return candidates, ErrNotConfigured
	}

	payload, err := json.Marshal(candidates)
	if err != nil {
		return candidates, fmt.Errorf("failed to encode candidates: %w", err)
	}

	prompt := "Classifique cada transação em UMA categoria dentre: " +
		strings.Join(c.categories, ", ") + ". " +
		"Retorne SOMENTE um JSON válido com uma lista de objetos no formato: " +
		`[{"index": 0, "categoria": "Outros"}]. ` +
		"Se não conseguir classificar, retorne [] e não retorne texto adicional.\n\n" +
		"Transações (JSON):\n" + Shrink(string(payload), categorizeHead, categorizeTail)

	content, err := c.client.Chat(ctx, []Message{
		{Role: "system", Content: categorizeSystemPrompt},
		{Role: "user", Content: prompt},
	}, 0)
	if err != nil {
		return candidates, err
	}

	var items []classification
	if err := decodeList(content, &items); err != nil {
		return candidates, fmt.Errorf("llm categorization response: %w", err)
	}

	byIndex := make(map[int]string, len(items))
	for _, item := range items {
		if item.Index == nil {
			continue
		}
		if name, ok := c.normalize(item.Categoria); ok {
			byIndex[*item.Index] = name
		}
	}

	out := make([]ingest.Candidate, len(candidates))
	for i, cand := range candidates {
		name, ok := byIndex[i]
		if !ok {
			name = cand.CategoryOrEmpty()
			if normalized, valid := c.normalize(name); valid {
				name = normalized
			} else {
				name = FallbackCategory
			}
		}
		cand.Category = ingest.Ptr(name)
		out[i] = cand
	}
	return out, nil
}

func exactCategory(categories []string) NormalizeFunc {
	return func(name string) (string, bool) {
		for _, c := range categories {
			if strings.EqualFold(strings.TrimSpace(name), c) {
				return c, true
			}
		}
		return "", false
	}
}
