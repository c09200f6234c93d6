package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest"
)

// Extractor turns free text into candidates.
type Extractor interface {
	ExtractCandidates(ctx context.Context, text string) ([]ingest.Candidate, error)
}

// Document types accepted on LLM candidates.
const (
	DocumentTypeStatement = "Extrato"
	DocumentTypeIncome    = "Entrada"
	DocumentTypeExpense   = "Saída"
)

var validDocumentTypes = []string{DocumentTypeStatement, DocumentTypeIncome, DocumentTypeExpense}

const (
	extractHead = 15000
	extractTail = 5000

	extractTemperature = 0.1
)

const extractSystemPrompt = "Você é um extrator de dados financeiros."

const extractPrompt = "Extraia transações financeiras do texto OCR abaixo. " +
	"Retorne SOMENTE um JSON válido no formato de lista de objetos. " +
	"Cada objeto deve conter: data (YYYY-MM-DD), valor (float), descricao (string curta e limpa), " +
	"tipo ('entrada' ou 'saida') e document_type ('Extrato', 'Entrada' ou 'Saída'). " +
	"Regras: " +
	"1) Normalize datas como DD/MM/AAAA para YYYY-MM-DD; " +
	"2) Não inclua texto de autenticação/terminal/protocolo na descricao; " +
	"3) Se detectar pagamento/compra, use tipo='saida'; se detectar recebimento/credito, use tipo='entrada'; " +
	"4) Se não conseguir identificar nada com segurança, retorne [] sem texto adicional.\n\n" +
	"Texto:\n"

// LLMExtractor is the probabilistic fallback extractor.
type LLMExtractor struct {
	client *Client
}

func NewExtractor(client *Client) *LLMExtractor {
	return &LLMExtractor{client: client}
}

func (e *LLMExtractor) ExtractCandidates(ctx context.Context, text string) ([]ingest.Candidate, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("empty text for llm extraction")
	}

	content, err := e.client.Chat(ctx, []Message{
		{Role: "system", Content: extractSystemPrompt},
		{Role: "user", Content: extractPrompt + Shrink(text, extractHead, extractTail)},
	}, extractTemperature)
	if err != nil {
		return nil, err
	}

	var candidates []ingest.Candidate
	if err := decodeList(content, &candidates); err != nil {
		return nil, fmt.Errorf("llm extraction response: %w", err)
	}

	for i := range candidates {
		candidates[i].DocumentType = ingest.Ptr(NormalizeDocumentType(candidates[i].DocumentType))
		if candidates[i].Direction != nil {
			if d, ok := ingest.ParseDirection(string(*candidates[i].Direction)); ok {
				candidates[i].Direction = &d
			}
		}
		if candidates[i].Amount < 0 {
			candidates[i].Amount = -candidates[i].Amount
		}
	}
	return candidates, nil
}

// NormalizeDocumentType keeps one of the known types and falls back to
// Extrato for anything else.
func NormalizeDocumentType(v *string) string {
	if v == nil {
		return DocumentTypeStatement
	}
	for _, valid := range validDocumentTypes {
		if strings.EqualFold(strings.TrimSpace(*v), valid) {
			return valid
		}
	}
	return DocumentTypeStatement
}

// Shrink keeps the first head and last tail runes of s.
func Shrink(s string, head, tail int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= head+tail {
		return string(r)
	}
	return string(r[:head]) + "\n...\n" + string(r[len(r)-tail:])
}

// decodeList parses a JSON list, tolerating markdown code fences and a
// wrapping object whose first list-valued field holds the items.
func decodeList(content string, out any) error {
	text := stripFence(content)

	if err := json.Unmarshal([]byte(text), out); err == nil {
		return nil
	}

	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &wrapper); err != nil {
		return fmt.Errorf("not valid JSON: %w", err)
	}
	for _, raw := range wrapper {
		trimmed := strings.TrimSpace(string(raw))
		if strings.HasPrefix(trimmed, "[") {
			if err := json.Unmarshal(raw, out); err == nil {
				return nil
			}
		}
	}
	return errors.New("response is not a list")
}

func stripFence(content string) string {
	text := strings.TrimSpace(content)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	lines := strings.Split(text, "\n")
	lines = lines[1:]
	if n := len(lines); n > 0 && strings.HasPrefix(strings.TrimSpace(lines[n-1]), "```") {
		lines = lines[:n-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
