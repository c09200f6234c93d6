package extraction

import (
	"regexp"

	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest"
)

// DateFormats are tried in order against a normalized date token; the first
// layout that parses wins. Day-first layouts come before year-first ones so
// that "10/01/2026" is January 10th.
var DateFormats = []string{
	"2/1/2006",
	"2-1-2006",
	"2/1/06",
	"2-1-06",
	"2006-1-2",
	"2006/1/2",
}

// TotalKeywords are searched in order when a document has no date-anchored
// lines. Longer phrases precede the shorter words they contain.
var TotalKeywords = []string{
	"VALOR TOTAL",
	"TOTAL A PAGAR",
	"TOTAL GERAL",
	"TOTAL",
	"VALOR PAGO",
	"VALOR",
	"PAGAR",
}

// DirectionHint maps a description keyword to the direction it implies.
type DirectionHint struct {
	Keyword   string
	Direction ingest.Direction
}

// DirectionHints are checked in order against the uppercased description.
var DirectionHints = []DirectionHint{
	{"PIX RECEBIDO", ingest.DirectionIn},
	{"PIX ENVIADO", ingest.DirectionOut},
	{"TED RECEBIDA", ingest.DirectionIn},
	{"RECEBEMOS DE", ingest.DirectionIn},
	{"RECEBIMENTO", ingest.DirectionIn},
	{"COMPRA", ingest.DirectionOut},
	{"PAGAMENTO", ingest.DirectionOut},
	{"SAQUE", ingest.DirectionOut},
	{"TARIFA", ingest.DirectionOut},
	{"BOLETO", ingest.DirectionOut},
	{"DEPOSITO", ingest.DirectionIn},
	{"DEPÓSITO", ingest.DirectionIn},
	{"SALARIO", ingest.DirectionIn},
	{"SALÁRIO", ingest.DirectionIn},
	{"VENDA", ingest.DirectionIn},
	{"ESTORNO", ingest.DirectionIn},
	{"CREDITO", ingest.DirectionIn},
	{"CRÉDITO", ingest.DirectionIn},
	{"DEBITO", ingest.DirectionOut},
	{"DÉBITO", ingest.DirectionOut},
}

const (
	// KeywordWindow is how far after a total keyword the amount may appear.
	KeywordWindow = 120
	// MaxRescueDescription bounds the single-fact description.
	MaxRescueDescription = 120
	// LowQualityDescription is the description length above which a
	// candidate is treated as OCR bleed-through.
	LowQualityDescription = 160
)

// Plausible amount bounds for the largest-value rescue heuristic.
const (
	MinPlausibleAmount = 0.01
	MaxPlausibleAmount = 10_000_000.0
)

var (
	datePattern = regexp.MustCompile(`\b(?:\d{1,2}[/-]\d{1,2}[/-]\d{2,4}|\d{4}[/-]\d{1,2}[/-]\d{1,2})\b`)

	// Segment anchors: a date token that opens a line. Group 1 is the token.
	lineDatePattern = regexp.MustCompile(`(?m)^[ \t]*(\d{1,2}[/-]\d{1,2}[/-]\d{2,4}|\d{4}[/-]\d{1,2}[/-]\d{1,2})\b`)

	// A trailing two-digit decimal tail is mandatory; thousands groups and
	// a currency prefix are optional. Parentheses or a minus mark negatives.
	amountPattern = regexp.MustCompile(`\(?-?(?:R\$|US\$|\$|€)?\s?-?(?:\d{1,3}(?:[.,]\d{3})+|\d+)[.,]\d{2}\b\)?`)

	spaceRun = regexp.MustCompile(`\s+`)
)
