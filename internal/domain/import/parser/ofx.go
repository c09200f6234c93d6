package parser

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/import/normalizer"
	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/import/sniffer"
	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest"
)

const (
	// MaxOFXDescription bounds descriptions read from OFX memos.
	MaxOFXDescription = 400
	// UnknownDescription is used when a transaction carries no memo.
	UnknownDescription = "Não identificado"
)

var (
	stmtBlock = regexp.MustCompile(`(?is)<STMTTRN>(.*?)</STMTTRN>`)

	ofxTags = map[string]*regexp.Regexp{}

	installmentPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\bparc(?:ela)?\s*(\d{1,2})\s*/\s*(\d{1,2})\b`),
		regexp.MustCompile(`\bparc(?:ela)?\s*(\d{1,2})\s*de\s*(\d{1,2})\b`),
		regexp.MustCompile(`\b(\d{1,2})\s*/\s*(\d{1,2})\b`),
	}
)

func init() {
	for _, name := range []string{"DTPOSTED", "TRNAMT", "MEMO", "NAME", "PAYEE"} {
		ofxTags[name] = regexp.MustCompile(`(?i)<` + name + `>\s*([^\r\n<]+)`)
	}
}

// OFXParser reads <STMTTRN> blocks from OFX/QFX statements. Both the SGML
// (unclosed tags) and XML dialects are accepted.
type OFXParser struct{}

func NewOFXParser() *OFXParser {
	return &OFXParser{}
}

func (p *OFXParser) Parse(ctx context.Context, data []byte, name string) ([]Row, error) {
	result, err := p.ParseResult(ctx, data, name)
	if err != nil {
		return nil, err
	}
	return result.Rows, result.Err()
}

func (p *OFXParser) ParseResult(ctx context.Context, data []byte, name string) (*ParseResult, error) {
	text := sniffer.DecodeText(data)
	blocks := stmtBlock.FindAllStringSubmatch(text, -1)

	result := &ParseResult{TotalRows: len(blocks)}
	for i, block := range blocks {
		if err := checkContext(ctx, i); err != nil {
			return nil, err
		}
		result.Rows = append(result.Rows, parseOFXBlock(block[1], i+1, name))
	}
	return result, nil
}

func parseOFXBlock(block string, line int, source string) Row {
	memo := coalesce(ofxTag(block, "MEMO"), ofxTag(block, "NAME"), ofxTag(block, "PAYEE"))

	desc := truncateRunes(collapseSpaces(memo), MaxOFXDescription)
	if desc == "" {
		desc = UnknownDescription
	}

	amount, err := decimal.NewFromString(strings.ReplaceAll(ofxTag(block, "TRNAMT"), ",", "."))
	if err != nil {
		amount = decimal.Zero
	}

	row := Row{
		Date:        ofxDate(ofxTag(block, "DTPOSTED")),
		Description: desc,
		Amount:      amount.Abs(),
		Direction:   ingest.DirectionIn,
		Source:      source,
		Line:        line,
		Installment: installment(desc),
	}
	if amount.IsNegative() {
		row.Direction = ingest.DirectionOut
	}
	if payee := coalesce(ofxTag(block, "PAYEE"), ofxTag(block, "NAME")); payee != "" {
		row.Merchant = normalizer.CleanMerchant(payee)
	}

	competence := ""
	if len(row.Date) >= 7 {
		competence = row.Date[:7]
	}
	row.Hash = LineHash(competence, row)
	return row
}

func ofxTag(block, name string) string {
	m := ofxTags[name].FindStringSubmatch(block)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// ofxDate reads the yyyymmdd prefix of an OFX timestamp.
func ofxDate(raw string) string {
	raw = strings.TrimSpace(raw)
	if len(raw) < 8 {
		return ""
	}
	t, err := time.Parse("20060102", raw[:8])
	if err != nil {
		return ""
	}
	return t.Format(ingest.DateLayout)
}

// installment detects "01/03", "parc 01/03" and "parcela 1 de 3".
func installment(desc string) *Installment {
	lower := strings.ToLower(desc)
	for _, re := range installmentPatterns {
		m := re.FindStringSubmatch(lower)
		if m == nil {
			continue
		}
		current, err1 := strconv.Atoi(m[1])
		total, err2 := strconv.Atoi(m[2])
		if err1 != nil || err2 != nil {
			continue
		}
		return &Installment{Current: current, Total: total}
	}
	return nil
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
