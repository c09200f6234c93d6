// Package parser reads tabular bank exports (CSV, XLSX and OFX) into
// normalized transaction rows. CSV rows are unmarshaled with gocsv against
// synonym header tags, XLSX sheets are read with excelize.
package parser

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/gocarina/gocsv"

	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/import/sniffer"
)

// TransactionRow is a CSV row keyed by folded header names (lowercase, no
// accents). Each synonym has its own field; the first non-empty one wins.
type TransactionRow struct {
	Data           string `csv:"data"`
	Date           string `csv:"date"`
	Vencimento     string `csv:"vencimento"`
	Dia            string `csv:"dia"`
	Periodo        string `csv:"periodo"`
	DataMov        string `csv:"data mov."`
	DataLancamento string `csv:"data lancamento"`
	DataCompra     string `csv:"data da compra"`

	Descricao       string `csv:"descricao"`
	Historico       string `csv:"historico"`
	Lancamento      string `csv:"lancamento"`
	Estabelecimento string `csv:"estabelecimento"`
	Item            string `csv:"item"`
	Servico         string `csv:"servico"`
	Nome            string `csv:"nome"`
	Description     string `csv:"description"`
	Memo            string `csv:"memo"`

	Valor     string `csv:"valor"`
	ValorPago string `csv:"valor pago"`
	ValorRS   string `csv:"valor (r$)"`
	Preco     string `csv:"preco"`
	Total     string `csv:"total"`
	Pago      string `csv:"pago"`
	Amount    string `csv:"amount"`

	Debito string `csv:"debito"`
	Debit  string `csv:"debit"`
	Saida  string `csv:"saida"`

	Credito string `csv:"credito"`
	Credit  string `csv:"credit"`
	Entrada string `csv:"entrada"`

	Categoria string `csv:"categoria"`
	Category  string `csv:"category"`
}

func (r TransactionRow) fields() fields {
	return fields{
		date:        coalesce(r.Data, r.Date, r.DataMov, r.DataLancamento, r.DataCompra, r.Vencimento, r.Dia, r.Periodo),
		description: coalesce(r.Descricao, r.Historico, r.Lancamento, r.Estabelecimento, r.Description, r.Memo, r.Item, r.Servico, r.Nome),
		amount:      coalesce(r.Valor, r.ValorPago, r.ValorRS, r.Amount, r.Total, r.Preco, r.Pago),
		debit:       coalesce(r.Debito, r.Debit, r.Saida),
		credit:      coalesce(r.Credito, r.Credit, r.Entrada),
		category:    coalesce(r.Categoria, r.Category),
	}
}

// CSVParser parses delimited exports. Delimiter and header row are sniffed;
// Latin-1 input and a UTF-8 BOM are tolerated.
type CSVParser struct{}

func NewCSVParser() *CSVParser {
	return &CSVParser{}
}

// Parse returns the rows of the file or an error when none could be read.
func (p *CSVParser) Parse(ctx context.Context, data []byte, name string) ([]Row, error) {
	result, err := p.ParseResult(ctx, data, name)
	if err != nil {
		return nil, err
	}
	return result.Rows, result.Err()
}

// ParseResult parses the file keeping per-row errors.
func (p *CSVParser) ParseResult(ctx context.Context, data []byte, name string) (*ParseResult, error) {
	text := sniffer.DecodeText(data)

	cfg, err := sniffer.DetectConfig(text)
	if err != nil {
		return nil, fmt.Errorf("failed to detect CSV layout: %w", err)
	}

	body := text
	if cfg.SkipLines > 0 {
		parts := strings.SplitN(text, "\n", cfg.SkipLines+1)
		body = parts[len(parts)-1]
	}

	reader := csv.NewReader(strings.NewReader(body))
	reader.Comma = cfg.Delimiter
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, sniffer.ErrNoHeadersFound
	}
	for i, h := range records[0] {
		records[0][i] = strings.Join(strings.Fields(sniffer.Fold(h)), " ")
	}

	var rows []TransactionRow
	if err := gocsv.UnmarshalCSV(&recordReader{records: records}, &rows); err != nil {
		return nil, fmt.Errorf("failed to map CSV columns: %w", err)
	}

	result := &ParseResult{TotalRows: len(rows), Fingerprint: cfg.Fingerprint}
	for i, row := range rows {
		if err := checkContext(ctx, i); err != nil {
			return nil, err
		}
		line := cfg.SkipLines + i + 2

		parsed, perr := buildRow(row.fields(), line, name)
		if perr != nil {
			result.Errors = append(result.Errors, *perr)
			continue
		}
		if parsed == nil {
			result.SkippedRows++
			continue
		}
		result.Rows = append(result.Rows, *parsed)
	}
	return result, nil
}

// recordReader feeds already-split records to gocsv.
type recordReader struct {
	records [][]string
	pos     int
}

func (r *recordReader) Read() ([]string, error) {
	if r.pos >= len(r.records) {
		return nil, io.EOF
	}
	rec := r.records[r.pos]
	r.pos++
	return rec, nil
}

func (r *recordReader) ReadAll() ([][]string, error) {
	rest := r.records[r.pos:]
	r.pos = len(r.records)
	return rest, nil
}

// coalesce returns the first non-empty string
func coalesce(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
