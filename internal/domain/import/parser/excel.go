package parser

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/import/sniffer"
	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest"
)

// ExcelParser parses XLSX workbooks for transaction data
type ExcelParser struct{}

func NewExcelParser() *ExcelParser {
	return &ExcelParser{}
}

// Parse returns the rows of the workbook or an error when none could be read.
func (p *ExcelParser) Parse(ctx context.Context, data []byte, name string) ([]Row, error) {
	result, err := p.ParseResult(ctx, data, name)
	if err != nil {
		return nil, err
	}
	return result.Rows, result.Err()
}

// ParseResult reads the first transaction-like sheet. Cells are read raw so
// that amounts keep their stored precision and dates arrive as serials.
func (p *ExcelParser) ParseResult(ctx context.Context, data []byte, name string) (*ParseResult, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data), excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	for _, sheet := range orderedSheets(f) {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
		}

		headerIdx, colMap, ok := findHeader(rows)
		if !ok {
			continue
		}

		result := &ParseResult{}
		for i := headerIdx + 1; i < len(rows); i++ {
			if err := checkContext(ctx, i); err != nil {
				return nil, err
			}
			row := rows[i]
			if isBlank(row) {
				continue
			}
			result.TotalRows++

			parsed, perr := buildRow(colMap.fields(row), i+1, name)
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

	return nil, fmt.Errorf("%w: no sheet with a date and amount header", ErrNoRows)
}

// orderedSheets lists sheets with transaction-related names first.
func orderedSheets(f *excelize.File) []string {
	sheets := f.GetSheetList()
	preferred := []string{"extrato", "movimentos", "transacoes", "lancamentos", "transactions", "statement"}

	out := make([]string, 0, len(sheets))
	seen := make(map[string]bool, len(sheets))
	for _, want := range preferred {
		for _, sheet := range sheets {
			if !seen[sheet] && sniffer.Fold(sheet) == want {
				out = append(out, sheet)
				seen[sheet] = true
			}
		}
	}
	for _, sheet := range sheets {
		if !seen[sheet] {
			out = append(out, sheet)
		}
	}
	return out
}

type columnMap struct {
	dateCol     int
	descCol     int
	amountCol   int
	debitCol    int
	creditCol   int
	categoryCol int
}

var (
	dateKeywords     = []string{"data", "date", "vencimento", "dia", "periodo"}
	descKeywords     = []string{"descricao", "historico", "lancamento", "estabelecimento", "description", "memo", "item", "servico", "nome"}
	amountKeywords   = []string{"valor", "amount", "total", "preco", "pago"}
	debitKeywords    = []string{"debito", "debit", "saida"}
	creditKeywords   = []string{"credito", "credit", "entrada"}
	categoryKeywords = []string{"categoria", "category"}
)

// findHeader looks in the first rows for one naming a date column and either
// an amount or a debit/credit column.
func findHeader(rows [][]string) (int, columnMap, bool) {
	for i, row := range rows {
		if i > 20 {
			break
		}
		cm := mapColumns(row)
		if cm.dateCol >= 0 && (cm.amountCol >= 0 || cm.debitCol >= 0 || cm.creditCol >= 0) {
			return i, cm, true
		}
	}
	return 0, columnMap{}, false
}

// mapColumns creates a column index map from headers. Debit and credit are
// matched before the generic amount words so "Valor Débito" is a debit.
func mapColumns(headers []string) columnMap {
	cm := columnMap{-1, -1, -1, -1, -1, -1}

	for i, header := range headers {
		h := sniffer.Fold(header)
		switch {
		case h == "":
		case cm.debitCol < 0 && containsAny(h, debitKeywords):
			cm.debitCol = i
		case cm.creditCol < 0 && containsAny(h, creditKeywords):
			cm.creditCol = i
		case cm.dateCol < 0 && containsAny(h, dateKeywords):
			cm.dateCol = i
		case cm.descCol < 0 && containsAny(h, descKeywords):
			cm.descCol = i
		case cm.amountCol < 0 && containsAny(h, amountKeywords):
			cm.amountCol = i
		case cm.categoryCol < 0 && containsAny(h, categoryKeywords):
			cm.categoryCol = i
		}
	}
	return cm
}

func (cm columnMap) fields(row []string) fields {
	get := func(idx int) string {
		if idx < 0 || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}
	return fields{
		date:        excelDate(get(cm.dateCol)),
		description: get(cm.descCol),
		amount:      get(cm.amountCol),
		debit:       get(cm.debitCol),
		credit:      get(cm.creditCol),
		category:    get(cm.categoryCol),
	}
}

// excelDate turns a raw date serial into an ISO date and leaves text as is.
func excelDate(v string) string {
	serial, err := strconv.ParseFloat(v, 64)
	if err != nil || serial < 1 || serial > 2958465 {
		return v
	}
	t, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return v
	}
	return t.Format(ingest.DateLayout)
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
