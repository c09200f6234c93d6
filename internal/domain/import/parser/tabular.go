package parser

import (
	"context"
	"fmt"

	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/import/sniffer"
)

// Tabular dispatches to the CSV, XLSX or OFX parser by sniffing the file.
type Tabular struct {
	csv   *CSVParser
	excel *ExcelParser
	ofx   *OFXParser
}

func NewTabular() *Tabular {
	return &Tabular{csv: NewCSVParser(), excel: NewExcelParser(), ofx: NewOFXParser()}
}

// Parse reads the rows of a tabular export.
func (t *Tabular) Parse(ctx context.Context, data []byte, name string) ([]Row, error) {
	result, err := t.ParseResult(ctx, data, name)
	if err != nil {
		return nil, err
	}
	return result.Rows, result.Err()
}

// ParseResult is Parse keeping per-row errors and the header fingerprint.
func (t *Tabular) ParseResult(ctx context.Context, data []byte, name string) (*ParseResult, error) {
	switch kind := sniffer.DetectSourceKind("", name, data); kind {
	case sniffer.KindCSV, sniffer.KindText:
		return t.csv.ParseResult(ctx, data, name)
	case sniffer.KindXLSX:
		return t.excel.ParseResult(ctx, data, name)
	case sniffer.KindOFX:
		return t.ofx.ParseResult(ctx, data, name)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, kind)
	}
}
