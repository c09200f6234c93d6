package parser

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest"
	"github.com/FACorreiaa/smart-finance-ingest/pkg/money"
)

var (
	ErrNoRows      = errors.New("no transaction rows parsed")
	ErrUnsupported = errors.New("unsupported tabular format")
)

// Installment is the "current of total" part of a card purchase.
type Installment struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// Row is one normalized transaction read from a tabular export. Amount is
// absolute; Direction carries the sign.
type Row struct {
	Date        string           `json:"data,omitempty"`
	Description string           `json:"descricao"`
	Amount      decimal.Decimal  `json:"valor"`
	Direction   ingest.Direction `json:"tipo"`
	Category    string           `json:"categoria,omitempty"`
	Source      string           `json:"fonte"`
	Line        int              `json:"linha"`
	Merchant    string           `json:"merchant,omitempty"`
	Installment *Installment     `json:"parcela,omitempty"`
	Hash        string           `json:"hash,omitempty"`
}

// Candidate converts the row into a review candidate.
func (r Row) Candidate() ingest.Candidate {
	c := ingest.Candidate{
		Amount:      r.Amount.Abs().InexactFloat64(),
		Description: r.Description,
	}
	if r.Date != "" {
		c.Date = ingest.Ptr(r.Date)
	}
	if r.Direction.Valid() {
		c.Direction = ingest.Ptr(r.Direction)
	}
	if r.Category != "" {
		c.Category = ingest.Ptr(r.Category)
	}
	return c
}

// Signed returns the amount with the direction applied.
func (r Row) Signed() decimal.Decimal {
	if r.Direction == ingest.DirectionOut {
		return r.Amount.Abs().Neg()
	}
	return r.Amount.Abs()
}

// Candidates converts rows in order.
func Candidates(rows []Row) []ingest.Candidate {
	out := make([]ingest.Candidate, len(rows))
	for i, r := range rows {
		out[i] = r.Candidate()
	}
	return out
}

// LineHash identifies a statement line within a competence (YYYY-MM):
// sha256 of "competence|date|description|amount" with a signed two-decimal
// amount.
func LineHash(competence string, r Row) string {
	base := fmt.Sprintf("%s|%s|%s|%s", competence, r.Date, collapseSpaces(r.Description), r.Signed().StringFixed(2))
	sum := sha256.Sum256([]byte(base))
	return hex.EncodeToString(sum[:])
}

// ParseError represents a parsing error for a specific row
type ParseError struct {
	Row     int
	Column  string
	Message string
	RawData string
}

func (e ParseError) Error() string {
	return fmt.Sprintf("row %d, column %s: %s", e.Row, e.Column, e.Message)
}

// ParseResult contains the rows of one file together with per-row errors.
type ParseResult struct {
	Rows        []Row
	Errors      []ParseError
	TotalRows   int
	SkippedRows int
	// Fingerprint identifies the header layout, when the format has one.
	Fingerprint string
}

// Err fails the file only when nothing at all could be read from it.
func (r *ParseResult) Err() error {
	if len(r.Rows) > 0 {
		return nil
	}
	if len(r.Errors) > 0 {
		return fmt.Errorf("%w: %s", ErrNoRows, r.Errors[0].Error())
	}
	return ErrNoRows
}

// fields are the raw cell values of a row after column mapping.
type fields struct {
	date, description, amount, debit, credit, category string
}

// buildRow normalizes one mapped row. Rows without a date are skipped and
// return (nil, nil).
func buildRow(f fields, line int, source string) (*Row, *ParseError) {
	if strings.TrimSpace(f.date) == "" {
		return nil, nil
	}

	date, err := parseDate(f.date)
	if err != nil {
		return nil, &ParseError{Row: line, Column: "date", Message: err.Error(), RawData: f.date}
	}

	desc := collapseSpaces(f.description)
	if desc == "" {
		return nil, &ParseError{Row: line, Column: "description", Message: "missing description"}
	}

	row := &Row{
		Date:        date.Format(ingest.DateLayout),
		Description: desc,
		Category:    strings.TrimSpace(f.category),
		Source:      source,
		Line:        line,
	}

	switch {
	case strings.TrimSpace(f.amount) != "":
		amount, err := money.ParseAmount(f.amount)
		if err != nil {
			return nil, &ParseError{Row: line, Column: "amount", Message: err.Error(), RawData: f.amount}
		}
		row.Amount = amount.Abs()
		row.Direction = ingest.DirectionIn
		if amount.IsNegative() {
			row.Direction = ingest.DirectionOut
		}
	case strings.TrimSpace(f.debit) != "" || strings.TrimSpace(f.credit) != "":
		amount, direction, perr := debitCredit(f.debit, f.credit, line)
		if perr != nil {
			return nil, perr
		}
		row.Amount = amount
		row.Direction = direction
	default:
		return nil, &ParseError{Row: line, Column: "amount", Message: "no amount found"}
	}

	return row, nil
}

// debitCredit reads double-entry columns: a non-zero debit is money out,
// otherwise the credit is money in.
func debitCredit(debit, credit string, line int) (decimal.Decimal, ingest.Direction, *ParseError) {
	if strings.TrimSpace(debit) != "" {
		d, err := money.ParseAmount(debit)
		if err != nil {
			return decimal.Zero, "", &ParseError{Row: line, Column: "debit", Message: err.Error(), RawData: debit}
		}
		if !d.IsZero() {
			return d.Abs(), ingest.DirectionOut, nil
		}
	}
	if strings.TrimSpace(credit) != "" {
		c, err := money.ParseAmount(credit)
		if err != nil {
			return decimal.Zero, "", &ParseError{Row: line, Column: "credit", Message: err.Error(), RawData: credit}
		}
		return c.Abs(), ingest.DirectionIn, nil
	}
	return decimal.Zero, ingest.DirectionOut, nil
}

// dateFormats are day-first: exports handled here come from Brazilian banks.
var dateFormats = []string{
	"2006-01-02",
	"2/1/2006",
	"2-1-2006",
	"2.1.2006",
	"2/1/06",
	"2006/01/02",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2/1/2006 15:04",
	"2/1/2006 15:04:05",
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date format: %s", s)
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func checkContext(ctx context.Context, i int) error {
	if i%256 == 0 {
		return ctx.Err()
	}
	return nil
}
