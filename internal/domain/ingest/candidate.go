package ingest

import (
	"strings"
	"time"
)

// Direction is the money flow of a transaction.
type Direction string

const (
	DirectionIn  Direction = "entrada"
	DirectionOut Direction = "saida"
)

// ParseDirection normalizes common spellings of the two directions.
func ParseDirection(s string) (Direction, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "entrada", "credito", "crédito", "credit", "in", "income":
		return DirectionIn, true
	case "saida", "saída", "debito", "débito", "debit", "out", "expense":
		return DirectionOut, true
	default:
		return "", false
	}
}

// Valid reports whether d is one of the two ledger directions.
func (d Direction) Valid() bool {
	return d == DirectionIn || d == DirectionOut
}

// DateLayout is the ISO layout used for candidate and ledger dates.
const DateLayout = "2006-01-02"

// Candidate is a machine-proposed (or human-edited) transaction record.
// Optional fields are nil when the extractor could not determine them.
type Candidate struct {
	Date         *string    `json:"data"`
	Amount       float64    `json:"valor"`
	Description  string     `json:"descricao"`
	Direction    *Direction `json:"tipo"`
	Category     *string    `json:"categoria,omitempty"`
	DocumentType *string    `json:"document_type,omitempty"`
}

// ParsedDate returns the candidate date when present and valid.
func (c Candidate) ParsedDate() (time.Time, bool) {
	if c.Date == nil || *c.Date == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(DateLayout, *c.Date)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// DirectionOrEmpty returns the direction or "" when unset.
func (c Candidate) DirectionOrEmpty() Direction {
	if c.Direction == nil {
		return ""
	}
	return *c.Direction
}

// CategoryOrEmpty returns the category or "" when unset.
func (c Candidate) CategoryOrEmpty() string {
	if c.Category == nil {
		return ""
	}
	return *c.Category
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
