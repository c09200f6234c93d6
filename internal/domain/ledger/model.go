// Package ledger is the trusted store of finalized transactions. Entries are
// deduplicated by their natural key (date, description, amount, source,
// direction) and optionally linked back to the documents they came from.
package ledger

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest"
)

// DefaultCategory is stored when nothing else categorized an entry.
const DefaultCategory = "Outros"

// Transaction is one ledger entry.
type Transaction struct {
	ID          int64            `json:"id"`
	Date        string           `json:"data"`
	Description string           `json:"descricao"`
	Amount      decimal.Decimal  `json:"valor"`
	Direction   ingest.Direction `json:"tipo"`
	Source      string           `json:"fonte"`
	Category    string           `json:"categoria"`
	DocumentID  *uuid.UUID       `json:"document_id,omitempty"`
}

// NaturalKey identifies a transaction for dedup.
type NaturalKey struct {
	Date        string
	Description string
	Amount      string
	Source      string
	Direction   string
}

// Key returns the natural key with the amount rendered to two decimals.
func (t Transaction) Key() NaturalKey {
	return NaturalKey{
		Date:        t.Date,
		Description: t.Description,
		Amount:      t.Amount.Abs().StringFixed(2),
		Source:      t.Source,
		Direction:   string(t.Direction),
	}
}

// InsertResult reports what a batch insert did.
type InsertResult struct {
	Inserted int
	Linked   int
}
