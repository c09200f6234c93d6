package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest"
)

var ErrInvalidMonth = errors.New("invalid month, expected YYYY-MM")

// MonthLayout is the YYYY-MM form used to select a summary month.
const MonthLayout = "2006-01"

// CategoryTotal is the outgoing spend of one category in a month.
type CategoryTotal struct {
	Category string          `json:"categoria"`
	Total    decimal.Decimal `json:"total"`
	Count    int             `json:"count"`
	// Share of the month's outgoing total, 0-100.
	Share float64 `json:"share"`
}

// MonthlySummary aggregates the ledger entries dated in one month.
type MonthlySummary struct {
	Month         string          `json:"month"`
	Count         int             `json:"count"`
	TotalIn       decimal.Decimal `json:"total_entrada"`
	TotalOut      decimal.Decimal `json:"total_saida"`
	Net           decimal.Decimal `json:"net"`
	TopCategories []CategoryTotal `json:"top_categories"`
	// LargestExpense is nil for months without outgoing entries.
	LargestExpense *Transaction `json:"largest_expense,omitempty"`
}

// ListMonth returns entries dated in month (YYYY-MM), oldest first.
func (r *SQLiteRepository) ListMonth(ctx context.Context, month string) ([]Transaction, error) {
	if _, err := time.Parse(MonthLayout, month); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMonth, month)
	}
	return r.query(ctx,
		`SELECT `+transactionColumns+` FROM transacoes WHERE data LIKE ? ORDER BY data, id`,
		month+"-%")
}

// Summarize computes the month summary. Entries outside month are ignored.
func Summarize(month string, txs []Transaction) MonthlySummary {
	s := MonthlySummary{
		Month:         month,
		TotalIn:       decimal.Zero,
		TotalOut:      decimal.Zero,
		TopCategories: []CategoryTotal{},
	}

	byCategory := make(map[string]*CategoryTotal)
	for i := range txs {
		tx := txs[i]
		if len(tx.Date) < len(MonthLayout) || tx.Date[:len(MonthLayout)] != month {
			continue
		}
		s.Count++

		if tx.Direction == ingest.DirectionIn {
			s.TotalIn = s.TotalIn.Add(tx.Amount)
			continue
		}
		s.TotalOut = s.TotalOut.Add(tx.Amount)

		category := tx.Category
		if category == "" {
			category = DefaultCategory
		}
		ct, ok := byCategory[category]
		if !ok {
			ct = &CategoryTotal{Category: category, Total: decimal.Zero}
			byCategory[category] = ct
		}
		ct.Total = ct.Total.Add(tx.Amount)
		ct.Count++

		if s.LargestExpense == nil || tx.Amount.GreaterThan(s.LargestExpense.Amount) {
			s.LargestExpense = &tx
		}
	}
	s.Net = s.TotalIn.Sub(s.TotalOut)

	for _, ct := range byCategory {
		if s.TotalOut.IsPositive() {
			ct.Share = ct.Total.Div(s.TotalOut).Mul(decimal.NewFromInt(100)).Round(1).InexactFloat64()
		}
		s.TopCategories = append(s.TopCategories, *ct)
	}
	sort.Slice(s.TopCategories, func(i, j int) bool {
		a, b := s.TopCategories[i], s.TopCategories[j]
		if !a.Total.Equal(b.Total) {
			return a.Total.GreaterThan(b.Total)
		}
		return a.Category < b.Category
	})
	return s
}
