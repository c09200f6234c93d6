// Package testutil generates realistic statement fixtures for tests using
// gofakeit. Generated data is deterministic for a given seed.
package testutil

import (
	"fmt"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/shopspring/decimal"
)

// StatementLine is one generated statement entry together with the text it
// renders to.
type StatementLine struct {
	Date        time.Time
	Description string
	Amount      decimal.Decimal
	Text        string
}

// StatementGenerator produces bank-statement shaped text.
type StatementGenerator struct {
	faker *gofakeit.Faker
}

// NewStatementGenerator creates a generator with a fixed seed for reproducibility.
func NewStatementGenerator(seed int64) *StatementGenerator {
	return &StatementGenerator{faker: gofakeit.New(seed)}
}

var descriptionPrefixes = []string{
	"PAGAMENTO", "COMPRA CARTAO", "PIX ENVIADO", "PIX RECEBIDO", "TED", "BOLETO", "TARIFA",
}

// Line generates one statement line dated within the given year.
func (g *StatementGenerator) Line(year int) StatementLine {
	start := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(year, 12, 28, 0, 0, 0, 0, time.UTC)
	date := g.faker.DateRange(start, end).Truncate(24 * time.Hour)

	prefix := g.faker.RandomString(descriptionPrefixes)
	company := strings.ToUpper(sanitize(g.faker.Company()))
	description := prefix + " " + company

	cents := int64(g.faker.Number(100, 500000))
	amount := decimal.New(cents, -2)

	return StatementLine{
		Date:        date,
		Description: description,
		Amount:      amount,
		Text:        fmt.Sprintf("%s %s %s", date.Format("02/01/2006"), description, FormatBRL(amount)),
	}
}

// Lines generates n lines in the same year.
func (g *StatementGenerator) Lines(year, n int) []StatementLine {
	out := make([]StatementLine, n)
	for i := range out {
		out[i] = g.Line(year)
	}
	return out
}

// Text joins the rendered lines with newlines.
func Text(lines []StatementLine) string {
	parts := make([]string, len(lines))
	for i, l := range lines {
		parts[i] = l.Text
	}
	return strings.Join(parts, "\n")
}

// FormatBRL renders 1234.5 as "1.234,50".
func FormatBRL(d decimal.Decimal) string {
	s := d.Abs().StringFixed(2)
	intPart, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	out := b.String() + "," + frac
	if d.IsNegative() {
		out = "-" + out
	}
	return out
}

// sanitize drops digits and punctuation so generated descriptions never look
// like dates or amounts.
func sanitize(s string) string {
	return strings.Join(strings.Fields(strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == ' ':
			return r
		default:
			return -1
		}
	}, s)), " ")
}
