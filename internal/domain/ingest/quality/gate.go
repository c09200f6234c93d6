// Package quality runs automated sanity checks over extracted candidates.
// The gate is advisory: it reports issues and a confidence score but never
// removes a candidate or blocks a document from reaching human review.
package quality

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/cloudflare/ahocorasick"

	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest"
)

// Rule identifiers reported in Issue.Rule.
const (
	RuleEmptyPayload       = "empty_payload"
	RuleMissingType        = "missing_type"
	RuleInvalidType        = "invalid_type"
	RuleMissingDate        = "missing_date"
	RuleInvalidDate        = "invalid_date"
	RuleFutureDate         = "future_date"
	RuleMissingDescription = "missing_description"
	RuleDescriptionTooLong = "description_too_long"
	RuleDescriptionNoise   = "description_noise"
	RuleZeroValue          = "zero_value"
	RuleValueOutOfRange    = "value_out_of_range"
)

const (
	MaxDescriptionLength = 160
	MaxAmount            = 10_000_000.0

	PassedConfidence = 0.95
	FailedConfidence = 0.60
)

// NoiseTerms are receipt artifacts that should never end up in a description.
var NoiseTerms = []string{
	"AUTENTICACAO",
	"AUTENTICAÇÃO",
	"TERMINAL",
	"PROTOCOLO",
	"NSU",
	"VIA CLIENTE",
	"CNPJ",
}

// Issue is one failed rule for one candidate. Index is -1 for payload-level
// issues.
type Issue struct {
	Index   int    `json:"index"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// Bucket aggregates candidates of one direction.
type Bucket struct {
	Count int     `json:"count"`
	Total float64 `json:"total"`
}

// Summary groups candidates by direction.
type Summary struct {
	Entrada Bucket `json:"entrada"`
	Saida   Bucket `json:"saida"`
	Unknown Bucket `json:"unknown"`
}

// Checks is the persisted gate result.
type Checks struct {
	Passed     bool    `json:"passed"`
	Confidence float64 `json:"confidence"`
	Issues     []Issue `json:"issues"`
	Summary    Summary `json:"summary"`
}

// Gate evaluates candidates against the fixed rule set.
type Gate struct {
	noise *ahocorasick.Matcher
}

func NewGate() *Gate {
	return &Gate{noise: ahocorasick.NewStringMatcher(NoiseTerms)}
}

// Run checks every candidate. now is the reference for future dates and is
// compared by calendar day.
func (g *Gate) Run(candidates []ingest.Candidate, now time.Time) Checks {
	checks := Checks{Issues: []Issue{}}

	if len(candidates) == 0 {
		checks.Issues = append(checks.Issues, Issue{
			Index:   -1,
			Rule:    RuleEmptyPayload,
			Message: "no transactions were extracted",
		})
	}

	today := now.Format(ingest.DateLayout)
	for i, c := range candidates {
		checks.Issues = append(checks.Issues, g.check(i, c, today)...)
		addToSummary(&checks.Summary, c)
	}

	checks.Passed = len(checks.Issues) == 0
	checks.Confidence = FailedConfidence
	if checks.Passed {
		checks.Confidence = PassedConfidence
	}
	return checks
}

func (g *Gate) check(i int, c ingest.Candidate, today string) []Issue {
	var issues []Issue
	add := func(rule, format string, args ...any) {
		issues = append(issues, Issue{Index: i, Rule: rule, Message: fmt.Sprintf(format, args...)})
	}

	switch {
	case c.Direction == nil || *c.Direction == "":
		add(RuleMissingType, "transaction type is missing")
	case !c.Direction.Valid():
		add(RuleInvalidType, "transaction type %q is not entrada or saida", string(*c.Direction))
	}

	switch {
	case c.Date == nil || strings.TrimSpace(*c.Date) == "":
		add(RuleMissingDate, "date is missing")
	default:
		d, ok := c.ParsedDate()
		switch {
		case !ok:
			add(RuleInvalidDate, "date %q is not a valid YYYY-MM-DD date", *c.Date)
		case d.Format(ingest.DateLayout) > today:
			add(RuleFutureDate, "date %s is in the future", *c.Date)
		}
	}

	desc := strings.TrimSpace(c.Description)
	switch {
	case desc == "":
		add(RuleMissingDescription, "description is missing")
	default:
		if n := utf8.RuneCountInString(desc); n > MaxDescriptionLength {
			add(RuleDescriptionTooLong, "description has %d characters (max %d)", n, MaxDescriptionLength)
		}
		if term, ok := g.noiseTerm(desc); ok {
			add(RuleDescriptionNoise, "description contains receipt noise %q", term)
		}
	}

	amount := math.Abs(c.Amount)
	switch {
	case amount == 0:
		add(RuleZeroValue, "amount is zero")
	case amount > MaxAmount:
		add(RuleValueOutOfRange, "amount %.2f exceeds %.0f", c.Amount, MaxAmount)
	}

	return issues
}

// noiseTerm returns the first noise term found in desc. Acronyms only count
// as whole words so that "CONSULTA" does not trip "NSU".
func (g *Gate) noiseTerm(desc string) (string, bool) {
	upper := strings.ToUpper(desc)
	hits := g.noise.Match([]byte(upper))
	if len(hits) == 0 {
		return "", false
	}
	sort.Ints(hits)

	var words map[string]bool
	for _, idx := range hits {
		term := NoiseTerms[idx]
		if utf8.RuneCountInString(term) > 3 {
			return term, true
		}
		if words == nil {
			words = make(map[string]bool)
			for _, w := range strings.FieldsFunc(upper, notAlnum) {
				words[w] = true
			}
		}
		if words[term] {
			return term, true
		}
	}
	return "", false
}

func notAlnum(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func addToSummary(s *Summary, c ingest.Candidate) {
	amount := math.Abs(c.Amount)
	bucket := &s.Unknown
	switch c.DirectionOrEmpty() {
	case ingest.DirectionIn:
		bucket = &s.Entrada
	case ingest.DirectionOut:
		bucket = &s.Saida
	}
	bucket.Count++
	bucket.Total = math.Round((bucket.Total+amount)*100) / 100
}
