// Package extraction turns plain document text into candidate transactions
// with deterministic, table-driven pattern matching.
//
// Statements are read as a sequence of segments, each opened by a date at
// the start of a line. Text with no line-leading date (a single receipt, a
// payment slip) falls back to a single-fact rescue that picks the first date
// anywhere and the most likely total.
package extraction

import (
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest"
	"github.com/FACorreiaa/smart-finance-ingest/pkg/money"
)

// Engine holds the ordered pattern tables used for extraction.
type Engine struct {
	DateFormats    []string
	TotalKeywords  []string
	DirectionHints []DirectionHint
}

// NewEngine returns an engine configured with the package tables.
func NewEngine() *Engine {
	return &Engine{
		DateFormats:    DateFormats,
		TotalKeywords:  TotalKeywords,
		DirectionHints: DirectionHints,
	}
}

// Extract never fails: missing dates or amounts are reported as nil / 0.
func (e *Engine) Extract(text string) []ingest.Candidate {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if candidates := e.segment(text); len(candidates) > 0 {
		return candidates
	}
	return []ingest.Candidate{e.rescue(text)}
}

// segment splits text at every date that opens a line. Each segment runs
// until the next such date or the end of text; anything before the first
// anchor (headers, period lines) is ignored.
func (e *Engine) segment(text string) []ingest.Candidate {
	anchors := lineDatePattern.FindAllStringSubmatchIndex(text, -1)
	if len(anchors) == 0 {
		return nil
	}

	candidates := make([]ingest.Candidate, 0, len(anchors))
	for i, loc := range anchors {
		end := len(text)
		if i+1 < len(anchors) {
			end = anchors[i+1][0]
		}

		dateToken := text[loc[2]:loc[3]]
		body := text[loc[3]:end]

		c := ingest.Candidate{Date: e.parseDate(dateToken)}

		if amounts := amountPattern.FindAllStringIndex(body, -1); len(amounts) > 0 {
			last := amounts[len(amounts)-1]
			if value, ok := parseToken(body[last[0]:last[1]]); ok {
				c.Amount = math.Abs(value)
				if value < 0 {
					c.Direction = ingest.Ptr(ingest.DirectionOut)
				}
			}
			body = body[:last[0]] + " " + body[last[1]:]
		}

		c.Description = cleanDescription(body)
		if c.Direction == nil {
			c.Direction = e.inferDirection(c.Description)
		}
		candidates = append(candidates, c)
	}
	return candidates
}

// rescue builds the single candidate for text with no line-leading date.
func (e *Engine) rescue(text string) ingest.Candidate {
	c := ingest.Candidate{}

	if token := datePattern.FindString(text); token != "" {
		c.Date = e.parseDate(token)
	}

	upper := strings.ToUpper(text)
	if value, ok := e.keywordTotal(upper); ok {
		c.Amount = value
	} else {
		c.Amount = largestPlausible(upper)
	}

	c.Description = firstLine(text, MaxRescueDescription)
	c.Direction = e.inferDirection(upper)
	if c.Direction == nil {
		c.Direction = ingest.Ptr(ingest.DirectionOut)
	}
	return c
}

// keywordTotal looks at the window after the first whole-word occurrence of
// each keyword, in table order; the last plausible amount token in it wins.
func (e *Engine) keywordTotal(upper string) (float64, bool) {
	for _, kw := range e.TotalKeywords {
		idx := indexWord(upper, kw)
		if idx < 0 {
			continue
		}
		start := idx + len(kw)
		end := min(start+KeywordWindow, len(upper))

		tokens := amountPattern.FindAllString(upper[start:end], -1)
		for i := len(tokens) - 1; i >= 0; i-- {
			if value, ok := parseToken(tokens[i]); ok && plausible(value) {
				return math.Abs(value), true
			}
		}
	}
	return 0, false
}

// indexWord is strings.Index restricted to matches not embedded in a longer
// word, so TOTAL does not match inside SUBTOTAL.
func indexWord(s, word string) int {
	for offset := 0; offset < len(s); {
		idx := strings.Index(s[offset:], word)
		if idx < 0 {
			return -1
		}
		start := offset + idx
		end := start + len(word)
		if !wordByteAt(s, start-1) && !wordByteAt(s, end) {
			return start
		}
		offset = start + 1
	}
	return -1
}

func wordByteAt(s string, i int) bool {
	if i < 0 || i >= len(s) {
		return false
	}
	b := s[i]
	return b >= 'A' && b <= 'Z' || b >= 'a' && b <= 'z' || b >= '0' && b <= '9' || b >= utf8.RuneSelf
}

func largestPlausible(text string) float64 {
	best := 0.0
	for _, token := range amountPattern.FindAllString(text, -1) {
		value, ok := parseToken(token)
		if !ok || !plausible(value) {
			continue
		}
		if abs := math.Abs(value); abs > best {
			best = abs
		}
	}
	return best
}

func plausible(v float64) bool {
	abs := math.Abs(v)
	return abs >= MinPlausibleAmount && abs <= MaxPlausibleAmount
}

// parseDate returns the ISO date for the first layout that accepts token.
func (e *Engine) parseDate(token string) *string {
	token = strings.TrimSpace(token)
	for _, layout := range e.DateFormats {
		if t, err := time.Parse(layout, token); err == nil {
			return ingest.Ptr(t.Format(ingest.DateLayout))
		}
	}
	return nil
}

func (e *Engine) inferDirection(description string) *ingest.Direction {
	upper := strings.ToUpper(description)
	for _, hint := range e.DirectionHints {
		if strings.Contains(upper, hint.Keyword) {
			return ingest.Ptr(hint.Direction)
		}
	}
	return nil
}

func parseToken(token string) (float64, bool) {
	d, err := money.ParseAmount(token)
	if err != nil {
		return 0, false
	}
	return d.InexactFloat64(), true
}

func cleanDescription(s string) string {
	s = spaceRun.ReplaceAllString(s, " ")
	return strings.Trim(s, " -:;|*\t")
}

func firstLine(text string, maxRunes int) string {
	for _, line := range strings.Split(text, "\n") {
		line = cleanDescription(line)
		if line == "" {
			continue
		}
		return truncateRunes(line, maxRunes)
	}
	return ""
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
