package categorization

import (
	"strings"
	"sync"

	"github.com/cloudflare/ahocorasick"
)

// MatchResult is the winning rule for a description.
type MatchResult struct {
	Pattern  string
	Category string
	Priority int
}

// Engine is a multi-pattern keyword matcher using the Aho-Corasick
// algorithm. It matches every rule in a single pass through the text,
// independent of the number of rules.
type Engine struct {
	matcher  *ahocorasick.Matcher
	patterns []string
	metadata [][]MatchResult
	mu       sync.RWMutex
}

// NewEngine builds an engine from rules.
func NewEngine(rules []Rule) *Engine {
	e := &Engine{}
	e.Build(rules)
	return e
}

// Build replaces the rule set. Rules sharing a pattern are grouped so the
// highest priority among them wins.
func (e *Engine) Build(rules []Rule) {
	e.mu.Lock()
	defer e.mu.Unlock()

	patternToIndex := make(map[string]int, len(rules))
	patterns := make([]string, 0, len(rules))
	metadata := make([][]MatchResult, 0, len(rules))

	for _, rule := range rules {
		clean := strings.ToUpper(strings.TrimSpace(rule.Pattern))
		if clean == "" || rule.Category == "" {
			continue
		}
		result := MatchResult{Pattern: clean, Category: rule.Category, Priority: rule.Priority}
		if idx, ok := patternToIndex[clean]; ok {
			metadata[idx] = append(metadata[idx], result)
			continue
		}
		patternToIndex[clean] = len(patterns)
		patterns = append(patterns, clean)
		metadata = append(metadata, []MatchResult{result})
	}

	e.patterns = patterns
	e.metadata = metadata
	e.matcher = nil
	if len(patterns) > 0 {
		e.matcher = ahocorasick.NewStringMatcher(patterns)
	}
}

// Match returns the highest priority rule found in description, or nil.
func (e *Engine) Match(description string) *MatchResult {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.match(description)
}

// MatchBatch matches many descriptions under one lock.
func (e *Engine) MatchBatch(descriptions []string) []*MatchResult {
	e.mu.RLock()
	defer e.mu.RUnlock()

	results := make([]*MatchResult, len(descriptions))
	for i, desc := range descriptions {
		results[i] = e.match(desc)
	}
	return results
}

func (e *Engine) match(description string) *MatchResult {
	if e.matcher == nil {
		return nil
	}

	var best *MatchResult
	for _, idx := range e.matcher.Match([]byte(strings.ToUpper(description))) {
		if idx < 0 || idx >= len(e.metadata) {
			continue
		}
		for i := range e.metadata[idx] {
			m := e.metadata[idx][i]
			if best == nil || m.Priority > best.Priority ||
				(m.Priority == best.Priority && len(m.Pattern) > len(best.Pattern)) {
				best = &m
			}
		}
	}
	return best
}

// PatternCount returns the number of distinct patterns loaded.
func (e *Engine) PatternCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.patterns)
}
