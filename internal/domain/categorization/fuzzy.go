package categorization

import (
	"strings"
	"unicode"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultNormalizeThreshold is the minimum similarity (0-100) for a free-form
// name to be mapped onto a known category.
const DefaultNormalizeThreshold = 70

// Normalizer maps free-form category names (as returned by a model or a
// spreadsheet column) onto a closed category set.
type Normalizer struct {
	categories []string
	folded     []string
	threshold  int
}

func NewNormalizer(categories []string, threshold int) *Normalizer {
	if len(categories) == 0 {
		categories = Categories
	}
	if threshold <= 0 {
		threshold = DefaultNormalizeThreshold
	}
	folded := make([]string, len(categories))
	for i, c := range categories {
		folded[i] = fold(c)
	}
	return &Normalizer{categories: categories, folded: folded, threshold: threshold}
}

// Normalize returns the closest known category and whether it cleared the
// threshold. Accents and case are ignored: "servicos" maps to "Serviços".
func (n *Normalizer) Normalize(name string) (string, bool) {
	input := fold(name)
	if input == "" {
		return "", false
	}

	best, bestScore := -1, n.threshold-1
	for i, candidate := range n.folded {
		if score := fuzzyScore(input, candidate); score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		return "", false
	}
	return n.categories[best], true
}

// fold uppercases and strips diacritics.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, strings.TrimSpace(s))
	if err != nil {
		out = s
	}
	return strings.ToUpper(out)
}

// fuzzyScore calculates a similarity score between two strings (0-100) from
// containment, Levenshtein distance and subsequence ranking.
func fuzzyScore(s1, s2 string) int {
	if s1 == s2 {
		return 100
	}

	if strings.Contains(s1, s2) {
		return 75 + (25 * len(s2) / len(s1))
	}
	if strings.Contains(s2, s1) {
		return 75 + (25 * len(s1) / len(s2))
	}

	distance := levenshteinDistance(s1, s2)
	maxLen := max(len([]rune(s1)), len([]rune(s2)))
	if maxLen == 0 {
		return 0
	}
	levenshteinScore := 100 * (maxLen - distance) / maxLen

	fuzzyLibScore := 0
	if rank := fuzzy.RankMatch(s1, s2); rank >= 0 && len(s2) > 0 {
		// Lower rank means fewer extra characters around the subsequence.
		fuzzyLibScore = 60 - (rank * 40 / len(s2))
	}

	return max(levenshteinScore, fuzzyLibScore)
}

func levenshteinDistance(s1, s2 string) int {
	r1, r2 := []rune(s1), []rune(s2)
	if len(r1) == 0 {
		return len(r2)
	}
	if len(r2) == 0 {
		return len(r1)
	}

	prev := make([]int, len(r2)+1)
	curr := make([]int, len(r2)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(r1); i++ {
		curr[0] = i
		for j := 1; j <= len(r2); j++ {
			cost := 1
			if r1[i-1] == r2[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(r2)]
}
