package extraction

import (
	"time"
	"unicode/utf8"

	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest"
)

// IsLowQuality reports whether pattern output should be handed to the LLM
// extractor instead: nothing extracted, a candidate without a usable date, or
// a description long enough to be OCR bleed-through.
func IsLowQuality(candidates []ingest.Candidate) bool {
	if len(candidates) == 0 {
		return true
	}
	for _, c := range candidates {
		if c.Date == nil {
			return true
		}
		if _, err := time.Parse(ingest.DateLayout, *c.Date); err != nil {
			return true
		}
		if utf8.RuneCountInString(c.Description) > LowQualityDescription {
			return true
		}
	}
	return false
}
