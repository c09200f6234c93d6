package categorization

import (
	"context"
	"log/slog"

	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest"
)

// Fallback classifies the candidates the keyword rules could not place.
type Fallback interface {
	Categorize(ctx context.Context, candidates []ingest.Candidate) ([]ingest.Candidate, error)
}

// Service categorizes candidates with the keyword engine first and sends
// the remainder to an optional fallback. Every returned candidate carries a
// category from the closed set.
type Service struct {
	engine     *Engine
	normalizer *Normalizer
	fallback   Fallback
	logger     *slog.Logger
}

func NewService(engine *Engine, normalizer *Normalizer, fallback Fallback, logger *slog.Logger) *Service {
	return &Service{engine: engine, normalizer: normalizer, fallback: fallback, logger: logger}
}

// Categorize never drops or reorders candidates. A fallback failure is
// returned alongside a complete result so callers can log it and go on.
func (s *Service) Categorize(ctx context.Context, candidates []ingest.Candidate) ([]ingest.Candidate, error) {
	out := make([]ingest.Candidate, len(candidates))
	copy(out, candidates)

	var pending []int
	for i := range out {
		if name, ok := s.normalizer.Normalize(out[i].CategoryOrEmpty()); ok {
			out[i].Category = ingest.Ptr(name)
			continue
		}
		if m := s.engine.Match(out[i].Description); m != nil {
			out[i].Category = ingest.Ptr(m.Category)
			continue
		}
		out[i].Category = nil
		pending = append(pending, i)
	}

	var fallbackErr error
	if len(pending) > 0 && s.fallback != nil {
		batch := make([]ingest.Candidate, len(pending))
		for j, i := range pending {
			batch[j] = out[i]
		}

		categorized, err := s.fallback.Categorize(ctx, batch)
		if err != nil {
			fallbackErr = err
		} else if len(categorized) == len(batch) {
			for j, i := range pending {
				out[i].Category = categorized[j].Category
			}
		}
	}

	for i := range out {
		name, ok := s.normalizer.Normalize(out[i].CategoryOrEmpty())
		if !ok {
			name = CategoryOther
		}
		out[i].Category = ingest.Ptr(name)
	}

	if s.logger != nil {
		s.logger.Debug("categorized candidates",
			slog.Int("total", len(out)),
			slog.Int("fallback", len(pending)),
		)
	}
	return out, fallbackErr
}
