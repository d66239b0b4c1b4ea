// Package retrieval selects which retrieved chunks reach the generation
// step: a score-based relevance filter followed by a context-size limit.
package retrieval

import "capture/internal/model"

const (
	// MinContextLimit and MaxContextLimit bound how many chunks may be fed
	// to the generator, regardless of what the caller asks for.
	MinContextLimit = 1
	MaxContextLimit = 20
)

// Filter applies absolute and relative score thresholds and then caps the
// candidate count. Filtering happens before truncation so a larger requested
// limit never pulls in candidates that failed the relevance bar.
type Filter struct {
	// MinScore is the absolute floor a candidate score must reach.
	MinScore float64
	// RelativeMargin keeps only candidates within this margin of the best
	// score, rejecting matches that are far behind the top result even when
	// they clear the absolute floor.
	RelativeMargin float64
	// DefaultLimit is used when the caller does not request a limit.
	DefaultLimit int
}

// NewFilter returns a Filter with the given thresholds. A non-positive
// defaultLimit falls back to 5.
func NewFilter(minScore, relativeMargin float64, defaultLimit int) *Filter {
	if defaultLimit <= 0 {
		defaultLimit = 5
	}
	return &Filter{
		MinScore:       minScore,
		RelativeMargin: relativeMargin,
		DefaultLimit:   defaultLimit,
	}
}

// Apply filters candidates (assumed pre-sorted descending by score) and
// truncates the survivors to the clamped limit, preserving order.
// requestedLimit <= 0 means "use the default".
func (f *Filter) Apply(candidates []model.ScoredChunk, requestedLimit int) []model.ScoredChunk {
	filtered := f.filterByScore(candidates)

	limit := requestedLimit
	if limit <= 0 {
		limit = f.DefaultLimit
	}
	limit = ClampLimit(limit)

	if len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return filtered
}

func (f *Filter) filterByScore(candidates []model.ScoredChunk) []model.ScoredChunk {
	if len(candidates) == 0 {
		return nil
	}
	best := candidates[0].Score
	relativeThreshold := best - f.RelativeMargin

	out := make([]model.ScoredChunk, 0, len(candidates))
	for _, c := range candidates {
		if c.Score >= f.MinScore && c.Score >= relativeThreshold {
			out = append(out, c)
		}
	}
	return out
}

// ClampLimit forces a context limit into [MinContextLimit, MaxContextLimit].
func ClampLimit(limit int) int {
	if limit < MinContextLimit {
		return MinContextLimit
	}
	if limit > MaxContextLimit {
		return MaxContextLimit
	}
	return limit
}
