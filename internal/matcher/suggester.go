package matcher

import "context"

// Suggestion is one candidate category with a confidence in [0,1]
type Suggestion struct {
	CategoryID string  `json:"categoryId"`
	Confidence float64 `json:"confidence"`
}

// CategorySuggester proposes categories for a description, best first.
// Implementations may return an empty slice when they have no opinion.
type CategorySuggester interface {
	Suggest(ctx context.Context, description string) ([]Suggestion, error)
}

// NoopSuggester never has an opinion
type NoopSuggester struct{}

// Suggest implements CategorySuggester
func (NoopSuggester) Suggest(context.Context, string) ([]Suggestion, error) {
	return nil, nil
}

// SuggesterFunc adapts a function to CategorySuggester
type SuggesterFunc func(ctx context.Context, description string) ([]Suggestion, error)

// Suggest implements CategorySuggester
func (f SuggesterFunc) Suggest(ctx context.Context, description string) ([]Suggestion, error) {
	return f(ctx, description)
}
