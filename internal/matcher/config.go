// Package matcher provides the matching engine that scores staged bank
// records against ledger transactions, and the duplicate detector that runs
// before records are staged.
//
// Scoring is a weighted sum of four factors:
//   - Amount: exact within a cent, or close within a configured tolerance
//   - Date: same calendar day, or within a configured number of days
//   - Description: Jaccard similarity of normalized word sets
//   - Direction: income/expenditure implied by the sign agrees with the ledger
//
// The score maps to a confidence tier (HIGH, MEDIUM, LOW) and a match
// status (matched, potential, unmatched). When the engine is not confident
// it consults an optional CategorySuggester for a category.
//
// Example usage:
//
//	config := matcher.DefaultMatchingConfig()
//	engine, err := matcher.NewMatchingEngine(config, matcher.NoopSuggester{})
//	results, err := engine.MatchAll(ctx, staged, ledger)
package matcher

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"statement-reconciliation-service/internal/models"
)

// MatchingWeights defines the relative importance of the scoring factors
type MatchingWeights struct {
	AmountWeight      float64 `json:"amount_weight" mapstructure:"amount"`
	DateWeight        float64 `json:"date_weight" mapstructure:"date"`
	DescriptionWeight float64 `json:"description_weight" mapstructure:"description"`
	DirectionWeight   float64 `json:"direction_weight" mapstructure:"direction"`
}

// ConfidenceThresholds are the lower score bounds of each tier
type ConfidenceThresholds struct {
	High   float64 `json:"high" mapstructure:"high"`
	Medium float64 `json:"medium" mapstructure:"medium"`
}

// MatchingConfig holds configuration parameters for transaction matching.
//
// Half weight is awarded for amounts within AmountCloseTolerance and dates
// within DateCloseDays; full weight needs an amount within a cent and the
// same calendar day.
type MatchingConfig struct {
	// AmountCloseTolerance is the magnitude difference that still earns half the amount weight
	AmountCloseTolerance decimal.Decimal `json:"amount_close_tolerance" mapstructure:"amount_close_tolerance"`

	// DateCloseDays is the calendar-day difference that still earns half the date weight
	DateCloseDays int `json:"date_close_days" mapstructure:"date_close_days"`

	// Workers bounds the number of goroutines scoring records concurrently
	Workers int `json:"workers" mapstructure:"workers"`

	// MinScore drops matches below it; they are reported as unmatched
	MinScore float64 `json:"min_score" mapstructure:"min_score"`

	Weights    MatchingWeights      `json:"weights" mapstructure:"weights"`
	Thresholds ConfidenceThresholds `json:"thresholds" mapstructure:"thresholds"`
}

// DefaultMatchingConfig returns the standard reconciliation weights
func DefaultMatchingConfig() *MatchingConfig {
	return &MatchingConfig{
		AmountCloseTolerance: decimal.NewFromInt(1),
		DateCloseDays:        2,
		Workers:              4,
		MinScore:             0,
		Weights: MatchingWeights{
			AmountWeight:      0.40,
			DateWeight:        0.30,
			DescriptionWeight: 0.20,
			DirectionWeight:   0.10,
		},
		Thresholds: ConfidenceThresholds{
			High:   0.9,
			Medium: 0.6,
		},
	}
}

// Validate checks if the matching configuration is valid
func (mc *MatchingConfig) Validate() error {
	if mc.AmountCloseTolerance.LessThan(models.Cent) {
		return fmt.Errorf("amount close tolerance must be at least 0.01: %s", mc.AmountCloseTolerance)
	}

	if mc.DateCloseDays < 0 {
		return fmt.Errorf("date close days cannot be negative: %d", mc.DateCloseDays)
	}

	if mc.Workers < 1 {
		return fmt.Errorf("workers must be positive: %d", mc.Workers)
	}

	if mc.MinScore < 0.0 || mc.MinScore > 1.0 {
		return fmt.Errorf("minimum score must be between 0.0 and 1.0: %f", mc.MinScore)
	}

	if err := mc.Weights.Validate(); err != nil {
		return fmt.Errorf("invalid weights: %w", err)
	}

	t := mc.Thresholds
	if t.Medium <= 0 || t.High > 1.0 || t.Medium >= t.High {
		return fmt.Errorf("thresholds must satisfy 0 < medium < high <= 1: medium=%f high=%f", t.Medium, t.High)
	}

	return nil
}

// Validate checks if the matching weights are valid
func (mw *MatchingWeights) Validate() error {
	for name, w := range map[string]float64{
		"amount":      mw.AmountWeight,
		"date":        mw.DateWeight,
		"description": mw.DescriptionWeight,
		"direction":   mw.DirectionWeight,
	} {
		if w < 0.0 || w > 1.0 {
			return fmt.Errorf("%s weight must be between 0.0 and 1.0: %f", name, w)
		}
	}

	// Scores are clamped to [0,1], so the weights must not exceed 1 in total
	if total := mw.Total(); math.Abs(total-1.0) > 1e-9 {
		return fmt.Errorf("weights must sum to 1.0, got %f", total)
	}

	return nil
}

// Total returns the sum of all weights
func (mw *MatchingWeights) Total() float64 {
	return mw.AmountWeight + mw.DateWeight + mw.DescriptionWeight + mw.DirectionWeight
}

// Clone creates a copy of the matching configuration
func (mc *MatchingConfig) Clone() *MatchingConfig {
	if mc == nil {
		return nil
	}
	c := *mc
	return &c
}

// Tier maps a score to its confidence tier. A zero score has no tier.
func (mc *MatchingConfig) Tier(score float64) models.Confidence {
	switch {
	case score <= 0:
		return models.ConfidenceNone
	case score >= mc.Thresholds.High:
		return models.ConfidenceHigh
	case score >= mc.Thresholds.Medium:
		return models.ConfidenceMedium
	default:
		return models.ConfidenceLow
	}
}

// StatusFor derives the automated match status from a score
func (mc *MatchingConfig) StatusFor(score float64) models.MatchStatus {
	switch mc.Tier(score) {
	case models.ConfidenceNone:
		return models.StatusUnmatched
	case models.ConfidenceHigh:
		return models.StatusMatched
	default:
		return models.StatusPotential
	}
}

// String returns a human-readable description of the configuration
func (mc *MatchingConfig) String() string {
	return fmt.Sprintf("MatchingConfig{Weights: %.2f/%.2f/%.2f/%.2f, CloseAmount: %s, CloseDays: %d, High: %.2f, Medium: %.2f, Workers: %d}",
		mc.Weights.AmountWeight, mc.Weights.DateWeight, mc.Weights.DescriptionWeight, mc.Weights.DirectionWeight,
		mc.AmountCloseTolerance, mc.DateCloseDays, mc.Thresholds.High, mc.Thresholds.Medium, mc.Workers)
}

// DedupConfig controls the duplicate detector
type DedupConfig struct {
	// DateWindowDays is the maximum calendar-day difference for a duplicate
	DateWindowDays int `json:"date_window_days" mapstructure:"date_window_days"`

	// SubstringRatio is the minimum length ratio for a significant substring
	SubstringRatio float64 `json:"substring_ratio" mapstructure:"substring_ratio"`

	// WordSimilarity is the minimum fraction of candidate words found in the ledger description
	WordSimilarity float64 `json:"word_similarity" mapstructure:"word_similarity"`

	// MinWordLength excludes words of this length or shorter from word similarity
	MinWordLength int `json:"min_word_length" mapstructure:"min_word_length"`
}

// DefaultDedupConfig returns the standard duplicate detection rules
func DefaultDedupConfig() *DedupConfig {
	return &DedupConfig{
		DateWindowDays: 1,
		SubstringRatio: 0.8,
		WordSimilarity: 0.7,
		MinWordLength:  2,
	}
}

// Validate checks the duplicate detection configuration
func (dc *DedupConfig) Validate() error {
	if dc.DateWindowDays < 0 {
		return fmt.Errorf("date window days cannot be negative: %d", dc.DateWindowDays)
	}
	if dc.SubstringRatio <= 0 || dc.SubstringRatio > 1 {
		return fmt.Errorf("substring ratio must be in (0, 1]: %f", dc.SubstringRatio)
	}
	if dc.WordSimilarity <= 0 || dc.WordSimilarity > 1 {
		return fmt.Errorf("word similarity must be in (0, 1]: %f", dc.WordSimilarity)
	}
	if dc.MinWordLength < 0 {
		return fmt.Errorf("min word length cannot be negative: %d", dc.MinWordLength)
	}
	return nil
}
