package matcher

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/shopspring/decimal"

	"statement-reconciliation-service/internal/models"
	"statement-reconciliation-service/pkg/errors"
	"statement-reconciliation-service/pkg/logger"
)

// MatchingEngine scores staged records against the ledger
type MatchingEngine struct {
	Config    *MatchingConfig
	suggester CategorySuggester
	logger    logger.Logger
}

// MatchResult is the best ledger match for one staged record
type MatchResult struct {
	StagedID            string                    `json:"stagedId"`
	Ledger              *models.LedgerTransaction `json:"-"`
	Score               float64                   `json:"score"`
	Confidence          models.Confidence         `json:"confidence"`
	Status              models.MatchStatus        `json:"status"`
	Reasons             []string                  `json:"reasons"`
	SuggestedCategoryID *string                   `json:"suggestedCategoryId,omitempty"`
	AmountDifference    decimal.Decimal           `json:"amountDifference"`
	DayDifference       int                       `json:"dayDifference"`
}

// LedgerID returns the matched ledger id, or nil when unmatched
func (r *MatchResult) LedgerID() *string {
	if r.Ledger == nil {
		return nil
	}
	id := r.Ledger.ID
	return &id
}

// NewMatchingEngine creates a new matching engine. A nil suggester is
// replaced by NoopSuggester.
func NewMatchingEngine(config *MatchingConfig, suggester CategorySuggester) (*MatchingEngine, error) {
	if config == nil {
		config = DefaultMatchingConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "matching", config.String(), err)
	}
	if suggester == nil {
		suggester = NoopSuggester{}
	}

	return &MatchingEngine{
		Config:    config.Clone(),
		suggester: suggester,
		logger:    logger.GetGlobalLogger().WithComponent("matcher"),
	}, nil
}

// ScorePair computes the weighted score of rec against tx and the reasons
// for every factor that contributed
func (me *MatchingEngine) ScorePair(rec *models.BankTransactionRecord, tx *models.LedgerTransaction) (float64, []string) {
	w := me.Config.Weights
	score := 0.0
	reasons := []string{}

	diff := rec.Amount.Abs().Sub(tx.Amount.Abs()).Abs()
	switch {
	case diff.LessThan(models.Cent):
		score += w.AmountWeight
		reasons = append(reasons, "Exact amount match")
	case diff.LessThan(me.Config.AmountCloseTolerance):
		score += w.AmountWeight / 2
		reasons = append(reasons, fmt.Sprintf("Amount within %s", me.Config.AmountCloseTolerance.StringFixed(2)))
	}

	days := models.DayDiff(rec.OccurredAt(), tx.OccurredOn)
	switch {
	case days == 0:
		score += w.DateWeight
		reasons = append(reasons, "Same date")
	case days <= me.Config.DateCloseDays:
		score += w.DateWeight / 2
		reasons = append(reasons, fmt.Sprintf("Date within %d days", me.Config.DateCloseDays))
	}

	if sim := Jaccard(rec.Description, tx.Description); sim > 0 {
		score += w.DescriptionWeight * sim
		reasons = append(reasons, fmt.Sprintf("Description similarity: %d%%", int(math.Round(sim*100))))
	}

	if rec.Direction() == tx.Direction {
		score += w.DirectionWeight
		reasons = append(reasons, "Same direction")
	}

	return clampScore(score), reasons
}

// clampScore bounds the score to [0,1] and rounds away float noise so
// tier boundaries compare reliably
func clampScore(score float64) float64 {
	score = math.Round(score*1e6) / 1e6
	return math.Max(0, math.Min(1, score))
}

// BestMatch returns the highest scoring ledger row. Ties keep the first
// row encountered. It returns nil when every score is zero.
func (me *MatchingEngine) BestMatch(rec *models.BankTransactionRecord, ledger []*models.LedgerTransaction) (*models.LedgerTransaction, float64, []string) {
	var best *models.LedgerTransaction
	bestScore := 0.0
	var bestReasons []string

	for _, tx := range ledger {
		score, reasons := me.ScorePair(rec, tx)
		if score > bestScore {
			best, bestScore, bestReasons = tx, score, reasons
		}
	}

	if best == nil || bestScore < me.Config.MinScore {
		return nil, 0, []string{}
	}
	return best, bestScore, bestReasons
}

// Match scores one staged record and resolves its category suggestion
func (me *MatchingEngine) Match(ctx context.Context, rec *models.StagedImportRecord, ledger []*models.LedgerTransaction) *MatchResult {
	best, score, reasons := me.BestMatch(&rec.BankTransactionRecord, ledger)

	result := &MatchResult{
		StagedID:   rec.ID,
		Ledger:     best,
		Score:      score,
		Confidence: me.Config.Tier(score),
		Status:     me.Config.StatusFor(score),
		Reasons:    reasons,
	}

	if best != nil {
		result.AmountDifference = rec.Amount.Abs().Sub(best.Amount.Abs()).Abs()
		result.DayDifference = models.DayDiff(rec.OccurredAt(), best.OccurredOn)
		if best.CategoryID != nil {
			id := *best.CategoryID
			result.SuggestedCategoryID = &id
		}
	}

	if result.Confidence != models.ConfidenceHigh {
		me.applySuggestion(ctx, rec, result)
	}

	return result
}

// applySuggestion prefers the suggester's top category over a weaker match
func (me *MatchingEngine) applySuggestion(ctx context.Context, rec *models.StagedImportRecord, result *MatchResult) {
	suggestions, err := me.suggester.Suggest(ctx, rec.Description)
	if err != nil {
		me.logger.WithError(err).WithField("staged_id", rec.ID).Warn("Category suggestion failed")
		return
	}
	if len(suggestions) == 0 || suggestions[0].CategoryID == "" {
		return
	}

	top := suggestions[0]
	id := top.CategoryID
	result.SuggestedCategoryID = &id
	result.Reasons = append(result.Reasons, fmt.Sprintf("Pattern match: %d%% confidence", int(math.Round(top.Confidence*100))))
}

// MatchAll scores every record against the ledger. Results are returned
// in input order. Records are scored concurrently when Workers > 1.
func (me *MatchingEngine) MatchAll(ctx context.Context, records []*models.StagedImportRecord, ledger []*models.LedgerTransaction) ([]*MatchResult, error) {
	results := make([]*MatchResult, len(records))
	if len(records) == 0 {
		return results, nil
	}

	progress := logger.NewProgressTracker(logger.ProgressConfig{
		Operation: "matching",
		Total:     int64(len(records)),
		Logger:    me.logger,
	})

	workers := me.Config.Workers
	if workers > len(records) {
		workers = len(records)
	}

	semaphore := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			wg.Wait()
			return nil, errors.ReconciliationError(errors.CodeMatchingFailed, "matching", err)
		}

		wg.Add(1)
		semaphore <- struct{}{}

		go func(i int, rec *models.StagedImportRecord) {
			defer wg.Done()
			defer func() { <-semaphore }()

			results[i] = me.Match(ctx, rec, ledger)
			progress.Increment()
		}(i, rec)
	}

	wg.Wait()
	progress.Complete()

	me.logger.WithFields(logger.Fields{
		"records":     len(records),
		"ledger_rows": len(ledger),
		"workers":     workers,
	}).Debug("Matching complete")

	return results, nil
}

// GetConfiguration returns a copy of the current configuration
func (me *MatchingEngine) GetConfiguration() *MatchingConfig {
	return me.Config.Clone()
}
