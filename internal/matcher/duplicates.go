package matcher

import (
	"fmt"

	"statement-reconciliation-service/internal/models"
	"statement-reconciliation-service/pkg/logger"
)

// DuplicateReason says which pass rejected a candidate
type DuplicateReason string

const (
	DuplicateOfBatch  DuplicateReason = "batch"
	DuplicateOfLedger DuplicateReason = "ledger"
)

// Duplicate is a candidate that was dropped before staging
type Duplicate struct {
	Record   models.BankTransactionRecord `json:"record"`
	Reason   DuplicateReason              `json:"reason"`
	LedgerID string                       `json:"ledgerId,omitempty"`
}

// DedupResult is the outcome of running both duplicate passes over a parse
type DedupResult struct {
	Kept          []models.BankTransactionRecord `json:"-"`
	Duplicates    []Duplicate                    `json:"duplicates"`
	SkippedBatch  int                            `json:"skippedBatch"`
	SkippedLedger int                            `json:"skippedLedger"`
}

// Skipped is the total number of dropped candidates
func (r *DedupResult) Skipped() int {
	return r.SkippedBatch + r.SkippedLedger
}

// AllDuplicates reports whether there were candidates and every one was dropped
func (r *DedupResult) AllDuplicates() bool {
	return len(r.Kept) == 0 && r.Skipped() > 0
}

// Summary returns the informational message for dropped candidates
func (r *DedupResult) Summary() string {
	return SkippedSummary(r.Skipped())
}

// SkippedSummary describes n dropped duplicates, or returns "" for none
func SkippedSummary(n int) string {
	switch n {
	case 0:
		return ""
	case 1:
		return "skipped 1 duplicate"
	default:
		return fmt.Sprintf("skipped %d duplicates", n)
	}
}

// DuplicateDetector drops candidates that repeat a staged record or a
// committed ledger transaction
type DuplicateDetector struct {
	config *DedupConfig
	logger logger.Logger
}

// NewDuplicateDetector creates a detector; a nil config uses the defaults
func NewDuplicateDetector(config *DedupConfig) (*DuplicateDetector, error) {
	if config == nil {
		config = DefaultDedupConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &DuplicateDetector{
		config: config,
		logger: logger.GetGlobalLogger().WithComponent("dedup"),
	}, nil
}

// Filter runs the batch pass and then the ledger pass over candidates.
// Candidates kept earlier in the same call count as part of the batch.
func (dd *DuplicateDetector) Filter(candidates []models.BankTransactionRecord, staged []*models.StagedImportRecord, ledger *LedgerIndex) *DedupResult {
	result := &DedupResult{}
	if ledger == nil {
		ledger = NewLedgerIndex(nil)
	}

	batch := make([]*models.BankTransactionRecord, 0, len(staged)+len(candidates))
	for _, s := range staged {
		batch = append(batch, &s.BankTransactionRecord)
	}

	for i := range candidates {
		candidate := candidates[i]

		if dd.inBatch(&candidate, batch) {
			result.SkippedBatch++
			result.Duplicates = append(result.Duplicates, Duplicate{Record: candidate, Reason: DuplicateOfBatch})
			continue
		}

		if tx := dd.FindLedgerDuplicate(&candidate, ledger); tx != nil {
			result.SkippedLedger++
			result.Duplicates = append(result.Duplicates, Duplicate{Record: candidate, Reason: DuplicateOfLedger, LedgerID: tx.ID})
			continue
		}

		result.Kept = append(result.Kept, candidate)
		batch = append(batch, &candidate)
	}

	dd.logger.WithFields(logger.Fields{
		"candidates":     len(candidates),
		"kept":           len(result.Kept),
		"skipped_batch":  result.SkippedBatch,
		"skipped_ledger": result.SkippedLedger,
		"ledger_rows":    ledger.Len(),
	}).Debug("Duplicate detection complete")

	return result
}

func (dd *DuplicateDetector) inBatch(candidate *models.BankTransactionRecord, batch []*models.BankTransactionRecord) bool {
	for _, existing := range batch {
		if dd.IsBatchDuplicate(candidate, existing) {
			return true
		}
	}
	return false
}

// IsBatchDuplicate matches exact description, signed amounts less than a
// cent apart, and dates within the window.
func (dd *DuplicateDetector) IsBatchDuplicate(candidate, existing *models.BankTransactionRecord) bool {
	if candidate.Description != existing.Description {
		return false
	}
	if !candidate.Amount.Sub(existing.Amount).Abs().LessThan(models.Cent) {
		return false
	}
	return models.DayDiff(candidate.OccurredAt(), existing.OccurredAt()) <= dd.config.DateWindowDays
}

// FindLedgerDuplicate returns the first ledger row the candidate repeats, or nil
func (dd *DuplicateDetector) FindLedgerDuplicate(candidate *models.BankTransactionRecord, ledger *LedgerIndex) *models.LedgerTransaction {
	for _, tx := range ledger.GetNearAmount(candidate.Amount) {
		if dd.IsLedgerDuplicate(candidate, tx) {
			return tx
		}
	}
	return nil
}

// IsLedgerDuplicate requires a description match, an amount within a cent
// in the same direction, and dates within the window. The ledger row's bank
// reference is compared as well as its description.
func (dd *DuplicateDetector) IsLedgerDuplicate(candidate *models.BankTransactionRecord, tx *models.LedgerTransaction) bool {
	if !models.AmountsWithinCent(candidate.Amount, tx.Amount) {
		return false
	}
	if candidate.Direction() != tx.Direction {
		return false
	}
	if models.DayDiff(candidate.OccurredAt(), tx.OccurredOn) > dd.config.DateWindowDays {
		return false
	}

	if dd.DescriptionsMatch(candidate.Description, tx.Description) {
		return true
	}
	return tx.BankReference != nil && dd.DescriptionsMatch(candidate.Description, *tx.BankReference)
}

// DescriptionsMatch applies the ledger-pass description rule: normalized
// equality, a significant substring, or enough of the candidate's words
// found in the existing description.
func (dd *DuplicateDetector) DescriptionsMatch(candidate, existing string) bool {
	a, b := NormalizeDescription(candidate), NormalizeDescription(existing)
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	if IsSignificantSubstring(a, b, dd.config.SubstringRatio) {
		return true
	}
	return WordOverlap(a, b, dd.config.MinWordLength) >= dd.config.WordSimilarity
}
