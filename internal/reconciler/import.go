package reconciler

import (
	"context"
	"time"

	"statement-reconciliation-service/internal/matcher"
	"statement-reconciliation-service/internal/models"
	"statement-reconciliation-service/internal/parsers"
	"statement-reconciliation-service/internal/staging"
	"statement-reconciliation-service/internal/suggest"
	"statement-reconciliation-service/pkg/errors"
	"statement-reconciliation-service/pkg/logger"
)

// ImportOptions controls how an import treats the existing staging batch
type ImportOptions struct {
	// NewSession clears the owner's staging batch before importing
	NewSession bool
}

// ImportResult describes what an import staged and what it skipped
type ImportResult struct {
	File          string                       `json:"file"`
	Stats         *parsers.ParseStats          `json:"stats"`
	Staged        []*models.StagedImportRecord `json:"staged"`
	Duplicates    []matcher.Duplicate          `json:"duplicates,omitempty"`
	Skipped       int                          `json:"skipped"`
	SkippedBatch  int                          `json:"skippedBatch"`
	SkippedLedger int                          `json:"skippedLedger"`
	AllDuplicates bool                         `json:"allDuplicates"`
	Cleared       int64                        `json:"cleared,omitempty"`
	RowErrors     []*errors.EnhancedParseError `json:"rowErrors,omitempty"`
	Breakdown     map[models.MatchStatus]int   `json:"breakdown"`
	Duration      time.Duration                `json:"duration"`
}

// Messages returns the informational lines for the import
func (r *ImportResult) Messages() []string {
	var msgs []string
	if r.AllDuplicates {
		msgs = append(msgs, "all duplicates, nothing imported")
	}
	if msg := matcher.SkippedSummary(r.Skipped); msg != "" {
		msgs = append(msgs, msg)
	}
	if msg := errors.DescribeRowErrors(len(r.RowErrors)); msg != "" {
		msgs = append(msgs, msg)
	}
	return msgs
}

// ImportStatement parses a statement file, drops duplicates, stages the
// remaining records and scores them against the owner's ledger.
//
// Format errors fail the import before anything is staged. Row errors are
// reported on the result. An import where every record is a duplicate is
// a no-op, not an error.
func (s *Session) ImportStatement(ctx context.Context, path string, opts ImportOptions) (*ImportResult, error) {
	unlock, err := s.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	start := time.Now()
	op := logger.NewOperationLogger("import", s.logger).WithField("file", path)

	parsed, err := s.svc.statementParser.ParseFile(ctx, path)
	if err != nil {
		op.Error(err, "Import failed")
		return nil, err
	}

	result := &ImportResult{
		File:      path,
		Stats:     parsed.Stats,
		Staged:    []*models.StagedImportRecord{},
		RowErrors: parsed.RowErrors.GetErrors(),
		Breakdown: make(map[models.MatchStatus]int),
	}

	// A new session is checked against an empty batch. The old batch is
	// only removed together with the insert below.
	var existing []*models.StagedImportRecord
	if !opts.NewSession {
		existing, err = s.svc.store.ListStaged(ctx, s.ownerID)
		if err != nil {
			return nil, errors.StoreError("duplicate check", err)
		}
	}
	ledger, err := s.svc.store.ListLedger(ctx, s.ownerID)
	if err != nil {
		return nil, errors.StoreError("duplicate check", err)
	}

	dedup := s.svc.detector.Filter(parsed.Records, existing, matcher.NewLedgerIndex(ledger))
	result.Duplicates = dedup.Duplicates
	result.Skipped = dedup.Skipped()
	result.SkippedBatch = dedup.SkippedBatch
	result.SkippedLedger = dedup.SkippedLedger
	result.AllDuplicates = dedup.AllDuplicates()

	if len(dedup.Kept) == 0 && !opts.NewSession {
		result.Duration = time.Since(start)
		op.Success("Import finished with nothing to stage")
		return result, nil
	}

	now := s.svc.now()
	records := make([]*models.StagedImportRecord, len(dedup.Kept))
	for i, rec := range dedup.Kept {
		records[i] = models.NewStagedImportRecord(s.svc.newID(), s.ownerID, rec, now)
	}

	if _, err := s.score(ctx, records, ledger); err != nil {
		op.Error(err, "Import failed")
		return nil, err
	}

	if opts.NewSession {
		cleared, err := s.svc.store.ReplaceStaged(ctx, s.ownerID, records)
		if err != nil {
			return nil, errors.StoreError("replace staging", err)
		}
		result.Cleared = cleared
		op.Step("replace-staging", time.Since(start))
	} else if err := s.svc.store.InsertStaged(ctx, records); err != nil {
		return nil, errors.StoreError("stage records", err)
	}

	for _, rec := range records {
		result.Breakdown[rec.MatchStatus]++
	}
	result.Staged = records
	result.Duration = time.Since(start)

	op.WithField("staged", len(records)).
		WithField("skipped", result.Skipped).
		WithField("row_errors", len(result.RowErrors)).
		Success("Import completed")
	return result, nil
}

// score runs the matching engine over records and applies each result
// unless a reviewer already decided the record. It returns the number of
// records that took a fresh score.
func (s *Session) score(ctx context.Context, records []*models.StagedImportRecord, ledger []*models.LedgerTransaction) (int, error) {
	engine, err := matcher.NewMatchingEngine(s.svc.config.Matching, s.suggesterFor(ledger))
	if err != nil {
		return 0, err
	}

	results, err := engine.MatchAll(ctx, records, ledger)
	if err != nil {
		return 0, err
	}

	if err := s.dropUnknownSuggestions(ctx, records, results); err != nil {
		return 0, err
	}

	applied := 0
	for i, rec := range records {
		if staging.ApplyScore(rec, results[i]) {
			applied++
		}
	}
	return applied, nil
}

// dropUnknownSuggestions clears suggested categories the owner does not
// have. A suggester may return any id and staged rows reference categories.
func (s *Session) dropUnknownSuggestions(ctx context.Context, records []*models.StagedImportRecord, results []*matcher.MatchResult) error {
	suggested := false
	for _, result := range results {
		if result != nil && result.SuggestedCategoryID != nil {
			suggested = true
			break
		}
	}
	if !suggested {
		return nil
	}

	categories, err := s.svc.store.ListCategories(ctx, s.ownerID)
	if err != nil {
		return errors.StoreError("list categories", err)
	}
	known := make(map[string]bool, len(categories))
	for _, c := range categories {
		known[c.ID] = true
	}

	for i, result := range results {
		if result == nil || result.SuggestedCategoryID == nil || known[*result.SuggestedCategoryID] {
			continue
		}
		s.logger.WithField("category", *result.SuggestedCategoryID).WithField("record", records[i].ID).
			Warn("Suggested category does not exist; leaving record without a suggestion")
		result.SuggestedCategoryID = nil
	}
	return nil
}

func (s *Session) suggesterFor(ledger []*models.LedgerTransaction) matcher.CategorySuggester {
	if s.svc.suggester != nil {
		return s.svc.suggester
	}
	if !s.svc.config.Suggest.Enabled {
		return matcher.NoopSuggester{}
	}
	return suggest.NewHistorySuggester(ledger, s.svc.config.Suggest.MinSimilarity)
}
