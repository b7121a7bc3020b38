package reconciler

import (
	"context"
	"fmt"
	"time"

	"statement-reconciliation-service/internal/models"
	"statement-reconciliation-service/internal/store"
	"statement-reconciliation-service/pkg/errors"
	"statement-reconciliation-service/pkg/logger"
)

// Commit step names, in execution order
const (
	StepSnapshot          = "snapshot"
	StepLoadCategories    = "load-categories"
	StepSeverReferences   = "sever-references"
	StepDeleteLedger      = "delete-ledger"
	StepBuildRows         = "build-rows"
	StepInsertRows        = "insert-rows"
	StepRestoreCategories = "restore-categories"
	StepClearStaging      = "clear-staging"
)

// CommitSummary reports the outcome of a successful commit
type CommitSummary struct {
	Committed            int           `json:"committed"`
	Deleted              int64         `json:"deleted"`
	VerifiedWithCategory int           `json:"verifiedWithCategory"`
	NeedsCategorization  int           `json:"needsCategorization"`
	Warnings             []string      `json:"warnings,omitempty"`
	Duration             time.Duration `json:"duration"`
}

// CommitPreview is the read-only view of what a commit would do
type CommitPreview struct {
	ToDelete  int                        `json:"toDelete"`
	Staged    int                        `json:"staged"`
	Breakdown map[models.MatchStatus]int `json:"breakdown"`
}

// matchedEntry is what a verified record keeps from the ledger row it was
// verified against, captured before that row is deleted
type matchedEntry struct {
	description  string
	categoryName string
}

type commitState struct {
	staged     []*models.StagedImportRecord
	matched    map[string]matchedEntry
	categories []*models.Category
	rows       []*models.LedgerTransaction
	summary    *CommitSummary
}

type commitStep struct {
	name  string
	fatal bool
	inTx  bool
	run   func(ctx context.Context, st *commitState, tx store.Tx) error
}

func (s *Session) commitSteps() []commitStep {
	return []commitStep{
		{name: StepSnapshot, fatal: true, run: s.snapshot},
		{name: StepLoadCategories, run: s.loadCategories},
		{name: StepSeverReferences, fatal: true, inTx: true, run: s.severReferences},
		{name: StepDeleteLedger, fatal: true, inTx: true, run: s.deleteLedger},
		{name: StepBuildRows, fatal: true, inTx: true, run: s.buildRows},
		{name: StepInsertRows, fatal: true, inTx: true, run: s.insertRows},
		{name: StepRestoreCategories, run: s.restoreCategories},
		{name: StepClearStaging, run: s.clearStaging},
	}
}

// CommitImport replaces the owner's ledger with the staged batch.
//
// The ledger delete and insert run in one transaction: a fatal step rolls
// everything back, keeps the staging batch and returns commit_step_failed
// naming the step. Category restoration and staging cleanup are soft;
// their failures are logged and reported as warnings.
func (s *Session) CommitImport(ctx context.Context) (*CommitSummary, error) {
	unlock, err := s.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	start := time.Now()
	op := logger.NewOperationLogger("commit", s.logger.WithComponent("commit"))
	state := &commitState{summary: &CommitSummary{}}

	steps := s.commitSteps()
	for i := 0; i < len(steps); {
		if !steps[i].inTx {
			if err := s.runStep(ctx, op, state, steps[i], nil); err != nil {
				op.Error(err, "Commit aborted")
				return nil, errors.CommitStepError(steps[i].name, len(state.staged), err)
			}
			if steps[i].name == StepSnapshot && len(state.staged) == 0 {
				return nil, errors.ReconciliationError(errors.CodeEmptyStaging, "commit", nil)
			}
			i++
			continue
		}

		j := i
		for j < len(steps) && steps[j].inTx {
			j++
		}
		group := steps[i:j]

		// nothing past this point is cancellable
		ctx = context.WithoutCancel(ctx)

		failed := group[len(group)-1].name
		err := s.svc.store.WithTx(ctx, func(tx store.Tx) error {
			for _, step := range group {
				if err := s.runStep(ctx, op, state, step, tx); err != nil {
					failed = step.name
					return err
				}
			}
			return nil
		})
		if err != nil {
			op.Error(err, "Commit rolled back")
			return nil, errors.CommitStepError(failed, len(state.staged), err)
		}
		i = j
	}

	summary := state.summary
	summary.Committed = len(state.rows)
	for _, row := range state.rows {
		if row.CategoryID == nil {
			summary.NeedsCategorization++
		}
	}
	summary.Duration = time.Since(start)

	op.WithField("committed", summary.Committed).
		WithField("deleted", summary.Deleted).
		WithField("warnings", len(summary.Warnings)).
		Success("Commit completed")
	return summary, nil
}

// runStep runs one step. A soft failure is turned into a warning.
func (s *Session) runStep(ctx context.Context, op *logger.OperationLogger, st *commitState, step commitStep, tx store.Tx) error {
	began := time.Now()
	if err := step.run(ctx, st, tx); err != nil {
		op.StepFailed(step.name, step.fatal, err)
		if step.fatal {
			return err
		}
		st.summary.Warnings = append(st.summary.Warnings, fmt.Sprintf("%s: %v", step.name, err))
		return nil
	}
	op.Step(step.name, time.Since(began))
	return nil
}

func (s *Session) snapshot(ctx context.Context, st *commitState, _ store.Tx) error {
	staged, err := s.svc.store.ListStaged(ctx, s.ownerID)
	if err != nil {
		return err
	}
	st.staged = staged
	st.matched = make(map[string]matchedEntry)

	var needsLedger bool
	for _, rec := range staged {
		if rec.Verified && rec.MatchedLedgerID != nil {
			needsLedger = true
			break
		}
	}
	if !needsLedger {
		return nil
	}

	ledger, err := s.svc.store.ListLedger(ctx, s.ownerID)
	if err != nil {
		return err
	}
	names, err := s.svc.store.CategoryNames(ctx, s.ownerID)
	if err != nil {
		return err
	}
	byID := make(map[string]*models.LedgerTransaction, len(ledger))
	for _, tx := range ledger {
		byID[tx.ID] = tx
	}

	for _, rec := range staged {
		if !rec.Verified || rec.MatchedLedgerID == nil {
			continue
		}
		tx, ok := byID[*rec.MatchedLedgerID]
		if !ok {
			return fmt.Errorf("verified record %s references missing ledger entry %s", rec.ID, *rec.MatchedLedgerID)
		}
		entry := matchedEntry{description: tx.Description}
		if tx.CategoryID != nil {
			entry.categoryName = names[*tx.CategoryID]
		}
		st.matched[rec.ID] = entry
	}
	return nil
}

func (s *Session) loadCategories(ctx context.Context, st *commitState, _ store.Tx) error {
	categories, err := s.svc.store.ListCategories(ctx, s.ownerID)
	if err != nil {
		return err
	}
	if categories == nil {
		categories = []*models.Category{}
	}
	st.categories = categories
	return nil
}

func (s *Session) severReferences(ctx context.Context, _ *commitState, tx store.Tx) error {
	_, err := tx.SeverLedgerReferences(ctx, s.ownerID)
	return err
}

func (s *Session) deleteLedger(ctx context.Context, st *commitState, tx store.Tx) error {
	n, err := tx.DeleteLedger(ctx, s.ownerID)
	if err != nil {
		return err
	}
	st.summary.Deleted = n
	return nil
}

func (s *Session) buildRows(_ context.Context, st *commitState, _ store.Tx) error {
	known := make(map[string]bool, len(st.categories))
	for _, c := range st.categories {
		known[c.ID] = true
	}

	now := s.svc.now()
	st.rows = make([]*models.LedgerTransaction, 0, len(st.staged))
	for _, rec := range st.staged {
		row, err := s.ledgerRow(rec, st.matched, now)
		if err != nil {
			return err
		}
		if row.CategoryID != nil && st.categories != nil && !known[*row.CategoryID] {
			s.logger.WithField("category", *row.CategoryID).WithField("record", rec.ID).
				Warn("Suggested category no longer exists; leaving row uncategorized")
			row.CategoryID = nil
		}
		st.rows = append(st.rows, row)
	}
	return nil
}

// ledgerRow converts a staged record into its permanent ledger row
func (s *Session) ledgerRow(rec *models.StagedImportRecord, matched map[string]matchedEntry, now time.Time) (*models.LedgerTransaction, error) {
	description := rec.Description
	if entry, ok := matched[rec.ID]; ok {
		description = entry.description
		if note := models.Deref(rec.VerificationNote); note != "" {
			description = fmt.Sprintf("%s (%s)", entry.description, note)
		}
	}

	y, m, d := rec.OccurredAt().Date()
	ref := rec.Description
	row := &models.LedgerTransaction{
		ID:            s.svc.newID(),
		OwnerID:       s.ownerID,
		Description:   description,
		Amount:        rec.Amount.Abs(),
		Direction:     models.DirectionOf(rec.Amount),
		OccurredOn:    time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
		BankReference: &ref,
		CreatedAt:     now,
	}
	if rec.SuggestedCategoryID != nil {
		id := *rec.SuggestedCategoryID
		row.CategoryID = &id
	}
	if err := row.Validate(); err != nil {
		return nil, fmt.Errorf("record %s: %w", rec.ID, err)
	}
	return row, nil
}

func (s *Session) insertRows(ctx context.Context, st *commitState, tx store.Tx) error {
	for _, row := range st.rows {
		if err := tx.InsertLedger(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) restoreCategories(ctx context.Context, st *commitState, _ store.Tx) error {
	if st.categories == nil {
		return fmt.Errorf("categories unavailable, %d verified rows not restored", len(st.matched))
	}

	var failures []error
	for i, rec := range st.staged {
		entry, ok := st.matched[rec.ID]
		if !ok || entry.categoryName == "" {
			continue
		}
		cat := s.categoryByName(st.categories, entry.categoryName)
		if cat == nil {
			s.logger.WithField("category", entry.categoryName).Debug("Category no longer exists; not restored")
			continue
		}

		row := st.rows[i]
		id := cat.ID
		if err := s.svc.store.UpdateLedgerCategory(ctx, row.ID, &id); err != nil {
			failures = append(failures, err)
			continue
		}
		row.CategoryID = &id
		st.summary.VerifiedWithCategory++
	}

	if len(failures) > 0 {
		return fmt.Errorf("%d category restorations failed, first: %w", len(failures), failures[0])
	}
	return nil
}

// categoryByName returns the first category called name. categories is
// ordered by name then id.
func (s *Session) categoryByName(categories []*models.Category, name string) *models.Category {
	var first *models.Category
	dupes := 0
	for _, c := range categories {
		if c.Name != name {
			continue
		}
		if first == nil {
			first = c
		} else {
			dupes++
		}
	}
	if dupes > 0 {
		s.logger.WithField("category", name).WithField("duplicates", dupes).
			Warn("Several categories share a name; using the first")
	}
	return first
}

func (s *Session) clearStaging(ctx context.Context, _ *commitState, _ store.Tx) error {
	_, err := s.svc.store.ClearStaged(ctx, s.ownerID)
	return err
}

// PreviewCommit reports what CommitImport would do without changing anything
func (s *Session) PreviewCommit(ctx context.Context) (*CommitPreview, error) {
	if err := s.checkOwner(); err != nil {
		return nil, err
	}

	toDelete, err := s.svc.store.CountLedger(ctx, s.ownerID)
	if err != nil {
		return nil, errors.StoreError("count ledger", err)
	}
	breakdown, err := s.svc.store.CountStagedByStatus(ctx, s.ownerID)
	if err != nil {
		return nil, errors.StoreError("count staged records", err)
	}

	preview := &CommitPreview{ToDelete: toDelete, Breakdown: breakdown}
	for _, n := range breakdown {
		preview.Staged += n
	}
	return preview, nil
}
