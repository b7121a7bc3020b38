package reconciler

import (
	"context"

	"statement-reconciliation-service/internal/models"
	"statement-reconciliation-service/internal/staging"
	"statement-reconciliation-service/pkg/errors"
	"statement-reconciliation-service/pkg/logger"
)

// GetStagedRecords returns the owner's staging batch in import order
func (s *Session) GetStagedRecords(ctx context.Context) ([]*models.StagedImportRecord, error) {
	if err := s.checkOwner(); err != nil {
		return nil, err
	}
	records, err := s.svc.store.ListStaged(ctx, s.ownerID)
	if err != nil {
		return nil, errors.StoreError("list staged records", err)
	}
	if records == nil {
		records = []*models.StagedImportRecord{}
	}
	return records, nil
}

// UpdateRecordStatus applies a reviewer decision to one staged record.
// Verifying records the matched ledger entry's description in the
// verification note.
func (s *Session) UpdateRecordStatus(ctx context.Context, id string, status models.MatchStatus, note string) (*models.StagedImportRecord, error) {
	unlock, err := s.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	rec, err := s.svc.store.GetStaged(ctx, s.ownerID, id)
	if isNotFound(err) {
		return nil, errors.ReviewError(errors.CodeRecordNotFound, id, "", string(status))
	}
	if err != nil {
		return nil, errors.StoreError("load staged record", err)
	}

	var matchedDescription string
	if status == models.StatusVerified && rec.MatchedLedgerID != nil && rec.MatchStatus != models.StatusVerified {
		matched, err := s.svc.store.GetLedger(ctx, s.ownerID, *rec.MatchedLedgerID)
		if err != nil {
			return nil, errors.StoreError("load matched ledger entry", err)
		}
		matchedDescription = matched.Description
	}

	from := rec.MatchStatus
	if err := staging.Review(rec, status, note, matchedDescription); err != nil {
		return nil, err
	}
	if from == rec.MatchStatus {
		return rec, nil
	}

	if err := s.svc.store.UpdateStaged(ctx, rec); err != nil {
		return nil, errors.StoreError("update staged record", err)
	}

	s.logger.WithFields(logger.Fields{
		"record": id,
		"from":   from,
		"to":     rec.MatchStatus,
	}).Info("Record reviewed")
	return rec, nil
}

// RescoreResult reports what a rescore changed
type RescoreResult struct {
	Total     int                        `json:"total"`
	Rescored  int                        `json:"rescored"`
	Decided   int                        `json:"decided"`
	Breakdown map[models.MatchStatus]int `json:"breakdown"`
}

// RescoreStaged re-runs matching for the batch against the current ledger.
// Reviewed and verified records keep their decision.
func (s *Session) RescoreStaged(ctx context.Context) (*RescoreResult, error) {
	unlock, err := s.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	records, err := s.svc.store.ListStaged(ctx, s.ownerID)
	if err != nil {
		return nil, errors.StoreError("list staged records", err)
	}
	ledger, err := s.svc.store.ListLedger(ctx, s.ownerID)
	if err != nil {
		return nil, errors.StoreError("list ledger", err)
	}

	var open []*models.StagedImportRecord
	for _, rec := range records {
		if !rec.Reviewed && !rec.Verified && !rec.MatchStatus.IsHumanDecision() {
			open = append(open, rec)
		}
	}

	applied, err := s.score(ctx, open, ledger)
	if err != nil {
		return nil, err
	}
	for _, rec := range open {
		if err := s.svc.store.UpdateStaged(ctx, rec); err != nil {
			return nil, errors.StoreError("update staged record", err)
		}
	}

	result := &RescoreResult{
		Total:     len(records),
		Rescored:  applied,
		Decided:   len(records) - len(open),
		Breakdown: make(map[models.MatchStatus]int),
	}
	for _, rec := range records {
		result.Breakdown[rec.MatchStatus]++
	}

	s.logger.WithField("rescored", applied).WithField("decided", result.Decided).Info("Staging batch rescored")
	return result, nil
}

// ClearStaging drops the owner's whole staging batch
func (s *Session) ClearStaging(ctx context.Context) error {
	unlock, err := s.lock()
	if err != nil {
		return err
	}
	defer unlock()

	n, err := s.svc.store.ClearStaged(ctx, s.ownerID)
	if err != nil {
		return errors.StoreError("clear staging", err)
	}
	s.logger.WithField("cleared", n).Info("Staging cleared")
	return nil
}
