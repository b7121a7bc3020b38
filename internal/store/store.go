package store

import (
	"context"

	"statement-reconciliation-service/internal/models"
)

// ListLedger returns the owner's ledger
func (s *SQLiteStore) ListLedger(ctx context.Context, ownerID string) ([]*models.LedgerTransaction, error) {
	return s.Ledger.List(ctx, ownerID)
}

// CountLedger counts the owner's ledger rows
func (s *SQLiteStore) CountLedger(ctx context.Context, ownerID string) (int, error) {
	return s.Ledger.Count(ctx, ownerID)
}

// GetLedger returns one ledger row or ErrNotFound
func (s *SQLiteStore) GetLedger(ctx context.Context, ownerID, id string) (*models.LedgerTransaction, error) {
	return s.Ledger.Get(ctx, ownerID, id)
}

// InsertLedger appends one ledger row
func (s *SQLiteStore) InsertLedger(ctx context.Context, tx *models.LedgerTransaction) error {
	return s.Ledger.Insert(ctx, tx)
}

// UpdateLedgerCategory sets or clears a ledger row's category
func (s *SQLiteStore) UpdateLedgerCategory(ctx context.Context, id string, categoryID *string) error {
	return s.Ledger.UpdateCategory(ctx, id, categoryID)
}

// ListStaged returns the owner's batch in staging order
func (s *SQLiteStore) ListStaged(ctx context.Context, ownerID string) ([]*models.StagedImportRecord, error) {
	return s.Staged.List(ctx, ownerID)
}

// GetStaged returns one staged record or ErrNotFound
func (s *SQLiteStore) GetStaged(ctx context.Context, ownerID, id string) (*models.StagedImportRecord, error) {
	return s.Staged.Get(ctx, ownerID, id)
}

// InsertStaged stages a batch atomically
func (s *SQLiteStore) InsertStaged(ctx context.Context, recs []*models.StagedImportRecord) error {
	return s.inTx(ctx, func(q querier) error {
		return NewStagedRepo(q).Insert(ctx, recs)
	})
}

// ReplaceStaged swaps the owner's batch for recs in one transaction and
// returns how many records were removed
func (s *SQLiteStore) ReplaceStaged(ctx context.Context, ownerID string, recs []*models.StagedImportRecord) (int64, error) {
	var cleared int64
	err := s.inTx(ctx, func(q querier) error {
		repo := NewStagedRepo(q)
		n, err := repo.Clear(ctx, ownerID)
		if err != nil {
			return err
		}
		cleared = n
		return repo.Insert(ctx, recs)
	})
	if err != nil {
		return 0, err
	}
	return cleared, nil
}

// UpdateStaged saves a scored or reviewed record
func (s *SQLiteStore) UpdateStaged(ctx context.Context, rec *models.StagedImportRecord) error {
	return s.Staged.Update(ctx, rec)
}

// ClearStaged drops the owner's batch
func (s *SQLiteStore) ClearStaged(ctx context.Context, ownerID string) (int64, error) {
	return s.Staged.Clear(ctx, ownerID)
}

// CountStagedByStatus counts the owner's batch per match status
func (s *SQLiteStore) CountStagedByStatus(ctx context.Context, ownerID string) (map[models.MatchStatus]int, error) {
	return s.Staged.CountByStatus(ctx, ownerID)
}

// ListCategories returns the owner's categories ordered by name
func (s *SQLiteStore) ListCategories(ctx context.Context, ownerID string) ([]*models.Category, error) {
	return s.Categories.List(ctx, ownerID)
}

// CategoryNames maps category id to name
func (s *SQLiteStore) CategoryNames(ctx context.Context, ownerID string) (map[string]string, error) {
	return s.Categories.Names(ctx, ownerID)
}

// EnsureCategory returns the named category, creating it when missing
func (s *SQLiteStore) EnsureCategory(ctx context.Context, ownerID, name string, typ models.CategoryType) (*models.Category, bool, error) {
	return s.Categories.Ensure(ctx, ownerID, name, typ)
}
