package reconciler

import (
	"context"
	"time"

	"statement-reconciliation-service/internal/models"
	"statement-reconciliation-service/internal/store"
	"statement-reconciliation-service/pkg/errors"
)

// LoadLedgerResult reports a ledger seed
type LoadLedgerResult struct {
	File              string                       `json:"file"`
	Loaded            int                          `json:"loaded"`
	CategoriesCreated int                          `json:"categoriesCreated"`
	RowErrors         []*errors.EnhancedParseError `json:"rowErrors,omitempty"`
}

// LoadLedger appends the rows of a ledger CSV to the owner's ledger.
// Category names are resolved to the first category of that name and
// created when missing. Rows are inserted in one transaction.
func (s *Session) LoadLedger(ctx context.Context, path string) (*LoadLedgerResult, error) {
	unlock, err := s.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	parsed, err := s.svc.ledgerParser.ParseFile(ctx, path)
	if err != nil {
		return nil, err
	}

	result := &LoadLedgerResult{File: path, RowErrors: parsed.RowErrors.GetErrors()}
	categoryIDs := make(map[string]string)
	now := s.svc.now()

	rows := make([]*models.LedgerTransaction, 0, len(parsed.Rows))
	for _, row := range parsed.Rows {
		tx := row.Transaction
		tx.ID = s.svc.newID()
		tx.OwnerID = s.ownerID
		tx.CreatedAt = now
		y, m, d := tx.OccurredOn.Date()
		tx.OccurredOn = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

		if name := row.CategoryName; name != "" {
			id, ok := categoryIDs[name]
			if !ok {
				cat, created, err := s.svc.store.EnsureCategory(ctx, s.ownerID, name, models.CategoryTypeFor(tx.Direction))
				if err != nil {
					return nil, errors.StoreError("ensure category", err)
				}
				if created {
					result.CategoriesCreated++
				}
				id = cat.ID
				categoryIDs[name] = id
			}
			tx.CategoryID = &id
		}
		rows = append(rows, &tx)
	}

	err = s.svc.store.WithTx(ctx, func(stx store.Tx) error {
		for _, tx := range rows {
			if err := stx.InsertLedger(ctx, tx); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.StoreError("insert ledger", err)
	}
	result.Loaded = len(rows)

	s.logger.WithField("file", path).
		WithField("loaded", result.Loaded).
		WithField("categories_created", result.CategoriesCreated).
		Info("Ledger loaded")
	return result, nil
}
