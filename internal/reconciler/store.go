package reconciler

import (
	"context"

	pkgerrors "github.com/pkg/errors"

	"statement-reconciliation-service/internal/models"
	"statement-reconciliation-service/internal/store"
)

// LedgerStore reads and writes committed ledger transactions
type LedgerStore interface {
	ListLedger(ctx context.Context, ownerID string) ([]*models.LedgerTransaction, error)
	CountLedger(ctx context.Context, ownerID string) (int, error)
	GetLedger(ctx context.Context, ownerID, id string) (*models.LedgerTransaction, error)
	InsertLedger(ctx context.Context, tx *models.LedgerTransaction) error
	UpdateLedgerCategory(ctx context.Context, id string, categoryID *string) error
}

// StagingStore holds the batch awaiting review
type StagingStore interface {
	ListStaged(ctx context.Context, ownerID string) ([]*models.StagedImportRecord, error)
	GetStaged(ctx context.Context, ownerID, id string) (*models.StagedImportRecord, error)
	InsertStaged(ctx context.Context, recs []*models.StagedImportRecord) error
	UpdateStaged(ctx context.Context, rec *models.StagedImportRecord) error
	ReplaceStaged(ctx context.Context, ownerID string, recs []*models.StagedImportRecord) (int64, error)
	ClearStaged(ctx context.Context, ownerID string) (int64, error)
	CountStagedByStatus(ctx context.Context, ownerID string) (map[models.MatchStatus]int, error)
}

// CategoryStore holds the owner's categories
type CategoryStore interface {
	ListCategories(ctx context.Context, ownerID string) ([]*models.Category, error)
	CategoryNames(ctx context.Context, ownerID string) (map[string]string, error)
	EnsureCategory(ctx context.Context, ownerID, name string, typ models.CategoryType) (*models.Category, bool, error)
}

// TxRunner runs the destructive part of a commit atomically
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx store.Tx) error) error
}

// Store is everything the workflow needs from persistence.
// *store.SQLiteStore implements it.
type Store interface {
	LedgerStore
	StagingStore
	CategoryStore
	TxRunner
}

var _ Store = (*store.SQLiteStore)(nil)

func isNotFound(err error) bool {
	return pkgerrors.Cause(err) == store.ErrNotFound
}
