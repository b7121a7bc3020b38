package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"statement-reconciliation-service/internal/models"
)

const ledgerColumns = `id, owner_id, description, amount, direction, occurred_on, category_id, bank_reference, created_at`

// LedgerRepo reads and writes ledger_transactions
type LedgerRepo struct {
	db querier
}

// NewLedgerRepo binds a LedgerRepo to db or an open transaction
func NewLedgerRepo(db querier) *LedgerRepo {
	return &LedgerRepo{db: db}
}

// List returns the owner's ledger ordered by date
func (r *LedgerRepo) List(ctx context.Context, ownerID string) ([]*models.LedgerTransaction, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+ledgerColumns+`
		FROM ledger_transactions
		WHERE owner_id = ?
		ORDER BY occurred_on, created_at, id`, ownerID)
	if err != nil {
		return nil, errors.Wrap(err, "query ledger")
	}
	defer rows.Close()

	var out []*models.LedgerTransaction
	for rows.Next() {
		tx, err := scanLedger(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, errors.Wrap(rows.Err(), "iterate ledger")
}

// Count returns the number of ledger rows the owner has
func (r *LedgerRepo) Count(ctx context.Context, ownerID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ledger_transactions WHERE owner_id = ?`, ownerID).Scan(&n)
	return n, errors.Wrap(err, "count ledger")
}

// Get returns one ledger row. ErrNotFound is returned when the row is
// missing or belongs to another owner.
func (r *LedgerRepo) Get(ctx context.Context, ownerID, id string) (*models.LedgerTransaction, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+ledgerColumns+`
		FROM ledger_transactions WHERE owner_id = ? AND id = ?`, ownerID, id)
	tx, err := scanLedger(row)
	if errors.Cause(err) == sql.ErrNoRows {
		return nil, errors.Wrapf(ErrNotFound, "ledger transaction %s", id)
	}
	return tx, err
}

// Insert adds one ledger transaction
func (r *LedgerRepo) Insert(ctx context.Context, tx *models.LedgerTransaction) error {
	if err := tx.Validate(); err != nil {
		return errors.Wrap(err, "invalid ledger transaction")
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = Now()
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO ledger_transactions (`+ledgerColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.OwnerID, tx.Description, tx.Amount, string(tx.Direction),
		tx.OccurredOn.Format(dateLayout), nullString(tx.CategoryID), nullString(tx.BankReference),
		formatTime(tx.CreatedAt))
	return errors.Wrapf(err, "insert ledger transaction %s", tx.ID)
}

// UpdateCategory sets or clears a row's category
func (r *LedgerRepo) UpdateCategory(ctx context.Context, id string, categoryID *string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE ledger_transactions SET category_id = ? WHERE id = ?`,
		nullString(categoryID), id)
	if err != nil {
		return errors.Wrapf(err, "update category of %s", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Wrapf(ErrNotFound, "ledger transaction %s", id)
	}
	return nil
}

// DeleteByOwner removes the owner's whole ledger. Staged references must
// be severed first or the foreign key rejects the delete.
func (r *LedgerRepo) DeleteByOwner(ctx context.Context, ownerID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM ledger_transactions WHERE owner_id = ?`, ownerID)
	if err != nil {
		return 0, errors.Wrap(err, "delete ledger")
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanLedger(row scanner) (*models.LedgerTransaction, error) {
	var (
		tx                models.LedgerTransaction
		occurred, created string
		category, bankRef sql.NullString
		direction         string
	)
	if err := row.Scan(&tx.ID, &tx.OwnerID, &tx.Description, &tx.Amount, &direction,
		&occurred, &category, &bankRef, &created); err != nil {
		return nil, errors.Wrap(err, "scan ledger transaction")
	}

	on, err := time.Parse(dateLayout, occurred)
	if err != nil {
		return nil, errors.Wrapf(err, "parse ledger date %q", occurred)
	}
	at, err := parseTime(created)
	if err != nil {
		return nil, err
	}

	tx.Direction = models.Direction(direction)
	tx.OccurredOn = on
	tx.CreatedAt = at
	tx.CategoryID = stringPtr(category)
	tx.BankReference = stringPtr(bankRef)
	return &tx, nil
}
