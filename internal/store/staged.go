package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"statement-reconciliation-service/internal/models"
)

const stagedColumns = `id, owner_id, kind, product, started_at, completed_at, description, amount, fee,
	currency, state, balance, matched_ledger_id, match_confidence, match_score, match_status,
	match_reasons, suggested_category_id, verification_note, reviewed, verified, created_at`

// StagedRepo reads and writes the staging batch. Records keep the order
// they were staged in through the position column.
type StagedRepo struct {
	db querier
}

// NewStagedRepo binds a StagedRepo to db or an open transaction
func NewStagedRepo(db querier) *StagedRepo {
	return &StagedRepo{db: db}
}

// List returns the owner's batch in staging order
func (r *StagedRepo) List(ctx context.Context, ownerID string) ([]*models.StagedImportRecord, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+stagedColumns+`
		FROM staged_records WHERE owner_id = ? ORDER BY position, id`, ownerID)
	if err != nil {
		return nil, errors.Wrap(err, "query staged records")
	}
	defer rows.Close()

	var out []*models.StagedImportRecord
	for rows.Next() {
		rec, err := scanStaged(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, errors.Wrap(rows.Err(), "iterate staged records")
}

// Get returns one staged record or ErrNotFound
func (r *StagedRepo) Get(ctx context.Context, ownerID, id string) (*models.StagedImportRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+stagedColumns+`
		FROM staged_records WHERE owner_id = ? AND id = ?`, ownerID, id)
	rec, err := scanStaged(row)
	if errors.Cause(err) == sql.ErrNoRows {
		return nil, errors.Wrapf(ErrNotFound, "staged record %s", id)
	}
	return rec, err
}

// Insert appends records after the owner's last staged position
func (r *StagedRepo) Insert(ctx context.Context, recs []*models.StagedImportRecord) error {
	if len(recs) == 0 {
		return nil
	}

	var next int64
	if err := r.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(position) + 1, 0)
		FROM staged_records WHERE owner_id = ?`, recs[0].OwnerID).Scan(&next); err != nil {
		return errors.Wrap(err, "next staged position")
	}

	for i, rec := range recs {
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = Now()
		}
		reasons, err := encodeReasons(rec.MatchReasons)
		if err != nil {
			return err
		}
		_, err = r.db.ExecContext(ctx, `INSERT INTO staged_records (position, `+stagedColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			next+int64(i), rec.ID, rec.OwnerID, string(rec.Kind), rec.Product,
			formatTime(rec.StartedAt), nullTime(rec.CompletedAt), rec.Description,
			rec.Amount, rec.Fee, rec.Currency, string(rec.State), rec.Balance,
			nullString(rec.MatchedLedgerID), string(rec.MatchConfidence), rec.MatchScore,
			string(rec.MatchStatus), reasons, nullString(rec.SuggestedCategoryID),
			nullString(rec.VerificationNote), rec.Reviewed, rec.Verified, formatTime(rec.CreatedAt))
		if err != nil {
			return errors.Wrapf(err, "insert staged record %s", rec.ID)
		}
	}
	return nil
}

// Update writes the reconciliation metadata of a record. The bank fields
// are immutable once staged.
func (r *StagedRepo) Update(ctx context.Context, rec *models.StagedImportRecord) error {
	reasons, err := encodeReasons(rec.MatchReasons)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `UPDATE staged_records SET
			matched_ledger_id = ?, match_confidence = ?, match_score = ?, match_status = ?,
			match_reasons = ?, suggested_category_id = ?, verification_note = ?,
			reviewed = ?, verified = ?
		WHERE owner_id = ? AND id = ?`,
		nullString(rec.MatchedLedgerID), string(rec.MatchConfidence), rec.MatchScore,
		string(rec.MatchStatus), reasons, nullString(rec.SuggestedCategoryID),
		nullString(rec.VerificationNote), rec.Reviewed, rec.Verified, rec.OwnerID, rec.ID)
	if err != nil {
		return errors.Wrapf(err, "update staged record %s", rec.ID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Wrapf(ErrNotFound, "staged record %s", rec.ID)
	}
	return nil
}

// Clear drops the owner's batch and returns how many rows were removed
func (r *StagedRepo) Clear(ctx context.Context, ownerID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM staged_records WHERE owner_id = ?`, ownerID)
	if err != nil {
		return 0, errors.Wrap(err, "clear staged records")
	}
	return res.RowsAffected()
}

// CountByStatus counts the owner's batch per match status
func (r *StagedRepo) CountByStatus(ctx context.Context, ownerID string) (map[models.MatchStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT match_status, COUNT(*)
		FROM staged_records WHERE owner_id = ? GROUP BY match_status`, ownerID)
	if err != nil {
		return nil, errors.Wrap(err, "count staged records")
	}
	defer rows.Close()

	counts := make(map[models.MatchStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, errors.Wrap(err, "scan staged count")
		}
		counts[models.MatchStatus(status)] = n
	}
	return counts, errors.Wrap(rows.Err(), "iterate staged counts")
}

// SeverLedgerReferences nulls every staged reference into the owner's
// ledger so the ledger rows can be deleted.
func (r *StagedRepo) SeverLedgerReferences(ctx context.Context, ownerID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE staged_records SET matched_ledger_id = NULL
		WHERE matched_ledger_id IN (SELECT id FROM ledger_transactions WHERE owner_id = ?)`, ownerID)
	if err != nil {
		return 0, errors.Wrap(err, "sever ledger references")
	}
	return res.RowsAffected()
}

func scanStaged(row scanner) (*models.StagedImportRecord, error) {
	var (
		rec                          models.StagedImportRecord
		kind, state, status, conf    string
		started, created, reasons    string
		completed, matched, category sql.NullString
		note                         sql.NullString
	)
	if err := row.Scan(&rec.ID, &rec.OwnerID, &kind, &rec.Product, &started, &completed,
		&rec.Description, &rec.Amount, &rec.Fee, &rec.Currency, &state, &rec.Balance,
		&matched, &conf, &rec.MatchScore, &status, &reasons, &category, &note,
		&rec.Reviewed, &rec.Verified, &created); err != nil {
		return nil, errors.Wrap(err, "scan staged record")
	}

	var err error
	if rec.StartedAt, err = parseTime(started); err != nil {
		return nil, err
	}
	if rec.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if completed.Valid {
		t, err := parseTime(completed.String)
		if err != nil {
			return nil, err
		}
		rec.CompletedAt = &t
	}
	if err := json.Unmarshal([]byte(reasons), &rec.MatchReasons); err != nil {
		return nil, errors.Wrapf(err, "decode match reasons of %s", rec.ID)
	}
	if rec.MatchReasons == nil {
		rec.MatchReasons = []string{}
	}

	rec.Kind = models.TransactionKind(kind)
	rec.State = models.TransactionState(state)
	rec.MatchStatus = models.MatchStatus(status)
	rec.MatchConfidence = models.Confidence(conf)
	rec.MatchedLedgerID = stringPtr(matched)
	rec.SuggestedCategoryID = stringPtr(category)
	rec.VerificationNote = stringPtr(note)
	return &rec, nil
}

func encodeReasons(reasons []string) (string, error) {
	if reasons == nil {
		reasons = []string{}
	}
	b, err := json.Marshal(reasons)
	if err != nil {
		return "", errors.Wrap(err, "encode match reasons")
	}
	return string(b), nil
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}
