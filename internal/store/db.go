// Package store is the SQLite persistence layer for ledger transactions,
// staged import records and categories.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"statement-reconciliation-service/internal/models"
	"statement-reconciliation-service/pkg/logger"
)

// timeLayout is used for every timestamp column
const timeLayout = time.RFC3339Nano

// dateLayout is used for ledger dates
const dateLayout = "2006-01-02"

// ErrNotFound is returned when a row does not exist for the owner
var ErrNotFound = errors.New("not found")

// Open opens sqlite with foreign keys enforced and a busy timeout.
func Open(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	db.SetMaxOpenConns(1) // sqlite
	db.SetConnMaxLifetime(0)
	return db, nil
}

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// SQLiteStore bundles the repositories over one database handle
type SQLiteStore struct {
	db         *sql.DB
	Ledger     *LedgerRepo
	Staged     *StagedRepo
	Categories *CategoryRepo
	logger     logger.Logger
}

// New wraps an open database. Migrations are not applied.
func New(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{
		db:         db,
		Ledger:     NewLedgerRepo(db),
		Staged:     NewStagedRepo(db),
		Categories: NewCategoryRepo(db),
		logger:     logger.GetGlobalLogger().WithComponent("store"),
	}
}

// OpenStore opens the database at path and applies all migrations
func OpenStore(path string) (*SQLiteStore, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	if err := RunMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	s := New(db)
	s.logger.WithField("path", path).Debug("Opened store")
	return s, nil
}

// DB returns the underlying handle
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Tx is the write surface available inside a commit transaction
type Tx interface {
	SeverLedgerReferences(ctx context.Context, ownerID string) (int64, error)
	DeleteLedger(ctx context.Context, ownerID string) (int64, error)
	InsertLedger(ctx context.Context, tx *models.LedgerTransaction) error
}

type sqlTx struct {
	ledger *LedgerRepo
	staged *StagedRepo
}

func (t *sqlTx) SeverLedgerReferences(ctx context.Context, ownerID string) (int64, error) {
	return t.staged.SeverLedgerReferences(ctx, ownerID)
}

func (t *sqlTx) DeleteLedger(ctx context.Context, ownerID string) (int64, error) {
	return t.ledger.DeleteByOwner(ctx, ownerID)
}

func (t *sqlTx) InsertLedger(ctx context.Context, tx *models.LedgerTransaction) error {
	return t.ledger.Insert(ctx, tx)
}

// WithTx runs fn in a transaction. The transaction is rolled back when fn
// returns an error or panics.
func (s *SQLiteStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	return s.inTx(ctx, func(q querier) error {
		return fn(&sqlTx{ledger: NewLedgerRepo(q), staged: NewStagedRepo(q)})
	})
}

func (s *SQLiteStore) inTx(ctx context.Context, fn func(q querier) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.WithError(rbErr).Error("Rollback failed")
		}
		return err
	}
	return errors.Wrap(tx.Commit(), "commit transaction")
}

// Now returns UTC time truncated to milliseconds
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "parse timestamp %q", s)
	}
	return t, nil
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
