package parsers

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"statement-reconciliation-service/internal/models"
)

// ParseStats aggregates what a statement parse observed. State counts
// cover every valid row; kind counts, totals and the time range cover only
// the completed rows that were retained.
type ParseStats struct {
	TotalLines       int                             `json:"totalLines"`
	RowsRead         int                             `json:"rowsRead"`
	RowsValid        int                             `json:"rowsValid"`
	RowsRetained     int                             `json:"rowsRetained"`
	RowsErrored      int                             `json:"rowsErrored"`
	ByState          map[models.TransactionState]int `json:"byState"`
	ByKind           map[models.TransactionKind]int  `json:"byKind"`
	TotalIncome      decimal.Decimal                 `json:"totalIncome"`
	TotalExpenditure decimal.Decimal                 `json:"totalExpenditure"`
	EarliestAt       *time.Time                      `json:"earliestAt,omitempty"`
	LatestAt         *time.Time                      `json:"latestAt,omitempty"`
}

// NewParseStats creates a new ParseStats instance
func NewParseStats() *ParseStats {
	return &ParseStats{
		ByState:          make(map[models.TransactionState]int),
		ByKind:           make(map[models.TransactionKind]int),
		TotalIncome:      decimal.Zero,
		TotalExpenditure: decimal.Zero,
	}
}

// observeValid counts a row that passed validation
func (ps *ParseStats) observeValid(rec *models.BankTransactionRecord) {
	ps.RowsValid++
	ps.ByState[rec.State]++
}

// observeRetained folds a completed record into totals and the time range
func (ps *ParseStats) observeRetained(rec *models.BankTransactionRecord) {
	ps.RowsRetained++
	ps.ByKind[rec.Kind]++

	if rec.Amount.IsNegative() {
		ps.TotalExpenditure = ps.TotalExpenditure.Add(rec.Amount.Abs())
	} else {
		ps.TotalIncome = ps.TotalIncome.Add(rec.Amount)
	}

	at := rec.OccurredAt()
	if ps.EarliestAt == nil || at.Before(*ps.EarliestAt) {
		t := at
		ps.EarliestAt = &t
	}
	if ps.LatestAt == nil || at.After(*ps.LatestAt) {
		t := at
		ps.LatestAt = &t
	}
}

// Net returns income minus expenditure over retained rows
func (ps *ParseStats) Net() decimal.Decimal {
	return ps.TotalIncome.Sub(ps.TotalExpenditure)
}

// String returns a human-readable summary of parsing statistics
func (ps *ParseStats) String() string {
	return fmt.Sprintf("Read %d rows: %d valid, %d completed, %d errors",
		ps.RowsRead, ps.RowsValid, ps.RowsRetained, ps.RowsErrored)
}
