package matcher

import (
	"sort"

	"github.com/shopspring/decimal"

	"statement-reconciliation-service/internal/models"
)

// LedgerIndex buckets an owner's ledger by magnitude in cents for duplicate
// detection. Lookups return rows in their original order.
type LedgerIndex struct {
	// CentIndex maps the magnitude in whole cents to ledger positions
	CentIndex map[int64][]int

	// AllTransactions holds all indexed ledger rows
	AllTransactions []*models.LedgerTransaction
}

// NewLedgerIndex creates an index from a slice of ledger transactions
func NewLedgerIndex(ledger []*models.LedgerTransaction) *LedgerIndex {
	index := &LedgerIndex{
		CentIndex:       make(map[int64][]int),
		AllTransactions: ledger,
	}
	for pos, tx := range ledger {
		key := centKey(tx.Amount)
		index.CentIndex[key] = append(index.CentIndex[key], pos)
	}
	return index
}

// centKey is the magnitude truncated to whole cents. Two magnitudes less
// than a cent apart land in the same or an adjacent key.
func centKey(amount decimal.Decimal) int64 {
	return amount.Abs().Shift(2).Floor().IntPart()
}

// GetNearAmount returns rows whose magnitude is within a cent of amount's
// magnitude, plus the neighbours that share a cent key. Callers apply the
// exact tolerance themselves.
func (li *LedgerIndex) GetNearAmount(amount decimal.Decimal) []*models.LedgerTransaction {
	key := centKey(amount)
	var positions []int
	for k := key - 1; k <= key+1; k++ {
		positions = append(positions, li.CentIndex[k]...)
	}

	sort.Ints(positions)
	result := make([]*models.LedgerTransaction, 0, len(positions))
	for _, p := range positions {
		result = append(result, li.AllTransactions[p])
	}
	return result
}

// Len returns the number of indexed rows
func (li *LedgerIndex) Len() int {
	return len(li.AllTransactions)
}
