package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the flow of money for a ledger transaction
type Direction string

const (
	DirectionIncome      Direction = "income"
	DirectionExpenditure Direction = "expenditure"
)

// IsValid checks if the direction is known
func (d Direction) IsValid() bool {
	return d == DirectionIncome || d == DirectionExpenditure
}

// DirectionOf maps a signed amount to a direction. Negative amounts are
// expenditure, everything else is income.
func DirectionOf(amount decimal.Decimal) Direction {
	if amount.IsNegative() {
		return DirectionExpenditure
	}
	return DirectionIncome
}

// ParseDirection accepts direction names and common bank shorthands
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "income", "in", "credit", "cr", "c":
		return DirectionIncome, nil
	case "expenditure", "expense", "out", "debit", "dr", "d":
		return DirectionExpenditure, nil
	default:
		return "", fmt.Errorf("invalid direction '%s': must be income or expenditure", s)
	}
}

var (
	outflowKinds = map[TransactionKind]bool{
		KindCardPayment: true,
		KindFee:         true,
		KindCharge:      true,
		KindTempBlock:   true,
	}
	inflowKinds = map[TransactionKind]bool{
		KindTopUp:    true,
		KindCashback: true,
		KindRefund:   true,
	}
)

// NormalizeSign makes the amount sign agree with kinds whose direction is
// fixed. Transfers, payments and exchanges keep the sign the bank exported.
func NormalizeSign(kind TransactionKind, amount decimal.Decimal) decimal.Decimal {
	switch {
	case outflowKinds[kind] && amount.IsPositive():
		return amount.Neg()
	case inflowKinds[kind] && amount.IsNegative():
		return amount.Neg()
	default:
		return amount
	}
}

// LedgerTransaction is a permanent, user-visible transaction
type LedgerTransaction struct {
	ID            string          `json:"id"`
	OwnerID       string          `json:"ownerId"`
	Description   string          `json:"description"`
	Amount        decimal.Decimal `json:"amount"`
	Direction     Direction       `json:"direction"`
	OccurredOn    time.Time       `json:"occurredOn"`
	CategoryID    *string         `json:"categoryId,omitempty"`
	BankReference *string         `json:"bankReference,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// Validate performs basic validation on the ledger transaction
func (t *LedgerTransaction) Validate() error {
	if strings.TrimSpace(t.OwnerID) == "" {
		return fmt.Errorf("ledger transaction owner cannot be empty")
	}
	if t.Amount.IsNegative() {
		return fmt.Errorf("ledger amount must be an unsigned magnitude, got %s", t.Amount.String())
	}
	if !t.Direction.IsValid() {
		return fmt.Errorf("invalid direction: %s", t.Direction)
	}
	if t.OccurredOn.IsZero() {
		return fmt.Errorf("ledger date cannot be zero")
	}
	return nil
}

// SignedAmount returns the amount with the direction applied as a sign
func (t *LedgerTransaction) SignedAmount() decimal.Decimal {
	if t.Direction == DirectionExpenditure {
		return t.Amount.Neg()
	}
	return t.Amount
}

// MarshalJSON renders the ledger date without a time component
func (t LedgerTransaction) MarshalJSON() ([]byte, error) {
	type Alias LedgerTransaction
	return json.Marshal(&struct {
		OccurredOn string `json:"occurredOn"`
		Alias
	}{
		OccurredOn: t.OccurredOn.Format("2006-01-02"),
		Alias:      Alias(t),
	})
}

// CategoryType classifies a category
type CategoryType string

const (
	CategoryIncome      CategoryType = "income"
	CategoryExpenditure CategoryType = "expenditure"
	CategoryCapital     CategoryType = "capital"
)

// Category is referenced by ledger and staged rows but owned elsewhere
type Category struct {
	ID      string       `json:"id"`
	OwnerID string       `json:"ownerId"`
	Name    string       `json:"name"`
	Type    CategoryType `json:"type"`
	Color   string       `json:"color,omitempty"`
}

// CategoryTypeFor picks the default category type for a direction
func CategoryTypeFor(d Direction) CategoryType {
	if d == DirectionIncome {
		return CategoryIncome
	}
	return CategoryExpenditure
}
