package models

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionKind is the bank's classification of a statement row
type TransactionKind string

const (
	KindTopUp       TransactionKind = "TOPUP"
	KindCardPayment TransactionKind = "CARD_PAYMENT"
	KindTransfer    TransactionKind = "TRANSFER"
	KindFee         TransactionKind = "FEE"
	KindCharge      TransactionKind = "CHARGE"
	KindCashback    TransactionKind = "CASHBACK"
	KindPayment     TransactionKind = "PAYMENT"
	KindRefund      TransactionKind = "REFUND"
	KindTempBlock   TransactionKind = "TEMP_BLOCK"
	KindExchange    TransactionKind = "EXCHANGE"
)

// AllKinds lists every accepted transaction kind
var AllKinds = []TransactionKind{
	KindTopUp, KindCardPayment, KindTransfer, KindFee, KindCharge,
	KindCashback, KindPayment, KindRefund, KindTempBlock, KindExchange,
}

var kindAliases = map[string]TransactionKind{
	"TOP_UP":          KindTopUp,
	"TEMPORARY_BLOCK": KindTempBlock,
	"CARD":            KindCardPayment,
}

// String returns the string representation of TransactionKind
func (k TransactionKind) String() string {
	return string(k)
}

// IsValid checks if the kind is one of AllKinds
func (k TransactionKind) IsValid() bool {
	for _, known := range AllKinds {
		if k == known {
			return true
		}
	}
	return false
}

// TransactionState is the settlement state reported by the bank
type TransactionState string

const (
	StateCompleted TransactionState = "COMPLETED"
	StateReverted  TransactionState = "REVERTED"
	StatePending   TransactionState = "PENDING"
	StateDeclined  TransactionState = "DECLINED"
)

// AllStates lists every accepted transaction state
var AllStates = []TransactionState{StateCompleted, StateReverted, StatePending, StateDeclined}

// String returns the string representation of TransactionState
func (s TransactionState) String() string {
	return string(s)
}

// IsValid checks if the state is one of AllStates
func (s TransactionState) IsValid() bool {
	for _, known := range AllStates {
		if s == known {
			return true
		}
	}
	return false
}

func canonicalEnum(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(s)
}

// ParseKind normalizes s and validates it against AllKinds
func ParseKind(s string) (TransactionKind, error) {
	c := canonicalEnum(s)
	if alias, ok := kindAliases[c]; ok {
		return alias, nil
	}
	k := TransactionKind(c)
	if !k.IsValid() {
		return "", fmt.Errorf("unrecognized transaction type '%s'", s)
	}
	return k, nil
}

// ParseState normalizes s and validates it against AllStates
func ParseState(s string) (TransactionState, error) {
	st := TransactionState(canonicalEnum(s))
	if !st.IsValid() {
		return "", fmt.Errorf("unrecognized transaction state '%s'", s)
	}
	return st, nil
}

// BankTransactionRecord is one validated row of a bank statement
type BankTransactionRecord struct {
	Kind        TransactionKind  `json:"kind"`
	Product     string           `json:"product"`
	StartedAt   time.Time        `json:"startedAt"`
	CompletedAt *time.Time       `json:"completedAt,omitempty"`
	Description string           `json:"description"`
	Amount      decimal.Decimal  `json:"amount"`
	Fee         decimal.Decimal  `json:"fee"`
	Currency    string           `json:"currency"`
	State       TransactionState `json:"state"`
	Balance     decimal.Decimal  `json:"balance"`
}

// Validate performs basic validation on the record. A blank description
// is allowed; banks export some completed rows without one.
func (r *BankTransactionRecord) Validate() error {
	if !r.Kind.IsValid() {
		return fmt.Errorf("invalid transaction kind: %s", r.Kind)
	}
	if !r.State.IsValid() {
		return fmt.Errorf("invalid transaction state: %s", r.State)
	}
	if r.StartedAt.IsZero() {
		return fmt.Errorf("started date cannot be zero")
	}
	return nil
}

// OccurredAt is the timestamp used for matching: completion when known,
// otherwise the start time.
func (r *BankTransactionRecord) OccurredAt() time.Time {
	if r.CompletedAt != nil {
		return *r.CompletedAt
	}
	return r.StartedAt
}

// Direction derives income or expenditure from the amount sign
func (r *BankTransactionRecord) Direction() Direction {
	return DirectionOf(r.Amount)
}

// IsCompleted reports whether the record survives past parsing
func (r *BankTransactionRecord) IsCompleted() bool {
	return r.State == StateCompleted
}

// String returns a string representation of the record
func (r *BankTransactionRecord) String() string {
	return fmt.Sprintf("BankTransaction{%s %s %s %s %q}",
		r.OccurredAt().Format("2006-01-02"), r.Kind, r.Amount.String(), r.Currency, r.Description)
}

// Accepted statement timestamp layouts
const (
	ISOTimestampLayout = "2006-01-02 15:04:05"
	EUTimestampLayout  = "02/01/2006 15:04"
)

// ParseStatementTime accepts only the two statement layouts and never
// falls back to a default value.
func ParseStatementTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("time string cannot be empty")
	}
	for _, layout := range []string{ISOTimestampLayout, EUTimestampLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse time '%s': expected %q or %q", s, ISOTimestampLayout, EUTimestampLayout)
}

var nonNumeric = regexp.MustCompile(`[^0-9.+\-]`)

// ParseAmount strips everything except digits, sign and decimal point and
// parses the remainder.
func ParseAmount(s string) (decimal.Decimal, error) {
	cleaned := nonNumeric.ReplaceAllString(s, "")
	if cleaned == "" {
		return decimal.Zero, fmt.Errorf("amount '%s' contains no digits", s)
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal format '%s': %w", s, err)
	}
	return d, nil
}

// ParseOptionalAmount is ParseAmount but treats a blank value as zero
func ParseOptionalAmount(s string) (decimal.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		return decimal.Zero, nil
	}
	return ParseAmount(s)
}

// Cent is the amount tolerance used by duplicate detection and matching
var Cent = decimal.New(1, -2)

// AmountsWithinCent reports whether the magnitudes of a and b differ by less than 0.01
func AmountsWithinCent(a, b decimal.Decimal) bool {
	return a.Abs().Sub(b.Abs()).Abs().LessThan(Cent)
}

// DayDiff returns the absolute number of calendar days between a and b
func DayDiff(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	days := int(da.Sub(db).Hours() / 24)
	if days < 0 {
		days = -days
	}
	return days
}
