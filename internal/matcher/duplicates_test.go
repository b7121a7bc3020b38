package matcher

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"statement-reconciliation-service/internal/models"
)

func TestNormalizeDescription(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"  Acme   LTD ", "acme ltd"},
		{"Tesco\tStores\n123", "tesco stores 123"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := NormalizeDescription(tt.input); got != tt.want {
			t.Errorf("NormalizeDescription(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestJaccard(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"Acme Ltd", "acme ltd", 1},
		{"Acme Ltd", "Acme Ltd Payment", 2.0 / 3.0},
		{"Acme, Ltd.", "ACME LTD", 1},
		{"Coffee", "Tea", 0},
		{"", "Tea", 0},
		{"!!!", "???", 0},
	}

	for _, tt := range tests {
		got := Jaccard(tt.a, tt.b)
		if got < tt.want-1e-9 || got > tt.want+1e-9 {
			t.Errorf("Jaccard(%q, %q) = %f, want %f", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestWordOverlap(t *testing.T) {
	tests := []struct {
		name      string
		candidate string
		existing  string
		want      float64
	}{
		{"all candidate words present", "amazon marketplace", "amazon marketplace uk order", 1},
		{"short words ignored", "to amazon", "amazon", 1},
		{"partial", "netflix monthly subscription", "netflix subscription", 2.0 / 3.0},
		{"only short words", "to an", "to an", 0},
		{"case and spacing normalized", "  NETFLIX   Subscription", "netflix subscription", 1},
		{"punctuation kept", "acme, ltd.", "acme ltd", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := WordOverlap(tt.candidate, tt.existing, 2)
			if got < tt.want-1e-9 || got > tt.want+1e-9 {
				t.Errorf("Expected %f, got %f", tt.want, got)
			}
		})
	}
}

func TestIsSignificantSubstring(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"tesco stores", "tesco stores 1", true},
		{"tesco", "tesco stores 1234", false},
		{"stores", "tesco", false},
		{"", "tesco", false},
		{"abcd", "abcd", true},
	}

	for _, tt := range tests {
		if got := IsSignificantSubstring(tt.a, tt.b, 0.8); got != tt.want {
			t.Errorf("IsSignificantSubstring(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func newTestDetector(t *testing.T) *DuplicateDetector {
	t.Helper()
	dd, err := NewDuplicateDetector(nil)
	if err != nil {
		t.Fatalf("NewDuplicateDetector failed: %v", err)
	}
	return dd
}

func bankRecord(desc, amount string, y int, m time.Month, d int) models.BankTransactionRecord {
	return stagedRecord("", desc, amount, day(y, m, d)).BankTransactionRecord
}

func TestDuplicateDetector_Config(t *testing.T) {
	if _, err := NewDuplicateDetector(&DedupConfig{DateWindowDays: -1, SubstringRatio: 0.8, WordSimilarity: 0.7}); err == nil {
		t.Error("Expected error for negative window")
	}
	if _, err := NewDuplicateDetector(&DedupConfig{DateWindowDays: 1, SubstringRatio: 0, WordSimilarity: 0.7}); err == nil {
		t.Error("Expected error for zero substring ratio")
	}
}

func TestIsBatchDuplicate(t *testing.T) {
	dd := newTestDetector(t)
	base := bankRecord("Acme Ltd", "-12.34", 2024, 3, 1)

	tests := []struct {
		name      string
		candidate models.BankTransactionRecord
		want      bool
	}{
		{"identical", bankRecord("Acme Ltd", "-12.34", 2024, 3, 1), true},
		{"next day", bankRecord("Acme Ltd", "-12.34", 2024, 3, 2), true},
		{"two days", bankRecord("Acme Ltd", "-12.34", 2024, 3, 3), false},
		{"description case differs", bankRecord("ACME LTD", "-12.34", 2024, 3, 1), false},
		{"amount a cent off", bankRecord("Acme Ltd", "-12.35", 2024, 3, 1), false},
		{"opposite sign", bankRecord("Acme Ltd", "12.34", 2024, 3, 1), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := dd.IsBatchDuplicate(&tt.candidate, &base); got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestIsLedgerDuplicate(t *testing.T) {
	dd := newTestDetector(t)
	ref := "CARD PAYMENT TO NETFLIX.COM"
	ledgerRow := ledgerTx("l1", "Netflix subscription", "9.99", models.DirectionExpenditure, day(2024, 3, 1))
	withRef := ledgerTx("l2", "Streaming", "9.99", models.DirectionExpenditure, day(2024, 3, 1))
	withRef.BankReference = &ref

	tests := []struct {
		name      string
		candidate models.BankTransactionRecord
		tx        *models.LedgerTransaction
		want      bool
	}{
		{"normalized exact", bankRecord("  NETFLIX   Subscription", "-9.99", 2024, 3, 1), ledgerRow, true},
		{"significant substring", bankRecord("Netflix subscriptio", "-9.99", 2024, 3, 1), ledgerRow, true},
		{"word overlap", bankRecord("Subscription Netflix", "-9.99", 2024, 3, 2), ledgerRow, true},
		{"different words", bankRecord("Spotify Premium", "-9.99", 2024, 3, 1), ledgerRow, false},
		{"wrong direction", bankRecord("Netflix subscription", "9.99", 2024, 3, 1), ledgerRow, false},
		{"amount off", bankRecord("Netflix subscription", "-10.99", 2024, 3, 1), ledgerRow, false},
		{"too far apart", bankRecord("Netflix subscription", "-9.99", 2024, 3, 3), ledgerRow, false},
		{"bank reference", bankRecord("Card payment to Netflix.com", "-9.99", 2024, 3, 1), withRef, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := dd.IsLedgerDuplicate(&tt.candidate, tt.tx); got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestFilter(t *testing.T) {
	dd := newTestDetector(t)

	staged := []*models.StagedImportRecord{stagedRecord("s1", "Coffee", "-3.50", day(2024, 3, 1))}
	ledger := NewLedgerIndex([]*models.LedgerTransaction{
		ledgerTx("l1", "Rent", "900", models.DirectionExpenditure, day(2024, 3, 1)),
	})

	candidates := []models.BankTransactionRecord{
		bankRecord("Coffee", "-3.50", 2024, 3, 1),
		bankRecord("Rent", "-900", 2024, 3, 1),
		bankRecord("Lunch", "-8.00", 2024, 3, 1),
		bankRecord("Lunch", "-8.00", 2024, 3, 1),
		bankRecord("Salary", "1500", 2024, 3, 1),
	}

	result := dd.Filter(candidates, staged, ledger)

	if len(result.Kept) != 2 {
		t.Fatalf("Expected 2 kept, got %d", len(result.Kept))
	}
	if result.Kept[0].Description != "Lunch" || result.Kept[1].Description != "Salary" {
		t.Errorf("Unexpected kept records: %v", result.Kept)
	}
	if result.SkippedBatch != 2 || result.SkippedLedger != 1 {
		t.Errorf("Expected 2 batch and 1 ledger skips, got %d and %d", result.SkippedBatch, result.SkippedLedger)
	}
	if result.Summary() != "skipped 3 duplicates" {
		t.Errorf("Unexpected summary %q", result.Summary())
	}
	if result.AllDuplicates() {
		t.Error("Expected AllDuplicates to be false")
	}
	if result.Duplicates[1].LedgerID != "l1" {
		t.Errorf("Expected ledger duplicate to reference l1, got %+v", result.Duplicates[1])
	}
}

func TestFilter_AllDuplicates(t *testing.T) {
	dd := newTestDetector(t)
	first := dd.Filter([]models.BankTransactionRecord{bankRecord("Acme Ltd", "-12.34", 2024, 3, 1)}, nil, nil)
	if len(first.Kept) != 1 || first.Summary() != "" {
		t.Fatalf("Expected first import to keep the record, got %+v", first)
	}

	staged := []*models.StagedImportRecord{models.NewStagedImportRecord("s1", "owner-1", first.Kept[0], day(2024, 3, 1))}
	second := dd.Filter([]models.BankTransactionRecord{bankRecord("Acme Ltd", "-12.34", 2024, 3, 1)}, staged, nil)

	if !second.AllDuplicates() {
		t.Error("Expected every record to be a duplicate")
	}
	if second.Summary() != "skipped 1 duplicate" {
		t.Errorf("Unexpected summary %q", second.Summary())
	}

	empty := dd.Filter(nil, nil, nil)
	if empty.AllDuplicates() {
		t.Error("Expected an empty input not to be reported as all duplicates")
	}
}

func TestLedgerIndex(t *testing.T) {
	ledger := []*models.LedgerTransaction{
		ledgerTx("a", "A", "10.00", models.DirectionExpenditure, day(2024, 3, 1)),
		ledgerTx("b", "B", "10.005", models.DirectionIncome, day(2024, 3, 2)),
		ledgerTx("c", "C", "10.02", models.DirectionExpenditure, day(2024, 3, 5)),
		ledgerTx("d", "D", "25.00", models.DirectionExpenditure, day(2024, 3, 1)),
	}
	index := NewLedgerIndex(ledger)

	near := index.GetNearAmount(decimal.RequireFromString("-10.00"))
	if ids := txIDs(near); ids != "a,b" {
		t.Errorf("Expected near rows a,b, got %s", ids)
	}

	if ids := txIDs(index.GetNearAmount(decimal.RequireFromString("10.03"))); ids != "c" {
		t.Errorf("Expected near row c, got %s", ids)
	}
	if near := index.GetNearAmount(decimal.RequireFromString("99")); len(near) != 0 {
		t.Errorf("Expected no rows near 99, got %s", txIDs(near))
	}
	if index.Len() != 4 {
		t.Errorf("Expected 4 indexed rows, got %d", index.Len())
	}
}

func txIDs(txs []*models.LedgerTransaction) string {
	ids := ""
	for i, tx := range txs {
		if i > 0 {
			ids += ","
		}
		ids += tx.ID
	}
	return ids
}
