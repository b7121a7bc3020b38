package reporter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"statement-reconciliation-service/internal/models"
	"statement-reconciliation-service/internal/parsers"
	"statement-reconciliation-service/internal/reconciler"
	"statement-reconciliation-service/pkg/errors"
)

func TestNewReportGenerator(t *testing.T) {
	tests := []struct {
		name        string
		config      *ReportConfig
		expectError bool
	}{
		{
			name:        "default config",
			config:      nil,
			expectError: false,
		},
		{
			name:        "valid config",
			config:      DefaultReportConfig(),
			expectError: false,
		},
		{
			name:        "invalid format",
			config:      &ReportConfig{Format: "invalid", CSVDelimiter: ','},
			expectError: true,
		},
		{
			name:        "negative max rows",
			config:      &ReportConfig{Format: FormatConsole, CSVDelimiter: ',', MaxRows: -1},
			expectError: true,
		},
		{
			name:        "quote delimiter",
			config:      &ReportConfig{Format: FormatCSV, CSVDelimiter: '"'},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			generator, err := NewReportGenerator(tt.config)

			if tt.expectError {
				if err == nil {
					t.Errorf("expected error but got none")
				}
			} else {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				if generator == nil {
					t.Errorf("expected generator but got nil")
				}
			}
		})
	}
}

func TestOutputFormatValidation(t *testing.T) {
	tests := []struct {
		format OutputFormat
		valid  bool
	}{
		{FormatConsole, true},
		{FormatJSON, true},
		{FormatCSV, true},
		{"invalid", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			if got := tt.format.IsValid(); got != tt.valid {
				t.Errorf("IsValid() = %v, want %v", got, tt.valid)
			}
		})
	}
}

func newGenerator(t *testing.T, format OutputFormat) *ReportGenerator {
	t.Helper()
	config := DefaultReportConfig()
	config.Format = format
	config.UseColors = false
	rg, err := NewReportGenerator(config)
	if err != nil {
		t.Fatalf("NewReportGenerator: %v", err)
	}
	return rg
}

func stagedRecord(id, desc, amount string, status models.MatchStatus) *models.StagedImportRecord {
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	rec := models.NewStagedImportRecord(id, "owner-1", models.BankTransactionRecord{
		Kind:        models.KindCardPayment,
		Product:     "Current",
		StartedAt:   at,
		CompletedAt: &at,
		Description: desc,
		Amount:      decimal.RequireFromString(amount),
		Currency:    "GBP",
		State:       models.StateCompleted,
	}, at)
	rec.MatchStatus = status
	return rec
}

func testImportResult() *reconciler.ImportResult {
	office := stagedRecord("rec-1", "OFFICE DEPOT", "-45.00", models.StatusPotential)
	office.MatchConfidence = models.ConfidenceMedium
	office.MatchScore = 0.783
	office.MatchedLedgerID = models.StringPtr("ledger-1")
	office.MatchReasons = []string{"Exact amount match", "Date within 2 days"}

	stats := parsers.NewParseStats()
	stats.RowsRead = 3
	stats.RowsValid = 2
	stats.RowsRetained = 2
	stats.RowsErrored = 1
	stats.TotalIncome = decimal.RequireFromString("500")
	stats.TotalExpenditure = decimal.RequireFromString("45")

	return &reconciler.ImportResult{
		File:    "statement.csv",
		Stats:   stats,
		Staged:  []*models.StagedImportRecord{office, stagedRecord("rec-2", "Top up, card", "500.00", models.StatusUnmatched)},
		Skipped: 1,
		RowErrors: []*errors.EnhancedParseError{
			errors.NewEnhancedParseError(errors.CodeInvalidAmount, &errors.ParseContext{File: "statement.csv", Line: 4, Column: "Amount", Value: "abc"}, "invalid amount", nil),
		},
		Breakdown: map[models.MatchStatus]int{models.StatusPotential: 1, models.StatusUnmatched: 1},
		Duration:  120 * time.Millisecond,
	}
}

func TestWriteImport_Console(t *testing.T) {
	var buf bytes.Buffer
	if err := newGenerator(t, FormatConsole).WriteImport(testImportResult(), &buf); err != nil {
		t.Fatalf("WriteImport: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"IMPORT: statement.csv",
		"skipped 1 duplicate",
		"1 row could not be parsed",
		"Net:         455.00",
		"OFFICE DEPOT",
		"potential",
		"MEDIUM",
		"=== ROW ERRORS (1) ===",
		"ERROR: invalid amount",
		"→ Line: 4",
		"unmatched: 1 (50.0%)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("console output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Error("expected no escape sequences with colors disabled")
	}
}

func TestWriteImport_AllDuplicates(t *testing.T) {
	result := &reconciler.ImportResult{File: "statement.csv", Skipped: 2, SkippedBatch: 2, AllDuplicates: true}

	var buf bytes.Buffer
	if err := newGenerator(t, FormatConsole).WriteImport(result, &buf); err != nil {
		t.Fatalf("WriteImport: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "all duplicates, nothing imported") {
		t.Errorf("expected no-op message, got:\n%s", out)
	}
	if strings.Contains(out, "STAGED RECORDS") {
		t.Error("expected no staged table for a no-op import")
	}
}

func TestWriteImport_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := newGenerator(t, FormatJSON).WriteImport(testImportResult(), &buf); err != nil {
		t.Fatalf("WriteImport: %v", err)
	}

	var decoded struct {
		File   string `json:"file"`
		Staged []struct {
			ID              string   `json:"id"`
			MatchStatus     string   `json:"matchStatus"`
			MatchedLedgerID string   `json:"matchedLedgerId"`
			MatchReasons    []string `json:"matchReasons"`
		} `json:"staged"`
		Skipped   int            `json:"skipped"`
		Breakdown map[string]int `json:"breakdown"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, buf.String())
	}

	if decoded.File != "statement.csv" || decoded.Skipped != 1 {
		t.Errorf("unexpected header fields: %+v", decoded)
	}
	if len(decoded.Staged) != 2 || decoded.Staged[0].MatchedLedgerID != "ledger-1" {
		t.Fatalf("unexpected staged records: %+v", decoded.Staged)
	}
	if decoded.Breakdown["potential"] != 1 {
		t.Errorf("unexpected breakdown %v", decoded.Breakdown)
	}
}

func TestWriteStaged_CSV(t *testing.T) {
	records := testImportResult().Staged

	var buf bytes.Buffer
	if err := newGenerator(t, FormatCSV).WriteStaged(records, &buf); err != nil {
		t.Fatalf("WriteStaged: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("invalid CSV: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(rows))
	}
	if len(rows[0]) != len(stagedCSVHeaders) {
		t.Errorf("expected %d columns, got %d", len(stagedCSVHeaders), len(rows[0]))
	}

	first := rows[1]
	if first[0] != "rec-1" || first[5] != "-45.00" || first[9] != "potential" || first[12] != "ledger-1" {
		t.Errorf("unexpected first row %v", first)
	}
	if first[14] != "Exact amount match; Date within 2 days" {
		t.Errorf("unexpected reasons %q", first[14])
	}
	if rows[2][4] != "Top up, card" {
		t.Errorf("expected quoted description to round trip, got %q", rows[2][4])
	}
}

func TestWriteStaged_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := newGenerator(t, FormatJSON).WriteStaged(nil, &buf); err != nil {
		t.Fatalf("WriteStaged: %v", err)
	}
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Errorf("expected empty JSON array, got %q", buf.String())
	}

	buf.Reset()
	if err := newGenerator(t, FormatConsole).WriteStaged(nil, &buf); err != nil {
		t.Fatalf("WriteStaged: %v", err)
	}
	if !strings.Contains(buf.String(), "Nothing staged.") {
		t.Errorf("unexpected console output %q", buf.String())
	}
}

func TestWriteStaged_MaxRows(t *testing.T) {
	config := DefaultReportConfig()
	config.UseColors = false
	config.MaxRows = 1
	rg, err := NewReportGenerator(config)
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := rg.WriteStaged(testImportResult().Staged, &buf); err != nil {
		t.Fatalf("WriteStaged: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "... and 1 more") {
		t.Errorf("expected truncation notice:\n%s", out)
	}
	if strings.Contains(out, "rec-2") {
		t.Error("expected second record to be cut")
	}
}

func TestWriteCommit(t *testing.T) {
	summary := &reconciler.CommitSummary{
		Committed:            4,
		Deleted:              3,
		VerifiedWithCategory: 1,
		NeedsCategorization:  2,
		Warnings:             []string{"clear-staging: database is locked"},
		Duration:             time.Second,
	}

	tests := []struct {
		format OutputFormat
		want   []string
	}{
		{FormatConsole, []string{"COMMIT COMPLETE", "Ledger rows deleted:     3", "Needs categorization:    2 (50.0%)", "clear-staging: database is locked"}},
		{FormatJSON, []string{`"committed": 4`, `"deleted": 3`, `"warnings": [`}},
		{FormatCSV, []string{"Metric,Value", "committed,4", "warning,clear-staging: database is locked"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			var buf bytes.Buffer
			if err := newGenerator(t, tt.format).WriteCommit(summary, &buf); err != nil {
				t.Fatalf("WriteCommit: %v", err)
			}
			for _, want := range tt.want {
				if !strings.Contains(buf.String(), want) {
					t.Errorf("output missing %q:\n%s", want, buf.String())
				}
			}
		})
	}
}

func TestWritePreviewAndRescore(t *testing.T) {
	preview := &reconciler.CommitPreview{
		ToDelete:  5,
		Staged:    2,
		Breakdown: map[models.MatchStatus]int{models.StatusVerified: 2},
	}
	rescore := &reconciler.RescoreResult{
		Total:     3,
		Rescored:  2,
		Decided:   1,
		Breakdown: map[models.MatchStatus]int{models.StatusMatched: 2, models.StatusReviewed: 1},
	}

	var buf bytes.Buffer
	rg := newGenerator(t, FormatCSV)
	if err := rg.WritePreview(preview, &buf); err != nil {
		t.Fatalf("WritePreview: %v", err)
	}
	for _, want := range []string{"to_delete,5", "staged,2", "status_verified,2", "status_unmatched,0"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("preview CSV missing %q:\n%s", want, buf.String())
		}
	}

	buf.Reset()
	if err := newGenerator(t, FormatConsole).WriteRescore(rescore, &buf); err != nil {
		t.Fatalf("WriteRescore: %v", err)
	}
	for _, want := range []string{"Rescored: 2", "Decided:  1 (kept)", "matched:   2"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("rescore output missing %q:\n%s", want, buf.String())
		}
	}

	buf.Reset()
	if err := newGenerator(t, FormatConsole).WritePreview(&reconciler.CommitPreview{}, &buf); err != nil {
		t.Fatalf("WritePreview: %v", err)
	}
	if !strings.Contains(buf.String(), "nothing staged") {
		t.Errorf("expected empty staging warning, got:\n%s", buf.String())
	}
}

func TestWriteNilResults(t *testing.T) {
	rg := newGenerator(t, FormatJSON)
	var buf bytes.Buffer

	if err := rg.WriteImport(nil, &buf); err == nil {
		t.Error("expected error for nil import result")
	}
	if err := rg.WriteCommit(nil, &buf); err == nil {
		t.Error("expected error for nil commit summary")
	}
	if err := rg.WriteRecord(nil, &buf); err == nil {
		t.Error("expected error for nil record")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in    string
		width int
		want  string
	}{
		{"short", 10, "short"},
		{"exactly ten", 11, "exactly ten"},
		{"a much longer description", 10, "a much ..."},
		{"café au lait", 8, "café ..."},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.width); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.width, got, tt.want)
		}
	}
}
