package staging

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"statement-reconciliation-service/internal/matcher"
	"statement-reconciliation-service/internal/models"
	"statement-reconciliation-service/pkg/errors"
)

func newRecord(status models.MatchStatus) *models.StagedImportRecord {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := models.NewStagedImportRecord("rec-1", "owner-1", models.BankTransactionRecord{
		Kind:        models.KindCardPayment,
		StartedAt:   at,
		Description: "Acme Ltd",
		Amount:      decimal.RequireFromString("-12.34"),
		State:       models.StateCompleted,
	}, at)
	rec.MatchStatus = status
	return rec
}

func matchResult(score float64, status models.MatchStatus, ledgerID string) *matcher.MatchResult {
	result := &matcher.MatchResult{
		Score:   score,
		Status:  status,
		Reasons: []string{"Exact amount match"},
	}
	if ledgerID != "" {
		result.Ledger = &models.LedgerTransaction{ID: ledgerID}
		result.Confidence = models.ConfidenceHigh
	}
	return result
}

func TestApplyScore(t *testing.T) {
	category := "cat-1"

	t.Run("unreviewed record takes the fresh score", func(t *testing.T) {
		rec := newRecord(models.StatusPotential)
		result := matchResult(0.95, models.StatusMatched, "ledger-1")
		result.SuggestedCategoryID = &category

		if !ApplyScore(rec, result) {
			t.Fatal("Expected score to be applied")
		}
		if rec.MatchStatus != models.StatusMatched || rec.MatchScore != 0.95 {
			t.Errorf("Unexpected status/score %s/%f", rec.MatchStatus, rec.MatchScore)
		}
		if models.Deref(rec.MatchedLedgerID) != "ledger-1" || models.Deref(rec.SuggestedCategoryID) != category {
			t.Errorf("Expected ledger and category to be copied, got %v %v", rec.MatchedLedgerID, rec.SuggestedCategoryID)
		}

		result.Reasons[0] = "mutated"
		if rec.MatchReasons[0] != "Exact amount match" {
			t.Error("Expected reasons to be copied, not aliased")
		}
	})

	t.Run("rescoring to zero clears the match", func(t *testing.T) {
		rec := newRecord(models.StatusMatched)
		id := "ledger-1"
		rec.MatchedLedgerID = &id
		rec.SuggestedCategoryID = &category

		ApplyScore(rec, &matcher.MatchResult{Status: models.StatusUnmatched})
		if rec.MatchedLedgerID != nil || rec.SuggestedCategoryID != nil {
			t.Error("Expected match and category to be cleared")
		}
		if rec.MatchStatus != models.StatusUnmatched {
			t.Errorf("Expected unmatched, got %s", rec.MatchStatus)
		}
	})

	for _, status := range []models.MatchStatus{models.StatusReviewed, models.StatusVerified} {
		t.Run("human decision kept for "+string(status), func(t *testing.T) {
			rec := newRecord(status)
			if ApplyScore(rec, matchResult(0.1, models.StatusPotential, "")) {
				t.Error("Expected score to be ignored")
			}
			if rec.MatchStatus != status {
				t.Errorf("Expected status %s to be kept, got %s", status, rec.MatchStatus)
			}
		})
	}
}

func TestCheckTransition(t *testing.T) {
	tests := []struct {
		from    models.MatchStatus
		to      models.MatchStatus
		wantErr bool
	}{
		{models.StatusUnmatched, models.StatusReviewed, false},
		{models.StatusPotential, models.StatusVerified, false},
		{models.StatusMatched, models.StatusVerified, false},
		{models.StatusMatched, models.StatusReviewed, false},
		{models.StatusReviewed, models.StatusVerified, false},
		{models.StatusReviewed, models.StatusReviewed, false},
		{models.StatusVerified, models.StatusVerified, false},
		{models.StatusVerified, models.StatusReviewed, true},
		{models.StatusReviewed, models.StatusPotential, true},
		{models.StatusPotential, models.StatusMatched, true},
		{models.StatusMatched, models.StatusUnmatched, true},
		{models.StatusUnmatched, models.MatchStatus("approved"), true},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			err := CheckTransition("rec-1", tt.from, tt.to)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CheckTransition() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.HasCode(err, errors.CodeInvalidTransition) {
				t.Errorf("Expected invalid_transition, got %v", err)
			}
		})
	}
}

func TestReview_Verify(t *testing.T) {
	rec := newRecord(models.StatusMatched)
	id := "ledger-1"
	rec.MatchedLedgerID = &id

	if err := Review(rec, models.StatusVerified, "", "Acme Ltd Payment"); err != nil {
		t.Fatalf("Review failed: %v", err)
	}
	if !rec.Verified || !rec.Reviewed {
		t.Error("Expected verified and reviewed flags")
	}
	if got := models.Deref(rec.VerificationNote); got != `Verified against ledger entry: "Acme Ltd Payment"` {
		t.Errorf("Unexpected note %q", got)
	}

	if err := Review(rec, models.StatusVerified, "again", "Other"); err != nil {
		t.Fatalf("Expected repeat verify to be a no-op, got %v", err)
	}
	if got := models.Deref(rec.VerificationNote); got != `Verified against ledger entry: "Acme Ltd Payment"` {
		t.Errorf("Expected note to be unchanged, got %q", got)
	}

	if err := Review(rec, models.StatusReviewed, "", ""); err == nil {
		t.Error("Expected verified record to reject a move to reviewed")
	}
}

func TestReview_VerifyWithNote(t *testing.T) {
	rec := newRecord(models.StatusReviewed)
	rec.Reviewed = true
	id := "ledger-1"
	rec.MatchedLedgerID = &id

	if err := Review(rec, models.StatusVerified, "invoice 42", "Acme Ltd Payment"); err != nil {
		t.Fatalf("Review failed: %v", err)
	}
	want := `invoice 42; Verified against ledger entry: "Acme Ltd Payment"`
	if got := models.Deref(rec.VerificationNote); got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestReview_VerifyWithoutMatch(t *testing.T) {
	rec := newRecord(models.StatusUnmatched)

	err := Review(rec, models.StatusVerified, "", "")
	if !errors.HasCode(err, errors.CodeInvalidTransition) {
		t.Fatalf("Expected invalid_transition, got %v", err)
	}
	if rec.MatchStatus != models.StatusUnmatched || rec.Verified {
		t.Error("Expected record to be unchanged")
	}
}

func TestReview_Reviewed(t *testing.T) {
	rec := newRecord(models.StatusPotential)

	if err := Review(rec, models.StatusReviewed, "not this one", ""); err != nil {
		t.Fatalf("Review failed: %v", err)
	}
	if rec.MatchStatus != models.StatusReviewed || !rec.Reviewed || rec.Verified {
		t.Errorf("Unexpected state %s reviewed=%v verified=%v", rec.MatchStatus, rec.Reviewed, rec.Verified)
	}
	if rec.VerificationNote != nil {
		t.Error("Expected no verification note for a reviewed record")
	}
}
