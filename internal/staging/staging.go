// Package staging holds the review state machine for staged import records.
//
// Automated scoring moves a record from unmatched to potential or matched.
// A reviewer then moves it to reviewed or verified. Human decisions are
// final for the session: scoring never overwrites them and a verified
// record never moves again.
package staging

import (
	"fmt"

	"statement-reconciliation-service/internal/matcher"
	"statement-reconciliation-service/internal/models"
	"statement-reconciliation-service/pkg/errors"
)

// ApplyScore copies a match result onto rec. It returns false and leaves
// rec untouched when a reviewer has already decided the record.
func ApplyScore(rec *models.StagedImportRecord, result *matcher.MatchResult) bool {
	if rec.Reviewed || rec.Verified || rec.MatchStatus.IsHumanDecision() {
		return false
	}

	rec.MatchedLedgerID = result.LedgerID()
	rec.MatchScore = result.Score
	rec.MatchConfidence = result.Confidence
	rec.MatchStatus = result.Status
	rec.MatchReasons = append([]string{}, result.Reasons...)
	rec.SuggestedCategoryID = nil
	if result.SuggestedCategoryID != nil {
		id := *result.SuggestedCategoryID
		rec.SuggestedCategoryID = &id
	}
	return true
}

// CheckTransition validates a reviewer moving a record from one status to
// another. Moving to the current terminal status is allowed and is a no-op.
func CheckTransition(recordID string, from, to models.MatchStatus) error {
	if !to.IsValid() {
		return errors.ReviewError(errors.CodeInvalidTransition, recordID, string(from), string(to)).
			WithSuggestion("use reviewed or verified")
	}
	if !to.IsHumanDecision() {
		return errors.ReviewError(errors.CodeInvalidTransition, recordID, string(from), string(to)).
			WithSuggestion("only scoring sets unmatched, potential or matched; use rescore instead")
	}

	switch from {
	case models.StatusVerified:
		if to != models.StatusVerified {
			return errors.ReviewError(errors.CodeInvalidTransition, recordID, string(from), string(to)).
				WithSuggestion("verified records are final for this session")
		}
	case models.StatusUnmatched, models.StatusPotential, models.StatusMatched, models.StatusReviewed:
	default:
		return errors.ReviewError(errors.CodeInvalidTransition, recordID, string(from), string(to))
	}
	return nil
}

// Review applies a reviewer decision. Verifying needs a matched ledger row;
// matchedDescription is that row's original description and is recorded in
// the verification note.
func Review(rec *models.StagedImportRecord, to models.MatchStatus, note, matchedDescription string) error {
	if err := CheckTransition(rec.ID, rec.MatchStatus, to); err != nil {
		return err
	}
	if rec.MatchStatus == to {
		return nil
	}

	switch to {
	case models.StatusReviewed:
		rec.MatchStatus = models.StatusReviewed
		rec.Reviewed = true

	case models.StatusVerified:
		if rec.MatchedLedgerID == nil {
			return errors.ReviewError(errors.CodeInvalidTransition, rec.ID, string(rec.MatchStatus), string(to)).
				WithSuggestion("only a record with a matched ledger entry can be verified")
		}
		text := VerificationNote(note, matchedDescription)
		rec.MatchStatus = models.StatusVerified
		rec.Reviewed = true
		rec.Verified = true
		rec.VerificationNote = &text
	}
	return nil
}

// VerificationNote builds the audit note for a verified record. A reviewer
// note is kept and the ledger reference is appended to it.
func VerificationNote(note, matchedDescription string) string {
	ref := fmt.Sprintf("Verified against ledger entry: %q", matchedDescription)
	if note == "" {
		return ref
	}
	return note + "; " + ref
}
