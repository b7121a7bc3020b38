package models

import (
	"fmt"
	"time"
)

// MatchStatus is the review-workflow state of a staged record
type MatchStatus string

const (
	StatusUnmatched MatchStatus = "unmatched"
	StatusPotential MatchStatus = "potential"
	StatusMatched   MatchStatus = "matched"
	StatusReviewed  MatchStatus = "reviewed"
	StatusVerified  MatchStatus = "verified"
)

// AllStatuses lists statuses in workflow order
var AllStatuses = []MatchStatus{StatusUnmatched, StatusPotential, StatusMatched, StatusReviewed, StatusVerified}

// IsValid checks if the status is known
func (s MatchStatus) IsValid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// IsHumanDecision reports whether the status was set by a reviewer
func (s MatchStatus) IsHumanDecision() bool {
	return s == StatusReviewed || s == StatusVerified
}

// ParseMatchStatus validates a status string
func ParseMatchStatus(s string) (MatchStatus, error) {
	st := MatchStatus(s)
	if !st.IsValid() {
		return "", fmt.Errorf("unknown match status '%s'", s)
	}
	return st, nil
}

// Confidence is the tier derived from a match score
type Confidence string

const (
	ConfidenceNone   Confidence = ""
	ConfidenceHigh   Confidence = "HIGH"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceLow    Confidence = "LOW"
)

// StagedImportRecord is a bank record inside the current import session,
// carrying reconciliation metadata.
type StagedImportRecord struct {
	ID      string `json:"id"`
	OwnerID string `json:"ownerId"`
	BankTransactionRecord

	MatchedLedgerID     *string     `json:"matchedLedgerId,omitempty"`
	MatchConfidence     Confidence  `json:"matchConfidence,omitempty"`
	MatchScore          float64     `json:"matchScore"`
	MatchStatus         MatchStatus `json:"matchStatus"`
	MatchReasons        []string    `json:"matchReasons"`
	SuggestedCategoryID *string     `json:"suggestedCategoryId,omitempty"`
	VerificationNote    *string     `json:"verificationNote,omitempty"`
	Reviewed            bool        `json:"reviewed"`
	Verified            bool        `json:"verified"`
	CreatedAt           time.Time   `json:"createdAt"`
}

// NewStagedImportRecord wraps a bank record in an unmatched staged record
func NewStagedImportRecord(id, ownerID string, rec BankTransactionRecord, now time.Time) *StagedImportRecord {
	return &StagedImportRecord{
		ID:                    id,
		OwnerID:               ownerID,
		BankTransactionRecord: rec,
		MatchStatus:           StatusUnmatched,
		MatchReasons:          []string{},
		CreatedAt:             now,
	}
}

// Clone returns a deep copy of the record
func (s *StagedImportRecord) Clone() *StagedImportRecord {
	c := *s
	c.MatchReasons = append([]string(nil), s.MatchReasons...)
	c.MatchedLedgerID = copyString(s.MatchedLedgerID)
	c.SuggestedCategoryID = copyString(s.SuggestedCategoryID)
	c.VerificationNote = copyString(s.VerificationNote)
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

func copyString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// StringPtr returns a pointer to s, or nil for an empty string
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string or ""
func Deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
