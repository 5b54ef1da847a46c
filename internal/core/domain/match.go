package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MatchSignals carries the per-signal component scores that produced a
// candidate's confidence. Kept for auditability of decisions.
type MatchSignals struct {
	AmountScore   float64 `json:"amountScore"`
	DateScore     float64 `json:"dateScore"`
	NameScore     float64 `json:"nameScore"`
	CurrencyScore float64 `json:"currencyScore"`
}

// MatchCandidate is an ephemeral, computed pairing of one transaction with
// one obligation. Candidates are never persisted directly; only the decision
// outcome is.
type MatchCandidate struct {
	TransactionID string       `json:"transactionID"`
	ObligationID  string       `json:"obligationID"`
	Confidence    float64      `json:"confidence"` // in [0,1]
	Signals       MatchSignals `json:"signals"`
	Rule          string       `json:"rule"` // human-readable reason

	// Tie-break inputs, see matching.SortCandidates.
	AmountDelta    decimal.Decimal `json:"-"`
	DateDeltaDays  float64         `json:"-"`
	ObligationDate time.Time       `json:"-"`
}

// SuggestionResolution is the lifecycle of a persisted match suggestion.
type SuggestionResolution string

const (
	SuggestionPending   SuggestionResolution = "pending"
	SuggestionConfirmed SuggestionResolution = "confirmed"
	SuggestionRejected  SuggestionResolution = "rejected"
)

// RankedCandidate is one entry of a persisted suggestion's candidate list.
type RankedCandidate struct {
	ObligationID string  `json:"obligationID"`
	Confidence   float64 `json:"confidence"`
	Rule         string  `json:"rule"`
}

// MatchSuggestion is persisted when the decision maker defers an ambiguous
// match to a human. At most one pending suggestion exists per transaction.
type MatchSuggestion struct {
	SuggestionID  string               `json:"suggestionID"`
	TeamID        string               `json:"teamID"`
	TransactionID string               `json:"transactionID"`
	Candidates    []RankedCandidate    `json:"candidates"` // ranked, best first
	Resolution    SuggestionResolution `json:"resolution"`
	ResolvedAt    *time.Time           `json:"resolvedAt,omitempty"`
	ResolvedBy    string               `json:"resolvedBy,omitempty"`

	AuditFields
}

// MatchAuditEntry records one matchStatus transition for the audit trail.
type MatchAuditEntry struct {
	EntryID        string          `json:"entryID"`
	TeamID         string          `json:"teamID"`
	TransactionID  string          `json:"transactionID"`
	Action         string          `json:"action"` // auto_match, suggest, confirm, reject, manual_match, flag, resolve
	ObligationID   string          `json:"obligationID,omitempty"`
	Confidence     decimal.Decimal `json:"confidence"`
	Rule           string          `json:"rule,omitempty"`
	PreviousStatus MatchStatus     `json:"previousStatus,omitempty"`
	NewStatus      MatchStatus     `json:"newStatus"`
	UserID         string          `json:"userID,omitempty"` // empty for engine-driven actions
	Note           string          `json:"note,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
}
