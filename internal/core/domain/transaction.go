package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MatchStatus is the authoritative reconciliation state of a bank transaction.
// The value set is closed; transitions are governed by CanTransitionTo.
type MatchStatus string

const (
	MatchStatusUnmatched     MatchStatus = "unmatched"
	MatchStatusAutoMatched   MatchStatus = "auto_matched"
	MatchStatusSuggested     MatchStatus = "suggested"
	MatchStatusManualMatched MatchStatus = "manual_matched"
	MatchStatusFlagged       MatchStatus = "flagged"
	MatchStatusExcluded      MatchStatus = "excluded"
)

// IsValid reports whether s is a member of the closed match-status set.
func (s MatchStatus) IsValid() bool {
	switch s {
	case MatchStatusUnmatched, MatchStatusAutoMatched, MatchStatusSuggested,
		MatchStatusManualMatched, MatchStatusFlagged, MatchStatusExcluded:
		return true
	}
	return false
}

// IsMatched reports whether the status links the transaction to an obligation.
func (s MatchStatus) IsMatched() bool {
	switch s {
	case MatchStatusAutoMatched, MatchStatusSuggested, MatchStatusManualMatched:
		return true
	}
	return false
}

// IsTerminal reports whether the automatic engine must leave the transaction
// alone. manual_matched and excluded are only changed by explicit user action.
func (s MatchStatus) IsTerminal() bool {
	return s == MatchStatusManualMatched || s == MatchStatusExcluded
}

// matchTransitions encodes the legal state machine. Flagging is legal from
// every state and is handled separately in CanTransitionTo.
var matchTransitions = map[MatchStatus][]MatchStatus{
	MatchStatusUnmatched:     {MatchStatusAutoMatched, MatchStatusSuggested, MatchStatusManualMatched},
	MatchStatusAutoMatched:   {MatchStatusUnmatched, MatchStatusManualMatched},
	MatchStatusSuggested:     {MatchStatusManualMatched, MatchStatusUnmatched},
	MatchStatusFlagged:       {MatchStatusExcluded, MatchStatusManualMatched},
	MatchStatusManualMatched: {},
	MatchStatusExcluded:      {},
}

// CanTransitionTo reports whether moving from s to next is legal. Every
// writer of matchStatus must consult this before committing, regardless of
// whether the trigger is the automatic engine or a manual user action.
func (s MatchStatus) CanTransitionTo(next MatchStatus) bool {
	if !s.IsValid() || !next.IsValid() {
		return false
	}
	if next == MatchStatusFlagged {
		// Users may flag from any other state.
		return s != MatchStatusFlagged
	}
	for _, allowed := range matchTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// BankTransaction is an immutable bank-ledger fact created by bank sync.
// Only the match-state fields are ever mutated, and only by the matching
// service through a conditional (version-checked) write.
type BankTransaction struct {
	TransactionID string          `json:"transactionID"`
	TeamID        string          `json:"teamID"`
	AccountID     string          `json:"accountID"`
	Amount        decimal.Decimal `json:"amount"` // signed; negative for debits
	CurrencyCode  string          `json:"currencyCode"`
	Date          time.Time       `json:"date"`
	Description   string          `json:"description"`  // raw bank descriptor
	Counterparty  string          `json:"counterparty"` // parsed counterparty name, may be empty

	// Match state, owned by the matching service.
	MatchStatus         MatchStatus     `json:"matchStatus"`
	MatchedObligationID string          `json:"matchedObligationID,omitempty"`
	MatchConfidence     decimal.Decimal `json:"matchConfidence"`
	MatchRule           string          `json:"matchRule,omitempty"`
	MatchedAt           *time.Time      `json:"matchedAt,omitempty"`
	MatchedBy           string          `json:"matchedBy,omitempty"`
	DiscrepancyType     DiscrepancyType `json:"discrepancyType,omitempty"`
	ReconciliationNote  string          `json:"reconciliationNote,omitempty"`
	Version             int64           `json:"version"` // optimistic concurrency token

	AuditFields
}
