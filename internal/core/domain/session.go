package domain

import "time"

// SessionStatus is the lifecycle of a reconciliation session.
type SessionStatus string

const (
	SessionInProgress SessionStatus = "in_progress"
	SessionCompleted  SessionStatus = "completed"
)

// SessionStats aggregates the outcome of one reconciliation run.
type SessionStats struct {
	TotalTransactions int `json:"totalTransactions"`
	AutoMatched       int `json:"autoMatched"`
	ManuallyMatched   int `json:"manuallyMatched"`
	Flagged           int `json:"flagged"`
	Unmatched         int `json:"unmatched"`
}

// ReconciliationSession is a bounded-lifetime audit record of one
// reconciliation run over a date range, optionally scoped to one account.
type ReconciliationSession struct {
	SessionID     string        `json:"sessionID"`
	TeamID        string        `json:"teamID"`
	UserID        string        `json:"userID"`
	BankAccountID string        `json:"bankAccountID,omitempty"`
	DateFrom      time.Time     `json:"dateFrom"`
	DateTo        time.Time     `json:"dateTo"`
	Status        SessionStatus `json:"status"`
	Stats         SessionStats  `json:"stats"`
	CompletedAt   *time.Time    `json:"completedAt,omitempty"`

	AuditFields
}
