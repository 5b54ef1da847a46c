package domain

import "time"

// NotificationType identifies the engine events surfaced to users.
type NotificationType string

const (
	NotificationTransactionAutoMatched NotificationType = "transaction_auto_matched"
	NotificationMatchSuggested         NotificationType = "match_suggested"
	NotificationDiscrepancyDetected    NotificationType = "discrepancy_detected"
	NotificationCaseEscalated          NotificationType = "case_escalated"
)

// Notification is the structured event handed to the delivery collaborator.
// The engine only enqueues these; transport (push, email) is out of scope.
type Notification struct {
	NotificationID string           `json:"notificationID"`
	Type           NotificationType `json:"type"`
	TeamID         string           `json:"teamID"`
	UserID         string           `json:"userID,omitempty"` // empty = team-wide
	RecordID       string           `json:"recordID"`         // transaction, suggestion or case id
	Description    string           `json:"description"`      // human-readable summary
	CreatedAt      time.Time        `json:"createdAt"`
}
