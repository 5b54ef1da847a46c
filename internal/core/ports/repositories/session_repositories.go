package repositories

import (
	"context"
	"time"

	"github.com/northfin/recon_backend/internal/core/domain"
)

// SessionRepositoryFacade persists reconciliation sessions.
type SessionRepositoryFacade interface {
	SaveSession(ctx context.Context, s domain.ReconciliationSession) error
	FindSessionByID(ctx context.Context, teamID, sessionID string) (*domain.ReconciliationSession, error)

	// CompleteSession stores the final stats. Completing an already
	// completed session returns apperrors.ErrConflict.
	CompleteSession(ctx context.Context, teamID, sessionID string, stats domain.SessionStats, now time.Time) error

	// GetMatchStatusCounts aggregates transactions by match status for a
	// date range, optionally scoped to one account.
	GetMatchStatusCounts(ctx context.Context, teamID, bankAccountID string, from, to time.Time) (map[domain.MatchStatus]int, error)
}

// NotificationOutbox is the engine's side of the notification collaborator:
// events are enqueued durably within the triggering operation, and a
// background dispatcher drains them toward the delivery service.
type NotificationOutbox interface {
	Enqueue(ctx context.Context, n domain.Notification) error

	// ListPending returns up to limit undelivered notifications, oldest first.
	ListPending(ctx context.Context, limit int) ([]domain.Notification, error)

	// MarkDelivered removes a notification from the pending set.
	MarkDelivered(ctx context.Context, notificationID string) error
}
