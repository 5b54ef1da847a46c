// Package notify contains delivery-side adapters for the notification
// outbox. Real transport (push, email) lives in a separate delivery service;
// this process only hands events over.
package notify

import (
	"context"
	"log/slog"

	"github.com/northfin/recon_backend/internal/core/domain"
	portssvc "github.com/northfin/recon_backend/internal/core/ports/services"
)

// SlogSender writes delivered notifications to the structured log. It stands
// in for the delivery service in environments without one.
type SlogSender struct {
	logger *slog.Logger
}

// NewSlogSender creates a log-backed notification sender.
func NewSlogSender(logger *slog.Logger) portssvc.NotificationSender {
	return &SlogSender{logger: logger}
}

// Send records the notification and reports success.
func (s *SlogSender) Send(ctx context.Context, n domain.Notification) error {
	s.logger.InfoContext(ctx, "Notification delivered",
		slog.String("notification_id", n.NotificationID),
		slog.String("type", string(n.Type)),
		slog.String("team_id", n.TeamID),
		slog.String("user_id", n.UserID),
		slog.String("record_id", n.RecordID),
		slog.String("description", n.Description),
	)
	return nil
}
