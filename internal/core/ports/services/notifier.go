package services

import (
	"context"

	"github.com/northfin/recon_backend/internal/core/domain"
)

// NotificationSender is the delivery collaborator's contract. The engine
// emits structured events; transport is out of scope and failures to send
// never fail the triggering operation.
type NotificationSender interface {
	Send(ctx context.Context, n domain.Notification) error
}
