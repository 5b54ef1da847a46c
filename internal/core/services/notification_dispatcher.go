package services

import (
	"context"
	"log/slog"
	"time"

	portsrepo "github.com/northfin/recon_backend/internal/core/ports/repositories"
	portssvc "github.com/northfin/recon_backend/internal/core/ports/services"
)

// NotificationDispatcher drains the durable outbox toward the delivery
// collaborator. Engine operations only enqueue; this loop is the sole
// reader, so a crashed delivery attempt is retried on the next tick.
type NotificationDispatcher struct {
	BaseService
	outbox portsrepo.NotificationOutbox
	sender portssvc.NotificationSender

	batchSize int
	interval  time.Duration
}

// DispatcherOption customizes the outbox dispatcher.
type DispatcherOption func(*NotificationDispatcher)

// WithDispatchInterval overrides how often the outbox is drained.
func WithDispatchInterval(interval time.Duration) DispatcherOption {
	return func(d *NotificationDispatcher) {
		if interval > 0 {
			d.interval = interval
		}
	}
}

// NewNotificationDispatcher creates the outbox dispatcher
func NewNotificationDispatcher(outbox portsrepo.NotificationOutbox, sender portssvc.NotificationSender, opts ...DispatcherOption) *NotificationDispatcher {
	d := &NotificationDispatcher{
		outbox:    outbox,
		sender:    sender,
		batchSize: 50,
		interval:  10 * time.Second,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run pumps the outbox until the context ends. Intended to be started as a
// background goroutine from main.
func (d *NotificationDispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.DispatchPending(ctx)
		}
	}
}

// DispatchPending delivers one batch of pending notifications. Failed sends
// stay in the outbox for the next attempt.
func (d *NotificationDispatcher) DispatchPending(ctx context.Context) {
	pending, err := d.outbox.ListPending(ctx, d.batchSize)
	if err != nil {
		d.LogError(ctx, err, "Failed to read notification outbox")
		return
	}

	for _, n := range pending {
		if ctx.Err() != nil {
			return
		}
		if err := d.sender.Send(ctx, n); err != nil {
			d.LogError(ctx, err, "Failed to deliver notification",
				slog.String("notification_id", n.NotificationID),
				slog.String("type", string(n.Type)))
			continue
		}
		if err := d.outbox.MarkDelivered(ctx, n.NotificationID); err != nil {
			// Delivery succeeded but the marker write failed; the next tick
			// redelivers, which the delivery service tolerates.
			d.LogError(ctx, err, "Failed to mark notification delivered",
				slog.String("notification_id", n.NotificationID))
		}
	}
}
