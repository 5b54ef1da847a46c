package pgsql

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/northfin/recon_backend/internal/core/domain"
	portsrepo "github.com/northfin/recon_backend/internal/core/ports/repositories"
)

// PgxNotificationOutbox implements the durable notification outbox using pgx.
// Rows stay until delivery is confirmed, so a crashed dispatcher loses nothing.
type PgxNotificationOutbox struct {
	pool *pgxpool.Pool
}

// NewPgxNotificationOutbox creates a new outbox over the given pool.
func NewPgxNotificationOutbox(pool *pgxpool.Pool) portsrepo.NotificationOutbox {
	return &PgxNotificationOutbox{pool: pool}
}

// Enqueue stores a notification for later delivery.
func (r *PgxNotificationOutbox) Enqueue(ctx context.Context, n domain.Notification) error {
	query := `
		INSERT INTO notification_outbox (
			notification_id, notification_type, team_id, user_id, record_id, description, created_at
		) VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7)`
	_, err := r.pool.Exec(ctx, query,
		n.NotificationID, string(n.Type), n.TeamID, n.UserID, n.RecordID, n.Description, n.CreatedAt,
	)
	if err != nil {
		return mapError("failed to enqueue notification", err)
	}
	return nil
}

// ListPending returns up to limit undelivered notifications, oldest first.
func (r *PgxNotificationOutbox) ListPending(ctx context.Context, limit int) ([]domain.Notification, error) {
	query := `
		SELECT notification_id, notification_type, team_id, COALESCE(user_id, ''), record_id, description, created_at
		FROM notification_outbox
		WHERE delivered_at IS NULL
		ORDER BY created_at ASC, notification_id ASC
		LIMIT $1`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, mapError("failed to list pending notifications", err)
	}
	defer rows.Close()

	out := make([]domain.Notification, 0)
	for rows.Next() {
		var n domain.Notification
		if err := rows.Scan(&n.NotificationID, &n.Type, &n.TeamID, &n.UserID, &n.RecordID, &n.Description, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification row: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("failed reading notification rows", err)
	}
	return out, nil
}

// MarkDelivered removes a notification from the pending set. Marking an
// already delivered or unknown notification is a no-op.
func (r *PgxNotificationOutbox) MarkDelivered(ctx context.Context, notificationID string) error {
	query := `UPDATE notification_outbox SET delivered_at = now() WHERE notification_id = $1 AND delivered_at IS NULL`
	if _, err := r.pool.Exec(ctx, query, notificationID); err != nil {
		return mapError("failed to mark notification delivered", err)
	}
	return nil
}
