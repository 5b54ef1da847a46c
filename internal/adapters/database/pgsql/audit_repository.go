package pgsql

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/northfin/recon_backend/internal/core/domain"
	portsrepo "github.com/northfin/recon_backend/internal/core/ports/repositories"
)

// PgxMatchAuditRepository appends to the match audit trail. The table is
// insert-only; nothing in the application updates or deletes entries.
type PgxMatchAuditRepository struct {
	pool *pgxpool.Pool
}

// NewPgxMatchAuditRepository creates a new repository over the given pool.
func NewPgxMatchAuditRepository(pool *pgxpool.Pool) portsrepo.MatchAuditWriter {
	return &PgxMatchAuditRepository{pool: pool}
}

// SaveAuditEntry appends one transition record.
func (r *PgxMatchAuditRepository) SaveAuditEntry(ctx context.Context, entry domain.MatchAuditEntry) error {
	query := `
		INSERT INTO match_audit (
			entry_id, team_id, transaction_id, action, obligation_id, confidence,
			rule, previous_status, new_status, user_id, note, created_at
		) VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, NULLIF($7, ''), NULLIF($8, ''), $9, NULLIF($10, ''), NULLIF($11, ''), $12)`
	_, err := r.pool.Exec(ctx, query,
		entry.EntryID, entry.TeamID, entry.TransactionID, entry.Action,
		entry.ObligationID, entry.Confidence, entry.Rule,
		string(entry.PreviousStatus), string(entry.NewStatus),
		entry.UserID, entry.Note, entry.CreatedAt,
	)
	if err != nil {
		return mapError("failed to insert match audit entry", err)
	}
	return nil
}
