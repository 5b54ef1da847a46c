package pgsql

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/northfin/recon_backend/internal/apperrors"
	"github.com/northfin/recon_backend/internal/core/domain"
	portsrepo "github.com/northfin/recon_backend/internal/core/ports/repositories"
)

const sessionColumns = `session_id, team_id, user_id, COALESCE(bank_account_id, ''), date_from, date_to, status,
	total_transactions, auto_matched, manually_matched, flagged, unmatched, completed_at,
	created_at, COALESCE(created_by, ''), last_updated_at, COALESCE(last_updated_by, '')`

// PgxSessionRepository implements reconciliation session persistence using pgx.
type PgxSessionRepository struct {
	pool *pgxpool.Pool
}

// NewPgxSessionRepository creates a new repository over the given pool.
func NewPgxSessionRepository(pool *pgxpool.Pool) portsrepo.SessionRepositoryFacade {
	return &PgxSessionRepository{pool: pool}
}

func scanSession(row pgx.Row) (*domain.ReconciliationSession, error) {
	var s domain.ReconciliationSession
	err := row.Scan(
		&s.SessionID, &s.TeamID, &s.UserID, &s.BankAccountID, &s.DateFrom, &s.DateTo, &s.Status,
		&s.Stats.TotalTransactions, &s.Stats.AutoMatched, &s.Stats.ManuallyMatched,
		&s.Stats.Flagged, &s.Stats.Unmatched, &s.CompletedAt,
		&s.CreatedAt, &s.CreatedBy, &s.LastUpdatedAt, &s.LastUpdatedBy,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// SaveSession inserts a new reconciliation session.
func (r *PgxSessionRepository) SaveSession(ctx context.Context, s domain.ReconciliationSession) error {
	query := `
		INSERT INTO reconciliation_sessions (
			session_id, team_id, user_id, bank_account_id, date_from, date_to, status,
			total_transactions, auto_matched, manually_matched, flagged, unmatched,
			created_at, created_by, last_updated_at, last_updated_by
		) VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9, $10, $11, $12, $13, NULLIF($14, ''), $13, NULLIF($14, ''))`
	_, err := r.pool.Exec(ctx, query,
		s.SessionID, s.TeamID, s.UserID, s.BankAccountID, s.DateFrom, s.DateTo, string(s.Status),
		s.Stats.TotalTransactions, s.Stats.AutoMatched, s.Stats.ManuallyMatched,
		s.Stats.Flagged, s.Stats.Unmatched, s.CreatedAt, s.CreatedBy,
	)
	if err != nil {
		return mapError("failed to insert reconciliation session", err)
	}
	return nil
}

// FindSessionByID retrieves one session scoped to a team.
func (r *PgxSessionRepository) FindSessionByID(ctx context.Context, teamID, sessionID string) (*domain.ReconciliationSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM reconciliation_sessions WHERE team_id = $1 AND session_id = $2`
	s, err := scanSession(r.pool.QueryRow(ctx, query, teamID, sessionID))
	if err != nil {
		return nil, mapError("failed to get reconciliation session", err)
	}
	return s, nil
}

// CompleteSession stores the final stats. Completing a session twice returns
// apperrors.ErrConflict.
func (r *PgxSessionRepository) CompleteSession(ctx context.Context, teamID, sessionID string, stats domain.SessionStats, now time.Time) error {
	query := `
		UPDATE reconciliation_sessions SET
			status = 'completed',
			total_transactions = $3, auto_matched = $4, manually_matched = $5,
			flagged = $6, unmatched = $7,
			completed_at = $8,
			last_updated_at = $8
		WHERE team_id = $1 AND session_id = $2 AND status = 'in_progress'`
	tag, err := r.pool.Exec(ctx, query,
		teamID, sessionID,
		stats.TotalTransactions, stats.AutoMatched, stats.ManuallyMatched,
		stats.Flagged, stats.Unmatched, now,
	)
	if err != nil {
		return mapError("failed to complete reconciliation session", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	checkErr := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM reconciliation_sessions WHERE team_id = $1 AND session_id = $2)`,
		teamID, sessionID).Scan(&exists)
	if checkErr != nil {
		return mapError("failed to verify session existence", checkErr)
	}
	if !exists {
		return fmt.Errorf("reconciliation session %s: %w", sessionID, apperrors.ErrNotFound)
	}
	return fmt.Errorf("reconciliation session %s already completed: %w", sessionID, apperrors.ErrConflict)
}

// GetMatchStatusCounts aggregates transactions by match status for a date
// range, optionally scoped to one account.
func (r *PgxSessionRepository) GetMatchStatusCounts(ctx context.Context, teamID, bankAccountID string, from, to time.Time) (map[domain.MatchStatus]int, error) {
	var sb strings.Builder
	sb.WriteString(`
		SELECT match_status, COUNT(*)
		FROM bank_transactions
		WHERE team_id = $1 AND transaction_date >= $2 AND transaction_date <= $3`)
	args := []any{teamID, from, to}
	if bankAccountID != "" {
		args = append(args, bankAccountID)
		fmt.Fprintf(&sb, " AND account_id = $%d", len(args))
	}
	sb.WriteString(" GROUP BY match_status")

	rows, err := r.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, mapError("failed to aggregate match status counts", err)
	}
	defer rows.Close()

	counts := make(map[domain.MatchStatus]int)
	for rows.Next() {
		var status domain.MatchStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan match status count row: %w", err)
		}
		counts[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("failed reading match status count rows", err)
	}
	return counts, nil
}
