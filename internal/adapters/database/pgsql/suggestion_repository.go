package pgsql

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/northfin/recon_backend/internal/apperrors"
	"github.com/northfin/recon_backend/internal/core/domain"
	portsrepo "github.com/northfin/recon_backend/internal/core/ports/repositories"
)

// PgxSuggestionRepository implements match suggestion persistence using pgx.
type PgxSuggestionRepository struct {
	pool *pgxpool.Pool
}

// NewPgxSuggestionRepository creates a new repository over the given pool.
func NewPgxSuggestionRepository(pool *pgxpool.Pool) portsrepo.SuggestionRepositoryFacade {
	return &PgxSuggestionRepository{pool: pool}
}

// SaveSuggestion stores a new pending suggestion. Any previous pending
// suggestion for the same transaction is rejected in the same database
// transaction, preserving the one-pending-per-transaction invariant.
func (r *PgxSuggestionRepository) SaveSuggestion(ctx context.Context, s domain.MatchSuggestion) error {
	candidates, err := json.Marshal(s.Candidates)
	if err != nil {
		return fmt.Errorf("failed to encode suggestion candidates: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return mapError("failed to begin suggestion transaction", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	supersede := `
		UPDATE match_suggestions SET
			resolution = 'rejected',
			resolved_at = $3,
			last_updated_at = $3
		WHERE team_id = $1 AND transaction_id = $2 AND resolution = 'pending'`
	if _, err := tx.Exec(ctx, supersede, s.TeamID, s.TransactionID, s.CreatedAt); err != nil {
		return mapError("failed to supersede pending suggestion", err)
	}

	insert := `
		INSERT INTO match_suggestions (
			suggestion_id, team_id, transaction_id, candidates, resolution,
			created_at, created_by, last_updated_at, last_updated_by
		) VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $6, NULLIF($7, ''))`
	if _, err := tx.Exec(ctx, insert,
		s.SuggestionID, s.TeamID, s.TransactionID, candidates, string(s.Resolution),
		s.CreatedAt, s.CreatedBy,
	); err != nil {
		return mapError("failed to insert match suggestion", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return mapError("failed to commit suggestion transaction", err)
	}
	return nil
}

// FindPendingByTransaction returns the open suggestion for a transaction.
func (r *PgxSuggestionRepository) FindPendingByTransaction(ctx context.Context, teamID, transactionID string) (*domain.MatchSuggestion, error) {
	query := `
		SELECT suggestion_id, team_id, transaction_id, candidates, resolution,
			resolved_at, COALESCE(resolved_by, ''),
			created_at, COALESCE(created_by, ''), last_updated_at, COALESCE(last_updated_by, '')
		FROM match_suggestions
		WHERE team_id = $1 AND transaction_id = $2 AND resolution = 'pending'`
	s, err := scanSuggestion(r.pool.QueryRow(ctx, query, teamID, transactionID))
	if err != nil {
		return nil, mapError("failed to get pending suggestion", err)
	}
	return s, nil
}

func scanSuggestion(row pgx.Row) (*domain.MatchSuggestion, error) {
	var s domain.MatchSuggestion
	var candidates []byte
	err := row.Scan(
		&s.SuggestionID, &s.TeamID, &s.TransactionID, &candidates, &s.Resolution,
		&s.ResolvedAt, &s.ResolvedBy,
		&s.CreatedAt, &s.CreatedBy, &s.LastUpdatedAt, &s.LastUpdatedBy,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(candidates, &s.Candidates); err != nil {
		return nil, fmt.Errorf("failed to decode suggestion candidates: %w", err)
	}
	return &s, nil
}

// ResolveSuggestion marks a pending suggestion confirmed or rejected.
func (r *PgxSuggestionRepository) ResolveSuggestion(ctx context.Context, teamID, suggestionID string, resolution domain.SuggestionResolution, userID string, now time.Time) error {
	query := `
		UPDATE match_suggestions SET
			resolution = $3,
			resolved_at = $4,
			resolved_by = NULLIF($5, ''),
			last_updated_at = $4,
			last_updated_by = NULLIF($5, '')
		WHERE team_id = $1 AND suggestion_id = $2 AND resolution = 'pending'`
	tag, err := r.pool.Exec(ctx, query, teamID, suggestionID, string(resolution), now, userID)
	if err != nil {
		return mapError("failed to resolve suggestion", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("pending suggestion %s: %w", suggestionID, apperrors.ErrNotFound)
	}
	return nil
}
