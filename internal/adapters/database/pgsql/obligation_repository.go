package pgsql

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/northfin/recon_backend/internal/apperrors"
	"github.com/northfin/recon_backend/internal/core/domain"
	portsrepo "github.com/northfin/recon_backend/internal/core/ports/repositories"
)

const obligationColumns = `obligation_id, team_id, COALESCE(deal_id, ''), counterparty, expected_amount,
	currency_code, due_date, balance, status,
	created_at, COALESCE(created_by, ''), last_updated_at, COALESCE(last_updated_by, '')`

// PgxObligationRepository implements payment obligation persistence using pgx.
type PgxObligationRepository struct {
	pool *pgxpool.Pool
}

// NewPgxObligationRepository creates a new repository over the given pool.
func NewPgxObligationRepository(pool *pgxpool.Pool) portsrepo.ObligationRepositoryFacade {
	return &PgxObligationRepository{pool: pool}
}

func scanObligation(row pgx.Row) (*domain.PaymentObligation, error) {
	var o domain.PaymentObligation
	err := row.Scan(
		&o.ObligationID, &o.TeamID, &o.DealID, &o.Counterparty, &o.ExpectedAmount,
		&o.CurrencyCode, &o.DueDate, &o.Balance, &o.Status,
		&o.CreatedAt, &o.CreatedBy, &o.LastUpdatedAt, &o.LastUpdatedBy,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// FindObligationByID retrieves a single obligation scoped to a team.
func (r *PgxObligationRepository) FindObligationByID(ctx context.Context, teamID, obligationID string) (*domain.PaymentObligation, error) {
	query := `SELECT ` + obligationColumns + ` FROM payment_obligations WHERE team_id = $1 AND obligation_id = $2`
	o, err := scanObligation(r.pool.QueryRow(ctx, query, teamID, obligationID))
	if err != nil {
		return nil, mapError("failed to get payment obligation", err)
	}
	return o, nil
}

// FindOpenObligations returns obligations still able to absorb a payment
// inside the query window. Ordered by creation time so repeated candidate
// searches see the same sequence.
func (r *PgxObligationRepository) FindOpenObligations(ctx context.Context, q portsrepo.CandidateQuery) ([]domain.PaymentObligation, error) {
	query := `SELECT ` + obligationColumns + `
		FROM payment_obligations
		WHERE team_id = $1
		  AND currency_code = $2
		  AND status IN ('pending', 'partial', 'late')
		  AND due_date >= $3 AND due_date <= $4
		ORDER BY created_at ASC, obligation_id ASC
		LIMIT $5`
	rows, err := r.pool.Query(ctx, query, q.TeamID, q.CurrencyCode, q.DateFrom, q.DateTo, q.Limit)
	if err != nil {
		return nil, mapError("failed to query open obligations", err)
	}
	defer rows.Close()

	out := make([]domain.PaymentObligation, 0)
	for rows.Next() {
		o, err := scanObligation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan obligation row: %w", err)
		}
		out = append(out, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("failed reading obligation rows", err)
	}
	return out, nil
}

// ApplyPayment reduces the obligation balance by paid and rolls the status.
// A negative paid amount reverses a prior application and reopens a settled
// obligation.
func (r *PgxObligationRepository) ApplyPayment(ctx context.Context, teamID, obligationID string, paid decimal.Decimal, actorID string, now time.Time) error {
	query := `
		UPDATE payment_obligations SET
			balance = balance - $3,
			status = CASE
				WHEN balance - $3 <= 0 THEN 'settled'
				WHEN status IN ('pending', 'settled') THEN 'partial'
				ELSE status
			END,
			last_updated_at = $4,
			last_updated_by = NULLIF($5, '')
		WHERE team_id = $1 AND obligation_id = $2`
	tag, err := r.pool.Exec(ctx, query, teamID, obligationID, paid, now, actorID)
	if err != nil {
		return mapError("failed to apply payment to obligation", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("obligation %s: %w", obligationID, apperrors.ErrNotFound)
	}
	return nil
}
