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
	"github.com/northfin/recon_backend/internal/utils/pagination"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

const bankTransactionColumns = `transaction_id, team_id, account_id, amount, currency_code, transaction_date,
	description, COALESCE(counterparty, ''), match_status, COALESCE(matched_obligation_id, ''),
	match_confidence, COALESCE(match_rule, ''), matched_at, COALESCE(matched_by, ''),
	COALESCE(discrepancy_type, ''), COALESCE(reconciliation_note, ''), version,
	created_at, COALESCE(created_by, ''), last_updated_at, COALESCE(last_updated_by, '')`

// PgxBankTransactionRepository implements bank transaction persistence using pgx.
type PgxBankTransactionRepository struct {
	pool *pgxpool.Pool
}

// NewPgxBankTransactionRepository creates a new repository over the given pool.
func NewPgxBankTransactionRepository(pool *pgxpool.Pool) portsrepo.BankTransactionRepositoryFacade {
	return &PgxBankTransactionRepository{pool: pool}
}

func scanBankTransaction(row pgx.Row) (*domain.BankTransaction, error) {
	var t domain.BankTransaction
	err := row.Scan(
		&t.TransactionID, &t.TeamID, &t.AccountID, &t.Amount, &t.CurrencyCode, &t.Date,
		&t.Description, &t.Counterparty, &t.MatchStatus, &t.MatchedObligationID,
		&t.MatchConfidence, &t.MatchRule, &t.MatchedAt, &t.MatchedBy,
		&t.DiscrepancyType, &t.ReconciliationNote, &t.Version,
		&t.CreatedAt, &t.CreatedBy, &t.LastUpdatedAt, &t.LastUpdatedBy,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// FindTransactionByID retrieves a single transaction scoped to a team.
func (r *PgxBankTransactionRepository) FindTransactionByID(ctx context.Context, teamID, transactionID string) (*domain.BankTransaction, error) {
	query := `SELECT ` + bankTransactionColumns + ` FROM bank_transactions WHERE team_id = $1 AND transaction_id = $2`
	t, err := scanBankTransaction(r.pool.QueryRow(ctx, query, teamID, transactionID))
	if err != nil {
		return nil, mapError("failed to get bank transaction", err)
	}
	return t, nil
}

// FindTransactionsByIDs retrieves several team-scoped transactions at once.
// Unknown ids are silently absent from the result.
func (r *PgxBankTransactionRepository) FindTransactionsByIDs(ctx context.Context, teamID string, transactionIDs []string) ([]domain.BankTransaction, error) {
	if len(transactionIDs) == 0 {
		return []domain.BankTransaction{}, nil
	}
	query := `SELECT ` + bankTransactionColumns + `
		FROM bank_transactions
		WHERE team_id = $1 AND transaction_id = ANY($2)
		ORDER BY transaction_date DESC, transaction_id DESC`
	rows, err := r.pool.Query(ctx, query, teamID, transactionIDs)
	if err != nil {
		return nil, mapError("failed to query bank transactions by ids", err)
	}
	defer rows.Close()
	return collectBankTransactions(rows)
}

func collectBankTransactions(rows pgx.Rows) ([]domain.BankTransaction, error) {
	out := make([]domain.BankTransaction, 0)
	for rows.Next() {
		t, err := scanBankTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bank transaction row: %w", err)
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("failed reading bank transaction rows", err)
	}
	return out, nil
}

// ListTransactions returns a filtered page ordered by (date, id) descending,
// plus the opaque cursor for the next page.
func (r *PgxBankTransactionRepository) ListTransactions(ctx context.Context, teamID string, filter portsrepo.TransactionFilter) ([]domain.BankTransaction, string, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	var sb strings.Builder
	sb.WriteString(`SELECT ` + bankTransactionColumns + ` FROM bank_transactions WHERE team_id = $1`)
	args := []any{teamID}

	if len(filter.MatchStatuses) > 0 {
		statuses := make([]string, len(filter.MatchStatuses))
		for i, s := range filter.MatchStatuses {
			statuses[i] = string(s)
		}
		args = append(args, statuses)
		fmt.Fprintf(&sb, " AND match_status = ANY($%d)", len(args))
	}
	if len(filter.DiscrepancyTypes) > 0 {
		types := make([]string, len(filter.DiscrepancyTypes))
		for i, t := range filter.DiscrepancyTypes {
			types[i] = string(t)
		}
		args = append(args, types)
		fmt.Fprintf(&sb, " AND discrepancy_type = ANY($%d)", len(args))
	}
	if filter.AccountID != "" {
		args = append(args, filter.AccountID)
		fmt.Fprintf(&sb, " AND account_id = $%d", len(args))
	}
	if filter.DateFrom != nil {
		args = append(args, *filter.DateFrom)
		fmt.Fprintf(&sb, " AND transaction_date >= $%d", len(args))
	}
	if filter.DateTo != nil {
		args = append(args, *filter.DateTo)
		fmt.Fprintf(&sb, " AND transaction_date <= $%d", len(args))
	}
	if filter.Cursor != "" {
		cursorDate, cursorID, err := pagination.DecodeToken(filter.Cursor)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
		}
		args = append(args, cursorDate, cursorID)
		fmt.Fprintf(&sb, " AND (transaction_date, transaction_id) < ($%d, $%d)", len(args)-1, len(args))
	}

	args = append(args, limit+1)
	fmt.Fprintf(&sb, " ORDER BY transaction_date DESC, transaction_id DESC LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, "", mapError("failed to list bank transactions", err)
	}
	defer rows.Close()

	items, err := collectBankTransactions(rows)
	if err != nil {
		return nil, "", err
	}

	nextCursor := ""
	if len(items) > limit {
		items = items[:limit]
		last := items[len(items)-1]
		nextCursor = pagination.EncodeToken(last.Date, last.TransactionID)
	}
	return items, nextCursor, nil
}

// FindMatchedByObligation returns transactions already linked to an obligation.
func (r *PgxBankTransactionRepository) FindMatchedByObligation(ctx context.Context, teamID, obligationID string) ([]domain.BankTransaction, error) {
	query := `SELECT ` + bankTransactionColumns + `
		FROM bank_transactions
		WHERE team_id = $1 AND matched_obligation_id = $2
		  AND match_status IN ('auto_matched', 'suggested', 'manual_matched')
		ORDER BY transaction_date ASC, transaction_id ASC`
	rows, err := r.pool.Query(ctx, query, teamID, obligationID)
	if err != nil {
		return nil, mapError("failed to query matched transactions", err)
	}
	defer rows.Close()
	return collectBankTransactions(rows)
}

// TransitionMatchState applies a compare-and-swap match-state update. The
// write commits only against the expected (status, version) pair; a missed
// swap on an existing row surfaces as apperrors.ErrConflict.
func (r *PgxBankTransactionRepository) TransitionMatchState(ctx context.Context, t portsrepo.MatchStateTransition) (*domain.BankTransaction, error) {
	query := `
		UPDATE bank_transactions SET
			match_status = $1,
			matched_obligation_id = NULLIF($2, ''),
			match_confidence = $3,
			match_rule = NULLIF($4, ''),
			matched_at = CASE WHEN $1 IN ('auto_matched', 'suggested', 'manual_matched') THEN $5::timestamptz ELSE NULL END,
			matched_by = NULLIF($6, ''),
			discrepancy_type = NULLIF($7, ''),
			reconciliation_note = NULLIF($8, ''),
			version = version + 1,
			last_updated_at = $5,
			last_updated_by = NULLIF($6, '')
		WHERE transaction_id = $9 AND team_id = $10 AND match_status = $11 AND version = $12
		RETURNING ` + bankTransactionColumns

	updated, err := scanBankTransaction(r.pool.QueryRow(ctx, query,
		string(t.NewStatus), t.ObligationID, t.Confidence, t.Rule, t.Now, t.ActorID,
		string(t.DiscrepancyType), t.Note,
		t.TransactionID, t.TeamID, string(t.ExpectedStatus), t.ExpectedVersion,
	))
	if err == nil {
		return updated, nil
	}
	if err != pgx.ErrNoRows {
		return nil, mapError("failed to transition match state", err)
	}

	// Distinguish a lost race from a missing row.
	var exists bool
	checkErr := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM bank_transactions WHERE transaction_id = $1 AND team_id = $2)`,
		t.TransactionID, t.TeamID).Scan(&exists)
	if checkErr != nil {
		return nil, mapError("failed to verify bank transaction existence", checkErr)
	}
	if !exists {
		return nil, fmt.Errorf("transaction %s: %w", t.TransactionID, apperrors.ErrNotFound)
	}
	return nil, fmt.Errorf("transaction %s changed concurrently: %w", t.TransactionID, apperrors.ErrConflict)
}

// BulkConfirm promotes auto_matched and suggested transactions to
// manual_matched in one set-based statement and reports how many rows changed.
// Rows without an obligation link are never promoted.
func (r *PgxBankTransactionRepository) BulkConfirm(ctx context.Context, teamID, userID string, transactionIDs []string, from, to *time.Time, now time.Time) (int, error) {
	var sb strings.Builder
	sb.WriteString(`
		UPDATE bank_transactions SET
			match_status = 'manual_matched',
			matched_at = $2,
			matched_by = $3,
			version = version + 1,
			last_updated_at = $2,
			last_updated_by = $3
		WHERE team_id = $1
		  AND match_status IN ('auto_matched', 'suggested')
		  AND matched_obligation_id IS NOT NULL`)
	args := []any{teamID, now, userID}

	if len(transactionIDs) > 0 {
		args = append(args, transactionIDs)
		fmt.Fprintf(&sb, " AND transaction_id = ANY($%d)", len(args))
	}
	if from != nil {
		args = append(args, *from)
		fmt.Fprintf(&sb, " AND transaction_date >= $%d", len(args))
	}
	if to != nil {
		args = append(args, *to)
		fmt.Fprintf(&sb, " AND transaction_date <= $%d", len(args))
	}

	tag, err := r.pool.Exec(ctx, sb.String(), args...)
	if err != nil {
		return 0, mapError("failed to bulk confirm matches", err)
	}
	return int(tag.RowsAffected()), nil
}
