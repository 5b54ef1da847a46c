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

const discrepancyColumns = `record_id, team_id, transaction_id, discrepancy_type, COALESCE(resolution, ''),
	COALESCE(obligation_id, ''), COALESCE(note, ''), resolved_at, COALESCE(resolved_by, ''),
	created_at, COALESCE(created_by, ''), last_updated_at, COALESCE(last_updated_by, '')`

// PgxDiscrepancyRepository implements discrepancy record persistence using pgx.
type PgxDiscrepancyRepository struct {
	pool *pgxpool.Pool
}

// NewPgxDiscrepancyRepository creates a new repository over the given pool.
func NewPgxDiscrepancyRepository(pool *pgxpool.Pool) portsrepo.DiscrepancyRepositoryFacade {
	return &PgxDiscrepancyRepository{pool: pool}
}

func scanDiscrepancy(row pgx.Row) (*domain.DiscrepancyRecord, error) {
	var rec domain.DiscrepancyRecord
	err := row.Scan(
		&rec.RecordID, &rec.TeamID, &rec.TransactionID, &rec.Type, &rec.Resolution,
		&rec.ObligationID, &rec.Note, &rec.ResolvedAt, &rec.ResolvedBy,
		&rec.CreatedAt, &rec.CreatedBy, &rec.LastUpdatedAt, &rec.LastUpdatedBy,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// SaveDiscrepancy stores a new discrepancy record.
func (r *PgxDiscrepancyRepository) SaveDiscrepancy(ctx context.Context, rec domain.DiscrepancyRecord) error {
	query := `
		INSERT INTO discrepancies (
			record_id, team_id, transaction_id, discrepancy_type, obligation_id, note,
			created_at, created_by, last_updated_at, last_updated_by
		) VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7, NULLIF($8, ''), $7, NULLIF($8, ''))`
	_, err := r.pool.Exec(ctx, query,
		rec.RecordID, rec.TeamID, rec.TransactionID, string(rec.Type),
		rec.ObligationID, rec.Note, rec.CreatedAt, rec.CreatedBy,
	)
	if err != nil {
		return mapError("failed to insert discrepancy record", err)
	}
	return nil
}

// FindOpenByTransaction returns the unresolved record for a transaction.
func (r *PgxDiscrepancyRepository) FindOpenByTransaction(ctx context.Context, teamID, transactionID string) (*domain.DiscrepancyRecord, error) {
	query := `SELECT ` + discrepancyColumns + `
		FROM discrepancies
		WHERE team_id = $1 AND transaction_id = $2 AND resolved_at IS NULL
		ORDER BY created_at DESC
		LIMIT 1`
	rec, err := scanDiscrepancy(r.pool.QueryRow(ctx, query, teamID, transactionID))
	if err != nil {
		return nil, mapError("failed to get open discrepancy", err)
	}
	return rec, nil
}

// ResolveDiscrepancy closes an open record with the given resolution.
func (r *PgxDiscrepancyRepository) ResolveDiscrepancy(ctx context.Context, teamID, recordID string, resolution domain.DiscrepancyResolution, obligationID, note, userID string, now time.Time) error {
	query := `
		UPDATE discrepancies SET
			resolution = $3,
			obligation_id = COALESCE(NULLIF($4, ''), obligation_id),
			note = COALESCE(NULLIF($5, ''), note),
			resolved_at = $6,
			resolved_by = NULLIF($7, ''),
			last_updated_at = $6,
			last_updated_by = NULLIF($7, '')
		WHERE team_id = $1 AND record_id = $2 AND resolved_at IS NULL`
	tag, err := r.pool.Exec(ctx, query, teamID, recordID, string(resolution), obligationID, note, now, userID)
	if err != nil {
		return mapError("failed to resolve discrepancy", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("open discrepancy %s: %w", recordID, apperrors.ErrNotFound)
	}
	return nil
}

// ListDiscrepancies returns records filtered by type and resolution state,
// newest first, with cursor pagination on (created_at, record_id).
func (r *PgxDiscrepancyRepository) ListDiscrepancies(ctx context.Context, teamID string, types []domain.DiscrepancyType, openOnly bool, cursor string, limit int) ([]domain.DiscrepancyRecord, string, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	var sb strings.Builder
	sb.WriteString(`SELECT ` + discrepancyColumns + ` FROM discrepancies WHERE team_id = $1`)
	args := []any{teamID}

	if len(types) > 0 {
		typeNames := make([]string, len(types))
		for i, t := range types {
			typeNames[i] = string(t)
		}
		args = append(args, typeNames)
		fmt.Fprintf(&sb, " AND discrepancy_type = ANY($%d)", len(args))
	}
	if openOnly {
		sb.WriteString(" AND resolved_at IS NULL")
	}
	if cursor != "" {
		cursorDate, cursorID, err := pagination.DecodeToken(cursor)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
		}
		args = append(args, cursorDate, cursorID)
		fmt.Fprintf(&sb, " AND (created_at, record_id) < ($%d, $%d)", len(args)-1, len(args))
	}

	args = append(args, limit+1)
	fmt.Fprintf(&sb, " ORDER BY created_at DESC, record_id DESC LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, "", mapError("failed to list discrepancies", err)
	}
	defer rows.Close()

	out := make([]domain.DiscrepancyRecord, 0)
	for rows.Next() {
		rec, err := scanDiscrepancy(rows)
		if err != nil {
			return nil, "", fmt.Errorf("failed to scan discrepancy row: %w", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, "", mapError("failed reading discrepancy rows", err)
	}

	nextCursor := ""
	if len(out) > limit {
		out = out[:limit]
		last := out[len(out)-1]
		nextCursor = pagination.EncodeToken(last.CreatedAt, last.RecordID)
	}
	return out, nextCursor, nil
}
