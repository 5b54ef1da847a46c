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

const caseColumns = `case_id, team_id, deal_id, stage_id, COALESCE(assigned_to, ''),
	stage_entered_at, entered_collections_at, resolved_at, version,
	created_at, COALESCE(created_by, ''), last_updated_at, COALESCE(last_updated_by, '')`

// PgxCollectionCaseRepository implements collection case persistence using
// pgx. A partial unique index on (team_id, deal_id) WHERE resolved_at IS NULL
// backs the one-active-case-per-deal invariant at the storage level.
type PgxCollectionCaseRepository struct {
	pool *pgxpool.Pool
}

// NewPgxCollectionCaseRepository creates a new repository over the given pool.
func NewPgxCollectionCaseRepository(pool *pgxpool.Pool) portsrepo.CollectionCaseRepository {
	return &PgxCollectionCaseRepository{pool: pool}
}

func scanCase(row pgx.Row) (*domain.CollectionCase, error) {
	var c domain.CollectionCase
	err := row.Scan(
		&c.CaseID, &c.TeamID, &c.DealID, &c.StageID, &c.AssignedTo,
		&c.StageEnteredAt, &c.EnteredCollectionsAt, &c.ResolvedAt, &c.Version,
		&c.CreatedAt, &c.CreatedBy, &c.LastUpdatedAt, &c.LastUpdatedBy,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func collectCases(rows pgx.Rows) ([]domain.CollectionCase, error) {
	out := make([]domain.CollectionCase, 0)
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan collection case row: %w", err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("failed reading collection case rows", err)
	}
	return out, nil
}

// FindCaseByID retrieves one case scoped to a team.
func (r *PgxCollectionCaseRepository) FindCaseByID(ctx context.Context, teamID, caseID string) (*domain.CollectionCase, error) {
	query := `SELECT ` + caseColumns + ` FROM collection_cases WHERE team_id = $1 AND case_id = $2`
	c, err := scanCase(r.pool.QueryRow(ctx, query, teamID, caseID))
	if err != nil {
		return nil, mapError("failed to get collection case", err)
	}
	return c, nil
}

// FindActiveCasesByDeal returns all unresolved cases for a deal, most recent
// first. The invariant allows at most one; callers log anything beyond that.
func (r *PgxCollectionCaseRepository) FindActiveCasesByDeal(ctx context.Context, teamID, dealID string) ([]domain.CollectionCase, error) {
	query := `SELECT ` + caseColumns + `
		FROM collection_cases
		WHERE team_id = $1 AND deal_id = $2 AND resolved_at IS NULL
		ORDER BY entered_collections_at DESC, case_id DESC`
	rows, err := r.pool.Query(ctx, query, teamID, dealID)
	if err != nil {
		return nil, mapError("failed to query active cases by deal", err)
	}
	defer rows.Close()
	return collectCases(rows)
}

// ListActiveCases returns every unresolved case for a team, oldest stage
// entry first so the time-based sweep reaches the stalest cases first.
func (r *PgxCollectionCaseRepository) ListActiveCases(ctx context.Context, teamID string) ([]domain.CollectionCase, error) {
	query := `SELECT ` + caseColumns + `
		FROM collection_cases
		WHERE team_id = $1 AND resolved_at IS NULL
		ORDER BY stage_entered_at ASC, case_id ASC`
	rows, err := r.pool.Query(ctx, query, teamID)
	if err != nil {
		return nil, mapError("failed to query active cases", err)
	}
	defer rows.Close()
	return collectCases(rows)
}

// ListTeamIDsWithActiveCases returns the teams the background sweep visits.
func (r *PgxCollectionCaseRepository) ListTeamIDsWithActiveCases(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT team_id FROM collection_cases WHERE resolved_at IS NULL ORDER BY team_id`)
	if err != nil {
		return nil, mapError("failed to list teams with active cases", err)
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var teamID string
		if err := rows.Scan(&teamID); err != nil {
			return nil, fmt.Errorf("failed to scan team id row: %w", err)
		}
		out = append(out, teamID)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("failed reading team id rows", err)
	}
	return out, nil
}

// ListCollectionCandidates returns deals carrying past-due open obligations
// with no active case, oldest debt first.
func (r *PgxCollectionCaseRepository) ListCollectionCandidates(ctx context.Context, teamID string, asOf time.Time, limit int) ([]portsrepo.CollectionCandidate, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	query := `SELECT o.deal_id, MIN(o.counterparty), SUM(o.balance), MIN(o.due_date), COUNT(*)
		FROM payment_obligations o
		WHERE o.team_id = $1
		  AND o.deal_id IS NOT NULL
		  AND o.status IN ('pending', 'partial', 'late')
		  AND o.due_date < $2
		  AND NOT EXISTS (
			SELECT 1 FROM collection_cases c
			WHERE c.team_id = o.team_id AND c.deal_id = o.deal_id AND c.resolved_at IS NULL
		  )
		GROUP BY o.deal_id
		ORDER BY MIN(o.due_date) ASC, o.deal_id ASC
		LIMIT $3`
	rows, err := r.pool.Query(ctx, query, teamID, asOf, limit)
	if err != nil {
		return nil, mapError("failed to query collection candidates", err)
	}
	defer rows.Close()

	out := make([]portsrepo.CollectionCandidate, 0)
	for rows.Next() {
		var cand portsrepo.CollectionCandidate
		if err := rows.Scan(&cand.DealID, &cand.Counterparty, &cand.OverdueBalance, &cand.OldestDueDate, &cand.ObligationCnt); err != nil {
			return nil, fmt.Errorf("failed to scan collection candidate row: %w", err)
		}
		out = append(out, cand)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("failed reading collection candidate rows", err)
	}
	return out, nil
}

// ListCases returns a filtered page of cases, newest first, plus the cursor
// for the next page.
func (r *PgxCollectionCaseRepository) ListCases(ctx context.Context, teamID string, filter portsrepo.CaseFilter) ([]domain.CollectionCase, string, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	var sb strings.Builder
	sb.WriteString(`SELECT ` + caseColumns + ` FROM collection_cases WHERE team_id = $1`)
	args := []any{teamID}

	if filter.ActiveOnly {
		sb.WriteString(" AND resolved_at IS NULL")
	}
	if filter.ResolvedOnly {
		sb.WriteString(" AND resolved_at IS NOT NULL")
	}
	if filter.StageID != "" {
		args = append(args, filter.StageID)
		fmt.Fprintf(&sb, " AND stage_id = $%d", len(args))
	}
	if filter.AssignedTo != "" {
		args = append(args, filter.AssignedTo)
		fmt.Fprintf(&sb, " AND assigned_to = $%d", len(args))
	}
	if filter.Cursor != "" {
		cursorDate, cursorID, err := pagination.DecodeToken(filter.Cursor)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
		}
		args = append(args, cursorDate, cursorID)
		fmt.Fprintf(&sb, " AND (entered_collections_at, case_id) < ($%d, $%d)", len(args)-1, len(args))
	}

	args = append(args, limit+1)
	fmt.Fprintf(&sb, " ORDER BY entered_collections_at DESC, case_id DESC LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, "", mapError("failed to list collection cases", err)
	}
	defer rows.Close()

	items, err := collectCases(rows)
	if err != nil {
		return nil, "", err
	}

	nextCursor := ""
	if len(items) > limit {
		items = items[:limit]
		last := items[len(items)-1]
		nextCursor = pagination.EncodeToken(last.EnteredCollectionsAt, last.CaseID)
	}
	return items, nextCursor, nil
}

// SaveCase inserts a new case. A second active case for the same deal trips
// the partial unique index and maps to apperrors.ErrDuplicate.
func (r *PgxCollectionCaseRepository) SaveCase(ctx context.Context, c domain.CollectionCase) error {
	query := `
		INSERT INTO collection_cases (
			case_id, team_id, deal_id, stage_id, assigned_to,
			stage_entered_at, entered_collections_at, version,
			created_at, created_by, last_updated_at, last_updated_by
		) VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9, NULLIF($10, ''), $9, NULLIF($10, ''))`
	_, err := r.pool.Exec(ctx, query,
		c.CaseID, c.TeamID, c.DealID, c.StageID, c.AssignedTo,
		c.StageEnteredAt, c.EnteredCollectionsAt, c.Version,
		c.CreatedAt, c.CreatedBy,
	)
	if err != nil {
		return mapError("failed to insert collection case", err)
	}
	return nil
}

// TransitionStage applies a compare-and-swap stage update. Resolving
// transitions stamp resolved_at; a missed swap on a live case surfaces as
// apperrors.ErrConflict.
func (r *PgxCollectionCaseRepository) TransitionStage(ctx context.Context, t portsrepo.StageTransition) (*domain.CollectionCase, error) {
	query := `
		UPDATE collection_cases SET
			stage_id = $1,
			stage_entered_at = $2,
			resolved_at = CASE WHEN $3 THEN $2::timestamptz ELSE resolved_at END,
			version = version + 1,
			last_updated_at = $2
		WHERE case_id = $4 AND team_id = $5 AND stage_id = $6 AND version = $7 AND resolved_at IS NULL
		RETURNING ` + caseColumns

	updated, err := scanCase(r.pool.QueryRow(ctx, query,
		t.NewStageID, t.Now, t.Resolve,
		t.CaseID, t.TeamID, t.ExpectedStageID, t.ExpectedVersion,
	))
	if err == nil {
		return updated, nil
	}
	if err != pgx.ErrNoRows {
		return nil, mapError("failed to transition case stage", err)
	}

	var exists bool
	checkErr := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM collection_cases WHERE case_id = $1 AND team_id = $2)`,
		t.CaseID, t.TeamID).Scan(&exists)
	if checkErr != nil {
		return nil, mapError("failed to verify collection case existence", checkErr)
	}
	if !exists {
		return nil, fmt.Errorf("collection case %s: %w", t.CaseID, apperrors.ErrNotFound)
	}
	return nil, fmt.Errorf("collection case %s changed concurrently: %w", t.CaseID, apperrors.ErrConflict)
}

// GetCaseStats aggregates a team's collections position.
func (r *PgxCollectionCaseRepository) GetCaseStats(ctx context.Context, teamID string) (portsrepo.CaseStats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE resolved_at IS NULL),
			COUNT(*) FILTER (WHERE resolved_at IS NOT NULL),
			COUNT(*) FILTER (WHERE resolved_at IS NULL AND assigned_to IS NULL)
		FROM collection_cases
		WHERE team_id = $1`
	var stats portsrepo.CaseStats
	err := r.pool.QueryRow(ctx, query, teamID).Scan(&stats.ActiveCases, &stats.ResolvedCases, &stats.Unassigned)
	if err != nil {
		return portsrepo.CaseStats{}, mapError("failed to aggregate case stats", err)
	}
	return stats, nil
}

// SaveNote appends an audit note to a case.
func (r *PgxCollectionCaseRepository) SaveNote(ctx context.Context, note domain.CollectionNote) error {
	query := `
		INSERT INTO collection_notes (note_id, team_id, case_id, body, author_id, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)`
	_, err := r.pool.Exec(ctx, query,
		note.NoteID, note.TeamID, note.CaseID, note.Body, note.AuthorID, note.CreatedAt,
	)
	if err != nil {
		return mapError("failed to insert collection note", err)
	}
	return nil
}
