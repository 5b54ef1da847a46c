package pgsql

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/northfin/recon_backend/internal/apperrors"
	"github.com/northfin/recon_backend/internal/core/domain"
	portsrepo "github.com/northfin/recon_backend/internal/core/ports/repositories"
)

const stageColumns = `stage_id, team_id, name, slug, position, is_default, is_terminal,
	created_at, COALESCE(created_by, ''), last_updated_at, COALESCE(last_updated_by, '')`

// PgxCollectionStageRepository implements collection stage persistence using pgx.
type PgxCollectionStageRepository struct {
	pool *pgxpool.Pool
}

// NewPgxCollectionStageRepository creates a new repository over the given pool.
func NewPgxCollectionStageRepository(pool *pgxpool.Pool) portsrepo.CollectionStageRepository {
	return &PgxCollectionStageRepository{pool: pool}
}

func scanStage(row pgx.Row) (*domain.CollectionStage, error) {
	var s domain.CollectionStage
	err := row.Scan(
		&s.StageID, &s.TeamID, &s.Name, &s.Slug, &s.Position, &s.IsDefault, &s.IsTerminal,
		&s.CreatedAt, &s.CreatedBy, &s.LastUpdatedAt, &s.LastUpdatedBy,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListStages returns a team's stages in pipeline order.
func (r *PgxCollectionStageRepository) ListStages(ctx context.Context, teamID string) ([]domain.CollectionStage, error) {
	query := `SELECT ` + stageColumns + ` FROM collection_stages WHERE team_id = $1 ORDER BY position ASC`
	rows, err := r.pool.Query(ctx, query, teamID)
	if err != nil {
		return nil, mapError("failed to list collection stages", err)
	}
	defer rows.Close()

	out := make([]domain.CollectionStage, 0)
	for rows.Next() {
		s, err := scanStage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan collection stage row: %w", err)
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("failed reading collection stage rows", err)
	}
	return out, nil
}

// FindStageByID retrieves one stage scoped to a team.
func (r *PgxCollectionStageRepository) FindStageByID(ctx context.Context, teamID, stageID string) (*domain.CollectionStage, error) {
	query := `SELECT ` + stageColumns + ` FROM collection_stages WHERE team_id = $1 AND stage_id = $2`
	s, err := scanStage(r.pool.QueryRow(ctx, query, teamID, stageID))
	if err != nil {
		return nil, mapError("failed to get collection stage", err)
	}
	return s, nil
}

// SaveStage inserts a new stage definition.
func (r *PgxCollectionStageRepository) SaveStage(ctx context.Context, stage domain.CollectionStage) error {
	query := `
		INSERT INTO collection_stages (
			stage_id, team_id, name, slug, position, is_default, is_terminal,
			created_at, created_by, last_updated_at, last_updated_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), $8, NULLIF($9, ''))`
	_, err := r.pool.Exec(ctx, query,
		stage.StageID, stage.TeamID, stage.Name, stage.Slug, stage.Position,
		stage.IsDefault, stage.IsTerminal, stage.CreatedAt, stage.CreatedBy,
	)
	if err != nil {
		return mapError("failed to insert collection stage", err)
	}
	return nil
}

// UpdateStage updates an existing stage definition.
func (r *PgxCollectionStageRepository) UpdateStage(ctx context.Context, stage domain.CollectionStage) error {
	query := `
		UPDATE collection_stages SET
			name = $3, slug = $4, position = $5, is_default = $6, is_terminal = $7,
			last_updated_at = $8, last_updated_by = NULLIF($9, '')
		WHERE team_id = $1 AND stage_id = $2`
	tag, err := r.pool.Exec(ctx, query,
		stage.TeamID, stage.StageID, stage.Name, stage.Slug, stage.Position,
		stage.IsDefault, stage.IsTerminal, stage.LastUpdatedAt, stage.LastUpdatedBy,
	)
	if err != nil {
		return mapError("failed to update collection stage", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("collection stage %s: %w", stage.StageID, apperrors.ErrNotFound)
	}
	return nil
}

// DeleteStage removes a stage definition. Usage checks happen in the service.
func (r *PgxCollectionStageRepository) DeleteStage(ctx context.Context, teamID, stageID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM collection_stages WHERE team_id = $1 AND stage_id = $2`, teamID, stageID)
	if err != nil {
		return mapError("failed to delete collection stage", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("collection stage %s: %w", stageID, apperrors.ErrNotFound)
	}
	return nil
}

// CountCasesInStage reports how many cases reference a stage.
func (r *PgxCollectionStageRepository) CountCasesInStage(ctx context.Context, teamID, stageID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM collection_cases WHERE team_id = $1 AND stage_id = $2`,
		teamID, stageID).Scan(&count)
	if err != nil {
		return 0, mapError("failed to count cases in stage", err)
	}
	return count, nil
}
