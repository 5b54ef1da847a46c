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

const ruleColumns = `rule_id, team_id, trigger_type, from_stage_id, to_stage_id, condition, is_active,
	created_at, COALESCE(created_by, ''), last_updated_at, COALESCE(last_updated_by, '')`

// PgxEscalationRuleRepository implements escalation rule persistence using pgx.
// Listings come back in creation order; rule evaluation depends on it.
type PgxEscalationRuleRepository struct {
	pool *pgxpool.Pool
}

// NewPgxEscalationRuleRepository creates a new repository over the given pool.
func NewPgxEscalationRuleRepository(pool *pgxpool.Pool) portsrepo.EscalationRuleRepository {
	return &PgxEscalationRuleRepository{pool: pool}
}

func scanRule(row pgx.Row) (*domain.EscalationRule, error) {
	var rule domain.EscalationRule
	var condition []byte
	err := row.Scan(
		&rule.RuleID, &rule.TeamID, &rule.TriggerType, &rule.FromStageID, &rule.ToStageID,
		&condition, &rule.IsActive,
		&rule.CreatedAt, &rule.CreatedBy, &rule.LastUpdatedAt, &rule.LastUpdatedBy,
	)
	if err != nil {
		return nil, err
	}
	decoded, err := domain.DecodeRuleCondition(rule.TriggerType, condition)
	if err != nil {
		return nil, fmt.Errorf("stored condition for rule %s is malformed: %w", rule.RuleID, err)
	}
	rule.Condition = decoded
	return &rule, nil
}

func (r *PgxEscalationRuleRepository) collectRules(ctx context.Context, query string, args ...any) ([]domain.EscalationRule, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError("failed to query escalation rules", err)
	}
	defer rows.Close()

	out := make([]domain.EscalationRule, 0)
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan escalation rule row: %w", err)
		}
		out = append(out, *rule)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("failed reading escalation rule rows", err)
	}
	return out, nil
}

// ListRules returns every rule of a team in creation order.
func (r *PgxEscalationRuleRepository) ListRules(ctx context.Context, teamID string) ([]domain.EscalationRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM escalation_rules WHERE team_id = $1 ORDER BY created_at ASC, rule_id ASC`
	return r.collectRules(ctx, query, teamID)
}

// ListActiveRulesFromStage returns the active rules leaving one stage in
// creation order.
func (r *PgxEscalationRuleRepository) ListActiveRulesFromStage(ctx context.Context, teamID, fromStageID string) ([]domain.EscalationRule, error) {
	query := `SELECT ` + ruleColumns + `
		FROM escalation_rules
		WHERE team_id = $1 AND from_stage_id = $2 AND is_active
		ORDER BY created_at ASC, rule_id ASC`
	return r.collectRules(ctx, query, teamID, fromStageID)
}

// FindRuleByID retrieves one rule scoped to a team.
func (r *PgxEscalationRuleRepository) FindRuleByID(ctx context.Context, teamID, ruleID string) (*domain.EscalationRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM escalation_rules WHERE team_id = $1 AND rule_id = $2`
	rule, err := scanRule(r.pool.QueryRow(ctx, query, teamID, ruleID))
	if err != nil {
		return nil, mapError("failed to get escalation rule", err)
	}
	return rule, nil
}

// SaveRule inserts a new rule.
func (r *PgxEscalationRuleRepository) SaveRule(ctx context.Context, rule domain.EscalationRule) error {
	condition, err := rule.Condition.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode rule condition: %w", err)
	}
	query := `
		INSERT INTO escalation_rules (
			rule_id, team_id, trigger_type, from_stage_id, to_stage_id, condition, is_active,
			created_at, created_by, last_updated_at, last_updated_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), $8, NULLIF($9, ''))`
	_, err = r.pool.Exec(ctx, query,
		rule.RuleID, rule.TeamID, string(rule.TriggerType), rule.FromStageID, rule.ToStageID,
		condition, rule.IsActive, rule.CreatedAt, rule.CreatedBy,
	)
	if err != nil {
		return mapError("failed to insert escalation rule", err)
	}
	return nil
}

// UpdateRule updates an existing rule.
func (r *PgxEscalationRuleRepository) UpdateRule(ctx context.Context, rule domain.EscalationRule) error {
	condition, err := rule.Condition.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode rule condition: %w", err)
	}
	query := `
		UPDATE escalation_rules SET
			trigger_type = $3, from_stage_id = $4, to_stage_id = $5, condition = $6, is_active = $7,
			last_updated_at = $8, last_updated_by = NULLIF($9, '')
		WHERE team_id = $1 AND rule_id = $2`
	tag, err := r.pool.Exec(ctx, query,
		rule.TeamID, rule.RuleID, string(rule.TriggerType), rule.FromStageID, rule.ToStageID,
		condition, rule.IsActive, rule.LastUpdatedAt, rule.LastUpdatedBy,
	)
	if err != nil {
		return mapError("failed to update escalation rule", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("escalation rule %s: %w", rule.RuleID, apperrors.ErrNotFound)
	}
	return nil
}

// DeleteRule removes a rule.
func (r *PgxEscalationRuleRepository) DeleteRule(ctx context.Context, teamID, ruleID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM escalation_rules WHERE team_id = $1 AND rule_id = $2`, teamID, ruleID)
	if err != nil {
		return mapError("failed to delete escalation rule", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("escalation rule %s: %w", ruleID, apperrors.ErrNotFound)
	}
	return nil
}
