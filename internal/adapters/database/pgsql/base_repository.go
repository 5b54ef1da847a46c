package pgsql

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	portsrepo "github.com/northfin/recon_backend/internal/core/ports/repositories"
)

// PgxTransactionManager implements database transaction management over a
// pgx pool.
type PgxTransactionManager struct {
	pool *pgxpool.Pool
}

// NewPgxTransactionManager creates a new transaction manager.
func NewPgxTransactionManager(pool *pgxpool.Pool) portsrepo.TransactionManager {
	return &PgxTransactionManager{pool: pool}
}

// Begin starts a new database transaction.
func (m *PgxTransactionManager) Begin(ctx context.Context) (pgx.Tx, error) {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return tx, nil
}

// Commit commits a transaction.
func (m *PgxTransactionManager) Commit(ctx context.Context, tx pgx.Tx) error {
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Rollback rolls back a transaction.
func (m *PgxTransactionManager) Rollback(ctx context.Context, tx pgx.Tx) error {
	if err := tx.Rollback(ctx); err != nil {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	return nil
}

// NewRepositoryProvider wires every pgx repository over one shared pool.
func NewRepositoryProvider(pool *pgxpool.Pool) *portsrepo.RepositoryProvider {
	return &portsrepo.RepositoryProvider{
		TransactionRepo: NewPgxBankTransactionRepository(pool),
		ObligationRepo:  NewPgxObligationRepository(pool),
		SuggestionRepo:  NewPgxSuggestionRepository(pool),
		DiscrepancyRepo: NewPgxDiscrepancyRepository(pool),
		AuditRepo:       NewPgxMatchAuditRepository(pool),
		StageRepo:       NewPgxCollectionStageRepository(pool),
		RuleRepo:        NewPgxEscalationRuleRepository(pool),
		CaseRepo:        NewPgxCollectionCaseRepository(pool),
		SessionRepo:     NewPgxSessionRepository(pool),
		Outbox:          NewPgxNotificationOutbox(pool),
	}
}
