package services

import (
	"context"

	"github.com/northfin/recon_backend/internal/core/domain"
	"github.com/northfin/recon_backend/internal/dto"
)

// SessionSvcFacade manages reconciliation sessions and their stats.
type SessionSvcFacade interface {
	StartSession(ctx context.Context, teamID, userID string, req dto.StartSessionRequest) (*dto.StartSessionResponse, error)
	CompleteSession(ctx context.Context, teamID, sessionID string, req dto.CompleteSessionRequest) error
	GetSession(ctx context.Context, teamID, sessionID string) (*domain.ReconciliationSession, error)

	// GetReconciliationStats aggregates current match-status counts for a
	// date range without touching session state.
	GetReconciliationStats(ctx context.Context, teamID, bankAccountID string, req dto.StartSessionRequest) (*domain.SessionStats, error)
}
