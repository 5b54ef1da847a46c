package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/northfin/recon_backend/internal/apperrors"
	"github.com/northfin/recon_backend/internal/core/domain"
	portsrepo "github.com/northfin/recon_backend/internal/core/ports/repositories"
	portssvc "github.com/northfin/recon_backend/internal/core/ports/services"
	"github.com/northfin/recon_backend/internal/dto"
)

// sessionService manages reconciliation sessions.
type sessionService struct {
	BaseService
	sessionRepo portsrepo.SessionRepositoryFacade

	now func() time.Time
}

// SessionOption is a functional option for configuring the session service
type SessionOption func(*sessionService)

// WithSessionClock overrides the service clock, used by tests.
func WithSessionClock(now func() time.Time) SessionOption {
	return func(s *sessionService) {
		s.now = now
	}
}

// NewSessionService creates the session service with the provided options
func NewSessionService(repos *portsrepo.RepositoryProvider, options ...SessionOption) portssvc.SessionSvcFacade {
	svc := &sessionService{
		sessionRepo: repos.SessionRepo,
		now:         time.Now,
	}

	for _, option := range options {
		option(svc)
	}

	return svc
}

var _ portssvc.SessionSvcFacade = (*sessionService)(nil)

func (s *sessionService) StartSession(ctx context.Context, teamID, userID string, req dto.StartSessionRequest) (*dto.StartSessionResponse, error) {
	if req.DateTo.Before(req.DateFrom) {
		return nil, fmt.Errorf("session date range is inverted: %w", apperrors.ErrValidation)
	}
	now := s.now()

	session := domain.ReconciliationSession{
		SessionID:     uuid.NewString(),
		TeamID:        teamID,
		UserID:        userID,
		BankAccountID: req.BankAccountID,
		DateFrom:      req.DateFrom,
		DateTo:        req.DateTo,
		Status:        domain.SessionInProgress,
		AuditFields: domain.AuditFields{
			CreatedAt:     now,
			CreatedBy:     userID,
			LastUpdatedAt: now,
			LastUpdatedBy: userID,
		},
	}
	if err := s.sessionRepo.SaveSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}

	s.LogInfo(ctx, "Reconciliation session started",
		slog.String("session_id", session.SessionID),
		slog.Time("date_from", req.DateFrom),
		slog.Time("date_to", req.DateTo))
	return &dto.StartSessionResponse{SessionID: session.SessionID}, nil
}

func (s *sessionService) CompleteSession(ctx context.Context, teamID, sessionID string, req dto.CompleteSessionRequest) error {
	if err := s.sessionRepo.CompleteSession(ctx, teamID, sessionID, req.Stats, s.now()); err != nil {
		return fmt.Errorf("failed to complete session: %w", err)
	}
	s.LogInfo(ctx, "Reconciliation session completed",
		slog.String("session_id", sessionID),
		slog.Int("total_transactions", req.Stats.TotalTransactions))
	return nil
}

func (s *sessionService) GetSession(ctx context.Context, teamID, sessionID string) (*domain.ReconciliationSession, error) {
	session, err := s.sessionRepo.FindSessionByID(ctx, teamID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return session, nil
}

// GetReconciliationStats aggregates live match-status counts for a range.
func (s *sessionService) GetReconciliationStats(ctx context.Context, teamID, bankAccountID string, req dto.StartSessionRequest) (*domain.SessionStats, error) {
	if req.DateTo.Before(req.DateFrom) {
		return nil, fmt.Errorf("stats date range is inverted: %w", apperrors.ErrValidation)
	}

	counts, err := s.sessionRepo.GetMatchStatusCounts(ctx, teamID, bankAccountID, req.DateFrom, req.DateTo)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate match status counts: %w", err)
	}

	stats := &domain.SessionStats{
		AutoMatched:     counts[domain.MatchStatusAutoMatched],
		ManuallyMatched: counts[domain.MatchStatusManualMatched],
		Flagged:         counts[domain.MatchStatusFlagged],
		Unmatched:       counts[domain.MatchStatusUnmatched] + counts[domain.MatchStatusSuggested],
	}
	for _, n := range counts {
		stats.TotalTransactions += n
	}
	return stats, nil
}
