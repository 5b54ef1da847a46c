package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/northfin/recon_backend/internal/apperrors"
	"github.com/northfin/recon_backend/internal/core/domain"
	portsrepo "github.com/northfin/recon_backend/internal/core/ports/repositories"
	portssvc "github.com/northfin/recon_backend/internal/core/ports/services"
	"github.com/northfin/recon_backend/internal/dto"
	"github.com/northfin/recon_backend/internal/matching"
	"github.com/northfin/recon_backend/internal/utils/retry"
)

// matchingService implements the MatchingSvcFacade interface. It owns every
// write to a transaction's match state; all writes go through the
// version-checked transition in the repository.
type matchingService struct {
	BaseService
	txRepo          portsrepo.BankTransactionRepositoryFacade
	obligationRepo  portsrepo.ObligationRepositoryFacade
	suggestionRepo  portsrepo.SuggestionRepositoryFacade
	discrepancyRepo portsrepo.DiscrepancyRepositoryFacade
	auditRepo       portsrepo.MatchAuditWriter
	outbox          portsrepo.NotificationOutbox

	cfg    matching.Config
	scorer *matching.Scorer
	retry  retry.Policy
	now    func() time.Time
}

// MatchingOption is a functional option for configuring the matching service
type MatchingOption func(*matchingService)

// WithClock overrides the service clock, used by tests.
func WithClock(now func() time.Time) MatchingOption {
	return func(s *matchingService) {
		s.now = now
	}
}

// WithRetryPolicy overrides the transient-error retry policy.
func WithRetryPolicy(p retry.Policy) MatchingOption {
	return func(s *matchingService) {
		s.retry = p
	}
}

// NewMatchingService creates the matching service with the provided options
func NewMatchingService(repos *portsrepo.RepositoryProvider, cfg matching.Config, options ...MatchingOption) portssvc.MatchingSvcFacade {
	svc := &matchingService{
		txRepo:          repos.TransactionRepo,
		obligationRepo:  repos.ObligationRepo,
		suggestionRepo:  repos.SuggestionRepo,
		discrepancyRepo: repos.DiscrepancyRepo,
		auditRepo:       repos.AuditRepo,
		outbox:          repos.Outbox,
		cfg:             cfg,
		scorer:          matching.NewScorer(cfg),
		retry:           retry.DefaultPolicy(apperrors.IsTransient),
		now:             time.Now,
	}

	for _, option := range options {
		option(svc)
	}

	return svc
}

var _ portssvc.MatchingSvcFacade = (*matchingService)(nil)

// EvaluateMatch runs one transaction through candidate search, scoring and
// the decision maker. Re-evaluating a transaction that already moved past
// unmatched is a no-op that reports the current state.
func (s *matchingService) EvaluateMatch(ctx context.Context, teamID, transactionID string) (*dto.EvaluateMatchResponse, error) {
	var tx *domain.BankTransaction
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		var ferr error
		tx, ferr = s.txRepo.FindTransactionByID(ctx, teamID, transactionID)
		return ferr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction for evaluation: %w", err)
	}

	if tx.MatchStatus != domain.MatchStatusUnmatched {
		s.LogDebug(ctx, "Skipping evaluation, transaction already processed",
			slog.String("transaction_id", transactionID),
			slog.String("match_status", string(tx.MatchStatus)))
		return currentStateResponse(tx), nil
	}

	cands, err := s.scoreCandidates(ctx, *tx)
	if err != nil {
		return nil, err
	}

	decision := matching.Decide(s.cfg, cands)
	switch decision.Action {
	case matching.ActionAutoMatch:
		return s.commitAutoMatch(ctx, *tx, *decision.Best)
	case matching.ActionSuggest:
		return s.commitSuggestion(ctx, *tx, decision.Ranked)
	default:
		s.LogDebug(ctx, "No eligible candidates",
			slog.String("transaction_id", transactionID),
			slog.Int("scored", len(cands)))
		return &dto.EvaluateMatchResponse{Action: string(matching.ActionNoMatch)}, nil
	}
}

// transitionWithRetry applies one match-state CAS under the transient-failure
// retry policy. Conflicts and missing rows are not transient and surface on
// the first attempt.
func (s *matchingService) transitionWithRetry(ctx context.Context, t portsrepo.MatchStateTransition) (*domain.BankTransaction, error) {
	var updated *domain.BankTransaction
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		var terr error
		updated, terr = s.txRepo.TransitionMatchState(ctx, t)
		return terr
	})
	return updated, err
}

// scoreCandidates loads open obligations around the transaction date and
// scores each pairing.
func (s *matchingService) scoreCandidates(ctx context.Context, tx domain.BankTransaction) ([]domain.MatchCandidate, error) {
	q := portsrepo.CandidateQuery{
		TeamID:       tx.TeamID,
		CurrencyCode: tx.CurrencyCode,
		DateFrom:     tx.Date.AddDate(0, 0, -s.cfg.LookbackDays),
		DateTo:       tx.Date.AddDate(0, 0, s.cfg.LookbackDays),
		Limit:        s.cfg.MaxCandidates,
	}

	var obligations []domain.PaymentObligation
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		var ferr error
		obligations, ferr = s.obligationRepo.FindOpenObligations(ctx, q)
		return ferr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load candidate obligations: %w", err)
	}

	cands := make([]domain.MatchCandidate, 0, len(obligations))
	for _, ob := range obligations {
		cands = append(cands, s.scorer.Score(tx, ob))
	}
	return cands, nil
}

func (s *matchingService) commitAutoMatch(ctx context.Context, tx domain.BankTransaction, best domain.MatchCandidate) (*dto.EvaluateMatchResponse, error) {
	now := s.now()

	var ob *domain.PaymentObligation
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		var ferr error
		ob, ferr = s.obligationRepo.FindObligationByID(ctx, tx.TeamID, best.ObligationID)
		return ferr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load matched obligation: %w", err)
	}

	siblings, err := s.txRepo.FindMatchedByObligation(ctx, tx.TeamID, ob.ObligationID)
	if err != nil {
		s.LogError(ctx, err, "Failed to load sibling transactions for classification",
			slog.String("obligation_id", ob.ObligationID))
		siblings = nil
	}
	within := s.scorer.WithinAmountTolerance(tx.Amount, ob.ExpectedAmount)
	dtype := ClassifyMatchedDiscrepancy(tx, *ob, siblings, within)

	updated, err := s.transitionWithRetry(ctx, portsrepo.MatchStateTransition{
		TransactionID:   tx.TransactionID,
		TeamID:          tx.TeamID,
		ExpectedStatus:  domain.MatchStatusUnmatched,
		ExpectedVersion: tx.Version,
		NewStatus:       domain.MatchStatusAutoMatched,
		ObligationID:    best.ObligationID,
		Confidence:      decimal.NewFromFloat(best.Confidence),
		Rule:            best.Rule,
		DiscrepancyType: dtype,
		Now:             now,
	})
	if errors.Is(err, apperrors.ErrConflict) {
		return s.reportAfterConflict(ctx, tx.TeamID, tx.TransactionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to commit auto match: %w", err)
	}

	if err := s.obligationRepo.ApplyPayment(ctx, tx.TeamID, ob.ObligationID, tx.Amount.Abs(), "", now); err != nil {
		// The match itself stands; the balance catches up on replay.
		s.LogError(ctx, err, "Failed to apply payment to obligation",
			slog.String("obligation_id", ob.ObligationID),
			slog.String("transaction_id", tx.TransactionID))
	}

	if dtype != "" {
		s.saveDiscrepancyRecord(ctx, *updated, dtype, ob.ObligationID, now)
	}

	s.recordAudit(ctx, domain.MatchAuditEntry{
		EntryID:        uuid.NewString(),
		TeamID:         tx.TeamID,
		TransactionID:  tx.TransactionID,
		Action:         "auto_match",
		ObligationID:   best.ObligationID,
		Confidence:     decimal.NewFromFloat(best.Confidence),
		Rule:           best.Rule,
		PreviousStatus: domain.MatchStatusUnmatched,
		NewStatus:      domain.MatchStatusAutoMatched,
		CreatedAt:      now,
	})

	s.enqueueNotification(ctx, domain.Notification{
		NotificationID: uuid.NewString(),
		Type:           domain.NotificationTransactionAutoMatched,
		TeamID:         tx.TeamID,
		RecordID:       tx.TransactionID,
		Description:    fmt.Sprintf("Transaction matched automatically: %s", best.Rule),
		CreatedAt:      now,
	})

	s.LogInfo(ctx, "Transaction auto matched",
		slog.String("transaction_id", tx.TransactionID),
		slog.String("obligation_id", best.ObligationID),
		slog.Float64("confidence", best.Confidence))

	return &dto.EvaluateMatchResponse{Action: string(matching.ActionAutoMatch)}, nil
}

func (s *matchingService) commitSuggestion(ctx context.Context, tx domain.BankTransaction, ranked []domain.MatchCandidate) (*dto.EvaluateMatchResponse, error) {
	now := s.now()
	best := ranked[0]

	_, err := s.transitionWithRetry(ctx, portsrepo.MatchStateTransition{
		TransactionID:   tx.TransactionID,
		TeamID:          tx.TeamID,
		ExpectedStatus:  domain.MatchStatusUnmatched,
		ExpectedVersion: tx.Version,
		NewStatus:       domain.MatchStatusSuggested,
		ObligationID:    best.ObligationID,
		Confidence:      decimal.NewFromFloat(best.Confidence),
		Rule:            best.Rule,
		Now:             now,
	})
	if errors.Is(err, apperrors.ErrConflict) {
		return s.reportAfterConflict(ctx, tx.TeamID, tx.TransactionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to commit suggestion state: %w", err)
	}

	candidates := make([]domain.RankedCandidate, 0, len(ranked))
	for _, c := range ranked {
		candidates = append(candidates, domain.RankedCandidate{
			ObligationID: c.ObligationID,
			Confidence:   c.Confidence,
			Rule:         c.Rule,
		})
	}
	suggestion := domain.MatchSuggestion{
		SuggestionID:  uuid.NewString(),
		TeamID:        tx.TeamID,
		TransactionID: tx.TransactionID,
		Candidates:    candidates,
		Resolution:    domain.SuggestionPending,
		AuditFields: domain.AuditFields{
			CreatedAt:     now,
			LastUpdatedAt: now,
		},
	}
	if err := s.suggestionRepo.SaveSuggestion(ctx, suggestion); err != nil {
		// The transaction is already suggested; confirmation falls back to
		// the obligation link stored on the row.
		s.LogError(ctx, err, "Failed to persist suggestion candidates",
			slog.String("transaction_id", tx.TransactionID))
	}

	s.recordAudit(ctx, domain.MatchAuditEntry{
		EntryID:        uuid.NewString(),
		TeamID:         tx.TeamID,
		TransactionID:  tx.TransactionID,
		Action:         "suggest",
		ObligationID:   best.ObligationID,
		Confidence:     decimal.NewFromFloat(best.Confidence),
		Rule:           best.Rule,
		PreviousStatus: domain.MatchStatusUnmatched,
		NewStatus:      domain.MatchStatusSuggested,
		CreatedAt:      now,
	})

	s.enqueueNotification(ctx, domain.Notification{
		NotificationID: uuid.NewString(),
		Type:           domain.NotificationMatchSuggested,
		TeamID:         tx.TeamID,
		RecordID:       tx.TransactionID,
		Description:    fmt.Sprintf("%d match candidate(s) need review", len(candidates)),
		CreatedAt:      now,
	})

	return &dto.EvaluateMatchResponse{
		Action: string(matching.ActionSuggest),
		Suggestion: &dto.SuggestionSummary{
			ObligationID:    best.ObligationID,
			ConfidenceScore: best.Confidence,
			Rule:            best.Rule,
		},
	}, nil
}

// reportAfterConflict re-reads a transaction after losing a write race and
// reports its committed state. Concurrent evaluation of the same transaction
// is expected under batch processing.
func (s *matchingService) reportAfterConflict(ctx context.Context, teamID, transactionID string) (*dto.EvaluateMatchResponse, error) {
	s.LogDebug(ctx, "Lost match-state write race, reporting committed state",
		slog.String("transaction_id", transactionID))
	cur, err := s.txRepo.FindTransactionByID(ctx, teamID, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to re-read transaction after conflict: %w", err)
	}
	return currentStateResponse(cur), nil
}

func currentStateResponse(tx *domain.BankTransaction) *dto.EvaluateMatchResponse {
	switch tx.MatchStatus {
	case domain.MatchStatusAutoMatched, domain.MatchStatusManualMatched:
		return &dto.EvaluateMatchResponse{Action: string(matching.ActionAutoMatch)}
	case domain.MatchStatusSuggested:
		resp := &dto.EvaluateMatchResponse{Action: string(matching.ActionSuggest)}
		if tx.MatchedObligationID != "" {
			resp.Suggestion = &dto.SuggestionSummary{
				ObligationID:    tx.MatchedObligationID,
				ConfidenceScore: tx.MatchConfidence.InexactFloat64(),
				Rule:            tx.MatchRule,
			}
		}
		return resp
	default:
		return &dto.EvaluateMatchResponse{Action: string(matching.ActionNoMatch)}
	}
}

// ConfirmMatch accepts the engine's pending decision. Confirming an already
// confirmed transaction is a no-op.
func (s *matchingService) ConfirmMatch(ctx context.Context, teamID, transactionID, userID string) error {
	tx, err := s.txRepo.FindTransactionByID(ctx, teamID, transactionID)
	if err != nil {
		return fmt.Errorf("failed to load transaction for confirmation: %w", err)
	}
	now := s.now()

	switch tx.MatchStatus {
	case domain.MatchStatusManualMatched:
		return nil
	case domain.MatchStatusAutoMatched:
		// Payment was applied when the auto match committed.
		_, err = s.txRepo.TransitionMatchState(ctx, portsrepo.MatchStateTransition{
			TransactionID:   transactionID,
			TeamID:          teamID,
			ExpectedStatus:  domain.MatchStatusAutoMatched,
			ExpectedVersion: tx.Version,
			NewStatus:       domain.MatchStatusManualMatched,
			ObligationID:    tx.MatchedObligationID,
			Confidence:      tx.MatchConfidence,
			Rule:            tx.MatchRule,
			ActorID:         userID,
			Now:             now,
		})
		if err != nil {
			return fmt.Errorf("failed to confirm auto match: %w", err)
		}
	case domain.MatchStatusSuggested:
		obligationID := tx.MatchedObligationID
		suggestion, serr := s.suggestionRepo.FindPendingByTransaction(ctx, teamID, transactionID)
		if serr != nil && !errors.Is(serr, apperrors.ErrNotFound) {
			return fmt.Errorf("failed to load pending suggestion: %w", serr)
		}
		if suggestion != nil && len(suggestion.Candidates) > 0 {
			obligationID = suggestion.Candidates[0].ObligationID
		}
		if obligationID == "" {
			return fmt.Errorf("suggested transaction carries no candidate: %w", apperrors.ErrValidation)
		}

		_, err = s.txRepo.TransitionMatchState(ctx, portsrepo.MatchStateTransition{
			TransactionID:   transactionID,
			TeamID:          teamID,
			ExpectedStatus:  domain.MatchStatusSuggested,
			ExpectedVersion: tx.Version,
			NewStatus:       domain.MatchStatusManualMatched,
			ObligationID:    obligationID,
			Confidence:      tx.MatchConfidence,
			Rule:            tx.MatchRule,
			ActorID:         userID,
			Now:             now,
		})
		if err != nil {
			return fmt.Errorf("failed to confirm suggestion: %w", err)
		}

		if err := s.obligationRepo.ApplyPayment(ctx, teamID, obligationID, tx.Amount.Abs(), userID, now); err != nil {
			s.LogError(ctx, err, "Failed to apply payment on confirmation",
				slog.String("obligation_id", obligationID))
		}
		if suggestion != nil {
			if err := s.suggestionRepo.ResolveSuggestion(ctx, teamID, suggestion.SuggestionID, domain.SuggestionConfirmed, userID, now); err != nil {
				s.LogError(ctx, err, "Failed to resolve suggestion", slog.String("suggestion_id", suggestion.SuggestionID))
			}
		}
	default:
		return fmt.Errorf("transaction in state %s cannot be confirmed: %w", tx.MatchStatus, apperrors.ErrConflict)
	}

	s.recordAudit(ctx, domain.MatchAuditEntry{
		EntryID:        uuid.NewString(),
		TeamID:         teamID,
		TransactionID:  transactionID,
		Action:         "confirm",
		ObligationID:   tx.MatchedObligationID,
		Confidence:     tx.MatchConfidence,
		PreviousStatus: tx.MatchStatus,
		NewStatus:      domain.MatchStatusManualMatched,
		UserID:         userID,
		CreatedAt:      now,
	})
	return nil
}

// RejectMatch undoes the engine's pending decision and returns the
// transaction to the unmatched pool.
func (s *matchingService) RejectMatch(ctx context.Context, teamID, transactionID, userID string) error {
	tx, err := s.txRepo.FindTransactionByID(ctx, teamID, transactionID)
	if err != nil {
		return fmt.Errorf("failed to load transaction for rejection: %w", err)
	}
	if tx.MatchStatus == domain.MatchStatusUnmatched {
		return nil
	}
	if tx.MatchStatus != domain.MatchStatusSuggested && tx.MatchStatus != domain.MatchStatusAutoMatched {
		return fmt.Errorf("transaction in state %s cannot be rejected: %w", tx.MatchStatus, apperrors.ErrConflict)
	}
	now := s.now()

	_, err = s.txRepo.TransitionMatchState(ctx, portsrepo.MatchStateTransition{
		TransactionID:   transactionID,
		TeamID:          teamID,
		ExpectedStatus:  tx.MatchStatus,
		ExpectedVersion: tx.Version,
		NewStatus:       domain.MatchStatusUnmatched,
		ActorID:         userID,
		Now:             now,
	})
	if err != nil {
		return fmt.Errorf("failed to reject match: %w", err)
	}

	if tx.MatchStatus == domain.MatchStatusAutoMatched && tx.MatchedObligationID != "" {
		// The auto match already reduced the obligation balance; back it out.
		if perr := s.obligationRepo.ApplyPayment(ctx, teamID, tx.MatchedObligationID, tx.Amount.Abs().Neg(), userID, now); perr != nil {
			s.LogError(ctx, perr, "Failed to reverse payment on rejection",
				slog.String("obligation_id", tx.MatchedObligationID))
		}
	}

	if tx.MatchStatus == domain.MatchStatusSuggested {
		suggestion, serr := s.suggestionRepo.FindPendingByTransaction(ctx, teamID, transactionID)
		if serr == nil {
			if rerr := s.suggestionRepo.ResolveSuggestion(ctx, teamID, suggestion.SuggestionID, domain.SuggestionRejected, userID, now); rerr != nil {
				s.LogError(ctx, rerr, "Failed to resolve rejected suggestion", slog.String("suggestion_id", suggestion.SuggestionID))
			}
		} else if !errors.Is(serr, apperrors.ErrNotFound) {
			s.LogError(ctx, serr, "Failed to load suggestion for rejection", slog.String("transaction_id", transactionID))
		}
	}

	s.recordAudit(ctx, domain.MatchAuditEntry{
		EntryID:        uuid.NewString(),
		TeamID:         teamID,
		TransactionID:  transactionID,
		Action:         "reject",
		ObligationID:   tx.MatchedObligationID,
		PreviousStatus: tx.MatchStatus,
		NewStatus:      domain.MatchStatusUnmatched,
		UserID:         userID,
		CreatedAt:      now,
	})
	return nil
}

// ManualMatch links a transaction to a user-chosen obligation, overriding
// whatever the engine decided.
func (s *matchingService) ManualMatch(ctx context.Context, teamID, transactionID, userID string, req dto.ManualMatchRequest) error {
	tx, err := s.txRepo.FindTransactionByID(ctx, teamID, transactionID)
	if err != nil {
		return fmt.Errorf("failed to load transaction for manual match: %w", err)
	}
	if !tx.MatchStatus.CanTransitionTo(domain.MatchStatusManualMatched) {
		return fmt.Errorf("transaction in state %s cannot be manually matched: %w", tx.MatchStatus, apperrors.ErrConflict)
	}

	ob, err := s.obligationRepo.FindObligationByID(ctx, teamID, req.ObligationID)
	if err != nil {
		return fmt.Errorf("failed to load obligation for manual match: %w", err)
	}
	if !ob.Open() {
		return fmt.Errorf("obligation %s is %s and cannot absorb a payment: %w", ob.ObligationID, ob.Status, apperrors.ErrValidation)
	}
	now := s.now()

	siblings, serr := s.txRepo.FindMatchedByObligation(ctx, teamID, ob.ObligationID)
	if serr != nil {
		s.LogError(ctx, serr, "Failed to load sibling transactions for classification",
			slog.String("obligation_id", ob.ObligationID))
		siblings = nil
	}
	within := s.scorer.WithinAmountTolerance(tx.Amount, ob.ExpectedAmount)
	dtype := ClassifyMatchedDiscrepancy(*tx, *ob, siblings, within)

	_, err = s.txRepo.TransitionMatchState(ctx, portsrepo.MatchStateTransition{
		TransactionID:   transactionID,
		TeamID:          teamID,
		ExpectedStatus:  tx.MatchStatus,
		ExpectedVersion: tx.Version,
		NewStatus:       domain.MatchStatusManualMatched,
		ObligationID:    ob.ObligationID,
		Confidence:      decimal.NewFromInt(1),
		Rule:            "manual match",
		Note:            req.Note,
		DiscrepancyType: dtype,
		ActorID:         userID,
		Now:             now,
	})
	if err != nil {
		return fmt.Errorf("failed to commit manual match: %w", err)
	}

	if tx.MatchStatus == domain.MatchStatusAutoMatched && tx.MatchedObligationID != "" && tx.MatchedObligationID != ob.ObligationID {
		if perr := s.obligationRepo.ApplyPayment(ctx, teamID, tx.MatchedObligationID, tx.Amount.Abs().Neg(), userID, now); perr != nil {
			s.LogError(ctx, perr, "Failed to reverse previous payment on manual rematch",
				slog.String("obligation_id", tx.MatchedObligationID))
		}
	}
	if !(tx.MatchStatus == domain.MatchStatusAutoMatched && tx.MatchedObligationID == ob.ObligationID) {
		if perr := s.obligationRepo.ApplyPayment(ctx, teamID, ob.ObligationID, tx.Amount.Abs(), userID, now); perr != nil {
			s.LogError(ctx, perr, "Failed to apply payment on manual match",
				slog.String("obligation_id", ob.ObligationID))
		}
	}

	if dtype != "" {
		s.saveDiscrepancyRecord(ctx, domain.BankTransaction{
			TransactionID: transactionID,
			TeamID:        teamID,
		}, dtype, ob.ObligationID, now)
	}

	if suggestion, serr := s.suggestionRepo.FindPendingByTransaction(ctx, teamID, transactionID); serr == nil {
		resolution := domain.SuggestionRejected
		if len(suggestion.Candidates) > 0 && suggestion.Candidates[0].ObligationID == ob.ObligationID {
			resolution = domain.SuggestionConfirmed
		}
		if rerr := s.suggestionRepo.ResolveSuggestion(ctx, teamID, suggestion.SuggestionID, resolution, userID, now); rerr != nil {
			s.LogError(ctx, rerr, "Failed to resolve superseded suggestion", slog.String("suggestion_id", suggestion.SuggestionID))
		}
	}

	s.recordAudit(ctx, domain.MatchAuditEntry{
		EntryID:        uuid.NewString(),
		TeamID:         teamID,
		TransactionID:  transactionID,
		Action:         "manual_match",
		ObligationID:   ob.ObligationID,
		Confidence:     decimal.NewFromInt(1),
		Rule:           "manual match",
		PreviousStatus: tx.MatchStatus,
		NewStatus:      domain.MatchStatusManualMatched,
		UserID:         userID,
		Note:           req.Note,
		CreatedAt:      now,
	})
	return nil
}

// FlagDiscrepancy marks a transaction anomalous. Flagging never resolves
// itself; a flagged transaction waits for an explicit resolution.
func (s *matchingService) FlagDiscrepancy(ctx context.Context, teamID, transactionID, userID string, req dto.FlagDiscrepancyRequest) error {
	dtype := domain.DiscrepancyType(req.DiscrepancyType)
	if !dtype.IsValid() {
		return fmt.Errorf("unknown discrepancy type %q: %w", req.DiscrepancyType, apperrors.ErrValidation)
	}

	tx, err := s.txRepo.FindTransactionByID(ctx, teamID, transactionID)
	if err != nil {
		return fmt.Errorf("failed to load transaction for flagging: %w", err)
	}
	if tx.MatchStatus == domain.MatchStatusFlagged && tx.DiscrepancyType == dtype {
		return nil
	}
	if !tx.MatchStatus.CanTransitionTo(domain.MatchStatusFlagged) {
		return fmt.Errorf("transaction in state %s cannot be flagged: %w", tx.MatchStatus, apperrors.ErrConflict)
	}
	now := s.now()

	_, err = s.txRepo.TransitionMatchState(ctx, portsrepo.MatchStateTransition{
		TransactionID:   transactionID,
		TeamID:          teamID,
		ExpectedStatus:  tx.MatchStatus,
		ExpectedVersion: tx.Version,
		NewStatus:       domain.MatchStatusFlagged,
		ObligationID:    tx.MatchedObligationID,
		Confidence:      tx.MatchConfidence,
		Rule:            tx.MatchRule,
		Note:            req.Note,
		DiscrepancyType: dtype,
		ActorID:         userID,
		Now:             now,
	})
	if err != nil {
		return fmt.Errorf("failed to flag transaction: %w", err)
	}

	record := domain.DiscrepancyRecord{
		RecordID:      uuid.NewString(),
		TeamID:        teamID,
		TransactionID: transactionID,
		Type:          dtype,
		ObligationID:  tx.MatchedObligationID,
		Note:          req.Note,
		AuditFields: domain.AuditFields{
			CreatedAt:     now,
			CreatedBy:     userID,
			LastUpdatedAt: now,
			LastUpdatedBy: userID,
		},
	}
	if err := s.discrepancyRepo.SaveDiscrepancy(ctx, record); err != nil {
		s.LogError(ctx, err, "Failed to persist discrepancy record",
			slog.String("transaction_id", transactionID))
	}

	s.enqueueNotification(ctx, domain.Notification{
		NotificationID: uuid.NewString(),
		Type:           domain.NotificationDiscrepancyDetected,
		TeamID:         teamID,
		RecordID:       transactionID,
		Description:    fmt.Sprintf("Transaction flagged as %s", dtype),
		CreatedAt:      now,
	})

	s.recordAudit(ctx, domain.MatchAuditEntry{
		EntryID:        uuid.NewString(),
		TeamID:         teamID,
		TransactionID:  transactionID,
		Action:         "flag",
		ObligationID:   tx.MatchedObligationID,
		PreviousStatus: tx.MatchStatus,
		NewStatus:      domain.MatchStatusFlagged,
		UserID:         userID,
		Note:           req.Note,
		CreatedAt:      now,
	})
	return nil
}

// ResolveDiscrepancy settles a flagged transaction, either excluding it from
// reconciliation or accepting it against an obligation.
func (s *matchingService) ResolveDiscrepancy(ctx context.Context, teamID, transactionID, userID string, req dto.ResolveDiscrepancyRequest) error {
	resolution := domain.DiscrepancyResolution(req.Resolution)
	if !resolution.IsValid() {
		return fmt.Errorf("unknown resolution %q: %w", req.Resolution, apperrors.ErrValidation)
	}

	tx, err := s.txRepo.FindTransactionByID(ctx, teamID, transactionID)
	if err != nil {
		return fmt.Errorf("failed to load transaction for resolution: %w", err)
	}
	if tx.MatchStatus != domain.MatchStatusFlagged {
		return fmt.Errorf("transaction in state %s has no discrepancy to resolve: %w", tx.MatchStatus, apperrors.ErrConflict)
	}
	now := s.now()

	newStatus := domain.MatchStatusExcluded
	obligationID := ""
	if resolution == domain.DiscrepancyResolutionManualMatched {
		if req.ObligationID == "" {
			return fmt.Errorf("resolving as matched requires an obligation: %w", apperrors.ErrValidation)
		}
		ob, oerr := s.obligationRepo.FindObligationByID(ctx, teamID, req.ObligationID)
		if oerr != nil {
			return fmt.Errorf("failed to load obligation for resolution: %w", oerr)
		}
		if !ob.Open() {
			return fmt.Errorf("obligation %s is %s and cannot absorb a payment: %w", ob.ObligationID, ob.Status, apperrors.ErrValidation)
		}
		newStatus = domain.MatchStatusManualMatched
		obligationID = ob.ObligationID
	}

	_, err = s.txRepo.TransitionMatchState(ctx, portsrepo.MatchStateTransition{
		TransactionID:   transactionID,
		TeamID:          teamID,
		ExpectedStatus:  domain.MatchStatusFlagged,
		ExpectedVersion: tx.Version,
		NewStatus:       newStatus,
		ObligationID:    obligationID,
		Note:            req.Note,
		ActorID:         userID,
		Now:             now,
	})
	if err != nil {
		return fmt.Errorf("failed to resolve discrepancy: %w", err)
	}

	if newStatus == domain.MatchStatusManualMatched {
		if perr := s.obligationRepo.ApplyPayment(ctx, teamID, obligationID, tx.Amount.Abs(), userID, now); perr != nil {
			s.LogError(ctx, perr, "Failed to apply payment on discrepancy resolution",
				slog.String("obligation_id", obligationID))
		}
	}

	if record, rerr := s.discrepancyRepo.FindOpenByTransaction(ctx, teamID, transactionID); rerr == nil {
		if err := s.discrepancyRepo.ResolveDiscrepancy(ctx, teamID, record.RecordID, resolution, obligationID, req.Note, userID, now); err != nil {
			s.LogError(ctx, err, "Failed to close discrepancy record", slog.String("record_id", record.RecordID))
		}
	} else if !errors.Is(rerr, apperrors.ErrNotFound) {
		s.LogError(ctx, rerr, "Failed to load open discrepancy record", slog.String("transaction_id", transactionID))
	}

	s.recordAudit(ctx, domain.MatchAuditEntry{
		EntryID:        uuid.NewString(),
		TeamID:         teamID,
		TransactionID:  transactionID,
		Action:         "resolve",
		ObligationID:   obligationID,
		PreviousStatus: domain.MatchStatusFlagged,
		NewStatus:      newStatus,
		UserID:         userID,
		Note:           req.Note,
		CreatedAt:      now,
	})
	return nil
}

// BulkConfirmMatches promotes auto-matched and suggested transactions to
// manual_matched in one set-based write.
func (s *matchingService) BulkConfirmMatches(ctx context.Context, teamID, userID string, req dto.BulkConfirmRequest) (*dto.BulkConfirmResponse, error) {
	if len(req.TransactionIDs) == 0 && (req.DateFrom == nil || req.DateTo == nil) {
		return nil, fmt.Errorf("bulk confirm requires transaction ids or a date range: %w", apperrors.ErrValidation)
	}

	count, err := s.txRepo.BulkConfirm(ctx, teamID, userID, req.TransactionIDs, req.DateFrom, req.DateTo, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to bulk confirm matches: %w", err)
	}

	s.LogInfo(ctx, "Bulk confirmed matches",
		slog.Int("confirmed", count),
		slog.Int("requested_ids", len(req.TransactionIDs)))
	return &dto.BulkConfirmResponse{Confirmed: count}, nil
}

// ListTransactions returns a filtered page of transactions.
func (s *matchingService) ListTransactions(ctx context.Context, teamID string, req dto.ListTransactionsRequest) (*dto.ListTransactionsResponse, error) {
	filter := portsrepo.TransactionFilter{
		AccountID: req.AccountID,
		DateFrom:  req.DateFrom,
		DateTo:    req.DateTo,
		Cursor:    req.Cursor,
		Limit:     req.Limit,
	}
	for _, raw := range req.MatchStatuses {
		status := domain.MatchStatus(raw)
		if !status.IsValid() {
			return nil, fmt.Errorf("unknown match status %q: %w", raw, apperrors.ErrValidation)
		}
		filter.MatchStatuses = append(filter.MatchStatuses, status)
	}
	for _, raw := range req.DiscrepancyTypes {
		dtype := domain.DiscrepancyType(raw)
		if !dtype.IsValid() {
			return nil, fmt.Errorf("unknown discrepancy type %q: %w", raw, apperrors.ErrValidation)
		}
		filter.DiscrepancyTypes = append(filter.DiscrepancyTypes, dtype)
	}

	txns, next, err := s.txRepo.ListTransactions(ctx, teamID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	if txns == nil {
		txns = []domain.BankTransaction{}
	}
	return &dto.ListTransactionsResponse{Transactions: txns, NextCursor: next}, nil
}

// ListDiscrepancies returns a filtered page of discrepancy records.
func (s *matchingService) ListDiscrepancies(ctx context.Context, teamID string, types []string, openOnly bool, cursor string, limit int) (*dto.ListDiscrepanciesResponse, error) {
	dtypes := make([]domain.DiscrepancyType, 0, len(types))
	for _, raw := range types {
		dtype := domain.DiscrepancyType(raw)
		if !dtype.IsValid() {
			return nil, fmt.Errorf("unknown discrepancy type %q: %w", raw, apperrors.ErrValidation)
		}
		dtypes = append(dtypes, dtype)
	}

	records, next, err := s.discrepancyRepo.ListDiscrepancies(ctx, teamID, dtypes, openOnly, cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list discrepancies: %w", err)
	}
	if records == nil {
		records = []domain.DiscrepancyRecord{}
	}
	return &dto.ListDiscrepanciesResponse{Discrepancies: records, NextCursor: next}, nil
}

func (s *matchingService) saveDiscrepancyRecord(ctx context.Context, tx domain.BankTransaction, dtype domain.DiscrepancyType, obligationID string, now time.Time) {
	record := domain.DiscrepancyRecord{
		RecordID:      uuid.NewString(),
		TeamID:        tx.TeamID,
		TransactionID: tx.TransactionID,
		Type:          dtype,
		ObligationID:  obligationID,
		AuditFields: domain.AuditFields{
			CreatedAt:     now,
			LastUpdatedAt: now,
		},
	}
	if err := s.discrepancyRepo.SaveDiscrepancy(ctx, record); err != nil {
		s.LogError(ctx, err, "Failed to persist discrepancy record",
			slog.String("transaction_id", tx.TransactionID),
			slog.String("type", string(dtype)))
		return
	}
	s.enqueueNotification(ctx, domain.Notification{
		NotificationID: uuid.NewString(),
		Type:           domain.NotificationDiscrepancyDetected,
		TeamID:         tx.TeamID,
		RecordID:       tx.TransactionID,
		Description:    fmt.Sprintf("Discrepancy detected: %s", dtype),
		CreatedAt:      now,
	})
}

// recordAudit appends to the audit trail. Audit failures are logged, never
// surfaced; the state transition has already committed.
func (s *matchingService) recordAudit(ctx context.Context, entry domain.MatchAuditEntry) {
	if err := s.auditRepo.SaveAuditEntry(ctx, entry); err != nil {
		s.LogError(ctx, err, "Failed to write match audit entry",
			slog.String("transaction_id", entry.TransactionID),
			slog.String("action", entry.Action))
	}
}

func (s *matchingService) enqueueNotification(ctx context.Context, n domain.Notification) {
	if err := s.outbox.Enqueue(ctx, n); err != nil {
		s.LogError(ctx, err, "Failed to enqueue notification",
			slog.String("type", string(n.Type)),
			slog.String("record_id", n.RecordID))
	}
}
