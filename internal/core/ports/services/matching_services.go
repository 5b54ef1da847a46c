package services

import (
	"context"

	"github.com/northfin/recon_backend/internal/dto"
)

// MatchingReaderSvc defines the side-effect-free read surface.
type MatchingReaderSvc interface {
	// ListTransactions returns a filtered, cursor-paginated page.
	ListTransactions(ctx context.Context, teamID string, req dto.ListTransactionsRequest) (*dto.ListTransactionsResponse, error)

	// ListDiscrepancies returns discrepancy records filtered by type.
	ListDiscrepancies(ctx context.Context, teamID string, types []string, openOnly bool, cursor string, limit int) (*dto.ListDiscrepanciesResponse, error)
}

// MatchingEngineSvc triggers automatic evaluation.
type MatchingEngineSvc interface {
	// EvaluateMatch runs candidate search, scoring and the decision maker
	// for one unmatched transaction, committing at most one state change.
	EvaluateMatch(ctx context.Context, teamID, transactionID string) (*dto.EvaluateMatchResponse, error)
}

// MatchingActionsSvc defines the idempotent, team-scoped manual actions.
type MatchingActionsSvc interface {
	ConfirmMatch(ctx context.Context, teamID, transactionID, userID string) error
	RejectMatch(ctx context.Context, teamID, transactionID, userID string) error
	ManualMatch(ctx context.Context, teamID, transactionID, userID string, req dto.ManualMatchRequest) error
	FlagDiscrepancy(ctx context.Context, teamID, transactionID, userID string, req dto.FlagDiscrepancyRequest) error
	ResolveDiscrepancy(ctx context.Context, teamID, transactionID, userID string, req dto.ResolveDiscrepancyRequest) error
	BulkConfirmMatches(ctx context.Context, teamID, userID string, req dto.BulkConfirmRequest) (*dto.BulkConfirmResponse, error)
}

// MatchingSvcFacade combines all matching operations.
type MatchingSvcFacade interface {
	MatchingReaderSvc
	MatchingEngineSvc
	MatchingActionsSvc
}

// BatchSvcFacade drives bounded-concurrency batch evaluation.
type BatchSvcFacade interface {
	// BatchEvaluate processes a bounded id set with per-item isolation and
	// returns aggregate counts. Item failures never abort the batch.
	BatchEvaluate(ctx context.Context, teamID string, transactionIDs []string) (*dto.BatchEvaluateResponse, error)
}
