package repositories

import (
	"context"
	"time"

	"github.com/northfin/recon_backend/internal/core/domain"
)

// SuggestionRepositoryFacade persists deferred match decisions.
type SuggestionRepositoryFacade interface {
	// SaveSuggestion stores a new pending suggestion, replacing any previous
	// pending suggestion for the same transaction.
	SaveSuggestion(ctx context.Context, s domain.MatchSuggestion) error

	// FindPendingByTransaction returns the open suggestion for a
	// transaction, or apperrors.ErrNotFound.
	FindPendingByTransaction(ctx context.Context, teamID, transactionID string) (*domain.MatchSuggestion, error)

	// ResolveSuggestion marks a pending suggestion confirmed or rejected.
	ResolveSuggestion(ctx context.Context, teamID, suggestionID string, resolution domain.SuggestionResolution, userID string, now time.Time) error
}

// DiscrepancyRepositoryFacade persists classified anomalies.
type DiscrepancyRepositoryFacade interface {
	// SaveDiscrepancy stores a new discrepancy record.
	SaveDiscrepancy(ctx context.Context, rec domain.DiscrepancyRecord) error

	// FindOpenByTransaction returns the unresolved record for a transaction,
	// or apperrors.ErrNotFound.
	FindOpenByTransaction(ctx context.Context, teamID, transactionID string) (*domain.DiscrepancyRecord, error)

	// ResolveDiscrepancy closes a record with the given resolution.
	ResolveDiscrepancy(ctx context.Context, teamID, recordID string, resolution domain.DiscrepancyResolution, obligationID, note, userID string, now time.Time) error

	// ListDiscrepancies returns records filtered by type and resolution
	// state with cursor pagination.
	ListDiscrepancies(ctx context.Context, teamID string, types []domain.DiscrepancyType, openOnly bool, cursor string, limit int) ([]domain.DiscrepancyRecord, string, error)
}

// MatchAuditWriter appends to the immutable match audit trail.
type MatchAuditWriter interface {
	// SaveAuditEntry appends one transition record.
	SaveAuditEntry(ctx context.Context, entry domain.MatchAuditEntry) error
}
