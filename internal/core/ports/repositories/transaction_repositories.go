package repositories

import (
	"context"
	"time"

	"github.com/northfin/recon_backend/internal/core/domain"
	"github.com/shopspring/decimal"
)

// TransactionFilter narrows read queries over bank transactions. All read
// paths are side-effect-free.
type TransactionFilter struct {
	MatchStatuses    []domain.MatchStatus
	DiscrepancyTypes []domain.DiscrepancyType
	AccountID        string
	DateFrom         *time.Time
	DateTo           *time.Time
	Cursor           string // opaque pagination token
	Limit            int
}

// MatchStateTransition is the conditional write applied to a transaction's
// match state. The update commits only if the row still carries
// ExpectedStatus and ExpectedVersion; otherwise the repository returns
// apperrors.ErrConflict and the caller re-reads.
type MatchStateTransition struct {
	TransactionID string
	TeamID        string

	ExpectedStatus  domain.MatchStatus
	ExpectedVersion int64

	NewStatus       domain.MatchStatus
	ObligationID    string // empty clears the link
	Confidence      decimal.Decimal
	Rule            string
	Note            string
	DiscrepancyType domain.DiscrepancyType
	ActorID         string // empty for engine-driven transitions
	Now             time.Time
}

// BankTransactionReader defines read operations for bank transactions.
type BankTransactionReader interface {
	// FindTransactionByID retrieves one transaction scoped to a team.
	FindTransactionByID(ctx context.Context, teamID, transactionID string) (*domain.BankTransaction, error)

	// FindTransactionsByIDs retrieves several team-scoped transactions at once.
	FindTransactionsByIDs(ctx context.Context, teamID string, transactionIDs []string) ([]domain.BankTransaction, error)

	// ListTransactions returns a filtered page plus the cursor for the next
	// page (empty when exhausted).
	ListTransactions(ctx context.Context, teamID string, filter TransactionFilter) ([]domain.BankTransaction, string, error)

	// FindMatchedByObligation returns transactions already linked to an
	// obligation, used by the discrepancy classifier for duplicate and
	// split-payment detection.
	FindMatchedByObligation(ctx context.Context, teamID, obligationID string) ([]domain.BankTransaction, error)
}

// BankTransactionWriter defines the match-state write operations. The
// matching service is the only caller.
type BankTransactionWriter interface {
	// TransitionMatchState applies a compare-and-swap state update and
	// returns the updated row.
	TransitionMatchState(ctx context.Context, t MatchStateTransition) (*domain.BankTransaction, error)

	// BulkConfirm promotes auto_matched and suggested transactions to
	// manual_matched, optionally limited to ids and/or a date range, and
	// returns how many rows changed.
	BulkConfirm(ctx context.Context, teamID, userID string, transactionIDs []string, from, to *time.Time, now time.Time) (int, error)
}

// BankTransactionRepositoryFacade combines transaction reads and writes.
type BankTransactionRepositoryFacade interface {
	BankTransactionReader
	BankTransactionWriter
}
