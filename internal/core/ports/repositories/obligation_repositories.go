package repositories

import (
	"context"
	"time"

	"github.com/northfin/recon_backend/internal/core/domain"
	"github.com/shopspring/decimal"
)

// CandidateQuery bounds the counterpart search for one transaction.
type CandidateQuery struct {
	TeamID       string
	CurrencyCode string
	// Window is [DateFrom, DateTo]; the finder derives it from the
	// transaction date and the configured lookback.
	DateFrom time.Time
	DateTo   time.Time
	Limit    int
}

// ObligationReader defines read operations for payment obligations.
type ObligationReader interface {
	// FindObligationByID retrieves one obligation scoped to a team.
	FindObligationByID(ctx context.Context, teamID, obligationID string) (*domain.PaymentObligation, error)

	// FindOpenObligations returns obligations still able to absorb a payment
	// within the query window, ordered by creation time for deterministic
	// candidate sets. An empty result is not an error.
	FindOpenObligations(ctx context.Context, q CandidateQuery) ([]domain.PaymentObligation, error)
}

// ObligationWriter defines the single write the engine performs against the
// business domain: balance updates on confirmed matches.
type ObligationWriter interface {
	// ApplyPayment reduces the obligation balance by the absolute paid
	// amount and rolls the status forward (partial/settled).
	ApplyPayment(ctx context.Context, teamID, obligationID string, paid decimal.Decimal, actorID string, now time.Time) error
}

// ObligationRepositoryFacade combines obligation reads and writes.
type ObligationRepositoryFacade interface {
	ObligationReader
	ObligationWriter
}
