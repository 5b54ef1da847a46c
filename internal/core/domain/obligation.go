package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ObligationStatus describes the business lifecycle of a payment obligation.
type ObligationStatus string

const (
	ObligationStatusPending   ObligationStatus = "pending"
	ObligationStatusPartial   ObligationStatus = "partial"
	ObligationStatusSettled   ObligationStatus = "settled"
	ObligationStatusLate      ObligationStatus = "late"
	ObligationStatusDefaulted ObligationStatus = "defaulted"
	ObligationStatusCancelled ObligationStatus = "cancelled"
)

// PaymentObligation is an expected payment owned by the business domain
// (an invoice, a deal installment, a scheduled payment). The engine reads it
// during candidate search and only writes back balance changes on a
// confirmed match.
type PaymentObligation struct {
	ObligationID   string           `json:"obligationID"`
	TeamID         string           `json:"teamID"`
	DealID         string           `json:"dealID,omitempty"` // owning deal, if any
	Counterparty   string           `json:"counterparty"`     // merchant / customer name
	ExpectedAmount decimal.Decimal  `json:"expectedAmount"`
	CurrencyCode   string           `json:"currencyCode"`
	DueDate        time.Time        `json:"dueDate"`
	Balance        decimal.Decimal  `json:"balance"` // remaining unpaid amount
	Status         ObligationStatus `json:"status"`

	AuditFields
}

// Open reports whether the obligation can still absorb a payment.
func (o PaymentObligation) Open() bool {
	return o.Status == ObligationStatusPending ||
		o.Status == ObligationStatusPartial ||
		o.Status == ObligationStatusLate
}
