package domain

import "time"

// DiscrepancyType classifies why a matched transaction's amount disagrees
// with its obligation.
type DiscrepancyType string

const (
	DiscrepancyNSF            DiscrepancyType = "nsf"
	DiscrepancyPartialPayment DiscrepancyType = "partial_payment"
	DiscrepancyOverpayment    DiscrepancyType = "overpayment"
	DiscrepancyUnrecognized   DiscrepancyType = "unrecognized"
	DiscrepancyBankFee        DiscrepancyType = "bank_fee"
	DiscrepancyDuplicate      DiscrepancyType = "duplicate"
	DiscrepancySplitPayment   DiscrepancyType = "split_payment"
)

// IsValid reports whether t is a member of the closed discrepancy-type set.
func (t DiscrepancyType) IsValid() bool {
	switch t {
	case DiscrepancyNSF, DiscrepancyPartialPayment, DiscrepancyOverpayment,
		DiscrepancyUnrecognized, DiscrepancyBankFee, DiscrepancyDuplicate,
		DiscrepancySplitPayment:
		return true
	}
	return false
}

// DiscrepancyResolution is how a flagged discrepancy was settled.
type DiscrepancyResolution string

const (
	// DiscrepancyResolutionExcluded ignores the transaction for reconciliation.
	DiscrepancyResolutionExcluded DiscrepancyResolution = "excluded"
	// DiscrepancyResolutionManualMatched accepts the transaction against an
	// obligation despite the amount mismatch.
	DiscrepancyResolutionManualMatched DiscrepancyResolution = "manual_matched"
)

// IsValid reports whether r is a known resolution.
func (r DiscrepancyResolution) IsValid() bool {
	return r == DiscrepancyResolutionExcluded || r == DiscrepancyResolutionManualMatched
}

// DiscrepancyRecord ties a classified anomaly to a transaction. Writing a
// record never changes the transaction's matchStatus by itself.
type DiscrepancyRecord struct {
	RecordID      string                `json:"recordID"`
	TeamID        string                `json:"teamID"`
	TransactionID string                `json:"transactionID"`
	Type          DiscrepancyType       `json:"type"`
	Resolution    DiscrepancyResolution `json:"resolution,omitempty"` // empty while open
	ObligationID  string                `json:"obligationID,omitempty"`
	Note          string                `json:"note,omitempty"`
	ResolvedAt    *time.Time            `json:"resolvedAt,omitempty"`
	ResolvedBy    string                `json:"resolvedBy,omitempty"`

	AuditFields
}
