package dto

import (
	"time"

	"github.com/northfin/recon_backend/internal/core/domain"
)

// SuggestionSummary is the caller-facing view of the best suggestion
// produced by one evaluation.
type SuggestionSummary struct {
	ObligationID    string  `json:"obligationID"`
	ConfidenceScore float64 `json:"confidenceScore"`
	Rule            string  `json:"rule,omitempty"`
}

// EvaluateMatchResponse reports the outcome of evaluating one transaction.
type EvaluateMatchResponse struct {
	Action     string             `json:"action"` // auto_matched | suggestion_created | no_match_yet
	Suggestion *SuggestionSummary `json:"suggestion,omitempty"`
}

// BatchEvaluateRequest triggers matching over a bounded, caller-determined
// set of transactions.
type BatchEvaluateRequest struct {
	TransactionIDs []string `json:"transactionIDs" binding:"required,min=1,max=500,dive,uuid"`
}

// BatchEvaluateResponse aggregates one batch run.
type BatchEvaluateResponse struct {
	Processed   int `json:"processed"`
	AutoMatched int `json:"autoMatched"`
	Suggestions int `json:"suggestions"`
	NoMatches   int `json:"noMatches"`
	Errors      int `json:"errors"`
}

// ManualMatchRequest links a transaction to an obligation by user decision.
type ManualMatchRequest struct {
	ObligationID string `json:"obligationID" binding:"required,uuid"`
	Note         string `json:"note" binding:"max=2000"`
}

// FlagDiscrepancyRequest marks a transaction as anomalous.
type FlagDiscrepancyRequest struct {
	DiscrepancyType string `json:"discrepancyType" binding:"required,discrepancytype"`
	Note            string `json:"note" binding:"max=2000"`
}

// ResolveDiscrepancyRequest settles a flagged transaction.
type ResolveDiscrepancyRequest struct {
	Resolution   string `json:"resolution" binding:"required,oneof=excluded manual_matched"`
	ObligationID string `json:"obligationID" binding:"omitempty,uuid"`
	Note         string `json:"note" binding:"max=2000"`
}

// BulkConfirmRequest confirms auto-matched/suggested transactions either by
// explicit ids or by date range.
type BulkConfirmRequest struct {
	TransactionIDs []string   `json:"transactionIDs" binding:"omitempty,max=500,dive,uuid"`
	DateFrom       *time.Time `json:"dateFrom"`
	DateTo         *time.Time `json:"dateTo"`
}

// BulkConfirmResponse reports how many transactions were confirmed.
type BulkConfirmResponse struct {
	Confirmed int `json:"confirmed"`
}

// ListTransactionsRequest is the filter surface of the read path.
type ListTransactionsRequest struct {
	MatchStatuses    []string   `form:"matchStatus"`
	DiscrepancyTypes []string   `form:"discrepancyType"`
	AccountID        string     `form:"accountID"`
	DateFrom         *time.Time `form:"dateFrom" time_format:"2006-01-02"`
	DateTo           *time.Time `form:"dateTo" time_format:"2006-01-02"`
	Cursor           string     `form:"cursor"`
	Limit            int        `form:"limit,default=25" binding:"omitempty,min=1,max=100"`
}

// ListTransactionsResponse is a cursor page of transactions.
type ListTransactionsResponse struct {
	Transactions []domain.BankTransaction `json:"transactions"`
	NextCursor   string                   `json:"nextCursor,omitempty"`
}

// ListDiscrepanciesResponse is a cursor page of discrepancy records.
type ListDiscrepanciesResponse struct {
	Discrepancies []domain.DiscrepancyRecord `json:"discrepancies"`
	NextCursor    string                     `json:"nextCursor,omitempty"`
}
