package dto

import (
	"time"

	"github.com/northfin/recon_backend/internal/core/domain"
)

// StartSessionRequest opens a reconciliation session over a date range.
type StartSessionRequest struct {
	BankAccountID string    `json:"bankAccountID" binding:"omitempty,uuid"`
	DateFrom      time.Time `json:"dateFrom" binding:"required" time_format:"2006-01-02"`
	DateTo        time.Time `json:"dateTo" binding:"required" time_format:"2006-01-02"`
}

// StartSessionResponse returns the new session id.
type StartSessionResponse struct {
	SessionID string `json:"sessionID"`
}

// CompleteSessionRequest closes a session with its final stats.
type CompleteSessionRequest struct {
	Stats domain.SessionStats `json:"stats" binding:"required"`
}
