package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/northfin/recon_backend/internal/apperrors"
	portssvc "github.com/northfin/recon_backend/internal/core/ports/services"
	"github.com/northfin/recon_backend/internal/dto"
	"github.com/northfin/recon_backend/internal/middleware"
)

// matchingHandler handles HTTP requests for transaction matching.
type matchingHandler struct {
	matchingService portssvc.MatchingSvcFacade
}

// newMatchingHandler creates a new matchingHandler.
func newMatchingHandler(ms portssvc.MatchingSvcFacade) *matchingHandler {
	return &matchingHandler{matchingService: ms}
}

// RegisterMatchingRoutes registers transaction and discrepancy routes.
func RegisterMatchingRoutes(rg *gin.RouterGroup, matchingService portssvc.MatchingSvcFacade) {
	h := newMatchingHandler(matchingService)

	transactions := rg.Group("/transactions")
	{
		transactions.GET("", h.listTransactions)
		transactions.POST("/bulk-confirm", h.bulkConfirm)
		transactions.POST("/:transactionID/evaluate", h.evaluateMatch)
		transactions.POST("/:transactionID/confirm", h.confirmMatch)
		transactions.POST("/:transactionID/reject", h.rejectMatch)
		transactions.POST("/:transactionID/match", h.manualMatch)
		transactions.POST("/:transactionID/flag", h.flagDiscrepancy)
		transactions.POST("/:transactionID/resolve", h.resolveDiscrepancy)
	}

	discrepancies := rg.Group("/discrepancies")
	{
		discrepancies.GET("", h.listDiscrepancies)
	}
}

// identity pulls the team and user scope every matching action requires.
func identity(c *gin.Context) (teamID, userID string, ok bool) {
	teamID, ok = middleware.GetTeamIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return "", "", false
	}
	userID, ok = middleware.GetUserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return "", "", false
	}
	return teamID, userID, true
}

// listTransactions godoc
// @Summary List bank transactions
// @Description Returns a cursor page of transactions filtered by match status, discrepancy type, account and date range
// @Tags transactions
// @Produce json
// @Param matchStatus query []string false "Match statuses"
// @Param discrepancyType query []string false "Discrepancy types"
// @Param cursor query string false "Pagination cursor"
// @Success 200 {object} dto.ListTransactionsResponse
// @Failure 400 {object} map[string]string "Invalid filter"
// @Security BearerAuth
// @Router /transactions [get]
func (h *matchingHandler) listTransactions(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	teamID, _, ok := identity(c)
	if !ok {
		return
	}

	var req dto.ListTransactionsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		logger.Warn("Failed to bind query for ListTransactions", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}

	resp, err := h.matchingService.ListTransactions(c.Request.Context(), teamID, req)
	if err != nil {
		if errors.Is(err, apperrors.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		logger.Error("Failed to list transactions", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list transactions"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// listDiscrepancies godoc
// @Summary List discrepancy records
// @Description Returns a cursor page of discrepancy records, optionally limited to open ones
// @Tags discrepancies
// @Produce json
// @Param type query []string false "Discrepancy types"
// @Param open query bool false "Only unresolved records"
// @Success 200 {object} dto.ListDiscrepanciesResponse
// @Failure 400 {object} map[string]string "Invalid filter"
// @Security BearerAuth
// @Router /discrepancies [get]
func (h *matchingHandler) listDiscrepancies(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	teamID, _, ok := identity(c)
	if !ok {
		return
	}

	var req struct {
		Types    []string `form:"type"`
		OpenOnly bool     `form:"open"`
		Cursor   string   `form:"cursor"`
		Limit    int      `form:"limit,default=25" binding:"omitempty,min=1,max=100"`
	}
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}

	resp, err := h.matchingService.ListDiscrepancies(c.Request.Context(), teamID, req.Types, req.OpenOnly, req.Cursor, req.Limit)
	if err != nil {
		if errors.Is(err, apperrors.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		logger.Error("Failed to list discrepancies", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list discrepancies"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// evaluateMatch godoc
// @Summary Evaluate one transaction
// @Description Runs candidate search, scoring and the match decision for one unmatched transaction
// @Tags transactions
// @Produce json
// @Param transactionID path string true "Transaction ID"
// @Success 200 {object} dto.EvaluateMatchResponse
// @Failure 404 {object} map[string]string "Transaction not found"
// @Security BearerAuth
// @Router /transactions/{transactionID}/evaluate [post]
func (h *matchingHandler) evaluateMatch(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	teamID, _, ok := identity(c)
	if !ok {
		return
	}
	transactionID := c.Param("transactionID")

	resp, err := h.matchingService.EvaluateMatch(c.Request.Context(), teamID, transactionID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Transaction not found"})
			return
		}
		logger.Error("Failed to evaluate match", slog.String("transaction_id", transactionID), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to evaluate match"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// confirmMatch godoc
// @Summary Confirm a match
// @Description Promotes an auto-matched or suggested transaction to manual_matched
// @Tags transactions
// @Produce json
// @Param transactionID path string true "Transaction ID"
// @Success 204 "Confirmed"
// @Failure 404 {object} map[string]string "Transaction not found"
// @Failure 409 {object} map[string]string "Transaction not confirmable"
// @Security BearerAuth
// @Router /transactions/{transactionID}/confirm [post]
func (h *matchingHandler) confirmMatch(c *gin.Context) {
	h.runAction(c, "confirm", func(teamID, transactionID, userID string) error {
		return h.matchingService.ConfirmMatch(c.Request.Context(), teamID, transactionID, userID)
	})
}

// rejectMatch godoc
// @Summary Reject a match
// @Description Returns an auto-matched or suggested transaction to unmatched, reversing any applied payment
// @Tags transactions
// @Produce json
// @Param transactionID path string true "Transaction ID"
// @Success 204 "Rejected"
// @Failure 404 {object} map[string]string "Transaction not found"
// @Failure 409 {object} map[string]string "Transaction not rejectable"
// @Security BearerAuth
// @Router /transactions/{transactionID}/reject [post]
func (h *matchingHandler) rejectMatch(c *gin.Context) {
	h.runAction(c, "reject", func(teamID, transactionID, userID string) error {
		return h.matchingService.RejectMatch(c.Request.Context(), teamID, transactionID, userID)
	})
}

// runAction executes one bodyless transaction action with shared error mapping.
func (h *matchingHandler) runAction(c *gin.Context, name string, fn func(teamID, transactionID, userID string) error) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	teamID, userID, ok := identity(c)
	if !ok {
		return
	}
	transactionID := c.Param("transactionID")

	if err := fn(teamID, transactionID, userID); err != nil {
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Transaction not found"})
		case errors.Is(err, apperrors.ErrConflict):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, apperrors.ErrValidation):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			logger.Error("Transaction action failed",
				slog.String("action", name),
				slog.String("transaction_id", transactionID),
				slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to " + name + " match"})
		}
		return
	}
	c.Status(http.StatusNoContent)
}

// manualMatch godoc
// @Summary Manually match a transaction
// @Description Links a transaction to an obligation by explicit user decision
// @Tags transactions
// @Accept json
// @Produce json
// @Param transactionID path string true "Transaction ID"
// @Param request body dto.ManualMatchRequest true "Match details"
// @Success 204 "Matched"
// @Failure 400 {object} map[string]string "Invalid input"
// @Failure 404 {object} map[string]string "Transaction or obligation not found"
// @Failure 409 {object} map[string]string "Transaction changed concurrently"
// @Security BearerAuth
// @Router /transactions/{transactionID}/match [post]
func (h *matchingHandler) manualMatch(c *gin.Context) {
	var req dto.ManualMatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}
	h.runAction(c, "manually match", func(teamID, transactionID, userID string) error {
		return h.matchingService.ManualMatch(c.Request.Context(), teamID, transactionID, userID, req)
	})
}

// flagDiscrepancy godoc
// @Summary Flag a transaction
// @Description Marks a transaction as a discrepancy of the given type
// @Tags transactions
// @Accept json
// @Produce json
// @Param transactionID path string true "Transaction ID"
// @Param request body dto.FlagDiscrepancyRequest true "Flag details"
// @Success 204 "Flagged"
// @Failure 400 {object} map[string]string "Invalid discrepancy type"
// @Failure 404 {object} map[string]string "Transaction not found"
// @Security BearerAuth
// @Router /transactions/{transactionID}/flag [post]
func (h *matchingHandler) flagDiscrepancy(c *gin.Context) {
	var req dto.FlagDiscrepancyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}
	h.runAction(c, "flag", func(teamID, transactionID, userID string) error {
		return h.matchingService.FlagDiscrepancy(c.Request.Context(), teamID, transactionID, userID, req)
	})
}

// resolveDiscrepancy godoc
// @Summary Resolve a flagged transaction
// @Description Settles a flagged transaction by excluding it or matching it despite the mismatch
// @Tags transactions
// @Accept json
// @Produce json
// @Param transactionID path string true "Transaction ID"
// @Param request body dto.ResolveDiscrepancyRequest true "Resolution details"
// @Success 204 "Resolved"
// @Failure 400 {object} map[string]string "Invalid resolution"
// @Failure 404 {object} map[string]string "Transaction not found"
// @Failure 409 {object} map[string]string "Transaction is not flagged"
// @Security BearerAuth
// @Router /transactions/{transactionID}/resolve [post]
func (h *matchingHandler) resolveDiscrepancy(c *gin.Context) {
	var req dto.ResolveDiscrepancyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}
	h.runAction(c, "resolve", func(teamID, transactionID, userID string) error {
		return h.matchingService.ResolveDiscrepancy(c.Request.Context(), teamID, transactionID, userID, req)
	})
}

// bulkConfirm godoc
// @Summary Bulk confirm matches
// @Description Promotes auto-matched and suggested transactions to manual_matched by id set or date range
// @Tags transactions
// @Accept json
// @Produce json
// @Param request body dto.BulkConfirmRequest true "Id set or date range"
// @Success 200 {object} dto.BulkConfirmResponse
// @Failure 400 {object} map[string]string "Neither ids nor a full date range given"
// @Security BearerAuth
// @Router /transactions/bulk-confirm [post]
func (h *matchingHandler) bulkConfirm(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	teamID, userID, ok := identity(c)
	if !ok {
		return
	}

	var req dto.BulkConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}

	resp, err := h.matchingService.BulkConfirmMatches(c.Request.Context(), teamID, userID, req)
	if err != nil {
		if errors.Is(err, apperrors.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		logger.Error("Failed to bulk confirm matches", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to bulk confirm matches"})
		return
	}

	logger.Info("Bulk confirm completed", slog.Int("confirmed", resp.Confirmed))
	c.JSON(http.StatusOK, resp)
}
