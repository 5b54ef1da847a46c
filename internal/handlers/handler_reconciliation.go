package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/northfin/recon_backend/internal/apperrors"
	portssvc "github.com/northfin/recon_backend/internal/core/ports/services"
	"github.com/northfin/recon_backend/internal/dto"
	"github.com/northfin/recon_backend/internal/middleware"
)

// reconciliationHandler handles HTTP requests for sessions, stats and batch
// evaluation.
type reconciliationHandler struct {
	sessionService portssvc.SessionSvcFacade
	batchService   portssvc.BatchSvcFacade
}

// newReconciliationHandler creates a new reconciliationHandler.
func newReconciliationHandler(ss portssvc.SessionSvcFacade, bs portssvc.BatchSvcFacade) *reconciliationHandler {
	return &reconciliationHandler{sessionService: ss, batchService: bs}
}

// registerReconciliationRoutes registers session, stats and batch routes.
func registerReconciliationRoutes(rg *gin.RouterGroup, sessionService portssvc.SessionSvcFacade, batchService portssvc.BatchSvcFacade) {
	h := newReconciliationHandler(sessionService, batchService)

	recon := rg.Group("/reconciliation")
	{
		recon.POST("/sessions", h.startSession)
		recon.GET("/sessions/:sessionID", h.getSession)
		recon.POST("/sessions/:sessionID/complete", h.completeSession)
		recon.GET("/stats", h.getStats)
		recon.POST("/batch-evaluate", h.batchEvaluate)
	}
}

// startSession godoc
// @Summary Start a reconciliation session
// @Description Opens an audit session over a date range, optionally scoped to one bank account
// @Tags reconciliation
// @Accept json
// @Produce json
// @Param request body dto.StartSessionRequest true "Session range"
// @Success 201 {object} dto.StartSessionResponse
// @Failure 400 {object} map[string]string "Invalid range"
// @Security BearerAuth
// @Router /reconciliation/sessions [post]
func (h *reconciliationHandler) startSession(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	teamID, userID, ok := identity(c)
	if !ok {
		return
	}

	var req dto.StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}

	resp, err := h.sessionService.StartSession(c.Request.Context(), teamID, userID, req)
	if err != nil {
		if errors.Is(err, apperrors.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		logger.Error("Failed to start reconciliation session", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start session"})
		return
	}

	logger.Info("Reconciliation session started", slog.String("session_id", resp.SessionID))
	c.JSON(http.StatusCreated, resp)
}

// getSession godoc
// @Summary Get a reconciliation session
// @Tags reconciliation
// @Produce json
// @Param sessionID path string true "Session ID"
// @Success 200 {object} domain.ReconciliationSession
// @Failure 404 {object} map[string]string "Session not found"
// @Security BearerAuth
// @Router /reconciliation/sessions/{sessionID} [get]
func (h *reconciliationHandler) getSession(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	teamID, _, ok := identity(c)
	if !ok {
		return
	}
	sessionID := c.Param("sessionID")

	session, err := h.sessionService.GetSession(c.Request.Context(), teamID, sessionID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
			return
		}
		logger.Error("Failed to get session", slog.String("session_id", sessionID), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve session"})
		return
	}
	c.JSON(http.StatusOK, session)
}

// completeSession godoc
// @Summary Complete a reconciliation session
// @Description Closes a session with its final stats; completing twice returns 409
// @Tags reconciliation
// @Accept json
// @Produce json
// @Param sessionID path string true "Session ID"
// @Param request body dto.CompleteSessionRequest true "Final stats"
// @Success 204 "Completed"
// @Failure 404 {object} map[string]string "Session not found"
// @Failure 409 {object} map[string]string "Session already completed"
// @Security BearerAuth
// @Router /reconciliation/sessions/{sessionID}/complete [post]
func (h *reconciliationHandler) completeSession(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	teamID, _, ok := identity(c)
	if !ok {
		return
	}
	sessionID := c.Param("sessionID")

	var req dto.CompleteSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}

	if err := h.sessionService.CompleteSession(c.Request.Context(), teamID, sessionID, req); err != nil {
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		case errors.Is(err, apperrors.ErrConflict):
			c.JSON(http.StatusConflict, gin.H{"error": "Session already completed"})
		default:
			logger.Error("Failed to complete session", slog.String("session_id", sessionID), slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to complete session"})
		}
		return
	}
	c.Status(http.StatusNoContent)
}

// getStats godoc
// @Summary Get reconciliation stats
// @Description Aggregates current match-status counts for a date range without touching session state
// @Tags reconciliation
// @Produce json
// @Param dateFrom query string true "Start date (2006-01-02)"
// @Param dateTo query string true "End date (2006-01-02)"
// @Param bankAccountID query string false "Bank account scope"
// @Success 200 {object} domain.SessionStats
// @Failure 400 {object} map[string]string "Invalid range"
// @Security BearerAuth
// @Router /reconciliation/stats [get]
func (h *reconciliationHandler) getStats(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	teamID, _, ok := identity(c)
	if !ok {
		return
	}

	dateFrom, err := time.Parse("2006-01-02", c.Query("dateFrom"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "dateFrom must be formatted 2006-01-02"})
		return
	}
	dateTo, err := time.Parse("2006-01-02", c.Query("dateTo"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "dateTo must be formatted 2006-01-02"})
		return
	}
	bankAccountID := c.Query("bankAccountID")

	stats, err := h.sessionService.GetReconciliationStats(c.Request.Context(), teamID, bankAccountID, dto.StartSessionRequest{
		BankAccountID: bankAccountID,
		DateFrom:      dateFrom,
		DateTo:        dateTo,
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		logger.Error("Failed to aggregate reconciliation stats", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to aggregate stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// batchEvaluate godoc
// @Summary Batch evaluate transactions
// @Description Runs the matching engine over a bounded id set with per-item isolation
// @Tags reconciliation
// @Accept json
// @Produce json
// @Param request body dto.BatchEvaluateRequest true "Transaction ids"
// @Success 200 {object} dto.BatchEvaluateResponse
// @Failure 400 {object} map[string]string "Invalid id set"
// @Security BearerAuth
// @Router /reconciliation/batch-evaluate [post]
func (h *reconciliationHandler) batchEvaluate(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	teamID, _, ok := identity(c)
	if !ok {
		return
	}

	var req dto.BatchEvaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}

	resp, err := h.batchService.BatchEvaluate(c.Request.Context(), teamID, req.TransactionIDs)
	if err != nil {
		if errors.Is(err, apperrors.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		logger.Error("Batch evaluation failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Batch evaluation failed"})
		return
	}

	logger.Info("Batch evaluation completed",
		slog.Int("processed", resp.Processed),
		slog.Int("auto_matched", resp.AutoMatched),
		slog.Int("errors", resp.Errors))
	c.JSON(http.StatusOK, resp)
}
