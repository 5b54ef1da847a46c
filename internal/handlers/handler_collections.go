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

// collectionsHandler handles HTTP requests for collections configuration,
// cases and the escalation hooks.
type collectionsHandler struct {
	collectionsService portssvc.CollectionsSvcFacade
	escalationService  portssvc.EscalationSvcFacade
}

// newCollectionsHandler creates a new collectionsHandler.
func newCollectionsHandler(cs portssvc.CollectionsSvcFacade, es portssvc.EscalationSvcFacade) *collectionsHandler {
	return &collectionsHandler{collectionsService: cs, escalationService: es}
}

// registerCollectionsRoutes registers stage, rule, case and escalation routes.
func registerCollectionsRoutes(rg *gin.RouterGroup, collectionsService portssvc.CollectionsSvcFacade, escalationService portssvc.EscalationSvcFacade) {
	h := newCollectionsHandler(collectionsService, escalationService)

	collections := rg.Group("/collections")
	{
		collections.GET("/stages", h.listStages)
		collections.POST("/stages", h.upsertStage)
		collections.POST("/stages/seed", h.seedDefaultStages)
		collections.DELETE("/stages/:stageID", h.deleteStage)

		collections.GET("/rules", h.listRules)
		collections.POST("/rules", h.upsertRule)
		collections.DELETE("/rules/:ruleID", h.deleteRule)

		collections.GET("/cases", h.listCases)
		collections.GET("/candidates", h.listCandidates)
		collections.GET("/cases/stats", h.getCaseStats)
		collections.GET("/cases/:caseID", h.getCase)
		collections.POST("/cases", h.openCase)

		collections.POST("/events", h.handleEscalationEvent)
		collections.POST("/sweep", h.runTimeBasedSweep)
	}
}

// listStages godoc
// @Summary List collection stages
// @Tags collections
// @Produce json
// @Success 200 {array} domain.CollectionStage
// @Security BearerAuth
// @Router /collections/stages [get]
func (h *collectionsHandler) listStages(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	teamID, _, ok := identity(c)
	if !ok {
		return
	}

	stages, err := h.collectionsService.ListStages(c.Request.Context(), teamID)
	if err != nil {
		logger.Error("Failed to list collection stages", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list stages"})
		return
	}
	c.JSON(http.StatusOK, stages)
}

// upsertStage godoc
// @Summary Create or update a collection stage
// @Tags collections
// @Accept json
// @Produce json
// @Param request body dto.UpsertStageRequest true "Stage definition"
// @Success 200 {object} domain.CollectionStage
// @Failure 400 {object} map[string]string "Invalid stage"
// @Failure 404 {object} map[string]string "Stage not found"
// @Security BearerAuth
// @Router /collections/stages [post]
func (h *collectionsHandler) upsertStage(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	teamID, userID, ok := identity(c)
	if !ok {
		return
	}

	var req dto.UpsertStageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}

	stage, err := h.collectionsService.UpsertStage(c.Request.Context(), teamID, userID, req)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrValidation):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, apperrors.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Stage not found"})
		case errors.Is(err, apperrors.ErrDuplicate):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			logger.Error("Failed to upsert collection stage", slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save stage"})
		}
		return
	}
	c.JSON(http.StatusOK, stage)
}

// seedDefaultStages godoc
// @Summary Install the default collections pipeline
// @Description Creates the standard stage set for teams without any stage configuration
// @Tags collections
// @Produce json
// @Success 204 "Seeded"
// @Failure 409 {object} map[string]string "Stages already configured"
// @Security BearerAuth
// @Router /collections/stages/seed [post]
func (h *collectionsHandler) seedDefaultStages(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	teamID, userID, ok := identity(c)
	if !ok {
		return
	}

	if err := h.collectionsService.SeedDefaultStages(c.Request.Context(), teamID, userID); err != nil {
		if errors.Is(err, apperrors.ErrDuplicate) {
			c.JSON(http.StatusConflict, gin.H{"error": "Stages already configured"})
			return
		}
		logger.Error("Failed to seed default stages", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to seed stages"})
		return
	}

	logger.Info("Default collection stages seeded")
	c.Status(http.StatusNoContent)
}

// deleteStage godoc
// @Summary Delete a collection stage
// @Description Removes a stage definition; stages referenced by cases or rules are protected
// @Tags collections
// @Produce json
// @Param stageID path string true "Stage ID"
// @Success 204 "Deleted"
// @Failure 404 {object} map[string]string "Stage not found"
// @Failure 409 {object} map[string]string "Stage still in use"
// @Security BearerAuth
// @Router /collections/stages/{stageID} [delete]
func (h *collectionsHandler) deleteStage(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	teamID, _, ok := identity(c)
	if !ok {
		return
	}
	stageID := c.Param("stageID")

	if err := h.collectionsService.DeleteStage(c.Request.Context(), teamID, stageID); err != nil {
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Stage not found"})
		case errors.Is(err, apperrors.ErrConflict):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			logger.Error("Failed to delete collection stage", slog.String("stage_id", stageID), slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete stage"})
		}
		return
	}
	c.Status(http.StatusNoContent)
}

// listRules godoc
// @Summary List escalation rules
// @Tags collections
// @Produce json
// @Success 200 {array} domain.EscalationRule
// @Security BearerAuth
// @Router /collections/rules [get]
func (h *collectionsHandler) listRules(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	teamID, _, ok := identity(c)
	if !ok {
		return
	}

	rules, err := h.collectionsService.ListRules(c.Request.Context(), teamID)
	if err != nil {
		logger.Error("Failed to list escalation rules", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list rules"})
		return
	}
	c.JSON(http.StatusOK, rules)
}

// upsertRule godoc
// @Summary Create or update an escalation rule
// @Description Validates the condition payload against the trigger type before writing
// @Tags collections
// @Accept json
// @Produce json
// @Param request body dto.UpsertRuleRequest true "Rule definition"
// @Success 200 {object} domain.EscalationRule
// @Failure 400 {object} map[string]string "Invalid rule"
// @Failure 404 {object} map[string]string "Stage or rule not found"
// @Security BearerAuth
// @Router /collections/rules [post]
func (h *collectionsHandler) upsertRule(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	teamID, userID, ok := identity(c)
	if !ok {
		return
	}

	var req dto.UpsertRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}

	rule, err := h.collectionsService.UpsertRule(c.Request.Context(), teamID, userID, req)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrValidation):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, apperrors.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		default:
			logger.Error("Failed to upsert escalation rule", slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save rule"})
		}
		return
	}
	c.JSON(http.StatusOK, rule)
}

// deleteRule godoc
// @Summary Delete an escalation rule
// @Tags collections
// @Produce json
// @Param ruleID path string true "Rule ID"
// @Success 204 "Deleted"
// @Failure 404 {object} map[string]string "Rule not found"
// @Security BearerAuth
// @Router /collections/rules/{ruleID} [delete]
func (h *collectionsHandler) deleteRule(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	teamID, _, ok := identity(c)
	if !ok {
		return
	}
	ruleID := c.Param("ruleID")

	if err := h.collectionsService.DeleteRule(c.Request.Context(), teamID, ruleID); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Rule not found"})
			return
		}
		logger.Error("Failed to delete escalation rule", slog.String("rule_id", ruleID), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete rule"})
		return
	}
	c.Status(http.StatusNoContent)
}

// openCase godoc
// @Summary Open a collection case
// @Description Puts a deal into collections; a deal can have at most one active case
// @Tags collections
// @Accept json
// @Produce json
// @Param request body dto.OpenCaseRequest true "Case details"
// @Success 201 {object} domain.CollectionCase
// @Failure 400 {object} map[string]string "Invalid input"
// @Failure 409 {object} map[string]string "Deal already has an active case"
// @Security BearerAuth
// @Router /collections/cases [post]
func (h *collectionsHandler) openCase(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	teamID, userID, ok := identity(c)
	if !ok {
		return
	}

	var req dto.OpenCaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}

	opened, err := h.collectionsService.OpenCase(c.Request.Context(), teamID, userID, req)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrDuplicate):
			c.JSON(http.StatusConflict, gin.H{"error": "Deal already has an active case"})
		case errors.Is(err, apperrors.ErrValidation):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, apperrors.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		default:
			logger.Error("Failed to open collection case", slog.String("deal_id", req.DealID), slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to open case"})
		}
		return
	}

	logger.Info("Collection case opened", slog.String("case_id", opened.CaseID), slog.String("deal_id", opened.DealID))
	c.JSON(http.StatusCreated, opened)
}

// getCase godoc
// @Summary Get a collection case
// @Tags collections
// @Produce json
// @Param caseID path string true "Case ID"
// @Success 200 {object} domain.CollectionCase
// @Failure 404 {object} map[string]string "Case not found"
// @Security BearerAuth
// @Router /collections/cases/{caseID} [get]
func (h *collectionsHandler) getCase(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	teamID, _, ok := identity(c)
	if !ok {
		return
	}
	caseID := c.Param("caseID")

	found, err := h.collectionsService.GetCase(c.Request.Context(), teamID, caseID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Case not found"})
			return
		}
		logger.Error("Failed to get collection case", slog.String("case_id", caseID), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve case"})
		return
	}
	c.JSON(http.StatusOK, found)
}

// listCases godoc
// @Summary List collection cases
// @Tags collections
// @Produce json
// @Param status query string false "active or resolved"
// @Param cursor query string false "Pagination cursor"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string "Invalid filter"
// @Security BearerAuth
// @Router /collections/cases [get]
func (h *collectionsHandler) listCases(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	teamID, _, ok := identity(c)
	if !ok {
		return
	}

	var req dto.ListCasesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}

	cases, nextCursor, err := h.collectionsService.ListCases(c.Request.Context(), teamID, req)
	if err != nil {
		if errors.Is(err, apperrors.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		logger.Error("Failed to list collection cases", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list cases"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cases": cases, "nextCursor": nextCursor})
}

// listCandidates godoc
// @Summary List collections intake candidates
// @Description Deals with past-due open obligations and no active case, oldest debt first
// @Tags collections
// @Produce json
// @Param limit query int false "Maximum candidates to return"
// @Success 200 {array} repositories.CollectionCandidate
// @Security BearerAuth
// @Router /collections/candidates [get]
func (h *collectionsHandler) listCandidates(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	teamID, _, ok := identity(c)
	if !ok {
		return
	}

	var req struct {
		Limit int `form:"limit,default=50" binding:"omitempty,min=1,max=200"`
	}
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}

	candidates, err := h.collectionsService.ListCandidates(c.Request.Context(), teamID, req.Limit)
	if err != nil {
		logger.Error("Failed to list collection candidates", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list candidates"})
		return
	}
	c.JSON(http.StatusOK, candidates)
}

// getCaseStats godoc
// @Summary Get collections stats
// @Tags collections
// @Produce json
// @Success 200 {object} repositories.CaseStats
// @Security BearerAuth
// @Router /collections/cases/stats [get]
func (h *collectionsHandler) getCaseStats(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	teamID, _, ok := identity(c)
	if !ok {
		return
	}

	stats, err := h.collectionsService.GetCaseStats(c.Request.Context(), teamID)
	if err != nil {
		logger.Error("Failed to aggregate case stats", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to aggregate case stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// handleEscalationEvent godoc
// @Summary Report a business event
// @Description Hook for payment processing to report deal events; fires the first matching event rule
// @Tags collections
// @Accept json
// @Produce json
// @Param request body dto.EscalationEventRequest true "Event details"
// @Success 200 {object} dto.EscalationResult
// @Failure 400 {object} map[string]string "Invalid event"
// @Security BearerAuth
// @Router /collections/events [post]
func (h *collectionsHandler) handleEscalationEvent(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	teamID, _, ok := identity(c)
	if !ok {
		return
	}

	var req dto.EscalationEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}

	result, err := h.escalationService.CheckEventBasedEscalation(c.Request.Context(), teamID, req.DealID, req.EventType)
	if err != nil {
		logger.Error("Failed to process escalation event",
			slog.String("deal_id", req.DealID),
			slog.String("event_type", req.EventType),
			slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process event"})
		return
	}
	c.JSON(http.StatusOK, result)
}

// runTimeBasedSweep godoc
// @Summary Run the time-based escalation sweep
// @Description Evaluates daysInStage rules over every active case of the team
// @Tags collections
// @Produce json
// @Success 200 {object} map[string]int
// @Security BearerAuth
// @Router /collections/sweep [post]
func (h *collectionsHandler) runTimeBasedSweep(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	teamID, _, ok := identity(c)
	if !ok {
		return
	}

	escalated, err := h.escalationService.RunTimeBasedSweep(c.Request.Context(), teamID)
	if err != nil {
		logger.Error("Time-based sweep failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Sweep failed"})
		return
	}

	logger.Info("Time-based sweep completed", slog.Int("escalated", escalated))
	c.JSON(http.StatusOK, gin.H{"escalated": escalated})
}
