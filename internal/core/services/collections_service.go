package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/northfin/recon_backend/internal/apperrors"
	"github.com/northfin/recon_backend/internal/core/domain"
	portsrepo "github.com/northfin/recon_backend/internal/core/ports/repositories"
	portssvc "github.com/northfin/recon_backend/internal/core/ports/services"
	"github.com/northfin/recon_backend/internal/dto"
	"github.com/northfin/recon_backend/internal/utils/teamcache"
)

// defaultStages is the pipeline seeded for teams that have not customized
// their collections process.
var defaultStages = []struct {
	Name     string
	Slug     string
	Terminal bool
}{
	{"Early Contact", "early-contact", false},
	{"Promise to Pay", "promise-to-pay", false},
	{"Payment Plan", "payment-plan", false},
	{"Escalated", "escalated", false},
	{"Legal Review", "legal-review", false},
	{"Agency Referral", "agency-referral", false},
	{"Resolved", "resolved", true},
}

// collectionsService manages stage and rule configuration plus the case
// lifecycle.
type collectionsService struct {
	BaseService
	stageRepo portsrepo.CollectionStageRepository
	ruleRepo  portsrepo.EscalationRuleRepository
	caseRepo  portsrepo.CollectionCaseRepository

	cache *teamcache.Cache
	now   func() time.Time
}

// CollectionsOption is a functional option for configuring the collections service
type CollectionsOption func(*collectionsService)

// WithCollectionsClock overrides the service clock, used by tests.
func WithCollectionsClock(now func() time.Time) CollectionsOption {
	return func(s *collectionsService) {
		s.now = now
	}
}

// WithCollectionsCache injects the stage cache shared with the escalation
// service so configuration writes invalidate it.
func WithCollectionsCache(cache *teamcache.Cache) CollectionsOption {
	return func(s *collectionsService) {
		s.cache = cache
	}
}

// NewCollectionsService creates the collections service with the provided options
func NewCollectionsService(repos *portsrepo.RepositoryProvider, options ...CollectionsOption) portssvc.CollectionsSvcFacade {
	svc := &collectionsService{
		stageRepo: repos.StageRepo,
		ruleRepo:  repos.RuleRepo,
		caseRepo:  repos.CaseRepo,
		cache:     teamcache.New(5 * time.Minute),
		now:       time.Now,
	}

	for _, option := range options {
		option(svc)
	}

	return svc
}

var _ portssvc.CollectionsSvcFacade = (*collectionsService)(nil)

func (s *collectionsService) ListStages(ctx context.Context, teamID string) ([]domain.CollectionStage, error) {
	stages, err := s.stageRepo.ListStages(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list stages: %w", err)
	}
	if stages == nil {
		stages = []domain.CollectionStage{}
	}
	return stages, nil
}

func (s *collectionsService) UpsertStage(ctx context.Context, teamID, userID string, req dto.UpsertStageRequest) (*domain.CollectionStage, error) {
	now := s.now()

	if req.StageID != "" {
		existing, err := s.stageRepo.FindStageByID(ctx, teamID, req.StageID)
		if err != nil {
			return nil, fmt.Errorf("failed to load stage for update: %w", err)
		}
		existing.Name = req.Name
		existing.Slug = req.Slug
		existing.Position = req.Position
		existing.IsDefault = req.IsDefault
		existing.IsTerminal = req.IsTerminal
		existing.LastUpdatedAt = now
		existing.LastUpdatedBy = userID
		if err := s.stageRepo.UpdateStage(ctx, *existing); err != nil {
			return nil, fmt.Errorf("failed to update stage: %w", err)
		}
		s.cache.Invalidate(stageCacheRegion, teamID)
		return existing, nil
	}

	stage := domain.CollectionStage{
		StageID:    uuid.NewString(),
		TeamID:     teamID,
		Name:       req.Name,
		Slug:       req.Slug,
		Position:   req.Position,
		IsDefault:  req.IsDefault,
		IsTerminal: req.IsTerminal,
		AuditFields: domain.AuditFields{
			CreatedAt:     now,
			CreatedBy:     userID,
			LastUpdatedAt: now,
			LastUpdatedBy: userID,
		},
	}
	if err := s.stageRepo.SaveStage(ctx, stage); err != nil {
		return nil, fmt.Errorf("failed to create stage: %w", err)
	}
	s.cache.Invalidate(stageCacheRegion, teamID)
	return &stage, nil
}

// DeleteStage removes a stage definition. Stages referenced by cases or
// rules cannot be deleted.
func (s *collectionsService) DeleteStage(ctx context.Context, teamID, stageID string) error {
	inUse, err := s.stageRepo.CountCasesInStage(ctx, teamID, stageID)
	if err != nil {
		return fmt.Errorf("failed to check stage usage: %w", err)
	}
	if inUse > 0 {
		return fmt.Errorf("stage has %d case(s) and cannot be deleted: %w", inUse, apperrors.ErrConflict)
	}

	rules, err := s.ruleRepo.ListRules(ctx, teamID)
	if err != nil {
		return fmt.Errorf("failed to check rule references: %w", err)
	}
	for _, rule := range rules {
		if rule.FromStageID == stageID || rule.ToStageID == stageID {
			return fmt.Errorf("stage is referenced by rule %s and cannot be deleted: %w", rule.RuleID, apperrors.ErrConflict)
		}
	}

	if err := s.stageRepo.DeleteStage(ctx, teamID, stageID); err != nil {
		return fmt.Errorf("failed to delete stage: %w", err)
	}
	s.cache.Invalidate(stageCacheRegion, teamID)
	return nil
}

// SeedDefaultStages installs the default pipeline for a team with no stages.
func (s *collectionsService) SeedDefaultStages(ctx context.Context, teamID, userID string) error {
	existing, err := s.stageRepo.ListStages(ctx, teamID)
	if err != nil {
		return fmt.Errorf("failed to check existing stages: %w", err)
	}
	if len(existing) > 0 {
		return fmt.Errorf("team already has %d stage(s): %w", len(existing), apperrors.ErrDuplicate)
	}
	now := s.now()

	for i, def := range defaultStages {
		stage := domain.CollectionStage{
			StageID:    uuid.NewString(),
			TeamID:     teamID,
			Name:       def.Name,
			Slug:       def.Slug,
			Position:   i + 1,
			IsDefault:  i == 0,
			IsTerminal: def.Terminal,
			AuditFields: domain.AuditFields{
				CreatedAt:     now,
				CreatedBy:     userID,
				LastUpdatedAt: now,
				LastUpdatedBy: userID,
			},
		}
		if err := s.stageRepo.SaveStage(ctx, stage); err != nil {
			return fmt.Errorf("failed to seed stage %q: %w", def.Slug, err)
		}
	}

	s.cache.Invalidate(stageCacheRegion, teamID)
	s.LogInfo(ctx, "Seeded default collection stages",
		slog.String("team_id", teamID),
		slog.Int("stages", len(defaultStages)))
	return nil
}

func (s *collectionsService) ListRules(ctx context.Context, teamID string) ([]domain.EscalationRule, error) {
	rules, err := s.ruleRepo.ListRules(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	if rules == nil {
		rules = []domain.EscalationRule{}
	}
	return rules, nil
}

func (s *collectionsService) UpsertRule(ctx context.Context, teamID, userID string, req dto.UpsertRuleRequest) (*domain.EscalationRule, error) {
	trigger := domain.TriggerType(req.TriggerType)
	condition, err := domain.DecodeRuleCondition(trigger, req.Condition)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", err, apperrors.ErrValidation)
	}

	if _, err := s.stageRepo.FindStageByID(ctx, teamID, req.FromStageID); err != nil {
		return nil, fmt.Errorf("failed to load rule source stage: %w", err)
	}
	if _, err := s.stageRepo.FindStageByID(ctx, teamID, req.ToStageID); err != nil {
		return nil, fmt.Errorf("failed to load rule target stage: %w", err)
	}
	if req.FromStageID == req.ToStageID {
		return nil, fmt.Errorf("rule source and target stage must differ: %w", apperrors.ErrValidation)
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}
	now := s.now()

	if req.RuleID != "" {
		existing, err := s.ruleRepo.FindRuleByID(ctx, teamID, req.RuleID)
		if err != nil {
			return nil, fmt.Errorf("failed to load rule for update: %w", err)
		}
		existing.TriggerType = trigger
		existing.FromStageID = req.FromStageID
		existing.ToStageID = req.ToStageID
		existing.Condition = condition
		existing.IsActive = isActive
		existing.LastUpdatedAt = now
		existing.LastUpdatedBy = userID
		if err := s.ruleRepo.UpdateRule(ctx, *existing); err != nil {
			return nil, fmt.Errorf("failed to update rule: %w", err)
		}
		return existing, nil
	}

	rule := domain.EscalationRule{
		RuleID:      uuid.NewString(),
		TeamID:      teamID,
		TriggerType: trigger,
		FromStageID: req.FromStageID,
		ToStageID:   req.ToStageID,
		Condition:   condition,
		IsActive:    isActive,
		AuditFields: domain.AuditFields{
			CreatedAt:     now,
			CreatedBy:     userID,
			LastUpdatedAt: now,
			LastUpdatedBy: userID,
		},
	}
	if err := s.ruleRepo.SaveRule(ctx, rule); err != nil {
		return nil, fmt.Errorf("failed to create rule: %w", err)
	}
	return &rule, nil
}

func (s *collectionsService) DeleteRule(ctx context.Context, teamID, ruleID string) error {
	if err := s.ruleRepo.DeleteRule(ctx, teamID, ruleID); err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	return nil
}

// OpenCase puts a deal into collections. A deal carries at most one active
// case; opening a second one fails with a duplicate error.
func (s *collectionsService) OpenCase(ctx context.Context, teamID, userID string, req dto.OpenCaseRequest) (*domain.CollectionCase, error) {
	active, err := s.caseRepo.FindActiveCasesByDeal(ctx, teamID, req.DealID)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing cases: %w", err)
	}
	if len(active) > 0 {
		return nil, fmt.Errorf("deal %s already has an active case: %w", req.DealID, apperrors.ErrDuplicate)
	}

	stageID := req.StageID
	if stageID == "" {
		stages, err := s.stageRepo.ListStages(ctx, teamID)
		if err != nil {
			return nil, fmt.Errorf("failed to load stages for case entry: %w", err)
		}
		for _, stage := range stages {
			if stage.IsDefault {
				stageID = stage.StageID
				break
			}
		}
		if stageID == "" {
			return nil, fmt.Errorf("team has no default collection stage: %w", apperrors.ErrValidation)
		}
	} else if _, err := s.stageRepo.FindStageByID(ctx, teamID, stageID); err != nil {
		return nil, fmt.Errorf("failed to load requested stage: %w", err)
	}
	now := s.now()

	c := domain.CollectionCase{
		CaseID:               uuid.NewString(),
		TeamID:               teamID,
		DealID:               req.DealID,
		StageID:              stageID,
		AssignedTo:           req.AssignedTo,
		StageEnteredAt:       now,
		EnteredCollectionsAt: now,
		Version:              1,
		AuditFields: domain.AuditFields{
			CreatedAt:     now,
			CreatedBy:     userID,
			LastUpdatedAt: now,
			LastUpdatedBy: userID,
		},
	}
	if err := s.caseRepo.SaveCase(ctx, c); err != nil {
		// The partial unique index backstops the check above under races.
		if errors.Is(err, apperrors.ErrDuplicate) {
			return nil, fmt.Errorf("deal %s already has an active case: %w", req.DealID, apperrors.ErrDuplicate)
		}
		return nil, fmt.Errorf("failed to open case: %w", err)
	}

	s.LogInfo(ctx, "Collection case opened",
		slog.String("case_id", c.CaseID),
		slog.String("deal_id", req.DealID),
		slog.String("stage_id", stageID))
	return &c, nil
}

func (s *collectionsService) GetCase(ctx context.Context, teamID, caseID string) (*domain.CollectionCase, error) {
	c, err := s.caseRepo.FindCaseByID(ctx, teamID, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to load case: %w", err)
	}
	return c, nil
}

func (s *collectionsService) ListCases(ctx context.Context, teamID string, req dto.ListCasesRequest) ([]domain.CollectionCase, string, error) {
	filter := portsrepo.CaseFilter{
		ActiveOnly:   req.Status == "active",
		ResolvedOnly: req.Status == "resolved",
		StageID:      req.StageID,
		AssignedTo:   req.AssignedTo,
		Cursor:       req.Cursor,
		Limit:        req.Limit,
	}
	cases, next, err := s.caseRepo.ListCases(ctx, teamID, filter)
	if err != nil {
		return nil, "", fmt.Errorf("failed to list cases: %w", err)
	}
	if cases == nil {
		cases = []domain.CollectionCase{}
	}
	return cases, next, nil
}

func (s *collectionsService) ListCandidates(ctx context.Context, teamID string, limit int) ([]portsrepo.CollectionCandidate, error) {
	candidates, err := s.caseRepo.ListCollectionCandidates(ctx, teamID, s.now(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list collection candidates: %w", err)
	}
	if candidates == nil {
		candidates = []portsrepo.CollectionCandidate{}
	}
	return candidates, nil
}

func (s *collectionsService) GetCaseStats(ctx context.Context, teamID string) (portsrepo.CaseStats, error) {
	stats, err := s.caseRepo.GetCaseStats(ctx, teamID)
	if err != nil {
		return portsrepo.CaseStats{}, fmt.Errorf("failed to load case stats: %w", err)
	}
	return stats, nil
}
