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

const stageCacheRegion = "stages_by_id"

// escalationService evaluates escalation rules against active collection
// cases. Rules from a stage are evaluated in creation order and the first
// satisfied rule wins; at most one stage transition happens per trigger.
type escalationService struct {
	BaseService
	caseRepo  portsrepo.CollectionCaseRepository
	ruleRepo  portsrepo.EscalationRuleRepository
	stageRepo portsrepo.CollectionStageRepository
	outbox    portsrepo.NotificationOutbox

	cache *teamcache.Cache
	now   func() time.Time
}

// EscalationOption is a functional option for configuring the escalation service
type EscalationOption func(*escalationService)

// WithEscalationClock overrides the service clock, used by tests.
func WithEscalationClock(now func() time.Time) EscalationOption {
	return func(s *escalationService) {
		s.now = now
	}
}

// WithStageCache injects a shared per-team stage cache.
func WithStageCache(cache *teamcache.Cache) EscalationOption {
	return func(s *escalationService) {
		s.cache = cache
	}
}

// NewEscalationService creates the escalation service with the provided options
func NewEscalationService(repos *portsrepo.RepositoryProvider, options ...EscalationOption) portssvc.EscalationSvcFacade {
	svc := &escalationService{
		caseRepo:  repos.CaseRepo,
		ruleRepo:  repos.RuleRepo,
		stageRepo: repos.StageRepo,
		outbox:    repos.Outbox,
		cache:     teamcache.New(5 * time.Minute),
		now:       time.Now,
	}

	for _, option := range options {
		option(svc)
	}

	return svc
}

var _ portssvc.EscalationSvcFacade = (*escalationService)(nil)

// CheckEventBasedEscalation reacts to a business event for a deal. When the
// deal has no active case or no rule matches, nothing happens and that is
// not an error.
func (s *escalationService) CheckEventBasedEscalation(ctx context.Context, teamID, dealID, eventType string) (*dto.EscalationResult, error) {
	cases, err := s.caseRepo.FindActiveCasesByDeal(ctx, teamID, dealID)
	if err != nil {
		return nil, fmt.Errorf("failed to load active cases for deal: %w", err)
	}
	if len(cases) == 0 {
		return &dto.EscalationResult{Escalated: false}, nil
	}
	if len(cases) > 1 {
		// One active case per deal is an invariant; tolerate the anomaly by
		// acting on the most recent case only.
		s.LogWarn(ctx, "Multiple active cases for one deal",
			slog.String("deal_id", dealID),
			slog.Int("count", len(cases)))
	}
	active := cases[0]

	rules, err := s.ruleRepo.ListActiveRulesFromStage(ctx, teamID, active.StageID)
	if err != nil {
		return nil, fmt.Errorf("failed to load escalation rules: %w", err)
	}

	for _, rule := range rules {
		if rule.TriggerType != domain.TriggerEventBased || rule.Condition.Event == nil {
			continue
		}
		if rule.Condition.Event.EventType != eventType {
			continue
		}
		escalated, err := s.escalate(ctx, active, rule, fmt.Sprintf("event %q", eventType))
		if err != nil {
			return nil, err
		}
		return &dto.EscalationResult{
			Escalated: escalated,
			CaseID:    active.CaseID,
			ToStageID: rule.ToStageID,
		}, nil
	}

	return &dto.EscalationResult{Escalated: false, CaseID: active.CaseID}, nil
}

// RunTimeBasedSweep walks every active case of a team and fires the first
// satisfied daysInStage rule per case. Returns how many cases escalated.
func (s *escalationService) RunTimeBasedSweep(ctx context.Context, teamID string) (int, error) {
	cases, err := s.caseRepo.ListActiveCases(ctx, teamID)
	if err != nil {
		return 0, fmt.Errorf("failed to list active cases for sweep: %w", err)
	}

	escalatedCount := 0
	now := s.now()
	for _, c := range cases {
		if ctx.Err() != nil {
			return escalatedCount, ctx.Err()
		}

		rules, err := s.ruleRepo.ListActiveRulesFromStage(ctx, teamID, c.StageID)
		if err != nil {
			s.LogError(ctx, err, "Failed to load rules during sweep",
				slog.String("case_id", c.CaseID),
				slog.String("stage_id", c.StageID))
			continue
		}

		for _, rule := range rules {
			if rule.TriggerType != domain.TriggerTimeBased || rule.Condition.Time == nil {
				continue
			}
			if c.DaysInStage(now) < rule.Condition.Time.DaysInStage {
				continue
			}
			escalated, err := s.escalate(ctx, c, rule, fmt.Sprintf("%d day(s) in stage", c.DaysInStage(now)))
			if err != nil {
				s.LogError(ctx, err, "Failed to escalate case during sweep",
					slog.String("case_id", c.CaseID))
			} else if escalated {
				escalatedCount++
			}
			break
		}
	}

	s.LogInfo(ctx, "Time-based escalation sweep finished",
		slog.Int("active_cases", len(cases)),
		slog.Int("escalated", escalatedCount))
	return escalatedCount, nil
}

// RunTimeBasedSweepAllTeams sweeps every team with active cases. Per-team
// failures are logged and do not stop the run.
func (s *escalationService) RunTimeBasedSweepAllTeams(ctx context.Context) (int, error) {
	teamIDs, err := s.caseRepo.ListTeamIDsWithActiveCases(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list teams for sweep: %w", err)
	}

	total := 0
	for _, teamID := range teamIDs {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
		escalated, err := s.RunTimeBasedSweep(ctx, teamID)
		total += escalated
		if err != nil {
			s.LogError(ctx, err, "Sweep failed for team", slog.String("team_id", teamID))
		}
	}
	return total, nil
}

// escalate moves one case along a rule's edge. A conflict means another
// writer moved the case first; the trigger is then considered handled.
func (s *escalationService) escalate(ctx context.Context, c domain.CollectionCase, rule domain.EscalationRule, trigger string) (bool, error) {
	fromStage, err := s.stageByID(ctx, c.TeamID, rule.FromStageID)
	if err != nil {
		return false, fmt.Errorf("failed to load source stage: %w", err)
	}
	toStage, err := s.stageByID(ctx, c.TeamID, rule.ToStageID)
	if err != nil {
		return false, fmt.Errorf("failed to load target stage: %w", err)
	}
	now := s.now()

	_, err = s.caseRepo.TransitionStage(ctx, portsrepo.StageTransition{
		CaseID:          c.CaseID,
		TeamID:          c.TeamID,
		ExpectedStageID: c.StageID,
		ExpectedVersion: c.Version,
		NewStageID:      toStage.StageID,
		Resolve:         toStage.IsTerminal,
		Now:             now,
	})
	if errors.Is(err, apperrors.ErrConflict) {
		s.LogDebug(ctx, "Case moved concurrently, skipping escalation",
			slog.String("case_id", c.CaseID))
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to transition case stage: %w", err)
	}

	note := domain.CollectionNote{
		NoteID:    uuid.NewString(),
		TeamID:    c.TeamID,
		CaseID:    c.CaseID,
		Body:      fmt.Sprintf("Escalated from %q to %q (%s)", fromStage.Name, toStage.Name, trigger),
		CreatedAt: now,
	}
	if nerr := s.caseRepo.SaveNote(ctx, note); nerr != nil {
		s.LogError(ctx, nerr, "Failed to record escalation note",
			slog.String("case_id", c.CaseID))
	}

	// Unassigned cases have nobody to notify; the note above still records
	// the escalation.
	if c.AssignedTo != "" {
		notification := domain.Notification{
			NotificationID: uuid.NewString(),
			Type:           domain.NotificationCaseEscalated,
			TeamID:         c.TeamID,
			UserID:         c.AssignedTo,
			RecordID:       c.CaseID,
			Description:    fmt.Sprintf("Collection case escalated to %q", toStage.Name),
			CreatedAt:      now,
		}
		if oerr := s.outbox.Enqueue(ctx, notification); oerr != nil {
			s.LogError(ctx, oerr, "Failed to enqueue escalation notification",
				slog.String("case_id", c.CaseID))
		}
	}

	s.LogInfo(ctx, "Collection case escalated",
		slog.String("case_id", c.CaseID),
		slog.String("from_stage", fromStage.Slug),
		slog.String("to_stage", toStage.Slug),
		slog.String("trigger", trigger),
		slog.Bool("resolved", toStage.IsTerminal))
	return true, nil
}

// stageByID resolves a stage through the per-team cache. Stage definitions
// change rarely; a short staleness window is acceptable here.
func (s *escalationService) stageByID(ctx context.Context, teamID, stageID string) (*domain.CollectionStage, error) {
	if cached, ok := s.cache.Get(stageCacheRegion, teamID); ok {
		if stages, ok := cached.(map[string]domain.CollectionStage); ok {
			if stage, ok := stages[stageID]; ok {
				return &stage, nil
			}
		}
	}

	stages, err := s.stageRepo.ListStages(ctx, teamID)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]domain.CollectionStage, len(stages))
	for _, stage := range stages {
		byID[stage.StageID] = stage
	}
	s.cache.Set(stageCacheRegion, teamID, byID)

	if stage, ok := byID[stageID]; ok {
		return &stage, nil
	}
	return nil, fmt.Errorf("stage %s: %w", stageID, apperrors.ErrNotFound)
}
