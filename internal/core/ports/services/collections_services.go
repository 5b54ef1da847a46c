package services

import (
	"context"

	"github.com/northfin/recon_backend/internal/core/domain"
	portsrepo "github.com/northfin/recon_backend/internal/core/ports/repositories"
	"github.com/northfin/recon_backend/internal/dto"
)

// EscalationSvcFacade evaluates escalation rules against active cases.
type EscalationSvcFacade interface {
	// CheckEventBasedEscalation is the hook business-event producers invoke
	// (payment processing, NSF handling). A result with Escalated=false and
	// no error means no active rule matched.
	CheckEventBasedEscalation(ctx context.Context, teamID, dealID, eventType string) (*dto.EscalationResult, error)

	// RunTimeBasedSweep evaluates daysInStage rules over every active case
	// of a team and returns how many cases escalated.
	RunTimeBasedSweep(ctx context.Context, teamID string) (int, error)

	// RunTimeBasedSweepAllTeams runs the sweep for every team that has at
	// least one active case. The background scheduler calls this.
	RunTimeBasedSweepAllTeams(ctx context.Context) (int, error)
}

// CollectionsConfigSvc manages stages and rules.
type CollectionsConfigSvc interface {
	ListStages(ctx context.Context, teamID string) ([]domain.CollectionStage, error)
	UpsertStage(ctx context.Context, teamID, userID string, req dto.UpsertStageRequest) (*domain.CollectionStage, error)
	DeleteStage(ctx context.Context, teamID, stageID string) error
	SeedDefaultStages(ctx context.Context, teamID, userID string) error

	ListRules(ctx context.Context, teamID string) ([]domain.EscalationRule, error)
	UpsertRule(ctx context.Context, teamID, userID string, req dto.UpsertRuleRequest) (*domain.EscalationRule, error)
	DeleteRule(ctx context.Context, teamID, ruleID string) error
}

// CollectionsCaseSvc manages cases.
type CollectionsCaseSvc interface {
	OpenCase(ctx context.Context, teamID, userID string, req dto.OpenCaseRequest) (*domain.CollectionCase, error)
	GetCase(ctx context.Context, teamID, caseID string) (*domain.CollectionCase, error)
	ListCases(ctx context.Context, teamID string, req dto.ListCasesRequest) ([]domain.CollectionCase, string, error)
	GetCaseStats(ctx context.Context, teamID string) (portsrepo.CaseStats, error)

	// ListCandidates surfaces deals with past-due open obligations and no
	// active case, for collections intake.
	ListCandidates(ctx context.Context, teamID string, limit int) ([]portsrepo.CollectionCandidate, error)
}

// CollectionsSvcFacade combines collections configuration and case handling.
type CollectionsSvcFacade interface {
	CollectionsConfigSvc
	CollectionsCaseSvc
}
