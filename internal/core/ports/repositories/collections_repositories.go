package repositories

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/northfin/recon_backend/internal/core/domain"
)

// CaseFilter narrows collection case listings.
type CaseFilter struct {
	ActiveOnly   bool
	ResolvedOnly bool
	StageID      string
	AssignedTo   string
	Cursor       string
	Limit        int
}

// CollectionCandidate is a deal with overdue open obligations and no
// active case, surfaced for collections intake.
type CollectionCandidate struct {
	DealID         string          `json:"dealID"`
	Counterparty   string          `json:"counterparty"`
	OverdueBalance decimal.Decimal `json:"overdueBalance"`
	OldestDueDate  time.Time       `json:"oldestDueDate"`
	ObligationCnt  int             `json:"obligationCount"`
}

// CaseStats aggregates a team's collections position.
type CaseStats struct {
	ActiveCases   int `json:"activeCases"`
	ResolvedCases int `json:"resolvedCases"`
	Unassigned    int `json:"unassigned"`
}

// StageTransition is the conditional stage write applied to a case. It
// commits only if the case still sits in ExpectedStageID with
// ExpectedVersion; otherwise apperrors.ErrConflict.
type StageTransition struct {
	CaseID          string
	TeamID          string
	ExpectedStageID string
	ExpectedVersion int64
	NewStageID      string
	Resolve         bool // set when the target stage is terminal
	Now             time.Time
}

// CollectionStageRepository manages a team's stage definitions.
type CollectionStageRepository interface {
	ListStages(ctx context.Context, teamID string) ([]domain.CollectionStage, error)
	FindStageByID(ctx context.Context, teamID, stageID string) (*domain.CollectionStage, error)
	SaveStage(ctx context.Context, stage domain.CollectionStage) error
	UpdateStage(ctx context.Context, stage domain.CollectionStage) error
	// DeleteStage removes a stage definition. Callers check usage first.
	DeleteStage(ctx context.Context, teamID, stageID string) error
	// CountCasesInStage reports how many cases reference a stage.
	CountCasesInStage(ctx context.Context, teamID, stageID string) (int, error)
}

// EscalationRuleRepository manages a team's escalation rules. Listings are
// ordered by creation time; rule evaluation depends on that order.
type EscalationRuleRepository interface {
	ListRules(ctx context.Context, teamID string) ([]domain.EscalationRule, error)
	ListActiveRulesFromStage(ctx context.Context, teamID, fromStageID string) ([]domain.EscalationRule, error)
	FindRuleByID(ctx context.Context, teamID, ruleID string) (*domain.EscalationRule, error)
	SaveRule(ctx context.Context, rule domain.EscalationRule) error
	UpdateRule(ctx context.Context, rule domain.EscalationRule) error
	DeleteRule(ctx context.Context, teamID, ruleID string) error
}

// CollectionCaseRepository manages cases and their audit notes.
type CollectionCaseRepository interface {
	FindCaseByID(ctx context.Context, teamID, caseID string) (*domain.CollectionCase, error)

	// FindActiveCasesByDeal returns all unresolved cases for a deal, most
	// recent first. More than one element is a data-integrity anomaly the
	// caller must log.
	FindActiveCasesByDeal(ctx context.Context, teamID, dealID string) ([]domain.CollectionCase, error)

	// ListActiveCases returns every unresolved case for a team; the
	// time-based rule sweep iterates it.
	ListActiveCases(ctx context.Context, teamID string) ([]domain.CollectionCase, error)

	// ListTeamIDsWithActiveCases returns the teams the background sweep
	// must visit.
	ListTeamIDsWithActiveCases(ctx context.Context) ([]string, error)

	ListCases(ctx context.Context, teamID string, filter CaseFilter) ([]domain.CollectionCase, string, error)

	// ListCollectionCandidates returns deals whose open obligations are past
	// due as of asOf and that have no active case, oldest debt first.
	ListCollectionCandidates(ctx context.Context, teamID string, asOf time.Time, limit int) ([]CollectionCandidate, error)

	SaveCase(ctx context.Context, c domain.CollectionCase) error

	// TransitionStage applies a compare-and-swap stage update and returns
	// the updated case.
	TransitionStage(ctx context.Context, t StageTransition) (*domain.CollectionCase, error)

	GetCaseStats(ctx context.Context, teamID string) (CaseStats, error)

	// SaveNote appends an audit note to a case.
	SaveNote(ctx context.Context, note domain.CollectionNote) error
}
