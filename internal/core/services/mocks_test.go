package services_test

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/northfin/recon_backend/internal/apperrors"
	"github.com/northfin/recon_backend/internal/core/domain"
	portsrepo "github.com/northfin/recon_backend/internal/core/ports/repositories"
)

// Function-field fakes for the repository ports. Tests set only the fields
// they care about; unset fields return zero values.

type MockTransactionRepository struct {
	FindTransactionByIDFn     func(ctx context.Context, teamID, transactionID string) (*domain.BankTransaction, error)
	FindTransactionsByIDsFn   func(ctx context.Context, teamID string, transactionIDs []string) ([]domain.BankTransaction, error)
	ListTransactionsFn        func(ctx context.Context, teamID string, filter portsrepo.TransactionFilter) ([]domain.BankTransaction, string, error)
	FindMatchedByObligationFn func(ctx context.Context, teamID, obligationID string) ([]domain.BankTransaction, error)
	TransitionMatchStateFn    func(ctx context.Context, t portsrepo.MatchStateTransition) (*domain.BankTransaction, error)
	BulkConfirmFn             func(ctx context.Context, teamID, userID string, transactionIDs []string, from, to *time.Time, now time.Time) (int, error)

	Transitions []portsrepo.MatchStateTransition
}

func (m *MockTransactionRepository) FindTransactionByID(ctx context.Context, teamID, transactionID string) (*domain.BankTransaction, error) {
	if m.FindTransactionByIDFn != nil {
		return m.FindTransactionByIDFn(ctx, teamID, transactionID)
	}
	return nil, apperrors.ErrNotFound
}

func (m *MockTransactionRepository) FindTransactionsByIDs(ctx context.Context, teamID string, transactionIDs []string) ([]domain.BankTransaction, error) {
	if m.FindTransactionsByIDsFn != nil {
		return m.FindTransactionsByIDsFn(ctx, teamID, transactionIDs)
	}
	return nil, nil
}

func (m *MockTransactionRepository) ListTransactions(ctx context.Context, teamID string, filter portsrepo.TransactionFilter) ([]domain.BankTransaction, string, error) {
	if m.ListTransactionsFn != nil {
		return m.ListTransactionsFn(ctx, teamID, filter)
	}
	return nil, "", nil
}

func (m *MockTransactionRepository) FindMatchedByObligation(ctx context.Context, teamID, obligationID string) ([]domain.BankTransaction, error) {
	if m.FindMatchedByObligationFn != nil {
		return m.FindMatchedByObligationFn(ctx, teamID, obligationID)
	}
	return nil, nil
}

func (m *MockTransactionRepository) TransitionMatchState(ctx context.Context, t portsrepo.MatchStateTransition) (*domain.BankTransaction, error) {
	m.Transitions = append(m.Transitions, t)
	if m.TransitionMatchStateFn != nil {
		return m.TransitionMatchStateFn(ctx, t)
	}
	matchedAt := t.Now
	return &domain.BankTransaction{
		TransactionID:       t.TransactionID,
		TeamID:              t.TeamID,
		MatchStatus:         t.NewStatus,
		MatchedObligationID: t.ObligationID,
		MatchConfidence:     t.Confidence,
		MatchRule:           t.Rule,
		MatchedAt:           &matchedAt,
		Version:             t.ExpectedVersion + 1,
	}, nil
}

func (m *MockTransactionRepository) BulkConfirm(ctx context.Context, teamID, userID string, transactionIDs []string, from, to *time.Time, now time.Time) (int, error) {
	if m.BulkConfirmFn != nil {
		return m.BulkConfirmFn(ctx, teamID, userID, transactionIDs, from, to, now)
	}
	return 0, nil
}

type MockObligationRepository struct {
	FindObligationByIDFn  func(ctx context.Context, teamID, obligationID string) (*domain.PaymentObligation, error)
	FindOpenObligationsFn func(ctx context.Context, q portsrepo.CandidateQuery) ([]domain.PaymentObligation, error)
	ApplyPaymentFn        func(ctx context.Context, teamID, obligationID string, paid decimal.Decimal, actorID string, now time.Time) error

	AppliedPayments []decimal.Decimal
	PaymentTargets  []string
}

func (m *MockObligationRepository) FindObligationByID(ctx context.Context, teamID, obligationID string) (*domain.PaymentObligation, error) {
	if m.FindObligationByIDFn != nil {
		return m.FindObligationByIDFn(ctx, teamID, obligationID)
	}
	return nil, apperrors.ErrNotFound
}

func (m *MockObligationRepository) FindOpenObligations(ctx context.Context, q portsrepo.CandidateQuery) ([]domain.PaymentObligation, error) {
	if m.FindOpenObligationsFn != nil {
		return m.FindOpenObligationsFn(ctx, q)
	}
	return nil, nil
}

func (m *MockObligationRepository) ApplyPayment(ctx context.Context, teamID, obligationID string, paid decimal.Decimal, actorID string, now time.Time) error {
	m.AppliedPayments = append(m.AppliedPayments, paid)
	m.PaymentTargets = append(m.PaymentTargets, obligationID)
	if m.ApplyPaymentFn != nil {
		return m.ApplyPaymentFn(ctx, teamID, obligationID, paid, actorID, now)
	}
	return nil
}

type MockSuggestionRepository struct {
	SaveSuggestionFn           func(ctx context.Context, s domain.MatchSuggestion) error
	FindPendingByTransactionFn func(ctx context.Context, teamID, transactionID string) (*domain.MatchSuggestion, error)
	ResolveSuggestionFn        func(ctx context.Context, teamID, suggestionID string, resolution domain.SuggestionResolution, userID string, now time.Time) error

	Saved       []domain.MatchSuggestion
	Resolutions []domain.SuggestionResolution
}

func (m *MockSuggestionRepository) SaveSuggestion(ctx context.Context, s domain.MatchSuggestion) error {
	m.Saved = append(m.Saved, s)
	if m.SaveSuggestionFn != nil {
		return m.SaveSuggestionFn(ctx, s)
	}
	return nil
}

func (m *MockSuggestionRepository) FindPendingByTransaction(ctx context.Context, teamID, transactionID string) (*domain.MatchSuggestion, error) {
	if m.FindPendingByTransactionFn != nil {
		return m.FindPendingByTransactionFn(ctx, teamID, transactionID)
	}
	return nil, apperrors.ErrNotFound
}

func (m *MockSuggestionRepository) ResolveSuggestion(ctx context.Context, teamID, suggestionID string, resolution domain.SuggestionResolution, userID string, now time.Time) error {
	m.Resolutions = append(m.Resolutions, resolution)
	if m.ResolveSuggestionFn != nil {
		return m.ResolveSuggestionFn(ctx, teamID, suggestionID, resolution, userID, now)
	}
	return nil
}

type MockDiscrepancyRepository struct {
	SaveDiscrepancyFn       func(ctx context.Context, rec domain.DiscrepancyRecord) error
	FindOpenByTransactionFn func(ctx context.Context, teamID, transactionID string) (*domain.DiscrepancyRecord, error)
	ResolveDiscrepancyFn    func(ctx context.Context, teamID, recordID string, resolution domain.DiscrepancyResolution, obligationID, note, userID string, now time.Time) error
	ListDiscrepanciesFn     func(ctx context.Context, teamID string, types []domain.DiscrepancyType, openOnly bool, cursor string, limit int) ([]domain.DiscrepancyRecord, string, error)

	Saved    []domain.DiscrepancyRecord
	Resolved []string
}

func (m *MockDiscrepancyRepository) SaveDiscrepancy(ctx context.Context, rec domain.DiscrepancyRecord) error {
	m.Saved = append(m.Saved, rec)
	if m.SaveDiscrepancyFn != nil {
		return m.SaveDiscrepancyFn(ctx, rec)
	}
	return nil
}

func (m *MockDiscrepancyRepository) FindOpenByTransaction(ctx context.Context, teamID, transactionID string) (*domain.DiscrepancyRecord, error) {
	if m.FindOpenByTransactionFn != nil {
		return m.FindOpenByTransactionFn(ctx, teamID, transactionID)
	}
	return nil, apperrors.ErrNotFound
}

func (m *MockDiscrepancyRepository) ResolveDiscrepancy(ctx context.Context, teamID, recordID string, resolution domain.DiscrepancyResolution, obligationID, note, userID string, now time.Time) error {
	m.Resolved = append(m.Resolved, recordID)
	if m.ResolveDiscrepancyFn != nil {
		return m.ResolveDiscrepancyFn(ctx, teamID, recordID, resolution, obligationID, note, userID, now)
	}
	return nil
}

func (m *MockDiscrepancyRepository) ListDiscrepancies(ctx context.Context, teamID string, types []domain.DiscrepancyType, openOnly bool, cursor string, limit int) ([]domain.DiscrepancyRecord, string, error) {
	if m.ListDiscrepanciesFn != nil {
		return m.ListDiscrepanciesFn(ctx, teamID, types, openOnly, cursor, limit)
	}
	return nil, "", nil
}

type MockAuditWriter struct {
	Entries []domain.MatchAuditEntry
}

func (m *MockAuditWriter) SaveAuditEntry(ctx context.Context, entry domain.MatchAuditEntry) error {
	m.Entries = append(m.Entries, entry)
	return nil
}

type MockOutbox struct {
	ListPendingFn   func(ctx context.Context, limit int) ([]domain.Notification, error)
	MarkDeliveredFn func(ctx context.Context, notificationID string) error

	Enqueued  []domain.Notification
	Delivered []string
}

func (m *MockOutbox) Enqueue(ctx context.Context, n domain.Notification) error {
	m.Enqueued = append(m.Enqueued, n)
	return nil
}

func (m *MockOutbox) ListPending(ctx context.Context, limit int) ([]domain.Notification, error) {
	if m.ListPendingFn != nil {
		return m.ListPendingFn(ctx, limit)
	}
	return nil, nil
}

func (m *MockOutbox) MarkDelivered(ctx context.Context, notificationID string) error {
	m.Delivered = append(m.Delivered, notificationID)
	if m.MarkDeliveredFn != nil {
		return m.MarkDeliveredFn(ctx, notificationID)
	}
	return nil
}

type MockStageRepository struct {
	ListStagesFn       func(ctx context.Context, teamID string) ([]domain.CollectionStage, error)
	FindStageByIDFn    func(ctx context.Context, teamID, stageID string) (*domain.CollectionStage, error)
	SaveStageFn        func(ctx context.Context, stage domain.CollectionStage) error
	UpdateStageFn      func(ctx context.Context, stage domain.CollectionStage) error
	DeleteStageFn      func(ctx context.Context, teamID, stageID string) error
	CountCasesInStageFn func(ctx context.Context, teamID, stageID string) (int, error)

	Saved []domain.CollectionStage
}

func (m *MockStageRepository) ListStages(ctx context.Context, teamID string) ([]domain.CollectionStage, error) {
	if m.ListStagesFn != nil {
		return m.ListStagesFn(ctx, teamID)
	}
	return nil, nil
}

func (m *MockStageRepository) FindStageByID(ctx context.Context, teamID, stageID string) (*domain.CollectionStage, error) {
	if m.FindStageByIDFn != nil {
		return m.FindStageByIDFn(ctx, teamID, stageID)
	}
	return nil, apperrors.ErrNotFound
}

func (m *MockStageRepository) SaveStage(ctx context.Context, stage domain.CollectionStage) error {
	m.Saved = append(m.Saved, stage)
	if m.SaveStageFn != nil {
		return m.SaveStageFn(ctx, stage)
	}
	return nil
}

func (m *MockStageRepository) UpdateStage(ctx context.Context, stage domain.CollectionStage) error {
	if m.UpdateStageFn != nil {
		return m.UpdateStageFn(ctx, stage)
	}
	return nil
}

func (m *MockStageRepository) DeleteStage(ctx context.Context, teamID, stageID string) error {
	if m.DeleteStageFn != nil {
		return m.DeleteStageFn(ctx, teamID, stageID)
	}
	return nil
}

func (m *MockStageRepository) CountCasesInStage(ctx context.Context, teamID, stageID string) (int, error) {
	if m.CountCasesInStageFn != nil {
		return m.CountCasesInStageFn(ctx, teamID, stageID)
	}
	return 0, nil
}

type MockRuleRepository struct {
	ListRulesFn                func(ctx context.Context, teamID string) ([]domain.EscalationRule, error)
	ListActiveRulesFromStageFn func(ctx context.Context, teamID, fromStageID string) ([]domain.EscalationRule, error)
	FindRuleByIDFn             func(ctx context.Context, teamID, ruleID string) (*domain.EscalationRule, error)
	SaveRuleFn                 func(ctx context.Context, rule domain.EscalationRule) error
	UpdateRuleFn               func(ctx context.Context, rule domain.EscalationRule) error
	DeleteRuleFn               func(ctx context.Context, teamID, ruleID string) error

	Saved []domain.EscalationRule
}

func (m *MockRuleRepository) ListRules(ctx context.Context, teamID string) ([]domain.EscalationRule, error) {
	if m.ListRulesFn != nil {
		return m.ListRulesFn(ctx, teamID)
	}
	return nil, nil
}

func (m *MockRuleRepository) ListActiveRulesFromStage(ctx context.Context, teamID, fromStageID string) ([]domain.EscalationRule, error) {
	if m.ListActiveRulesFromStageFn != nil {
		return m.ListActiveRulesFromStageFn(ctx, teamID, fromStageID)
	}
	return nil, nil
}

func (m *MockRuleRepository) FindRuleByID(ctx context.Context, teamID, ruleID string) (*domain.EscalationRule, error) {
	if m.FindRuleByIDFn != nil {
		return m.FindRuleByIDFn(ctx, teamID, ruleID)
	}
	return nil, apperrors.ErrNotFound
}

func (m *MockRuleRepository) SaveRule(ctx context.Context, rule domain.EscalationRule) error {
	m.Saved = append(m.Saved, rule)
	if m.SaveRuleFn != nil {
		return m.SaveRuleFn(ctx, rule)
	}
	return nil
}

func (m *MockRuleRepository) UpdateRule(ctx context.Context, rule domain.EscalationRule) error {
	if m.UpdateRuleFn != nil {
		return m.UpdateRuleFn(ctx, rule)
	}
	return nil
}

func (m *MockRuleRepository) DeleteRule(ctx context.Context, teamID, ruleID string) error {
	if m.DeleteRuleFn != nil {
		return m.DeleteRuleFn(ctx, teamID, ruleID)
	}
	return nil
}

type MockCaseRepository struct {
	FindCaseByIDFn          func(ctx context.Context, teamID, caseID string) (*domain.CollectionCase, error)
	FindActiveCasesByDealFn func(ctx context.Context, teamID, dealID string) ([]domain.CollectionCase, error)
	ListActiveCasesFn       func(ctx context.Context, teamID string) ([]domain.CollectionCase, error)
	ListTeamIDsFn           func(ctx context.Context) ([]string, error)
	ListCasesFn             func(ctx context.Context, teamID string, filter portsrepo.CaseFilter) ([]domain.CollectionCase, string, error)
	ListCandidatesFn        func(ctx context.Context, teamID string, asOf time.Time, limit int) ([]portsrepo.CollectionCandidate, error)
	SaveCaseFn              func(ctx context.Context, c domain.CollectionCase) error
	TransitionStageFn       func(ctx context.Context, t portsrepo.StageTransition) (*domain.CollectionCase, error)
	GetCaseStatsFn          func(ctx context.Context, teamID string) (portsrepo.CaseStats, error)
	SaveNoteFn              func(ctx context.Context, note domain.CollectionNote) error

	SavedCases  []domain.CollectionCase
	Transitions []portsrepo.StageTransition
	Notes       []domain.CollectionNote
}

func (m *MockCaseRepository) FindCaseByID(ctx context.Context, teamID, caseID string) (*domain.CollectionCase, error) {
	if m.FindCaseByIDFn != nil {
		return m.FindCaseByIDFn(ctx, teamID, caseID)
	}
	return nil, apperrors.ErrNotFound
}

func (m *MockCaseRepository) FindActiveCasesByDeal(ctx context.Context, teamID, dealID string) ([]domain.CollectionCase, error) {
	if m.FindActiveCasesByDealFn != nil {
		return m.FindActiveCasesByDealFn(ctx, teamID, dealID)
	}
	return nil, nil
}

func (m *MockCaseRepository) ListActiveCases(ctx context.Context, teamID string) ([]domain.CollectionCase, error) {
	if m.ListActiveCasesFn != nil {
		return m.ListActiveCasesFn(ctx, teamID)
	}
	return nil, nil
}

func (m *MockCaseRepository) ListTeamIDsWithActiveCases(ctx context.Context) ([]string, error) {
	if m.ListTeamIDsFn != nil {
		return m.ListTeamIDsFn(ctx)
	}
	return nil, nil
}

func (m *MockCaseRepository) ListCases(ctx context.Context, teamID string, filter portsrepo.CaseFilter) ([]domain.CollectionCase, string, error) {
	if m.ListCasesFn != nil {
		return m.ListCasesFn(ctx, teamID, filter)
	}
	return nil, "", nil
}

func (m *MockCaseRepository) ListCollectionCandidates(ctx context.Context, teamID string, asOf time.Time, limit int) ([]portsrepo.CollectionCandidate, error) {
	if m.ListCandidatesFn != nil {
		return m.ListCandidatesFn(ctx, teamID, asOf, limit)
	}
	return nil, nil
}

func (m *MockCaseRepository) SaveCase(ctx context.Context, c domain.CollectionCase) error {
	m.SavedCases = append(m.SavedCases, c)
	if m.SaveCaseFn != nil {
		return m.SaveCaseFn(ctx, c)
	}
	return nil
}

func (m *MockCaseRepository) TransitionStage(ctx context.Context, t portsrepo.StageTransition) (*domain.CollectionCase, error) {
	m.Transitions = append(m.Transitions, t)
	if m.TransitionStageFn != nil {
		return m.TransitionStageFn(ctx, t)
	}
	resolved := (*time.Time)(nil)
	if t.Resolve {
		resolvedAt := t.Now
		resolved = &resolvedAt
	}
	return &domain.CollectionCase{
		CaseID:         t.CaseID,
		TeamID:         t.TeamID,
		StageID:        t.NewStageID,
		StageEnteredAt: t.Now,
		ResolvedAt:     resolved,
		Version:        t.ExpectedVersion + 1,
	}, nil
}

func (m *MockCaseRepository) GetCaseStats(ctx context.Context, teamID string) (portsrepo.CaseStats, error) {
	if m.GetCaseStatsFn != nil {
		return m.GetCaseStatsFn(ctx, teamID)
	}
	return portsrepo.CaseStats{}, nil
}

func (m *MockCaseRepository) SaveNote(ctx context.Context, note domain.CollectionNote) error {
	m.Notes = append(m.Notes, note)
	if m.SaveNoteFn != nil {
		return m.SaveNoteFn(ctx, note)
	}
	return nil
}

type MockSessionRepository struct {
	SaveSessionFn          func(ctx context.Context, s domain.ReconciliationSession) error
	FindSessionByIDFn      func(ctx context.Context, teamID, sessionID string) (*domain.ReconciliationSession, error)
	CompleteSessionFn      func(ctx context.Context, teamID, sessionID string, stats domain.SessionStats, now time.Time) error
	GetMatchStatusCountsFn func(ctx context.Context, teamID, bankAccountID string, from, to time.Time) (map[domain.MatchStatus]int, error)

	Saved []domain.ReconciliationSession
}

func (m *MockSessionRepository) SaveSession(ctx context.Context, s domain.ReconciliationSession) error {
	m.Saved = append(m.Saved, s)
	if m.SaveSessionFn != nil {
		return m.SaveSessionFn(ctx, s)
	}
	return nil
}

func (m *MockSessionRepository) FindSessionByID(ctx context.Context, teamID, sessionID string) (*domain.ReconciliationSession, error) {
	if m.FindSessionByIDFn != nil {
		return m.FindSessionByIDFn(ctx, teamID, sessionID)
	}
	return nil, apperrors.ErrNotFound
}

func (m *MockSessionRepository) CompleteSession(ctx context.Context, teamID, sessionID string, stats domain.SessionStats, now time.Time) error {
	if m.CompleteSessionFn != nil {
		return m.CompleteSessionFn(ctx, teamID, sessionID, stats, now)
	}
	return nil
}

func (m *MockSessionRepository) GetMatchStatusCounts(ctx context.Context, teamID, bankAccountID string, from, to time.Time) (map[domain.MatchStatus]int, error) {
	if m.GetMatchStatusCountsFn != nil {
		return m.GetMatchStatusCountsFn(ctx, teamID, bankAccountID, from, to)
	}
	return map[domain.MatchStatus]int{}, nil
}

// newTestProvider bundles fresh mocks into a RepositoryProvider.
func newTestProvider() (*portsrepo.RepositoryProvider, *MockTransactionRepository, *MockObligationRepository, *MockSuggestionRepository, *MockDiscrepancyRepository, *MockAuditWriter, *MockOutbox) {
	txRepo := &MockTransactionRepository{}
	obRepo := &MockObligationRepository{}
	sugRepo := &MockSuggestionRepository{}
	disRepo := &MockDiscrepancyRepository{}
	audit := &MockAuditWriter{}
	outbox := &MockOutbox{}
	provider := &portsrepo.RepositoryProvider{
		TransactionRepo: txRepo,
		ObligationRepo:  obRepo,
		SuggestionRepo:  sugRepo,
		DiscrepancyRepo: disRepo,
		AuditRepo:       audit,
		StageRepo:       &MockStageRepository{},
		RuleRepo:        &MockRuleRepository{},
		CaseRepo:        &MockCaseRepository{},
		SessionRepo:     &MockSessionRepository{},
		Outbox:          outbox,
	}
	return provider, txRepo, obRepo, sugRepo, disRepo, audit, outbox
}

// newCollectionsProvider bundles the collections-side mocks.
func newCollectionsProvider() (*portsrepo.RepositoryProvider, *MockStageRepository, *MockRuleRepository, *MockCaseRepository, *MockOutbox) {
	stageRepo := &MockStageRepository{}
	ruleRepo := &MockRuleRepository{}
	caseRepo := &MockCaseRepository{}
	outbox := &MockOutbox{}
	provider := &portsrepo.RepositoryProvider{
		TransactionRepo: &MockTransactionRepository{},
		ObligationRepo:  &MockObligationRepository{},
		SuggestionRepo:  &MockSuggestionRepository{},
		DiscrepancyRepo: &MockDiscrepancyRepository{},
		AuditRepo:       &MockAuditWriter{},
		StageRepo:       stageRepo,
		RuleRepo:        ruleRepo,
		CaseRepo:        caseRepo,
		SessionRepo:     &MockSessionRepository{},
		Outbox:          outbox,
	}
	return provider, stageRepo, ruleRepo, caseRepo, outbox
}
