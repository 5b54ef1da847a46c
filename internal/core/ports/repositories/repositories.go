package repositories

// RepositoryProvider holds all repository interfaces needed by services.
// This makes passing dependencies to the service container constructor cleaner.
type RepositoryProvider struct {
	TransactionRepo BankTransactionRepositoryFacade
	ObligationRepo  ObligationRepositoryFacade
	SuggestionRepo  SuggestionRepositoryFacade
	DiscrepancyRepo DiscrepancyRepositoryFacade
	AuditRepo       MatchAuditWriter
	StageRepo       CollectionStageRepository
	RuleRepo        EscalationRuleRepository
	CaseRepo        CollectionCaseRepository
	SessionRepo     SessionRepositoryFacade
	Outbox          NotificationOutbox
}
