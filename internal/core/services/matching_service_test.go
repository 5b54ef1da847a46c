package services_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northfin/recon_backend/internal/apperrors"
	"github.com/northfin/recon_backend/internal/core/domain"
	portsrepo "github.com/northfin/recon_backend/internal/core/ports/repositories"
	"github.com/northfin/recon_backend/internal/core/services"
	"github.com/northfin/recon_backend/internal/dto"
	"github.com/northfin/recon_backend/internal/matching"
	"github.com/northfin/recon_backend/internal/utils/retry"
)

var testTime = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

func testClock() time.Time { return testTime }

func unmatchedTransaction() *domain.BankTransaction {
	return &domain.BankTransaction{
		TransactionID: "tx-1",
		TeamID:        "team-1",
		AccountID:     "acct-1",
		Amount:        decimal.NewFromFloat(-40.00),
		CurrencyCode:  "USD",
		Date:          testTime,
		Description:   "ACH PAYMENT ACME CORP",
		Counterparty:  "Acme Corp",
		MatchStatus:   domain.MatchStatusUnmatched,
		Version:       1,
	}
}

func openObligation(id string, amount float64, due time.Time) domain.PaymentObligation {
	return domain.PaymentObligation{
		ObligationID:   id,
		TeamID:         "team-1",
		Counterparty:   "Acme Corp",
		ExpectedAmount: decimal.NewFromFloat(amount),
		CurrencyCode:   "USD",
		DueDate:        due,
		Balance:        decimal.NewFromFloat(amount),
		Status:         domain.ObligationStatusPending,
		AuditFields:    domain.AuditFields{CreatedAt: due.AddDate(0, -1, 0)},
	}
}

func TestEvaluateMatchAutoMatchesSingleStrongCandidate(t *testing.T) {
	provider, txRepo, obRepo, _, _, audit, outbox := newTestProvider()
	tx := unmatchedTransaction()
	ob := openObligation("ob-1", 40.00, testTime)

	txRepo.FindTransactionByIDFn = func(ctx context.Context, teamID, id string) (*domain.BankTransaction, error) {
		return tx, nil
	}
	obRepo.FindOpenObligationsFn = func(ctx context.Context, q portsrepo.CandidateQuery) ([]domain.PaymentObligation, error) {
		assert.Equal(t, "team-1", q.TeamID)
		assert.Equal(t, "USD", q.CurrencyCode)
		return []domain.PaymentObligation{ob}, nil
	}
	obRepo.FindObligationByIDFn = func(ctx context.Context, teamID, id string) (*domain.PaymentObligation, error) {
		return &ob, nil
	}

	svc := services.NewMatchingService(provider, matching.DefaultConfig(), services.WithClock(testClock))
	resp, err := svc.EvaluateMatch(context.Background(), "team-1", "tx-1")
	require.NoError(t, err)
	assert.Equal(t, string(matching.ActionAutoMatch), resp.Action)

	require.Len(t, txRepo.Transitions, 1)
	transition := txRepo.Transitions[0]
	assert.Equal(t, domain.MatchStatusUnmatched, transition.ExpectedStatus)
	assert.Equal(t, int64(1), transition.ExpectedVersion)
	assert.Equal(t, domain.MatchStatusAutoMatched, transition.NewStatus)
	assert.Equal(t, "ob-1", transition.ObligationID)
	assert.True(t, transition.Confidence.GreaterThanOrEqual(decimal.NewFromFloat(0.90)))

	require.Len(t, obRepo.AppliedPayments, 1)
	assert.True(t, obRepo.AppliedPayments[0].Equal(decimal.NewFromFloat(40.00)), "Payment is applied as an absolute amount")

	require.Len(t, audit.Entries, 1)
	assert.Equal(t, "auto_match", audit.Entries[0].Action)

	require.Len(t, outbox.Enqueued, 1)
	assert.Equal(t, domain.NotificationTransactionAutoMatched, outbox.Enqueued[0].Type)
}

func TestEvaluateMatchAutoMatchesOpaqueBankDescriptor(t *testing.T) {
	// A processor reference shares no tokens with the counterparty name;
	// the exact amount on the due date still auto-matches.
	provider, txRepo, obRepo, _, _, _, _ := newTestProvider()
	tx := unmatchedTransaction()
	tx.Description = "ACH DEBIT 889921"
	tx.Counterparty = ""
	ob := openObligation("ob-1", 40.00, testTime)
	ob.Counterparty = "Acme Plumbing"

	txRepo.FindTransactionByIDFn = func(ctx context.Context, teamID, id string) (*domain.BankTransaction, error) {
		return tx, nil
	}
	obRepo.FindOpenObligationsFn = func(ctx context.Context, q portsrepo.CandidateQuery) ([]domain.PaymentObligation, error) {
		return []domain.PaymentObligation{ob}, nil
	}
	obRepo.FindObligationByIDFn = func(ctx context.Context, teamID, id string) (*domain.PaymentObligation, error) {
		return &ob, nil
	}

	svc := services.NewMatchingService(provider, matching.DefaultConfig(), services.WithClock(testClock))
	resp, err := svc.EvaluateMatch(context.Background(), "team-1", "tx-1")
	require.NoError(t, err)
	assert.Equal(t, string(matching.ActionAutoMatch), resp.Action)

	require.Len(t, txRepo.Transitions, 1)
	assert.Equal(t, domain.MatchStatusAutoMatched, txRepo.Transitions[0].NewStatus)
	assert.True(t, txRepo.Transitions[0].Confidence.GreaterThanOrEqual(decimal.NewFromFloat(0.99)))
}

func TestEvaluateMatchRetriesTransientStoreFailures(t *testing.T) {
	// Every store call in one evaluation gets a bounded retry: here both the
	// transaction load and the state transition fail once before succeeding.
	provider, txRepo, obRepo, _, _, _, _ := newTestProvider()
	tx := unmatchedTransaction()
	ob := openObligation("ob-1", 40.00, testTime)

	loadCalls := 0
	txRepo.FindTransactionByIDFn = func(ctx context.Context, teamID, id string) (*domain.BankTransaction, error) {
		loadCalls++
		if loadCalls == 1 {
			return nil, fmt.Errorf("connection reset: %w", apperrors.ErrTransient)
		}
		return tx, nil
	}
	transitionCalls := 0
	txRepo.TransitionMatchStateFn = func(ctx context.Context, tr portsrepo.MatchStateTransition) (*domain.BankTransaction, error) {
		transitionCalls++
		if transitionCalls == 1 {
			return nil, fmt.Errorf("connection reset: %w", apperrors.ErrTransient)
		}
		updated := *tx
		updated.MatchStatus = tr.NewStatus
		updated.MatchedObligationID = tr.ObligationID
		updated.Version = tr.ExpectedVersion + 1
		return &updated, nil
	}
	obRepo.FindOpenObligationsFn = func(ctx context.Context, q portsrepo.CandidateQuery) ([]domain.PaymentObligation, error) {
		return []domain.PaymentObligation{ob}, nil
	}
	obRepo.FindObligationByIDFn = func(ctx context.Context, teamID, id string) (*domain.PaymentObligation, error) {
		return &ob, nil
	}

	fastRetry := retry.Policy{MaxAttempts: 3, Classify: apperrors.IsTransient}
	svc := services.NewMatchingService(provider, matching.DefaultConfig(),
		services.WithClock(testClock), services.WithRetryPolicy(fastRetry))
	resp, err := svc.EvaluateMatch(context.Background(), "team-1", "tx-1")
	require.NoError(t, err)
	assert.Equal(t, string(matching.ActionAutoMatch), resp.Action)
	assert.Equal(t, 2, loadCalls)
	assert.Equal(t, 2, transitionCalls)
}

func TestEvaluateMatchDefersAmbiguousCandidates(t *testing.T) {
	provider, txRepo, obRepo, sugRepo, _, _, outbox := newTestProvider()
	tx := unmatchedTransaction()

	txRepo.FindTransactionByIDFn = func(ctx context.Context, teamID, id string) (*domain.BankTransaction, error) {
		return tx, nil
	}
	obRepo.FindOpenObligationsFn = func(ctx context.Context, q portsrepo.CandidateQuery) ([]domain.PaymentObligation, error) {
		// Two equally perfect counterparts force a human decision.
		return []domain.PaymentObligation{
			openObligation("ob-1", 40.00, testTime),
			openObligation("ob-2", 40.00, testTime),
		}, nil
	}

	svc := services.NewMatchingService(provider, matching.DefaultConfig(), services.WithClock(testClock))
	resp, err := svc.EvaluateMatch(context.Background(), "team-1", "tx-1")
	require.NoError(t, err)
	assert.Equal(t, string(matching.ActionSuggest), resp.Action)
	require.NotNil(t, resp.Suggestion)
	assert.Equal(t, "ob-1", resp.Suggestion.ObligationID, "Tie breaks deterministically by obligation id")

	require.Len(t, txRepo.Transitions, 1)
	assert.Equal(t, domain.MatchStatusSuggested, txRepo.Transitions[0].NewStatus)

	require.Len(t, sugRepo.Saved, 1)
	assert.Len(t, sugRepo.Saved[0].Candidates, 2)
	assert.Equal(t, domain.SuggestionPending, sugRepo.Saved[0].Resolution)

	assert.Empty(t, obRepo.AppliedPayments, "Suggestions never move money")
	require.Len(t, outbox.Enqueued, 1)
	assert.Equal(t, domain.NotificationMatchSuggested, outbox.Enqueued[0].Type)
}

func TestEvaluateMatchNoCandidatesLeavesTransactionAlone(t *testing.T) {
	provider, txRepo, obRepo, sugRepo, _, _, _ := newTestProvider()
	tx := unmatchedTransaction()

	txRepo.FindTransactionByIDFn = func(ctx context.Context, teamID, id string) (*domain.BankTransaction, error) {
		return tx, nil
	}
	obRepo.FindOpenObligationsFn = func(ctx context.Context, q portsrepo.CandidateQuery) ([]domain.PaymentObligation, error) {
		return nil, nil
	}

	svc := services.NewMatchingService(provider, matching.DefaultConfig(), services.WithClock(testClock))
	resp, err := svc.EvaluateMatch(context.Background(), "team-1", "tx-1")
	require.NoError(t, err)
	assert.Equal(t, string(matching.ActionNoMatch), resp.Action)
	assert.Empty(t, txRepo.Transitions)
	assert.Empty(t, sugRepo.Saved)
}

func TestEvaluateMatchSkipsAlreadyProcessedTransaction(t *testing.T) {
	provider, txRepo, _, _, _, _, _ := newTestProvider()
	tx := unmatchedTransaction()
	tx.MatchStatus = domain.MatchStatusManualMatched

	txRepo.FindTransactionByIDFn = func(ctx context.Context, teamID, id string) (*domain.BankTransaction, error) {
		return tx, nil
	}

	svc := services.NewMatchingService(provider, matching.DefaultConfig(), services.WithClock(testClock))
	resp, err := svc.EvaluateMatch(context.Background(), "team-1", "tx-1")
	require.NoError(t, err)
	assert.Equal(t, string(matching.ActionAutoMatch), resp.Action)
	assert.Empty(t, txRepo.Transitions, "Terminal transactions are never re-evaluated")
}

func TestEvaluateMatchReportsCommittedStateAfterWriteRace(t *testing.T) {
	provider, txRepo, obRepo, _, _, _, _ := newTestProvider()
	tx := unmatchedTransaction()

	reread := false
	txRepo.FindTransactionByIDFn = func(ctx context.Context, teamID, id string) (*domain.BankTransaction, error) {
		if reread {
			committed := *tx
			committed.MatchStatus = domain.MatchStatusAutoMatched
			committed.MatchedObligationID = "ob-1"
			committed.Version = 2
			return &committed, nil
		}
		return tx, nil
	}
	obRepo.FindOpenObligationsFn = func(ctx context.Context, q portsrepo.CandidateQuery) ([]domain.PaymentObligation, error) {
		return []domain.PaymentObligation{openObligation("ob-1", 40.00, testTime)}, nil
	}
	obRepo.FindObligationByIDFn = func(ctx context.Context, teamID, id string) (*domain.PaymentObligation, error) {
		ob := openObligation("ob-1", 40.00, testTime)
		return &ob, nil
	}
	txRepo.TransitionMatchStateFn = func(ctx context.Context, tr portsrepo.MatchStateTransition) (*domain.BankTransaction, error) {
		reread = true
		return nil, apperrors.ErrConflict
	}

	svc := services.NewMatchingService(provider, matching.DefaultConfig(), services.WithClock(testClock))
	resp, err := svc.EvaluateMatch(context.Background(), "team-1", "tx-1")
	require.NoError(t, err, "Losing a write race is not an error")
	assert.Equal(t, string(matching.ActionAutoMatch), resp.Action)
}

func TestConfirmMatchPromotesSuggestion(t *testing.T) {
	provider, txRepo, obRepo, sugRepo, _, audit, _ := newTestProvider()
	tx := unmatchedTransaction()
	tx.MatchStatus = domain.MatchStatusSuggested
	tx.MatchedObligationID = "ob-1"
	tx.MatchConfidence = decimal.NewFromFloat(0.8)
	tx.Version = 2

	txRepo.FindTransactionByIDFn = func(ctx context.Context, teamID, id string) (*domain.BankTransaction, error) {
		return tx, nil
	}
	sugRepo.FindPendingByTransactionFn = func(ctx context.Context, teamID, id string) (*domain.MatchSuggestion, error) {
		return &domain.MatchSuggestion{
			SuggestionID:  "sug-1",
			TeamID:        "team-1",
			TransactionID: "tx-1",
			Candidates:    []domain.RankedCandidate{{ObligationID: "ob-1", Confidence: 0.8}},
			Resolution:    domain.SuggestionPending,
		}, nil
	}

	svc := services.NewMatchingService(provider, matching.DefaultConfig(), services.WithClock(testClock))
	err := svc.ConfirmMatch(context.Background(), "team-1", "tx-1", "user-9")
	require.NoError(t, err)

	require.Len(t, txRepo.Transitions, 1)
	assert.Equal(t, domain.MatchStatusSuggested, txRepo.Transitions[0].ExpectedStatus)
	assert.Equal(t, domain.MatchStatusManualMatched, txRepo.Transitions[0].NewStatus)
	assert.Equal(t, "user-9", txRepo.Transitions[0].ActorID)

	require.Len(t, obRepo.AppliedPayments, 1, "Confirming a suggestion applies the payment")
	require.Len(t, sugRepo.Resolutions, 1)
	assert.Equal(t, domain.SuggestionConfirmed, sugRepo.Resolutions[0])

	require.Len(t, audit.Entries, 1)
	assert.Equal(t, "confirm", audit.Entries[0].Action)
}

func TestConfirmMatchIsIdempotentForConfirmedTransaction(t *testing.T) {
	provider, txRepo, _, _, _, audit, _ := newTestProvider()
	tx := unmatchedTransaction()
	tx.MatchStatus = domain.MatchStatusManualMatched

	txRepo.FindTransactionByIDFn = func(ctx context.Context, teamID, id string) (*domain.BankTransaction, error) {
		return tx, nil
	}

	svc := services.NewMatchingService(provider, matching.DefaultConfig(), services.WithClock(testClock))
	err := svc.ConfirmMatch(context.Background(), "team-1", "tx-1", "user-9")
	require.NoError(t, err)
	assert.Empty(t, txRepo.Transitions)
	assert.Empty(t, audit.Entries)
}

func TestRejectMatchReversesAutoMatchedPayment(t *testing.T) {
	provider, txRepo, obRepo, _, _, _, _ := newTestProvider()
	tx := unmatchedTransaction()
	tx.MatchStatus = domain.MatchStatusAutoMatched
	tx.MatchedObligationID = "ob-1"
	tx.Version = 2

	txRepo.FindTransactionByIDFn = func(ctx context.Context, teamID, id string) (*domain.BankTransaction, error) {
		return tx, nil
	}

	svc := services.NewMatchingService(provider, matching.DefaultConfig(), services.WithClock(testClock))
	err := svc.RejectMatch(context.Background(), "team-1", "tx-1", "user-9")
	require.NoError(t, err)

	require.Len(t, txRepo.Transitions, 1)
	assert.Equal(t, domain.MatchStatusUnmatched, txRepo.Transitions[0].NewStatus)
	assert.Empty(t, txRepo.Transitions[0].ObligationID, "Rejection clears the obligation link")

	require.Len(t, obRepo.AppliedPayments, 1)
	assert.True(t, obRepo.AppliedPayments[0].IsNegative(), "Rejecting an auto match backs the payment out")
}

func TestManualMatchRejectsClosedObligation(t *testing.T) {
	provider, txRepo, obRepo, _, _, _, _ := newTestProvider()
	tx := unmatchedTransaction()

	txRepo.FindTransactionByIDFn = func(ctx context.Context, teamID, id string) (*domain.BankTransaction, error) {
		return tx, nil
	}
	obRepo.FindObligationByIDFn = func(ctx context.Context, teamID, id string) (*domain.PaymentObligation, error) {
		ob := openObligation("ob-1", 40.00, testTime)
		ob.Status = domain.ObligationStatusSettled
		return &ob, nil
	}

	svc := services.NewMatchingService(provider, matching.DefaultConfig(), services.WithClock(testClock))
	err := svc.ManualMatch(context.Background(), "team-1", "tx-1", "user-9", dto.ManualMatchRequest{ObligationID: "ob-1"})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	assert.Empty(t, txRepo.Transitions)
}

func TestFlagDiscrepancyRejectsUnknownType(t *testing.T) {
	provider, txRepo, _, _, _, _, _ := newTestProvider()

	svc := services.NewMatchingService(provider, matching.DefaultConfig(), services.WithClock(testClock))
	err := svc.FlagDiscrepancy(context.Background(), "team-1", "tx-1", "user-9", dto.FlagDiscrepancyRequest{DiscrepancyType: "weird"})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	assert.Empty(t, txRepo.Transitions)
}

func TestFlagDiscrepancyPersistsRecordAndNotifies(t *testing.T) {
	provider, txRepo, _, _, disRepo, _, outbox := newTestProvider()
	tx := unmatchedTransaction()

	txRepo.FindTransactionByIDFn = func(ctx context.Context, teamID, id string) (*domain.BankTransaction, error) {
		return tx, nil
	}

	svc := services.NewMatchingService(provider, matching.DefaultConfig(), services.WithClock(testClock))
	err := svc.FlagDiscrepancy(context.Background(), "team-1", "tx-1", "user-9", dto.FlagDiscrepancyRequest{
		DiscrepancyType: string(domain.DiscrepancyUnrecognized),
		Note:            "unknown sender",
	})
	require.NoError(t, err)

	require.Len(t, txRepo.Transitions, 1)
	assert.Equal(t, domain.MatchStatusFlagged, txRepo.Transitions[0].NewStatus)
	assert.Equal(t, domain.DiscrepancyUnrecognized, txRepo.Transitions[0].DiscrepancyType)

	require.Len(t, disRepo.Saved, 1)
	assert.Equal(t, domain.DiscrepancyUnrecognized, disRepo.Saved[0].Type)

	require.Len(t, outbox.Enqueued, 1)
	assert.Equal(t, domain.NotificationDiscrepancyDetected, outbox.Enqueued[0].Type)
}

func TestResolveDiscrepancyExcludesTransaction(t *testing.T) {
	provider, txRepo, _, _, disRepo, _, _ := newTestProvider()
	tx := unmatchedTransaction()
	tx.MatchStatus = domain.MatchStatusFlagged
	tx.DiscrepancyType = domain.DiscrepancyBankFee
	tx.Version = 3

	txRepo.FindTransactionByIDFn = func(ctx context.Context, teamID, id string) (*domain.BankTransaction, error) {
		return tx, nil
	}
	disRepo.FindOpenByTransactionFn = func(ctx context.Context, teamID, id string) (*domain.DiscrepancyRecord, error) {
		return &domain.DiscrepancyRecord{RecordID: "rec-1", TransactionID: "tx-1", Type: domain.DiscrepancyBankFee}, nil
	}

	svc := services.NewMatchingService(provider, matching.DefaultConfig(), services.WithClock(testClock))
	err := svc.ResolveDiscrepancy(context.Background(), "team-1", "tx-1", "user-9", dto.ResolveDiscrepancyRequest{
		Resolution: string(domain.DiscrepancyResolutionExcluded),
	})
	require.NoError(t, err)

	require.Len(t, txRepo.Transitions, 1)
	assert.Equal(t, domain.MatchStatusFlagged, txRepo.Transitions[0].ExpectedStatus)
	assert.Equal(t, domain.MatchStatusExcluded, txRepo.Transitions[0].NewStatus)
	assert.Equal(t, []string{"rec-1"}, disRepo.Resolved)
}

func TestBulkConfirmRequiresIdsOrDateRange(t *testing.T) {
	provider, _, _, _, _, _, _ := newTestProvider()

	svc := services.NewMatchingService(provider, matching.DefaultConfig(), services.WithClock(testClock))
	_, err := svc.BulkConfirmMatches(context.Background(), "team-1", "user-9", dto.BulkConfirmRequest{})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestBulkConfirmReportsCount(t *testing.T) {
	provider, txRepo, _, _, _, _, _ := newTestProvider()
	txRepo.BulkConfirmFn = func(ctx context.Context, teamID, userID string, ids []string, from, to *time.Time, now time.Time) (int, error) {
		return 7, nil
	}

	svc := services.NewMatchingService(provider, matching.DefaultConfig(), services.WithClock(testClock))
	resp, err := svc.BulkConfirmMatches(context.Background(), "team-1", "user-9", dto.BulkConfirmRequest{
		TransactionIDs: []string{"tx-1", "tx-2"},
	})
	require.NoError(t, err)
	assert.Equal(t, 7, resp.Confirmed)
}

func TestListTransactionsRejectsUnknownStatus(t *testing.T) {
	provider, _, _, _, _, _, _ := newTestProvider()

	svc := services.NewMatchingService(provider, matching.DefaultConfig(), services.WithClock(testClock))
	_, err := svc.ListTransactions(context.Background(), "team-1", dto.ListTransactionsRequest{
		MatchStatuses: []string{"half_matched"},
	})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}
