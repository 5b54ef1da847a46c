package matching

import (
	"testing"
	"time"

	"github.com/northfin/recon_backend/internal/core/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var scoreDate = time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)

func testTransaction(amount string, date time.Time, counterparty string) domain.BankTransaction {
	return domain.BankTransaction{
		TransactionID: "tx-1",
		TeamID:        "team-1",
		Amount:        decimal.RequireFromString(amount),
		CurrencyCode:  "USD",
		Date:          date,
		Counterparty:  counterparty,
	}
}

func testObligation(id, expected string, due time.Time, counterparty string) domain.PaymentObligation {
	return domain.PaymentObligation{
		ObligationID:   id,
		TeamID:         "team-1",
		Counterparty:   counterparty,
		ExpectedAmount: decimal.RequireFromString(expected),
		CurrencyCode:   "USD",
		DueDate:        due,
		Balance:        decimal.RequireFromString(expected),
		Status:         domain.ObligationStatusPending,
	}
}

func TestScoreExactAmountSameDay(t *testing.T) {
	sc := NewScorer(DefaultConfig())

	cand := sc.Score(
		testTransaction("-40.00", scoreDate, "Acme Plumbing"),
		testObligation("ob-1", "40.00", scoreDate, "Acme Plumbing LLC"),
	)

	assert.Equal(t, 1.0, cand.Signals.AmountScore)
	assert.Equal(t, 1.0, cand.Signals.DateScore)
	assert.Equal(t, 1.0, cand.Signals.CurrencyScore)
	assert.GreaterOrEqual(t, cand.Signals.NameScore, 0.9)
	assert.GreaterOrEqual(t, cand.Confidence, 0.90, "single exact candidate must clear the auto threshold")
}

func TestScoreExactAmountNoCounterparty(t *testing.T) {
	// A bank line with no usable counterparty still auto-matches on exact
	// amount and date; missing names are neutral, not disqualifying.
	sc := NewScorer(DefaultConfig())

	cand := sc.Score(
		testTransaction("-40.00", scoreDate, ""),
		testObligation("ob-1", "40.00", scoreDate, "Acme Plumbing LLC"),
	)

	assert.Equal(t, 0.5, cand.Signals.NameScore)
	assert.GreaterOrEqual(t, cand.Confidence, 0.90)
}

func TestScoreExactAmountDisjointDescriptor(t *testing.T) {
	// Bank descriptors routinely share no tokens with the counterparty name.
	// An exact amount on the due date identifies the obligation by itself
	// and must clear the auto threshold with zero name signal.
	sc := NewScorer(DefaultConfig())

	cand := sc.Score(
		testTransaction("-40.00", scoreDate, "ACH DEBIT 889921"),
		testObligation("ob-1", "40.00", scoreDate, "Acme Plumbing"),
	)

	assert.Zero(t, cand.Signals.NameScore)
	assert.Equal(t, exactAmountOnDueDateConfidence, cand.Confidence)
	assert.GreaterOrEqual(t, cand.Confidence, DefaultConfig().AutoMatchThreshold)
}

func TestScoreExactAmountNearDueDateFloor(t *testing.T) {
	sc := NewScorer(DefaultConfig())

	twoDays := sc.Score(
		testTransaction("-40.00", scoreDate.AddDate(0, 0, 2), "ACH DEBIT 889921"),
		testObligation("ob-1", "40.00", scoreDate, "Acme Plumbing"),
	)
	assert.Equal(t, exactAmountNearDueDateConfidence, twoDays.Confidence)

	// Past two days the floor no longer applies and the weighted signals
	// decide on their own.
	fourDays := sc.Score(
		testTransaction("-40.00", scoreDate.AddDate(0, 0, 4), "ACH DEBIT 889921"),
		testObligation("ob-1", "40.00", scoreDate, "Acme Plumbing"),
	)
	assert.Less(t, fourDays.Confidence, DefaultConfig().AutoMatchThreshold)
}

func TestScoreCurrencyMismatchForcesZero(t *testing.T) {
	sc := NewScorer(DefaultConfig())

	ob := testObligation("ob-1", "40.00", scoreDate, "Acme Plumbing")
	ob.CurrencyCode = "EUR"
	cand := sc.Score(testTransaction("-40.00", scoreDate, "Acme Plumbing"), ob)

	assert.Zero(t, cand.Confidence)
	assert.Equal(t, "currency mismatch", cand.Rule)
}

func TestScoreAmountTiers(t *testing.T) {
	sc := NewScorer(DefaultConfig())

	tests := []struct {
		name     string
		amount   string
		expected string
		want     float64
	}{
		{"exact", "-100.00", "100.00", 1.0},
		{"within one percent", "-99.50", "100.00", 0.98},
		{"within five percent", "-96.00", "100.00", 0.85},
		{"within ten percent", "-92.00", "100.00", 0.60},
		{"within twenty percent", "-85.00", "100.00", 0.30},
		{"way off", "-40.00", "100.00", 0.0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			score, _ := sc.amountScore(
				decimal.RequireFromString(tc.amount),
				decimal.RequireFromString(tc.expected),
			)
			assert.InDelta(t, tc.want, score, 1e-9)
		})
	}
}

func TestScoreDateDecay(t *testing.T) {
	sc := NewScorer(DefaultConfig())
	ob := testObligation("ob-1", "40.00", scoreDate, "Acme")

	sameDay := sc.Score(testTransaction("-40.00", scoreDate, "Acme"), ob)
	weekLater := sc.Score(testTransaction("-40.00", scoreDate.AddDate(0, 0, 7), "Acme"), ob)
	monthLater := sc.Score(testTransaction("-40.00", scoreDate.AddDate(0, 0, 40), "Acme"), ob)

	assert.Greater(t, sameDay.Confidence, weekLater.Confidence)
	assert.Greater(t, weekLater.Confidence, monthLater.Confidence)
	assert.Equal(t, 0.1, monthLater.Signals.DateScore)
}

func TestScoreDeterminism(t *testing.T) {
	sc := NewScorer(DefaultConfig())
	tx := testTransaction("-123.45", scoreDate, "Blue Harbor Cafe")
	ob := testObligation("ob-1", "125.00", scoreDate.AddDate(0, 0, -2), "Blue Harbor Café LLC")

	first := sc.Score(tx, ob)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, sc.Score(tx, ob))
	}
}

func TestWithinAmountTolerance(t *testing.T) {
	sc := NewScorer(DefaultConfig())

	assert.True(t, sc.WithinAmountTolerance(
		decimal.RequireFromString("-40.00"), decimal.RequireFromString("40.00")))
	assert.True(t, sc.WithinAmountTolerance(
		decimal.RequireFromString("-39.80"), decimal.RequireFromString("40.00")))
	assert.False(t, sc.WithinAmountTolerance(
		decimal.RequireFromString("-38.00"), decimal.RequireFromString("40.00")))
}

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Café Motta, LLC", "cafe motta llc"},
		{"ACME   PLUMBING*0042", "acme plumbing 0042"},
		{"  ", ""},
		{"Müller & Söhne GmbH", "muller sohne gmbh"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, NormalizeName(tc.in))
	}
}

func TestNameSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, NameSimilarity("Acme LLC", "ACME, LLC"))
	assert.Equal(t, 0.9, NameSimilarity("ACH WITHDRAWAL ACME PLUMBING 0042", "Acme Plumbing 0042"))
	assert.Equal(t, 0.5, NameSimilarity("", "Acme"))
	assert.Equal(t, 0.0, NameSimilarity("Northwind Traders", "Acme Plumbing"))

	partial := NameSimilarity("Acme Plumbing Supply", "Acme Heating")
	require.Greater(t, partial, 0.0)
	require.Less(t, partial, 1.0)
}
