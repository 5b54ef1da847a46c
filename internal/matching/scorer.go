package matching

import (
	"fmt"
	"math"
	"time"

	"github.com/northfin/recon_backend/internal/core/domain"
	"github.com/shopspring/decimal"
)

// Confidence floors for exact-amount pairs. An exact amount close to the
// due date identifies the obligation on its own; bank descriptors like
// "ACH DEBIT 889921" rarely share tokens with the counterparty name, so the
// name signal must never drag such a pair below the auto-match bar.
const (
	exactAmountOnDueDateConfidence   = 0.99
	exactAmountNearDueDateConfidence = 0.90
)

// Scorer computes confidence scores for transaction/obligation pairs.
type Scorer struct {
	cfg Config
}

// NewScorer creates a scorer with the given configuration.
func NewScorer(cfg Config) *Scorer {
	return &Scorer{cfg: cfg}
}

// Score evaluates one candidate pairing. Identical inputs always produce
// identical output; the scorer holds no state between calls.
func (sc *Scorer) Score(tx domain.BankTransaction, ob domain.PaymentObligation) domain.MatchCandidate {
	cand := domain.MatchCandidate{
		TransactionID:  tx.TransactionID,
		ObligationID:   ob.ObligationID,
		ObligationDate: ob.CreatedAt,
	}

	curScore := currencyScore(tx.CurrencyCode, ob.CurrencyCode)
	if curScore == 0 {
		// Currency is a binary gate: without a recorded conversion the pair
		// cannot match at all.
		cand.Rule = "currency mismatch"
		return cand
	}

	amtScore, amountDelta := sc.amountScore(tx.Amount, ob.ExpectedAmount)
	dtScore, dayDelta := dateScore(tx.Date, ob.DueDate)
	nmScore := NameSimilarity(bestCounterparty(tx), ob.Counterparty)

	w := sc.cfg.Weights
	cand.Confidence = amtScore*w.Amount + dtScore*w.Date + nmScore*w.Name + curScore*w.Currency
	if amtScore == 1.0 {
		switch {
		case dayDelta == 0:
			cand.Confidence = math.Max(cand.Confidence, exactAmountOnDueDateConfidence)
		case dayDelta <= 2:
			cand.Confidence = math.Max(cand.Confidence, exactAmountNearDueDateConfidence)
		}
	}
	cand.Signals = domain.MatchSignals{
		AmountScore:   amtScore,
		DateScore:     dtScore,
		NameScore:     nmScore,
		CurrencyScore: curScore,
	}
	cand.AmountDelta = amountDelta
	cand.DateDeltaDays = dayDelta
	cand.Rule = describeMatch(amtScore, dayDelta, nmScore)
	return cand
}

// WithinAmountTolerance reports whether a matched pair's amounts agree
// closely enough that no discrepancy classification is needed.
func (sc *Scorer) WithinAmountTolerance(txAmount, expected decimal.Decimal) bool {
	diff := txAmount.Abs().Sub(expected.Abs()).Abs()
	if expected.IsZero() {
		return diff.IsZero()
	}
	tolerance := expected.Abs().Mul(decimal.NewFromFloat(sc.cfg.AmountTolerancePercent))
	return diff.LessThanOrEqual(tolerance)
}

// amountScore compares the transaction amount against the expected amount
// using a tiered percentage-difference table. Payments arrive with the
// opposite sign of the obligation, so opposite-sign pairs compare by
// absolute value.
func (sc *Scorer) amountScore(txAmount, expected decimal.Decimal) (float64, decimal.Decimal) {
	a, b := txAmount, expected
	if a.Sign() != b.Sign() {
		a, b = a.Abs(), b.Abs()
	}
	diff := a.Sub(b).Abs()
	maxAmount := decimal.Max(a.Abs(), b.Abs())
	if maxAmount.IsZero() {
		if txAmount.Equal(expected) {
			return 1.0, diff
		}
		return 0.0, diff
	}

	pct := diff.Div(maxAmount).InexactFloat64()
	var score float64
	switch {
	case pct == 0:
		score = 1.0
	case pct <= 0.01:
		score = 0.98
	case pct <= 0.02:
		score = 0.95
	case pct <= 0.025:
		score = 0.92
	case pct <= 0.03:
		score = 0.90
	case pct <= 0.05:
		score = 0.85
	case pct <= 0.10:
		score = 0.60
	case pct <= 0.20:
		score = 0.30
	default:
		score = 0.0
	}
	return score, diff
}

// dateScore decays with the distance between the transaction date and the
// obligation's due date.
func dateScore(txDate, dueDate time.Time) (float64, float64) {
	days := math.Abs(txDate.Sub(dueDate).Hours() / 24)
	var score float64
	switch {
	case days == 0:
		score = 1.0
	case days <= 1:
		score = 0.95
	case days <= 3:
		score = 0.85
	case days <= 7:
		score = 0.75
	case days <= 14:
		score = 0.60
	case days <= 30:
		score = math.Max(0.3, 1-(days/30)*0.7)
	default:
		score = 0.1
	}
	return score, days
}

// currencyScore gates on currency equality. Missing currency information is
// neutral; a hard mismatch disqualifies the pair.
func currencyScore(a, b string) float64 {
	if a == "" || b == "" {
		return 0.5
	}
	if a == b {
		return 1.0
	}
	return 0.0
}

// bestCounterparty prefers the parsed counterparty name over the raw bank
// descriptor.
func bestCounterparty(tx domain.BankTransaction) string {
	if tx.Counterparty != "" {
		return tx.Counterparty
	}
	return tx.Description
}

func describeMatch(amountScore, dayDelta, nameScore float64) string {
	switch {
	case amountScore == 1.0 && dayDelta == 0:
		return "exact amount on due date"
	case amountScore == 1.0:
		return fmt.Sprintf("exact amount, %.0f day(s) from due date", dayDelta)
	case amountScore >= 0.9:
		return fmt.Sprintf("amount within tolerance, %.0f day(s) from due date", dayDelta)
	case nameScore >= 0.9:
		return "counterparty name match"
	default:
		return "weighted signal match"
	}
}
