package matching

import (
	"testing"
	"time"

	"github.com/northfin/recon_backend/internal/core/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cand(obligationID string, confidence float64) domain.MatchCandidate {
	return domain.MatchCandidate{
		TransactionID: "tx-1",
		ObligationID:  obligationID,
		Confidence:    confidence,
		AmountDelta:   decimal.Zero,
	}
}

func TestDecideAutoMatchRequiresSingleHighConfidenceCandidate(t *testing.T) {
	cfg := DefaultConfig()

	d := Decide(cfg, []domain.MatchCandidate{cand("ob-1", 0.95), cand("ob-2", 0.40)})
	assert.Equal(t, ActionAutoMatch, d.Action)
	require.NotNil(t, d.Best)
	assert.Equal(t, "ob-1", d.Best.ObligationID)
}

func TestDecideTwoEquallyHighCandidatesBecomeSuggestion(t *testing.T) {
	// Strict uniqueness at the auto threshold: two 0.95 candidates must not
	// silently auto-match either one.
	cfg := DefaultConfig()

	d := Decide(cfg, []domain.MatchCandidate{cand("ob-1", 0.95), cand("ob-2", 0.95)})
	assert.Equal(t, ActionSuggest, d.Action)
	assert.Nil(t, d.Best)
	assert.Len(t, d.Ranked, 2)
}

func TestDecideMediumConfidenceSuggestion(t *testing.T) {
	cfg := DefaultConfig()

	d := Decide(cfg, []domain.MatchCandidate{cand("ob-1", 0.75)})
	assert.Equal(t, ActionSuggest, d.Action)
	require.Len(t, d.Ranked, 1)
	assert.Equal(t, "ob-1", d.Ranked[0].ObligationID)
}

func TestDecideNoMatchBelowSuggestionThreshold(t *testing.T) {
	cfg := DefaultConfig()

	d := Decide(cfg, []domain.MatchCandidate{cand("ob-1", 0.55), cand("ob-2", 0.10)})
	assert.Equal(t, ActionNoMatch, d.Action)
	assert.Empty(t, d.Ranked)

	d = Decide(cfg, nil)
	assert.Equal(t, ActionNoMatch, d.Action)
}

func TestDecideCapsSuggestionList(t *testing.T) {
	cfg := DefaultConfig()

	d := Decide(cfg, []domain.MatchCandidate{
		cand("ob-1", 0.85), cand("ob-2", 0.80), cand("ob-3", 0.75), cand("ob-4", 0.70),
	})
	assert.Equal(t, ActionSuggest, d.Action)
	assert.Len(t, d.Ranked, cfg.MaxSuggestions)
	assert.Equal(t, "ob-1", d.Ranked[0].ObligationID)
}

func TestSortCandidatesTieBreaks(t *testing.T) {
	created := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

	a := cand("ob-b", 0.8)
	a.AmountDelta = decimal.RequireFromString("0.50")
	a.DateDeltaDays = 1
	a.ObligationDate = created

	b := cand("ob-a", 0.8)
	b.AmountDelta = decimal.RequireFromString("0.50")
	b.DateDeltaDays = 1
	b.ObligationDate = created

	c := cand("ob-c", 0.8)
	c.AmountDelta = decimal.Zero
	c.DateDeltaDays = 3
	c.ObligationDate = created.AddDate(0, 0, 5)

	cands := []domain.MatchCandidate{a, b, c}
	SortCandidates(cands)

	// Exact amount beats closer date; equal candidates fall back to id order.
	assert.Equal(t, "ob-c", cands[0].ObligationID)
	assert.Equal(t, "ob-a", cands[1].ObligationID)
	assert.Equal(t, "ob-b", cands[2].ObligationID)
}

func TestSortCandidatesDeterministic(t *testing.T) {
	build := func() []domain.MatchCandidate {
		return []domain.MatchCandidate{cand("ob-2", 0.7), cand("ob-1", 0.7), cand("ob-3", 0.9)}
	}

	first := build()
	SortCandidates(first)
	for i := 0; i < 5; i++ {
		next := build()
		SortCandidates(next)
		assert.Equal(t, first, next)
	}
}
