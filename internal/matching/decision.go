package matching

import (
	"sort"

	"github.com/northfin/recon_backend/internal/core/domain"
)

// Action is the outcome family of a match decision.
type Action string

const (
	ActionAutoMatch Action = "auto_matched"
	ActionSuggest   Action = "suggestion_created"
	ActionNoMatch   Action = "no_match_yet"
)

// Decision is the result of converting scored candidates into an outcome.
type Decision struct {
	Action Action

	// Best is set for ActionAutoMatch only.
	Best *domain.MatchCandidate

	// Ranked is the ordered suggestion list for ActionSuggest, capped at
	// Config.MaxSuggestions.
	Ranked []domain.MatchCandidate
}

// SortCandidates orders candidates deterministically: confidence descending,
// then smaller amount difference, then closer date, then earlier obligation
// creation, then obligation id. Stable ordering is required for idempotent
// re-runs.
func SortCandidates(cands []domain.MatchCandidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if cmp := a.AmountDelta.Cmp(b.AmountDelta); cmp != 0 {
			return cmp < 0
		}
		if a.DateDeltaDays != b.DateDeltaDays {
			return a.DateDeltaDays < b.DateDeltaDays
		}
		if !a.ObligationDate.Equal(b.ObligationDate) {
			return a.ObligationDate.Before(b.ObligationDate)
		}
		return a.ObligationID < b.ObligationID
	})
}

// Decide converts scored candidates into one of three outcomes:
//
//   - exactly one candidate at or above AutoMatchThreshold: auto-match;
//   - anything else with at least one candidate at or above
//     SuggestionThreshold: suggestion (ambiguity is always deferred to a
//     human, including several equally high-confidence candidates);
//   - otherwise: no match, the transaction stays unmatched.
func Decide(cfg Config, cands []domain.MatchCandidate) Decision {
	eligible := make([]domain.MatchCandidate, 0, len(cands))
	for _, c := range cands {
		if c.Confidence >= cfg.SuggestionThreshold {
			eligible = append(eligible, c)
		}
	}
	if len(eligible) == 0 {
		return Decision{Action: ActionNoMatch}
	}

	SortCandidates(eligible)

	autoCount := 0
	for _, c := range eligible {
		if c.Confidence >= cfg.AutoMatchThreshold {
			autoCount++
		}
	}
	if autoCount == 1 && eligible[0].Confidence >= cfg.AutoMatchThreshold {
		best := eligible[0]
		return Decision{Action: ActionAutoMatch, Best: &best, Ranked: capRanked(cfg, eligible)}
	}

	return Decision{Action: ActionSuggest, Ranked: capRanked(cfg, eligible)}
}

func capRanked(cfg Config, cands []domain.MatchCandidate) []domain.MatchCandidate {
	max := cfg.MaxSuggestions
	if max <= 0 || len(cands) <= max {
		return cands
	}
	return cands[:max]
}
