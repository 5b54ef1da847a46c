// Package matching implements the confidence scoring and decision core of
// the reconciliation engine. It is pure computation: given one bank
// transaction and a set of candidate payment obligations it produces scored
// candidates and a deterministic auto-match / suggestion / no-match decision.
//
// Candidate lookup and all persistence live in the service layer; this
// package never touches storage.
package matching

// SignalWeights controls how the per-signal scores combine into the final
// confidence. Weights should sum to 1.
type SignalWeights struct {
	Amount   float64
	Date     float64
	Name     float64
	Currency float64
}

// Config holds the engine tunables. The thresholds are inferred operating
// defaults, not constants: callers load them from configuration.
type Config struct {
	// AutoMatchThreshold is the minimum confidence for an automatic match.
	// Exactly one candidate must clear it, otherwise the decision degrades
	// to a suggestion.
	AutoMatchThreshold float64

	// SuggestionThreshold is the minimum confidence for a candidate to be
	// offered to a human.
	SuggestionThreshold float64

	// LookbackDays bounds the candidate search window relative to the
	// transaction date.
	LookbackDays int

	// MaxCandidates caps how many counterpart records a single evaluation
	// considers.
	MaxCandidates int

	// MaxSuggestions caps how many ranked candidates a persisted suggestion
	// keeps.
	MaxSuggestions int

	// AmountTolerancePercent is the relative amount difference below which a
	// matched pair is not treated as a discrepancy.
	AmountTolerancePercent float64

	Weights SignalWeights
}

// DefaultConfig returns the documented engine defaults.
func DefaultConfig() Config {
	return Config{
		AutoMatchThreshold:     0.90,
		SuggestionThreshold:    0.60,
		LookbackDays:           45,
		MaxCandidates:          50,
		MaxSuggestions:         3,
		AmountTolerancePercent: 0.01,
		Weights: SignalWeights{
			Amount:   0.5,
			Date:     0.25,
			Name:     0.15,
			Currency: 0.1,
		},
	}
}
