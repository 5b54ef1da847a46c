package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchStatusCanTransitionTo(t *testing.T) {
	tests := []struct {
		name    string
		from    MatchStatus
		to      MatchStatus
		allowed bool
	}{
		{"auto match from unmatched", MatchStatusUnmatched, MatchStatusAutoMatched, true},
		{"suggestion from unmatched", MatchStatusUnmatched, MatchStatusSuggested, true},
		{"manual match from unmatched", MatchStatusUnmatched, MatchStatusManualMatched, true},
		{"confirm suggestion", MatchStatusSuggested, MatchStatusManualMatched, true},
		{"reject suggestion", MatchStatusSuggested, MatchStatusUnmatched, true},
		{"reopen auto match", MatchStatusAutoMatched, MatchStatusUnmatched, true},
		{"confirm auto match", MatchStatusAutoMatched, MatchStatusManualMatched, true},
		{"flag from unmatched", MatchStatusUnmatched, MatchStatusFlagged, true},
		{"flag from auto matched", MatchStatusAutoMatched, MatchStatusFlagged, true},
		{"flag from excluded", MatchStatusExcluded, MatchStatusFlagged, true},
		{"resolve flag as excluded", MatchStatusFlagged, MatchStatusExcluded, true},
		{"resolve flag as manual match", MatchStatusFlagged, MatchStatusManualMatched, true},

		{"flag while flagged", MatchStatusFlagged, MatchStatusFlagged, false},
		{"auto match from excluded", MatchStatusExcluded, MatchStatusAutoMatched, false},
		{"auto match from manual matched", MatchStatusManualMatched, MatchStatusAutoMatched, false},
		{"suggestion from manual matched", MatchStatusManualMatched, MatchStatusSuggested, false},
		{"reopen manual match", MatchStatusManualMatched, MatchStatusUnmatched, false},
		{"exclude without flag", MatchStatusUnmatched, MatchStatusExcluded, false},
		{"auto match from flagged", MatchStatusFlagged, MatchStatusAutoMatched, false},
		{"unknown source status", MatchStatus("bogus"), MatchStatusUnmatched, false},
		{"unknown target status", MatchStatusUnmatched, MatchStatus("bogus"), false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.allowed, tc.from.CanTransitionTo(tc.to))
		})
	}
}

func TestMatchStatusPredicates(t *testing.T) {
	assert.True(t, MatchStatusManualMatched.IsTerminal())
	assert.True(t, MatchStatusExcluded.IsTerminal())
	assert.False(t, MatchStatusAutoMatched.IsTerminal())
	assert.False(t, MatchStatusFlagged.IsTerminal())

	assert.True(t, MatchStatusAutoMatched.IsMatched())
	assert.True(t, MatchStatusSuggested.IsMatched())
	assert.True(t, MatchStatusManualMatched.IsMatched())
	assert.False(t, MatchStatusUnmatched.IsMatched())
	assert.False(t, MatchStatusExcluded.IsMatched())

	assert.False(t, MatchStatus("").IsValid())
}

func TestDecodeRuleCondition(t *testing.T) {
	t.Run("event based", func(t *testing.T) {
		cond, err := DecodeRuleCondition(TriggerEventBased, []byte(`{"eventType":"nsf_returned"}`))
		assert.NoError(t, err)
		if assert.NotNil(t, cond.Event) {
			assert.Equal(t, "nsf_returned", cond.Event.EventType)
		}
		assert.Nil(t, cond.Time)
	})

	t.Run("time based", func(t *testing.T) {
		cond, err := DecodeRuleCondition(TriggerTimeBased, []byte(`{"daysInStage":14}`))
		assert.NoError(t, err)
		if assert.NotNil(t, cond.Time) {
			assert.Equal(t, 14, cond.Time.DaysInStage)
		}
	})

	t.Run("missing event type", func(t *testing.T) {
		_, err := DecodeRuleCondition(TriggerEventBased, []byte(`{}`))
		assert.Error(t, err)
	})

	t.Run("non positive days", func(t *testing.T) {
		_, err := DecodeRuleCondition(TriggerTimeBased, []byte(`{"daysInStage":0}`))
		assert.Error(t, err)
	})

	t.Run("unknown trigger", func(t *testing.T) {
		_, err := DecodeRuleCondition(TriggerType("cron"), []byte(`{}`))
		assert.Error(t, err)
	})
}
