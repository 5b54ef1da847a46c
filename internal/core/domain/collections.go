package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// CollectionStage is one step of a team's ordered collections pipeline.
type CollectionStage struct {
	StageID    string `json:"stageID"`
	TeamID     string `json:"teamID"`
	Name       string `json:"name"`
	Slug       string `json:"slug"`
	Position   int    `json:"position"`
	IsDefault  bool   `json:"isDefault"`  // entry stage for new cases
	IsTerminal bool   `json:"isTerminal"` // reaching it resolves the case

	AuditFields
}

// CollectionCase tracks one deal moving through collections. Invariant: at
// most one unresolved case (ResolvedAt == nil) exists per deal.
type CollectionCase struct {
	CaseID               string     `json:"caseID"`
	TeamID               string     `json:"teamID"`
	DealID               string     `json:"dealID"`
	StageID              string     `json:"stageID"`
	AssignedTo           string     `json:"assignedTo,omitempty"` // userID, may be empty
	StageEnteredAt       time.Time  `json:"stageEnteredAt"`
	EnteredCollectionsAt time.Time  `json:"enteredCollectionsAt"`
	ResolvedAt           *time.Time `json:"resolvedAt,omitempty"`
	Version              int64      `json:"version"` // optimistic concurrency token

	AuditFields
}

// Active reports whether the case is still being worked.
func (c CollectionCase) Active() bool {
	return c.ResolvedAt == nil
}

// DaysInStage is the whole number of days since the case entered its stage.
func (c CollectionCase) DaysInStage(now time.Time) int {
	return int(now.Sub(c.StageEnteredAt).Hours() / 24)
}

// DaysInCollections is the whole number of days since the case was opened.
func (c CollectionCase) DaysInCollections(now time.Time) int {
	return int(now.Sub(c.EnteredCollectionsAt).Hours() / 24)
}

// TriggerType discriminates the two escalation rule families.
type TriggerType string

const (
	TriggerEventBased TriggerType = "event_based"
	TriggerTimeBased  TriggerType = "time_based"
)

// EventCondition fires when a named business event arrives for a deal whose
// active case sits in the rule's from-stage.
type EventCondition struct {
	EventType string `json:"eventType"`
}

// TimeCondition fires when a case has sat in the rule's from-stage for at
// least DaysInStage days.
type TimeCondition struct {
	DaysInStage int `json:"daysInStage"`
}

// RuleCondition is the tagged union of the two condition shapes, keyed by the
// owning rule's TriggerType. Exactly one branch is non-nil.
type RuleCondition struct {
	Event *EventCondition `json:"event,omitempty"`
	Time  *TimeCondition  `json:"time,omitempty"`
}

// DecodeRuleCondition parses the stored JSON condition payload according to
// the rule's trigger type and rejects malformed shapes before any write path
// can observe them.
func DecodeRuleCondition(trigger TriggerType, raw []byte) (RuleCondition, error) {
	switch trigger {
	case TriggerEventBased:
		var c EventCondition
		if err := json.Unmarshal(raw, &c); err != nil {
			return RuleCondition{}, fmt.Errorf("invalid event condition payload: %w", err)
		}
		if c.EventType == "" {
			return RuleCondition{}, fmt.Errorf("event condition missing eventType")
		}
		return RuleCondition{Event: &c}, nil
	case TriggerTimeBased:
		var c TimeCondition
		if err := json.Unmarshal(raw, &c); err != nil {
			return RuleCondition{}, fmt.Errorf("invalid time condition payload: %w", err)
		}
		if c.DaysInStage <= 0 {
			return RuleCondition{}, fmt.Errorf("time condition requires a positive daysInStage")
		}
		return RuleCondition{Time: &c}, nil
	default:
		return RuleCondition{}, fmt.Errorf("unknown trigger type %q", trigger)
	}
}

// Encode serializes the populated branch back to the storage payload.
func (c RuleCondition) Encode() ([]byte, error) {
	switch {
	case c.Event != nil:
		return json.Marshal(c.Event)
	case c.Time != nil:
		return json.Marshal(c.Time)
	default:
		return nil, fmt.Errorf("empty rule condition")
	}
}

// EscalationRule maps an active case in FromStageID to ToStageID when its
// condition is met. Rules are evaluated in creation order; the first match
// within a stage wins.
type EscalationRule struct {
	RuleID      string        `json:"ruleID"`
	TeamID      string        `json:"teamID"`
	TriggerType TriggerType   `json:"triggerType"`
	FromStageID string        `json:"fromStageID"`
	ToStageID   string        `json:"toStageID"`
	Condition   RuleCondition `json:"condition"`
	IsActive    bool          `json:"isActive"`

	AuditFields
}

// CollectionNote is an audit note appended to a case, e.g. on escalation.
type CollectionNote struct {
	NoteID    string    `json:"noteID"`
	TeamID    string    `json:"teamID"`
	CaseID    string    `json:"caseID"`
	Body      string    `json:"body"`
	AuthorID  string    `json:"authorID,omitempty"` // empty for system notes
	CreatedAt time.Time `json:"createdAt"`
}
