package dto

import "encoding/json"

// EscalationEventRequest is the business-event hook payload.
type EscalationEventRequest struct {
	DealID    string `json:"dealID" binding:"required,uuid"`
	EventType string `json:"eventType" binding:"required"`
}

// EscalationResult reports whether a rule fired and where the case moved.
type EscalationResult struct {
	Escalated bool   `json:"escalated"`
	CaseID    string `json:"caseID,omitempty"`
	ToStageID string `json:"toStageID,omitempty"`
}

// UpsertStageRequest creates or updates a collection stage definition.
type UpsertStageRequest struct {
	StageID    string `json:"stageID" binding:"omitempty,uuid"`
	Name       string `json:"name" binding:"required,max=100"`
	Slug       string `json:"slug" binding:"required,max=100"`
	Position   int    `json:"position" binding:"required,min=1"`
	IsDefault  bool   `json:"isDefault"`
	IsTerminal bool   `json:"isTerminal"`
}

// UpsertRuleRequest creates or updates an escalation rule. Condition is the
// raw payload whose shape is validated against TriggerType before any write.
type UpsertRuleRequest struct {
	RuleID      string          `json:"ruleID" binding:"omitempty,uuid"`
	TriggerType string          `json:"triggerType" binding:"required,oneof=event_based time_based"`
	FromStageID string          `json:"fromStageID" binding:"required,uuid"`
	ToStageID   string          `json:"toStageID" binding:"required,uuid"`
	Condition   json.RawMessage `json:"condition" binding:"required"`
	IsActive    *bool           `json:"isActive"`
}

// OpenCaseRequest puts a deal into collections.
type OpenCaseRequest struct {
	DealID     string `json:"dealID" binding:"required,uuid"`
	StageID    string `json:"stageID" binding:"omitempty,uuid"` // default stage when empty
	AssignedTo string `json:"assignedTo" binding:"omitempty,uuid"`
}

// ListCasesRequest filters the case listing.
type ListCasesRequest struct {
	Status     string `form:"status" binding:"omitempty,oneof=active resolved"`
	StageID    string `form:"stageID" binding:"omitempty,uuid"`
	AssignedTo string `form:"assignedTo" binding:"omitempty,uuid"`
	Cursor     string `form:"cursor"`
	Limit      int    `form:"limit,default=25" binding:"omitempty,min=1,max=100"`
}
