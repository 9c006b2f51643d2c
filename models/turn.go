package models

import "time"

// Role identifies who produced a conversation turn
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// Intent is the classified purpose of a user turn
type Intent string

const (
	IntentQuestion            Intent = "question"
	IntentEditRequest         Intent = "edit_request"
	IntentDeepDiveRequest     Intent = "deep_dive_request"
	IntentChartRequest        Intent = "chart_request"
	IntentClarificationNeeded Intent = "clarification_needed"
)

// ConversationTurn is one append-only history entry scoped to a plan.
// Turns are never mutated after creation.
type ConversationTurn struct {
	TurnID    string    `json:"turn_id"`
	PlanID    string    `json:"plan_id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Intent    Intent    `json:"intent,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
