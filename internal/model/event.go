package model

import "time"

// EventType identifies a lifecycle or execution event
type EventType string

const (
	EventScriptCreated  EventType = "script.created"
	EventScriptUpdated  EventType = "script.updated"
	EventScriptDeleted  EventType = "script.deleted"
	EventScriptExecuted EventType = "script.executed"
	EventScriptBlocked  EventType = "script.blocked"
	EventTaskCreated    EventType = "task.created"
	EventTaskToggled    EventType = "task.toggled"
	EventTaskDeleted    EventType = "task.deleted"
)

// Event is published to interested consumers after state changes
type Event struct {
	ID        string           `json:"id"`
	Type      EventType        `json:"type"`
	ScriptID  string           `json:"script_id,omitempty"`
	TaskID    string           `json:"task_id,omitempty"`
	RiskLevel RiskLevel        `json:"risk_level,omitempty"`
	Warnings  []string         `json:"warnings,omitempty"`
	Result    *ExecutionResult `json:"result,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}
