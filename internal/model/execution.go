package model

import "time"

// TimeoutError is the error text of an execution killed by its deadline
const TimeoutError = "Timeout"

// ExecutionResult is the structured outcome of a run attempt. Security blocks
// and timeouts are expected outcomes and are reported here, not as errors.
type ExecutionResult struct {
	ScriptID        string        `json:"script_id"`
	Success         bool          `json:"success"`
	ExitCode        *int          `json:"returncode,omitempty"`
	Stdout          string        `json:"stdout"`
	Stderr          string        `json:"stderr"`
	SecurityBlocked bool          `json:"security_blocked"`
	RiskLevel       RiskLevel     `json:"risk_level"`
	Warnings        []string      `json:"warnings,omitempty"`
	Started         bool          `json:"started"`
	TimedOut        bool          `json:"timed_out"`
	ExecutedAt      time.Time     `json:"executed_at"`
	Duration        time.Duration `json:"duration"`
	Error           string        `json:"error,omitempty"`
	Host            *HostSnapshot `json:"host,omitempty"`
}

// ExecutionRecord is a persisted history entry for one execution attempt
type ExecutionRecord struct {
	ID              string        `json:"id"`
	ScriptID        string        `json:"script_id"`
	TaskID          string        `json:"task_id,omitempty"`
	Success         bool          `json:"success"`
	ExitCode        *int          `json:"exit_code,omitempty"`
	SecurityBlocked bool          `json:"security_blocked"`
	TimedOut        bool          `json:"timed_out"`
	RiskLevel       RiskLevel     `json:"risk_level"`
	Stdout          string        `json:"stdout,omitempty"`
	Stderr          string        `json:"stderr,omitempty"`
	Error           string        `json:"error,omitempty"`
	ExecutedAt      time.Time     `json:"executed_at"`
	Duration        time.Duration `json:"duration"`
	Host            *HostSnapshot `json:"host,omitempty"`
}

// NewExecutionRecord builds a history entry from a result
func NewExecutionRecord(id, taskID string, r *ExecutionResult) *ExecutionRecord {
	return &ExecutionRecord{
		ID:              id,
		ScriptID:        r.ScriptID,
		TaskID:          taskID,
		Success:         r.Success,
		ExitCode:        r.ExitCode,
		SecurityBlocked: r.SecurityBlocked,
		TimedOut:        r.TimedOut,
		RiskLevel:       r.RiskLevel,
		Stdout:          r.Stdout,
		Stderr:          r.Stderr,
		Error:           r.Error,
		ExecutedAt:      r.ExecutedAt,
		Duration:        r.Duration,
		Host:            r.Host,
	}
}

// RunningExecution describes an in-flight process
type RunningExecution struct {
	RunID     string    `json:"run_id"`
	ScriptID  string    `json:"script_id"`
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
}
