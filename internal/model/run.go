package model

import "time"

// RunStatus represents the state of a recorded agent invocation.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// AgentRun is one ledger row for an external agent invocation.
type AgentRun struct {
	ID         string     `json:"id"`
	Account    string     `json:"account"`
	Agent      string     `json:"agent"`
	Command    string     `json:"command"`
	Args       []string   `json:"args"`
	Status     RunStatus  `json:"status"`
	ExitCode   int        `json:"exit_code"`
	Stderr     string     `json:"stderr,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Duration returns how long the run took, or zero while it is still running.
func (r AgentRun) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
