// Package store persists the agent run ledger.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/workbench/internal/model"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = eris.New("store: run not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Account string          `json:"account,omitempty"`
	Agent   string          `json:"agent,omitempty"`
	Status  model.RunStatus `json:"status,omitempty"`
	Limit   int             `json:"limit,omitempty"`
	Offset  int             `json:"offset,omitempty"`
}

const defaultListLimit = 100

func (f RunFilter) limit() int {
	if f.Limit <= 0 {
		return defaultListLimit
	}
	return f.Limit
}

// Store records every external agent invocation.
type Store interface {
	CreateRun(ctx context.Context, run model.AgentRun) (*model.AgentRun, error)
	FinishRun(ctx context.Context, id string, status model.RunStatus, exitCode int, stderr string) error
	GetRun(ctx context.Context, id string) (*model.AgentRun, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.AgentRun, error)

	Migrate(ctx context.Context) error
	Close() error
}
