package gateway

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/workbench/internal/model"
)

// stderrTail is how much stderr the ledger keeps per run.
const stderrTail = 2000

// Ledger persists agent runs.
type Ledger interface {
	CreateRun(ctx context.Context, run model.AgentRun) (*model.AgentRun, error)
	FinishRun(ctx context.Context, id string, status model.RunStatus, exitCode int, stderr string) error
}

// Recorder wraps a Gateway and writes every invocation to a Ledger. Ledger
// failures are logged and never change the invocation result.
type Recorder struct {
	next   Gateway
	ledger Ledger
}

// NewRecorder returns a Recorder around next.
func NewRecorder(next Gateway, ledger Ledger) *Recorder {
	return &Recorder{next: next, ledger: ledger}
}

// Invoke records the run, delegates to the wrapped gateway, then records the
// outcome.
func (r *Recorder) Invoke(ctx context.Context, inv Invocation) (Result, error) {
	log := zap.L().With(zap.String("agent", inv.Agent), zap.String("account", inv.Account))

	run, err := r.ledger.CreateRun(ctx, model.AgentRun{
		Account:   inv.Account,
		Agent:     inv.Agent,
		Command:   inv.Command,
		Args:      inv.Args,
		Status:    model.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	})
	if err != nil {
		log.Warn("gateway: record run start failed", zap.Error(err))
	}
	log.Info("gateway: agent started")

	res, invokeErr := r.next.Invoke(ctx, inv)

	status := model.RunStatusSucceeded
	if !res.Success {
		status = model.RunStatusFailed
	}
	log.Info("gateway: agent finished",
		zap.String("status", string(status)),
		zap.Int("exit_code", res.ExitCode),
		zap.Duration("duration", res.Duration),
	)

	if run != nil {
		// The run row must be closed even if ctx was cancelled.
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := r.ledger.FinishRun(fctx, run.ID, status, res.ExitCode, tail(res.Stderr, stderrTail)); err != nil {
			log.Warn("gateway: record run finish failed", zap.String("run_id", run.ID), zap.Error(err))
		}
	}
	return res, invokeErr
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}
