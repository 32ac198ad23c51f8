package gateway

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ExecGateway runs invocations as local processes, one at a time.
type ExecGateway struct {
	mu  sync.Mutex
	dir string
}

// NewExecGateway creates an ExecGateway. dir is the working directory used
// when an invocation does not set its own.
func NewExecGateway(dir string) *ExecGateway {
	return &ExecGateway{dir: dir}
}

// Invoke runs the command and waits for it to exit.
func (g *ExecGateway) Invoke(ctx context.Context, inv Invocation) (Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	cmd := exec.CommandContext(ctx, inv.Command, inv.Args...)
	cmd.Dir = inv.Dir
	if cmd.Dir == "" {
		cmd.Dir = g.dir
	}
	if inv.Stdin != nil {
		cmd.Stdin = bytes.NewReader(inv.Stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	zap.L().Debug("gateway: invoking",
		zap.String("agent", inv.Agent),
		zap.Strings("argv", inv.Argv()),
	)

	start := time.Now()
	err := cmd.Run()
	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if err == nil {
		res.Success = true
		return res, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() >= 0 {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}

	// Not started, or killed by a signal or the context.
	res.ExitCode = -1
	if res.Stderr == "" {
		res.Stderr = err.Error()
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = ctxErr
	}
	return res, &InvocationError{Command: inv.Command, Err: err}
}
