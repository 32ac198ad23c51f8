// Package gateway runs external agent commands and reports their outcome.
package gateway

import (
	"context"
	"fmt"
	"time"
)

// DefaultSummaryLength is the number of stderr runes shown to a user.
const DefaultSummaryLength = 200

// Invocation describes one external command run.
type Invocation struct {
	Command string
	Args    []string
	Stdin   []byte
	Dir     string

	// Agent and Account label the run in the ledger.
	Agent   string
	Account string
}

// Argv returns the command followed by its arguments.
func (inv Invocation) Argv() []string {
	return append([]string{inv.Command}, inv.Args...)
}

// Result is the outcome of an invocation. Success is true only for exit code 0.
type Result struct {
	Success  bool          `json:"success"`
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	ExitCode int           `json:"exitCode"`
	Duration time.Duration `json:"duration"`
}

// Summary returns the first DefaultSummaryLength runes of stderr.
func (r Result) Summary() string {
	return Summary(r.Stderr, DefaultSummaryLength)
}

// Gateway runs an invocation to completion. A non-zero exit is reported
// through Result, not the error; the error is set only when the command
// could not be run at all.
type Gateway interface {
	Invoke(ctx context.Context, inv Invocation) (Result, error)
}

// InvocationError reports a command that could not be started or waited on.
type InvocationError struct {
	Command string
	Err     error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("gateway: invoke %s: %v", e.Command, e.Err)
}

func (e *InvocationError) Unwrap() error { return e.Err }

// Summary truncates s to at most n runes. n <= 0 uses DefaultSummaryLength.
func Summary(s string, n int) string {
	if n <= 0 {
		n = DefaultSummaryLength
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
