package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/workbench/internal/gateway"
	"github.com/sells-group/workbench/internal/workbench"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run external generation agents",
}

// -- agent list --

var agentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the agents the workbench can run",
	RunE: func(cmd *cobra.Command, _ []string) error {
		formatAgents(os.Stdout, gateway.NewCatalog(cfg.Agents))
		return nil
	},
}

// -- agent run --

var agentRunCmd = &cobra.Command{
	Use:   "run <agent> <account>",
	Short: "Run an agent for an account and wait for it to finish",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initWorkbench(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		callID, _ := cmd.Flags().GetString("call")
		mode, _ := cmd.Flags().GetString("mode")

		res, err := env.Service.RunAgent(ctx, args[0], args[1], gateway.BuildOptions{CallID: callID, Mode: mode})
		if err != nil {
			return err
		}
		formatAgentResult(os.Stdout, args[0], res, cfg.Agents.SummaryLength)
		if !res.Success {
			return eris.Errorf("agent %s exited with code %d", args[0], res.ExitCode)
		}
		return nil
	},
}

// -- agent run-all --

var agentRunAllCmd = &cobra.Command{
	Use:   "run-all <agent> [account...]",
	Short: "Run an agent for several accounts, one after another",
	Long:  "Runs the agent for each named account, or every account under the accounts root when none are given. Failures are reported per account and do not stop the run.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initWorkbench(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		accounts := args[1:]
		if len(accounts) == 0 {
			accounts, err = env.Service.Artifacts().ListAccounts()
			if err != nil {
				return err
			}
		}

		mode, _ := cmd.Flags().GetString("mode")

		runs, err := env.Service.RunAgentAll(ctx, args[0], accounts, gateway.BuildOptions{Mode: mode})
		if err != nil && runs == nil {
			return err
		}
		failed := formatAccountRuns(os.Stdout, runs, cfg.Agents.SummaryLength)
		if err != nil {
			return err
		}
		if failed > 0 {
			return eris.Errorf("agent %s failed for %d of %d accounts", args[0], failed, len(runs))
		}
		return nil
	},
}

func init() {
	agentRunCmd.Flags().String("call", "", "call id passed to call-scoped agents (postcall, followup-email, coaching)")
	agentRunCmd.Flags().String("mode", "", "mode flag passed to the orchestrator (e.g. refresh)")
	agentRunAllCmd.Flags().String("mode", "", "mode flag passed to the agent")

	agentCmd.AddCommand(agentListCmd)
	agentCmd.AddCommand(agentRunCmd)
	agentCmd.AddCommand(agentRunAllCmd)
	rootCmd.AddCommand(agentCmd)
}

// formatAgents writes each agent with the command line it runs.
func formatAgents(out io.Writer, c *gateway.Catalog) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "AGENT\tCOMMAND")
	_, _ = fmt.Fprintln(w, "-----\t-------")
	for _, name := range c.Agents() {
		inv, err := c.Build(name, "<account>", gateway.BuildOptions{})
		if err != nil {
			continue
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\n", name, strings.Join(inv.Argv(), " "))
	}
	_ = w.Flush()
}

// formatAgentResult writes the outcome line, the agent's stdout, and a
// stderr summary on failure.
func formatAgentResult(out io.Writer, agent string, res gateway.Result, summaryLen int) {
	status := "succeeded"
	if !res.Success {
		status = "failed"
	}
	_, _ = fmt.Fprintf(out, "%s %s (exit %d, %s)\n", agent, status, res.ExitCode, res.Duration.Round(time.Millisecond))
	if s := strings.TrimSpace(res.Stdout); s != "" {
		_, _ = fmt.Fprintln(out, s)
	}
	if !res.Success && res.Stderr != "" {
		_, _ = fmt.Fprintf(out, "stderr: %s\n", gateway.Summary(strings.TrimSpace(res.Stderr), summaryLen))
	}
}

// formatAccountRuns writes one row per account and returns how many failed.
func formatAccountRuns(out io.Writer, runs []workbench.AccountRun, summaryLen int) int {
	var failed int
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ACCOUNT\tSTATUS\tEXIT\tDURATION\tDETAIL")
	for _, r := range runs {
		status, detail := "ok", ""
		switch {
		case r.Err != nil:
			status, detail = "error", r.Err.Error()
		case !r.Result.Success:
			status, detail = "failed", gateway.Summary(strings.TrimSpace(r.Result.Stderr), summaryLen)
		}
		if status != "ok" {
			failed++
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			r.Account, status, r.Result.ExitCode, r.Result.Duration.Round(time.Millisecond), truncate(detail, 60))
	}
	_ = w.Flush()
	return failed
}
