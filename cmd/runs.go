package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/workbench/internal/model"
	"github.com/sells-group/workbench/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect agent run history",
	Long:  "Commands for listing, viewing, and summarizing recorded agent invocations.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List agent runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		status, _ := cmd.Flags().GetString("status")
		account, _ := cmd.Flags().GetString("account")
		agent, _ := cmd.Flags().GetString("agent")
		limit, _ := cmd.Flags().GetInt("limit")

		filter := store.RunFilter{
			Account: account,
			Agent:   agent,
			Status:  model.RunStatus(status),
			Limit:   limit,
		}

		runs, err := st.ListRuns(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		return printJSON(os.Stdout, run)
	},
}

// -- runs stats --

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate run statistics per agent",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		account, _ := cmd.Flags().GetString("account")
		runs, err := st.ListRuns(ctx, store.RunFilter{Account: account, Limit: 10000})
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}

		formatRunStats(os.Stdout, computeRunStats(runs))
		return nil
	},
}

func init() {
	runsListCmd.Flags().String("status", "", "filter by run status (running, succeeded, failed)")
	runsListCmd.Flags().String("account", "", "filter by account slug")
	runsListCmd.Flags().String("agent", "", "filter by agent name")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsStatsCmd.Flags().String("account", "", "only count runs for this account")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsStatsCmd)
	rootCmd.AddCommand(runsCmd)
}

// agentStats holds aggregate statistics for one agent.
type agentStats struct {
	Agent      string
	Total      int
	Succeeded  int
	Failed     int
	Running    int
	AvgDurSecs float64
}

// computeRunStats groups runs by agent, sorted by agent name.
func computeRunStats(runs []model.AgentRun) []agentStats {
	byAgent := make(map[string]*agentStats)
	durations := make(map[string]time.Duration)

	for _, r := range runs {
		s, ok := byAgent[r.Agent]
		if !ok {
			s = &agentStats{Agent: r.Agent}
			byAgent[r.Agent] = s
		}
		s.Total++
		switch r.Status {
		case model.RunStatusSucceeded:
			s.Succeeded++
		case model.RunStatusFailed:
			s.Failed++
		default:
			s.Running++
		}
		durations[r.Agent] += r.Duration()
	}

	out := make([]agentStats, 0, len(byAgent))
	for name, s := range byAgent {
		if done := s.Succeeded + s.Failed; done > 0 {
			s.AvgDurSecs = durations[name].Seconds() / float64(done)
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Agent < out[j].Agent })
	return out
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.AgentRun) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tACCOUNT\tAGENT\tSTATUS\tEXIT\tSTARTED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t-------\t-----\t------\t----\t-------\t--------")

	for _, r := range runs {
		dur := "-"
		if r.FinishedAt != nil {
			dur = r.Duration().Round(time.Second).String()
		}

		account := r.Account
		if len(account) > 30 {
			account = account[:27] + "..."
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			truncateID(r.ID),
			account,
			r.Agent,
			r.Status,
			r.ExitCode,
			r.StartedAt.Format("2006-01-02 15:04"),
			dur,
		)
	}
	_ = w.Flush()
}

// formatRunStats writes per-agent stats to w.
func formatRunStats(out io.Writer, stats []agentStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "AGENT\tTOTAL\tSUCCEEDED\tFAILED\tRUNNING\tAVG")
	var total int
	for _, s := range stats {
		total += s.Total
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%.1fs\n", s.Agent, s.Total, s.Succeeded, s.Failed, s.Running, s.AvgDurSecs)
	}
	_, _ = fmt.Fprintf(w, "Total runs:\t%d\n", total)
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
