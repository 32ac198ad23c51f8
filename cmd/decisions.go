package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/workbench/internal/approval"
	"github.com/sells-group/workbench/internal/export"
	"github.com/sells-group/workbench/internal/gateway"
	"github.com/sells-group/workbench/internal/model"
	"github.com/sells-group/workbench/internal/patch"
	"github.com/sells-group/workbench/internal/workbench"
)

// decisionFlags are the approval overrides accepted by review commands.
type decisionFlags struct {
	approve    []string
	reject     []string
	approveAll bool
	rejectAll  bool
	file       string
}

func addDecisionFlags(cmd *cobra.Command) {
	cmd.Flags().StringSlice("approve", nil, "approve a patch by key (Object.Field or Object.Field#n)")
	cmd.Flags().StringSlice("reject", nil, "reject a patch by key (Object.Field or Object.Field#n)")
	cmd.Flags().Bool("approve-all", false, "approve every patch")
	cmd.Flags().Bool("reject-all", false, "reject every patch")
	cmd.Flags().String("decisions", "", "read decisions from an exported .xlsx workbook")
	cmd.Flags().String("export", "", "write the reviewed decisions to an .xlsx workbook")
	cmd.MarkFlagsMutuallyExclusive("approve-all", "reject-all")
}

func readDecisionFlags(cmd *cobra.Command) decisionFlags {
	var d decisionFlags
	d.approve, _ = cmd.Flags().GetStringSlice("approve")
	d.reject, _ = cmd.Flags().GetStringSlice("reject")
	d.approveAll, _ = cmd.Flags().GetBool("approve-all")
	d.rejectAll, _ = cmd.Flags().GetBool("reject-all")
	d.file, _ = cmd.Flags().GetString("decisions")
	return d
}

// applyDecisions sets overrides on sess: bulk flags first, then the
// workbook, then individual keys, so the most specific choice wins.
func applyDecisions(sess *approval.Session, d decisionFlags) error {
	switch {
	case d.approveAll:
		if err := sess.SetAll(true); err != nil {
			return err
		}
	case d.rejectAll:
		if err := sess.SetAll(false); err != nil {
			return err
		}
	}

	if d.file != "" {
		wb, err := export.ReadDecisions(d.file)
		if err != nil {
			return err
		}
		if err := wb.Check(sess.Set()); err != nil {
			return err
		}
		for k, v := range wb.Decisions {
			if err := sess.SetDecision(k, v); err != nil {
				return err
			}
		}
	}

	for _, group := range []struct {
		keys     []string
		approved bool
	}{{d.approve, true}, {d.reject, false}} {
		for _, raw := range group.keys {
			k, err := patch.ParseKey(raw)
			if err != nil {
				return err
			}
			if err := sess.SetDecision(k, group.approved); err != nil {
				return err
			}
		}
	}
	return nil
}

// exportDecisions writes the session's effective decisions to the --export
// workbook when one was given.
func exportDecisions(cmd *cobra.Command, sess *approval.Session) error {
	path, _ := cmd.Flags().GetString("export")
	if path == "" {
		return nil
	}
	if err := export.WriteXLSX(path, sess.Set(), sess.Overrides()); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Wrote decisions to %s\n", path)
	return nil
}

// runReview opens a session with open, applies the decision flags, and
// either prints the preview or, with --yes, hands the approved subset to the
// apply agent.
func runReview(cmd *cobra.Command, account string, open func(*workbench.Service, string) (*approval.Session, error)) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	env, err := initWorkbench(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	sess, err := open(env.Service, account)
	if err != nil {
		return err
	}
	if err := applyDecisions(sess, readDecisionFlags(cmd)); err != nil {
		return err
	}

	formatPatchSet(os.Stdout, sess.Set(), sess.Decision)
	formatTally(os.Stdout, sess.Tally())

	if err := exportDecisions(cmd, sess); err != nil {
		return err
	}

	yes, _ := cmd.Flags().GetBool("yes")
	if !yes {
		fmt.Fprintln(os.Stderr, "\nPreview only. Re-run with --yes to apply the approved patches.")
		return nil
	}

	out, err := env.Service.Apply(ctx, sess)
	if err != nil {
		var ve *approval.ValidationError
		if errors.As(err, &ve) {
			formatProblems(os.Stderr, ve.Problems)
		}
		if out == nil {
			return err
		}
	}
	formatApplyOutcome(os.Stdout, out, sess.LastError(), cfg.Agents.SummaryLength)
	if out.State == approval.StateFailed {
		return eris.Errorf("apply failed for %s", account)
	}
	return err
}

// formatPatchSet writes the set grouped by object type, each patch with its
// effective decision.
func formatPatchSet(out io.Writer, set *patch.Set, decide func(patch.Key) bool) {
	for _, g := range set.GroupByObjectType() {
		_, _ = fmt.Fprintf(out, "%s (%d)\n", g.ObjectType, len(g.Entries))
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "  APPROVE\tKEY\tBEFORE\tAFTER\tCONFIDENCE\tREASONING")
		for _, e := range g.Entries {
			mark := "[ ]"
			if decide(e.Key) {
				mark = "[x]"
			}
			_, _ = fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\t%s\n",
				mark,
				e.Key,
				truncate(model.FormatValue(e.Patch.Before), 30),
				truncate(model.FormatValue(e.Patch.After), 30),
				e.Patch.Confidence,
				truncate(e.Patch.Reasoning, 50),
			)
		}
		_ = w.Flush()
		_, _ = fmt.Fprintln(out)
	}
}

func formatTally(out io.Writer, t approval.Tally) {
	_, _ = fmt.Fprintf(out, "%d of %d patches approved (high %d, medium %d, low %d)\n",
		t.Approved, t.Total,
		t.ByConfidence[model.ConfidenceHigh],
		t.ByConfidence[model.ConfidenceMedium],
		t.ByConfidence[model.ConfidenceLow],
	)
}

func formatProblems(out io.Writer, problems []approval.Problem) {
	_, _ = fmt.Fprintln(out, "Validation failed:")
	for _, p := range problems {
		_, _ = fmt.Fprintf(out, "  %s: %s\n", p.Key, p.Message)
	}
}

func formatApplyOutcome(out io.Writer, o *workbench.ApplyOutcome, lastError string, summaryLen int) {
	_, _ = fmt.Fprintf(out, "Apply %s: %d patch(es), exit %d, %s\n",
		o.State, len(o.Request.Patches), o.Result.ExitCode, o.Result.Duration.Round(time.Millisecond))
	if lastError != "" {
		_, _ = fmt.Fprintf(out, "stderr: %s\n", gateway.Summary(lastError, summaryLen))
	}
}

// truncate shortens s to n runes with a trailing ellipsis.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
