package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/workbench/internal/artifact"
)

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "List accounts and their integrations",
}

// -- accounts list --

var accountsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every account under the accounts root",
	RunE: func(cmd *cobra.Command, _ []string) error {
		st := newArtifactStore()

		accounts, err := st.ListAccounts()
		if err != nil {
			return eris.Wrap(err, "accounts list")
		}
		if len(accounts) == 0 {
			fmt.Fprintf(os.Stderr, "No accounts under %s.\n", st.Root())
			return nil
		}

		caps := make(map[string]map[string]bool, len(accounts))
		for _, a := range accounts {
			c, err := st.DetectCapabilities(a)
			if err != nil {
				return eris.Wrapf(err, "accounts list: %s", a)
			}
			caps[a] = c
		}

		formatAccounts(os.Stdout, accounts, caps)
		return nil
	},
}

// -- accounts show --

var accountsShowCmd = &cobra.Command{
	Use:   "show <account>",
	Short: "Show integrations and artifact counts for an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st := newArtifactStore()

		caps, err := st.DetectCapabilities(args[0])
		if err != nil {
			return eris.Wrap(err, "accounts show")
		}
		overview, err := st.Overview(args[0])
		if err != nil {
			return eris.Wrap(err, "accounts show")
		}

		fmt.Fprintf(os.Stdout, "%s (%s)\n", artifact.DisplayName(args[0]), args[0])
		fmt.Fprintf(os.Stdout, "Integrations: %s\n\n", formatCapabilities(caps))
		formatOverview(os.Stdout, overview)
		return nil
	},
}

// -- accounts calls --

var accountsCallsCmd = &cobra.Command{
	Use:   "calls <account>",
	Short: "List recorded calls from the Gong snapshot",
	Long:  "Lists call ids for call-scoped agents such as postcall, followup-email and coaching.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		calls, err := newArtifactStore().LoadGongCalls(args[0])
		if err != nil {
			return eris.Wrap(err, "accounts calls")
		}
		if len(calls) == 0 {
			fmt.Fprintf(os.Stderr, "No Gong calls for %s.\n", args[0])
			return nil
		}
		formatCalls(os.Stdout, calls)
		return nil
	},
}

func init() {
	accountsCmd.AddCommand(accountsListCmd)
	accountsCmd.AddCommand(accountsShowCmd)
	accountsCmd.AddCommand(accountsCallsCmd)
	rootCmd.AddCommand(accountsCmd)
}

// formatAccounts writes one row per account with its display name and
// detected integrations.
func formatAccounts(out io.Writer, accounts []string, caps map[string]map[string]bool) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ACCOUNT\tNAME\tINTEGRATIONS")
	_, _ = fmt.Fprintln(w, "-------\t----\t------------")
	for _, a := range accounts {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", a, artifact.DisplayName(a), formatCapabilities(caps[a]))
	}
	_ = w.Flush()
}

// formatCapabilities renders the enabled integrations, sorted, or "none".
func formatCapabilities(caps map[string]bool) string {
	var on []string
	for name, ok := range caps {
		if ok {
			on = append(on, name)
		}
	}
	if len(on) == 0 {
		return "none"
	}
	sort.Strings(on)
	return strings.Join(on, ", ")
}

// formatOverview writes one row per category with its file count and the
// newest timestamp.
func formatOverview(out io.Writer, overview []artifact.CategoryStatus) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CATEGORY\tDIR\tFILES\tLATEST")
	_, _ = fmt.Fprintln(w, "--------\t---\t-----\t------")
	for _, st := range overview {
		latest := "-"
		if st.Latest != nil {
			latest = st.Latest.UTC().Format("2006-01-02 15:04")
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", st.Category.Name, st.Category.Dir, st.Count, latest)
	}
	_ = w.Flush()
}

// formatCalls writes id, start time and title of each call in snapshot order.
func formatCalls(out io.Writer, calls []map[string]any) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTARTED\tTITLE")
	_, _ = fmt.Fprintln(w, "--\t-------\t-----")
	for _, c := range calls {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n",
			orDash(callField(c, "id")),
			orDash(callField(c, "started")),
			truncate(orDash(callField(c, "title")), 60),
		)
	}
	_ = w.Flush()
}

func callField(c map[string]any, key string) string {
	v, ok := c[key]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}
