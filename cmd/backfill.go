package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sells-group/workbench/internal/approval"
	"github.com/sells-group/workbench/internal/artifact"
	"github.com/sells-group/workbench/internal/patch"
	"github.com/sells-group/workbench/internal/workbench"
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Review backfill proposals for empty CRM fields",
	Long:  "Backfill proposals are reviewed on their own and never merged into the CRM draft.",
}

// -- backfill show --

var backfillShowCmd = &cobra.Command{
	Use:   "show <account>",
	Short: "Show every backfill run, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := newArtifactStore().ResolveAll(args[0], artifact.CategoryBackfill)
		if err != nil {
			return err
		}
		if len(res.Artifacts) == 0 {
			fmt.Fprintf(os.Stderr, "No backfill proposals for %s.\n", args[0])
			return nil
		}

		objectType := cfg.Backfill.ObjectType
		for i := range res.Artifacts {
			report, err := patch.BackfillFromArtifact(&res.Artifacts[i])
			if err != nil {
				fmt.Fprintf(os.Stderr, "skipping %s: %v\n", res.Artifacts[i].Path, err)
				continue
			}
			set := report.AsPatchSet(args[0], objectType)
			fmt.Fprintf(os.Stdout, "Backfill %s (%d proposals)\n\n", filepath.Base(report.Path), len(report.Proposals))
			formatPatchSet(os.Stdout, set, func(k patch.Key) bool {
				e, _ := set.Lookup(k)
				return approval.DefaultDecision(e.Patch)
			})
		}
		if n := res.SkippedCount(); n > 0 {
			fmt.Fprintf(os.Stderr, "%d backfill file(s) could not be decoded.\n", n)
		}
		return nil
	},
}

// -- backfill review --

var backfillReviewCmd = &cobra.Command{
	Use:   "review <account>",
	Short: "Review the newest backfill proposals and apply the approved ones",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReview(cmd, args[0], func(svc *workbench.Service, account string) (*approval.Session, error) {
			return svc.StartBackfillReview(account)
		})
	},
}

func init() {
	addDecisionFlags(backfillReviewCmd)
	backfillReviewCmd.Flags().Bool("yes", false, "apply the approved proposals instead of previewing them")

	backfillCmd.AddCommand(backfillShowCmd)
	backfillCmd.AddCommand(backfillReviewCmd)
	rootCmd.AddCommand(backfillCmd)
}
