package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/workbench/internal/approval"
	"github.com/sells-group/workbench/internal/artifact"
	"github.com/sells-group/workbench/internal/export"
	"github.com/sells-group/workbench/internal/patch"
)

var draftCmd = &cobra.Command{
	Use:   "draft",
	Short: "Inspect the newest CRM draft",
	Long:  "Commands for viewing, exporting and freezing the proposed CRM patches of an account.",
}

// -- draft show --

var draftShowCmd = &cobra.Command{
	Use:   "show <account>",
	Short: "Show the newest CRM draft grouped by object type",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		set, err := loadDraft(args[0])
		if err != nil {
			return err
		}

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			return printJSON(os.Stdout, set.Entries())
		}

		fmt.Fprintf(os.Stdout, "Draft %s (generated %s)\n\n", filepath.Base(set.DraftPath), orDash(set.GeneratedAt))
		formatPatchSet(os.Stdout, set, func(k patch.Key) bool {
			e, _ := set.Lookup(k)
			return approval.DefaultDecision(e.Patch)
		})
		formatTally(os.Stdout, approval.Count(set, nil))
		return nil
	},
}

// -- draft export --

var draftExportCmd = &cobra.Command{
	Use:   "export <account>",
	Short: "Export the newest CRM draft to a workbook or CSV",
	Long:  "Writes every patch with its default decision. Edit the Approved column and pass the workbook back with review --decisions.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		set, err := loadDraft(args[0])
		if err != nil {
			return err
		}

		out, _ := cmd.Flags().GetString("out")
		switch {
		case out == "" || out == "-":
			return export.WriteCSV(os.Stdout, set, nil)
		case strings.EqualFold(filepath.Ext(out), ".xlsx"):
			if err := export.WriteXLSX(out, set, nil); err != nil {
				return err
			}
		default:
			f, err := os.Create(out)
			if err != nil {
				return eris.Wrap(err, "draft export: create file")
			}
			defer f.Close() //nolint:errcheck
			if err := export.WriteCSV(f, set, nil); err != nil {
				return err
			}
		}
		fmt.Fprintf(os.Stderr, "Exported %d patches to %s\n", set.Count(), out)
		return nil
	},
}

// -- draft approve --

var draftApproveCmd = &cobra.Command{
	Use:   "approve <account>",
	Short: "Freeze the approved subset into an apply request file",
	Long:  "Confirms the approved patches and writes the resulting apply request as JSON or YAML without running the apply agent.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		path, _ := cmd.Flags().GetString("write")
		if path == "" {
			return eris.New("draft approve: --write is required")
		}

		env, err := initWorkbench(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		sess, err := env.Service.StartReview(args[0])
		if err != nil {
			return err
		}
		if err := applyDecisions(sess, readDecisionFlags(cmd)); err != nil {
			return err
		}
		if err := exportDecisions(cmd, sess); err != nil {
			return err
		}

		req, err := sess.Confirm(ctx)
		if err != nil {
			var ve *approval.ValidationError
			if errors.As(err, &ve) {
				formatProblems(os.Stderr, ve.Problems)
			}
			return err
		}
		if err := artifact.EncodeStructured(path, req); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Wrote %d approved patches to %s\n", len(req.Patches), path)
		return nil
	},
}

func init() {
	draftShowCmd.Flags().Bool("json", false, "print patch entries as JSON")
	draftExportCmd.Flags().String("out", "", "output path (.xlsx for a workbook, otherwise CSV; default stdout)")
	draftApproveCmd.Flags().String("write", "", "path of the apply request file (.json or .yaml)")
	addDecisionFlags(draftApproveCmd)

	draftCmd.AddCommand(draftShowCmd)
	draftCmd.AddCommand(draftExportCmd)
	draftCmd.AddCommand(draftApproveCmd)
	rootCmd.AddCommand(draftCmd)
}

// loadDraft parses the newest CRM draft without opening the run ledger.
func loadDraft(account string) (*patch.Set, error) {
	a, err := newArtifactStore().ResolveLatest(account, artifact.CategoryCRMDraft)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, eris.Errorf("no crm draft for %s", account)
	}
	return patch.FromDraft(a)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
