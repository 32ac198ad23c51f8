package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/workbench/internal/artifact"
	"github.com/sells-group/workbench/internal/model"
	"github.com/sells-group/workbench/internal/workbench"
)

var appliedCmd = &cobra.Command{
	Use:   "applied",
	Short: "Inspect apply receipts written by the apply agent",
}

// -- applied show --

var appliedShowCmd = &cobra.Command{
	Use:   "show <account>",
	Short: "Show the newest apply receipt",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newArtifactStore().ResolveLatest(args[0], artifact.CategoryApplied)
		if err != nil {
			return eris.Wrap(err, "applied show")
		}
		if a == nil {
			fmt.Fprintf(os.Stderr, "No apply receipts for %s.\n", args[0])
			return nil
		}

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			return printJSON(os.Stdout, a.Record)
		}

		res, err := workbench.DecodeApplyResult(a)
		if err != nil {
			return err
		}
		formatApplyResult(os.Stdout, a, res)
		return nil
	},
}

func init() {
	appliedShowCmd.Flags().Bool("json", false, "print the raw receipt as JSON")

	appliedCmd.AddCommand(appliedShowCmd)
	rootCmd.AddCommand(appliedCmd)
}

func formatApplyResult(out io.Writer, a *model.Artifact, res *model.ApplyResult) {
	status := "succeeded"
	if !res.Success {
		status = "failed"
	}
	_, _ = fmt.Fprintf(out, "Apply %s at %s: %d patch(es) applied\n",
		status, a.Timestamp.UTC().Format("2006-01-02 15:04:05"), res.AppliedCount)
	for _, e := range res.Errors {
		_, _ = fmt.Fprintf(out, "  %s: %s\n", e.Patch, e.Message)
	}
}
