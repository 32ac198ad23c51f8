package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/workbench/internal/approval"
	"github.com/sells-group/workbench/internal/workbench"
)

var reviewCmd = &cobra.Command{
	Use:   "review <account>",
	Short: "Review the newest CRM draft and apply the approved patches",
	Long: `Loads the newest CRM draft, approves high-confidence patches by default,
applies any --approve/--reject overrides, and prints the result. With --yes the
approved subset is validated and handed to the apply agent.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReview(cmd, args[0], func(svc *workbench.Service, account string) (*approval.Session, error) {
			return svc.StartReview(account)
		})
	},
}

func init() {
	addDecisionFlags(reviewCmd)
	reviewCmd.Flags().Bool("yes", false, "apply the approved patches instead of previewing them")
	rootCmd.AddCommand(reviewCmd)
}
