package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/workbench/internal/artifact"
	"github.com/sells-group/workbench/internal/model"
	"github.com/sells-group/workbench/pkg/notion"
)

var notionCmd = &cobra.Command{
	Use:   "notion",
	Short: "Publish artifacts to Notion",
}

// -- notion publish --

var notionPublishCmd = &cobra.Command{
	Use:   "publish <account> <category>",
	Short: "Publish the newest artifact of a category as a Notion page",
	Long:  "Creates a page in the configured database and marks earlier pages for the same account and category as superseded.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		client, err := initNotion()
		if err != nil {
			return err
		}

		a, err := newArtifactStore().ResolveLatest(args[0], args[1])
		if err != nil {
			return eris.Wrap(err, "notion publish")
		}
		if a == nil {
			return eris.Errorf("no %s artifact for %s", args[1], args[0])
		}

		title, _ := cmd.Flags().GetString("title")
		if title == "" {
			title = pageTitle(a)
		}

		pub, err := notion.Publish(ctx, client, cfg.Notion.DatabaseID, a, title)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Published %q as page %s (%d blocks, %d superseded)\n",
			title, pub.PageID, pub.Blocks, pub.Superseded)
		return nil
	},
}

func init() {
	notionPublishCmd.Flags().String("title", "", "page title (default: account, category and date)")

	notionCmd.AddCommand(notionPublishCmd)
	rootCmd.AddCommand(notionCmd)
}

// pageTitle names a page after the account, category and artifact date.
func pageTitle(a *model.Artifact) string {
	return fmt.Sprintf("%s %s %s", artifact.DisplayName(a.Account), a.Category, a.Timestamp.UTC().Format("2006-01-02"))
}
