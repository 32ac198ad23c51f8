package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/workbench/internal/artifact"
	"github.com/sells-group/workbench/internal/model"
)

var artifactsCmd = &cobra.Command{
	Use:   "artifacts",
	Short: "Browse generated artifacts",
	Long:  "Commands for resolving the newest or every artifact of a category for an account.",
}

// -- artifacts categories --

var artifactsCategoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "List registered artifact categories",
	RunE: func(cmd *cobra.Command, _ []string) error {
		formatCategories(os.Stdout, artifact.Categories())
		return nil
	},
}

// -- artifacts status --

var artifactsStatusCmd = &cobra.Command{
	Use:   "status <account>",
	Short: "Show file counts and newest timestamps per category",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		overview, err := newArtifactStore().Overview(args[0])
		if err != nil {
			return eris.Wrap(err, "artifacts status")
		}
		formatOverview(os.Stdout, overview)
		return nil
	},
}

// -- artifacts latest --

var artifactsLatestCmd = &cobra.Command{
	Use:   "latest <account> <category>",
	Short: "Print the newest artifact of a category",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newArtifactStore().ResolveLatest(args[0], args[1])
		if err != nil {
			return eris.Wrap(err, "artifacts latest")
		}
		if a == nil {
			fmt.Fprintf(os.Stderr, "No %s artifacts for %s.\n", args[1], args[0])
			return nil
		}
		return printArtifact(os.Stdout, a)
	},
}

// -- artifacts all --

var artifactsAllCmd = &cobra.Command{
	Use:   "all <account> <category>",
	Short: "List every artifact of a category, newest first",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := newArtifactStore().ResolveAll(args[0], args[1])
		if err != nil {
			return eris.Wrap(err, "artifacts all")
		}

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			return printJSON(os.Stdout, res.Artifacts)
		}

		if len(res.Artifacts) == 0 && res.SkippedCount() == 0 {
			fmt.Fprintf(os.Stderr, "No %s artifacts for %s.\n", args[1], args[0])
			return nil
		}
		formatArtifactList(os.Stdout, res)
		return nil
	},
}

// -- artifacts import --

var artifactsImportCmd = &cobra.Command{
	Use:   "import <account> <category> <file>",
	Short: "Copy an externally produced file into an account's category directory",
	Long:  "Decodes the file to check it, then writes it under the category's canonical timestamped name so it resolves as the newest artifact.",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		at := time.Now()
		if raw, _ := cmd.Flags().GetString("at"); raw != "" {
			t, ok := artifact.ParseTimestamp(raw)
			if !ok {
				return eris.Errorf("artifacts import: invalid --at %q", raw)
			}
			at = t
		}

		a, err := newArtifactStore().Import(args[0], args[1], args[2], at)
		if err != nil {
			return eris.Wrap(err, "artifacts import")
		}
		fmt.Fprintf(os.Stderr, "Imported %s as %s\n", args[2], a.Path)
		return nil
	},
}

func init() {
	artifactsImportCmd.Flags().String("at", "", "timestamp for the imported artifact (default now)")
	artifactsAllCmd.Flags().Bool("json", false, "print decoded artifacts as JSON")

	artifactsCmd.AddCommand(artifactsCategoriesCmd)
	artifactsCmd.AddCommand(artifactsStatusCmd)
	artifactsCmd.AddCommand(artifactsLatestCmd)
	artifactsCmd.AddCommand(artifactsAllCmd)
	artifactsCmd.AddCommand(artifactsImportCmd)
	rootCmd.AddCommand(artifactsCmd)
}

// printJSON writes v as indented JSON.
func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printArtifact writes a document body as-is and a structured record as JSON.
func printArtifact(out io.Writer, a *model.Artifact) error {
	if a.Record == nil {
		_, err := io.WriteString(out, a.Document)
		return err
	}
	return printJSON(out, a.Record)
}

func formatCategories(out io.Writer, cats []model.Category) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CATEGORY\tDIR\tPATTERN\tFORMAT\tSELECTION")
	_, _ = fmt.Fprintln(w, "--------\t---\t-------\t------\t---------")
	for _, c := range cats {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s-<ts>%s\t%s\t%s\n", c.Name, c.Dir, c.Prefix, c.Ext, c.Format, c.Selection)
	}
	_ = w.Flush()
}

// formatArtifactList writes one row per decoded artifact followed by the
// files that failed to decode.
func formatArtifactList(out io.Writer, res *artifact.Resolution) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TIMESTAMP\tPATH")
	_, _ = fmt.Fprintln(w, "---------\t----")
	for _, a := range res.Artifacts {
		_, _ = fmt.Fprintf(w, "%s\t%s\n", a.Timestamp.UTC().Format("2006-01-02 15:04:05"), a.Path)
	}
	_ = w.Flush()

	if n := res.SkippedCount(); n > 0 {
		_, _ = fmt.Fprintf(out, "\n%d file(s) could not be decoded:\n", n)
		for _, de := range res.Skipped {
			_, _ = fmt.Fprintf(out, "  %s: %v\n", de.Path, de.Err)
		}
	}
}
