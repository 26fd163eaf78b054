package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var rebuildCmd = &cobra.Command{
	Use:   "rebuild [path...]",
	Short: "Rebuild the index from scratch",
	Long: `Rebuild drops every indexed passage and re-ingests the given sources.

Use it after a corrupt snapshot, an embedder model change, or whenever the
corpus should exactly match the given inputs. Embeddings are computed before
the old index is dropped, so a failed rebuild keeps the previous index.`,
	RunE: runRebuild,
}

func init() {
	rebuildCmd.Flags().StringVar(&ingestURL, "url", "", "crawl a website instead of reading local paths")
	rootCmd.AddCommand(rebuildCmd)
}

func runRebuild(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if ingestURL == "" && len(args) == 0 {
		return fmt.Errorf("nothing to rebuild from: pass paths or --url")
	}

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	docs, err := collectDocuments(ctx, a, args)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return fmt.Errorf("no ingestable documents found")
	}

	report, err := a.engine.Rebuild(ctx, docs)
	if err != nil {
		return err
	}

	fmt.Printf("Rebuilt index from %d documents (%d passages).\n",
		report.Documents, report.Passages)
	return nil
}
