package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index and configuration status",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	fmt.Println("Index:")
	fmt.Printf("  Passages:    %d\n", a.engine.PassageCount())
	fmt.Printf("  Generation:  %d\n", a.engine.IndexGeneration())
	fmt.Printf("  Snapshot:    %s (%s backend)\n", a.store.Key(), a.cfg.StorageBackend)
	fmt.Println()
	fmt.Println("Models:")
	fmt.Printf("  Generation:  %s\n", a.cfg.ModelName)
	fmt.Printf("  Embedding:   %s (%d dimensions)\n", a.cfg.EmbedderModel, a.cfg.EmbedderDimension)
	fmt.Println()
	fmt.Println("Retrieval:")
	fmt.Printf("  Top-k:       %d\n", a.cfg.RetrieveK)
	fmt.Printf("  Min score:   %.2f\n", a.cfg.MinScore)
	fmt.Printf("  Chunking:    %d runes, %d overlap\n", a.cfg.ChunkSize, a.cfg.ChunkOverlap)
	fmt.Printf("  Audit log:   %v\n", a.cfg.AuditLog)
	return nil
}
