package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var showSources bool

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a single question against the indexed corpus",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&showSources, "sources", false, "print the sources the answer was grounded in")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	question := strings.TrimSpace(strings.Join(args, " "))
	if question == "" {
		return fmt.Errorf("question must not be empty")
	}

	answer, err := a.engine.Ask(ctx, a.engine.NewSession(), question)
	if err != nil {
		return err
	}

	fmt.Println(answer.Text)

	if showSources && len(answer.Sources) > 0 {
		fmt.Println()
		fmt.Println("Sources:")
		seen := make(map[string]bool)
		for _, src := range answer.Sources {
			if seen[src.Passage.Source] {
				continue
			}
			seen[src.Passage.Source] = true
			fmt.Printf("  %.3f  %s\n", src.Score, src.Passage.Source)
		}
	}
	return nil
}
