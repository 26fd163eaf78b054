// Package cmd implements the lore command line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "lore",
	Short: "lore - retrieval-grounded question answering over your own documents",
	Long: `lore ingests documents and websites into a vector index, persists the
index to object storage, and answers questions grounded in the indexed
content.

Running lore without a subcommand starts an interactive chat session.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd, args)
	},
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
