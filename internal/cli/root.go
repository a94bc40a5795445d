// Package cli handles the command-line interface logic using Cobra.
package cli

import (
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ldm",
		Short: "LDM - loads legacy data exports into the relational schema",
		Long: `LDM ingests hierarchical legacy exports (line-delimited search-index
records and plain JSON arrays) and migrates them into the normalized
relational schema, enforcing referential integrity across models through
a dependency-ordered, batched pipeline.`,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	rootCmd.AddCommand(NewMigrateCmd())

	return rootCmd
}
