package cmd

import (
	"github.com/spf13/cobra"

	"github.com/safekeephq/safekeep/pkg/command"
)

var syncCmd = &cobra.Command{
	Use:   "sync SOURCE DESTINATION",
	Short: "Backup and then delete destination entries gone from SOURCE.",
	Long: `Sync performs a backup and afterwards deletes every destination
entry that no longer exists under SOURCE, leaving DESTINATION an exact
mirror. Stale entries are identified before the first deletion.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runEngine(cmd, command.Request{
			Operation:   command.Sync,
			Source:      args[0],
			Destination: args[1],
		})
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
