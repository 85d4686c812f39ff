package cmd

import (
	"github.com/spf13/cobra"

	"github.com/safekeephq/safekeep/pkg/command"
)

var backupCmd = &cobra.Command{
	Use:   "backup SOURCE DESTINATION",
	Short: "Copy new and changed entries from SOURCE to DESTINATION.",
	Long: `Backup mirrors the directory tree of SOURCE under DESTINATION and
copies every file that is missing or changed. Nothing is ever deleted
from the destination; use sync for that.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runEngine(cmd, command.Request{
			Operation:   command.Backup,
			Source:      args[0],
			Destination: args[1],
		})
	},
}

func init() {
	rootCmd.AddCommand(backupCmd)
}
