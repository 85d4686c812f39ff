package cmd

import (
	"github.com/spf13/cobra"

	"github.com/safekeephq/safekeep/pkg/command"
)

var restoreDelete bool

var restoreCmd = &cobra.Command{
	Use:   "restore SOURCE DESTINATION",
	Short: "Copy the backup in DESTINATION back over SOURCE.",
	Long: `Restore copies new and changed entries from the backup in
DESTINATION back into SOURCE. With --delete it also removes source
entries that are absent from the backup, making SOURCE an exact mirror
of the backup.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runEngine(cmd, command.Request{
			Operation:   command.Restore,
			Source:      args[0],
			Destination: args[1],
			DeleteFiles: restoreDelete,
		})
	},
}

func init() {
	restoreCmd.Flags().BoolVar(&restoreDelete, "delete", false, "Also delete source entries that are absent from the backup.")
	rootCmd.AddCommand(restoreCmd)
}
