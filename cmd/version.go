package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/safekeephq/safekeep/pkg/buildinfo"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the application version.",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("%s version %s\n", buildinfo.Name, buildinfo.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
