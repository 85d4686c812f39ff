package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/safekeephq/safekeep/pkg/config"
	"github.com/safekeephq/safekeep/pkg/plog"
)

var initCmd = &cobra.Command{
	Use:   "init DESTINATION",
	Short: "Write a default configuration file into DESTINATION.",
	Long: `Init creates DESTINATION if needed and writes a ` + config.FileName + `
seeded from the flags of this invocation. Later runs against the
destination pick the file up automatically; flags still override
individual fields per run.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		destination := args[0]
		if err := os.MkdirAll(destination, 0o755); err != nil {
			return err
		}

		cfg := config.Default()
		cfg.Workers = flags.Workers
		cfg.BufferSizeKB = flags.BufferSizeKB
		if flags.LogLevel != "" {
			cfg.LogLevel = flags.LogLevel
		}
		cfg.CheckFreeSpace = flags.CheckFreeSpace
		cfg.ExcludeFiles = flags.ExcludeFiles
		cfg.ExcludeDirs = flags.ExcludeDirs

		if err := config.Generate(destination, cfg); err != nil {
			return err
		}
		plog.Notice("Configuration written", "destination", destination, "file", config.FileName)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
