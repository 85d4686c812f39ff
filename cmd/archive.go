package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/safekeephq/safekeep/pkg/archive"
	"github.com/safekeephq/safekeep/pkg/exclude"
	"github.com/safekeephq/safekeep/pkg/plog"
	"github.com/safekeephq/safekeep/pkg/pool"
)

var (
	archiveFormat string
	archiveLevel  string
)

var archiveCmd = &cobra.Command{
	Use:   "archive SOURCE ARCHIVE-FILE",
	Short: "Export SOURCE into a single compressed archive file.",
	Long: `Archive packs the directory tree of SOURCE into one compressed
archive. The format is inferred from the file name (.zip, .tar.gz, .tgz,
.tar.zst) unless --format is given. The archive is written atomically: a
failed run leaves no partial file behind.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		source, target := args[0], args[1]

		format, err := archive.ParseFormat(archiveFormat)
		if archiveFormat == "" {
			format, err = archive.FormatFromPath(target)
		}
		if err != nil {
			return err
		}
		level, err := archive.ParseLevel(archiveLevel)
		if err != nil {
			return err
		}
		excludes, err := exclude.New(flags.ExcludeFiles, flags.ExcludeDirs)
		if err != nil {
			return err
		}
		if info, err := os.Stat(source); err != nil || !info.IsDir() {
			return fmt.Errorf("source directory %s does not exist", source)
		}

		plog.Notice("archiving", "source", source, "target", target, "format", format)
		start := time.Now()
		w := archive.NewWriter(format, level, pool.NewBuffers(int64(flags.BufferSizeKB)*1024), excludes)
		if err := w.Create(cmd.Context(), source, target); err != nil {
			return err
		}
		plog.Notice("archive written", "target", target, "duration", time.Since(start).Round(time.Millisecond))
		return nil
	},
}

func init() {
	archiveCmd.Flags().StringVar(&archiveFormat, "format", "", "Archive format: 'zip', 'tar.gz' or 'tar.zst' (default: inferred from the file name).")
	archiveCmd.Flags().StringVar(&archiveLevel, "level", "default", "Compression level: 'fastest', 'default', 'better' or 'best'.")
	rootCmd.AddCommand(archiveCmd)
}
