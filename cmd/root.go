// Package cmd wires the engine to its command-line surface.
package cmd

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/safekeephq/safekeep/pkg/backuperr"
	"github.com/safekeephq/safekeep/pkg/buildinfo"
	"github.com/safekeephq/safekeep/pkg/command"
	"github.com/safekeephq/safekeep/pkg/config"
	"github.com/safekeephq/safekeep/pkg/hints"
	"github.com/safekeephq/safekeep/pkg/hook"
	"github.com/safekeephq/safekeep/pkg/lockfile"
	"github.com/safekeephq/safekeep/pkg/message"
	"github.com/safekeephq/safekeep/pkg/metafile"
	"github.com/safekeephq/safekeep/pkg/plog"
	"github.com/safekeephq/safekeep/pkg/util"
)

// globalFlags are shared by every subcommand that runs the engine.
type globalFlags struct {
	LogLevel       string
	Quiet          bool
	Workers        int
	BufferSizeKB   int
	ExcludeFiles   []string
	ExcludeDirs    []string
	CheckFreeSpace bool
}

var flags = &globalFlags{}

var rootCmd = &cobra.Command{
	Use:   "safekeep",
	Short: "Mirror directory trees for backup, sync and restore.",
	Long: `safekeep keeps a one-way mirror of a directory tree.

backup copies new and changed entries, sync additionally deletes
destination entries that are gone from the source, and restore copies
the backup back over a damaged source tree.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.LogLevel, "log-level", "", "Logging level: 'debug', 'notice', 'info', 'warn', 'error'.")
	pf.BoolVarP(&flags.Quiet, "quiet", "q", false, "Suppress everything below warnings.")
	pf.IntVar(&flags.Workers, "workers", 0, "Number of worker goroutines for copies and deletes (0 = one per CPU).")
	pf.IntVar(&flags.BufferSizeKB, "buffer-size-kb", 0, "Size of the I/O buffer in kilobytes (0 = default).")
	pf.StringSliceVar(&flags.ExcludeFiles, "exclude-files", nil, "File name patterns to exclude (supports glob patterns).")
	pf.StringSliceVar(&flags.ExcludeDirs, "exclude-dirs", nil, "Directory name patterns to exclude (supports glob patterns).")
	pf.BoolVar(&flags.CheckFreeSpace, "check-free-space", false, "Warn when the destination filesystem looks too small for the source.")

	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})
}

// Execute runs the CLI until completion or interruption.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// mergedConfig loads the destination's config file and overlays every
// flag the user set explicitly on this invocation.
func mergedConfig(cmd *cobra.Command, destination string) (config.Config, error) {
	cfg, err := config.Load(destination)
	if err != nil {
		return config.Config{}, err
	}
	set := cmd.Flags().Changed
	if set("workers") {
		cfg.Workers = flags.Workers
	}
	if set("buffer-size-kb") {
		cfg.BufferSizeKB = flags.BufferSizeKB
	}
	if set("log-level") {
		cfg.LogLevel = flags.LogLevel
	}
	if set("check-free-space") {
		cfg.CheckFreeSpace = flags.CheckFreeSpace
	}
	if set("exclude-files") {
		cfg.ExcludeFiles = append(cfg.ExcludeFiles, flags.ExcludeFiles...)
	}
	if set("exclude-dirs") {
		cfg.ExcludeDirs = append(cfg.ExcludeDirs, flags.ExcludeDirs...)
	}
	return cfg, nil
}

// runEngine executes one engine request: load the destination's config,
// run pre hooks, lock the destination, run the phases while rendering
// the message stream, record the run and fire post hooks.
func runEngine(cmd *cobra.Command, req command.Request) error {
	ctx := cmd.Context()

	var err error
	if req.Source, err = util.ExpandPath(req.Source); err != nil {
		return err
	}
	if req.Destination, err = util.ExpandPath(req.Destination); err != nil {
		return err
	}

	cfg, err := mergedConfig(cmd, req.Destination)
	if err != nil {
		return err
	}
	plog.SetLevel(plog.LevelFromString(cfg.LogLevel))
	plog.SetQuiet(flags.Quiet)

	hooks := hook.NewRunner(nil)
	if err := hooks.Run(ctx, "pre-"+req.Operation.String(), cfg.PreHooks); err != nil && !hints.IsHint(err) {
		return err
	}

	// The destination may not exist yet on a first backup; the lock file
	// needs the directory in place.
	if err := os.MkdirAll(req.Destination, 0o755); err != nil {
		return &backuperr.RootError{
			Kind: backuperr.CannotCreateRootDestinationDir,
			Path: req.Destination,
			Err:  err,
		}
	}
	lock, err := lockfile.Acquire(ctx, req.Destination, buildinfo.Name)
	if err != nil {
		return err
	}
	defer lock.Release()

	queue := message.NewQueue()
	renderer := newRenderer()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			m, ok := queue.Next()
			if !ok {
				return
			}
			renderer.render(m)
		}
	}()

	d, err := command.New(command.Options{
		Workers:        cfg.Workers,
		BufferSize:     cfg.BufferSizeKB * 1024,
		ExcludeFiles:   cfg.SystemExcludeFiles(),
		ExcludeDirs:    cfg.ExcludeDirs,
		CheckFreeSpace: cfg.CheckFreeSpace,
	}, queue)
	if err != nil {
		queue.Close()
		<-done
		return err
	}

	start := time.Now()
	runErr := d.Run(ctx, req)
	queue.Close()
	<-done

	if runErr == nil || !backuperr.IsFatal(runErr) {
		meta := &metafile.Content{
			Version:      buildinfo.Version,
			Operation:    req.Operation.String(),
			Source:       req.Source,
			TimestampUTC: start.UTC(),
			Duration:     time.Since(start).Round(time.Millisecond),
		}
		var agg *backuperr.Aggregate
		if errors.As(runErr, &agg) {
			meta.PathErrors = len(agg.Paths)
		}
		if err := metafile.Write(req.Destination, meta); err != nil {
			plog.Warn("Failed to record run metadata", "error", err)
		}
	}

	if err := hooks.Run(ctx, "post-"+req.Operation.String(), cfg.PostHooks); err != nil && !hints.IsHint(err) && runErr == nil {
		runErr = err
	}
	return runErr
}
