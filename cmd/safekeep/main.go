package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/safekeephq/safekeep/cmd"
	"github.com/safekeephq/safekeep/pkg/buildinfo"
	"github.com/safekeephq/safekeep/pkg/plog"
)

func main() {
	// Set up a context that is canceled when an interrupt signal is received.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	go func() {
		<-sigChan
		cancel()
	}()

	plog.Debug("Starting "+buildinfo.Name, "version", buildinfo.Version, "pid", os.Getpid())

	if err := cmd.Execute(ctx); err != nil {
		plog.Error(buildinfo.Name+" exited with error", "error", err)
		os.Exit(1)
	}
}
