// Package hook runs user-supplied shell commands around an engine run,
// e.g. stopping a service before a backup and starting it afterwards.
package hook

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/safekeephq/safekeep/pkg/hints"
	"github.com/safekeephq/safekeep/pkg/plog"
)

// ErrNothingToExecute signals an empty command list. It is a hint, not a
// failure.
var ErrNothingToExecute = hints.New("nothing to execute")

// Runner executes hook commands through the platform shell.
type Runner struct {
	// commandContext allows mocking os/exec in tests.
	commandContext func(ctx context.Context, name string, arg ...string) *exec.Cmd

	// FailFast aborts the run on the first failing command instead of
	// warning and continuing.
	FailFast bool
}

// NewRunner creates a Runner. A nil commandContext uses exec.CommandContext.
func NewRunner(commandContext func(ctx context.Context, name string, arg ...string) *exec.Cmd) *Runner {
	if commandContext == nil {
		commandContext = exec.CommandContext
	}
	return &Runner{commandContext: commandContext}
}

// Run executes the given commands in order. stage names the hook point
// ("pre-backup", "post-sync") for logging. A failing command is a warning
// unless FailFast is set; a canceled context stops the sequence.
func (r *Runner) Run(ctx context.Context, stage string, commands []string) error {
	if len(commands) == 0 {
		return ErrNothingToExecute
	}

	plog.Info(fmt.Sprintf("Running %s hook commands", stage))
	for _, command := range commands {
		if err := ctx.Err(); err != nil {
			return err
		}

		plog.Info("Executing command", "stage", stage, "command", command)
		cmd := r.createCommand(ctx, command)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if r.FailFast {
				return fmt.Errorf("%s hook '%s' failed: %w", stage, command, err)
			}
			plog.Warn("Hook command failed", "stage", stage, "command", command, "error", err)
		}
	}
	return nil
}
