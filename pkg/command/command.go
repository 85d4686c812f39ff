// Package command exposes the three top-level operations of the engine:
// Backup copies changes one way, Sync additionally purges stale
// destination entries, Restore copies the backup back over the source
// tree. Each run is a fixed sequence of phases over the same pair of
// roots, differing only in direction and in whether a purge follows.
package command

import (
	"context"
	"fmt"

	"github.com/safekeephq/safekeep/pkg/backuperr"
	"github.com/safekeephq/safekeep/pkg/copier"
	"github.com/safekeephq/safekeep/pkg/detect"
	"github.com/safekeephq/safekeep/pkg/exclude"
	"github.com/safekeephq/safekeep/pkg/message"
	"github.com/safekeephq/safekeep/pkg/mirror"
	"github.com/safekeephq/safekeep/pkg/pool"
	"github.com/safekeephq/safekeep/pkg/preflight"
	"github.com/safekeephq/safekeep/pkg/purge"
)

// Operation selects what a run does with the root pair.
type Operation int

const (
	// Backup copies changed entries from Source to Destination.
	Backup Operation = iota
	// Sync backs up and then deletes destination entries that no longer
	// exist under Source.
	Sync
	// Restore copies from Destination back to Source, optionally deleting
	// source entries missing from the backup.
	Restore
)

func (o Operation) String() string {
	switch o {
	case Backup:
		return "backup"
	case Sync:
		return "sync"
	case Restore:
		return "restore"
	default:
		return "unknown"
	}
}

// Request names the roots and the operation of one run. Source is always
// the live tree and Destination the backup tree, regardless of direction.
type Request struct {
	Operation   Operation
	Source      string
	Destination string

	// DeleteFiles extends a Restore with a purge of source entries that
	// are absent from the backup. Ignored for Backup and Sync.
	DeleteFiles bool
}

// Options tunes a Dispatcher. The zero value uses one worker per CPU,
// the default copy buffer size, no exclusions and no free-space check.
type Options struct {
	Workers        int
	BufferSize     int
	ExcludeFiles   []string
	ExcludeDirs    []string
	CheckFreeSpace bool
}

// Dispatcher executes requests. It is safe to reuse for several runs.
type Dispatcher struct {
	opts     Options
	excludes *exclude.Set
	buffers  *pool.Buffers
	sink     message.Sink
}

// New builds a Dispatcher. Invalid exclusion patterns are the only
// construction error.
func New(opts Options, sink message.Sink) (*Dispatcher, error) {
	excludes, err := exclude.New(opts.ExcludeFiles, opts.ExcludeDirs)
	if err != nil {
		return nil, err
	}
	if sink == nil {
		sink = message.Discard
	}
	return &Dispatcher{
		opts:     opts,
		excludes: excludes,
		buffers:  pool.NewBuffers(int64(opts.BufferSize)),
		sink:     sink,
	}, nil
}

// Run executes one request. Root problems abort before any work and come
// back as a fatal error (see backuperr.IsFatal); everything after that is
// collected per path and returned at the end as a single aggregate while
// the run keeps going.
func (d *Dispatcher) Run(ctx context.Context, req Request) error {
	// Roots are validated in request orientation for every operation:
	// the source must exist, the destination is created when missing.
	if err := preflight.ValidateRoots(req.Source, req.Destination); err != nil {
		return err
	}

	from, to := req.Source, req.Destination
	if req.Operation == Restore {
		// The backup becomes the source of truth.
		from, to = req.Destination, req.Source
	}
	if err := preflight.CheckWritable(to); err != nil {
		return &backuperr.RootError{
			Kind: backuperr.CannotCreateRootDestinationDir,
			Path: to,
			Err:  err,
		}
	}
	if d.opts.CheckFreeSpace {
		preflight.CheckFreeSpace(from, to, d.sink)
	}

	var errs backuperr.List

	failedDirs, mirrorErrs := mirror.CreateTree(ctx, from, to, d.excludes, d.sink)
	d.report(mirrorErrs)
	errs.Merge(mirrorErrs)

	c := copier.New(copier.Config{
		Workers:  d.opts.Workers,
		Buffers:  d.buffers,
		Detector: detect.New(d.buffers, d.sink),
		Excludes: d.excludes,
		Sink:     d.sink,
	})
	copyErrs := c.BackupFiles(ctx, from, to, failedDirs)
	d.report(copyErrs)
	errs.Merge(copyErrs)

	// The purge runs even after per-path copy failures: a failed copy
	// keeps its own destination entry alive, so deleting unrelated stale
	// entries is still safe.
	if d.purgeWanted(req) && ctx.Err() == nil {
		p := purge.New(d.opts.Workers, d.excludes, d.sink)
		purgeErrs := p.Run(ctx, from, to)
		d.report(purgeErrs)
		errs.Merge(purgeErrs)
	}

	if err := errs.Err(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s interrupted: %w", req.Operation, err)
	}
	return nil
}

func (d *Dispatcher) purgeWanted(req Request) bool {
	switch req.Operation {
	case Sync:
		return true
	case Restore:
		return req.DeleteFiles
	default:
		return false
	}
}

func (d *Dispatcher) report(errs backuperr.List) {
	for _, pe := range errs {
		d.sink.Send(message.Error{Err: pe})
	}
}
