package cmd

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/safekeephq/safekeep/pkg/message"
	"github.com/safekeephq/safekeep/pkg/plog"
)

var (
	phaseStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	createdStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("81"))
	copiedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("78"))
	skippedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	deletedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("204"))
)

// renderer turns the engine's message stream into log lines and a styled
// per-phase summary. It runs on a single goroutine, so no locking.
type renderer struct {
	counts map[message.IncrementKind]uint64
	total  uint64
}

func newRenderer() *renderer {
	return &renderer{counts: make(map[message.IncrementKind]uint64)}
}

func (r *renderer) render(m message.Message) {
	switch msg := m.(type) {
	case message.ProgressStart:
		r.counts = make(map[message.IncrementKind]uint64)
		r.total = msg.Total
		plog.Notice(phaseStyle.Render(msg.Phase.String()), "total", msg.Total)
	case message.ProgressIncrement:
		plog.Debug(msg.Kind.String(),
			"path", msg.Path,
			"progress", fmt.Sprintf("%d/%d", msg.Done, msg.Total))
		r.counts[msg.Kind]++
	case message.ProgressEnd:
		r.summarize(msg.Phase)
	case message.Info:
		if msg.Kind == message.InfoStartCopying {
			plog.Debug("copying", "source", msg.Source, "destination", msg.Destination)
		}
	case message.Warning:
		plog.Warn(warningText(msg.Kind),
			"source", msg.Source,
			"destination", msg.Destination,
			"error", msg.Err)
	case message.Error:
		plog.Error("path failed", "error", msg.Err)
	}
}

func (r *renderer) summarize(phase message.Phase) {
	attrs := []any{}
	add := func(label string, style lipgloss.Style, kinds ...message.IncrementKind) {
		var n uint64
		for _, k := range kinds {
			n += r.counts[k]
		}
		if n > 0 {
			attrs = append(attrs, style.Render(label), n)
		}
	}
	add("created", createdStyle, message.IncrementDirCreated)
	add("copied", copiedStyle, message.IncrementFileCopied)
	add("unchanged", skippedStyle,
		message.IncrementAlreadyExists, message.IncrementSkippedNoModification)
	add("skipped", skippedStyle, message.IncrementSkippedUnreachable)
	add("deleted", deletedStyle,
		message.IncrementDeletedDir, message.IncrementDeletedFile)
	add("already gone", skippedStyle, message.IncrementAlreadyDeleted)

	plog.Notice(phaseStyle.Render(phase.String())+" done", attrs...)
}

func warningText(kind message.WarningKind) string {
	switch kind {
	case message.WarningCannotGetMetadata:
		return "cannot read metadata, copying anyway"
	case message.WarningCannotGetHash:
		return "cannot hash file, copying anyway"
	case message.WarningCannotCopyModifiedTime:
		return "cannot copy modification time"
	case message.WarningLowDiskSpace:
		return "destination may be too small for the source"
	default:
		return "warning"
	}
}
