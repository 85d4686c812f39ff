// Package message defines the event vocabulary the mirroring engine emits
// and the sink abstraction that decouples it from any presentation layer.
// The engine's only externally visible output besides its final error is
// this closed union of Warning, Info, Progress and Error values.
package message

// Phase identifies which engine pass a progress event belongs to.
type Phase int

const (
	PhaseMirrorDirs Phase = iota
	PhaseCopyFiles
	PhasePurgeDirs
	PhasePurgeFiles
)

// String returns a short human-readable phase name.
func (p Phase) String() string {
	switch p {
	case PhaseMirrorDirs:
		return "create directories"
	case PhaseCopyFiles:
		return "copy files"
	case PhasePurgeDirs:
		return "delete directories"
	case PhasePurgeFiles:
		return "delete files"
	default:
		return "unknown phase"
	}
}

// IncrementKind says what happened to the path a progress increment is for.
type IncrementKind int

const (
	IncrementAlreadyExists IncrementKind = iota
	IncrementDirCreated
	IncrementSkippedNoModification
	IncrementSkippedUnreachable
	IncrementFileCopied
	IncrementDeletedDir
	IncrementDeletedFile
	IncrementAlreadyDeleted
)

// String returns a short human-readable kind name.
func (k IncrementKind) String() string {
	switch k {
	case IncrementAlreadyExists:
		return "already exists"
	case IncrementDirCreated:
		return "directory created"
	case IncrementSkippedNoModification:
		return "skipped, not modified"
	case IncrementSkippedUnreachable:
		return "skipped, ancestor failed"
	case IncrementFileCopied:
		return "copied"
	case IncrementDeletedDir:
		return "directory deleted"
	case IncrementDeletedFile:
		return "file deleted"
	case IncrementAlreadyDeleted:
		return "already deleted"
	default:
		return "unknown"
	}
}

// WarningKind classifies advisory conditions. All of them are resolved by
// a conservative fallback (copy anyway), never by aborting.
type WarningKind int

const (
	WarningCannotGetMetadata WarningKind = iota
	WarningCannotGetHash
	WarningCannotCopyModifiedTime
	WarningLowDiskSpace
)

// InfoKind classifies informational events.
type InfoKind int

const (
	InfoStartCopying InfoKind = iota
)

// Message is the closed union of events the engine emits. It is transient:
// consumed by the caller's sink, never persisted.
type Message interface {
	message()
}

// Warning reports an advisory condition for a source/destination pair.
type Warning struct {
	Kind        WarningKind
	Source      string
	Destination string
	Err         error
}

// Info reports a non-warning event, such as the start of a file copy.
type Info struct {
	Kind        InfoKind
	Source      string
	Destination string
}

// ProgressStart announces the total number of items of an engine phase,
// known up front via a dedicated counting pass.
type ProgressStart struct {
	Phase Phase
	Total uint64
}

// ProgressIncrement reports one completed item of a phase. Done is the
// running counter after this item; increments from concurrent workers may
// arrive out of path order but Done is monotonic.
type ProgressIncrement struct {
	Phase Phase
	Kind  IncrementKind
	Path  string
	Done  uint64
	Total uint64
}

// ProgressEnd marks the completion of a phase.
type ProgressEnd struct {
	Phase Phase
}

// Error carries a per-path failure as it happens. The same failure is also
// part of the aggregated error returned at the end of the run.
type Error struct {
	Err error
}

func (Warning) message()           {}
func (Info) message()              {}
func (ProgressStart) message()     {}
func (ProgressIncrement) message() {}
func (ProgressEnd) message()       {}
func (Error) message()             {}

// Sink receives engine messages. Implementations must tolerate concurrent
// Send calls (file workers emit from multiple goroutines) and must never
// block the engine.
type Sink interface {
	Send(Message)
}

// SinkFunc adapts a function to the Sink interface. The function itself
// must be safe for concurrent use.
type SinkFunc func(Message)

// Send calls f(m).
func (f SinkFunc) Send(m Message) { f(m) }

// Discard is a Sink that drops every message.
var Discard Sink = SinkFunc(func(Message) {})
