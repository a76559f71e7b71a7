package watcher

import (
	"context"
	"time"
)

// Operation is the kind of change a FileEvent reports.
type Operation int

const (
	// OpCreate: a file or directory appeared.
	OpCreate Operation = iota
	// OpModify: an existing file's content changed.
	OpModify
	// OpDelete: a file or directory went away.
	OpDelete
	// OpRename: a file or directory moved; OldPath carries where from.
	// The watchers in this package do not emit it: a rename shows up as
	// OpDelete of the old path plus OpCreate of the new one.
	OpRename
	// OpGitignoreChange: a .gitignore changed, so the effective ignore set
	// may have grown or shrunk and the index should reconcile.
	OpGitignoreChange
	// OpConfigChange: the docsearch config file changed.
	OpConfigChange
)

var operationNames = map[Operation]string{
	OpCreate:          "CREATE",
	OpModify:          "MODIFY",
	OpDelete:          "DELETE",
	OpRename:          "RENAME",
	OpGitignoreChange: "GITIGNORE_CHANGE",
	OpConfigChange:    "CONFIG_CHANGE",
}

// String returns the operation's log-friendly name.
func (op Operation) String() string {
	if name, ok := operationNames[op]; ok {
		return name
	}
	return "UNKNOWN"
}

// FileEvent is one normalized change under a watched docs root. Path is
// relative to that root.
type FileEvent struct {
	Path string

	// OldPath is the pre-rename path; empty for every other operation.
	OldPath string

	Operation Operation
	IsDir     bool

	// Timestamp is when the change was observed, not when it happened.
	Timestamp time.Time
}

// Watcher is the contract PollingWatcher satisfies. HybridWatcher has the
// same methods except that its Events channel carries debounced batches.
type Watcher interface {
	// Start watches path recursively until Stop or ctx cancellation.
	Start(ctx context.Context, path string) error

	// Stop releases resources; safe to call more than once.
	Stop() error

	// Events is closed when the watcher stops.
	Events() <-chan FileEvent

	// Errors carries non-fatal failures; the watcher keeps running.
	Errors() <-chan error
}

// Options tunes a watcher. The zero value is usable via WithDefaults.
type Options struct {
	// DebounceWindow is how long events for one path are held for
	// coalescing before a batch is emitted. Default 200ms.
	DebounceWindow time.Duration

	// PollInterval is the fallback re-scan cadence when fsnotify is
	// unavailable. Default 5s.
	PollInterval time.Duration

	// EventBufferSize caps the output channel; full buffers drop batches
	// rather than blocking the OS event source. Default 1000.
	EventBufferSize int

	// IgnorePatterns are gitignore-syntax patterns applied on top of any
	// .gitignore files found under the root.
	IgnorePatterns []string

	// AllowExtensions restricts emitted file events to paths with one of
	// these extensions (lowercase, leading dot). Empty means no extension
	// filtering. Directory events and special events (gitignore/config
	// changes) are never filtered.
	AllowExtensions []string
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		DebounceWindow:  200 * time.Millisecond,
		PollInterval:    5 * time.Second,
		EventBufferSize: 1000,
	}
}

// Validate reports whether the options are usable. Every field currently
// has a safe default, so there is nothing to reject yet.
func (o Options) Validate() error {
	return nil
}

// WithDefaults fills zero fields from DefaultOptions.
func (o Options) WithDefaults() Options {
	d := DefaultOptions()
	if o.DebounceWindow == 0 {
		o.DebounceWindow = d.DebounceWindow
	}
	if o.PollInterval == 0 {
		o.PollInterval = d.PollInterval
	}
	if o.EventBufferSize == 0 {
		o.EventBufferSize = d.EventBufferSize
	}
	return o
}
