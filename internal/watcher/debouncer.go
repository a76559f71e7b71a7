package watcher

import (
	"log/slog"
	"sync"
	"time"
)

// Debouncer absorbs the bursts real editors produce. A single save can
// arrive as write+write+chmod, or as delete+create when the editor swaps a
// temp file into place; without debouncing each burst would reindex the
// document several times. Events for one path inside the window collapse
// into a single event whose operation reflects the net effect:
//
//	first CREATE, then MODIFY  -> CREATE  (the file is still new)
//	first CREATE, then DELETE  -> dropped (it never really existed)
//	first MODIFY, then DELETE  -> DELETE
//	first DELETE, then CREATE  -> MODIFY  (the file was replaced)
//
// Any other pair nets to the later operation. When the net operation equals
// the burst's first operation (MODIFY then MODIFY, say), the event already
// held, with its timestamp, is kept; otherwise the latest event replaces it.
type Debouncer struct {
	window time.Duration
	output chan []FileEvent

	mu      sync.Mutex
	stopped bool
	timer   *time.Timer
	queue   map[string]*tracked
}

// tracked is one path's in-flight state: the event that will be emitted,
// plus the operation that opened the burst (the coalescing rules key off
// the first operation seen, not the previous one).
type tracked struct {
	emit  FileEvent
	first Operation
}

// NewDebouncer builds a Debouncer that holds events for window before
// emitting them as one batch on Output.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window: window,
		output: make(chan []FileEvent, 10),
		queue:  make(map[string]*tracked),
	}
}

// Add feeds one raw event into the window. Safe for concurrent use.
func (d *Debouncer) Add(event FileEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	cur, seen := d.queue[event.Path]
	if !seen {
		d.queue[event.Path] = &tracked{emit: event, first: event.Operation}
		d.resetTimerLocked()
		return
	}

	op, drop := netOperation(cur.first, event.Operation)
	if drop {
		delete(d.queue, event.Path)
		d.resetTimerLocked()
		return
	}

	switch op {
	case cur.first:
		// The burst's opening operation wins; keep the original event so
		// its timestamp reflects when the burst began.
	default:
		event.Operation = op
		cur.emit = event
	}
	d.resetTimerLocked()
}

// netOperation folds the burst's opening operation with a newly observed
// one, returning the operation to emit and whether the pair cancels out
// entirely.
func netOperation(first, next Operation) (Operation, bool) {
	switch {
	case first == OpCreate && next == OpModify:
		return OpCreate, false
	case first == OpCreate && next == OpDelete:
		return next, true
	case first == OpDelete && next == OpCreate:
		return OpModify, false
	default:
		return next, false
	}
}

// resetTimerLocked (re)arms the flush timer. Called with d.mu held.
func (d *Debouncer) resetTimerLocked() {
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

// flush drains the queue into one batch on the output channel. A full
// output channel drops the batch rather than blocking the watcher.
func (d *Debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || len(d.queue) == 0 {
		return
	}

	batch := make([]FileEvent, 0, len(d.queue))
	for _, tr := range d.queue {
		batch = append(batch, tr.emit)
	}
	d.queue = make(map[string]*tracked)

	select {
	case d.output <- batch:
	default:
		slog.Warn("debouncer output full, dropping batch",
			slog.Int("batch_size", len(batch)))
	}
}

// Output is the channel of debounced batches.
func (d *Debouncer) Output() <-chan []FileEvent {
	return d.output
}

// Stop halts flushing and closes the output channel. Safe to call more
// than once.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	close(d.output)
}
