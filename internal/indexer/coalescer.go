package indexer

import (
	"sync"

	"github.com/docsearch/docsearch/internal/watcher"
)

// coalescer serializes work per path: at most one indexing task per
// document path runs at a time. An event that arrives for
// a path already in flight replaces any previously-queued event for that
// path instead of growing an unbounded per-path queue.
type coalescer struct {
	mu      sync.Mutex
	busy    map[string]bool
	pending map[string]watcher.FileEvent
}

func newCoalescer(_ int) *coalescer {
	return &coalescer{
		busy:    make(map[string]bool),
		pending: make(map[string]watcher.FileEvent),
	}
}

// submit runs ev immediately through spawn if its path is idle; otherwise it
// replaces any already-queued event for that path. The work spawn starts
// must call c.done when it finishes processing the event it was given.
func (c *coalescer) submit(ev watcher.FileEvent, spawn func(watcher.FileEvent)) {
	c.mu.Lock()
	if c.busy[ev.Path] {
		c.pending[ev.Path] = ev
		c.mu.Unlock()
		return
	}
	c.busy[ev.Path] = true
	c.mu.Unlock()
	spawn(ev)
}

// done marks path idle and, if a newer event was coalesced while busy,
// immediately dispatches it through spawn.
func (c *coalescer) done(path string, spawn func(watcher.FileEvent)) {
	c.mu.Lock()
	next, ok := c.pending[path]
	delete(c.pending, path)
	if !ok {
		c.busy[path] = false
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	spawn(next)
}
