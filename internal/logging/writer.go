package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// RotatingWriter is an io.Writer over a single log file with size-based
// rotation: when the current file would exceed its cap, it becomes
// server.log.1, .1 becomes .2, and so on, with anything past maxFiles
// removed.
type RotatingWriter struct {
	path     string
	maxBytes int64
	maxFiles int

	mu            sync.Mutex
	file          *os.File
	size          int64
	immediateSync bool
}

// NewRotatingWriter opens (creating if needed) the log file at path.
// maxSizeMB caps each file; maxFiles caps how many rotated files survive.
// Immediate sync starts enabled so `tail -f` sees lines as they happen.
func NewRotatingWriter(path string, maxSizeMB, maxFiles int) (*RotatingWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	w := &RotatingWriter{
		path:          path,
		maxBytes:      int64(maxSizeMB) << 20,
		maxFiles:      maxFiles,
		immediateSync: true,
	}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

// open (re)opens the current log file for appending and records its size.
func (w *RotatingWriter) open() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}
	w.file = f
	w.size = info.Size()
	return nil
}

// Write implements io.Writer, rotating first when p would push the current
// file past its cap. A failed rotation is reported on stderr and the write
// continues into the current file so no log line is lost.
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.size+int64(len(p)) > w.maxBytes {
		if err := w.rotate(); err != nil {
			fmt.Fprintf(os.Stderr, "log rotation failed: %v\n", err)
		}
	}

	n, err := w.file.Write(p)
	w.size += int64(n)
	if w.immediateSync && err == nil {
		_ = w.file.Sync()
	}
	return n, err
}

// rotate shifts the numbered history up by one slot and starts a fresh
// current file. server.log.<maxFiles> falls off the end.
func (w *RotatingWriter) rotate() error {
	if w.file != nil {
		if err := w.file.Close(); err != nil {
			return fmt.Errorf("failed to close log file: %w", err)
		}
		w.file = nil
	}

	_ = os.Remove(w.slot(w.maxFiles))
	for i := w.maxFiles - 1; i >= 1; i-- {
		_ = os.Rename(w.slot(i), w.slot(i+1))
	}
	if _, err := os.Stat(w.path); err == nil {
		if err := os.Rename(w.path, w.slot(1)); err != nil {
			return fmt.Errorf("failed to rotate log file: %w", err)
		}
	}

	w.size = 0
	return w.open()
}

// slot returns the path of the i-th rotated file.
func (w *RotatingWriter) slot(i int) string {
	return fmt.Sprintf("%s.%d", w.path, i)
}

// SetImmediateSync toggles the per-write fsync. Disabling it buffers for
// throughput at the cost of losing the tail on a crash.
func (w *RotatingWriter) SetImmediateSync(enabled bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.immediateSync = enabled
}

// Sync flushes the current file to disk.
func (w *RotatingWriter) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	return w.file.Sync()
}

// Close closes the current file.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}
