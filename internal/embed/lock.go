package embed

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// FileLock serializes model downloads across processes: a server and a CLI
// `index` run pointed at the same cache directory must not both fetch (and
// half-overwrite) the same model archive. Backed by gofrs/flock so it
// behaves on every platform a docsearch binary ships to.
type FileLock struct {
	fl *flock.Flock
}

// NewFileLock returns a lock scoped to dir; the lock file itself lives at
// <dir>/.download.lock.
func NewFileLock(dir string) *FileLock {
	return &FileLock{fl: flock.New(filepath.Join(dir, ".download.lock"))}
}

// Lock blocks until the lock is held, creating the lock file (and its
// directory) if needed.
func (l *FileLock) Lock() error {
	if err := os.MkdirAll(filepath.Dir(l.fl.Path()), 0o755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}
	if err := l.fl.Lock(); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	return nil
}

// Unlock releases the lock. Calling it on a lock that isn't held is a
// no-op.
func (l *FileLock) Unlock() error {
	if !l.fl.Locked() {
		return nil
	}
	if err := l.fl.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}
