// Package watcher provides real-time file system watching for the
// document-ingestion pipeline, with automatic debouncing, gitignore-aware
// filtering, and an optional file-extension allow-set.
//
// The package implements a hybrid watching strategy:
//   - Primary: fsnotify for efficient event-based watching
//   - Fallback: polling, for environments where fsnotify fails (network
//     mounts, Docker volumes)
//
// Events are debounced to coalesce rapid changes from editors and git
// operations, filtered against .gitignore patterns, and (when
// Options.AllowExtensions is set) restricted to watched document types so
// the indexer only ever sees files it would chunk.
//
// Usage:
//
//	opts := watcher.DefaultOptions()
//	opts.AllowExtensions = []string{".md", ".txt"}
//	w, err := watcher.NewHybridWatcher(opts)
//	if err != nil {
//	    return err
//	}
//	defer w.Stop()
//
//	if err := w.Start(ctx, "/path/to/docs"); err != nil {
//	    return err
//	}
//
//	for batch := range w.Events() {
//	    for _, event := range batch {
//	        switch event.Operation {
//	        case watcher.OpCreate, watcher.OpModify:
//	            // reindex the document
//	        case watcher.OpDelete:
//	            // tombstone the document's chunks
//	        }
//	    }
//	}
package watcher
