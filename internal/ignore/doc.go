// Package ignore provides gitignore-style pattern matching used by the
// watcher to drop paths before they ever reach the indexing pipeline.
//
// It implements the gitignore pattern syntax as documented at:
// https://git-scm.com/docs/gitignore
//
// Usage:
//
//	m := ignore.New()
//	m.AddPattern(".git/")
//	m.AddPattern("*.lock")
//
//	if m.Match("node_modules/pkg/index.js", true) {
//	    // path is ignored
//	}
package ignore
