// Package logging provides file-based logging with rotation for the
// docsearch server. The server command always sets it up: structured JSON
// logs are written to ~/.docsearch/logs/ with size-based rotation, and by
// default also go to stderr so a foreground server stays observable.
package logging
