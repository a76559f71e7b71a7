package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/docsearch/docsearch/internal/chunk"
	"github.com/docsearch/docsearch/internal/core"
	"github.com/docsearch/docsearch/internal/embed"
	"github.com/docsearch/docsearch/internal/lexical"
	"github.com/docsearch/docsearch/internal/retrybackoff"
	"github.com/docsearch/docsearch/internal/vector"
	"github.com/docsearch/docsearch/internal/watcher"
)

// Config tunes an Indexer's batching, concurrency, and retry behavior.
type Config struct {
	CollectionID    string
	EmbedBatchSize  int
	Workers         int
	EventQueueSize  int
	EmbedQueueSize  int
	RetryConfig     retrybackoff.Config
	PerFileDeadline time.Duration
}

// DefaultConfig applies a 60s per-file deadline, the embedder's default
// batch size, and a small bounded worker pool.
func DefaultConfig(collectionID string) Config {
	return Config{
		CollectionID:    collectionID,
		EmbedBatchSize:  embed.DefaultBatchSize,
		Workers:         4,
		EventQueueSize:  256,
		EmbedQueueSize:  256,
		RetryConfig:     retrybackoff.DefaultConfig(),
		PerFileDeadline: 60 * time.Second,
	}
}

// LexicalIndex is the slice of internal/lexical.Index the indexer writes
// through: chunk content in, chunk tombstones out.
type LexicalIndex interface {
	IndexChunks(ctx context.Context, entries []lexical.Entry) error
	DeleteChunks(ctx context.Context, chunkIDs []string) error
}

// Indexer is the document processor: it turns a file path
// into chunks, chunks into embeddings, and embeddings into repository
// upserts, skipping files whose content revision hasn't changed.
type Indexer struct {
	cfg      Config
	repo     vector.Repository
	embedder embed.Provider
	chunker  chunk.Chunker
	docs     *DocumentStore
	lexical  LexicalIndex // optional; nil disables the BM25 sidecar
	logger   *slog.Logger

	progressMu sync.Mutex
	progress   Checkpoint
}

// New builds an Indexer over the given trait objects. All are held as
// shared references for the process lifetime.
func New(cfg Config, repo vector.Repository, embedder embed.Provider, chunker chunk.Chunker, docs *DocumentStore, logger *slog.Logger) *Indexer {
	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = embed.DefaultBatchSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{cfg: cfg, repo: repo, embedder: embedder, chunker: chunker, docs: docs, logger: logger}
}

// SetLexicalIndex attaches the BM25 sidecar. Called once at container
// build time, before any indexing starts.
func (ix *Indexer) SetLexicalIndex(lx LexicalIndex) {
	ix.lexical = lx
}

// DocumentID derives the stable per-path document identifier: a hash of
// the absolute path, independent of content.
func DocumentID(absPath string) string {
	sum := sha256.Sum256([]byte(absPath))
	return hex.EncodeToString(sum[:])[:32]
}

// revisionID derives the content-revision id: a hash of the document's
// bytes, used to skip reprocessing unchanged files.
func revisionID(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// IndexFile processes one file through the full ingestion path: read, hash,
// early-exit on unchanged revision, extract title, chunk, embed, upsert, and
// advance the revision record. Runs under cfg.PerFileDeadline.
func (ix *Indexer) IndexFile(ctx context.Context, absPath, relPath string) error {
	if ix.cfg.PerFileDeadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ix.cfg.PerFileDeadline)
		defer cancel()
	}

	content, err := os.ReadFile(absPath)
	if err != nil {
		return core.Internal(fmt.Sprintf("read %s", relPath), err)
	}

	docID := DocumentID(absPath)
	rev := revisionID(content)

	if existing, ok := ix.docs.Get(docID); ok && existing.ContentHash == rev {
		return nil // revision unchanged
	}

	if len(content) == 0 {
		ix.docs.Put(core.Document{
			ID: docID, Path: relPath, CollectionID: ix.cfg.CollectionID,
			ContentHash: rev, DocumentType: documentType(relPath), SizeBytes: 0,
			IndexedAt: time.Now(), ModifiedAt: time.Now(),
		})
		return nil // empty file: zero chunks, no embedding calls
	}

	chunks, err := ix.chunker.Chunk(docID, content)
	if err != nil {
		ix.logger.Warn("chunker failed, skipping document", "path", relPath, "error", err)
		return nil // malformed input is skipped, not fatal
	}

	doc := docInfo{title: extractTitle(content, relPath), revision: rev, sizeBytes: int64(len(content))}
	if err := ix.embedAndUpsert(ctx, relPath, doc, chunks); err != nil {
		ix.logger.Warn("indexing failed, revision not advanced", "path", relPath, "error", err)
		return err // revision marker intentionally not advanced; next event retries from scratch
	}

	ix.docs.Put(core.Document{
		ID:           docID,
		Path:         relPath,
		Title:        doc.title,
		CollectionID: ix.cfg.CollectionID,
		ContentHash:  rev,
		DocumentType: documentType(relPath),
		SizeBytes:    int64(len(content)),
		IndexedAt:    time.Now(),
		ModifiedAt:   time.Now(),
	})
	return nil
}

// docInfo is the document-level payload duplicated onto every point so a
// restarted process can rebuild its revision map from the repository.
type docInfo struct {
	title     string
	revision  string
	sizeBytes int64
}

func (ix *Indexer) embedAndUpsert(ctx context.Context, relPath string, doc docInfo, chunks []core.Chunk) error {
	for start := 0; start < len(chunks); start += ix.cfg.EmbedBatchSize {
		end := start + ix.cfg.EmbedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Content
		}

		var vecs [][]float32
		err := retrybackoff.Retry(ctx, ix.cfg.RetryConfig, func() error {
			v, err := ix.embedder.EmbedBatch(ctx, texts)
			if err != nil {
				return err
			}
			vecs = v
			return nil
		})
		if err != nil {
			return core.Wrap("embed batch", err)
		}
		if len(vecs) != len(batch) {
			return core.Internal("embedder returned mismatched batch size", nil)
		}

		points := make([]vector.Point, len(batch))
		for i, c := range batch {
			points[i] = vector.Point{
				ChunkID:      c.ID,
				DocumentID:   c.DocumentID,
				CollectionID: ix.cfg.CollectionID,
				Vector:       vecs[i],
				Path:         relPath,
				ContentHash:  c.ContentHash,
				Content:      c.Content,
				ChunkType:    c.Type,
				StartOffset:  c.StartOffset,
				EndOffset:    c.EndOffset,
				ChunkIndex:   c.Index,
				ChunkTotal:   c.Total,
				Headings:     c.Headings,
				DocTitle:     doc.title,
				DocRevision:  doc.revision,
				DocSizeBytes: doc.sizeBytes,
			}
		}

		err = retrybackoff.Retry(ctx, ix.cfg.RetryConfig, func() error {
			return ix.repo.Upsert(ctx, points)
		})
		if err != nil {
			return core.Wrap("upsert batch", err)
		}

		// The lexical sidecar is best-effort: the vector store is the
		// source of truth, and a failed BM25 write costs ranking quality
		// for these chunks until their document changes and is re-embedded.
		if ix.lexical != nil {
			entries := make([]lexical.Entry, len(batch))
			for i, c := range batch {
				entries[i] = lexical.Entry{ChunkID: c.ID, Content: c.Content}
			}
			if err := ix.lexical.IndexChunks(ctx, entries); err != nil {
				ix.logger.Warn("lexical index write failed", "path", relPath, "error", err)
			}
		}
	}
	return nil
}

// DeleteDocument tombstones every chunk of docID within the configured
// collection, removes its lexical entries, and drops its revision record.
func (ix *Indexer) DeleteDocument(ctx context.Context, docID string) error {
	var chunkIDs []string
	if ix.lexical != nil {
		if points, err := ix.repo.GetDocumentChunks(ctx, ix.cfg.CollectionID, docID); err == nil {
			for _, p := range points {
				chunkIDs = append(chunkIDs, p.ChunkID)
			}
		}
	}

	if err := ix.repo.DeleteByDocument(ctx, ix.cfg.CollectionID, docID); err != nil {
		return err
	}

	if ix.lexical != nil {
		if err := ix.lexical.DeleteChunks(ctx, chunkIDs); err != nil {
			ix.logger.Warn("lexical index delete failed", "document", docID, "error", err)
		}
	}

	ix.docs.Delete(docID)
	return nil
}

// documentType tags a path as markdown, mdx, or plain text.
func documentType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return "markdown"
	case ".mdx":
		return "mdx"
	default:
		return "text"
	}
}

// extractTitle returns the document's first H1 heading, falling back to
// the filename stem.
func extractTitle(content []byte, relPath string) string {
	for _, line := range strings.Split(string(content), "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(trimmed, "#"))
		}
	}
	base := filepath.Base(relPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Progress reports the current bulk-index checkpoint; Stage is empty when
// no bulk run is active.
func (ix *Indexer) Progress() Checkpoint {
	ix.progressMu.Lock()
	defer ix.progressMu.Unlock()
	return ix.progress
}

func (ix *Indexer) setProgress(fn func(*Checkpoint)) {
	ix.progressMu.Lock()
	fn(&ix.progress)
	ix.progress.UpdatedAt = time.Now()
	ix.progressMu.Unlock()
}

// RunBulk walks root and indexes every file the watcher's extension policy
// would allow, using a bounded worker pool.
func (ix *Indexer) RunBulk(ctx context.Context, root string, allowExt map[string]bool, ignore func(path string, isDir bool) bool) (processed int, err error) {
	var paths []string
	walkErr := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(root, path)
		if ignore != nil && ignore(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if allowExt != nil && !allowExt[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if walkErr != nil {
		return 0, core.Internal("walk root", walkErr)
	}

	ix.setProgress(func(cp *Checkpoint) {
		cp.Stage = "bulk_index"
		cp.Total = len(paths)
		cp.Completed = 0
	})
	defer ix.setProgress(func(cp *Checkpoint) { cp.Stage = "" })

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.cfg.Workers)
	for _, p := range paths {
		p := p
		g.Go(func() error {
			rel, _ := filepath.Rel(root, p)
			if err := ix.IndexFile(gctx, p, rel); err != nil {
				ix.logger.Warn("bulk index failed for file", "path", rel, "error", err)
			}
			ix.setProgress(func(cp *Checkpoint) { cp.Completed++ })
			// One bad file must not abort the whole bulk run.
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return len(paths), nil
}

// RunWatch consumes a normalized watcher event stream and indexes or
// deletes the corresponding documents. Events for a path that
// arrive while a worker is still busy with that path are coalesced to the
// latest kind.
func (ix *Indexer) RunWatch(ctx context.Context, root string, events <-chan watcher.FileEvent) error {
	inflight := newCoalescer(ix.cfg.EventQueueSize)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.cfg.Workers)

	var spawn func(watcher.FileEvent)
	spawn = func(e watcher.FileEvent) {
		g.Go(func() error {
			ix.handleEvent(gctx, root, e)
			inflight.done(e.Path, spawn)
			return nil
		})
	}

	for {
		select {
		case <-ctx.Done():
			return g.Wait()
		case ev, ok := <-events:
			if !ok {
				return g.Wait()
			}
			inflight.submit(ev, spawn)
		}
	}
}

func (ix *Indexer) handleEvent(ctx context.Context, root string, ev watcher.FileEvent) {
	abs := filepath.Join(root, ev.Path)
	switch ev.Operation {
	case watcher.OpCreate, watcher.OpModify:
		if err := ix.IndexFile(ctx, abs, ev.Path); err != nil {
			ix.logger.Warn("watch-triggered index failed", "path", ev.Path, "error", err)
		}
	case watcher.OpDelete:
		docID := DocumentID(abs)
		if err := ix.DeleteDocument(ctx, docID); err != nil {
			ix.logger.Warn("watch-triggered delete failed", "path", ev.Path, "error", err)
		}
	case watcher.OpRename:
		if ev.OldPath != "" {
			oldAbs := filepath.Join(root, ev.OldPath)
			_ = ix.DeleteDocument(ctx, DocumentID(oldAbs))
		}
		if err := ix.IndexFile(ctx, abs, ev.Path); err != nil {
			ix.logger.Warn("watch-triggered rename-in index failed", "path", ev.Path, "error", err)
		}
	default:
		// OpGitignoreChange / OpConfigChange carry no per-path document work.
	}
}
