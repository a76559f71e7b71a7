// Package app wires the indexer, pipeline, and vector repository into the
// handful of use-case methods both transports call through.
package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/docsearch/docsearch/internal/core"
	"github.com/docsearch/docsearch/internal/embed"
	"github.com/docsearch/docsearch/internal/indexer"
	"github.com/docsearch/docsearch/internal/pipeline"
	"github.com/docsearch/docsearch/internal/vector"
	"github.com/docsearch/docsearch/internal/watcher"
)

// DocumentIndexingService exposes the indexing side of the system: bulk and
// incremental indexing, deletion, listing, and status reporting.
type DocumentIndexingService struct {
	Indexer *indexer.Indexer
	Docs    *indexer.DocumentStore
	Repo    vector.Repository

	collectionID string
	ignore       func(path string, isDir bool) bool
	allowExt     map[string]bool
	roots        []string

	startedAt time.Time
	searches  int64
	searchMS  int64
}

// NewDocumentIndexingService builds the service over an already-constructed
// Indexer, the DocumentStore it shares with that Indexer, and the
// Repository both read from.
func NewDocumentIndexingService(ix *indexer.Indexer, docs *indexer.DocumentStore, repo vector.Repository, collectionID string, roots []string, allowExt map[string]bool, ignore func(path string, isDir bool) bool) *DocumentIndexingService {
	return &DocumentIndexingService{
		Indexer:      ix,
		Docs:         docs,
		Repo:         repo,
		collectionID: collectionID,
		roots:        roots,
		allowExt:     allowExt,
		ignore:       ignore,
		startedAt:    time.Now(),
	}
}

// Roots returns the configured document roots.
func (s *DocumentIndexingService) Roots() []string {
	return s.roots
}

// IndexPath performs a one-shot bulk index of root, backing the `index`
// CLI command and POST /api/reindex's initial-population case. An empty
// root walks every configured root.
func (s *DocumentIndexingService) IndexPath(ctx context.Context, root string) (processed int, err error) {
	if root != "" {
		return s.Indexer.RunBulk(ctx, root, s.allowExt, s.ignore)
	}
	for _, r := range s.roots {
		n, err := s.Indexer.RunBulk(ctx, r, s.allowExt, s.ignore)
		processed += n
		if err != nil {
			return processed, err
		}
	}
	return processed, nil
}

// Reindex re-walks every configured root, backing the `reindex` command and
// POST /api/reindex. Files whose content revision is unchanged since they
// were last indexed are skipped, not re-embedded.
func (s *DocumentIndexingService) Reindex(ctx context.Context) (processed, chunks int, elapsed time.Duration, err error) {
	start := time.Now()
	processed, err = s.IndexPath(ctx, "")
	elapsed = time.Since(start)
	if err != nil {
		return processed, 0, elapsed, err
	}
	chunkCount, _ := s.chunkCount(ctx)
	return processed, chunkCount, elapsed, nil
}

// DeleteDocument tombstones a document's chunks and drops its revision
// record.
func (s *DocumentIndexingService) DeleteDocument(ctx context.Context, documentID string) error {
	if _, ok := s.Docs.Get(documentID); !ok {
		return core.NotFound("document", documentID)
	}
	return s.Indexer.DeleteDocument(ctx, documentID)
}

// ListDocuments returns a page of the collection's tracked documents,
// ordered by path.
func (s *DocumentIndexingService) ListDocuments(page, pageSize int) (docs []core.Document, total int, err error) {
	if pageSize <= 0 {
		pageSize = 50
	}
	if page <= 0 {
		page = 1
	}
	all := s.Docs.List(s.collectionID)
	total = len(all)
	start := (page - 1) * pageSize
	if start >= total {
		return nil, total, nil
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

// GetDocument returns one document's metadata, or a KindNotFound error.
func (s *DocumentIndexingService) GetDocument(documentID string) (core.Document, error) {
	d, ok := s.Docs.Get(documentID)
	if !ok {
		return core.Document{}, core.NotFound("document", documentID)
	}
	return d, nil
}

// Status reports the collection's size and the service's running counters.
func (s *DocumentIndexingService) Status(ctx context.Context) (docCount, chunkCount int, uptimeSeconds float64, avgSearchMS float64, totalSearches int64, err error) {
	docCount = s.Docs.Count(s.collectionID)
	chunkCount, err = s.chunkCount(ctx)
	uptimeSeconds = time.Since(s.startedAt).Seconds()
	totalSearches = atomic.LoadInt64(&s.searches)
	if totalSearches > 0 {
		avgSearchMS = float64(atomic.LoadInt64(&s.searchMS)) / float64(totalSearches)
	}
	return docCount, chunkCount, uptimeSeconds, avgSearchMS, totalSearches, err
}

// RecordSearch feeds SearchService timing into the running status counters.
func (s *DocumentIndexingService) RecordSearch(elapsed time.Duration) {
	atomic.AddInt64(&s.searches, 1)
	atomic.AddInt64(&s.searchMS, elapsed.Milliseconds())
}

func (s *DocumentIndexingService) chunkCount(ctx context.Context) (int, error) {
	cols, err := s.Repo.ListCollections(ctx)
	if err != nil {
		return 0, err
	}
	for _, c := range cols {
		if c.ID == s.collectionID {
			return c.PointCount, nil
		}
	}
	return 0, nil
}

// RunWatch drives the incremental indexing loop for one watched root for
// the lifetime of ctx. It blocks until ctx is cancelled or the watcher's
// event channel closes; the server runs one RunWatch per configured root.
func (s *DocumentIndexingService) RunWatch(ctx context.Context, root string, events <-chan watcher.FileEvent) error {
	return s.Indexer.RunWatch(ctx, root, events)
}

// SearchService runs the query pipeline and answers collection-catalog
// queries.
type SearchService struct {
	Pipeline          *pipeline.Pipeline
	Repo              vector.Repository
	Embedder          embed.Provider
	DefaultCollection string

	indexing *DocumentIndexingService
}

// NewSearchService builds the service over an already-assembled pipeline.
// indexing may be nil; when set, completed searches feed its status counters.
func NewSearchService(p *pipeline.Pipeline, repo vector.Repository, embedder embed.Provider, defaultCollection string, indexing *DocumentIndexingService) *SearchService {
	return &SearchService{Pipeline: p, Repo: repo, Embedder: embedder, DefaultCollection: defaultCollection, indexing: indexing}
}

// Search validates and runs a query through the pipeline, returning the
// ranked results plus the embedding/search/total stage timings the
// response's search_metadata reports.
func (s *SearchService) Search(ctx context.Context, text, collectionID string, limit int, filters map[string]string) ([]core.SearchResultItem, map[string]time.Duration, time.Duration, error) {
	if collectionID == "" {
		collectionID = s.DefaultCollection
	}
	q, err := core.NewSearchQuery(text, collectionID, limit, filters)
	if err != nil {
		return nil, nil, 0, err
	}

	sc := pipeline.NewContext(ctx, q)
	sc.TopK = q.Limit
	if err := s.Pipeline.Run(sc); err != nil {
		return nil, nil, 0, err
	}

	elapsed := time.Since(sc.StartedAt)
	if s.indexing != nil {
		s.indexing.RecordSearch(elapsed)
	}
	return sc.Results, sc.Durations, elapsed, nil
}

// ListCollections reports every collection the repository physically
// holds.
func (s *SearchService) ListCollections(ctx context.Context) ([]vector.CollectionInfo, error) {
	return s.Repo.ListCollections(ctx)
}

// GetCollection reports one collection, or a KindNotFound error.
func (s *SearchService) GetCollection(ctx context.Context, name string) (vector.CollectionInfo, error) {
	cols, err := s.Repo.ListCollections(ctx)
	if err != nil {
		return vector.CollectionInfo{}, err
	}
	for _, c := range cols {
		if c.ID == name {
			return c, nil
		}
	}
	return vector.CollectionInfo{}, core.NotFound("collection", name)
}

// CreateCollection provisions a new logical collection. Idempotent:
// re-declaring a name with the same dimension succeeds silently; a
// different dimension is a Conflict.
func (s *SearchService) CreateCollection(ctx context.Context, name string, dimension int) error {
	if strings.TrimSpace(name) == "" {
		return core.Validation("name", "collection name must not be empty")
	}
	if dimension <= 0 {
		dimension = s.Embedder.Dimensions()
	}
	if existing, err := s.GetCollection(ctx, name); err == nil {
		if existing.Dimension != dimension {
			return core.Conflict("collection", existing.ID)
		}
		return nil
	}
	return s.Repo.CreateCollection(ctx, name, dimension)
}

// HealthService aggregates the liveness of every dependency
// GET /api/health reports on (component name -> ok/degraded/down).
type HealthService struct {
	Repo     vector.Repository
	Embedder embed.Provider

	// Progress, when set, reports the indexer's current bulk checkpoint so
	// health output can show a reindex in flight.
	Progress func() indexer.Checkpoint

	mu          sync.RWMutex
	watcherOK   bool
	watcherErr  string
	queueDepths map[string]int
}

// NewHealthService builds the service; the watcher is reported "down" until
// SetWatcherHealth(true, ...) is called.
func NewHealthService(repo vector.Repository, embedder embed.Provider) *HealthService {
	return &HealthService{Repo: repo, Embedder: embedder, queueDepths: map[string]int{}}
}

// SetWatcherHealth records the watcher's current liveness. The server calls
// it while starting its watchers.
func (h *HealthService) SetWatcherHealth(ok bool, errMsg string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.watcherOK = ok
	h.watcherErr = errMsg
}

// SetQueueDepth records one named queue's current depth (event queue, embed
// queue) for health reporting.
func (h *HealthService) SetQueueDepth(name string, depth int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.queueDepths[name] = depth
}

// ComponentStatus is one dependency's reported health.
type ComponentStatus struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Check probes every dependency and returns a component-keyed health report
// plus the overall status: "healthy" if every component is ok, "degraded"
// otherwise. Health reporting never hard-fails: the report must stay
// available even when a backend is down.
func (h *HealthService) Check(ctx context.Context) (overall string, components map[string]ComponentStatus) {
	components = map[string]ComponentStatus{}
	healthy := true

	if err := h.Repo.Health(ctx); err != nil {
		components["repository"] = ComponentStatus{Status: "down", Detail: err.Error()}
		healthy = false
	} else {
		components["repository"] = ComponentStatus{Status: "ok"}
	}

	if h.Embedder.Available(ctx) {
		components["embedder"] = ComponentStatus{Status: "ok"}
	} else {
		components["embedder"] = ComponentStatus{Status: "degraded", Detail: "falling back to hash projection"}
		healthy = false
	}

	h.mu.RLock()
	watcherOK, watcherErr := h.watcherOK, h.watcherErr
	h.mu.RUnlock()

	if h.Progress != nil {
		if cp := h.Progress(); cp.Stage != "" {
			components["indexer"] = ComponentStatus{
				Status: "ok",
				Detail: fmt.Sprintf("%s %d/%d", cp.Stage, cp.Completed, cp.Total),
			}
		}
	}

	if watcherOK {
		components["watcher"] = ComponentStatus{Status: "ok"}
	} else {
		status := ComponentStatus{Status: "down"}
		if watcherErr != "" {
			status.Detail = watcherErr
		}
		components["watcher"] = status
		healthy = false
	}

	if healthy {
		return "healthy", components
	}
	return "degraded", components
}

// QueueDepths returns a snapshot of the currently tracked queue depths.
func (h *HealthService) QueueDepths() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]int, len(h.queueDepths))
	for k, v := range h.queueDepths {
		out[k] = v
	}
	return out
}
