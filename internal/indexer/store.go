// Package indexer implements the document processor: it turns file-system
// events into chunk-embed-upsert work, tracks a per-document revision to
// skip unchanged files, and tombstones chunks on delete.
package indexer

import (
	"context"
	"sync"
	"time"

	"github.com/docsearch/docsearch/internal/core"
	"github.com/docsearch/docsearch/internal/vector"
)

// DocumentStore tracks the per-document revision record: a concurrent map
// keyed by document id, consulted to skip
// reprocessing unchanged files and to answer DocumentIndexingService's
// list/get/status queries without a repository round-trip. Rebuild
// repopulates it at startup from the document fields (title, size,
// revision) that every stored point carries in its payload.
type DocumentStore struct {
	mu   sync.RWMutex
	docs map[string]core.Document
}

// NewDocumentStore returns an empty store. Callers that need it populated
// from a restart should call Rebuild.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{docs: make(map[string]core.Document)}
}

// Get returns the stored document and whether it was found.
func (s *DocumentStore) Get(id string) (core.Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.docs[id]
	return d, ok
}

// Put inserts or replaces the stored document.
func (s *DocumentStore) Put(d core.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[d.ID] = d
}

// Delete removes the document record. Safe to call on an id that isn't present.
func (s *DocumentStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, id)
}

// List returns every stored document in a collection, ordered by path for
// stable pagination.
func (s *DocumentStore) List(collectionID string) []core.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Document, 0, len(s.docs))
	for _, d := range s.docs {
		if d.CollectionID == collectionID {
			out = append(out, d)
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Path < out[j-1].Path; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// Count returns the number of documents tracked for collectionID.
func (s *DocumentStore) Count(collectionID string) int {
	return len(s.List(collectionID))
}

// Rebuild repopulates the store from what the repository already holds, so
// a restarted process recovers its revision map (and with it unchanged-file
// skipping, GET /api/docs, and GET /api/docs/{id}) without re-reading a
// single source file. Every chunk carries its document's title, revision,
// and size in the payload; the first chunk of each document is enough.
func (s *DocumentStore) Rebuild(ctx context.Context, repo vector.Repository, collectionID string) error {
	docIDs, err := repo.ListDocuments(ctx, collectionID)
	if err != nil {
		return core.Wrap("list documents for rebuild", err)
	}

	now := time.Now()
	for _, docID := range docIDs {
		points, err := repo.GetDocumentChunks(ctx, collectionID, docID)
		if err != nil {
			return core.Wrap("load chunks for rebuild", err)
		}
		if len(points) == 0 {
			continue
		}
		first := points[0]
		s.Put(core.Document{
			ID:           docID,
			Path:         first.Path,
			Title:        first.DocTitle,
			CollectionID: collectionID,
			ContentHash:  first.DocRevision,
			DocumentType: documentType(first.Path),
			SizeBytes:    first.DocSizeBytes,
			IndexedAt:    now,
			ModifiedAt:   now,
		})
	}
	return nil
}

// Checkpoint is the in-memory progress marker of a bulk index_path run,
// reported through Indexer.Progress. It is not persisted, so a bulk run
// interrupted by a crash starts again from the first file.
type Checkpoint struct {
	Stage     string
	Total     int
	Completed int
	UpdatedAt time.Time
}
