// Package lexical maintains the BM25 keyword index that backs the search
// pipeline's lexical ranking signal. It is a sidecar to the vector
// repository, not a source of truth: every chunk indexed here also lives
// as a vector point. Entries reach it only when the indexer embeds a
// document, so entries that are lost (a cleared index, a failed write) come
// back only when their document's content changes; a reindex skips
// unchanged documents and does not repopulate them.
package lexical

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"
)

// Entry is one chunk as the lexical index sees it.
type Entry struct {
	ChunkID string
	Content string
}

// indexedChunk is the document shape handed to bleve.
type indexedChunk struct {
	Content string `json:"content"`
}

// Index wraps a bleve index configured for English prose, scoring matches
// with BM25.
type Index struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

// New opens (creating if needed) the lexical index at path. An empty path
// builds an in-memory index. A corrupted on-disk index is cleared and
// recreated empty; nothing refills it from the vector store.
func New(path string) (*Index, error) {
	m := proseMapping()

	var idx bleve.Index
	var err error
	if path == "" {
		idx, err = bleve.NewMemOnly(m)
	} else {
		if mkErr := os.MkdirAll(filepath.Dir(path), 0o755); mkErr != nil {
			return nil, fmt.Errorf("create lexical index directory: %w", mkErr)
		}
		if verr := verifyIndexDir(path); verr != nil {
			slog.Warn("lexical index unreadable, clearing",
				slog.String("path", path), slog.String("error", verr.Error()))
			if rmErr := os.RemoveAll(path); rmErr != nil {
				return nil, fmt.Errorf("clear corrupted lexical index: %w", rmErr)
			}
		}
		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, m)
		} else if err != nil && looksCorrupted(err) {
			slog.Warn("lexical index failed to open, recreating",
				slog.String("path", path), slog.String("error", err.Error()))
			if rmErr := os.RemoveAll(path); rmErr != nil {
				return nil, fmt.Errorf("clear corrupted lexical index: %w", rmErr)
			}
			idx, err = bleve.New(path, m)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("open lexical index: %w", err)
	}

	return &Index{index: idx, path: path}, nil
}

// proseMapping indexes chunk content through bleve's English analyzer
// (unicode tokenizer, lowercasing, English stop words, stemming) — the
// right analysis chain for a documentation corpus, where identifier-aware
// code tokenization would only add noise.
func proseMapping() *mapping.IndexMappingImpl {
	content := bleve.NewTextFieldMapping()
	content.Analyzer = en.AnalyzerName

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("content", content)

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	m.DefaultAnalyzer = en.AnalyzerName
	return m
}

// verifyIndexDir sanity-checks an existing index directory before bleve
// opens it: a missing or unparseable index_meta.json means an interrupted
// write left the directory half-formed.
func verifyIndexDir(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	metaPath := filepath.Join(path, "index_meta.json")
	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("index_meta.json unreadable: %w", err)
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json corrupt: %w", err)
	}
	return nil
}

func looksCorrupted(err error) bool {
	if err == nil {
		return false
	}
	if err == bleve.ErrorIndexMetaCorrupt {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "unexpected end of JSON") ||
		strings.Contains(msg, "failed to load segment") ||
		strings.Contains(msg, "error opening bolt")
}

// IndexChunks adds or replaces entries, batched into one bleve commit.
func (x *Index) IndexChunks(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return fmt.Errorf("lexical index is closed")
	}

	batch := x.index.NewBatch()
	for _, e := range entries {
		if err := batch.Index(e.ChunkID, indexedChunk{Content: e.Content}); err != nil {
			return fmt.Errorf("index chunk %s: %w", e.ChunkID, err)
		}
	}
	if err := x.index.Batch(batch); err != nil {
		return fmt.Errorf("commit lexical batch: %w", err)
	}
	return nil
}

// DeleteChunks removes entries by chunk id, batched into one commit.
func (x *Index) DeleteChunks(ctx context.Context, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return fmt.Errorf("lexical index is closed")
	}

	batch := x.index.NewBatch()
	for _, id := range chunkIDs {
		batch.Delete(id)
	}
	if err := x.index.Batch(batch); err != nil {
		return fmt.Errorf("commit lexical delete: %w", err)
	}
	return nil
}

// Scores runs a BM25 match query and returns per-chunk scores normalized
// into (0, 1] by the top hit, so the ranker can blend them against cosine
// similarity without caring about BM25's unbounded scale. An empty or
// whitespace query returns no scores.
func (x *Index) Scores(ctx context.Context, query string, limit int) (map[string]float64, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.closed {
		return nil, fmt.Errorf("lexical index is closed")
	}
	if strings.TrimSpace(query) == "" {
		return map[string]float64{}, nil
	}
	if limit <= 0 {
		limit = 10
	}

	match := bleve.NewMatchQuery(query)
	match.SetField("content")
	req := bleve.NewSearchRequest(match)
	req.Size = limit

	res, err := x.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}

	scores := make(map[string]float64, len(res.Hits))
	if len(res.Hits) == 0 {
		return scores, nil
	}
	top := res.Hits[0].Score
	if top <= 0 {
		return scores, nil
	}
	for _, hit := range res.Hits {
		scores[hit.ID] = hit.Score / top
	}
	return scores, nil
}

// DocCount reports how many chunks the index holds.
func (x *Index) DocCount() uint64 {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.closed {
		return 0
	}
	n, _ := x.index.DocCount()
	return n
}

// Close releases the index. Safe to call more than once.
func (x *Index) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return nil
	}
	x.closed = true
	return x.index.Close()
}
