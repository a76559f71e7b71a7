package vector

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/coder/hnsw"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/docsearch/docsearch/internal/core"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"
)

// annThreshold is the point count above which a collection gets an HNSW
// index instead of a full scan. Below it, brute-force cosine over a packed
// float32 scan is fast enough and exact.
const annThreshold = 100_000

// DefaultCollectionName is the collection legacy (pre-collection-tagging)
// points are interpreted as belonging to.
const DefaultCollectionName = "default"

// EmbeddedConfig configures the single-process, single-writer SQLite backend.
type EmbeddedConfig struct {
	Path                string
	CacheSize           int
	HNSWM               int
	HNSWEfSearch        int
	DefaultCollectionID string
}

// DefaultEmbeddedConfig returns the defaults used when a config omits the
// embedded-backend tuning knobs.
func DefaultEmbeddedConfig(path string) EmbeddedConfig {
	return EmbeddedConfig{
		Path:                path,
		CacheSize:           10_000,
		HNSWM:               32,
		HNSWEfSearch:        64,
		DefaultCollectionID: DefaultCollectionName,
	}
}

// EmbeddedRepository is the Repository backed by a local SQLite database.
// Writes go through a cross-process flock so a CLI `index` run and a
// long-lived `server` process never corrupt each other's data; reads use an
// in-process LRU to avoid re-deserializing hot vectors.
type EmbeddedRepository struct {
	cfg  EmbeddedConfig
	db   *sql.DB
	lock *flock.Flock

	mu    sync.RWMutex
	cache *lru.Cache[string, Point]

	annMu sync.Mutex
	ann   map[string]*annIndex // collection id -> index, built lazily past annThreshold
}

// annIndex pairs an HNSW graph with the point data needed to turn a graph
// hit back into a Match; the graph only stores keys and vectors.
type annIndex struct {
	graph *hnsw.Graph[string]
	byID  map[string]Point
}

var _ Repository = (*EmbeddedRepository)(nil)

// NewEmbeddedRepository opens (creating if needed) the SQLite database at
// cfg.Path and prepares its schema.
func NewEmbeddedRepository(cfg EmbeddedConfig) (*EmbeddedRepository, error) {
	if cfg.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, core.Internal("create embedded store directory", err)
		}
	}
	dsn := cfg.Path
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := sql.Open("sqlite", dsn+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, core.DependencyUnavailable("open embedded vector store", err)
	}
	if err := migrateEmbeddedSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	cacheSize := cfg.CacheSize
	if cacheSize <= 0 {
		cacheSize = 10_000
	}
	if cfg.HNSWM <= 0 {
		cfg.HNSWM = 32
	}
	if cfg.HNSWEfSearch <= 0 {
		cfg.HNSWEfSearch = 64
	}
	if cfg.DefaultCollectionID == "" {
		cfg.DefaultCollectionID = DefaultCollectionName
	}
	cache, _ := lru.New[string, Point](cacheSize)

	var fl *flock.Flock
	if cfg.Path != "" {
		fl = flock.New(cfg.Path + ".lock")
	}

	return &EmbeddedRepository{
		cfg:   cfg,
		db:    db,
		lock:  fl,
		cache: cache,
		ann:   make(map[string]*annIndex),
	}, nil
}

func migrateEmbeddedSchema(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS collections (
	id TEXT PRIMARY KEY,
	dimension INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS points (
	chunk_id TEXT PRIMARY KEY,
	collection_id TEXT NOT NULL,
	document_id TEXT NOT NULL,
	path TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	vector BLOB NOT NULL,
	metadata TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_points_collection ON points(collection_id);
CREATE INDEX IF NOT EXISTS idx_points_document ON points(collection_id, document_id);
`
	if _, err := db.Exec(schema); err != nil {
		return core.Internal("migrate embedded vector store schema", err)
	}
	return nil
}

// packVector stores a 4-byte little-endian dimension prefix followed by the
// float32 values, so a point's dimension is self-describing on disk.
func packVector(v []float32) []byte {
	buf := make([]byte, 4+4*len(v))
	binary.LittleEndian.PutUint32(buf[:4], uint32(len(v)))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4+4*i:8+4*i], math.Float32bits(f))
	}
	return buf
}

func unpackVector(buf []byte) []float32 {
	if len(buf) < 4 {
		return nil
	}
	dim := int(binary.LittleEndian.Uint32(buf[:4]))
	v := make([]float32, dim)
	for i := 0; i < dim; i++ {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4+4*i : 8+4*i]))
	}
	return v
}

func (r *EmbeddedRepository) withWriteLock(ctx context.Context, fn func() error) error {
	if r.lock == nil {
		return fn()
	}
	if err := r.lock.Lock(); err != nil {
		return core.DependencyUnavailable("acquire embedded store write lock", err)
	}
	defer r.lock.Unlock()
	return fn()
}

// CreateCollection is idempotent: re-declaring an existing id with the
// same dimension is a no-op, while a different dimension is a Conflict.
func (r *EmbeddedRepository) CreateCollection(ctx context.Context, id string, dimension int) error {
	return r.withWriteLock(ctx, func() error {
		var existing int
		err := r.db.QueryRowContext(ctx, `SELECT dimension FROM collections WHERE id = ?`, id).Scan(&existing)
		switch {
		case err == nil:
			if existing != dimension {
				return core.Conflict("collection", fmt.Sprintf("collection %s exists with dimension %d, requested %d", id, existing, dimension))
			}
			return nil
		case err != sql.ErrNoRows:
			return core.Internal("look up collection", err)
		}

		if _, err := r.db.ExecContext(ctx,
			`INSERT INTO collections(id, dimension, created_at) VALUES(?, ?, ?)`,
			id, dimension, time.Now().Unix()); err != nil {
			return core.Internal("create collection", err)
		}
		return nil
	})
}

func (r *EmbeddedRepository) DropCollection(ctx context.Context, id string) error {
	return r.withWriteLock(ctx, func() error {
		if _, err := r.db.ExecContext(ctx, `DELETE FROM points WHERE collection_id = ?`, id); err != nil {
			return core.Internal("drop collection points", err)
		}
		if _, err := r.db.ExecContext(ctx, `DELETE FROM collections WHERE id = ?`, id); err != nil {
			return core.Internal("drop collection", err)
		}
		r.annMu.Lock()
		delete(r.ann, id)
		r.annMu.Unlock()
		return nil
	})
}

func (r *EmbeddedRepository) ListCollections(ctx context.Context) ([]CollectionInfo, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.id, c.dimension, c.created_at, COUNT(p.chunk_id)
		FROM collections c LEFT JOIN points p ON p.collection_id = c.id
		GROUP BY c.id`)
	if err != nil {
		return nil, core.Internal("list collections", err)
	}
	defer rows.Close()

	var out []CollectionInfo
	for rows.Next() {
		var ci CollectionInfo
		var createdUnix int64
		if err := rows.Scan(&ci.ID, &ci.Dimension, &createdUnix, &ci.PointCount); err != nil {
			return nil, core.Internal("scan collection row", err)
		}
		ci.CreatedAt = time.Unix(createdUnix, 0).UTC()
		out = append(out, ci)
	}
	return out, rows.Err()
}

func (r *EmbeddedRepository) Upsert(ctx context.Context, points []Point) error {
	return r.withWriteLock(ctx, func() error {
		tx, err := r.db.BeginTx(ctx, nil)
		if err != nil {
			return core.Internal("begin upsert transaction", err)
		}
		defer tx.Rollback()

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO points(chunk_id, collection_id, document_id, path, content_hash, vector, metadata)
			VALUES(?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(chunk_id) DO UPDATE SET
				document_id=excluded.document_id, path=excluded.path,
				content_hash=excluded.content_hash, vector=excluded.vector,
				metadata=excluded.metadata`)
		if err != nil {
			return core.Internal("prepare upsert statement", err)
		}
		defer stmt.Close()

		dims := make(map[string]int)
		for _, p := range points {
			if want, ok := dims[p.CollectionID]; !ok {
				var d int
				if err := tx.QueryRowContext(ctx, `SELECT dimension FROM collections WHERE id = ?`, p.CollectionID).Scan(&d); err == nil {
					dims[p.CollectionID] = d
					if len(p.Vector) != d {
						return core.Conflict("collection", ErrDimensionMismatch{Expected: d, Got: len(p.Vector)}.Error())
					}
				} else {
					dims[p.CollectionID] = len(p.Vector)
				}
			} else if len(p.Vector) != want {
				return core.Conflict("collection", ErrDimensionMismatch{Expected: want, Got: len(p.Vector)}.Error())
			}
			if _, err := stmt.ExecContext(ctx, p.ChunkID, p.CollectionID, p.DocumentID, p.Path, p.ContentHash, packVector(p.Vector), marshalMetadata(p)); err != nil {
				return core.Internal("upsert point", err)
			}
		}
		if err := tx.Commit(); err != nil {
			return core.Internal("commit upsert transaction", err)
		}

		r.mu.Lock()
		for _, p := range points {
			r.cache.Add(p.ChunkID, p)
		}
		r.mu.Unlock()

		r.invalidateANN(points)
		return nil
	})
}

func (r *EmbeddedRepository) invalidateANN(points []Point) {
	r.annMu.Lock()
	defer r.annMu.Unlock()
	seen := make(map[string]struct{})
	for _, p := range points {
		if _, ok := seen[p.CollectionID]; ok {
			continue
		}
		seen[p.CollectionID] = struct{}{}
		delete(r.ann, p.CollectionID)
	}
}

// DeleteByDocument removes every chunk belonging to documentID within
// collectionID, under the store's write lock. Legacy (untagged) rows are
// swept up alongside
// it when, and only when, collectionID is the configured default — the same
// rule MatchesCollection applies on read.
func (r *EmbeddedRepository) DeleteByDocument(ctx context.Context, collectionID, documentID string) error {
	return r.withWriteLock(ctx, func() error {
		rows, err := r.db.QueryContext(ctx, `SELECT chunk_id, collection_id FROM points WHERE document_id = ? AND (collection_id = ? OR collection_id = '')`, documentID, collectionID)
		if err != nil {
			return core.Internal("select points for delete", err)
		}
		var ids []string
		legacyTouched := false
		for rows.Next() {
			var id, collID string
			if err := rows.Scan(&id, &collID); err != nil {
				rows.Close()
				return core.Internal("scan chunk id", err)
			}
			if collID == "" {
				if !MatchesCollection(Point{}, collectionID, r.cfg.DefaultCollectionID) {
					continue
				}
				legacyTouched = true
			}
			ids = append(ids, id)
		}
		rows.Close()

		if _, err := r.db.ExecContext(ctx, `DELETE FROM points WHERE document_id = ? AND collection_id = ?`, documentID, collectionID); err != nil {
			return core.Internal("delete points by document", err)
		}
		if legacyTouched {
			if _, err := r.db.ExecContext(ctx, `DELETE FROM points WHERE document_id = ? AND collection_id = ''`, documentID); err != nil {
				return core.Internal("delete legacy points by document", err)
			}
		}

		r.mu.Lock()
		for _, id := range ids {
			r.cache.Remove(id)
		}
		r.mu.Unlock()

		r.annMu.Lock()
		delete(r.ann, collectionID)
		if legacyTouched {
			delete(r.ann, "")
		}
		r.annMu.Unlock()
		return nil
	})
}

// Search scans the collection for its k nearest neighbors to query. Past
// annThreshold points it builds (and reuses, until the next write) an HNSW
// graph instead of a linear scan.
func (r *EmbeddedRepository) Search(ctx context.Context, collectionID string, query []float32, k int, filter Filter) ([]Match, error) {
	points, err := r.loadCollectionPoints(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	points = applyFilter(points, filter)
	points = filterLegacyCollection(points, collectionID, r.cfg.DefaultCollectionID)

	if len(points) > annThreshold {
		return r.searchANN(collectionID, points, query, k)
	}
	return bruteForceSearch(points, query, k), nil
}

func bruteForceSearch(points []Point, query []float32, k int) []Match {
	matches := make([]Match, 0, len(points))
	for _, p := range points {
		cos := cosineSimilarity(query, p.Vector)
		matches = append(matches, Match{Point: p, Score: core.NewScore(scoreFromCosine(cos))})
	}
	sortMatchesDescending(matches)
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches
}

func sortMatchesDescending(matches []Match) {
	for i := 1; i < len(matches); i++ {
		for j := i; j > 0 && matches[j].Score > matches[j-1].Score; j-- {
			matches[j], matches[j-1] = matches[j-1], matches[j]
		}
	}
}

func (r *EmbeddedRepository) searchANN(collectionID string, points []Point, query []float32, k int) ([]Match, error) {
	r.annMu.Lock()
	idx, ok := r.ann[collectionID]
	if !ok {
		g := hnsw.NewGraph[string]()
		g.Distance = hnsw.CosineDistance
		g.M = r.cfg.HNSWM
		g.EfSearch = r.cfg.HNSWEfSearch
		idx = &annIndex{graph: g, byID: make(map[string]Point, len(points))}
		for _, p := range points {
			idx.byID[p.ChunkID] = p
			idx.graph.Add(hnsw.MakeNode(p.ChunkID, p.Vector))
		}
		r.ann[collectionID] = idx
	}
	r.annMu.Unlock()

	results := idx.graph.Search(query, k)
	matches := make([]Match, 0, len(results))
	for _, res := range results {
		p, ok := idx.byID[res.Key]
		if !ok {
			continue
		}
		cos := cosineSimilarity(query, p.Vector)
		matches = append(matches, Match{Point: p, Score: core.NewScore(scoreFromCosine(cos))})
	}
	sortMatchesDescending(matches)
	return matches, nil
}

// loadCollectionPoints fetches every point tagged with collectionID plus
// every legacy point (no collection tag at all); filterLegacyCollection
// then applies the backward-compat rule to the legacy rows.
func (r *EmbeddedRepository) loadCollectionPoints(ctx context.Context, collectionID string) ([]Point, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT chunk_id, collection_id, document_id, path, content_hash, vector, metadata FROM points WHERE collection_id = ? OR collection_id = ''`, collectionID)
	if err != nil {
		return nil, core.Internal("load collection points", err)
	}
	defer rows.Close()

	var out []Point
	for rows.Next() {
		var p Point
		var vec []byte
		var metadata string
		if err := rows.Scan(&p.ChunkID, &p.CollectionID, &p.DocumentID, &p.Path, &p.ContentHash, &vec, &metadata); err != nil {
			return nil, core.Internal("scan point row", err)
		}
		// The LRU spares re-deserializing hot vectors: a cached point with
		// a matching content hash skips the unpack and metadata decode.
		r.mu.RLock()
		cached, hit := r.cache.Get(p.ChunkID)
		r.mu.RUnlock()
		if hit && cached.ContentHash == p.ContentHash {
			out = append(out, cached)
			continue
		}
		p.Vector = unpackVector(vec)
		unmarshalMetadataInto(&p, metadata)
		r.mu.Lock()
		r.cache.Add(p.ChunkID, p)
		r.mu.Unlock()
		out = append(out, p)
	}
	return out, rows.Err()
}

func applyFilter(points []Point, f Filter) []Point {
	if f.DocumentID == "" && f.PathPrefix == "" {
		return points
	}
	out := points[:0:0]
	for _, p := range points {
		if f.DocumentID != "" && p.DocumentID != f.DocumentID {
			continue
		}
		if f.PathPrefix != "" && !hasPrefix(p.Path, f.PathPrefix) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// filterLegacyCollection drops legacy (untagged) points that do not match
// the requested collection under the backward-compatibility rule. Points
// already tagged with collectionID pass straight through; loadCollectionPoints
// never fetches points tagged with a *different* collection in the first
// place, so this only needs to adjudicate the untagged rows.
func filterLegacyCollection(points []Point, collectionID, defaultCollectionID string) []Point {
	out := points[:0:0]
	for _, p := range points {
		if p.CollectionID == "" && !MatchesCollection(p, collectionID, defaultCollectionID) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func (r *EmbeddedRepository) ListDocuments(ctx context.Context, collectionID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT document_id, collection_id FROM points WHERE collection_id = ? OR collection_id = ''`, collectionID)
	if err != nil {
		return nil, core.Internal("list documents", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id, collID string
		if err := rows.Scan(&id, &collID); err != nil {
			return nil, core.Internal("scan document id", err)
		}
		if collID == "" && !MatchesCollection(Point{}, collectionID, r.cfg.DefaultCollectionID) {
			continue
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// GetDocumentChunks returns documentID's points within collectionID, sorted
// by ChunkIndex, applying the same legacy-record collection matching as
// Search and ListDocuments.
func (r *EmbeddedRepository) GetDocumentChunks(ctx context.Context, collectionID, documentID string) ([]Point, error) {
	points, err := r.loadCollectionPoints(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	points = filterLegacyCollection(points, collectionID, r.cfg.DefaultCollectionID)
	points = applyFilter(points, Filter{DocumentID: documentID})
	sort.Slice(points, func(i, j int) bool { return points[i].ChunkIndex < points[j].ChunkIndex })
	return points, nil
}

func (r *EmbeddedRepository) Health(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return core.DependencyUnavailable("embedded vector store unreachable", err)
	}
	return nil
}

func (r *EmbeddedRepository) Close() error {
	return r.db.Close()
}
