// Package vector defines the vector repository trait used by the indexing
// and search pipelines, and its two backends: an embedded SQLite store and
// a remote vector database client.
package vector

import (
	"context"
	"fmt"
	"time"

	"github.com/docsearch/docsearch/internal/core"
)

// ErrDimensionMismatch is returned when a collection's configured dimension
// does not match the dimension of a vector being upserted or searched.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}

// Point is one embedded chunk vector plus the metadata needed to filter and
// to reconstruct a SearchResultItem without a second round-trip: the full
// chunk metadata rides along as the point payload.
type Point struct {
	ChunkID      string
	DocumentID   string
	CollectionID string
	Vector       []float32
	Path         string
	ContentHash  string

	Content     string
	ChunkType   core.ChunkType
	StartOffset int
	EndOffset   int
	ChunkIndex  int
	ChunkTotal  int
	Headings    []core.HeadingCrumb

	// Document-level payload, duplicated onto every chunk so the
	// per-document revision map can be rebuilt from repository payloads
	// alone after a restart.
	DocTitle     string
	DocRevision  string
	DocSizeBytes int64
}

// Match is one nearest-neighbor hit from Search, with similarity already
// converted to a core.Score.
type Match struct {
	Point Point
	Score core.Score
}

// Filter narrows Search to a subset of points. An empty
// Filter matches everything in the collection. CollectionID alone is always
// honored, even against data written before per-chunk filters existed.
type Filter struct {
	CollectionID string
	DocumentID   string
	PathPrefix   string
}

// CollectionInfo mirrors core.Collection but is the shape a Repository
// reports about what it physically holds, independent of any higher-level
// catalog.
type CollectionInfo struct {
	ID         string
	Dimension  int
	PointCount int
	CreatedAt  time.Time
}

// Repository is the trait both backends satisfy. Every method takes a
// context because both backends may cross a process boundary (gRPC, file
// lock acquisition).
type Repository interface {
	CreateCollection(ctx context.Context, id string, dimension int) error
	DropCollection(ctx context.Context, id string) error
	ListCollections(ctx context.Context) ([]CollectionInfo, error)

	Upsert(ctx context.Context, points []Point) error
	DeleteByDocument(ctx context.Context, collectionID, documentID string) error

	Search(ctx context.Context, collectionID string, query []float32, k int, filter Filter) ([]Match, error)
	ListDocuments(ctx context.Context, collectionID string) ([]string, error)

	// GetDocumentChunks returns every point belonging to documentID within
	// collectionID, ordered by ChunkIndex, for GET /api/docs/{id}'s ordered
	// chunk list.
	GetDocumentChunks(ctx context.Context, collectionID, documentID string) ([]Point, error)

	Health(ctx context.Context) error
	Close() error
}
