package pipeline

import (
	"github.com/docsearch/docsearch/internal/core"
	"github.com/docsearch/docsearch/internal/vector"
)

const (
	// The repository is asked for k*overfetch candidates so post-filtering
	// and ranking have room to work before truncating back to the
	// originally requested k.
	DefaultOverfetch = 5
	MaxOverfetchK    = 100
)

// DocumentTitles resolves a document id to its indexed metadata, so the
// search pipeline can populate SearchResultItem.DocumentTitle without a
// second repository round-trip. internal/indexer.DocumentStore satisfies
// this by method shape.
type DocumentTitles interface {
	Get(documentID string) (core.Document, bool)
}

// VectorSearchStep calls the repository for the query vector's nearest
// neighbors, applying the filter translated from the search query.
type VectorSearchStep struct {
	Repo   vector.Repository
	Titles DocumentTitles
}

func (VectorSearchStep) Name() string { return "vector_search" }

func (s VectorSearchStep) Run(sc *Context) error {
	k := sc.Query.Limit
	overfetch := k * DefaultOverfetch
	if overfetch > MaxOverfetchK {
		overfetch = MaxOverfetchK
	}
	if overfetch < k {
		overfetch = k
	}

	filter := filterFromQuery(sc.Query)
	matches, err := s.Repo.Search(sc.Ctx, sc.Query.CollectionID, sc.QueryVector, overfetch, filter)
	if err != nil {
		return err
	}

	raw := make([]RawMatch, 0, len(matches))
	for _, m := range matches {
		title := ""
		if s.Titles != nil {
			if doc, ok := s.Titles.Get(m.Point.DocumentID); ok {
				title = doc.Title
			}
		}
		raw = append(raw, RawMatch{
			Chunk: core.Chunk{
				ID:          m.Point.ChunkID,
				DocumentID:  m.Point.DocumentID,
				Index:       m.Point.ChunkIndex,
				Total:       m.Point.ChunkTotal,
				Type:        m.Point.ChunkType,
				Content:     m.Point.Content,
				StartOffset: m.Point.StartOffset,
				EndOffset:   m.Point.EndOffset,
				Headings:    m.Point.Headings,
				ContentHash: m.Point.ContentHash,
			},
			DocumentID: m.Point.DocumentID,
			Path:       m.Point.Path,
			Title:      title,
			Cosine:     float64(m.Score),
		})
	}
	sc.Raw = raw
	return nil
}

func filterFromQuery(q core.SearchQuery) vector.Filter {
	f := vector.Filter{CollectionID: q.CollectionID}
	if q.Filters == nil {
		return f
	}
	f.DocumentID = q.Filters["document_id"]
	f.PathPrefix = q.Filters["path_prefix"]
	return f
}
