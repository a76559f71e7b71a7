package core

import (
	"strings"
	"time"
)

// Score is a similarity value constrained to [0, 1]. Constructors clamp
// rather than error, since callers compute it from cosine similarity and
// floating point drift can push a perfect match slightly above 1.
type Score float64

// NewScore clamps v into [0, 1].
func NewScore(v float64) Score {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return Score(v)
}

// Document is a single indexed file under a docs root.
type Document struct {
	ID           string
	Path         string
	Title        string
	CollectionID string
	ContentHash  string
	Language     string // "en" best-effort, unused for ranking today
	DocumentType string // "markdown" | "mdx" | "text"
	SizeBytes    int64
	ModifiedAt   time.Time
	IndexedAt    time.Time
}

// HeadingCrumb is one level of the heading breadcrumb a Chunk was cut from.
type HeadingCrumb struct {
	Level int
	Text  string
}

// ChunkType tags the structural element a Chunk was cut from, so the ranker
// can apply intent-aware boosts without re-parsing the text.
type ChunkType string

const (
	ChunkProse        ChunkType = "prose"
	ChunkCodeFence    ChunkType = "code_fence"
	ChunkTable        ChunkType = "table"
	ChunkList         ChunkType = "list"
	ChunkHeadingBlock ChunkType = "heading_block"
)

// Chunk is a contiguous byte range of a Document's content, the unit that
// gets embedded, stored, and returned from search.
type Chunk struct {
	ID          string // "<doc_id>:<5-digit-index>"
	DocumentID  string
	Index       int // zero-based, emission order
	Total       int // total chunks in the owning document, patched at end of document
	Type        ChunkType
	Content     string
	StartOffset int
	EndOffset   int
	Headings    []HeadingCrumb
	ContentHash string
}

// EmbeddingRecord pairs a chunk id with its vector and the model that produced it.
type EmbeddingRecord struct {
	ChunkID   string
	Vector    []float32
	ModelID   string
	Dimension int
}

// Collection groups documents under one vector namespace with a fixed embedding dimension.
type Collection struct {
	ID         string
	Name       string
	Dimension  int
	ModelID    string
	CreatedAt  time.Time
	DocCount   int
	ChunkCount int
}

const (
	maxQueryLength = 2000
)

// SearchQuery is the validated input to the search pipeline. Construct it
// with NewSearchQuery rather than the struct literal so invariants hold
// before the query ever reaches a pipeline step.
type SearchQuery struct {
	Text         string
	CollectionID string
	Limit        int
	Filters      map[string]string
}

// NewSearchQuery trims and validates raw query input, returning a
// KindValidation error for anything the pipeline cannot safely act on.
func NewSearchQuery(text, collectionID string, limit int, filters map[string]string) (SearchQuery, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return SearchQuery{}, Validation("text", "query text must not be empty")
	}
	if len(text) > maxQueryLength {
		return SearchQuery{}, Validation("text", "query text exceeds maximum length")
	}
	if collectionID = strings.TrimSpace(collectionID); collectionID == "" {
		return SearchQuery{}, Validation("collection_id", "collection id must not be empty")
	}
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	return SearchQuery{
		Text:         text,
		CollectionID: collectionID,
		Limit:        limit,
		Filters:      filters,
	}, nil
}

// RankingSignals breaks a SearchResultItem's Score down into the weighted
// components RankStep combined it from, so a caller can see why a result
// ranked where it did.
type RankingSignals struct {
	Cosine         float64
	IntentBoost    float64
	FilterMatch    float64
	LexicalOverlap float64
}

// SearchResultItem is one ranked hit returned from the search pipeline.
type SearchResultItem struct {
	Chunk         Chunk
	DocumentID    string
	DocumentTitle string
	Path          string
	Score         Score
	Signals       RankingSignals
	Highlights    []string
}
