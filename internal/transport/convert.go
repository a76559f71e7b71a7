// Package transport holds the handler layer both the REST router and the
// JSON-RPC dispatcher call into: one method per internal/contracts
// operation, translating between wire DTOs and the app.Container's
// services. Business logic stays in the services; a handler only decodes,
// dispatches, and encodes.
package transport

import (
	"strconv"
	"time"

	"github.com/docsearch/docsearch/internal/contracts"
	"github.com/docsearch/docsearch/internal/core"
	"github.com/docsearch/docsearch/internal/vector"
)

func toSearchFilters(f *contracts.SearchFilters) map[string]string {
	if f == nil {
		return nil
	}
	m := make(map[string]string, 3)
	if f.PathPrefix != "" {
		m["path_prefix"] = f.PathPrefix
	}
	if f.DocumentID != "" {
		m["document_id"] = f.DocumentID
	}
	if f.DocumentType != "" {
		m["document_type"] = f.DocumentType
	}
	return m
}

func toWireResultItem(it core.SearchResultItem, includeSnippets bool) contracts.SearchResultItem {
	breadcrumb := make([]string, 0, len(it.Chunk.Headings))
	for _, h := range it.Chunk.Headings {
		breadcrumb = append(breadcrumb, headingMarker(h.Level)+" "+h.Text)
	}
	item := contracts.SearchResultItem{
		ChunkID:       it.Chunk.ID,
		DocumentID:    it.DocumentID,
		DocumentTitle: it.DocumentTitle,
		Score:         float64(it.Score),
		Breadcrumb:    breadcrumb,
		SectionTag:    string(it.Chunk.Type),
		StartByte:     it.Chunk.StartOffset,
		EndByte:       it.Chunk.EndOffset,
		RankingSignals: contracts.RankingSignals{
			Cosine:         it.Signals.Cosine,
			IntentBoost:    it.Signals.IntentBoost,
			FilterMatch:    it.Signals.FilterMatch,
			LexicalOverlap: it.Signals.LexicalOverlap,
		},
	}
	if includeSnippets {
		item.Snippet = it.Chunk.Content
	}
	return item
}

func headingMarker(level int) string {
	if level <= 0 {
		level = 1
	}
	b := make([]byte, level)
	for i := range b {
		b[i] = '#'
	}
	return string(b)
}

func toDurationsMetadata(durations map[string]time.Duration, total time.Duration, modelUsed string) contracts.SearchMetadata {
	return contracts.SearchMetadata{
		EmbeddingTimeMS: durations["embed"].Milliseconds(),
		SearchTimeMS:    durations["vector_search"].Milliseconds(),
		TotalTimeMS:     total.Milliseconds(),
		ModelUsed:       modelUsed,
	}
}

func toDocumentSummary(d core.Document, chunkCount int) contracts.DocumentSummary {
	return contracts.DocumentSummary{
		ID:           d.ID,
		Title:        d.Title,
		Path:         d.Path,
		DocumentType: d.DocumentType,
		ChunkCount:   chunkCount,
		SizeBytes:    d.SizeBytes,
		UpdatedAt:    d.IndexedAt.UTC().Format(time.RFC3339),
	}
}

func toChunkSummary(p vector.Point) contracts.ChunkSummary {
	breadcrumb := make([]string, 0, len(p.Headings))
	for _, h := range p.Headings {
		breadcrumb = append(breadcrumb, headingMarker(h.Level)+" "+h.Text)
	}
	return contracts.ChunkSummary{
		ChunkID:    p.ChunkID,
		Index:      p.ChunkIndex,
		Type:       string(p.ChunkType),
		StartByte:  p.StartOffset,
		EndByte:    p.EndOffset,
		Breadcrumb: breadcrumb,
		Content:    p.Content,
	}
}

func toCollectionInfo(c vector.CollectionInfo, docCount int) contracts.CollectionInfo {
	return contracts.CollectionInfo{
		Name:      c.ID,
		Dimension: c.Dimension,
		Documents: docCount,
		Chunks:    c.PointCount,
		CreatedAt: c.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func parsePositiveInt(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
