package transport

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/docsearch/docsearch/internal/app"
	"github.com/docsearch/docsearch/internal/contracts"
)

// Handlers implements one method per internal/contracts operation over an
// app.Container, shared verbatim by the REST router and the JSON-RPC
// dispatcher. Neither transport holds a reference to app.Container
// directly; both hold a *Handlers, so the container stays the single place
// where concretes are wired.
type Handlers struct {
	c *app.Container
}

// New builds Handlers over an already-assembled Container.
func New(c *app.Container) *Handlers {
	return &Handlers{c: c}
}

// Search runs req through the search pipeline and shapes the wire response
// for POST /api/search.
func (h *Handlers) Search(ctx context.Context, req contracts.SearchRequest) (contracts.SearchResponse, error) {
	results, durations, total, err := h.c.Search.Search(ctx, req.Query, req.Collection, req.Limit, toSearchFilters(req.Filters))
	if err != nil {
		return contracts.SearchResponse{}, err
	}

	items := make([]contracts.SearchResultItem, 0, len(results))
	for _, r := range results {
		items = append(items, toWireResultItem(r, req.IncludeSnippets))
	}

	return contracts.SearchResponse{
		RequestID:      uuid.NewString(),
		Query:          req.Query,
		TotalResults:   len(items),
		Results:        items,
		SearchMetadata: toDurationsMetadata(durations, total, h.c.Embedder.ModelID()),
	}, nil
}

// DocumentGet returns one document's metadata plus its ordered chunk list
// for GET /api/docs/{id}.
func (h *Handlers) DocumentGet(ctx context.Context, documentID string) (contracts.DocumentDetails, error) {
	doc, err := h.c.Indexing.GetDocument(documentID)
	if err != nil {
		return contracts.DocumentDetails{}, err
	}
	collection := doc.CollectionID
	if collection == "" {
		collection = h.c.Config.Search.CollectionName
	}
	points, err := h.c.Repo.GetDocumentChunks(ctx, collection, documentID)
	if err != nil {
		return contracts.DocumentDetails{}, err
	}
	chunks := make([]contracts.ChunkSummary, 0, len(points))
	for _, p := range points {
		chunks = append(chunks, toChunkSummary(p))
	}
	return contracts.DocumentDetails{
		DocumentSummary: toDocumentSummary(doc, len(points)),
		Chunks:          chunks,
	}, nil
}

// DocumentList returns a page of tracked documents for GET /api/docs.
func (h *Handlers) DocumentList(ctx context.Context, page, pageSize int) (contracts.ListDocumentsResponse, error) {
	docs, total, err := h.c.Indexing.ListDocuments(page, pageSize)
	if err != nil {
		return contracts.ListDocumentsResponse{}, err
	}
	summaries := make([]contracts.DocumentSummary, 0, len(docs))
	for _, d := range docs {
		collection := d.CollectionID
		if collection == "" {
			collection = h.c.Config.Search.CollectionName
		}
		points, err := h.c.Repo.GetDocumentChunks(ctx, collection, d.ID)
		chunkCount := 0
		if err == nil {
			chunkCount = len(points)
		}
		summaries = append(summaries, toDocumentSummary(d, chunkCount))
	}
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 50
	}
	return contracts.ListDocumentsResponse{
		Documents: summaries,
		Total:     total,
		Page:      page,
		PageSize:  pageSize,
	}, nil
}

// DocumentPurge tombstones a document for DELETE /api/docs/{id}.
func (h *Handlers) DocumentPurge(ctx context.Context, documentID string) (contracts.DeleteDocumentResponse, error) {
	if err := h.c.Indexing.DeleteDocument(ctx, documentID); err != nil {
		return contracts.DeleteDocumentResponse{}, err
	}
	return contracts.DeleteDocumentResponse{Status: "ok", Message: "document purged: " + documentID}, nil
}

// CollectionStats returns one collection's catalog entry for
// GET /api/collections/{name}.
func (h *Handlers) CollectionStats(ctx context.Context, name string) (contracts.CollectionInfo, error) {
	info, err := h.c.Search.GetCollection(ctx, name)
	if err != nil {
		return contracts.CollectionInfo{}, err
	}
	docCount := h.c.DocStore.Count(name)
	return toCollectionInfo(info, docCount), nil
}

// CollectionList returns every collection the repository holds, wrapped in
// the {collections:[...]} object envelope, never a bare array.
func (h *Handlers) CollectionList(ctx context.Context) (contracts.ListCollectionsResponse, error) {
	infos, err := h.c.Search.ListCollections(ctx)
	if err != nil {
		return contracts.ListCollectionsResponse{}, err
	}
	out := make([]contracts.CollectionInfo, 0, len(infos))
	for _, info := range infos {
		out = append(out, toCollectionInfo(info, h.c.DocStore.Count(info.ID)))
	}
	return contracts.ListCollectionsResponse{Collections: out}, nil
}

// CreateCollection provisions a new logical collection.
func (h *Handlers) CreateCollection(ctx context.Context, req contracts.CreateCollectionRequest) error {
	return h.c.Search.CreateCollection(ctx, req.Name, req.Dimension)
}

// HealthCheck aggregates dependency health for GET /api/health.
func (h *Handlers) HealthCheck(ctx context.Context) (contracts.HealthResponse, error) {
	overall, components := h.c.Health.Check(ctx)
	wire := make(map[string]interface{}, len(components)+1)
	for k, v := range components {
		wire[k] = v
	}
	wire["queue_depths"] = h.c.Health.QueueDepths()
	return contracts.HealthResponse{Status: overall, Components: wire}, nil
}

// Status reports the collection's size plus running counters for
// GET /api/status.
func (h *Handlers) Status(ctx context.Context) (contracts.StatusResponse, error) {
	docCount, chunkCount, uptime, avgMS, total, err := h.c.Indexing.Status(ctx)
	if err != nil {
		return contracts.StatusResponse{}, err
	}
	return contracts.StatusResponse{
		Status: "ok",
		Collection: contracts.StatusCollection{
			Name:             h.c.Config.Search.CollectionName,
			Documents:        docCount,
			Chunks:           chunkCount,
			VectorDimensions: h.c.Embedder.Dimensions(),
			LastUpdated:      time.Now().UTC().Format(time.RFC3339),
		},
		Configuration: contracts.StatusConfiguration{
			EmbeddingModel: h.c.Embedder.ModelID(),
			VectorDatabase: h.c.Config.Search.VectorBackend,
			CollectionName: h.c.Config.Search.CollectionName,
		},
		Performance: contracts.StatusPerformance{
			AvgSearchTimeMS: avgMS,
			TotalSearches:   total,
			UptimeSeconds:   uptime,
		},
	}, nil
}

// Reindex re-walks every configured root for POST /api/reindex; files with
// an unchanged content revision are skipped.
func (h *Handlers) Reindex(ctx context.Context) (contracts.ReindexResponse, error) {
	processed, chunks, elapsed, err := h.c.Indexing.Reindex(ctx)
	if err != nil {
		return contracts.ReindexResponse{}, err
	}
	return contracts.ReindexResponse{
		Status:             "ok",
		ProcessedDocuments: processed,
		TotalChunks:        chunks,
		DurationSeconds:    elapsed.Seconds(),
	}, nil
}
