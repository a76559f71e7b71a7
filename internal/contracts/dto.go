package contracts

// RankingSignals explains how a SearchResultItem's score was computed.
type RankingSignals struct {
	Cosine         float64 `json:"cosine"`
	IntentBoost    float64 `json:"intent_boost"`
	FilterMatch    float64 `json:"filter_match"`
	LexicalOverlap float64 `json:"lexical_overlap"`
}

// SearchResultItem is the wire shape of one ranked hit.
type SearchResultItem struct {
	ChunkID        string         `json:"chunk_id"`
	DocumentID     string         `json:"document_id"`
	DocumentTitle  string         `json:"document_title"`
	Score          float64        `json:"score"`
	Snippet        string         `json:"snippet,omitempty"`
	Breadcrumb     []string       `json:"breadcrumb"`
	SectionTag     string         `json:"section_tag,omitempty"`
	StartByte      int            `json:"start_byte"`
	EndByte        int            `json:"end_byte"`
	RankingSignals RankingSignals `json:"ranking_signals"`
}

// SearchFilters is the optional filter set a SearchRequest may carry.
type SearchFilters struct {
	PathPrefix   string `json:"path_prefix,omitempty"`
	DocumentID   string `json:"document_id,omitempty"`
	DocumentType string `json:"document_type,omitempty"`
}

// SearchRequest is the wire shape both REST's POST /api/search body and the
// JSON-RPC "search" method's params use.
type SearchRequest struct {
	Query           string         `json:"query"`
	Limit           int            `json:"limit,omitempty"`
	Collection      string         `json:"collection,omitempty"`
	Filters         *SearchFilters `json:"filters,omitempty"`
	IncludeSnippets bool           `json:"include_snippets,omitempty"`
	Highlight       bool           `json:"highlight,omitempty"`
}

// SearchMetadata reports the search pipeline's per-stage timings.
type SearchMetadata struct {
	EmbeddingTimeMS int64  `json:"embedding_time_ms"`
	SearchTimeMS    int64  `json:"search_time_ms"`
	TotalTimeMS     int64  `json:"total_time_ms"`
	ModelUsed       string `json:"model_used"`
}

// SearchResponse is the wire shape of a completed search.
type SearchResponse struct {
	RequestID      string             `json:"request_id"`
	Query          string             `json:"query"`
	TotalResults   int                `json:"total_results"`
	Results        []SearchResultItem `json:"results"`
	SearchMetadata SearchMetadata     `json:"search_metadata"`
}

// DocumentSummary is the per-document listing shape.
type DocumentSummary struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Path         string `json:"path"`
	DocumentType string `json:"document_type"`
	ChunkCount   int    `json:"chunk_count"`
	SizeBytes    int64  `json:"size_bytes"`
	UpdatedAt    string `json:"updated_at"`
}

// ChunkSummary is one chunk in a DocumentDetails' ordered chunk list.
type ChunkSummary struct {
	ChunkID    string   `json:"chunk_id"`
	Index      int      `json:"index"`
	Type       string   `json:"type"`
	StartByte  int      `json:"start_byte"`
	EndByte    int      `json:"end_byte"`
	Breadcrumb []string `json:"breadcrumb"`
	Content    string   `json:"content,omitempty"`
}

// DocumentDetails is GET /api/docs/{id}'s response shape.
type DocumentDetails struct {
	DocumentSummary
	Chunks []ChunkSummary `json:"chunks"`
}

// ListDocumentsResponse is GET /api/docs's response shape.
type ListDocumentsResponse struct {
	Documents []DocumentSummary `json:"documents"`
	Total     int               `json:"total"`
	Page      int               `json:"page"`
	PageSize  int               `json:"page_size"`
}

// CollectionInfo is the wire shape of one logical collection.
type CollectionInfo struct {
	Name      string `json:"name"`
	Dimension int    `json:"dimension"`
	Documents int    `json:"documents"`
	Chunks    int    `json:"chunks"`
	CreatedAt string `json:"created_at"`
}

// ListCollectionsResponse wraps a collections slice in an object envelope
// (never a bare array); the CLI decodes the same envelope.
type ListCollectionsResponse struct {
	Collections []CollectionInfo `json:"collections"`
}

// StatusResponse is GET /api/status's response shape.
type StatusResponse struct {
	Status        string              `json:"status"`
	Collection    StatusCollection    `json:"collection"`
	Configuration StatusConfiguration `json:"configuration"`
	Performance   StatusPerformance   `json:"performance"`
}

type StatusCollection struct {
	Name             string `json:"name"`
	Documents        int    `json:"documents"`
	Chunks           int    `json:"chunks"`
	VectorDimensions int    `json:"vector_dimensions"`
	LastUpdated      string `json:"last_updated"`
}

type StatusConfiguration struct {
	EmbeddingModel string `json:"embedding_model"`
	VectorDatabase string `json:"vector_database"`
	CollectionName string `json:"collection_name"`
}

type StatusPerformance struct {
	AvgSearchTimeMS float64 `json:"avg_search_time_ms"`
	TotalSearches   int64   `json:"total_searches"`
	UptimeSeconds   float64 `json:"uptime_seconds"`
}

// HealthResponse is GET /api/health's response shape.
type HealthResponse struct {
	Status     string                 `json:"status"`
	Components map[string]interface{} `json:"components"`
}

// ReindexResponse is POST /api/reindex's response shape.
type ReindexResponse struct {
	Status             string  `json:"status"`
	ProcessedDocuments int     `json:"processed_documents"`
	TotalChunks        int     `json:"total_chunks"`
	DurationSeconds    float64 `json:"duration_seconds"`
}

// DeleteDocumentResponse is DELETE /api/docs/{id}'s response shape.
type DeleteDocumentResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// CreateCollectionRequest is the body of a collection-creation call.
type CreateCollectionRequest struct {
	Name      string `json:"name"`
	Dimension int    `json:"dimension"`
}

// ErrorResponse is the machine-readable error body both transports share.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Category     string `json:"category"`
	Message      string `json:"message"`
	Field        string `json:"field,omitempty"`
	Resource     string `json:"resource,omitempty"`
	RetryAfterMS int64  `json:"retry_after_ms,omitempty"`
}
