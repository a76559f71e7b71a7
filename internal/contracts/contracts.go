// Package contracts holds every externally visible endpoint path,
// JSON-RPC method name, and wire DTO, defined once so the REST router, the
// JSON-RPC dispatcher, and the CLI client can never drift apart. Changing
// a path, method name, or DTO shape is a single edit here.
package contracts

// REST endpoint paths.
const (
	PathSearch           = "/api/search"
	PathStatus           = "/api/status"
	PathHealth           = "/api/health"
	PathDocs             = "/api/docs"
	PathDocByID          = "/api/docs/{id}"
	PathReindex          = "/api/reindex"
	PathCollections      = "/api/collections"
	PathCollectionByName = "/api/collections/{name}"
)

// JSON-RPC method names.
const (
	MethodSearch          = "search"
	MethodDocumentGet     = "document.get"
	MethodDocumentList    = "document.list"
	MethodDocumentPurge   = "document.purge"
	MethodCollectionStats = "collection.stats"
	MethodCollectionList  = "collection.list"
	MethodHealthCheck     = "health.check"
	MethodReindex         = "reindex"
)
