package transport

import (
	"context"
	"encoding/json"

	"github.com/docsearch/docsearch/internal/contracts"
	"github.com/docsearch/docsearch/internal/core"
	"github.com/docsearch/docsearch/internal/transport/jsonrpc"
)

// RegisterRPC binds every internal/contracts JSON-RPC method name to its
// Handlers method on d. Both the stdio and HTTP framings share this one
// registration, so a method added here is available over both without
// transport-specific wiring.
func (h *Handlers) RegisterRPC(d *jsonrpc.Dispatcher) {
	d.Handle(contracts.MethodSearch, h.rpcSearch)
	d.Handle(contracts.MethodDocumentGet, h.rpcDocumentGet)
	d.Handle(contracts.MethodDocumentList, h.rpcDocumentList)
	d.Handle(contracts.MethodDocumentPurge, h.rpcDocumentPurge)
	d.Handle(contracts.MethodCollectionStats, h.rpcCollectionStats)
	d.Handle(contracts.MethodCollectionList, h.rpcCollectionList)
	d.Handle(contracts.MethodHealthCheck, h.rpcHealthCheck)
	d.Handle(contracts.MethodReindex, h.rpcReindex)
}

func (h *Handlers) rpcSearch(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var req contracts.SearchRequest
	if err := decodeParams(params, &req); err != nil {
		return nil, err
	}
	return h.Search(ctx, req)
}

type documentIDParams struct {
	DocumentID string `json:"document_id"`
	ID         string `json:"id"`
}

func (p documentIDParams) id() string {
	if p.DocumentID != "" {
		return p.DocumentID
	}
	return p.ID
}

func (h *Handlers) rpcDocumentGet(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p documentIDParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.id() == "" {
		return nil, core.Validation("document_id", "document_id is required")
	}
	return h.DocumentGet(ctx, p.id())
}

type listParams struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

func (h *Handlers) rpcDocumentList(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p listParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	return h.DocumentList(ctx, p.Page, p.PageSize)
}

func (h *Handlers) rpcDocumentPurge(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p documentIDParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.id() == "" {
		return nil, core.Validation("document_id", "document_id is required")
	}
	return h.DocumentPurge(ctx, p.id())
}

type collectionNameParams struct {
	Name string `json:"name"`
}

func (h *Handlers) rpcCollectionStats(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p collectionNameParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Name == "" {
		return nil, core.Validation("name", "name is required")
	}
	return h.CollectionStats(ctx, p.Name)
}

func (h *Handlers) rpcCollectionList(ctx context.Context, _ json.RawMessage) (interface{}, error) {
	return h.CollectionList(ctx)
}

func (h *Handlers) rpcHealthCheck(ctx context.Context, _ json.RawMessage) (interface{}, error) {
	return h.HealthCheck(ctx)
}

func (h *Handlers) rpcReindex(ctx context.Context, _ json.RawMessage) (interface{}, error) {
	return h.Reindex(ctx)
}

// decodeParams unmarshals raw JSON-RPC params into dst, treating an absent
// params member as a zero value rather than an error (several methods take
// no parameters).
func decodeParams(raw json.RawMessage, dst interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return core.Validation("params", "malformed params: "+err.Error())
	}
	return nil
}
