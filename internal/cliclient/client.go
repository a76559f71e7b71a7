// Package cliclient is the CLI's HTTP client for the REST API, built
// entirely against internal/contracts so the CLI and server can never
// drift on an endpoint path or wire shape.
package cliclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/docsearch/docsearch/internal/contracts"
)

// Client calls a running docsearch server's REST API.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// New builds a Client against baseURL (e.g. "http://127.0.0.1:8080"). The
// one 90s timeout applies to every call, bulk operations such as Reindex
// included.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 90 * time.Second},
	}
}

// Error wraps a non-2xx REST response's machine-readable body, carrying
// enough of the error-kind taxonomy for the CLI to choose an exit code
// (see cmd.ExitCodeFor) without re-parsing HTTP status codes itself.
type Error struct {
	StatusCode int
	Body       contracts.ErrorBody
}

func (e *Error) Error() string {
	if e.Body.Message != "" {
		return e.Body.Message
	}
	return fmt.Sprintf("server returned status %d", e.StatusCode)
}

// Category exposes the error category string (mirrors core.Kind) the
// server reported, for exit-code mapping.
func (e *Error) Category() string { return e.Body.Category }

func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return &Error{Body: contracts.ErrorBody{
			Category: "dependency_unavailable",
			Message:  fmt.Sprintf("contacting docsearch server at %s: %v", c.BaseURL, err),
		}}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}

	var errResp contracts.ErrorResponse
	_ = json.NewDecoder(resp.Body).Decode(&errResp)
	return &Error{StatusCode: resp.StatusCode, Body: errResp.Error}
}

// Search calls POST /api/search.
func (c *Client) Search(ctx context.Context, req contracts.SearchRequest) (contracts.SearchResponse, error) {
	var resp contracts.SearchResponse
	err := c.do(ctx, http.MethodPost, contracts.PathSearch, req, &resp)
	return resp, err
}

// Status calls GET /api/status.
func (c *Client) Status(ctx context.Context) (contracts.StatusResponse, error) {
	var resp contracts.StatusResponse
	err := c.do(ctx, http.MethodGet, contracts.PathStatus, nil, &resp)
	return resp, err
}

// Health calls GET /api/health.
func (c *Client) Health(ctx context.Context) (contracts.HealthResponse, error) {
	var resp contracts.HealthResponse
	err := c.do(ctx, http.MethodGet, contracts.PathHealth, nil, &resp)
	return resp, err
}

// ListDocuments calls GET /api/docs.
func (c *Client) ListDocuments(ctx context.Context, page, pageSize int) (contracts.ListDocumentsResponse, error) {
	var resp contracts.ListDocumentsResponse
	path := fmt.Sprintf("%s?page=%d&page_size=%d", contracts.PathDocs, page, pageSize)
	err := c.do(ctx, http.MethodGet, path, nil, &resp)
	return resp, err
}

// GetDocument calls GET /api/docs/{id}.
func (c *Client) GetDocument(ctx context.Context, id string) (contracts.DocumentDetails, error) {
	var resp contracts.DocumentDetails
	err := c.do(ctx, http.MethodGet, strings.Replace(contracts.PathDocByID, "{id}", id, 1), nil, &resp)
	return resp, err
}

// PurgeDocument calls DELETE /api/docs/{id}.
func (c *Client) PurgeDocument(ctx context.Context, id string) (contracts.DeleteDocumentResponse, error) {
	var resp contracts.DeleteDocumentResponse
	err := c.do(ctx, http.MethodDelete, strings.Replace(contracts.PathDocByID, "{id}", id, 1), nil, &resp)
	return resp, err
}

// Reindex calls POST /api/reindex.
func (c *Client) Reindex(ctx context.Context) (contracts.ReindexResponse, error) {
	var resp contracts.ReindexResponse
	err := c.do(ctx, http.MethodPost, contracts.PathReindex, nil, &resp)
	return resp, err
}

// ListCollections calls GET /api/collections, decoding the object envelope
// {collections:[...]}, never a bare array.
func (c *Client) ListCollections(ctx context.Context) (contracts.ListCollectionsResponse, error) {
	var resp contracts.ListCollectionsResponse
	err := c.do(ctx, http.MethodGet, contracts.PathCollections, nil, &resp)
	return resp, err
}

// GetCollection calls GET /api/collections/{name}.
func (c *Client) GetCollection(ctx context.Context, name string) (contracts.CollectionInfo, error) {
	var resp contracts.CollectionInfo
	err := c.do(ctx, http.MethodGet, strings.Replace(contracts.PathCollectionByName, "{name}", name, 1), nil, &resp)
	return resp, err
}

// CreateCollection calls POST /api/collections.
func (c *Client) CreateCollection(ctx context.Context, name string, dimension int) (contracts.CollectionInfo, error) {
	var resp contracts.CollectionInfo
	err := c.do(ctx, http.MethodPost, contracts.PathCollections, contracts.CreateCollectionRequest{Name: name, Dimension: dimension}, &resp)
	return resp, err
}
