// Package jsonrpc implements the JSON-RPC dispatcher: single requests and
// batch arrays, dispatched to the same application services the REST
// router calls, over two framings (stdio line-delimited and HTTP POST).
package jsonrpc

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/docsearch/docsearch/internal/core"
)

// Standard JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Request is one JSON-RPC 2.0 call.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Error is a JSON-RPC 2.0 error object. Data carries retry_after_ms for
// KindRateLimited failures.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Response is one JSON-RPC 2.0 reply. Result and Error are mutually exclusive.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

func errorResponse(id json.RawMessage, code int, msg string, data interface{}) Response {
	return Response{JSONRPC: "2.0", ID: id, Error: &Error{Code: code, Message: msg, Data: data}}
}

func successResponse(id json.RawMessage, result interface{}) Response {
	return Response{JSONRPC: "2.0", ID: id, Result: result}
}

// MethodHandler serves one JSON-RPC method's params, returning the result
// value to encode or an error to map via mapError.
type MethodHandler func(ctx context.Context, params json.RawMessage) (interface{}, error)

// Dispatcher routes JSON-RPC requests to registered method handlers and
// serves both the stdio and HTTP POST framings. Handlers are registered
// once at container build time and never mutated afterward.
type Dispatcher struct {
	handlers map[string]MethodHandler
	logger   *slog.Logger
}

// NewDispatcher builds an empty Dispatcher; call Handle for every method
// name in internal/contracts before serving requests.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{handlers: make(map[string]MethodHandler), logger: logger}
}

// Handle registers a method handler. Re-registering a name overwrites the
// previous handler, so callers should register each contracts.Method*
// constant exactly once.
func (d *Dispatcher) Handle(method string, h MethodHandler) {
	d.handlers[method] = h
}

// Dispatch serves one decoded request, never panicking: a handler panic is
// recovered and converted to CodeInternalError.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("jsonrpc handler panic", "method", req.Method, "panic", r)
			resp = errorResponse(req.ID, CodeInternalError, "internal error", nil)
		}
	}()

	if req.JSONRPC != "" && req.JSONRPC != "2.0" {
		return errorResponse(req.ID, CodeInvalidRequest, "unsupported jsonrpc version", nil)
	}
	if req.Method == "" {
		return errorResponse(req.ID, CodeInvalidRequest, "method is required", nil)
	}

	h, ok := d.handlers[req.Method]
	if !ok {
		return errorResponse(req.ID, CodeMethodNotFound, "method not found: "+req.Method, nil)
	}

	result, err := h(ctx, req.Params)
	if err != nil {
		return errorResponse(req.ID, mapErrorCode(err), errorMessage(err), errorData(err))
	}
	return successResponse(req.ID, result)
}

// DispatchRaw decodes raw JSON as either a single Request or a batch array
// and dispatches each. The returned value is either a single Response or a
// []Response, ready to be marshaled as the reply body. A malformed batch
// entry yields an ID-less CodeParseError/CodeInvalidRequest response in its
// slot rather than aborting the whole batch.
func (d *Dispatcher) DispatchRaw(ctx context.Context, raw json.RawMessage) interface{} {
	trimmed := trimLeadingSpace(raw)
	if len(trimmed) == 0 {
		return errorResponse(nil, CodeParseError, "empty request body", nil)
	}

	if trimmed[0] == '[' {
		var reqs []json.RawMessage
		if err := json.Unmarshal(trimmed, &reqs); err != nil {
			return errorResponse(nil, CodeParseError, "invalid batch request", nil)
		}
		if len(reqs) == 0 {
			return errorResponse(nil, CodeInvalidRequest, "empty batch", nil)
		}
		out := make([]Response, len(reqs))
		for i, one := range reqs {
			out[i] = d.dispatchOne(ctx, one)
		}
		return out
	}
	return d.dispatchOne(ctx, trimmed)
}

func (d *Dispatcher) dispatchOne(ctx context.Context, raw json.RawMessage) Response {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return errorResponse(nil, CodeParseError, "invalid request", nil)
	}
	return d.Dispatch(ctx, req)
}

func trimLeadingSpace(b []byte) []byte {
	i := 0
	for i < len(b) && (b[i] == ' ' || b[i] == '\t' || b[i] == '\n' || b[i] == '\r') {
		i++
	}
	return b[i:]
}

// mapErrorCode maps a core.Error's Kind to a JSON-RPC code per
// core.Kind.JSONRPCCode; non-core errors map to CodeInternalError.
func mapErrorCode(err error) int {
	if ce, ok := core.AsError(err); ok {
		return ce.Kind.JSONRPCCode()
	}
	return CodeInternalError
}

func errorMessage(err error) string {
	return err.Error()
}

func errorData(err error) interface{} {
	if ce, ok := core.AsError(err); ok && ce.Kind == core.KindRateLimited {
		return map[string]int64{"retry_after_ms": ce.RetryAfterMS}
	}
	return nil
}

// ServeStdio implements the line-delimited stdio framing for embedded use
// by an editor or tool host: one JSON object (or batch array) per line in,
// one JSON response (or batch array) per line out. It blocks until r is
// exhausted or ctx is cancelled.
func (d *Dispatcher) ServeStdio(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	enc := json.NewEncoder(w)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		line := scanner.Bytes()
		if len(trimLeadingSpace(line)) == 0 {
			continue
		}
		result := d.DispatchRaw(ctx, append([]byte(nil), line...))
		if err := enc.Encode(result); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// HTTPHandler returns the handler for the HTTP POST framing, served at
// the configured JSON-RPC path (config.ServerConfig's jsonrpc_path).
func (d *Dispatcher) HTTPHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, 16<<20))
		if err != nil {
			writeJSON(w, errorResponse(nil, CodeParseError, "failed to read request body", nil))
			return
		}
		result := d.DispatchRaw(r.Context(), body)
		writeJSON(w, result)
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
