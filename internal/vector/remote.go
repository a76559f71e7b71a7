package vector

import (
	"context"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/docsearch/docsearch/internal/core"
	"github.com/docsearch/docsearch/internal/retrybackoff"
)

// payloadOriginalIDField carries the original chunk id alongside the
// numeric point id qdrant actually indexes on, the same pattern used to
// round-trip string ids through a backend that only accepts uints or UUIDs.
const payloadOriginalIDField = "_chunk_id"

const (
	payloadDocumentIDField  = "_document_id"
	payloadPathField        = "_path"
	payloadContentHashField = "_content_hash"
	payloadMetadataField    = "_metadata"
)

// overfetchFactor is how much larger than k the remote query asks for when
// a Filter can't be pushed down as a server-side condition, so the
// client-side filter still has enough candidates to return k results.
const overfetchFactor = 4

// RemoteConfig configures the gRPC connection to a remote vector database.
type RemoteConfig struct {
	DSN         string
	RetryConfig retrybackoff.Config
	BreakerOpts []retrybackoff.Option
}

// RemoteRepository is the Repository backed by a remote vector database
// reachable over gRPC (Qdrant's wire protocol).
type RemoteRepository struct {
	client  *qdrant.Client
	retry   retrybackoff.Config
	breaker *retrybackoff.CircuitBreaker
}

var _ Repository = (*RemoteRepository)(nil)

// NewRemoteRepository parses dsn (host[:port] with an optional api_key
// query parameter, as supplied by the remote_url config key) and dials the
// vector database.
func NewRemoteRepository(cfg RemoteConfig) (*RemoteRepository, error) {
	dsn := cfg.DSN
	// A bare host:port has no scheme; url.Parse would misread the host as
	// one, so normalize it first.
	if !strings.Contains(dsn, "//") {
		dsn = "grpc://" + dsn
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, core.Validation("remote_url", "invalid remote vector backend URL: "+err.Error())
	}
	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := 6334
	if p := parsed.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return nil, core.Validation("remote_url", "invalid port in remote vector backend URL")
		}
	}

	// Backend versions legitimately differ from the client's pinned
	// protocol version; the compatibility probe is skipped rather than
	// letting a newer server refuse an older client.
	qcfg := &qdrant.Config{Host: host, Port: port, SkipCompatibilityCheck: true}
	if parsed.Scheme == "https" {
		qcfg.UseTLS = true
	}
	if apiKey := parsed.Query().Get("api_key"); apiKey != "" {
		qcfg.APIKey = apiKey
	}

	client, err := qdrant.NewClient(qcfg)
	if err != nil {
		return nil, core.DependencyUnavailable("connect to remote vector backend", err)
	}

	retry := cfg.RetryConfig
	if retry.MaxRetries == 0 && retry.InitialDelay == 0 {
		retry = retrybackoff.DefaultConfig()
	}

	return &RemoteRepository{
		client:  client,
		retry:   retry,
		breaker: retrybackoff.New("remote-vector-backend", cfg.BreakerOpts...),
	}, nil
}

func distanceMetric() qdrant.Distance { return qdrant.Distance_Cosine }

// classifyRemoteError maps a gRPC failure from the vector backend onto the
// error kinds the transports know how to surface: ResourceExhausted
// becomes RateLimited (the backend is throttling us), everything else that
// reaches here is the dependency being unavailable.
func classifyRemoteError(op string, err error) error {
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.ResourceExhausted:
			return core.RateLimited(op+": "+st.Message(), 1000)
		case codes.InvalidArgument:
			return core.Validation("request", op+": "+st.Message())
		case codes.NotFound:
			return core.NotFound("collection", op+": "+st.Message())
		}
	}
	return core.DependencyUnavailable(op, err)
}

// withRetry runs fn under the circuit breaker and retry budget. Validation,
// not-found, and conflict failures are never retried: they are answers, not
// outages, and retrying them would only burn the budget.
func (r *RemoteRepository) withRetry(ctx context.Context, fn func() error) error {
	var permanent error
	err := r.breaker.Execute(func() error {
		return retrybackoff.Retry(ctx, r.retry, func() error {
			err := fn()
			if err == nil {
				return nil
			}
			if ce, ok := core.AsError(err); ok {
				switch ce.Kind {
				case core.KindValidation, core.KindNotFound, core.KindConflict:
					permanent = err
					return nil
				}
			}
			return err
		})
	})
	if permanent != nil {
		return permanent
	}
	return err
}

func (r *RemoteRepository) CreateCollection(ctx context.Context, id string, dimension int) error {
	if dimension <= 0 {
		return core.Validation("dimension", "dimension must be positive")
	}
	return r.withRetry(ctx, func() error {
		exists, err := r.client.CollectionExists(ctx, id)
		if err != nil {
			return classifyRemoteError("check remote collection existence", err)
		}
		if exists {
			return nil
		}
		err = r.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: id,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dimension),
				Distance: distanceMetric(),
			}),
		})
		if err != nil {
			return classifyRemoteError("create remote collection", err)
		}
		return nil
	})
}

func (r *RemoteRepository) DropCollection(ctx context.Context, id string) error {
	return r.withRetry(ctx, func() error {
		if err := r.client.DeleteCollection(ctx, id); err != nil {
			return classifyRemoteError("drop remote collection", err)
		}
		return nil
	})
}

func (r *RemoteRepository) ListCollections(ctx context.Context) ([]CollectionInfo, error) {
	var out []CollectionInfo
	err := r.withRetry(ctx, func() error {
		names, err := r.client.ListCollections(ctx)
		if err != nil {
			return classifyRemoteError("list remote collections", err)
		}
		out = make([]CollectionInfo, 0, len(names))
		for _, name := range names {
			info, err := r.client.GetCollectionInfo(ctx, name)
			if err != nil {
				continue
			}
			out = append(out, CollectionInfo{
				ID:         name,
				PointCount: int(info.GetPointsCount()),
			})
		}
		return nil
	})
	return out, err
}

func (r *RemoteRepository) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	byCollection := make(map[string][]Point)
	for _, p := range points {
		byCollection[p.CollectionID] = append(byCollection[p.CollectionID], p)
	}
	for collectionID, group := range byCollection {
		qpoints := make([]*qdrant.PointStruct, 0, len(group))
		for _, p := range group {
			payload := map[string]any{
				payloadOriginalIDField:  p.ChunkID,
				payloadDocumentIDField:  p.DocumentID,
				payloadPathField:        p.Path,
				payloadContentHashField: p.ContentHash,
				payloadMetadataField:    marshalMetadata(p),
			}
			qpoints = append(qpoints, &qdrant.PointStruct{
				Id:      qdrant.NewIDNum(remotePointID(p.ChunkID)),
				Vectors: qdrant.NewVectorsDense(p.Vector),
				Payload: qdrant.NewValueMap(payload),
			})
		}
		err := r.withRetry(ctx, func() error {
			_, err := r.client.Upsert(ctx, &qdrant.UpsertPoints{
				CollectionName: collectionID,
				Points:         qpoints,
			})
			if err != nil {
				return classifyRemoteError("upsert remote points", err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *RemoteRepository) DeleteByDocument(ctx context.Context, collectionID, documentID string) error {
	return r.withRetry(ctx, func() error {
		_, err := r.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: collectionID,
			Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
				Must: []*qdrant.Condition{qdrant.NewMatch(payloadDocumentIDField, documentID)},
			}),
		})
		if err != nil {
			return classifyRemoteError("delete remote points by document", err)
		}
		return nil
	})
}

// Search pushes down DocumentID and CollectionID as server-side filter
// conditions (qdrant supports arbitrary payload matches), but falls back to
// client-side PathPrefix filtering with an overfetched limit, since prefix
// matching isn't expressible as an exact-match condition.
func (r *RemoteRepository) Search(ctx context.Context, collectionID string, query []float32, k int, filter Filter) ([]Match, error) {
	limit := uint64(k)
	needsClientFilter := filter.PathPrefix != ""
	if needsClientFilter {
		limit = uint64(k * overfetchFactor)
	}

	var qfilter *qdrant.Filter
	if filter.DocumentID != "" {
		qfilter = &qdrant.Filter{Must: []*qdrant.Condition{qdrant.NewMatch(payloadDocumentIDField, filter.DocumentID)}}
	}

	var hits []*qdrant.ScoredPoint
	err := r.withRetry(ctx, func() error {
		res, err := r.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: collectionID,
			Query:          qdrant.NewQueryDense(query),
			Limit:          &limit,
			Filter:         qfilter,
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return classifyRemoteError("remote vector search", err)
		}
		hits = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(hits))
	for _, hit := range hits {
		p := pointFromPayload(collectionID, hit.GetPayload())
		if needsClientFilter && !hasPrefix(p.Path, filter.PathPrefix) {
			continue
		}
		matches = append(matches, Match{Point: p, Score: core.NewScore(float64(hit.GetScore()))})
		if len(matches) >= k {
			break
		}
	}
	return matches, nil
}

func pointFromPayload(collectionID string, payload map[string]*qdrant.Value) Point {
	get := func(key string) string {
		if v, ok := payload[key]; ok {
			return v.GetStringValue()
		}
		return ""
	}
	p := Point{
		ChunkID:      get(payloadOriginalIDField),
		DocumentID:   get(payloadDocumentIDField),
		CollectionID: collectionID,
		Path:         get(payloadPathField),
		ContentHash:  get(payloadContentHashField),
	}
	unmarshalMetadataInto(&p, get(payloadMetadataField))
	return p
}

func (r *RemoteRepository) ListDocuments(ctx context.Context, collectionID string) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	var offset *qdrant.PointId
	pageLimit := uint32(256)
	for {
		var points []*qdrant.RetrievedPoint
		var next *qdrant.PointId
		err := r.withRetry(ctx, func() error {
			req := &qdrant.ScrollPoints{
				CollectionName: collectionID,
				WithPayload:    qdrant.NewWithPayload(true),
				Limit:          &pageLimit,
			}
			if offset != nil {
				req.Offset = offset
			}
			resp, err := r.client.Scroll(ctx, req)
			if err != nil {
				return classifyRemoteError("scroll remote collection", err)
			}
			points = resp
			if len(resp) == int(pageLimit) {
				next = resp[len(resp)-1].GetId()
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		if len(points) == 0 {
			break
		}
		for _, p := range points {
			docID := pointFromPayload(collectionID, p.GetPayload()).DocumentID
			if docID == "" {
				continue
			}
			if _, ok := seen[docID]; !ok {
				seen[docID] = struct{}{}
				out = append(out, docID)
			}
		}
		if next == nil {
			break
		}
		offset = next
	}
	return out, nil
}

// GetDocumentChunks scrolls the collection server-side filtered to
// documentID, since qdrant has no "get all points for this payload value"
// call beyond Scroll+filter, then sorts the result by ChunkIndex the way
// the embedded backend does.
func (r *RemoteRepository) GetDocumentChunks(ctx context.Context, collectionID, documentID string) ([]Point, error) {
	var out []Point
	var offset *qdrant.PointId
	pageLimit := uint32(256)
	qfilter := &qdrant.Filter{Must: []*qdrant.Condition{qdrant.NewMatch(payloadDocumentIDField, documentID)}}
	for {
		var points []*qdrant.RetrievedPoint
		var next *qdrant.PointId
		err := r.withRetry(ctx, func() error {
			req := &qdrant.ScrollPoints{
				CollectionName: collectionID,
				WithPayload:    qdrant.NewWithPayload(true),
				Filter:         qfilter,
				Limit:          &pageLimit,
			}
			if offset != nil {
				req.Offset = offset
			}
			resp, err := r.client.Scroll(ctx, req)
			if err != nil {
				return classifyRemoteError("scroll remote collection", err)
			}
			points = resp
			if len(resp) == int(pageLimit) {
				next = resp[len(resp)-1].GetId()
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		if len(points) == 0 {
			break
		}
		for _, p := range points {
			out = append(out, pointFromPayload(collectionID, p.GetPayload()))
		}
		if next == nil {
			break
		}
		offset = next
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkIndex < out[j].ChunkIndex })
	return out, nil
}

func (r *RemoteRepository) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := r.client.HealthCheck(ctx); err != nil {
		return core.DependencyUnavailable("remote vector backend health check failed", err)
	}
	return nil
}

func (r *RemoteRepository) Close() error {
	return r.client.Close()
}
