// Package embed generates vector embeddings for chunk content: a local
// ONNX Runtime model by default, falling back to a deterministic hash
// projection when the model is unavailable or refuses an input.
package embed

import (
	"context"
	"math"
	"time"
)

const (
	MinBatchSize     = 1
	MaxBatchSize     = 256
	DefaultBatchSize = 32

	// DefaultTimeout is a per-call embedding timeout value. No provider in
	// this package applies it; an EmbedBatch call is bounded only by its
	// context.
	DefaultTimeout = 60 * time.Second

	DefaultMaxRetries = 3
)

// FallbackDimensions is the embedding dimension of the deterministic
// fallback provider. It is intentionally independent of any ONNX model's
// dimension; a collection created under the fallback is never silently
// compatible with one created under the real model (see ErrDimensionMismatch
// in internal/vector).
const FallbackDimensions = 256

// Provider generates vector embeddings for text. Implementations must be
// safe for concurrent use: the indexing pipeline embeds in parallel across
// worker goroutines.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	ModelID() string
	Available(ctx context.Context) bool
	Close() error
}

// normalizeVector L2-normalizes v in place semantics (returns a new slice),
// so cosine similarity in internal/vector reduces to a dot product.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}
	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
