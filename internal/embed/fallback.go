package embed

import (
	"context"
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"
	"sync"
)

// FallbackProvider embeds text with signed feature hashing: every word and
// word-pair is hashed into a fixed-width vector with a +-1 sign derived
// from the same hash, then the vector is L2-normalized. It needs no model
// file and cannot reject an input, which is the whole point — when the
// ONNX session reports a missing required input (onnx.go's
// errMissingInput), ingestion and search keep working at reduced recall
// instead of stopping.
//
// The projection is a pure function of the input text and the dimension,
// so the same text always yields the same vector across runs.
type FallbackProvider struct {
	mu     sync.RWMutex
	closed bool
	dim    int
}

// Feature weights: single words carry most of the signal; adjacent-word
// pairs add enough order sensitivity that "install guide" and "guide
// install" stop colliding.
const (
	unigramWeight = 1.0
	bigramWeight  = 0.4
)

var tokenRegex = regexp.MustCompile(`[a-zA-Z0-9]+`)

// proseStopWords drops English function words so "the" and "of" don't
// dominate every document's projection. The list is deliberately short:
// over-filtering hurts short queries more than under-filtering hurts long
// documents.
var proseStopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"is": true, "are": true, "was": true, "were": true, "be": true, "been": true,
	"this": true, "that": true, "these": true, "those": true, "to": true, "of": true,
	"in": true, "on": true, "for": true, "with": true, "as": true, "by": true,
	"it": true, "its": true, "at": true, "from": true,
}

// NewFallbackProvider returns a provider at the package-default dimension,
// for the case where no ONNX session loaded at all and nothing has fixed
// the collection's vector width yet.
func NewFallbackProvider() *FallbackProvider {
	return NewFallbackProviderWithDimension(FallbackDimensions)
}

// NewFallbackProviderWithDimension projects into dim dimensions. Used when
// the fallback sits behind a loaded ONNX provider
// (NewFallbackAwareProvider), where a mid-batch fallback vector still has
// to satisfy the owning collection's fixed width.
func NewFallbackProviderWithDimension(dim int) *FallbackProvider {
	if dim <= 0 {
		dim = FallbackDimensions
	}
	return &FallbackProvider{dim: dim}
}

func (e *FallbackProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return make([]float32, e.dim), nil
	}
	return normalizeVector(e.project(text)), nil
}

func (e *FallbackProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed text %d: %w", i, err)
		}
		out[i] = vec
	}
	return out, nil
}

// project accumulates every feature of text into a fresh vector.
func (e *FallbackProvider) project(text string) []float32 {
	vec := make([]float32, e.dim)
	words := contentWords(text)

	for i, w := range words {
		addFeature(vec, w, unigramWeight)
		if i+1 < len(words) {
			addFeature(vec, w+" "+words[i+1], bigramWeight)
		}
	}
	return vec
}

// contentWords lowercases, tokenizes, and strips stop words, preserving
// order so bigrams stay meaningful.
func contentWords(text string) []string {
	raw := tokenRegex.FindAllString(strings.ToLower(text), -1)
	words := raw[:0]
	for _, w := range raw {
		if !proseStopWords[w] {
			words = append(words, w)
		}
	}
	return words
}

// addFeature hashes feature into a bucket and a sign and accumulates
// weight there. The sign bit halves the chance that two colliding features
// reinforce instead of cancelling, the standard hashing-trick refinement.
func addFeature(vec []float32, feature string, weight float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()

	bucket := int((sum >> 1) % uint64(len(vec)))
	if sum&1 == 1 {
		weight = -weight
	}
	vec[bucket] += weight
}

func (e *FallbackProvider) checkOpen() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return fmt.Errorf("fallback provider is closed")
	}
	return nil
}

func (e *FallbackProvider) Dimensions() int { return e.dim }

func (e *FallbackProvider) ModelID() string { return "fallback-hash-projection" }

func (e *FallbackProvider) Available(_ context.Context) bool {
	return e.checkOpen() == nil
}

func (e *FallbackProvider) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
