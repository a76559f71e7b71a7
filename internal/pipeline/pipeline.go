// Package pipeline implements the search pipeline: an ordered sequence of
// steps (query enhancement, embedding, vector search, ranking, analytics)
// each operating on a mutable Context. Steps are constructed once at
// container build time (internal/app) and never mutated afterward.
package pipeline

import (
	"context"
	"time"

	"github.com/docsearch/docsearch/internal/core"
)

// QueryIntent classifies the kind of information a query is after, used by
// the ranker to apply type-aware boosts.
type QueryIntent string

const (
	IntentTechnical       QueryIntent = "technical"
	IntentConceptual      QueryIntent = "conceptual"
	IntentCode            QueryIntent = "code"
	IntentNavigation      QueryIntent = "navigation"
	IntentTroubleshooting QueryIntent = "troubleshooting"
)

// EnhancedQuery is the output of the query-enhancement step: augmented text
// used for embedding, plus the detected intent. The original query text is
// preserved on Context.Query for display.
type EnhancedQuery struct {
	Text   string
	Intent QueryIntent
}

// RawMatch is one nearest-neighbor hit before ranking has combined signals
// into a final score. It is intentionally a pipeline-local type so the
// vector package stays free of ranking concerns.
type RawMatch struct {
	Chunk      core.Chunk
	DocumentID string
	Path       string
	Title      string
	Cosine     float64
}

// Context is the mutable state threaded through every pipeline Step.
type Context struct {
	Ctx context.Context

	Query       core.SearchQuery
	Enhanced    EnhancedQuery
	QueryVector []float32
	Raw         []RawMatch

	// LexicalScores are the normalized BM25 scores for the enhanced query,
	// keyed by chunk id, filled by LexicalSearchStep for RankStep to blend.
	LexicalScores map[string]float64

	Results []core.SearchResultItem
	TopK    int

	StartedAt time.Time
	Durations map[string]time.Duration
}

// NewContext starts a pipeline run over q.
func NewContext(ctx context.Context, q core.SearchQuery) *Context {
	return &Context{
		Ctx:       ctx,
		Query:     q,
		TopK:      q.Limit,
		StartedAt: time.Now(),
		Durations: make(map[string]time.Duration),
	}
}

// Step is one stage of the search pipeline. A step may read from and write
// to sc; returning an error aborts the remaining steps.
type Step interface {
	Name() string
	Run(sc *Context) error
}

// Pipeline runs a fixed, ordered list of Steps once per query, timing each
// one onto Context.Durations.
type Pipeline struct {
	steps []Step
}

// New builds a Pipeline from steps in execution order. Additional steps can
// be inserted by passing a longer slice at container build time; existing
// steps are never mutated.
func New(steps ...Step) *Pipeline {
	return &Pipeline{steps: steps}
}

// Run executes every step in order, stopping at the first error.
func (p *Pipeline) Run(sc *Context) error {
	for _, step := range p.steps {
		start := time.Now()
		err := step.Run(sc)
		sc.Durations[step.Name()] = time.Since(start)
		if err != nil {
			return err
		}
	}
	return nil
}
