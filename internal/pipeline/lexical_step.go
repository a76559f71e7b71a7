package pipeline

import "context"

// LexicalSearcher is the slice of internal/lexical.Index the pipeline
// needs: per-chunk BM25 scores, normalized into (0, 1] by the top hit.
type LexicalSearcher interface {
	Scores(ctx context.Context, query string, limit int) (map[string]float64, error)
}

// LexicalSearchStep queries the lexical index with the enhanced query and
// stores the normalized BM25 scores on the context for RankStep to blend
// against cosine similarity. A nil Searcher makes the step a no-op, so a
// deployment without a lexical index still runs the same pipeline.
type LexicalSearchStep struct {
	Searcher LexicalSearcher
}

func (LexicalSearchStep) Name() string { return "lexical_search" }

func (s LexicalSearchStep) Run(sc *Context) error {
	if s.Searcher == nil {
		return nil
	}

	limit := sc.Query.Limit * DefaultOverfetch
	if limit > MaxOverfetchK {
		limit = MaxOverfetchK
	}

	scores, err := s.Searcher.Scores(sc.Ctx, sc.Enhanced.Text, limit)
	if err != nil {
		// The lexical leg is an enhancement on top of vector search, not a
		// prerequisite: a failed BM25 lookup degrades ranking quality, it
		// must not fail the query.
		sc.LexicalScores = nil
		return nil
	}
	sc.LexicalScores = scores
	return nil
}
