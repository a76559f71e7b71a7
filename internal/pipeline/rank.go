package pipeline

import (
	"sort"
	"strings"

	"github.com/docsearch/docsearch/internal/core"
)

// RankWeights are the configurable ranking signal weights. They need not
// sum to 1; the final score is clamped into [0,1] regardless.
type RankWeights struct {
	Cosine         float64
	IntentBoost    float64
	FilterMatch    float64
	LexicalOverlap float64
}

// DefaultRankWeights favors cosine similarity as the primary signal, with
// the BM25 lexical leg and the two boolean boosts filling in where dense
// vectors are weak (exact identifiers, rare terms).
func DefaultRankWeights() RankWeights {
	return RankWeights{
		Cosine:         0.60,
		IntentBoost:    0.10,
		FilterMatch:    0.10,
		LexicalOverlap: 0.20,
	}
}

// RankStep blends cosine similarity with the lexical index's normalized
// BM25 score (Context.LexicalScores, filled by LexicalSearchStep), an
// intent-aware type boost, and a filter-match bonus into a final [0,1]
// score, truncating to the originally requested k with a stable tie-break.
type RankStep struct {
	Weights RankWeights
}

func (RankStep) Name() string { return "rank" }

func (s RankStep) Run(sc *Context) error {
	weights := s.Weights
	if weights == (RankWeights{}) {
		weights = DefaultRankWeights()
	}

	hasPathFilter := sc.Query.Filters["path_prefix"] != ""

	items := make([]core.SearchResultItem, 0, len(sc.Raw))
	for _, m := range sc.Raw {
		intentBoost := 0.0
		if sc.Enhanced.Intent == IntentCode && m.Chunk.Type == core.ChunkCodeFence {
			intentBoost = 1.0
		}

		filterMatch := 0.0
		if hasPathFilter && strings.HasPrefix(m.Path, sc.Query.Filters["path_prefix"]) {
			filterMatch = 1.0
		}

		// Already normalized into (0, 1] by the lexical index; a chunk the
		// BM25 query didn't match contributes zero.
		lexical := sc.LexicalScores[m.Chunk.ID]

		score := weights.Cosine*m.Cosine +
			weights.IntentBoost*intentBoost +
			weights.FilterMatch*filterMatch +
			weights.LexicalOverlap*lexical

		items = append(items, core.SearchResultItem{
			Chunk:         m.Chunk,
			DocumentID:    m.DocumentID,
			DocumentTitle: m.Title,
			Path:          m.Path,
			Score:         core.NewScore(score),
			Signals: core.RankingSignals{
				Cosine:         m.Cosine,
				IntentBoost:    intentBoost,
				FilterMatch:    filterMatch,
				LexicalOverlap: lexical,
			},
		})
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		if items[i].Signals.Cosine != items[j].Signals.Cosine {
			return items[i].Signals.Cosine > items[j].Signals.Cosine
		}
		return items[i].Chunk.ID < items[j].Chunk.ID
	})

	if sc.TopK > 0 && len(items) > sc.TopK {
		items = items[:sc.TopK]
	}
	sc.Results = items
	return nil
}
