package vector

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchesCollectionLegacyPointMatchesOnlyDefault(t *testing.T) {
	p := Point{ChunkID: "c1"}
	assert.True(t, MatchesCollection(p, "docs", "docs"))
	assert.False(t, MatchesCollection(p, "docs_v2", "docs"))
}

func TestMatchesCollectionExactMatchOnly(t *testing.T) {
	p := Point{ChunkID: "c1", CollectionID: "docs"}
	assert.True(t, MatchesCollection(p, "docs", "docs"))
	assert.False(t, MatchesCollection(p, "other", "docs"))
}
