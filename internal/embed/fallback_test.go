package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFallbackProviderDeterministic(t *testing.T) {
	p := NewFallbackProvider()
	defer p.Close()

	a, err := p.Embed(context.Background(), "how do retries work")
	require.NoError(t, err)
	b, err := p.Embed(context.Background(), "how do retries work")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestFallbackProviderEmptyText(t *testing.T) {
	p := NewFallbackProvider()
	defer p.Close()

	vec, err := p.Embed(context.Background(), "   ")
	require.NoError(t, err)
	assert.Len(t, vec, FallbackDimensions)
	for _, v := range vec {
		assert.Zero(t, v)
	}
}

func TestFallbackProviderDistinctTextsDiffer(t *testing.T) {
	p := NewFallbackProvider()
	defer p.Close()

	a, _ := p.Embed(context.Background(), "retry with exponential backoff")
	b, _ := p.Embed(context.Background(), "chunk markdown by heading")
	assert.NotEqual(t, a, b)
}

func TestFallbackProviderClosedRejectsCalls(t *testing.T) {
	p := NewFallbackProvider()
	require.NoError(t, p.Close())

	_, err := p.Embed(context.Background(), "text")
	assert.Error(t, err)
	assert.False(t, p.Available(context.Background()))
}

func TestFallbackProviderEmbedBatch(t *testing.T) {
	p := NewFallbackProvider()
	defer p.Close()

	vecs, err := p.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
}
