package embed

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// missingInputProvider simulates an ONNX session that rejects every batch
// with errMissingInput, the failure NewFallbackAwareProvider exists to
// catch.
type missingInputProvider struct {
	dim        int
	failAlways bool
}

func (p *missingInputProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (p *missingInputProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if p.failAlways {
		return nil, errMissingInput
	}
	return nil, errors.New("some other failure")
}

func (p *missingInputProvider) Dimensions() int                    { return p.dim }
func (p *missingInputProvider) ModelID() string                    { return "fake-onnx-model" }
func (p *missingInputProvider) Available(ctx context.Context) bool { return true }
func (p *missingInputProvider) Close() error                       { return nil }

func TestFallbackAwareProviderRoutesMissingInputToFallback(t *testing.T) {
	primary := &missingInputProvider{dim: 384, failAlways: true}
	wrapped := NewFallbackAwareProvider(primary, nil)
	defer wrapped.Close()

	vecs, err := wrapped.EmbedBatch(context.Background(), []string{"architecture"})
	require.NoError(t, err)
	require.Len(t, vecs, 1)
	// The fallback vector must match the primary's configured dimension so
	// it satisfies the owning collection's fixed vector width, not the
	// fallback package's own standalone default.
	assert.Len(t, vecs[0], 384)
	assert.Equal(t, 384, wrapped.Dimensions())
}

func TestFallbackAwareProviderIsDeterministic(t *testing.T) {
	primary := &missingInputProvider{dim: 384, failAlways: true}
	wrapped := NewFallbackAwareProvider(primary, nil)
	defer wrapped.Close()

	a, err := wrapped.Embed(context.Background(), "architecture")
	require.NoError(t, err)
	b, err := wrapped.Embed(context.Background(), "architecture")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestFallbackAwareProviderDoesNotMaskOtherErrors(t *testing.T) {
	primary := &missingInputProvider{dim: 384, failAlways: false}
	wrapped := NewFallbackAwareProvider(primary, nil)
	defer wrapped.Close()

	_, err := wrapped.EmbedBatch(context.Background(), []string{"text"})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, errMissingInput)
}

func TestNewProviderDegradesToFallbackWhenOnnxUnavailable(t *testing.T) {
	// NewONNXProvider fails to load here (the tokenizer and model paths do
	// not exist), so NewProvider degrades to the bare FallbackProvider. This
	// asserts the degraded path still returns a non-empty vector.
	cfg := Config{
		ONNX: ONNXConfig{
			ModelPath:     "/nonexistent/model.onnx",
			TokenizerPath: "/nonexistent/tokenizer.json",
			Dimension:     384,
		},
		DisableCache: true,
	}
	provider := NewProvider(context.Background(), cfg, nil)
	defer provider.Close()

	vec, err := provider.Embed(context.Background(), "architecture")
	require.NoError(t, err)
	assert.NotEmpty(t, vec)
}
