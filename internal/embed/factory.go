package embed

import (
	"context"
	"log/slog"
)

// Config selects and tunes the embedding provider, mirroring the
// embedding_model_id / model_cache_dir / embedding_batch_size /
// embedding_cache_size config keys.
type Config struct {
	ONNX      ONNXConfig
	CacheSize int
	// DisableCache skips the LRU wrapper, used by tests that need to
	// observe every call reach the underlying provider.
	DisableCache bool
}

// NewProvider builds the local ONNX provider and wraps it with caching. If
// the ONNX provider fails to load (missing model file, onnxruntime not
// installed, unsupported platform), it logs the reason and returns the
// deterministic fallback instead, so indexing and search keep working.
func NewProvider(ctx context.Context, cfg Config, logger *slog.Logger) Provider {
	if logger == nil {
		logger = slog.Default()
	}

	var provider Provider
	onnxProvider, err := NewONNXProvider(cfg.ONNX)
	switch {
	case err == nil:
		// Construction succeeded, but a given batch can still hit
		// errMissingInput at inference time (wrong tokenizer/model pairing,
		// a quantized export missing token_type_ids, ...). Wrap so that
		// failure degrades just that call to the deterministic fallback
		// instead of failing indexing/search outright.
		provider = NewFallbackAwareProvider(onnxProvider, logger)
	default:
		logger.Warn("onnx_embedding_provider_unavailable",
			slog.String("error", err.Error()),
			slog.String("fallback", "deterministic hash projection"))
		provider = NewFallbackProvider()
	}

	if cfg.DisableCache {
		return provider
	}
	return NewCachedProvider(provider, cfg.CacheSize)
}

// WithFallbackOnMissingInput wraps provider so that an errMissingInput
// failure from an otherwise-healthy ONNX session degrades a single
// EmbedBatch call to the fallback provider rather than failing the whole
// indexing run. The ONNX provider stays primary for subsequent calls.
type WithFallbackOnMissingInput struct {
	Primary  Provider
	Fallback Provider
	logger   *slog.Logger
}

// NewFallbackAwareProvider pairs primary with a deterministic fallback used
// only when primary reports errMissingInput.
func NewFallbackAwareProvider(primary Provider, logger *slog.Logger) *WithFallbackOnMissingInput {
	if logger == nil {
		logger = slog.Default()
	}
	return &WithFallbackOnMissingInput{Primary: primary, Fallback: NewFallbackProviderWithDimension(primary.Dimensions()), logger: logger}
}

func (w *WithFallbackOnMissingInput) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := w.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (w *WithFallbackOnMissingInput) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := w.Primary.EmbedBatch(ctx, texts)
	if err == nil {
		return vecs, nil
	}
	if err != errMissingInput {
		return nil, err
	}
	w.logger.Warn("onnx_missing_input_fallback", slog.Int("batch_size", len(texts)))
	return w.Fallback.EmbedBatch(ctx, texts)
}

func (w *WithFallbackOnMissingInput) Dimensions() int { return w.Primary.Dimensions() }

func (w *WithFallbackOnMissingInput) ModelID() string { return w.Primary.ModelID() }

func (w *WithFallbackOnMissingInput) Available(ctx context.Context) bool {
	return w.Primary.Available(ctx) || w.Fallback.Available(ctx)
}

func (w *WithFallbackOnMissingInput) Close() error {
	err1 := w.Primary.Close()
	err2 := w.Fallback.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
