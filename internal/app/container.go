package app

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/docsearch/docsearch/internal/chunk"
	"github.com/docsearch/docsearch/internal/config"
	"github.com/docsearch/docsearch/internal/embed"
	"github.com/docsearch/docsearch/internal/ignore"
	"github.com/docsearch/docsearch/internal/indexer"
	"github.com/docsearch/docsearch/internal/lexical"
	"github.com/docsearch/docsearch/internal/pipeline"
	"github.com/docsearch/docsearch/internal/vector"
)

// Container holds every long-lived dependency the process needs, assembled
// once at startup and handed to both transports.
type Container struct {
	Config   *config.Config
	Logger   *slog.Logger
	Repo     vector.Repository
	Embedder embed.Provider
	Chunker  chunk.Chunker

	Lexical *lexical.Index

	Indexing *DocumentIndexingService
	Search   *SearchService
	Health   *HealthService

	DocStore *indexer.DocumentStore
	Indexer  *indexer.Indexer
}

// Build assembles a Container following configuration -> logger ->
// repository -> embedder -> chunker -> indexer -> pipeline -> services, so
// every layer only ever depends on layers already constructed before it.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	if logger == nil {
		logger = slog.Default()
	}

	repo, err := buildRepository(cfg)
	if err != nil {
		return nil, fmt.Errorf("build vector repository: %w", err)
	}

	modelDir := filepath.Join(cfg.Embeddings.ModelCacheDir, cfg.Embeddings.ModelID)
	if err := embed.EnsureModel(ctx, cfg.Embeddings.ModelID, modelDir, logger); err != nil {
		// A failed download is not fatal: NewProvider degrades to the
		// deterministic fallback and health reporting surfaces the state.
		logger.Warn("model download failed", "model", cfg.Embeddings.ModelID, "error", err)
	}
	embedder := embed.NewProvider(ctx, toEmbedConfig(cfg.Embeddings), logger)

	chunker := chunk.NewMarkdownChunker(toChunkOptions(cfg.Chunking))

	docs := indexer.NewDocumentStore()
	// A restart recovers the revision map from repository payloads, so
	// unchanged files are skipped and document listings survive without
	// re-reading the corpus.
	if err := docs.Rebuild(ctx, repo, cfg.Search.CollectionName); err != nil {
		logger.Warn("document store rebuild failed, starting empty", "error", err)
	}

	lx, err := lexical.New(filepath.Join(filepath.Dir(cfg.Paths.EmbeddedDBPath), "lexical.bleve"))
	if err != nil {
		// Search still works on the vector leg alone; ranking just loses
		// its BM25 signal until the index can be created.
		logger.Warn("lexical index unavailable", "error", err)
		lx = nil
	}

	ixCfg := indexer.DefaultConfig(cfg.Search.CollectionName)
	ixCfg.Workers = cfg.Performance.IndexWorkers
	if cfg.Embeddings.BatchSize > 0 {
		ixCfg.EmbedBatchSize = cfg.Embeddings.BatchSize
	}
	if cfg.Performance.EventQueueCap > 0 {
		ixCfg.EventQueueSize = cfg.Performance.EventQueueCap
	}
	ix := indexer.New(ixCfg, repo, embedder, chunker, docs, logger)
	if lx != nil {
		ix.SetLexicalIndex(lx)
	}

	matcher := ignore.New()
	for _, p := range cfg.Paths.Exclude {
		matcher.AddPattern(p)
	}
	allowExt := make(map[string]bool, len(AllowedExtensions))
	for _, ext := range AllowedExtensions {
		allowExt[ext] = true
	}

	roots := cfg.Paths.DocsRoots
	if len(roots) == 0 {
		roots = []string{"."}
	}

	indexing := NewDocumentIndexingService(ix, docs, repo, cfg.Search.CollectionName, roots, allowExt,
		func(path string, isDir bool) bool { return matcher.Match(path, isDir) })

	var searcher pipeline.LexicalSearcher
	if lx != nil {
		searcher = lx
	}
	p := pipeline.New(
		pipeline.EnhanceStep{},
		pipeline.EmbedStep{Provider: embedder},
		pipeline.VectorSearchStep{Repo: repo, Titles: docs},
		pipeline.LexicalSearchStep{Searcher: searcher},
		pipeline.RankStep{Weights: toRankWeights(cfg.Search.RankWeights)},
		pipeline.AnalyticsStep{Sink: pipeline.NewLogSink(logger), Logger: logger},
	)

	searchSvc := NewSearchService(p, repo, embedder, cfg.Search.CollectionName, indexing)
	healthSvc := NewHealthService(repo, embedder)
	healthSvc.Progress = ix.Progress

	if err := repo.CreateCollection(ctx, cfg.Search.CollectionName, embedder.Dimensions()); err != nil {
		logger.Debug("default collection already provisioned", "collection", cfg.Search.CollectionName, "error", err)
	}

	return &Container{
		Config:   cfg,
		Logger:   logger,
		Repo:     repo,
		Embedder: embedder,
		Chunker:  chunker,
		Lexical:  lx,
		Indexing: indexing,
		Search:   searchSvc,
		Health:   healthSvc,
		DocStore: docs,
		Indexer:  ix,
	}, nil
}

// Close releases every dependency that owns an OS resource (file lock, gRPC
// connection, model session).
func (c *Container) Close() error {
	var firstErr error
	if err := c.Embedder.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if c.Lexical != nil {
		if err := c.Lexical.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := c.Repo.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func buildRepository(cfg *config.Config) (vector.Repository, error) {
	switch strings.ToLower(cfg.Search.VectorBackend) {
	case "remote", "qdrant":
		return vector.NewRemoteRepository(vector.RemoteConfig{
			DSN: cfg.Search.RemoteURL,
		})
	default:
		dbPath := cfg.Paths.EmbeddedDBPath
		if !filepath.IsAbs(dbPath) {
			abs, err := filepath.Abs(dbPath)
			if err == nil {
				dbPath = abs
			}
		}
		return vector.NewEmbeddedRepository(vector.EmbeddedConfig{
			Path: dbPath,
		})
	}
}

// AllowedExtensions is the file-extension allow-set shared by the bulk
// indexer and the watcher: only these files are chunked and embedded.
var AllowedExtensions = []string{".md", ".markdown", ".mdx", ".txt"}

// toChunkOptions adapts the on-disk chunking configuration to chunk.Options.
func toChunkOptions(cfg config.ChunkingConfig) chunk.Options {
	return chunk.Options{
		TargetTokens:    cfg.TargetTokens,
		OverlapTokens:   cfg.OverlapTokens,
		MaxTokens:       cfg.MaxTokens,
		KeepCodeFences:  cfg.KeepCodeFences,
		KeepTables:      cfg.KeepTables,
		MaxHeadingDepth: cfg.MaxHeadingDepth,
	}.WithDefaults()
}

// toRankWeights adapts the on-disk rank weights, falling back to
// pipeline.DefaultRankWeights when the config leaves them zero.
func toRankWeights(cfg config.RankWeightsConfig) pipeline.RankWeights {
	w := pipeline.RankWeights{
		Cosine:         cfg.Cosine,
		IntentBoost:    cfg.IntentBoost,
		FilterMatch:    cfg.FilterMatch,
		LexicalOverlap: cfg.LexicalOverlap,
	}
	if w == (pipeline.RankWeights{}) {
		return pipeline.DefaultRankWeights()
	}
	return w
}

// knownModelDimensions maps recognized embedding_model_id values to their
// output vector width, since the ONNX runtime has no way to ask a model
// file its dimension before a session is opened.
var knownModelDimensions = map[string]int{
	"bge-small-en-v1.5": 384,
	"bge-base-en-v1.5":  768,
	"bge-large-en-v1.5": 1024,
	"all-MiniLM-L6-v2":  384,
}

// defaultModelDimension is used for an unrecognized model id. The ONNX
// provider does not check the model's actual output width against this
// value.
const defaultModelDimension = 384

// toEmbedConfig adapts the on-disk embeddings configuration to the shape
// embed.NewProvider wants, deriving the ONNX model/tokenizer file locations
// from ModelCacheDir+ModelID.
func toEmbedConfig(cfg config.EmbeddingsConfig) embed.Config {
	dim, ok := knownModelDimensions[cfg.ModelID]
	if !ok {
		dim = defaultModelDimension
	}
	modelDir := filepath.Join(cfg.ModelCacheDir, cfg.ModelID)
	return embed.Config{
		ONNX: embed.ONNXConfig{
			ModelPath:     filepath.Join(modelDir, "model.onnx"),
			TokenizerPath: filepath.Join(modelDir, "tokenizer.json"),
			Dimension:     dim,
		},
		CacheSize: cfg.CacheSize,
	}
}
