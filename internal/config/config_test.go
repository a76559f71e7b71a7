package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Default Configuration Tests
// =============================================================================

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	// Given: no configuration file exists
	cfg := NewConfig()

	// Then: all defaults should be applied
	require.NotNil(t, cfg)

	// Search defaults
	assert.Equal(t, "default", cfg.Search.CollectionName)
	assert.Equal(t, "embedded", cfg.Search.VectorBackend)
	assert.Equal(t, "localhost:6334", cfg.Search.RemoteURL)
	assert.Equal(t, 20, cfg.Search.MaxResults)
	assert.Equal(t, 0.60, cfg.Search.RankWeights.Cosine)
	assert.Equal(t, 0.10, cfg.Search.RankWeights.IntentBoost)
	assert.Equal(t, 0.10, cfg.Search.RankWeights.FilterMatch)
	assert.Equal(t, 0.20, cfg.Search.RankWeights.LexicalOverlap)

	// Embeddings defaults
	assert.Equal(t, "bge-small-en-v1.5", cfg.Embeddings.ModelID)
	assert.Contains(t, cfg.Embeddings.ModelCacheDir, filepath.Join(".docsearch", "models"))
	assert.Equal(t, 32, cfg.Embeddings.BatchSize)
	assert.Equal(t, 10_000, cfg.Embeddings.CacheSize)

	// Chunking defaults
	assert.Equal(t, 800, cfg.Chunking.TargetTokens)
	assert.Equal(t, 120, cfg.Chunking.OverlapTokens)
	assert.Equal(t, 1000, cfg.Chunking.MaxTokens)
	assert.True(t, cfg.Chunking.KeepCodeFences)
	assert.True(t, cfg.Chunking.KeepTables)
	assert.Equal(t, 3, cfg.Chunking.MaxHeadingDepth)

	// Performance defaults
	assert.Equal(t, runtime.NumCPU(), cfg.Performance.IndexWorkers)
	assert.Equal(t, 200, cfg.Performance.DebounceMS)
	assert.Equal(t, 1000, cfg.Performance.EventQueueCap)

	// Server defaults
	assert.Equal(t, "127.0.0.1:8080", cfg.Server.ListenAddr)
	assert.False(t, cfg.Server.AllowNonLocalBind)
	assert.Equal(t, "info", cfg.Server.LogLevel)
	assert.Equal(t, "/rpc", cfg.Server.JSONRPCPath)

	// Paths defaults
	assert.Equal(t, []string{"docs"}, cfg.Paths.DocsRoots)
	assert.Contains(t, cfg.Paths.Exclude, "**/node_modules/**")
	assert.Contains(t, cfg.Paths.Exclude, "**/.git/**")
	assert.Contains(t, cfg.Paths.Exclude, "**/vendor/**")
	assert.Contains(t, cfg.Paths.EmbeddedDBPath, filepath.Join(".docsearch", "index.db"))
}

func TestConfig_VersionDefaultsToOne(t *testing.T) {
	cfg := NewConfig()
	assert.Equal(t, 1, cfg.Version)
}

func TestConfig_RankWeightsSumToOne(t *testing.T) {
	w := NewConfig().Search.RankWeights
	sum := w.Cosine + w.IntentBoost + w.FilterMatch + w.LexicalOverlap
	assert.InDelta(t, 1.0, sum, 0.01)
}

// =============================================================================
// Configuration File Loading Tests
// =============================================================================

func TestLoad_NoConfigFile_ReturnsDefaults(t *testing.T) {
	// Given: a directory with no .docsearch.yaml
	tmpDir := setupLoadDir(t)

	// When: loading configuration
	cfg, err := Load(tmpDir)

	// Then: defaults are returned without error
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "embedded", cfg.Search.VectorBackend)
}

func TestLoad_YamlFile_OverridesDefaults(t *testing.T) {
	// Given: a directory with .docsearch.yaml
	tmpDir := setupLoadDir(t)
	yaml := `
search:
  collection_name: docs_v2
  vector_backend: remote
  remote_url: qdrant.internal:6334
  max_results: 50
chunking:
  target_tokens: 600
  max_tokens: 900
`
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, ".docsearch.yaml"), []byte(yaml), 0o644))

	// When: loading configuration
	cfg, err := Load(tmpDir)

	// Then: file values override defaults, untouched keys keep defaults
	require.NoError(t, err)
	assert.Equal(t, "docs_v2", cfg.Search.CollectionName)
	assert.Equal(t, "remote", cfg.Search.VectorBackend)
	assert.Equal(t, "qdrant.internal:6334", cfg.Search.RemoteURL)
	assert.Equal(t, 50, cfg.Search.MaxResults)
	assert.Equal(t, 600, cfg.Chunking.TargetTokens)
	assert.Equal(t, 900, cfg.Chunking.MaxTokens)
	assert.Equal(t, 120, cfg.Chunking.OverlapTokens) // default preserved
	assert.Equal(t, "bge-small-en-v1.5", cfg.Embeddings.ModelID)
}

func TestLoad_YmlExtension_IsRecognized(t *testing.T) {
	tmpDir := setupLoadDir(t)
	yaml := "search:\n  collection_name: from_yml\n"
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, ".docsearch.yml"), []byte(yaml), 0o644))

	cfg, err := Load(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, "from_yml", cfg.Search.CollectionName)
}

func TestLoad_YamlPreferredOverYml(t *testing.T) {
	tmpDir := setupLoadDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, ".docsearch.yaml"),
		[]byte("search:\n  collection_name: from_yaml\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, ".docsearch.yml"),
		[]byte("search:\n  collection_name: from_yml\n"), 0o644))

	cfg, err := Load(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, "from_yaml", cfg.Search.CollectionName)
}

func TestLoad_InvalidYaml_ReturnsError(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, ".docsearch.yaml"),
		[]byte("search: [unclosed"), 0o644))

	_, err := Load(tmpDir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse")
}

func TestLoad_InvalidFieldType_ReturnsError(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, ".docsearch.yaml"),
		[]byte("chunking:\n  target_tokens: not_a_number\n"), 0o644))

	_, err := Load(tmpDir)
	require.Error(t, err)
}

func TestLoad_ExcludePatternsAreMerged(t *testing.T) {
	tmpDir := setupLoadDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, ".docsearch.yaml"),
		[]byte("paths:\n  exclude:\n    - '**/drafts/**'\n"), 0o644))

	cfg, err := Load(tmpDir)
	require.NoError(t, err)
	assert.Contains(t, cfg.Paths.Exclude, "**/drafts/**")
	assert.Contains(t, cfg.Paths.Exclude, "**/node_modules/**", "defaults survive user additions")
}

// =============================================================================
// Environment Variable Override Tests
// =============================================================================

func TestLoad_EnvVarOverridesCollectionName(t *testing.T) {
	tmpDir := setupLoadDir(t)
	t.Setenv("DOCSEARCH_COLLECTION_NAME", "env_collection")

	cfg, err := Load(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, "env_collection", cfg.Search.CollectionName)
}

func TestLoad_EnvVarOverridesVectorBackend(t *testing.T) {
	tmpDir := setupLoadDir(t)
	t.Setenv("DOCSEARCH_VECTOR_BACKEND", "remote")
	t.Setenv("DOCSEARCH_REMOTE_URL", "env-qdrant:6334")

	cfg, err := Load(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, "remote", cfg.Search.VectorBackend)
	assert.Equal(t, "env-qdrant:6334", cfg.Search.RemoteURL)
}

func TestLoad_EnvVarOverridesModelID(t *testing.T) {
	tmpDir := setupLoadDir(t)
	t.Setenv("DOCSEARCH_EMBEDDING_MODEL_ID", "bge-base-en-v1.5")

	cfg, err := Load(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, "bge-base-en-v1.5", cfg.Embeddings.ModelID)
}

func TestLoad_EnvVarOverridesBatchSize(t *testing.T) {
	tmpDir := setupLoadDir(t)
	t.Setenv("DOCSEARCH_EMBEDDING_BATCH_SIZE", "64")

	cfg, err := Load(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.Embeddings.BatchSize)
}

func TestLoad_EnvVarNonNumericBatchSize_IsIgnored(t *testing.T) {
	tmpDir := setupLoadDir(t)
	t.Setenv("DOCSEARCH_EMBEDDING_BATCH_SIZE", "lots")

	cfg, err := Load(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, 32, cfg.Embeddings.BatchSize)
}

func TestLoad_EnvVarOverridesDebounce(t *testing.T) {
	tmpDir := setupLoadDir(t)
	t.Setenv("DOCSEARCH_DEBOUNCE_MS", "450")

	cfg, err := Load(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, 450, cfg.Performance.DebounceMS)
}

func TestLoad_EnvVarOverridesLogLevel(t *testing.T) {
	tmpDir := setupLoadDir(t)
	t.Setenv("DOCSEARCH_LOG_LEVEL", "debug")

	cfg, err := Load(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Server.LogLevel)
}

func TestLoad_EnvVarAllowNonLocalBind(t *testing.T) {
	tmpDir := setupLoadDir(t)
	t.Setenv("DOCSEARCH_LISTEN_ADDR", "0.0.0.0:8080")
	t.Setenv("DOCSEARCH_ALLOW_NON_LOCAL_BIND", "true")

	cfg, err := Load(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.ListenAddr)
	assert.True(t, cfg.Server.AllowNonLocalBind)
}

func TestLoad_EnvVarEmptyString_DoesNotOverride(t *testing.T) {
	tmpDir := setupLoadDir(t)
	t.Setenv("DOCSEARCH_COLLECTION_NAME", "")

	cfg, err := Load(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, "default", cfg.Search.CollectionName)
}

// =============================================================================
// User Config Layering Tests
// =============================================================================

func TestGetUserConfigPath_DefaultsToXDGLocation(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "")
	path := GetUserConfigPath()
	assert.Contains(t, path, filepath.Join("docsearch", "config.yaml"))
}

func TestGetUserConfigPath_RespectsXDGConfigHome(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)
	path := GetUserConfigPath()
	assert.Equal(t, filepath.Join(tmpDir, "docsearch", "config.yaml"), path)
}

func TestGetUserConfigDir_ReturnsParentOfConfigPath(t *testing.T) {
	assert.Equal(t, filepath.Dir(GetUserConfigPath()), GetUserConfigDir())
}

func TestUserConfigExists_ReturnsFalseWhenMissing(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	assert.False(t, UserConfigExists())
}

func TestUserConfigExists_ReturnsTrueWhenPresent(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)
	require.NoError(t, os.MkdirAll(filepath.Join(tmpDir, "docsearch"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "docsearch", "config.yaml"),
		[]byte("version: 1\n"), 0o644))
	assert.True(t, UserConfigExists())
}

func TestLoad_UserConfigOverridesDefaults(t *testing.T) {
	tmpDir := setupLoadDir(t)
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	require.NoError(t, os.MkdirAll(filepath.Join(xdg, "docsearch"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(xdg, "docsearch", "config.yaml"),
		[]byte("search:\n  collection_name: from_user\n"), 0o644))

	cfg, err := Load(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, "from_user", cfg.Search.CollectionName)
}

func TestLoad_ProjectConfigOverridesUserConfig(t *testing.T) {
	tmpDir := setupLoadDir(t)
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	require.NoError(t, os.MkdirAll(filepath.Join(xdg, "docsearch"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(xdg, "docsearch", "config.yaml"),
		[]byte("search:\n  collection_name: from_user\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, ".docsearch.yaml"),
		[]byte("search:\n  collection_name: from_project\n"), 0o644))

	cfg, err := Load(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, "from_project", cfg.Search.CollectionName)
}

func TestLoad_EnvVarOverridesUserAndProjectConfig(t *testing.T) {
	tmpDir := setupLoadDir(t)
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	require.NoError(t, os.MkdirAll(filepath.Join(xdg, "docsearch"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(xdg, "docsearch", "config.yaml"),
		[]byte("search:\n  collection_name: from_user\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, ".docsearch.yaml"),
		[]byte("search:\n  collection_name: from_project\n"), 0o644))
	t.Setenv("DOCSEARCH_COLLECTION_NAME", "from_env")

	cfg, err := Load(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, "from_env", cfg.Search.CollectionName)
}

func TestLoad_InvalidUserConfig_ReturnsError(t *testing.T) {
	tmpDir := t.TempDir()
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	require.NoError(t, os.MkdirAll(filepath.Join(xdg, "docsearch"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(xdg, "docsearch", "config.yaml"),
		[]byte("search: [broken"), 0o644))

	_, err := Load(tmpDir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user config")
}

// =============================================================================
// Validation Tests
// =============================================================================

func TestValidate_RejectsUnknownBackend(t *testing.T) {
	cfg := NewConfig()
	cfg.Search.VectorBackend = "pinecone"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vector_backend")
}

func TestValidate_RemoteBackendRequiresURL(t *testing.T) {
	cfg := NewConfig()
	cfg.Search.VectorBackend = "remote"
	cfg.Search.RemoteURL = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "remote_url")
}

func TestValidate_MaxTokensMustCoverTarget(t *testing.T) {
	cfg := NewConfig()
	cfg.Chunking.TargetTokens = 800
	cfg.Chunking.MaxTokens = 500
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_tokens")
}

func TestValidate_NonLocalBindRequiresExplicitFlag(t *testing.T) {
	cfg := NewConfig()
	cfg.Server.ListenAddr = "0.0.0.0:8080"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "allow_non_local_bind")

	cfg.Server.AllowNonLocalBind = true
	assert.NoError(t, cfg.Validate())
}

func TestValidate_RejectsUnknownLogLevel(t *testing.T) {
	cfg := NewConfig()
	cfg.Server.LogLevel = "verbose"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log_level")
}

// =============================================================================
// Discovery Tests
// =============================================================================

func TestDiscoverDocsDirs_FindsDocsDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(tmpDir, "docs"), 0o755))

	found := DiscoverDocsDirs(tmpDir)
	assert.Equal(t, []string{"docs"}, found)
}

func TestDiscoverDocsDirs_FallsBackToReadme(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "README.md"), []byte("# Hi"), 0o644))

	found := DiscoverDocsDirs(tmpDir)
	assert.Equal(t, []string{"."}, found)
}

func TestDiscoverDocsDirs_EmptyDir_ReturnsNothing(t *testing.T) {
	assert.Empty(t, DiscoverDocsDirs(t.TempDir()))
}

func TestFindProjectRoot_GitDirectory_ReturnsGitRoot(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(tmpDir, ".git"), 0o755))
	nested := filepath.Join(tmpDir, "docs", "guides")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	root, err := FindProjectRoot(nested)
	require.NoError(t, err)
	assertSamePath(t, tmpDir, root)
}

func TestFindProjectRoot_ConfigFile_ReturnsConfigLocation(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, ".docsearch.yaml"), []byte("version: 1\n"), 0o644))
	nested := filepath.Join(tmpDir, "docs")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	root, err := FindProjectRoot(nested)
	require.NoError(t, err)
	assertSamePath(t, tmpDir, root)
}

func TestFindProjectRoot_NoMarkers_ReturnsStartDir(t *testing.T) {
	tmpDir := t.TempDir()
	root, err := FindProjectRoot(tmpDir)
	require.NoError(t, err)
	assertSamePath(t, tmpDir, root)
}

// setupLoadDir creates a project directory with a docs/ root and points
// XDG_CONFIG_HOME at an empty directory so a developer's real user config
// never leaks into Load tests. Tests that need a user config overwrite
// XDG_CONFIG_HOME again after calling this.
func setupLoadDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "docs"), 0o755))
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	return dir
}

// assertSamePath compares paths after symlink resolution, since t.TempDir
// may sit behind a symlinked /tmp on some platforms.
func assertSamePath(t *testing.T, want, got string) {
	t.Helper()
	w, err := filepath.EvalSymlinks(want)
	require.NoError(t, err)
	g, err := filepath.EvalSymlinks(got)
	require.NoError(t, err)
	assert.Equal(t, w, g)
}
