// Package config loads docsearch's on-disk and environment configuration,
// merging project config over user config over hardcoded defaults, then
// applying DOCSEARCH_* environment overrides as the final, highest-precedence
// layer.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is docsearch's complete configuration.
type Config struct {
	Version     int               `yaml:"version" json:"version"`
	Paths       PathsConfig       `yaml:"paths" json:"paths"`
	Search      SearchConfig      `yaml:"search" json:"search"`
	Embeddings  EmbeddingsConfig  `yaml:"embeddings" json:"embeddings"`
	Chunking    ChunkingConfig    `yaml:"chunking" json:"chunking"`
	Performance PerformanceConfig `yaml:"performance" json:"performance"`
	Server      ServerConfig      `yaml:"server" json:"server"`
}

// PathsConfig configures which document roots are watched and indexed.
type PathsConfig struct {
	// DocsRoots is the list of directories recursively watched and indexed.
	// A single-root deployment still uses this list, with one entry.
	DocsRoots []string `yaml:"docs_paths" json:"docs_paths"`
	// Exclude holds additional gitignore-style exclude patterns, merged
	// with defaultExcludePatterns rather than replacing it.
	Exclude []string `yaml:"exclude" json:"exclude"`
	// EmbeddedDBPath is the embedded backend's SQLite file path.
	EmbeddedDBPath string `yaml:"embedded_db_path" json:"embedded_db_path"`
}

// SearchConfig configures the default collection and which vector backend
// serves it.
type SearchConfig struct {
	// CollectionName is the default/primary collection, used both as the
	// collection new documents are indexed into and to interpret legacy
	// records lacking a `collection` field.
	CollectionName string `yaml:"collection_name" json:"collection_name"`
	// VectorBackend selects "embedded" (SQLite, in-process) or "remote"
	// (Qdrant over gRPC).
	VectorBackend string `yaml:"vector_backend" json:"vector_backend"`
	// RemoteURL is the Qdrant gRPC endpoint, used when VectorBackend is
	// "remote".
	RemoteURL  string `yaml:"remote_url" json:"remote_url"`
	MaxResults int    `yaml:"max_results" json:"max_results"`

	// RankWeights tunes the ranking signal weights; zero values fall back
	// to pipeline.DefaultRankWeights at container build time.
	RankWeights RankWeightsConfig `yaml:"rank_weights" json:"rank_weights"`
}

// RankWeightsConfig mirrors pipeline.RankWeights so it round-trips through YAML.
type RankWeightsConfig struct {
	Cosine         float64 `yaml:"cosine" json:"cosine"`
	IntentBoost    float64 `yaml:"intent_boost" json:"intent_boost"`
	FilterMatch    float64 `yaml:"filter_match" json:"filter_match"`
	LexicalOverlap float64 `yaml:"lexical_overlap" json:"lexical_overlap"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// ModelID names the embedding model to load.
	ModelID string `yaml:"embedding_model_id" json:"embedding_model_id"`
	// ModelCacheDir is where a downloaded model archive is cached.
	ModelCacheDir string `yaml:"model_cache_dir" json:"model_cache_dir"`
	// BatchSize caps chunks per EmbedBatch call.
	BatchSize int `yaml:"embedding_batch_size" json:"embedding_batch_size"`
	// CacheSize is the LRU size of the embed-result cache in front of the
	// provider.
	CacheSize int `yaml:"embedding_cache_size" json:"embedding_cache_size"`
}

// ChunkingConfig mirrors chunk.Options so it round-trips through YAML
// under the `chunking.*` keys.
type ChunkingConfig struct {
	TargetTokens    int  `yaml:"target_tokens" json:"target_tokens"`
	OverlapTokens   int  `yaml:"overlap_tokens" json:"overlap_tokens"`
	MaxTokens       int  `yaml:"max_tokens" json:"max_tokens"`
	KeepCodeFences  bool `yaml:"keep_code_fences" json:"keep_code_fences"`
	KeepTables      bool `yaml:"keep_tables" json:"keep_tables"`
	MaxHeadingDepth int  `yaml:"max_heading_depth" json:"max_heading_depth"`
}

// PerformanceConfig configures worker and cache sizing.
type PerformanceConfig struct {
	IndexWorkers  int    `yaml:"index_workers" json:"index_workers"`
	DebounceMS    int    `yaml:"debounce_ms" json:"debounce_ms"`
	EventQueueCap int    `yaml:"event_queue_cap" json:"event_queue_cap"`
	CacheSize     int    `yaml:"cache_size" json:"cache_size"`
	Quantization  string `yaml:"quantization" json:"quantization"`
}

// ServerConfig configures the REST and JSON-RPC transports.
type ServerConfig struct {
	// ListenAddr is the HTTP bind address, default "127.0.0.1:8080".
	ListenAddr string `yaml:"listen_addr" json:"listen_addr"`
	// AllowNonLocalBind must be explicitly set true to bind ListenAddr to
	// any interface other than loopback.
	AllowNonLocalBind bool   `yaml:"allow_non_local_bind" json:"allow_non_local_bind"`
	LogLevel          string `yaml:"log_level" json:"log_level"`
	// JSONRPCPath is the HTTP POST framing's path for the JSON-RPC
	// dispatcher.
	JSONRPCPath string `yaml:"jsonrpc_path" json:"jsonrpc_path"`
}

// defaultExcludePatterns are always excluded, merged with any user-supplied
// patterns rather than replaced.
var defaultExcludePatterns = []string{
	"**/node_modules/**",
	"**/.git/**",
	"**/vendor/**",
	"**/dist/**",
	"**/build/**",
}

// NewConfig returns a Config populated with the documented defaults.
func NewConfig() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			DocsRoots:      []string{"docs"},
			Exclude:        append([]string(nil), defaultExcludePatterns...),
			EmbeddedDBPath: filepath.Join(home, ".docsearch", "index.db"),
		},
		Search: SearchConfig{
			CollectionName: "default",
			VectorBackend:  "embedded",
			RemoteURL:      "localhost:6334",
			MaxResults:     20,
			RankWeights: RankWeightsConfig{
				Cosine: 0.60, IntentBoost: 0.10, FilterMatch: 0.10, LexicalOverlap: 0.20,
			},
		},
		Embeddings: EmbeddingsConfig{
			ModelID:       "bge-small-en-v1.5",
			ModelCacheDir: filepath.Join(home, ".docsearch", "models"),
			BatchSize:     32,
			CacheSize:     10_000,
		},
		Chunking: ChunkingConfig{
			TargetTokens:    800,
			OverlapTokens:   120,
			MaxTokens:       1000,
			KeepCodeFences:  true,
			KeepTables:      true,
			MaxHeadingDepth: 3,
		},
		Performance: PerformanceConfig{
			IndexWorkers:  runtime.NumCPU(),
			DebounceMS:    200,
			EventQueueCap: 1000,
			CacheSize:     1000,
			Quantization:  "F32",
		},
		Server: ServerConfig{
			ListenAddr:        "127.0.0.1:8080",
			AllowNonLocalBind: false,
			LogLevel:          "info",
			JSONRPCPath:       "/rpc",
		},
	}
}

// GetUserConfigPath returns the path to the user/global configuration file,
// following the XDG Base Directory specification.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "docsearch", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "docsearch", "config.yaml")
	}
	return filepath.Join(home, ".config", "docsearch", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

func loadUserConfig() (*Config, error) {
	path := GetUserConfigPath()
	if !fileExists(path) {
		return nil, nil
	}
	cfg := NewConfig()
	if err := cfg.loadYAML(path); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", path, err)
	}
	return cfg, nil
}

// Load loads configuration from dir in order of increasing precedence:
// hardcoded defaults, user/global config, project config (.docsearch.yaml
// in dir), then DOCSEARCH_* environment variables.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if len(cfg.Paths.DocsRoots) == 0 {
		if discovered := DiscoverDocsDirs(dir); len(discovered) > 0 {
			cfg.Paths.DocsRoots = discovered
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadFromFile loads .docsearch.yaml or .docsearch.yml from dir, if present.
func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ".docsearch.yaml")
	if fileExists(yamlPath) {
		return c.loadYAML(yamlPath)
	}
	ymlPath := filepath.Join(dir, ".docsearch.yml")
	if fileExists(ymlPath) {
		return c.loadYAML(ymlPath)
	}
	return nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if len(other.Paths.DocsRoots) > 0 {
		c.Paths.DocsRoots = other.Paths.DocsRoots
	}
	if len(other.Paths.Exclude) > 0 {
		c.Paths.Exclude = append(c.Paths.Exclude, other.Paths.Exclude...)
	}
	if other.Paths.EmbeddedDBPath != "" {
		c.Paths.EmbeddedDBPath = other.Paths.EmbeddedDBPath
	}

	if other.Search.CollectionName != "" {
		c.Search.CollectionName = other.Search.CollectionName
	}
	if other.Search.VectorBackend != "" {
		c.Search.VectorBackend = other.Search.VectorBackend
	}
	if other.Search.RemoteURL != "" {
		c.Search.RemoteURL = other.Search.RemoteURL
	}
	if other.Search.MaxResults != 0 {
		c.Search.MaxResults = other.Search.MaxResults
	}
	if other.Search.RankWeights != (RankWeightsConfig{}) {
		c.Search.RankWeights = other.Search.RankWeights
	}

	if other.Embeddings.ModelID != "" {
		c.Embeddings.ModelID = other.Embeddings.ModelID
	}
	if other.Embeddings.ModelCacheDir != "" {
		c.Embeddings.ModelCacheDir = other.Embeddings.ModelCacheDir
	}
	if other.Embeddings.BatchSize != 0 {
		c.Embeddings.BatchSize = other.Embeddings.BatchSize
	}
	if other.Embeddings.CacheSize != 0 {
		c.Embeddings.CacheSize = other.Embeddings.CacheSize
	}

	if other.Chunking.TargetTokens != 0 {
		c.Chunking.TargetTokens = other.Chunking.TargetTokens
	}
	if other.Chunking.OverlapTokens != 0 {
		c.Chunking.OverlapTokens = other.Chunking.OverlapTokens
	}
	if other.Chunking.MaxTokens != 0 {
		c.Chunking.MaxTokens = other.Chunking.MaxTokens
	}
	if other.Chunking.MaxHeadingDepth != 0 {
		c.Chunking.MaxHeadingDepth = other.Chunking.MaxHeadingDepth
	}
	// KeepCodeFences/KeepTables default true and stay true through the
	// merge layers: a YAML layer that omits them decodes them as false,
	// which is indistinguishable from an explicit opt-out, so the merge
	// only ever turns them on.
	c.Chunking.KeepCodeFences = other.Chunking.KeepCodeFences || c.Chunking.KeepCodeFences
	c.Chunking.KeepTables = other.Chunking.KeepTables || c.Chunking.KeepTables

	if other.Performance.IndexWorkers != 0 {
		c.Performance.IndexWorkers = other.Performance.IndexWorkers
	}
	if other.Performance.DebounceMS != 0 {
		c.Performance.DebounceMS = other.Performance.DebounceMS
	}
	if other.Performance.EventQueueCap != 0 {
		c.Performance.EventQueueCap = other.Performance.EventQueueCap
	}
	if other.Performance.CacheSize != 0 {
		c.Performance.CacheSize = other.Performance.CacheSize
	}
	if other.Performance.Quantization != "" {
		c.Performance.Quantization = other.Performance.Quantization
	}

	if other.Server.ListenAddr != "" {
		c.Server.ListenAddr = other.Server.ListenAddr
	}
	if other.Server.AllowNonLocalBind {
		c.Server.AllowNonLocalBind = true
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
	if other.Server.JSONRPCPath != "" {
		c.Server.JSONRPCPath = other.Server.JSONRPCPath
	}
}

// applyEnvOverrides applies DOCSEARCH_* environment variable overrides,
// the highest-precedence layer.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DOCSEARCH_COLLECTION_NAME"); v != "" {
		c.Search.CollectionName = v
	}
	if v := os.Getenv("DOCSEARCH_VECTOR_BACKEND"); v != "" {
		c.Search.VectorBackend = v
	}
	if v := os.Getenv("DOCSEARCH_REMOTE_URL"); v != "" {
		c.Search.RemoteURL = v
	}
	if v := os.Getenv("DOCSEARCH_EMBEDDED_DB_PATH"); v != "" {
		c.Paths.EmbeddedDBPath = v
	}
	if v := os.Getenv("DOCSEARCH_EMBEDDING_MODEL_ID"); v != "" {
		c.Embeddings.ModelID = v
	}
	if v := os.Getenv("DOCSEARCH_MODEL_CACHE_DIR"); v != "" {
		c.Embeddings.ModelCacheDir = v
	}
	if v := os.Getenv("DOCSEARCH_EMBEDDING_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Embeddings.BatchSize = n
		}
	}
	if v := os.Getenv("DOCSEARCH_LISTEN_ADDR"); v != "" {
		c.Server.ListenAddr = v
	}
	if v := os.Getenv("DOCSEARCH_ALLOW_NON_LOCAL_BIND"); v != "" {
		c.Server.AllowNonLocalBind = strings.ToLower(v) == "true" || v == "1"
	}
	if v := os.Getenv("DOCSEARCH_DEBOUNCE_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Performance.DebounceMS = n
		}
	}
	if v := os.Getenv("DOCSEARCH_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
}

// DiscoverDocsDirs discovers plausible documentation roots under dir when
// no docs_paths are configured: a top-level docs/doc directory, falling
// back to the directory itself if it directly contains a README.
func DiscoverDocsDirs(dir string) []string {
	var found []string
	for _, d := range []string{"docs", "doc"} {
		if dirExists(filepath.Join(dir, d)) {
			found = append(found, d)
		}
	}
	if len(found) == 0 {
		for _, f := range []string{"README.md", "readme.md", "README.markdown"} {
			if fileExists(filepath.Join(dir, f)) {
				found = append(found, ".")
				break
			}
		}
	}
	return found
}

// FindProjectRoot walks up from startDir looking for a .git directory or a
// .docsearch.yaml/.yml file, falling back to startDir itself.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}
	current := absDir
	for {
		if dirExists(filepath.Join(current, ".git")) {
			return current, nil
		}
		if fileExists(filepath.Join(current, ".docsearch.yaml")) || fileExists(filepath.Join(current, ".docsearch.yml")) {
			return current, nil
		}
		parent := filepath.Dir(current)
		if parent == current {
			return absDir, nil
		}
		current = parent
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// Validate checks the configuration's documented constraints.
func (c *Config) Validate() error {
	if len(c.Paths.DocsRoots) == 0 {
		return fmt.Errorf("paths.docs_paths must name at least one directory")
	}
	if c.Search.MaxResults < 0 {
		return fmt.Errorf("search.max_results must be non-negative, got %d", c.Search.MaxResults)
	}

	backend := strings.ToLower(c.Search.VectorBackend)
	validBackends := map[string]bool{"embedded": true, "remote": true}
	if !validBackends[backend] {
		return fmt.Errorf("search.vector_backend must be 'embedded' or 'remote', got %s", c.Search.VectorBackend)
	}
	if backend == "remote" && c.Search.RemoteURL == "" {
		return fmt.Errorf("search.remote_url must be set when vector_backend is 'remote'")
	}

	if c.Chunking.TargetTokens <= 0 {
		return fmt.Errorf("chunking.target_tokens must be positive, got %d", c.Chunking.TargetTokens)
	}
	if c.Chunking.MaxTokens < c.Chunking.TargetTokens {
		return fmt.Errorf("chunking.max_tokens (%d) must be >= chunking.target_tokens (%d)", c.Chunking.MaxTokens, c.Chunking.TargetTokens)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}
	if !c.Server.AllowNonLocalBind {
		host, _, err := splitHostPort(c.Server.ListenAddr)
		if err == nil && !isLoopback(host) {
			return fmt.Errorf("server.listen_addr %q binds a non-local interface; set server.allow_non_local_bind to allow this", c.Server.ListenAddr)
		}
	}

	return nil
}

func splitHostPort(addr string) (host, port string, err error) {
	idx := strings.LastIndex(addr, ":")
	if idx < 0 {
		return addr, "", nil
	}
	return addr[:idx], addr[idx+1:], nil
}

func isLoopback(host string) bool {
	if host == "" || host == "localhost" {
		return true
	}
	return host == "127.0.0.1" || host == "::1"
}

// WriteYAML writes the configuration to path.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// LoadUserConfig loads the user/global configuration file. Returns a nil
// config and nil error if the file doesn't exist.
func LoadUserConfig() (*Config, error) {
	return loadUserConfig()
}
