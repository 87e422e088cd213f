// Package config loads toolsearch configuration: built-in defaults, then an
// optional TOML file, then environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/dshills/toolsearch-mcp/internal/embedder"
	"github.com/dshills/toolsearch-mcp/internal/indexer"
	"github.com/dshills/toolsearch-mcp/internal/scope"
	"github.com/dshills/toolsearch-mcp/internal/searcher"
)

// Environment variables
const (
	EnvConfigPath   = "TOOLSEARCH_CONFIG"
	EnvProjectIndex = "TOOLSEARCH_PROJECT_INDEX"
	EnvUserIndex    = "TOOLSEARCH_USER_INDEX"
	EnvDBPath       = "TOOLSEARCH_DB_PATH"
)

// ProviderNone disables embeddings; only pattern and bm25 searches work
const ProviderNone = "none"

// Defaults
const (
	DefaultDirName         = ".toolsearch"
	DefaultConfigFile      = "config.toml"
	DefaultIndexFile       = "index.json"
	DefaultDBFile          = "toolsearch.db"
	DefaultEmbedCacheSize  = 10000
	DefaultResultCacheSize = 100
)

// Config is the complete runtime configuration
type Config struct {
	Index     IndexConfig     `toml:"index"`
	Storage   StorageConfig   `toml:"storage"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Search    SearchConfig    `toml:"search"`
	Indexer   IndexerConfig   `toml:"indexer"`

	path string
}

// IndexConfig locates the index file of each scope
type IndexConfig struct {
	ProjectPath string `toml:"project_path"`
	UserPath    string `toml:"user_path"`
}

// StorageConfig locates the SQLite store. An empty path disables it.
type StorageConfig struct {
	Path string `toml:"path"`
}

// EmbeddingConfig selects the embedding provider. An empty provider is
// detected from the environment.
type EmbeddingConfig struct {
	Provider  string   `toml:"provider"`
	APIKey    string   `toml:"api_key"`
	Endpoint  string   `toml:"endpoint"`
	CacheSize int      `toml:"cache_size"`
	Timeout   Duration `toml:"timeout"`
}

// SearchConfig holds request defaults and the result cache
type SearchConfig struct {
	Mode      string   `toml:"mode"`
	TopK      int      `toml:"top_k"`
	Threshold float64  `toml:"threshold"`
	CacheSize int      `toml:"cache_size"`
	CacheTTL  Duration `toml:"cache_ttl"`
}

// IndexerConfig tunes index builds
type IndexerConfig struct {
	Workers   int `toml:"workers"`
	BatchSize int `toml:"batch_size"`
}

// Duration is a time.Duration written as a string such as "30s" in TOML
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Default returns the built-in configuration
func Default() *Config {
	home := homeDir()
	cfg := &Config{
		Index: IndexConfig{
			ProjectPath: filepath.Join(DefaultDirName, DefaultIndexFile),
		},
		Embedding: EmbeddingConfig{
			CacheSize: DefaultEmbedCacheSize,
			Timeout:   Duration(searcher.DefaultEmbedTimeout),
		},
		Search: SearchConfig{
			Mode:      string(searcher.DefaultMode),
			TopK:      searcher.DefaultTopK,
			CacheSize: DefaultResultCacheSize,
			CacheTTL:  Duration(searcher.DefaultCacheTTL),
		},
		Indexer: IndexerConfig{
			BatchSize: embedder.DefaultBatchSize,
		},
	}
	if home != "" {
		cfg.Index.UserPath = filepath.Join(home, DefaultDirName, DefaultIndexFile)
		cfg.Storage.Path = filepath.Join(home, DefaultDirName, DefaultDBFile)
	}
	return cfg
}

// DefaultPath returns the config file read when none is given
func DefaultPath() string {
	home := homeDir()
	if home == "" {
		return ""
	}
	return filepath.Join(home, DefaultDirName, DefaultConfigFile)
}

// Load builds the configuration. An explicit path (argument or
// TOOLSEARCH_CONFIG) must exist; the default path is optional.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	cfg := Default()

	if path != "" {
		if err := cfg.readFile(path, explicit); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()
	cfg.expandPaths()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) readFile(path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if !required {
				return nil
			}
			return &ConfigNotFoundError{
				Path: path,
				Hint: "create the file or unset " + EnvConfigPath,
			}
		}
		return fmt.Errorf("failed to read config: %w", err)
	}

	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(c); err != nil {
		return &InvalidConfigError{
			Path:    path,
			Message: fmt.Sprintf("TOML parse error: %v", err),
		}
	}

	c.path = path
	return nil
}

// applyEnv overrides file values with environment variables
func (c *Config) applyEnv() {
	if v := os.Getenv(EnvProjectIndex); v != "" {
		c.Index.ProjectPath = v
	}
	if v := os.Getenv(EnvUserIndex); v != "" {
		c.Index.UserPath = v
	}
	if v, ok := os.LookupEnv(EnvDBPath); ok {
		c.Storage.Path = v
	}
	if v := os.Getenv(embedder.EnvProvider); v != "" {
		c.Embedding.Provider = v
	}
	c.Embedding.Provider = strings.ToLower(strings.TrimSpace(c.Embedding.Provider))
}

func (c *Config) expandPaths() {
	c.Index.ProjectPath = expandHome(c.Index.ProjectPath)
	c.Index.UserPath = expandHome(c.Index.UserPath)
	if c.Storage.Path != ":memory:" {
		c.Storage.Path = expandHome(c.Storage.Path)
	}
}

// Path returns the file the configuration was read from, if any
func (c *Config) Path() string {
	return c.path
}

// Validate rejects unknown modes and providers and out-of-range values
func (c *Config) Validate() error {
	invalid := func(field, format string, args ...interface{}) error {
		return &InvalidConfigError{Path: c.path, Field: field, Message: fmt.Sprintf(format, args...)}
	}

	switch searcher.Mode(c.Search.Mode) {
	case searcher.ModePattern, searcher.ModeBM25, searcher.ModeEmbedding, searcher.ModeHybrid:
	default:
		return &InvalidConfigError{
			Path:    c.path,
			Field:   "search.mode",
			Message: fmt.Sprintf("unknown mode %q", c.Search.Mode),
			Hint:    "use one of pattern, bm25, embedding, hybrid",
		}
	}
	if c.Search.TopK < 0 {
		return invalid("search.top_k", "must not be negative, got %d", c.Search.TopK)
	}
	if math.IsNaN(c.Search.Threshold) || c.Search.Threshold < 0 || c.Search.Threshold > 1 {
		return invalid("search.threshold", "must be between 0 and 1, got %v", c.Search.Threshold)
	}
	if c.Search.CacheSize < 0 {
		return invalid("search.cache_size", "must not be negative")
	}
	if c.Search.CacheTTL < 0 {
		return invalid("search.cache_ttl", "must not be negative")
	}

	if p := c.Embedding.Provider; p != "" && p != ProviderNone && !embedder.NewRegistry().Has(p) {
		return &InvalidConfigError{
			Path:    c.path,
			Field:   "embedding.provider",
			Message: fmt.Sprintf("unknown provider %q", p),
			Hint:    "use one of " + strings.Join(embedder.NewRegistry().Names(), ", ") + " or " + ProviderNone,
		}
	}
	if c.Embedding.CacheSize < 0 {
		return invalid("embedding.cache_size", "must not be negative")
	}
	if c.Embedding.Timeout < 0 {
		return invalid("embedding.timeout", "must not be negative")
	}

	if c.Indexer.Workers < 0 {
		return invalid("indexer.workers", "must not be negative")
	}
	if c.Indexer.BatchSize < 0 || c.Indexer.BatchSize > embedder.MaxBatchSize {
		return invalid("indexer.batch_size", "must be between 0 and %d", embedder.MaxBatchSize)
	}

	return nil
}

// EmbeddingsEnabled reports whether a provider should be constructed
func (c *Config) EmbeddingsEnabled() bool {
	return c.Embedding.Provider != ProviderNone
}

// EmbedderConfig returns the provider configuration with the provider name
// and API key detected from the environment where unset
func (c *Config) EmbedderConfig() embedder.Config {
	return embedder.Detect(embedder.Config{
		Provider:  c.Embedding.Provider,
		APIKey:    c.Embedding.APIKey,
		Endpoint:  c.Embedding.Endpoint,
		CacheSize: c.Embedding.CacheSize,
	})
}

// SearcherOptions returns the searcher options for provider
func (c *Config) SearcherOptions(provider embedder.Provider) searcher.Options {
	return searcher.Options{
		Provider:     provider,
		EmbedTimeout: c.Embedding.Timeout.Std(),
		CacheSize:    c.Search.CacheSize,
		CacheTTL:     c.Search.CacheTTL.Std(),
	}
}

// IndexerConfig returns the index build configuration
func (c *Config) IndexerConfig() *indexer.Config {
	return &indexer.Config{
		Workers:   c.Indexer.Workers,
		BatchSize: c.Indexer.BatchSize,
	}
}

// ScopePath returns the index file path of a scope
func (c *Config) ScopePath(name string) (string, error) {
	switch name {
	case scope.Project:
		return c.Index.ProjectPath, nil
	case scope.User:
		if c.Index.UserPath == "" {
			return "", errors.New("user index path is not configured")
		}
		return c.Index.UserPath, nil
	default:
		return "", fmt.Errorf("unknown scope %q", name)
	}
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return home
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home := homeDir(); home != "" {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
