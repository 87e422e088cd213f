package embedder

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
)

// Environment variables consulted by Detect
const (
	EnvProvider     = "TOOLSEARCH_EMBEDDING_PROVIDER"
	EnvJinaAPIKey   = "JINA_API_KEY"
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
)

// Config holds embedder configuration
type Config struct {
	Provider  string
	APIKey    string
	Endpoint  string // Optional: override the provider's default endpoint
	CacheSize int
}

// Factory builds a provider from configuration
type Factory func(cfg Config, cache *Cache) (Provider, error)

// Registry maps provider names to factories. One registry is built at
// startup and passed to whatever needs to construct providers.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates a registry with the jina, openai and local providers
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}

	r.Register(ProviderJina, func(cfg Config, cache *Cache) (Provider, error) {
		p, err := NewJinaProvider(cfg.APIKey, cache)
		if err != nil {
			return nil, err
		}
		if cfg.Endpoint != "" {
			p.WithEndpoint(cfg.Endpoint)
		}
		return p, nil
	})
	r.Register(ProviderOpenAI, func(cfg Config, cache *Cache) (Provider, error) {
		p, err := NewOpenAIProvider(cfg.APIKey, cache)
		if err != nil {
			return nil, err
		}
		if cfg.Endpoint != "" {
			p.WithEndpoint(cfg.Endpoint)
		}
		return p, nil
	})
	r.Register(ProviderLocal, func(cfg Config, cache *Cache) (Provider, error) {
		return NewLocalProvider(cache)
	})

	return r
}

// Register adds or replaces the factory for name
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[strings.ToLower(name)] = factory
}

// Names returns the registered provider names in sorted order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether name is registered
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[strings.ToLower(name)]
	return ok
}

// New creates a provider with explicit configuration
func (r *Registry) New(cfg Config) (Provider, error) {
	name := strings.ToLower(cfg.Provider)

	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, cfg.Provider)
	}

	var cache *Cache
	if cfg.CacheSize > 0 {
		cache = NewCache(cfg.CacheSize)
	}

	return factory(cfg, cache)
}

// Detect fills in the provider name and API key from the environment when
// cfg leaves them empty.
// Priority:
// 1. cfg.Provider, then TOOLSEARCH_EMBEDDING_PROVIDER
// 2. Check for API keys: JINA_API_KEY, OPENAI_API_KEY
// 3. Default to local if no API keys found
func Detect(cfg Config) Config {
	if cfg.Provider == "" {
		cfg.Provider = os.Getenv(EnvProvider)
	}

	jinaKey := os.Getenv(EnvJinaAPIKey)
	openaiKey := os.Getenv(EnvOpenAIAPIKey)

	if cfg.Provider == "" {
		switch {
		case jinaKey != "":
			cfg.Provider = ProviderJina
		case openaiKey != "":
			cfg.Provider = ProviderOpenAI
		default:
			cfg.Provider = ProviderLocal
		}
	}
	cfg.Provider = strings.ToLower(cfg.Provider)

	if cfg.APIKey == "" {
		switch cfg.Provider {
		case ProviderJina:
			cfg.APIKey = jinaKey
		case ProviderOpenAI:
			cfg.APIKey = openaiKey
		}
	}

	return cfg
}
