package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/dshills/toolsearch-mcp/internal/tokenizer"
)

// Provider configuration
const (
	ProviderJina   = "jina"
	ProviderOpenAI = "openai"
	ProviderLocal  = "local"

	// Default models
	DefaultJinaModel   = "jina-embeddings-v3"
	DefaultOpenAIModel = "text-embedding-3-small"
	DefaultLocalModel  = "local-feature-hash"

	// Endpoints
	JinaEndpoint   = "https://api.jina.ai/v1/embeddings"
	OpenAIEndpoint = "https://api.openai.com/v1/embeddings"

	// Dimensions
	JinaDimension   = 1024
	OpenAIDimension = 1536
	LocalDimension  = 384

	// Batch limits
	DefaultBatchSize = 50
	MaxBatchSize     = 100

	// Retry configuration
	MaxRetries        = 3
	InitialBackoffMs  = 100
	MaxBackoffMs      = 5000
	BackoffMultiplier = 2.0
)

// lifecycle tracks Initialize/Dispose so both run their body at most once
type lifecycle struct {
	mu       sync.Mutex
	ready    bool
	disposed bool
}

func (l *lifecycle) initialize(fn func() error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.disposed {
		return ErrDisposed
	}
	if l.ready {
		return nil
	}
	if fn != nil {
		if err := fn(); err != nil {
			return err
		}
	}
	l.ready = true
	return nil
}

func (l *lifecycle) dispose(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.disposed {
		return
	}
	l.disposed = true
	l.ready = false
	if fn != nil {
		fn()
	}
}

func (l *lifecycle) check() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch {
	case l.disposed:
		return ErrDisposed
	case !l.ready:
		return ErrNotInitialized
	}
	return nil
}

// APIProvider implements Provider against an OpenAI-compatible embeddings
// endpoint. Jina AI and OpenAI share the request and response format.
type APIProvider struct {
	name       string
	endpoint   string
	apiKey     string
	model      string
	dimensions int
	httpClient *http.Client
	cache      *Cache
	retry      RetryConfig
	life       lifecycle
}

// NewJinaProvider creates a new Jina AI embedder
func NewJinaProvider(apiKey string, cache *Cache) (*APIProvider, error) {
	if apiKey == "" {
		apiKey = os.Getenv(EnvJinaAPIKey)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, EnvJinaAPIKey)
	}

	return newAPIProvider(ProviderJina, JinaEndpoint, apiKey, DefaultJinaModel, JinaDimension, cache), nil
}

// NewOpenAIProvider creates a new OpenAI embedder
func NewOpenAIProvider(apiKey string, cache *Cache) (*APIProvider, error) {
	if apiKey == "" {
		apiKey = os.Getenv(EnvOpenAIAPIKey)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, EnvOpenAIAPIKey)
	}

	return newAPIProvider(ProviderOpenAI, OpenAIEndpoint, apiKey, DefaultOpenAIModel, OpenAIDimension, cache), nil
}

func newAPIProvider(name, endpoint, apiKey, model string, dimensions int, cache *Cache) *APIProvider {
	return &APIProvider{
		name:       name,
		endpoint:   endpoint,
		apiKey:     apiKey,
		model:      model,
		dimensions: dimensions,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		cache: cache,
		retry: DefaultRetryConfig(),
	}
}

// WithEndpoint points the provider at a different OpenAI-compatible endpoint
func (p *APIProvider) WithEndpoint(endpoint string) *APIProvider {
	p.endpoint = endpoint
	return p
}

// WithRetry replaces the retry policy
func (p *APIProvider) WithRetry(cfg RetryConfig) *APIProvider {
	p.retry = cfg
	return p
}

func (p *APIProvider) Name() string    { return p.name }
func (p *APIProvider) Dimensions() int { return p.dimensions }
func (p *APIProvider) Model() string   { return p.model }

func (p *APIProvider) Initialize(ctx context.Context) error {
	return p.life.initialize(func() error {
		if p.apiKey == "" {
			return fmt.Errorf("%w: %s API key missing", ErrNoProviderEnabled, p.name)
		}
		return ctx.Err()
	})
}

func (p *APIProvider) Dispose(ctx context.Context) error {
	p.life.dispose(p.httpClient.CloseIdleConnections)
	return nil
}

func (p *APIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ValidateText(text); err != nil {
		return nil, err
	}

	vectors, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}

	if len(vectors) == 0 {
		return nil, fmt.Errorf("%w: no embeddings returned", ErrProviderFailed)
	}

	return vectors[0], nil
}

func (p *APIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := p.life.check(); err != nil {
		return nil, err
	}
	if err := ValidateBatch(texts); err != nil {
		return nil, err
	}
	if len(texts) > MaxBatchSize {
		return nil, fmt.Errorf("%w: max %d texts allowed", ErrBatchTooLarge, MaxBatchSize)
	}

	out := make([][]float32, len(texts))
	var missing []int
	for i, text := range texts {
		if p.cache != nil {
			if vec, ok := p.cache.Get(ComputeHash(text)); ok {
				out[i] = vec
				continue
			}
		}
		missing = append(missing, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	pending := make([]string, len(missing))
	for j, i := range missing {
		pending[j] = texts[i]
	}

	vectors, err := retryWithBackoff(ctx, p.retry, func() ([][]float32, error) {
		return p.callAPI(ctx, pending)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrProviderFailed, p.name, err)
	}

	for j, i := range missing {
		out[i] = vectors[j]
		if p.cache != nil {
			p.cache.Set(ComputeHash(texts[i]), vectors[j])
		}
	}

	return out, nil
}

func (p *APIProvider) callAPI(ctx context.Context, texts []string) ([][]float32, error) {
	reqBody := map[string]interface{}{
		"input": texts,
		"model": p.model,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, permanent(fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, permanent(fmt.Errorf("create request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		apiErr := fmt.Errorf("api error %d: %s", resp.StatusCode, string(bodyBytes))
		// Client errors other than rate limiting will fail the same way again
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, permanent(apiErr)
		}
		return nil, apiErr
	}

	var apiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
		Model string `json:"model"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if len(apiResp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(apiResp.Data))
	}

	sort.SliceStable(apiResp.Data, func(i, j int) bool {
		return apiResp.Data[i].Index < apiResp.Data[j].Index
	})

	vectors := make([][]float32, len(apiResp.Data))
	for i, data := range apiResp.Data {
		if len(data.Embedding) != p.dimensions {
			return nil, permanent(fmt.Errorf("embedding %d has %d dimensions, want %d", i, len(data.Embedding), p.dimensions))
		}
		vectors[i] = data.Embedding
	}

	return vectors, nil
}

// LocalProvider is an offline provider that feature-hashes tokenizer terms
// into a fixed number of buckets. Texts sharing terms get similar vectors.
type LocalProvider struct {
	dimensions int
	cache      *Cache
	life       lifecycle
}

// NewLocalProvider creates a new local embedder
func NewLocalProvider(cache *Cache) (*LocalProvider, error) {
	return &LocalProvider{
		dimensions: LocalDimension,
		cache:      cache,
	}, nil
}

func (l *LocalProvider) Name() string    { return ProviderLocal }
func (l *LocalProvider) Dimensions() int { return l.dimensions }
func (l *LocalProvider) Model() string   { return DefaultLocalModel }

func (l *LocalProvider) Initialize(ctx context.Context) error {
	return l.life.initialize(nil)
}

func (l *LocalProvider) Dispose(ctx context.Context) error {
	l.life.dispose(func() {
		if l.cache != nil {
			l.cache.Clear()
		}
	})
	return nil
}

func (l *LocalProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := l.life.check(); err != nil {
		return nil, err
	}
	if err := ValidateText(text); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	hash := ComputeHash(text)
	if l.cache != nil {
		if vec, ok := l.cache.Get(hash); ok {
			return vec, nil
		}
	}

	vec := l.hashVector(text)

	if l.cache != nil {
		l.cache.Set(hash, vec)
	}

	return vec, nil
}

func (l *LocalProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ValidateBatch(texts); err != nil {
		return nil, err
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := l.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embedding text %d: %w", i, err)
		}
		vectors[i] = vec
	}

	return vectors, nil
}

// hashVector maps each term to a signed bucket and normalizes the result
func (l *LocalProvider) hashVector(text string) []float32 {
	vector := make([]float32, l.dimensions)
	for _, term := range tokenizer.Tokenize(text) {
		h := xxhash.Sum64String(term)
		bucket := h % uint64(l.dimensions)
		if h>>63 == 1 {
			vector[bucket]--
		} else {
			vector[bucket]++
		}
	}
	return NormalizeVector(vector)
}

// NormalizeVector normalizes a vector to unit length (for cosine similarity)
func NormalizeVector(v []float32) []float32 {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}

	if sum == 0 {
		return v
	}

	norm := float32(math.Sqrt(sum))
	result := make([]float32, len(v))
	for i, val := range v {
		result[i] = val / norm
	}

	return result
}
