package searcher

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/dshills/toolsearch-mcp/internal/embedder"
	"github.com/dshills/toolsearch-mcp/pkg/types"
)

// DefaultEmbedTimeout bounds a single query embedding call
const DefaultEmbedTimeout = 30 * time.Second

// SemanticStrategy ranks tools by cosine similarity between the query
// embedding and each stored embedding, mapped to [0, 1] as (cos+1)/2.
//
// Initialize and Dispose reach the provider at most once each, so one
// strategy can back several modes.
type SemanticStrategy struct {
	provider embedder.Provider
	timeout  time.Duration

	mu          sync.Mutex
	initialized bool
	disposed    bool
}

// SemanticOption configures a SemanticStrategy
type SemanticOption func(*SemanticStrategy)

// WithEmbedTimeout overrides DefaultEmbedTimeout. Zero disables the timeout.
func WithEmbedTimeout(d time.Duration) SemanticOption {
	return func(s *SemanticStrategy) {
		s.timeout = d
	}
}

// NewSemanticStrategy creates a semantic strategy. provider may be nil, in
// which case every search fails.
func NewSemanticStrategy(provider embedder.Provider, opts ...SemanticOption) *SemanticStrategy {
	s := &SemanticStrategy{
		provider: provider,
		timeout:  DefaultEmbedTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initialize initializes the provider on the first call
func (s *SemanticStrategy) Initialize(ctx context.Context) error {
	if s.provider == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return fmt.Errorf("%w: %s already disposed", types.ErrProviderFailure, s.provider.Name())
	}
	if s.initialized {
		return nil
	}
	if err := s.provider.Initialize(ctx); err != nil {
		return fmt.Errorf("%w: initialize %s: %v", types.ErrProviderFailure, s.provider.Name(), err)
	}
	s.initialized = true
	return nil
}

// Dispose disposes the provider on the first call. The strategy owns the
// provider, so this happens even if no search ever initialized it.
func (s *SemanticStrategy) Dispose(ctx context.Context) error {
	if s.provider == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return nil
	}
	s.disposed = true
	s.initialized = false
	return s.provider.Dispose(ctx)
}

// CheckEmbeddings reports whether the collection carries vectors usable
// with this strategy's provider. It does no provider I/O.
func (s *SemanticStrategy) CheckEmbeddings(c *types.Collection) error {
	if !c.HasEmbeddings {
		return fmt.Errorf("%w: index was built without embeddings", types.ErrMissingEmbeddings)
	}
	if s.provider == nil {
		return fmt.Errorf("%w: no embedding provider configured", types.ErrProviderFailure)
	}

	dims := s.provider.Dimensions()
	var found bool
	for i := range c.Tools {
		emb := c.Tools[i].Embedding
		if emb == nil {
			continue
		}
		found = true
		if len(emb) != dims {
			return fmt.Errorf("%w: %s has %d dimensions, provider %s produces %d",
				types.ErrMissingEmbeddings, c.Tools[i].Name(), len(emb), s.provider.Name(), dims)
		}
	}
	if !found {
		return fmt.Errorf("%w: no tool carries an embedding", types.ErrMissingEmbeddings)
	}
	return nil
}

// Search embeds the query and ranks every tool that has a stored embedding
func (s *SemanticStrategy) Search(ctx context.Context, q Query, c *types.Collection) ([]types.SearchResult, error) {
	if err := s.CheckEmbeddings(c); err != nil {
		return nil, err
	}

	queryVec, err := s.embedQuery(ctx, q.Text)
	if err != nil {
		return nil, err
	}

	entries := make([]scoredTool, 0, len(c.Tools))
	for i := range c.Tools {
		tool := &c.Tools[i]
		if tool.Embedding == nil {
			continue
		}
		cos := CosineSimilarity(queryVec, tool.Embedding)
		entries = append(entries, scoredTool{tool: tool, score: (cos + 1) / 2})
	}

	return toResults(entries, q.Limit), nil
}

func (s *SemanticStrategy) embedQuery(ctx context.Context, text string) ([]float32, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	vec, err := s.provider.Embed(ctx, text)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s timed out after %s", types.ErrProviderFailure, s.provider.Name(), s.timeout)
		}
		return nil, fmt.Errorf("%w: %s: %v", types.ErrProviderFailure, s.provider.Name(), err)
	}
	if len(vec) != s.provider.Dimensions() {
		return nil, fmt.Errorf("%w: query embedding has %d dimensions, want %d",
			types.ErrProviderFailure, len(vec), s.provider.Dimensions())
	}
	return vec, nil
}

// CosineSimilarity computes the cosine of the angle between a and b.
// Zero-norm vectors and vectors of different lengths have similarity 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	cos := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// Rounding can push the result just outside [-1, 1]
	return math.Max(-1, math.Min(1, cos))
}
