package searcher

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/toolsearch-mcp/internal/embedder"
	"github.com/dshills/toolsearch-mcp/pkg/types"
)

// Request defaults
const (
	DefaultMode     = ModeBM25
	DefaultTopK     = 10
	DefaultCacheTTL = 10 * time.Minute
)

// ErrClosed is returned by a Searcher after Close
var ErrClosed = errors.New("searcher closed")

// Request contains parameters for a search operation
type Request struct {
	Query     string
	Mode      Mode    // Default bm25
	TopK      int     // Default 10
	Threshold float64 // Minimum score in [0, 1]
}

// Response contains search results and metadata
type Response struct {
	Results  []types.SearchResult
	Mode     Mode
	Duration time.Duration
	CacheHit bool
}

// Options configures a Searcher
type Options struct {
	// Provider backs the embedding and hybrid modes. Nil leaves both modes
	// registered but failing.
	Provider embedder.Provider

	// EmbedTimeout bounds query embedding; zero uses DefaultEmbedTimeout
	EmbedTimeout time.Duration

	// CacheSize enables an LRU of responses when positive
	CacheSize int
	CacheTTL  time.Duration
}

// cacheEntry represents a cached search response with expiration time
type cacheEntry struct {
	response  *Response
	expiresAt time.Time
}

// registration wraps a strategy with its lazy initialization state
type registration struct {
	strategy    Strategy
	initMu      sync.Mutex
	initialized bool
}

// ensureInitialized runs Initialize once. A failed attempt is retried by
// the next search.
func (r *registration) ensureInitialized(ctx context.Context) error {
	r.initMu.Lock()
	defer r.initMu.Unlock()

	if r.initialized {
		return nil
	}
	if err := r.strategy.Initialize(ctx); err != nil {
		return err
	}
	r.initialized = true
	return nil
}

// Searcher dispatches search requests to registered strategies and applies
// the threshold and topK filter uniformly
type Searcher struct {
	mu         sync.RWMutex
	strategies map[Mode]*registration
	closed     bool

	cache    *lru.Cache[[32]byte, *cacheEntry]
	cacheTTL time.Duration
}

// New creates a Searcher with the pattern, bm25, embedding and hybrid
// modes registered
func New(opts Options) *Searcher {
	var semanticOpts []SemanticOption
	if opts.EmbedTimeout > 0 {
		semanticOpts = append(semanticOpts, WithEmbedTimeout(opts.EmbedTimeout))
	}

	s := &Searcher{
		strategies: make(map[Mode]*registration),
		cacheTTL:   opts.CacheTTL,
	}
	if s.cacheTTL <= 0 {
		s.cacheTTL = DefaultCacheTTL
	}
	if opts.CacheSize > 0 {
		cache, err := lru.New[[32]byte, *cacheEntry](opts.CacheSize)
		if err != nil {
			// This should never happen with valid size parameter
			panic(fmt.Sprintf("failed to create LRU cache: %v", err))
		}
		s.cache = cache
	}

	// One semantic strategy owns the provider for both modes that use it
	lexical := NewBM25Strategy()
	semantic := NewSemanticStrategy(opts.Provider, semanticOpts...)

	s.strategies[ModePattern] = &registration{strategy: NewPatternStrategy()}
	s.strategies[ModeBM25] = &registration{strategy: lexical}
	s.strategies[ModeEmbedding] = &registration{strategy: semantic}
	s.strategies[ModeHybrid] = &registration{strategy: NewHybridStrategy(lexical, semantic)}

	return s
}

// Register adds a strategy under mode, replacing any existing one. A
// replaced strategy that was already initialized is disposed, unless
// another mode still uses it directly or as part of a composite strategy.
func (s *Searcher) Register(ctx context.Context, mode Mode, strategy Strategy) error {
	if mode == "" || strategy == nil {
		return fmt.Errorf("%w: mode and strategy are required", types.ErrInvalidQuery)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	old := s.strategies[mode]
	s.strategies[mode] = &registration{strategy: strategy}
	s.mu.Unlock()

	s.InvalidateCache()

	if old != nil {
		old.initMu.Lock()
		defer old.initMu.Unlock()
		if old.initialized {
			return s.disposeReplaced(ctx, old.strategy)
		}
	}
	return nil
}

// composite is implemented by strategies built from other strategies
type composite interface {
	Parts() []Strategy
}

// disposeReplaced disposes strategy, or for a composite each of its parts,
// skipping anything a current registration still reaches
func (s *Searcher) disposeReplaced(ctx context.Context, strategy Strategy) error {
	s.mu.RLock()
	inUse := s.inUse(strategy)
	s.mu.RUnlock()
	if inUse {
		return nil
	}

	if c, ok := strategy.(composite); ok {
		var errs []error
		for _, part := range c.Parts() {
			if err := s.disposeReplaced(ctx, part); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
	return strategy.Dispose(ctx)
}

// inUse reports whether any registration reaches target. Strategies are
// compared by identity. Callers hold s.mu.
func (s *Searcher) inUse(target Strategy) bool {
	for _, reg := range s.strategies {
		if reaches(reg.strategy, target) {
			return true
		}
	}
	return false
}

func reaches(root, target Strategy) bool {
	if root == target {
		return true
	}
	if c, ok := root.(composite); ok {
		for _, part := range c.Parts() {
			if reaches(part, target) {
				return true
			}
		}
	}
	return false
}

// Modes returns the registered modes in sorted order
func (s *Searcher) Modes() []Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedModes(s.strategies)
}

// Search ranks the collection for req. A nil collection is treated as empty.
func (s *Searcher) Search(ctx context.Context, req Request, c *types.Collection) (*Response, error) {
	startTime := time.Now()

	if err := validateRequest(&req); err != nil {
		return nil, err
	}
	if c == nil {
		c = &types.Collection{}
	}

	s.mu.RLock()
	closed := s.closed
	reg, ok := s.strategies[req.Mode]
	s.mu.RUnlock()

	if closed {
		return nil, ErrClosed
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrUnknownMode, req.Mode)
	}

	// Nothing to match in any mode, and no reason to call the provider
	if strings.TrimSpace(req.Query) == "" {
		return &Response{
			Results:  []types.SearchResult{},
			Mode:     req.Mode,
			Duration: time.Since(startTime),
		}, nil
	}

	// Collections without a fingerprint cannot be told apart, so skip the cache
	useCache := s.cache != nil && c.Fingerprint != 0
	hash := computeQueryHash(req, c.Fingerprint)
	if cached := s.checkCache(useCache, hash); cached != nil {
		cached.CacheHit = true
		cached.Duration = time.Since(startTime)
		return cached, nil
	}

	if err := reg.ensureInitialized(ctx); err != nil {
		return nil, fmt.Errorf("initialize %s: %w", req.Mode, err)
	}

	results, err := reg.strategy.Search(ctx, Query{Text: req.Query, Limit: req.TopK}, c)
	if err != nil {
		return nil, err
	}

	response := &Response{
		Results:  applyFilter(results, req.Threshold, req.TopK),
		Mode:     req.Mode,
		Duration: time.Since(startTime),
	}

	if useCache {
		s.storeInCache(hash, response)
	}

	return response, nil
}

// Close disposes every registered strategy exactly once. Later searches
// fail with ErrClosed.
func (s *Searcher) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	regs := make([]*registration, 0, len(s.strategies))
	for _, mode := range sortedModes(s.strategies) {
		regs = append(regs, s.strategies[mode])
	}
	s.mu.Unlock()

	s.InvalidateCache()

	var errs []error
	for _, reg := range regs {
		if err := reg.strategy.Dispose(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// InvalidateCache drops every cached response
func (s *Searcher) InvalidateCache() {
	if s.cache != nil {
		s.cache.Purge()
	}
}

// validateRequest fills defaults and rejects out-of-range options
func validateRequest(req *Request) error {
	if req.Mode == "" {
		req.Mode = DefaultMode
	}
	if req.TopK < 0 {
		return fmt.Errorf("%w: topK must not be negative, got %d", types.ErrInvalidQuery, req.TopK)
	}
	if req.TopK == 0 {
		req.TopK = DefaultTopK
	}
	if math.IsNaN(req.Threshold) || req.Threshold < 0 || req.Threshold > 1 {
		return fmt.Errorf("%w: threshold must be between 0 and 1, got %v", types.ErrInvalidQuery, req.Threshold)
	}
	return nil
}

// applyFilter clamps scores into [0, 1], drops invalid results and those
// below threshold, and keeps at most topK, preserving order
func applyFilter(results []types.SearchResult, threshold float64, topK int) []types.SearchResult {
	out := make([]types.SearchResult, 0, min(len(results), topK))
	for _, r := range results {
		r.Score = math.Max(0, math.Min(1, r.Score))
		if r.Validate() != nil || r.Score < threshold {
			continue
		}
		out = append(out, r)
		if len(out) == topK {
			break
		}
	}
	return out
}

// checkCache returns a copy of a live cached response, or nil
func (s *Searcher) checkCache(enabled bool, hash [32]byte) *Response {
	if !enabled {
		return nil
	}

	entry, found := s.cache.Get(hash)
	if !found {
		return nil
	}
	if time.Now().After(entry.expiresAt) {
		s.cache.Remove(hash)
		return nil
	}
	return copyResponse(entry.response)
}

// storeInCache saves a copy of response
func (s *Searcher) storeInCache(hash [32]byte, response *Response) {
	s.cache.Add(hash, &cacheEntry{
		response:  copyResponse(response),
		expiresAt: time.Now().Add(s.cacheTTL),
	})
}

// copyResponse creates a deep copy of a Response
func copyResponse(src *Response) *Response {
	dst := *src
	dst.Results = append([]types.SearchResult(nil), src.Results...)
	return &dst
}

// computeQueryHash identifies a request against one tool set
func computeQueryHash(req Request, fingerprint uint64) [32]byte {
	var data strings.Builder
	data.WriteString(req.Query)
	data.WriteString("|")
	data.WriteString(string(req.Mode))
	data.WriteString("|")
	data.WriteString(strconv.Itoa(req.TopK))
	data.WriteString("|")
	data.WriteString(strconv.FormatFloat(req.Threshold, 'g', -1, 64))
	data.WriteString("|")
	data.WriteString(strconv.FormatUint(fingerprint, 16))

	return sha256.Sum256([]byte(data.String()))
}

func sortedModes(m map[Mode]*registration) []Mode {
	modes := make([]Mode, 0, len(m))
	for mode := range m {
		modes = append(modes, mode)
	}
	sort.Slice(modes, func(i, j int) bool { return modes[i] < modes[j] })
	return modes
}
