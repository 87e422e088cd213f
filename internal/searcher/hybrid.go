package searcher

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/toolsearch-mcp/pkg/types"
)

// Hybrid defaults
const (
	DefaultRRFConstant = 60
	DefaultOverfetch   = 3
)

// embeddingChecker is implemented by semantic strategies that can reject a
// collection without doing any I/O
type embeddingChecker interface {
	CheckEmbeddings(c *types.Collection) error
}

// HybridStrategy runs a lexical and a semantic strategy concurrently and
// fuses their rankings with Reciprocal Rank Fusion:
//
//	fused(d) = Σ 1/(K + rank_i(d))
//
// Fused scores are divided by the best fused score.
type HybridStrategy struct {
	Lexical   Strategy
	Semantic  Strategy
	K         int // RRF smoothing constant
	Overfetch int // Each side is asked for Overfetch × limit candidates
}

// NewHybridStrategy creates a hybrid strategy with k=60 and 3× overfetch
func NewHybridStrategy(lexical, semantic Strategy) *HybridStrategy {
	return &HybridStrategy{
		Lexical:   lexical,
		Semantic:  semantic,
		K:         DefaultRRFConstant,
		Overfetch: DefaultOverfetch,
	}
}

// Initialize initializes both sides. Sides shared with other modes must
// tolerate repeated Initialize and Dispose calls.
func (h *HybridStrategy) Initialize(ctx context.Context) error {
	if err := h.Lexical.Initialize(ctx); err != nil {
		return fmt.Errorf("lexical: %w", err)
	}
	if err := h.Semantic.Initialize(ctx); err != nil {
		return fmt.Errorf("semantic: %w", err)
	}
	return nil
}

// Dispose disposes both sides
func (h *HybridStrategy) Dispose(ctx context.Context) error {
	return errors.Join(h.Lexical.Dispose(ctx), h.Semantic.Dispose(ctx))
}

// Parts returns the lexical and semantic sides
func (h *HybridStrategy) Parts() []Strategy {
	return []Strategy{h.Lexical, h.Semantic}
}

// Search fails with ErrMissingEmbeddings before starting either side when
// the collection has no usable vectors. A failure on either side fails the
// whole search.
func (h *HybridStrategy) Search(ctx context.Context, q Query, c *types.Collection) ([]types.SearchResult, error) {
	if !c.HasEmbeddings {
		return nil, fmt.Errorf("%w: hybrid search needs embeddings", types.ErrMissingEmbeddings)
	}
	if checker, ok := h.Semantic.(embeddingChecker); ok {
		if err := checker.CheckEmbeddings(c); err != nil {
			return nil, err
		}
	}

	sub := Query{Text: q.Text}
	if q.Limit > 0 {
		sub.Limit = q.Limit * h.overfetch()
	}

	var lexical, semantic []types.SearchResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		lexical, err = h.Lexical.Search(gctx, sub, c)
		return err
	})
	g.Go(func() error {
		var err error
		semantic, err = h.Semantic.Search(gctx, sub, c)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return h.fuse(c, q.Limit, lexical, semantic), nil
}

// fuse applies RRF to the ranked lists and normalizes by the best score
func (h *HybridStrategy) fuse(c *types.Collection, limit int, lists ...[]types.SearchResult) []types.SearchResult {
	scores, order := RRFScores(h.K, lists...)

	byRef := make(map[types.ToolReference]*types.IndexedTool, len(c.Tools))
	for i := range c.Tools {
		byRef[c.Tools[i].Reference()] = &c.Tools[i]
	}

	entries := make([]scoredTool, 0, len(order))
	var maxScore float64
	for _, ref := range order {
		tool, ok := byRef[ref]
		if !ok {
			continue
		}
		score := scores[ref]
		entries = append(entries, scoredTool{tool: tool, score: score})
		if score > maxScore {
			maxScore = score
		}
	}

	if maxScore > 0 {
		for i := range entries {
			entries[i].score /= maxScore
		}
	}

	return toResults(entries, limit)
}

// RRFScores returns the raw fused score of every tool in lists and the
// order in which tools were first seen. Ranks are 1-based; k <= 0 means 60.
func RRFScores(k int, lists ...[]types.SearchResult) (map[types.ToolReference]float64, []types.ToolReference) {
	if k <= 0 {
		k = DefaultRRFConstant
	}

	scores := make(map[types.ToolReference]float64)
	var order []types.ToolReference
	for _, list := range lists {
		for rank, r := range list {
			if _, seen := scores[r.Tool]; !seen {
				order = append(order, r.Tool)
			}
			scores[r.Tool] += 1.0 / float64(k+rank+1)
		}
	}
	return scores, order
}

func (h *HybridStrategy) overfetch() int {
	if h.Overfetch <= 0 {
		return DefaultOverfetch
	}
	return h.Overfetch
}
