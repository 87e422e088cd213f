package searcher

import (
	"context"
	"sort"

	"github.com/dshills/toolsearch-mcp/pkg/types"
)

// Mode names a ranking strategy
type Mode string

const (
	ModePattern   Mode = "pattern"   // Case-insensitive regular expression
	ModeBM25      Mode = "bm25"      // Lexical BM25
	ModeEmbedding Mode = "embedding" // Cosine similarity over stored vectors
	ModeHybrid    Mode = "hybrid"    // BM25 + embedding fused with RRF
)

// Query is what a strategy ranks a collection against
type Query struct {
	Text  string
	Limit int // Maximum results to return; <= 0 means no limit
}

// Strategy ranks the tools of a collection for a query.
//
// Initialize and Dispose are called by the Searcher at most once each.
// Search must not mutate the collection.
type Strategy interface {
	Initialize(ctx context.Context) error
	Search(ctx context.Context, q Query, c *types.Collection) ([]types.SearchResult, error)
	Dispose(ctx context.Context) error
}

// scoredTool is an intermediate ranking entry
type scoredTool struct {
	tool  *types.IndexedTool
	score float64
}

// sortScored orders by score descending, then name, then server name
func sortScored(entries []scoredTool) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.tool.Tool.Name != b.tool.Tool.Name {
			return a.tool.Tool.Name < b.tool.Tool.Name
		}
		return a.tool.ServerName < b.tool.ServerName
	})
}

// toResults sorts entries and converts the first limit of them
func toResults(entries []scoredTool, limit int) []types.SearchResult {
	sortScored(entries)

	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}

	results := make([]types.SearchResult, len(entries))
	for i, e := range entries {
		results[i] = types.SearchResult{
			Tool:  e.tool.Reference(),
			Score: e.score,
		}
	}
	return results
}

// noopLifecycle is embedded by strategies with nothing to set up or release
type noopLifecycle struct{}

func (noopLifecycle) Initialize(ctx context.Context) error { return nil }
func (noopLifecycle) Dispose(ctx context.Context) error    { return nil }
