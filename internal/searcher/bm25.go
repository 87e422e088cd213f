package searcher

import (
	"context"
	"math"

	"github.com/dshills/toolsearch-mcp/internal/tokenizer"
	"github.com/dshills/toolsearch-mcp/pkg/types"
)

// BM25 parameters
const (
	DefaultK1 = 1.2
	DefaultB  = 0.75
)

// BM25Strategy ranks tools with Okapi BM25 using the collection's corpus
// statistics. Raw scores are divided by the best raw score so the top
// result scores 1.0.
type BM25Strategy struct {
	noopLifecycle
	K1 float64
	B  float64
}

// NewBM25Strategy creates a BM25 strategy with k1=1.2 and b=0.75
func NewBM25Strategy() *BM25Strategy {
	return &BM25Strategy{K1: DefaultK1, B: DefaultB}
}

// IDF returns ln(1 + (n - df + 0.5) / (df + 0.5)).
// It is finite and positive for every df in [0, n].
func IDF(n, df int) float64 {
	return math.Log(1 + (float64(n)-float64(df)+0.5)/(float64(df)+0.5))
}

// Search scores every tool in the collection. Tools sharing no term with
// the query are kept with score 0.
func (s *BM25Strategy) Search(ctx context.Context, q Query, c *types.Collection) ([]types.SearchResult, error) {
	terms := tokenizer.Tokenize(q.Text)
	if len(terms) == 0 {
		return []types.SearchResult{}, nil
	}

	idf := make(map[string]float64, len(terms))
	for _, term := range tokenizer.Unique(terms) {
		idf[term] = IDF(c.Stats.TotalDocuments, c.Stats.DocumentFrequencies[term])
	}

	avgLen := c.Stats.AvgDocLength
	if avgLen <= 0 {
		avgLen = 1
	}

	entries := make([]scoredTool, len(c.Tools))
	var maxScore float64
	for i := range c.Tools {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tool := &c.Tools[i]
		score := s.score(terms, idf, documentTokens(tool), avgLen)
		entries[i] = scoredTool{tool: tool, score: score}
		if score > maxScore {
			maxScore = score
		}
	}

	if maxScore > 0 {
		for i := range entries {
			entries[i].score /= maxScore
		}
	}

	return toResults(entries, q.Limit), nil
}

// score sums the BM25 contribution of each query term.
// Repeated query terms contribute once per occurrence.
func (s *BM25Strategy) score(terms []string, idf map[string]float64, doc []string, avgLen float64) float64 {
	if len(doc) == 0 {
		return 0
	}

	tf := tokenizer.TermFrequencies(doc)
	norm := s.K1 * (1 - s.B + s.B*float64(len(doc))/avgLen)

	var total float64
	for _, term := range terms {
		f := float64(tf[term])
		if f == 0 {
			continue
		}
		total += idf[term] * (f * (s.K1 + 1)) / (f + norm)
	}
	return total
}

// documentTokens returns the stored tokens, tokenizing the searchable text
// for tools built without them
func documentTokens(tool *types.IndexedTool) []string {
	if tool.Tokens != nil {
		return tool.Tokens
	}
	return tokenizer.Tokenize(tool.SearchableText)
}
