package searcher

import (
	"context"
	"fmt"
	"regexp"

	"github.com/dshills/toolsearch-mcp/pkg/types"
)

// PatternStrategy matches a case-insensitive regular expression against the
// searchable text of each tool. Every match scores 1.0.
type PatternStrategy struct {
	noopLifecycle
}

// NewPatternStrategy creates a pattern strategy
func NewPatternStrategy() *PatternStrategy {
	return &PatternStrategy{}
}

// Search returns every tool whose searchable text matches q.Text
func (s *PatternStrategy) Search(ctx context.Context, q Query, c *types.Collection) ([]types.SearchResult, error) {
	re, err := regexp.Compile("(?i)" + q.Text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidQuery, err)
	}

	var matches []scoredTool
	for i := range c.Tools {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tool := &c.Tools[i]
		if re.MatchString(tool.SearchableText) {
			matches = append(matches, scoredTool{tool: tool, score: 1.0})
		}
	}

	return toResults(matches, q.Limit), nil
}
