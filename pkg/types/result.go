package types

import (
	"errors"
	"math"
)

// ErrInvalidRelevanceScore is returned by SearchResult.Validate for scores outside [0, 1] or NaN
var ErrInvalidRelevanceScore = errors.New("relevance score must be between 0 and 1")

// ToolReference points at an IndexedTool within a Collection
type ToolReference struct {
	Name       string `json:"name"`
	ServerName string `json:"server"`
}

// SearchResult represents a single ranked tool
type SearchResult struct {
	Tool  ToolReference `json:"tool"`
	Score float64       `json:"score"`
}

// Validate checks if the search result is valid
func (sr *SearchResult) Validate() error {
	if sr.Tool.Name == "" {
		return ErrEmptyToolName
	}

	if math.IsNaN(sr.Score) || sr.Score < 0 || sr.Score > 1 {
		return ErrInvalidRelevanceScore
	}

	return nil
}

// Collection is the read-only view a query runs against: the tools of one
// or more merged scopes and the single statistics object chosen for them.
type Collection struct {
	Tools               []IndexedTool
	Stats               CorpusStatistics
	HasEmbeddings       bool
	EmbeddingDimensions int
	Fingerprint         uint64 // Identifies the tool set for result caching
}

// Lookup returns the tool a reference points at, or nil
func (c *Collection) Lookup(ref ToolReference) *IndexedTool {
	for i := range c.Tools {
		if c.Tools[i].Tool.Name == ref.Name && c.Tools[i].ServerName == ref.ServerName {
			return &c.Tools[i]
		}
	}
	return nil
}

// Len returns the number of tools in the collection
func (c *Collection) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Tools)
}
