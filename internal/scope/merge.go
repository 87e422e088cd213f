// Package scope merges the project and user tool indexes into the single
// collection a search runs against.
package scope

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/dshills/toolsearch-mcp/pkg/types"
)

// Scope names
const (
	Project = "project"
	User    = "user"
)

// MergeTools overlays project tools onto user tools by name. User tools keep
// their order; a project tool with the same name replaces the user tool in
// place, and the remaining project tools follow in their own order. Either
// index may be nil. The result shares no memory with the inputs.
func MergeTools(project, user *types.Index) []types.IndexedTool {
	merged := orderedmap.New[string, types.IndexedTool]()

	if user != nil {
		for i := range user.Tools {
			merged.Set(user.Tools[i].Tool.Name, user.Tools[i].Clone())
		}
	}
	if project != nil {
		for i := range project.Tools {
			merged.Set(project.Tools[i].Tool.Name, project.Tools[i].Clone())
		}
	}

	tools := make([]types.IndexedTool, 0, merged.Len())
	for pair := merged.Oldest(); pair != nil; pair = pair.Next() {
		tools = append(tools, pair.Value)
	}
	return tools
}

// SelectStatistics returns a copy of the project statistics if the project
// index is present, else the user statistics, else zero statistics.
// Statistics of the two scopes are never combined.
func SelectStatistics(project, user *types.Index) types.CorpusStatistics {
	switch {
	case project != nil:
		return project.BM25Stats.Clone()
	case user != nil:
		return user.BM25Stats.Clone()
	default:
		return types.CorpusStatistics{DocumentFrequencies: make(map[string]int)}
	}
}

// HasAnyEmbeddings reports whether either index was built with embeddings
func HasAnyEmbeddings(project, user *types.Index) bool {
	return (project != nil && project.HasEmbeddings) || (user != nil && user.HasEmbeddings)
}

// Merge builds the collection for a pair of scopes
func Merge(project, user *types.Index) *types.Collection {
	c := &types.Collection{
		Tools:         MergeTools(project, user),
		Stats:         SelectStatistics(project, user),
		HasEmbeddings: HasAnyEmbeddings(project, user),
	}

	switch {
	case project != nil && project.HasEmbeddings:
		c.EmbeddingDimensions = project.EmbeddingDimensions
	case user != nil && user.HasEmbeddings:
		c.EmbeddingDimensions = user.EmbeddingDimensions
	}

	c.Fingerprint = Fingerprint(c)
	return c
}

// Fingerprint hashes everything ranking reads from a collection
func Fingerprint(c *types.Collection) uint64 {
	d := xxhash.New()
	var buf [8]byte

	writeInt := func(n int) {
		binary.LittleEndian.PutUint64(buf[:], uint64(n))
		_, _ = d.Write(buf[:])
	}
	writeString := func(s string) {
		writeInt(len(s))
		_, _ = d.WriteString(s)
	}

	writeInt(len(c.Tools))
	for i := range c.Tools {
		tool := &c.Tools[i]
		writeString(tool.ServerName)
		writeString(tool.Tool.Name)
		writeString(tool.SearchableText)
		writeInt(len(tool.Tokens))
		for _, term := range tool.Tokens {
			writeString(term)
		}
		writeInt(len(tool.Embedding))
		for _, v := range tool.Embedding {
			binary.LittleEndian.PutUint32(buf[:4], math.Float32bits(v))
			_, _ = d.Write(buf[:4])
		}
	}

	writeInt(c.Stats.TotalDocuments)
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(c.Stats.AvgDocLength))
	_, _ = d.Write(buf[:])

	// Map iteration order is random, so combine per-term hashes with a sum
	var dfSum uint64
	for term, df := range c.Stats.DocumentFrequencies {
		dfSum += xxhash.Sum64String(term) * uint64(df+1)
	}
	binary.LittleEndian.PutUint64(buf[:], dfSum)
	_, _ = d.Write(buf[:])

	if c.HasEmbeddings {
		writeInt(1)
	} else {
		writeInt(0)
	}

	return d.Sum64()
}
