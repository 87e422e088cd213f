package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// IndexVersion is the index file format version written by the indexer
const IndexVersion = "1.0.0"

// Tool is a tool definition as advertised by an upstream server
type Tool struct {
	Name        string          `json:"name"`
	Title       string          `json:"title,omitempty"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"` // Opaque, never inspected by ranking
}

// IndexedTool is a Tool plus the fields derived from it at build time
type IndexedTool struct {
	Tool           Tool      `json:"tool"`
	SearchableText string    `json:"searchableText"`
	Tokens         []string  `json:"tokens"`
	Embedding      []float32 `json:"embedding,omitempty"` // Present iff the index was built with a provider
	ServerName     string    `json:"serverName"`
}

// Name returns the tool name
func (t *IndexedTool) Name() string {
	return t.Tool.Name
}

// Reference returns the reference a SearchResult uses to point at this tool
func (t *IndexedTool) Reference() ToolReference {
	return ToolReference{Name: t.Tool.Name, ServerName: t.ServerName}
}

// Clone returns a deep copy that shares no slices with t
func (t *IndexedTool) Clone() IndexedTool {
	out := *t
	if t.Tool.InputSchema != nil {
		out.Tool.InputSchema = append(json.RawMessage(nil), t.Tool.InputSchema...)
	}
	if t.Tokens != nil {
		out.Tokens = append([]string(nil), t.Tokens...)
	}
	if t.Embedding != nil {
		out.Embedding = append([]float32(nil), t.Embedding...)
	}
	return out
}

// CorpusStatistics holds the BM25 corpus statistics of one index
type CorpusStatistics struct {
	AvgDocLength        float64        `json:"avgDocLength"`
	DocumentFrequencies map[string]int `json:"documentFrequencies"`
	TotalDocuments      int            `json:"totalDocuments"`
}

// Clone returns a deep copy of the statistics
func (s *CorpusStatistics) Clone() CorpusStatistics {
	freqs := make(map[string]int, len(s.DocumentFrequencies))
	for term, df := range s.DocumentFrequencies {
		freqs[term] = df
	}
	return CorpusStatistics{
		AvgDocLength:        s.AvgDocLength,
		DocumentFrequencies: freqs,
		TotalDocuments:      s.TotalDocuments,
	}
}

// ComputeStatistics derives corpus statistics from the tokens of tools
func ComputeStatistics(tools []IndexedTool) CorpusStatistics {
	stats := CorpusStatistics{
		DocumentFrequencies: make(map[string]int),
		TotalDocuments:      len(tools),
	}
	if len(tools) == 0 {
		return stats
	}

	var totalTokens int
	for i := range tools {
		totalTokens += len(tools[i].Tokens)
		seen := make(map[string]struct{}, len(tools[i].Tokens))
		for _, term := range tools[i].Tokens {
			if _, ok := seen[term]; ok {
				continue
			}
			seen[term] = struct{}{}
			stats.DocumentFrequencies[term]++
		}
	}
	stats.AvgDocLength = float64(totalTokens) / float64(len(tools))
	return stats
}

// Index is the result of one index build for one scope
type Index struct {
	Version             string           `json:"version"`
	CreatedAt           time.Time        `json:"createdAt"`
	EmbeddingProvider   string           `json:"embeddingProvider,omitempty"`
	EmbeddingDimensions int              `json:"embeddingDimensions"`
	Tools               []IndexedTool    `json:"tools"`
	BM25Stats           CorpusStatistics `json:"bm25Stats"`
	HasEmbeddings       bool             `json:"hasEmbeddings"`
}

// Validate checks the invariants ranking depends on
func (idx *Index) Validate() error {
	names := make(map[string]struct{}, len(idx.Tools))
	for i := range idx.Tools {
		tool := &idx.Tools[i]
		if tool.Tool.Name == "" {
			return fmt.Errorf("%w: tool at position %d", ErrEmptyToolName, i)
		}
		if _, dup := names[tool.Tool.Name]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateToolName, tool.Tool.Name)
		}
		names[tool.Tool.Name] = struct{}{}

		if tool.Embedding != nil && len(tool.Embedding) != idx.EmbeddingDimensions {
			return fmt.Errorf("%w: %s has %d, index declares %d",
				ErrEmbeddingDimension, tool.Tool.Name, len(tool.Embedding), idx.EmbeddingDimensions)
		}
	}

	if idx.BM25Stats.TotalDocuments != len(idx.Tools) {
		return fmt.Errorf("%w: totalDocuments=%d, tools=%d",
			ErrStatisticsInconsistent, idx.BM25Stats.TotalDocuments, len(idx.Tools))
	}

	return nil
}
