package indexer

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/toolsearch-mcp/internal/embedder"
	"github.com/dshills/toolsearch-mcp/internal/tokenizer"
	"github.com/dshills/toolsearch-mcp/pkg/types"
)

// ErrBuildInProgress is returned when Build is called while another build
// on the same Indexer has not finished
var ErrBuildInProgress = errors.New("index build already in progress")

// Indexer coordinates the build pipeline: text -> tokens -> statistics -> embeddings
type Indexer struct {
	provider embedder.Provider

	// Worker pool configuration
	workers   int
	batchSize int

	lock IndexLock
}

// Config contains configuration for the indexer
type Config struct {
	Workers   int // Concurrent embedding batches (default: runtime.NumCPU())
	BatchSize int // Texts per EmbedBatch call (default: embedder.DefaultBatchSize)
}

// ServerTools is the tool list one upstream server advertises
type ServerTools struct {
	Server string       `json:"server"`
	Tools  []types.Tool `json:"tools"`
}

// Statistics contains statistics about one build
type Statistics struct {
	Servers       int
	ToolsIndexed  int
	ToolsSkipped  int
	Embedded      int
	Duplicates    []string // server/name of tools dropped because an earlier tool had the name
	Duration      time.Duration
	ErrorMessages []string
}

// New creates a new Indexer. provider may be nil, in which case indexes are
// built without embeddings.
func New(provider embedder.Provider, config *Config) *Indexer {
	if config == nil {
		config = &Config{}
	}

	workers := config.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	batchSize := config.BatchSize
	if batchSize <= 0 {
		batchSize = embedder.DefaultBatchSize
	}
	if batchSize > embedder.MaxBatchSize {
		batchSize = embedder.MaxBatchSize
	}

	return &Indexer{
		provider:  provider,
		workers:   workers,
		batchSize: batchSize,
	}
}

// Building reports whether a Build is running
func (idx *Indexer) Building() bool {
	return idx.lock.Held()
}

// Build turns the tool lists of one scope into an Index. Tools keep the order
// they are given in. When two tools share a name the first one wins.
func (idx *Indexer) Build(ctx context.Context, servers []ServerTools) (*types.Index, *Statistics, error) {
	if !idx.lock.TryAcquire() {
		return nil, nil, ErrBuildInProgress
	}
	defer idx.lock.Release()

	startTime := time.Now()
	stats := &Statistics{
		Servers:       len(servers),
		ErrorMessages: make([]string, 0),
	}

	owners := make(map[string]string)
	tools := make([]types.IndexedTool, 0)
	for _, server := range servers {
		for _, tool := range server.Tools {
			if tool.Name == "" {
				stats.ToolsSkipped++
				stats.ErrorMessages = append(stats.ErrorMessages,
					fmt.Sprintf("%s: %v", server.Server, types.ErrEmptyToolName))
				continue
			}
			if owner, dup := owners[tool.Name]; dup {
				stats.ToolsSkipped++
				stats.Duplicates = append(stats.Duplicates, server.Server+"/"+tool.Name)
				stats.ErrorMessages = append(stats.ErrorMessages,
					fmt.Sprintf("%s/%s: %v (kept %s/%s)", server.Server, tool.Name, types.ErrDuplicateToolName, owner, tool.Name))
				continue
			}
			owners[tool.Name] = server.Server
			tools = append(tools, NewIndexedTool(server.Server, tool))
		}
	}

	index := &types.Index{
		Version:   types.IndexVersion,
		CreatedAt: time.Now().UTC(),
		Tools:     tools,
		BM25Stats: types.ComputeStatistics(tools),
	}

	if idx.provider != nil && len(tools) > 0 {
		if err := idx.embedTools(ctx, tools); err != nil {
			return nil, stats, err
		}
		index.EmbeddingProvider = idx.provider.Name()
		index.EmbeddingDimensions = idx.provider.Dimensions()
		index.HasEmbeddings = true
		stats.Embedded = len(tools)
	}

	if err := index.Validate(); err != nil {
		return nil, stats, fmt.Errorf("built index is invalid: %w", err)
	}

	stats.ToolsIndexed = len(tools)
	stats.Duration = time.Since(startTime)
	return index, stats, nil
}

// NewIndexedTool derives the searchable text and tokens of a tool
func NewIndexedTool(server string, tool types.Tool) types.IndexedTool {
	text := SearchableText(tool)
	indexed := types.IndexedTool{
		Tool:           tool,
		SearchableText: text,
		Tokens:         tokenizer.Tokenize(text),
		ServerName:     server,
	}
	return indexed.Clone()
}

// SearchableText joins name, title and description with single spaces,
// skipping empty parts
func SearchableText(tool types.Tool) string {
	parts := make([]string, 0, 3)
	for _, part := range []string{tool.Name, tool.Title, tool.Description} {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, " ")
}

// embedTools fills in Embedding for every tool, batchSize texts per provider
// call with at most workers calls in flight
func (idx *Indexer) embedTools(ctx context.Context, tools []types.IndexedTool) error {
	name := idx.provider.Name()
	if err := idx.provider.Initialize(ctx); err != nil {
		return fmt.Errorf("%w: initialize %s: %w", types.ErrProviderFailure, name, err)
	}

	dims := idx.provider.Dimensions()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.workers)

	for start := 0; start < len(tools); start += idx.batchSize {
		end := start + idx.batchSize
		if end > len(tools) {
			end = len(tools)
		}
		batch := tools[start:end]

		g.Go(func() error {
			texts := make([]string, len(batch))
			for i := range batch {
				texts[i] = batch[i].SearchableText
			}

			vectors, err := idx.provider.EmbedBatch(gctx, texts)
			if err != nil {
				return fmt.Errorf("%w: %s: tools %d-%d: %w", types.ErrProviderFailure, name, start, end-1, err)
			}
			if len(vectors) != len(batch) {
				return fmt.Errorf("%w: %s returned %d vectors for %d texts",
					types.ErrProviderFailure, name, len(vectors), len(batch))
			}

			// Each batch owns a disjoint window of tools
			for i := range batch {
				if len(vectors[i]) != dims {
					return fmt.Errorf("%w: %s returned %d dimensions for %s, want %d",
						types.ErrEmbeddingDimension, name, len(vectors[i]), batch[i].Tool.Name, dims)
				}
				batch[i].Embedding = vectors[i]
			}
			return nil
		})
	}

	return g.Wait()
}
