package indexer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/toolsearch-mcp/pkg/types"
)

// mockProvider implements embedder.Provider for testing
type mockProvider struct {
	dims      int
	batchErr  error
	initErr   error
	wrongDims bool
	delay     time.Duration

	mu        sync.Mutex
	batches   [][]string
	initCalls int

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func newMockProvider() *mockProvider {
	return &mockProvider{dims: 3}
}

func (m *mockProvider) Name() string    { return "mock" }
func (m *mockProvider) Dimensions() int { return m.dims }

func (m *mockProvider) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initCalls++
	return m.initErr
}

func (m *mockProvider) Dispose(ctx context.Context) error { return nil }

func (m *mockProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := m.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (m *mockProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	current := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		seen := m.maxInFlight.Load()
		if current <= seen || m.maxInFlight.CompareAndSwap(seen, current) {
			break
		}
	}

	m.mu.Lock()
	m.batches = append(m.batches, append([]string(nil), texts...))
	m.mu.Unlock()

	if m.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.delay):
		}
	}

	if m.batchErr != nil {
		return nil, m.batchErr
	}

	dims := m.dims
	if m.wrongDims {
		dims++
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, dims)
		vec[0] = float32(len(text))
		vectors[i] = vec
	}
	return vectors, nil
}

func (m *mockProvider) batchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.batches)
}

func sampleServers() []ServerTools {
	return []ServerTools{
		{
			Server: "files",
			Tools: []types.Tool{
				{Name: "read_file", Title: "Read File", Description: "Read the contents of a file"},
				{Name: "write_file", Description: "Write a file to disk"},
			},
		},
		{
			Server: "git",
			Tools: []types.Tool{
				{Name: "git_status", Description: "Show the working tree status"},
			},
		},
	}
}

func TestSearchableText(t *testing.T) {
	tests := []struct {
		name string
		tool types.Tool
		want string
	}{
		{name: "all parts", tool: types.Tool{Name: "read_file", Title: "Read", Description: "Read a file"}, want: "read_file Read Read a file"},
		{name: "no title", tool: types.Tool{Name: "read_file", Description: "Read a file"}, want: "read_file Read a file"},
		{name: "name only", tool: types.Tool{Name: "ping"}, want: "ping"},
		{name: "blank parts skipped", tool: types.Tool{Name: "ping", Title: "  ", Description: ""}, want: "ping"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SearchableText(tt.tool))
		})
	}
}

func TestBuild_WithoutProvider(t *testing.T) {
	idx := New(nil, nil)

	index, stats, err := idx.Build(context.Background(), sampleServers())
	require.NoError(t, err)

	assert.Equal(t, types.IndexVersion, index.Version)
	assert.False(t, index.HasEmbeddings)
	assert.Empty(t, index.EmbeddingProvider)
	require.Len(t, index.Tools, 3)

	assert.Equal(t, "read_file", index.Tools[0].Name())
	assert.Equal(t, "files", index.Tools[0].ServerName)
	assert.Equal(t, "read_file Read File Read the contents of a file", index.Tools[0].SearchableText)
	assert.Equal(t, []string{"read", "file", "read", "file", "read", "the", "contents", "of", "a", "file"}, index.Tools[0].Tokens)
	assert.Nil(t, index.Tools[0].Embedding)
	assert.Equal(t, "git", index.Tools[2].ServerName)

	assert.Equal(t, 3, index.BM25Stats.TotalDocuments)
	assert.Equal(t, 2, index.BM25Stats.DocumentFrequencies["file"])

	assert.Equal(t, 2, stats.Servers)
	assert.Equal(t, 3, stats.ToolsIndexed)
	assert.Zero(t, stats.Embedded)
	assert.Empty(t, stats.ErrorMessages)
}

func TestBuild_Empty(t *testing.T) {
	provider := newMockProvider()
	idx := New(provider, nil)

	index, stats, err := idx.Build(context.Background(), nil)
	require.NoError(t, err)

	assert.NotNil(t, index.Tools)
	assert.Empty(t, index.Tools)
	assert.False(t, index.HasEmbeddings)
	assert.Equal(t, 0, index.BM25Stats.TotalDocuments)
	assert.Zero(t, stats.ToolsIndexed)
	assert.Zero(t, provider.batchCount(), "nothing to embed")
}

func TestBuild_DuplicatesFirstWins(t *testing.T) {
	servers := []ServerTools{
		{Server: "a", Tools: []types.Tool{{Name: "search", Description: "first"}}},
		{Server: "b", Tools: []types.Tool{{Name: "search", Description: "second"}, {Name: "other"}}},
	}

	index, stats, err := New(nil, nil).Build(context.Background(), servers)
	require.NoError(t, err)

	require.Len(t, index.Tools, 2)
	assert.Equal(t, "a", index.Tools[0].ServerName)
	assert.Equal(t, "first", index.Tools[0].Tool.Description)
	assert.Equal(t, []string{"b/search"}, stats.Duplicates)
	assert.Equal(t, 1, stats.ToolsSkipped)
}

func TestBuild_SkipsUnnamedTools(t *testing.T) {
	servers := []ServerTools{
		{Server: "a", Tools: []types.Tool{{Description: "no name"}, {Name: "named"}}},
	}

	index, stats, err := New(nil, nil).Build(context.Background(), servers)
	require.NoError(t, err)

	require.Len(t, index.Tools, 1)
	assert.Equal(t, 1, stats.ToolsSkipped)
	require.Len(t, stats.ErrorMessages, 1)
	assert.Contains(t, stats.ErrorMessages[0], "a:")
}

func TestBuild_DoesNotAliasInput(t *testing.T) {
	servers := []ServerTools{
		{Server: "a", Tools: []types.Tool{{Name: "x", InputSchema: []byte(`{"type":"object"}`)}}},
	}

	index, _, err := New(nil, nil).Build(context.Background(), servers)
	require.NoError(t, err)

	servers[0].Tools[0].InputSchema[0] = '['
	assert.Equal(t, byte('{'), index.Tools[0].Tool.InputSchema[0])
}

func TestBuild_Embeddings(t *testing.T) {
	provider := newMockProvider()
	idx := New(provider, &Config{Workers: 2, BatchSize: 2})

	servers := []ServerTools{{Server: "s", Tools: []types.Tool{
		{Name: "a"}, {Name: "bb"}, {Name: "ccc"}, {Name: "dddd"}, {Name: "eeeee"},
	}}}

	index, stats, err := idx.Build(context.Background(), servers)
	require.NoError(t, err)

	assert.True(t, index.HasEmbeddings)
	assert.Equal(t, "mock", index.EmbeddingProvider)
	assert.Equal(t, 3, index.EmbeddingDimensions)
	assert.Equal(t, 5, stats.Embedded)
	assert.Equal(t, 3, provider.batchCount(), "5 tools in batches of 2")
	assert.Equal(t, 1, provider.initCalls)

	for i, tool := range index.Tools {
		require.Len(t, tool.Embedding, 3)
		assert.Equal(t, float32(i+1), tool.Embedding[0], "vector belongs to %s", tool.Name())
	}
}

func TestBuild_WorkerLimit(t *testing.T) {
	provider := newMockProvider()
	provider.delay = 20 * time.Millisecond
	idx := New(provider, &Config{Workers: 2, BatchSize: 1})

	tools := make([]types.Tool, 8)
	for i := range tools {
		tools[i] = types.Tool{Name: string(rune('a' + i))}
	}

	_, _, err := idx.Build(context.Background(), []ServerTools{{Server: "s", Tools: tools}})
	require.NoError(t, err)

	assert.Equal(t, 8, provider.batchCount())
	assert.LessOrEqual(t, provider.maxInFlight.Load(), int32(2))
}

func TestBuild_ProviderFailure(t *testing.T) {
	provider := newMockProvider()
	provider.batchErr = errors.New("upstream unavailable")

	index, _, err := New(provider, nil).Build(context.Background(), sampleServers())

	require.Error(t, err)
	assert.Nil(t, index)
	assert.ErrorIs(t, err, types.ErrProviderFailure)
	assert.Contains(t, err.Error(), "upstream unavailable")
}

func TestBuild_InitializeFailure(t *testing.T) {
	provider := newMockProvider()
	provider.initErr = errors.New("no key")

	_, _, err := New(provider, nil).Build(context.Background(), sampleServers())

	assert.ErrorIs(t, err, types.ErrProviderFailure)
	assert.Zero(t, provider.batchCount())
}

func TestBuild_DimensionMismatch(t *testing.T) {
	provider := newMockProvider()
	provider.wrongDims = true

	_, _, err := New(provider, nil).Build(context.Background(), sampleServers())

	assert.ErrorIs(t, err, types.ErrEmbeddingDimension)
}

func TestBuild_Cancelled(t *testing.T) {
	provider := newMockProvider()
	provider.delay = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := New(provider, nil).Build(ctx, sampleServers())

	assert.ErrorIs(t, err, context.Canceled)
}

func TestBuild_InProgress(t *testing.T) {
	idx := New(nil, nil)
	require.True(t, idx.lock.TryAcquire())
	assert.True(t, idx.Building())

	_, _, err := idx.Build(context.Background(), sampleServers())
	assert.ErrorIs(t, err, ErrBuildInProgress)

	idx.lock.Release()
	_, _, err = idx.Build(context.Background(), sampleServers())
	assert.NoError(t, err)
	assert.False(t, idx.Building(), "lock released after build")
}

func TestIndexLock(t *testing.T) {
	var lock IndexLock

	assert.True(t, lock.TryAcquire())
	assert.True(t, lock.Held())
	assert.False(t, lock.TryAcquire())

	lock.Release()
	assert.False(t, lock.Held())
	assert.True(t, lock.TryAcquire())
}

func TestNew_Defaults(t *testing.T) {
	idx := New(nil, &Config{BatchSize: 1000})

	assert.Positive(t, idx.workers)
	assert.Equal(t, 100, idx.batchSize, "batch size capped at the provider limit")
}
