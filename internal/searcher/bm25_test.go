package searcher

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/toolsearch-mcp/pkg/types"
)

func TestIDF(t *testing.T) {
	tests := []struct {
		name string
		n    int
		df   int
	}{
		{name: "unseen term", n: 10, df: 0},
		{name: "term in every document", n: 10, df: 10},
		{name: "empty corpus", n: 0, df: 0},
		{name: "single document", n: 1, df: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idf := IDF(tt.n, tt.df)
			assert.False(t, math.IsNaN(idf))
			assert.False(t, math.IsInf(idf, 0))
			assert.Greater(t, idf, 0.0)
		})
	}

	assert.Greater(t, IDF(10, 0), IDF(10, 1), "rarer terms weigh more")
	assert.InDelta(t, math.Log(1+10.5/0.5), IDF(10, 0), 1e-12)
}

func TestBM25_Score(t *testing.T) {
	// Single document, single occurrence: IDF(1,1) * 2.2 / (1 + 1.2) = IDF(1,1)
	tool := newTool("ping", "")
	c := newCollection(tool)

	s := NewBM25Strategy()
	raw := s.score([]string{"ping"}, map[string]float64{"ping": IDF(1, 1)}, c.Tools[0].Tokens, c.Stats.AvgDocLength)
	assert.InDelta(t, IDF(1, 1), raw, 1e-12)
}

func TestBM25_EmptyQuery(t *testing.T) {
	s := NewBM25Strategy()

	for _, q := range []string{"", "   ", "!!!"} {
		results, err := s.Search(context.Background(), Query{Text: q}, fileTools())
		require.NoError(t, err)
		assert.NotNil(t, results)
		assert.Empty(t, results)
	}
}

func TestBM25_ScoresEveryDocument(t *testing.T) {
	s := NewBM25Strategy()

	results, err := s.Search(context.Background(), Query{Text: "read"}, fileTools())
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, "read_file", results[0].Tool.Name)
	assert.Equal(t, 1.0, results[0].Score)
	assert.Equal(t, "write_file", results[1].Tool.Name)
	assert.Equal(t, 0.0, results[1].Score)
}

func TestBM25_LengthNormalization(t *testing.T) {
	c := newCollection(
		newTool("long", "search search plus many other unrelated words padding the document out"),
		newTool("short", "search search"),
	)

	results, err := NewBM25Strategy().Search(context.Background(), Query{Text: "search"}, c)
	require.NoError(t, err)
	assert.Equal(t, []string{"short", "long"}, names(results))
	assert.Less(t, results[1].Score, 1.0)
}

func TestBM25_ZeroAverageLength(t *testing.T) {
	c := &types.Collection{
		Tools: []types.IndexedTool{newTool("grep", "")},
		Stats: types.CorpusStatistics{TotalDocuments: 1},
	}

	results, err := NewBM25Strategy().Search(context.Background(), Query{Text: "grep"}, c)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 1.0, results[0].Score)
}

func TestBM25_Limit(t *testing.T) {
	results, err := NewBM25Strategy().Search(context.Background(), Query{Text: "file", Limit: 1}, fileTools())
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestBM25_TokensFallback(t *testing.T) {
	tool := newTool("read_file", "Read contents")
	tool.Tokens = nil
	c := newCollection(tool, newTool("other", "unrelated"))

	results, err := NewBM25Strategy().Search(context.Background(), Query{Text: "contents"}, c)
	require.NoError(t, err)
	assert.Equal(t, "read_file", results[0].Tool.Name)
	assert.Equal(t, 1.0, results[0].Score)
}

func TestPattern_Search(t *testing.T) {
	s := NewPatternStrategy()
	ctx := context.Background()

	t.Run("case insensitive", func(t *testing.T) {
		results, err := s.Search(ctx, Query{Text: "READ"}, fileTools())
		require.NoError(t, err)
		assert.Equal(t, []string{"read_file"}, names(results))
		assert.Equal(t, 1.0, results[0].Score)
	})

	t.Run("non-matches excluded and ties ordered by name", func(t *testing.T) {
		results, err := s.Search(ctx, Query{Text: "_file$|contents"}, fileTools())
		require.NoError(t, err)
		assert.Equal(t, []string{"read_file", "write_file"}, names(results))
	})

	t.Run("no match", func(t *testing.T) {
		results, err := s.Search(ctx, Query{Text: "^delete"}, fileTools())
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("invalid pattern", func(t *testing.T) {
		_, err := s.Search(ctx, Query{Text: "[a-"}, fileTools())
		assert.ErrorIs(t, err, types.ErrInvalidQuery)
	})

	t.Run("same name on two servers", func(t *testing.T) {
		a := newTool("search", "")
		a.ServerName = "web"
		b := newTool("search", "")
		b.ServerName = "docs"

		results, err := s.Search(ctx, Query{Text: "search"}, newCollection(a, b))
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "docs", results[0].Tool.ServerName)
	})
}
