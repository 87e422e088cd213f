package scope

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/toolsearch-mcp/pkg/types"
)

func tool(name, server, description string) types.IndexedTool {
	return types.IndexedTool{
		Tool:           types.Tool{Name: name, Description: description},
		SearchableText: name + " " + description,
		Tokens:         []string{name, description},
		ServerName:     server,
	}
}

func index(tools ...types.IndexedTool) *types.Index {
	return &types.Index{
		Version:   types.IndexVersion,
		Tools:     tools,
		BM25Stats: types.ComputeStatistics(tools),
	}
}

func toolNames(tools []types.IndexedTool) []string {
	out := make([]string, len(tools))
	for i := range tools {
		out[i] = tools[i].Tool.Name
	}
	return out
}

func TestMergeTools_Overlay(t *testing.T) {
	user := index(tool("a", "u", "user a"), tool("b", "u", "user b"))
	project := index(tool("b", "p", "project b"), tool("c", "p", "project c"))

	merged := MergeTools(project, user)

	require.Equal(t, []string{"a", "b", "c"}, toolNames(merged))
	assert.Equal(t, "u", merged[0].ServerName)
	assert.Equal(t, "p", merged[1].ServerName, "project replaces user tool in place")
	assert.Equal(t, "project b", merged[1].Tool.Description)
}

func TestMergeTools_ProjectOrderAfterUser(t *testing.T) {
	tests := []struct {
		name        string
		project     []string
		user        []string
		want        []string
		fromProject []string
	}{
		{
			name:        "shared tool keeps user position",
			project:     []string{"a", "b"},
			user:        []string{"b", "c"},
			want:        []string{"b", "c", "a"},
			fromProject: []string{"b", "a"},
		},
		{
			name:        "new project tools append in project order",
			project:     []string{"z", "b", "c"},
			user:        []string{"a", "b"},
			want:        []string{"a", "b", "z", "c"},
			fromProject: []string{"b", "z", "c"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var project, user []types.IndexedTool
			for _, name := range tt.project {
				project = append(project, tool(name, "p", "project "+name))
			}
			for _, name := range tt.user {
				user = append(user, tool(name, "u", "user "+name))
			}

			merged := MergeTools(index(project...), index(user...))
			require.Equal(t, tt.want, toolNames(merged))

			for _, m := range merged {
				if slices.Contains(tt.fromProject, m.Tool.Name) {
					assert.Equal(t, "p", m.ServerName, m.Tool.Name)
					assert.Equal(t, "project "+m.Tool.Name, m.Tool.Description)
				} else {
					assert.Equal(t, "u", m.ServerName, m.Tool.Name)
				}
			}
		})
	}
}

func TestMergeTools_NilScopes(t *testing.T) {
	merged := MergeTools(nil, nil)
	assert.NotNil(t, merged)
	assert.Empty(t, merged)

	only := index(tool("a", "u", ""), tool("b", "u", ""))
	assert.Equal(t, []string{"a", "b"}, toolNames(MergeTools(nil, only)))
	assert.Equal(t, []string{"a", "b"}, toolNames(MergeTools(only, nil)))
}

func TestMergeTools_Disjoint(t *testing.T) {
	user := index(tool("a", "u", ""), tool("b", "u", ""))
	project := index(tool("c", "p", ""), tool("d", "p", ""), tool("e", "p", ""))

	assert.Len(t, MergeTools(project, user), 5)
}

func TestMergeTools_DoesNotAlias(t *testing.T) {
	user := index(tool("a", "u", "original"))
	user.Tools[0].Embedding = []float32{1, 2}

	merged := MergeTools(nil, user)
	merged[0].Tokens[0] = "changed"
	merged[0].Embedding[0] = 42

	assert.Equal(t, "a", user.Tools[0].Tokens[0])
	assert.Equal(t, float32(1), user.Tools[0].Embedding[0])
}

func TestSelectStatistics(t *testing.T) {
	user := index(tool("a", "u", "x"))
	project := index(tool("b", "p", "y"), tool("c", "p", "z"))

	tests := []struct {
		name      string
		project   *types.Index
		user      *types.Index
		wantTotal int
	}{
		{name: "project wins", project: project, user: user, wantTotal: 2},
		{name: "user fallback", user: user, wantTotal: 1},
		{name: "project only", project: project, wantTotal: 2},
		{name: "neither", wantTotal: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stats := SelectStatistics(tt.project, tt.user)
			assert.Equal(t, tt.wantTotal, stats.TotalDocuments)
			assert.NotNil(t, stats.DocumentFrequencies)
		})
	}
}

func TestSelectStatistics_NeverCombined(t *testing.T) {
	user := index(tool("a", "u", "shared"))
	project := index(tool("b", "p", "shared"))

	stats := SelectStatistics(project, user)

	assert.Equal(t, 1, stats.TotalDocuments)
	assert.Equal(t, 1, stats.DocumentFrequencies["shared"])
}

func TestSelectStatistics_ReturnsCopy(t *testing.T) {
	project := index(tool("a", "p", "term"))

	stats := SelectStatistics(project, nil)
	stats.DocumentFrequencies["term"] = 99

	assert.Equal(t, 1, project.BM25Stats.DocumentFrequencies["term"])
}

func TestHasAnyEmbeddings(t *testing.T) {
	with := index(tool("a", "u", ""))
	with.HasEmbeddings = true
	without := index(tool("b", "p", ""))

	assert.False(t, HasAnyEmbeddings(nil, nil))
	assert.False(t, HasAnyEmbeddings(without, nil))
	assert.True(t, HasAnyEmbeddings(without, with))
	assert.True(t, HasAnyEmbeddings(with, nil))
}

func TestMerge(t *testing.T) {
	user := index(tool("a", "u", ""))
	user.HasEmbeddings = true
	user.EmbeddingDimensions = 4
	user.Tools[0].Embedding = []float32{1, 0, 0, 0}
	project := index(tool("b", "p", ""))

	c := Merge(project, user)

	assert.Equal(t, 2, c.Len())
	assert.True(t, c.HasEmbeddings)
	assert.Equal(t, 4, c.EmbeddingDimensions, "dimensions come from the scope that has embeddings")
	assert.Equal(t, 1, c.Stats.TotalDocuments)
	assert.NotZero(t, c.Fingerprint)
}

func TestFingerprint(t *testing.T) {
	build := func() *types.Collection {
		return Merge(index(tool("b", "p", "desc")), index(tool("a", "u", "other")))
	}

	first := build()
	second := build()
	assert.Equal(t, first.Fingerprint, second.Fingerprint)

	changed := Merge(index(tool("b", "p", "different")), index(tool("a", "u", "other")))
	assert.NotEqual(t, first.Fingerprint, changed.Fingerprint)

	first.Stats.TotalDocuments++
	assert.NotEqual(t, second.Fingerprint, Fingerprint(first))
}
