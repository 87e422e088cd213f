package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/suite"

	"github.com/dshills/toolsearch-mcp/internal/config"
	"github.com/dshills/toolsearch-mcp/internal/embedder"
	"github.com/dshills/toolsearch-mcp/internal/scope"
	"github.com/dshills/toolsearch-mcp/internal/searcher"
	"github.com/dshills/toolsearch-mcp/internal/storage"
	"github.com/dshills/toolsearch-mcp/pkg/types"
)

const testCatalog = `{
  "servers": {
    "files": {
      "tools": [
        {"name": "read_file", "title": "Read File", "description": "Read the complete contents of a file from disk"},
        {"name": "write_file", "description": "Create or overwrite a file with new content"},
        {"name": "list_directory", "description": "List files and directories in a path"}
      ]
    },
    "git": {
      "tools": [
        {"name": "git_status", "description": "Show the working tree status"},
        {"name": "git_commit", "description": "Record changes to the repository"}
      ]
    }
  }
}`

// queryFailProvider embeds documents but fails every query embedding
type queryFailProvider struct {
	embedder.Provider
}

func (queryFailProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("quota exceeded")
}

// MCPTestSuite exercises the tool handlers against a real store and the
// local embedding provider
type MCPTestSuite struct {
	suite.Suite
	dir     string
	catalog string
	cfg     *config.Config
	store   *storage.SQLiteStorage
	server  *Server
}

func (s *MCPTestSuite) SetupTest() {
	s.dir = s.T().TempDir()
	s.catalog = s.writeFile("catalog.json", testCatalog)

	s.cfg = config.Default()
	s.cfg.Index.ProjectPath = filepath.Join(s.dir, "project", "index.json")
	s.cfg.Index.UserPath = filepath.Join(s.dir, "user", "index.json")
	s.cfg.Storage.Path = ""

	store, err := storage.NewSQLiteStorage(":memory:")
	s.Require().NoError(err)
	s.store = store

	provider, err := embedder.NewLocalProvider(nil)
	s.Require().NoError(err)

	s.server = s.newServer(provider)
}

func (s *MCPTestSuite) TearDownTest() {
	s.Require().NoError(s.server.Close(context.Background()))
}

func (s *MCPTestSuite) newServer(provider embedder.Provider) *Server {
	srv, err := New(context.Background(), Options{Config: s.cfg, Storage: s.store, Provider: provider})
	s.Require().NoError(err)
	return srv
}

func (s *MCPTestSuite) writeFile(name, content string) string {
	path := filepath.Join(s.dir, name)
	s.Require().NoError(os.WriteFile(path, []byte(content), 0o644))
	return path
}

func request(name string, args interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// decode unmarshals the text content of a tool result
func (s *MCPTestSuite) decode(result *mcp.CallToolResult, out interface{}) {
	s.Require().NotNil(result)
	s.Require().Len(result.Content, 1)
	text, ok := result.Content[0].(mcp.TextContent)
	s.Require().True(ok, "expected text content")
	s.Require().NoError(json.Unmarshal([]byte(text.Text), out))
}

func (s *MCPTestSuite) requireCode(err error, code int) {
	var mcpErr *MCPError
	s.Require().True(errors.As(err, &mcpErr), "expected MCPError, got %v", err)
	s.Equal(code, mcpErr.Code, mcpErr.Message)
}

func (s *MCPTestSuite) index(scopeName string) {
	_, err := s.server.handleIndexTools(context.Background(), request("index_tools", map[string]interface{}{
		"catalog": s.catalog,
		"scope":   scopeName,
	}))
	s.Require().NoError(err)
}

type searchPayload struct {
	Mode     string    `json:"mode"`
	Count    int       `json:"count"`
	Results  []ToolHit `json:"results"`
	CacheHit bool      `json:"cache_hit"`
}

func (s *MCPTestSuite) search(args map[string]interface{}) (*searchPayload, error) {
	result, err := s.server.handleSearchTools(context.Background(), request("search_tools", args))
	if err != nil {
		return nil, err
	}
	var payload searchPayload
	s.decode(result, &payload)
	return &payload, nil
}

func (s *MCPTestSuite) TestIndexTools() {
	result, err := s.server.handleIndexTools(context.Background(), request("index_tools", map[string]interface{}{
		"catalog": s.catalog,
	}))
	s.Require().NoError(err)

	var payload map[string]interface{}
	s.decode(result, &payload)
	s.Equal(true, payload["indexed"])
	s.Equal("project", payload["scope"])
	s.Equal(float64(5), payload["tools_indexed"])
	s.Equal(float64(2), payload["servers"])
	s.Equal(true, payload["has_embeddings"])
	s.Equal(true, payload["stored"])
	s.Equal(s.cfg.Index.ProjectPath, payload["path"])

	s.FileExists(s.cfg.Index.ProjectPath)
	s.Equal(5, s.server.Collection().Len(), "collection reloaded")
}

func (s *MCPTestSuite) TestSearchTools_BM25() {
	s.index(scope.Project)

	payload, err := s.search(map[string]interface{}{"query": "read file", "top_k": float64(3)})
	s.Require().NoError(err)

	s.Equal("bm25", payload.Mode)
	s.Require().NotEmpty(payload.Results)
	s.LessOrEqual(payload.Count, 3)
	s.Equal("read_file", payload.Results[0].Name)
	s.Equal("files", payload.Results[0].Server)
	s.Equal("Read File", payload.Results[0].Title)
	s.Equal(1.0, payload.Results[0].Score)
}

func (s *MCPTestSuite) TestSearchTools_Modes() {
	s.index(scope.Project)

	for _, mode := range []string{"pattern", "bm25", "embedding", "hybrid"} {
		s.Run(mode, func() {
			query := "commit changes"
			if mode == "pattern" {
				query = "git_.*"
			}
			payload, err := s.search(map[string]interface{}{"query": query, "mode": mode})
			s.Require().NoError(err)
			s.Equal(mode, payload.Mode)
			s.NotEmpty(payload.Results)
			for _, hit := range payload.Results {
				s.GreaterOrEqual(hit.Score, 0.0)
				s.LessOrEqual(hit.Score, 1.0)
			}
		})
	}
}

func (s *MCPTestSuite) TestSearchTools_Threshold() {
	s.index(scope.Project)

	payload, err := s.search(map[string]interface{}{"query": "repository", "threshold": 0.5})
	s.Require().NoError(err)

	s.Require().Len(payload.Results, 1)
	s.Equal("git_commit", payload.Results[0].Name)
}

func (s *MCPTestSuite) TestSearchTools_CacheHit() {
	s.index(scope.Project)
	args := map[string]interface{}{"query": "directory"}

	first, err := s.search(args)
	s.Require().NoError(err)
	second, err := s.search(args)
	s.Require().NoError(err)

	s.False(first.CacheHit)
	s.True(second.CacheHit)
	s.Equal(first.Results, second.Results)
}

func (s *MCPTestSuite) TestSearchTools_EmptyCollection() {
	payload, err := s.search(map[string]interface{}{"query": "anything"})
	s.Require().NoError(err)

	s.Empty(payload.Results)
}

func (s *MCPTestSuite) TestSearchTools_InvalidParams() {
	tests := []struct {
		name string
		args interface{}
	}{
		{name: "arguments not an object", args: "read"},
		{name: "missing query", args: map[string]interface{}{}},
		{name: "query not a string", args: map[string]interface{}{"query": 42}},
		{name: "threshold above one", args: map[string]interface{}{"query": "x", "threshold": 1.5}},
		{name: "negative top_k", args: map[string]interface{}{"query": "x", "top_k": float64(-1)}},
		{name: "unknown mode", args: map[string]interface{}{"query": "x", "mode": "fuzzy"}},
		{name: "bad pattern", args: map[string]interface{}{"query": "(", "mode": "pattern"}},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.server.handleSearchTools(context.Background(), request("search_tools", tt.args))
			s.requireCode(err, ErrorCodeInvalidParams)
		})
	}
}

func (s *MCPTestSuite) TestSearchTools_MissingEmbeddings() {
	s.Require().NoError(s.server.Close(context.Background()))
	store, err := storage.NewSQLiteStorage(":memory:")
	s.Require().NoError(err)
	s.store = store
	s.server = s.newServer(nil)
	s.index(scope.Project)

	for _, mode := range []string{"embedding", "hybrid"} {
		_, err := s.server.handleSearchTools(context.Background(), request("search_tools", map[string]interface{}{
			"query": "read", "mode": mode,
		}))
		s.requireCode(err, ErrorCodeMissingEmbeddings)
	}
}

func (s *MCPTestSuite) TestSearchTools_ProviderFailure() {
	s.Require().NoError(s.server.Close(context.Background()))
	store, err := storage.NewSQLiteStorage(":memory:")
	s.Require().NoError(err)
	s.store = store

	local, err := embedder.NewLocalProvider(nil)
	s.Require().NoError(err)
	s.server = s.newServer(queryFailProvider{Provider: local})
	s.index(scope.Project)

	_, err = s.server.handleSearchTools(context.Background(), request("search_tools", map[string]interface{}{
		"query": "read", "mode": "embedding",
	}))
	s.requireCode(err, ErrorCodeProviderFailure)
}

func (s *MCPTestSuite) TestIndexTools_Errors() {
	invalid := s.writeFile("invalid.json", `{"tools": []}`)

	tests := []struct {
		name string
		args interface{}
		code int
	}{
		{name: "arguments not an object", args: nil, code: ErrorCodeInvalidParams},
		{name: "missing catalog", args: map[string]interface{}{}, code: ErrorCodeInvalidParams},
		{name: "unknown scope", args: map[string]interface{}{"catalog": s.catalog, "scope": "global"}, code: ErrorCodeInvalidParams},
		{name: "catalog not found", args: map[string]interface{}{"catalog": filepath.Join(s.dir, "absent.json")}, code: ErrorCodeCatalogNotFound},
		{name: "invalid catalog", args: map[string]interface{}{"catalog": invalid}, code: ErrorCodeInvalidParams},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.server.handleIndexTools(context.Background(), request("index_tools", tt.args))
			s.requireCode(err, tt.code)
		})
	}
}

func (s *MCPTestSuite) TestProjectOverridesUser() {
	s.index(scope.User)
	override := s.writeFile("project.json",
		`{"servers": {"local": {"tools": [{"name": "git_status", "description": "Project specific status"}]}}}`)

	_, err := s.server.IndexCatalog(context.Background(), override, IndexOptions{Scope: scope.Project})
	s.Require().NoError(err)

	c := s.server.Collection()
	s.Equal(5, c.Len())
	s.Equal(1, c.Stats.TotalDocuments, "project statistics selected")

	var found bool
	for _, tool := range c.Tools {
		if tool.Name() == "git_status" {
			found = true
			s.Equal("local", tool.ServerName)
		}
	}
	s.True(found)
}

func (s *MCPTestSuite) TestReloadFallsBackToStore() {
	_, err := s.server.IndexCatalog(context.Background(), s.catalog, IndexOptions{Scope: scope.Project, SkipFile: true})
	s.Require().NoError(err)

	s.NoFileExists(s.cfg.Index.ProjectPath)
	snap := s.server.Snapshot()
	s.Equal(scope.SourceStore, snap.ProjectSource)
	s.Equal(5, snap.Collection.Len())
}

func (s *MCPTestSuite) TestGetStatus() {
	s.index(scope.Project)
	_, err := s.search(map[string]interface{}{"query": "file"})
	s.Require().NoError(err)
	_, _ = s.server.handleSearchTools(context.Background(), request("search_tools", map[string]interface{}{
		"query": "(", "mode": "pattern",
	}))

	result, err := s.server.handleGetStatus(context.Background(), request("get_status", nil))
	s.Require().NoError(err)

	var report StatusReport
	s.decode(result, &report)

	s.Equal(scope.SourceFile, report.Scopes["project"].Source)
	s.Equal(5, report.Scopes["project"].Tools)
	s.True(report.Scopes["project"].HasEmbeddings)
	s.Equal(scope.SourceNone, report.Scopes["user"].Source)
	s.Equal(5, report.Collection.Tools)
	s.Equal(2, report.Collection.Servers)
	s.Require().NotNil(report.Provider)
	s.Equal("local", report.Provider.Name)
	s.Equal([]string{"bm25", "embedding", "hybrid", "pattern"}, report.Modes)
	s.False(report.Indexing)

	s.Require().NotNil(report.Store)
	s.Equal(2, report.Store.Queries)
	s.Equal(1, report.Store.Failures)
	s.Equal([]string{"project"}, report.Store.StoredScopes)
	s.Require().Len(report.Store.Recent, 2)
	s.Equal("(", report.Store.Recent[0].Query, "newest first")
	s.NotEmpty(report.Store.Recent[0].Error)
}

func (s *MCPTestSuite) TestSearchAfterClose() {
	s.Require().NoError(s.server.Close(context.Background()))

	_, err := s.server.Search(context.Background(), searcher.Request{Query: "read"})
	s.ErrorIs(err, searcher.ErrClosed)

	s.NoError(s.server.Close(context.Background()), "close is idempotent")
}

// swappingStrategy ranks every tool with score 1, then installs an empty
// collection the way a concurrent reload would
type swappingStrategy struct {
	server *Server
}

func (swappingStrategy) Initialize(ctx context.Context) error { return nil }
func (swappingStrategy) Dispose(ctx context.Context) error    { return nil }

func (st swappingStrategy) Search(ctx context.Context, q searcher.Query, c *types.Collection) ([]types.SearchResult, error) {
	results := make([]types.SearchResult, 0, len(c.Tools))
	for i := range c.Tools {
		results = append(results, types.SearchResult{Tool: c.Tools[i].Reference(), Score: 1})
	}

	st.server.mu.Lock()
	st.server.snapshot = &scope.Snapshot{Collection: &types.Collection{}}
	st.server.mu.Unlock()

	return results, nil
}

func (s *MCPTestSuite) TestSearchTools_ReloadDuringSearch() {
	s.index(scope.Project)
	s.Require().NoError(s.server.searcher.Register(context.Background(), "swap", swappingStrategy{server: s.server}))

	payload, err := s.search(map[string]interface{}{"query": "file", "mode": "swap"})
	s.Require().NoError(err)

	s.Require().Equal(5, payload.Count)
	for _, hit := range payload.Results {
		s.NotEmpty(hit.Description, "%s resolved against the searched collection", hit.Name)
	}
	s.Zero(s.server.Collection().Len(), "collection was swapped")
}

func (s *MCPTestSuite) TestSearchTools_BlankQuery() {
	s.index(scope.Project)

	for _, mode := range []string{"pattern", "bm25", "embedding", "hybrid"} {
		payload, err := s.search(map[string]interface{}{"query": "  ", "mode": mode})
		s.Require().NoError(err, mode)
		s.Equal(mode, payload.Mode)
		s.Empty(payload.Results, mode)
	}
}

// TestMCPTestSuite runs the suite
func TestMCPTestSuite(t *testing.T) {
	suite.Run(t, new(MCPTestSuite))
}
