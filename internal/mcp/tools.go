package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/toolsearch-mcp/internal/indexer"
	"github.com/dshills/toolsearch-mcp/internal/scope"
	"github.com/dshills/toolsearch-mcp/internal/searcher"
	"github.com/dshills/toolsearch-mcp/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeCatalogNotFound    = -32001 // Catalog file does not exist
	ErrorCodeIndexingInProgress = -32002 // Another index build is already running
	ErrorCodeMissingEmbeddings  = -32005 // Mode needs embeddings the collection lacks
	ErrorCodeProviderFailure    = -32006 // Embedding provider failed or timed out
)

// ToolHit is one search_tools result
type ToolHit struct {
	Name        string  `json:"name"`
	Server      string  `json:"server"`
	Title       string  `json:"title,omitempty"`
	Description string  `json:"description,omitempty"`
	Score       float64 `json:"score"`
}

// handleSearchTools handles the search_tools tool invocation
func (s *Server) handleSearchTools(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query, ok := args["query"].(string)
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "query parameter is required", map[string]interface{}{
			"param":  "query",
			"reason": "missing or not a string",
		})
	}

	req := searcher.Request{
		Query:     query,
		Mode:      searcher.Mode(getStringDefault(args, "mode", s.cfg.Search.Mode)),
		TopK:      getIntDefault(args, "top_k", s.cfg.Search.TopK),
		Threshold: getFloatDefault(args, "threshold", s.cfg.Search.Threshold),
	}

	// A reload may swap the collection mid-search; resolve hits against
	// the one that was searched
	collection := s.Collection()
	resp, err := s.search(ctx, req, collection)
	if err != nil {
		return nil, searchError(err)
	}

	hits := make([]ToolHit, 0, len(resp.Results))
	for _, r := range resp.Results {
		hit := ToolHit{Name: r.Tool.Name, Server: r.Tool.ServerName, Score: r.Score}
		if tool := collection.Lookup(r.Tool); tool != nil {
			hit.Title = tool.Tool.Title
			hit.Description = tool.Tool.Description
		}
		hits = append(hits, hit)
	}

	response := map[string]interface{}{
		"query":       query,
		"mode":        string(resp.Mode),
		"results":     hits,
		"count":       len(hits),
		"duration_ms": resp.Duration.Milliseconds(),
		"cache_hit":   resp.CacheHit,
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	report, err := s.Status(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to encode status", nil)
	}
	return mcp.NewToolResultText(string(data)), nil
}

// handleIndexTools handles the index_tools tool invocation
func (s *Server) handleIndexTools(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	catalog, ok := args["catalog"].(string)
	if !ok || catalog == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "catalog parameter is required", map[string]interface{}{
			"param":  "catalog",
			"reason": "missing or empty",
		})
	}

	opts := IndexOptions{Scope: getStringDefault(args, "scope", scope.Project)}

	result, err := s.IndexCatalog(ctx, catalog, opts)
	switch {
	case err == nil:
	case errors.Is(err, ErrUnknownScope):
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid scope", map[string]interface{}{
			"param":   "scope",
			"value":   opts.Scope,
			"allowed": []string{scope.Project, scope.User},
		})
	case errors.Is(err, os.ErrNotExist):
		return nil, newMCPError(ErrorCodeCatalogNotFound, "catalog not found", map[string]interface{}{
			"param": "catalog",
			"value": catalog,
		})
	case errors.Is(err, indexer.ErrInvalidCatalog):
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid catalog", map[string]interface{}{
			"error": err.Error(),
		})
	case errors.Is(err, indexer.ErrBuildInProgress):
		return nil, newMCPError(ErrorCodeIndexingInProgress, "indexing already in progress", nil)
	case errors.Is(err, types.ErrProviderFailure):
		return nil, newMCPError(ErrorCodeProviderFailure, "embedding failed", map[string]interface{}{
			"error": err.Error(),
		})
	default:
		return nil, newMCPError(ErrorCodeInternalError, "indexing failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"indexed":        true,
		"scope":          result.Scope,
		"servers":        result.Stats.Servers,
		"tools_indexed":  result.Stats.ToolsIndexed,
		"tools_skipped":  result.Stats.ToolsSkipped,
		"embedded":       result.Stats.Embedded,
		"has_embeddings": result.Index.HasEmbeddings,
		"stored":         result.Stored,
		"duration_ms":    result.Elapsed.Milliseconds(),
		"total_tools":    s.Collection().Len(),
	}
	if result.Path != "" {
		response["path"] = result.Path
	}
	if len(result.Stats.Duplicates) > 0 {
		response["duplicates"] = result.Stats.Duplicates
	}

	if len(result.Stats.ErrorMessages) > 0 {
		// Include first few errors
		errorCount := len(result.Stats.ErrorMessages)
		if errorCount > 5 {
			response["errors"] = result.Stats.ErrorMessages[:5]
			response["error_count"] = errorCount
		} else {
			response["errors"] = result.Stats.ErrorMessages
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// searchError maps a search failure to an MCP error
func searchError(err error) error {
	data := map[string]interface{}{"error": err.Error()}

	switch {
	case errors.Is(err, types.ErrInvalidQuery):
		return newMCPError(ErrorCodeInvalidParams, "invalid query", data)
	case errors.Is(err, types.ErrUnknownMode):
		data["allowed"] = []string{"pattern", "bm25", "embedding", "hybrid"}
		return newMCPError(ErrorCodeInvalidParams, "unknown search mode", data)
	case errors.Is(err, types.ErrMissingEmbeddings):
		return newMCPError(ErrorCodeMissingEmbeddings, "index has no usable embeddings for this mode", data)
	case errors.Is(err, types.ErrProviderFailure):
		return newMCPError(ErrorCodeProviderFailure, "embedding provider failed", data)
	default:
		return newMCPError(ErrorCodeInternalError, "search failed", data)
	}
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getFloatDefault extracts a number parameter with a default value
func getFloatDefault(args map[string]interface{}, key string, defaultValue float64) float64 {
	if val, ok := args[key].(float64); ok {
		return val
	}
	if val, ok := args[key].(int); ok {
		return float64(val)
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok && val != "" {
		return val
	}
	return defaultValue
}
