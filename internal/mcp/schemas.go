package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// searchToolsTool returns the tool definition for search_tools
func searchToolsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_tools",
		Description: "Find the tools most relevant to a task across every indexed MCP server",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "What the tool should do, in keywords or natural language. A regular expression in pattern mode.",
				},
				"mode": map[string]interface{}{
					"type":        "string",
					"description": "Ranking strategy: bm25 (keywords), embedding (semantic), hybrid (bm25 + embedding), or pattern (regular expression)",
					"enum":        []string{"bm25", "embedding", "hybrid", "pattern"},
					"default":     "bm25",
				},
				"top_k": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of tools to return",
					"default":     10,
					"minimum":     1,
				},
				"threshold": map[string]interface{}{
					"type":        "number",
					"description": "Minimum relevance score (0.0-1.0)",
					"default":     0.0,
					"minimum":     0.0,
					"maximum":     1.0,
				},
			},
			Required: []string{"query"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report the loaded tool indexes, embedding provider, search modes and query statistics",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// indexToolsTool returns the tool definition for index_tools
func indexToolsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_tools",
		Description: "Build the tool index of one scope from a catalog file and reload the searchable collection",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"catalog": map[string]interface{}{
					"type":        "string",
					"description": "Path to a JSON catalog: {\"servers\": {\"<name>\": {\"tools\": [...]}}}",
				},
				"scope": map[string]interface{}{
					"type":        "string",
					"description": "Index to replace. Project tools override user tools with the same name.",
					"enum":        []string{"project", "user"},
					"default":     "project",
				},
			},
			Required: []string{"catalog"},
		},
	}
}
