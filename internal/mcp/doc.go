// Package mcp implements the Model Context Protocol (MCP) server for toolsearch.
//
// The MCP server exposes three tools to AI assistants:
//   - search_tools: Rank the indexed tools of every upstream server for a query
//   - get_status: Report loaded indexes, provider, modes and query statistics
//   - index_tools: Build a scope's index from a catalog file and reload
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport. Stdout carries
// protocol messages only; all logging goes to stderr.
//
// # Basic Usage
//
// The MCP server is typically started via the serve command:
//
//	toolsearch serve
//
// # Tool: search_tools
//
//	Request:
//	{
//	  "name": "search_tools",
//	  "arguments": {"query": "read a file", "mode": "hybrid", "top_k": 5, "threshold": 0.2}
//	}
//
//	Response:
//	{
//	  "query": "read a file",
//	  "mode": "hybrid",
//	  "count": 2,
//	  "results": [
//	    {"name": "read_file", "server": "files", "description": "Read the contents of a file", "score": 1},
//	    {"name": "read_multiple_files", "server": "files", "score": 0.98}
//	  ],
//	  "duration_ms": 3,
//	  "cache_hit": false
//	}
//
// Unset arguments fall back to the configured search defaults. A blank
// query returns no results in every mode.
//
// # Tool: get_status
//
// Takes no arguments. Reports each scope's source (file, store or none) and
// tool count, the merged collection, the embedding provider, the registered
// modes, whether an index build is running and, when the SQLite store is
// enabled, the query log summary.
//
// # Tool: index_tools
//
//	Request:
//	{
//	  "name": "index_tools",
//	  "arguments": {"catalog": "/path/to/catalog.json", "scope": "project"}
//	}
//
// The index is written to the scope's configured index file and saved to the
// store, then both scopes are reloaded. Only one build runs at a time.
//
// # Error Codes
//
//	-32602  Invalid params: bad arguments, invalid query, unknown mode or scope
//	-32603  Internal error
//	-32001  Catalog file not found
//	-32002  Another index build is in progress
//	-32005  The mode needs embeddings the loaded indexes do not have
//	-32006  The embedding provider failed or timed out
//
// Errors are returned as *MCPError values carrying one of these codes.
package mcp
