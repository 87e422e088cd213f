// Package types provides shared type definitions for the toolsearch engine.
//
// This package defines the document model used by every ranking strategy:
// tools as loaded from an index file, their derived search fields, corpus
// statistics, and the query-time collection produced by merging scopes.
//
// # Core Types
//
// Tool is a tool definition as advertised by an upstream server:
//
//	tool := types.Tool{
//	    Name:        "read_file",
//	    Description: "Read contents of a file",
//	}
//
// IndexedTool adds the derived fields a ranking strategy reads:
//
//	indexed := types.IndexedTool{
//	    Tool:           tool,
//	    SearchableText: "read_file Read contents of a file",
//	    Tokens:         []string{"read", "file", "read", "contents", "of", "a", "file"},
//	    ServerName:     "filesystem",
//	}
//
// Index is the unit an index build produces and a scope loads. It is never
// mutated after it is built; scope merging produces a separate Collection.
//
// # Validation
//
// Index.Validate checks the invariants the engine relies on:
//
//	if err := idx.Validate(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Search Results
//
// SearchResult references an IndexedTool by name and server name. Scores are
// normalized to [0, 1] by the orchestrator, with higher values indicating
// better matches.
package types
