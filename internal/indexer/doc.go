// Package indexer builds tool indexes and reads and writes index files.
//
// # Basic Usage
//
//	servers, err := indexer.LoadCatalog("tools.json")
//	if err != nil {
//	    return err
//	}
//
//	idx := indexer.New(provider, &indexer.Config{Workers: 4})
//	index, stats, err := idx.Build(ctx, servers)
//	if err != nil {
//	    return err
//	}
//
//	err = indexer.WriteFile(".toolsearch/index.json", index)
//
// # Build Pipeline
//
// Build runs a fixed sequence per scope:
//
//  1. Searchable text: name, title and description joined by single spaces
//  2. Tokens: tokenizer.Tokenize over the searchable text
//  3. Statistics: document frequencies and average length over all tools
//  4. Embeddings: optional, only when a provider is configured
//
// Tool names must be unique within one index. A tool whose name was already
// seen is dropped and listed in Statistics.Duplicates. Tools without a name
// are dropped and reported in Statistics.ErrorMessages.
//
// # Concurrent Embedding
//
// Embeddings are requested in batches of Config.BatchSize texts through
// Provider.EmbedBatch. Batches run on an errgroup limited to Config.Workers
// goroutines. The first failing batch cancels the rest and fails the build;
// an index is never written with a partial set of vectors.
//
// # Index Files
//
// An index file is the JSON encoding of types.Index. LoadFile checks the
// file's semantic version against types.IndexVersion (same major version is
// accepted) and runs Index.Validate before returning. WriteFile replaces the
// target atomically through a temp file and rename.
//
// # Tool Catalogs
//
// A catalog holds the raw tool definitions of a set of servers:
//
//	{
//	  "servers": {
//	    "files": {"tools": [{"name": "read_file", "description": "Read a file"}]},
//	    "git":   {"tools": [{"name": "git_status"}]}
//	  }
//	}
//
// Server order in the file is preserved in the resulting index.
//
// # Locking
//
// IndexLock rejects a second concurrent Build on the same Indexer with
// ErrBuildInProgress rather than queueing it.
package indexer
