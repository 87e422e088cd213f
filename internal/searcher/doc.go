// Package searcher ranks the tools of a collection against a query.
//
// Four strategies are provided:
//
//   - pattern: the query is a case-insensitive regular expression; every
//     tool whose searchable text matches scores 1.0
//   - bm25: Okapi BM25 (k1=1.2, b=0.75) over tokenizer terms, normalized so
//     the best tool scores 1.0
//   - embedding: cosine similarity between the query vector and each stored
//     vector, mapped to [0, 1] as (cos+1)/2
//   - hybrid: bm25 and embedding run concurrently and are fused with
//     Reciprocal Rank Fusion (k=60), normalized by the best fused score
//
// # Basic Usage
//
//	s := searcher.New(searcher.Options{Provider: provider, CacheSize: 1000})
//	defer s.Close(ctx)
//
//	resp, err := s.Search(ctx, searcher.Request{
//	    Query:     "read a file",
//	    Mode:      searcher.ModeHybrid,
//	    TopK:      5,
//	    Threshold: 0.2,
//	}, collection)
//
// # Errors
//
// Failures wrap the sentinels in pkg/types: ErrInvalidQuery for a bad
// pattern or out-of-range options, ErrUnknownMode, ErrMissingEmbeddings when
// the embedding or hybrid mode meets a collection without usable vectors,
// and ErrProviderFailure when the embedding provider fails or times out.
// None of them are retried or turned into empty results.
//
// # Lifecycle
//
// A strategy is initialized lazily on its first search and disposed by
// Searcher.Close. Register adds modes beyond the four built in.
package searcher
