// Package embedder turns tool descriptions and queries into vectors.
//
// Three providers ship with the package: Jina AI and OpenAI call their
// hosted embedding APIs, and the local provider feature-hashes tokenizer
// terms so semantic search works offline. All of them implement Provider.
//
// # Basic Usage
//
//	registry := embedder.NewRegistry()
//	cfg := embedder.Detect(embedder.Config{CacheSize: 10000})
//	provider, err := registry.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := provider.Initialize(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Dispose(ctx)
//
//	vec, err := provider.Embed(ctx, "read a file from disk")
//
// # Provider Selection
//
// Detect resolves the provider in this order:
//
//  1. Config.Provider, then TOOLSEARCH_EMBEDDING_PROVIDER
//  2. JINA_API_KEY, then OPENAI_API_KEY
//  3. The local provider
//
// # Lifecycle
//
// Initialize and Dispose are idempotent. Embedding before Initialize returns
// ErrNotInitialized and embedding after Dispose returns ErrDisposed.
//
// # Caching and Retries
//
// Vectors are cached in an LRU keyed by the SHA-256 of the input text. API
// providers only send cache misses upstream and retry transient failures
// (network errors, 429 and 5xx responses) with exponential backoff.
// Other 4xx responses fail immediately.
package embedder
