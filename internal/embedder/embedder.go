package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Common errors
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrProviderFailed    = errors.New("embedding provider failed")
	ErrUnsupportedModel  = errors.New("unsupported model")
	ErrEmptyText         = errors.New("text cannot be empty")
	ErrBatchTooLarge     = errors.New("batch size exceeds limit")
	ErrNoProviderEnabled = errors.New("no embedding provider configured")
	ErrNotInitialized    = errors.New("provider not initialized")
	ErrDisposed          = errors.New("provider disposed")
)

// Provider converts text to fixed-length vectors.
//
// Initialize and Dispose are idempotent. Embed and EmbedBatch may block on
// network I/O or model inference and must honour ctx cancellation.
type Provider interface {
	// Name returns the provider identifier recorded in index files
	Name() string

	// Dimensions returns the length of every vector this provider produces
	Dimensions() int

	// Initialize prepares the provider for use
	Initialize(ctx context.Context) error

	// Embed generates a single embedding for the given text
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts efficiently
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dispose releases any resources held by the provider
	Dispose(ctx context.Context) error
}

// Cache provides in-memory LRU caching of embeddings by content hash
type Cache struct {
	cache *lru.Cache[string, []float32]
}

// NewCache creates a new embedding cache with LRU eviction
func NewCache(maxLen int) *Cache {
	if maxLen <= 0 {
		maxLen = 10000 // Default: cache 10k embeddings
	}
	cache, err := lru.New[string, []float32](maxLen)
	if err != nil {
		// Should never happen with positive size, but fallback to default
		cache, _ = lru.New[string, []float32](10000)
	}
	return &Cache{
		cache: cache,
	}
}

// Get retrieves a copy of a cached vector
// Returns a copy to prevent caller mutations from affecting cached values
func (c *Cache) Get(hash string) ([]float32, bool) {
	vec, ok := c.cache.Get(hash)
	if !ok {
		return nil, false
	}

	out := make([]float32, len(vec))
	copy(out, vec)
	return out, true
}

// Set stores a copy of vec in cache with automatic LRU eviction
func (c *Cache) Set(hash string, vec []float32) {
	stored := make([]float32, len(vec))
	copy(stored, vec)
	c.cache.Add(hash, stored)
}

// Size returns the current cache size
func (c *Cache) Size() int {
	return c.cache.Len()
}

// Clear empties the cache
func (c *Cache) Clear() {
	c.cache.Purge()
}

// ComputeHash computes SHA-256 hash of text for caching
func ComputeHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

// ValidateText validates a single embedding input
func ValidateText(text string) error {
	if text == "" {
		return ErrEmptyText
	}
	return nil
}

// ValidateBatch validates a batch embedding input
func ValidateBatch(texts []string) error {
	if len(texts) == 0 {
		return fmt.Errorf("%w: no texts provided", ErrInvalidInput)
	}

	for i, text := range texts {
		if text == "" {
			return fmt.Errorf("%w: text at index %d is empty", ErrInvalidInput, i)
		}
	}

	return nil
}
