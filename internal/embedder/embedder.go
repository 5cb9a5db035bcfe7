// Package embedder provides the text and image embedding plugins.
//
// Three text providers are available: "local" (offline feature hashing),
// "openai" and "jina" (remote HTTP APIs). Remote providers batch requests,
// retry transient failures with exponential backoff, throttle calls with a
// token bucket and memoize vectors in an LRU keyed by content hash.
//
// Provider selection from the environment:
//
//  1. VAULTPROC_EMBEDDING_PROVIDER (local, openai, jina)
//  2. JINA_API_KEY set → jina
//  3. OPENAI_API_KEY set → openai
//  4. otherwise local
//
// The image embedder is always local: a grayscale thumbnail plus a color
// histogram, L2-normalized.
package embedder

import (
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/repomd/vaultproc/internal/identity"
)

// Common errors
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrProviderFailed    = errors.New("embedding provider failed")
	ErrUnsupportedModel  = errors.New("unsupported model")
	ErrEmptyText         = errors.New("text cannot be empty")
	ErrNoProviderEnabled = errors.New("no embedding provider configured")
	ErrNotReady          = errors.New("embedder not initialized")
)

// Provider names
const (
	ProviderJina   = "jina"
	ProviderOpenAI = "openai"
	ProviderLocal  = "local"
)

// Cache memoizes vectors by content hash with LRU eviction
type Cache struct {
	cache *lru.Cache[string, []float32]
}

// DefaultCacheSize is used when a non-positive size is requested
const DefaultCacheSize = 10000

// NewCache creates a cache holding at most maxLen vectors
func NewCache(maxLen int) *Cache {
	if maxLen <= 0 {
		maxLen = DefaultCacheSize
	}
	cache, err := lru.New[string, []float32](maxLen)
	if err != nil {
		cache, _ = lru.New[string, []float32](DefaultCacheSize)
	}
	return &Cache{cache: cache}
}

// Get returns a copy of the cached vector so callers cannot mutate the entry
func (c *Cache) Get(key string) ([]float32, bool) {
	if c == nil {
		return nil, false
	}
	v, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}
	out := make([]float32, len(v))
	copy(out, v)
	return out, true
}

// Set stores a copy of v
func (c *Cache) Set(key string, v []float32) {
	if c == nil {
		return
	}
	stored := make([]float32, len(v))
	copy(stored, v)
	c.cache.Add(key, stored)
}

// Size returns the number of cached vectors
func (c *Cache) Size() int {
	if c == nil {
		return 0
	}
	return c.cache.Len()
}

// Clear empties the cache
func (c *Cache) Clear() {
	if c != nil {
		c.cache.Purge()
	}
}

// cacheKey scopes a text hash to a model so switching models never reuses
// vectors of another dimensionality.
func cacheKey(model, text string) string {
	return model + ":" + identity.HashString(text)
}

// validateBatch rejects empty batches and empty texts
func validateBatch(texts []string) error {
	if len(texts) == 0 {
		return fmt.Errorf("%w: no texts provided", ErrInvalidInput)
	}
	for i, text := range texts {
		if text == "" {
			return fmt.Errorf("%w: text at index %d is empty", ErrEmptyText, i)
		}
	}
	return nil
}
