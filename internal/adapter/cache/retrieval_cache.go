// Package cache memoizes retrieval results between index changes.
package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"policyrag/internal/domain"
)

// RetrievalCache is an LRU of search results with a TTL. Every entry is
// stamped with the index generation it was computed against and is ignored
// once the index has moved on.
type RetrievalCache struct {
	lru *expirable.LRU[string, cacheEntry]
}

type cacheEntry struct {
	results  []domain.RetrievalResult
	indexGen uint64
}

func NewRetrievalCache(maxSize int, ttl time.Duration) *RetrievalCache {
	if maxSize <= 0 {
		maxSize = 100
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RetrievalCache{lru: expirable.NewLRU[string, cacheEntry](maxSize, nil, ttl)}
}

func cacheKey(query string, k int, threshold float64) string {
	data := []byte(query)
	data = binary.BigEndian.AppendUint32(data, uint32(k))
	data = binary.BigEndian.AppendUint64(data, math.Float64bits(threshold))
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:16])
}

// Get returns a copy of the cached results for the query if they were
// computed at generation gen.
func (c *RetrievalCache) Get(query string, k int, threshold float64, gen uint64) ([]domain.RetrievalResult, bool) {
	key := cacheKey(query, k, threshold)
	entry, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	if entry.indexGen != gen {
		c.lru.Remove(key)
		return nil, false
	}
	out := make([]domain.RetrievalResult, len(entry.results))
	copy(out, entry.results)
	return out, true
}

func (c *RetrievalCache) Put(query string, k int, threshold float64, gen uint64, results []domain.RetrievalResult) {
	stored := make([]domain.RetrievalResult, len(results))
	copy(stored, results)
	c.lru.Add(cacheKey(query, k, threshold), cacheEntry{results: stored, indexGen: gen})
}

// Purge drops every entry.
func (c *RetrievalCache) Purge() {
	c.lru.Purge()
}

func (c *RetrievalCache) Size() int {
	return c.lru.Len()
}
