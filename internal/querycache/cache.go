// Package querycache implements C18: a response-level cache keyed by
// (thread_id, query text as given, filters) that short-circuits repeat asks.
// Directly adapted from the donor's internal/cache/query.go (sha256 key,
// RWMutex map, background cleanup ticker), retargeted from caching
// RetrievalResult by (userID, query, privilegeMode) to caching the
// pipeline's final GenerationData by (thread_id, query, filters).
package querycache

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ragbox/core-rag/internal/model"
)

// DefaultTTL mirrors the donor's cache lifetime default.
const DefaultTTL = 5 * time.Minute

type entry struct {
	data      model.GenerationData
	expiresAt time.Time
}

type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	ttl     time.Duration
	stopCh  chan struct{}
}

func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		entries: make(map[string]entry),
		ttl:     ttl,
		stopCh:  make(chan struct{}),
	}
	go c.cleanup()
	return c
}

func (c *Cache) Get(threadID, query string, filters map[string]model.FilterValue) (model.GenerationData, bool) {
	key := cacheKey(threadID, query, filters)
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return model.GenerationData{}, false
	}
	if time.Now().After(e.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return model.GenerationData{}, false
	}
	return e.data, true
}

func (c *Cache) Set(threadID, query string, filters map[string]model.FilterValue, data model.GenerationData) {
	key := cacheKey(threadID, query, filters)
	c.mu.Lock()
	c.entries[key] = entry{data: data, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) Stop() {
	close(c.stopCh)
}

func (c *Cache) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			for key, e := range c.entries {
				if now.After(e.expiresAt) {
					delete(c.entries, key)
				}
			}
			c.mu.Unlock()
		case <-c.stopCh:
			return
		}
	}
}

func cacheKey(threadID, query string, filters map[string]model.FilterValue) string {
	filterBytes, _ := json.Marshal(filters)
	h := sha256.Sum256(append([]byte(query), filterBytes...))
	return fmt.Sprintf("qc:%s:%x", threadID, h[:8])
}
