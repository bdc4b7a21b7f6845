package embedclient

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"
	"sync"
	"time"
)

// DefaultCacheTTL is how long a query embedding is cached before it is
// considered stale and re-requested from the embedding service.
const DefaultCacheTTL = 15 * time.Minute

type cacheEntry struct {
	vec       []float32
	expiresAt time.Time
}

// CachingClient wraps a Client with an in-memory query->vector cache,
// avoiding a redundant embedding round trip for repeated or retried
// queries (notably the retrieve->rewrite_query->retrieve loop, which often
// re-embeds a very similar query). Adapted from the donor's
// internal/cache/embedding.go (sha256-hash key, RWMutex map, background
// TTL sweep), retargeted from a package-level cache onto this client.
type CachingClient struct {
	inner *Client

	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
	stopCh  chan struct{}
}

func NewCachingClient(inner *Client, ttl time.Duration) *CachingClient {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	c := &CachingClient{
		inner:   inner,
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		stopCh:  make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// Embed returns cached vectors for texts seen within the TTL window and
// embeds only the cache misses, preserving input order in the result.
func (c *CachingClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	missIdx := make([]int, 0, len(texts))
	missTexts := make([]string, 0, len(texts))

	now := time.Now()
	c.mu.RLock()
	for i, t := range texts {
		key := queryHash(t)
		if entry, ok := c.entries[key]; ok && now.Before(entry.expiresAt) {
			out[i] = entry.vec
		} else {
			missIdx = append(missIdx, i)
			missTexts = append(missTexts, t)
		}
	}
	c.mu.RUnlock()

	if len(missTexts) == 0 {
		return out, nil
	}

	vectors, err := c.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, fmt.Errorf("embedclient.CachingClient.Embed: %w", err)
	}

	c.mu.Lock()
	expiresAt := time.Now().Add(c.ttl)
	for j, idx := range missIdx {
		out[idx] = vectors[j]
		c.entries[queryHash(missTexts[j])] = cacheEntry{vec: vectors[j], expiresAt: expiresAt}
	}
	c.mu.Unlock()

	return out, nil
}

// Ping delegates to the wrapped client (satisfies healthcheck.Pinger).
func (c *CachingClient) Ping(ctx context.Context) error {
	return c.inner.Ping(ctx)
}

func (c *CachingClient) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *CachingClient) Stop() {
	close(c.stopCh)
}

func (c *CachingClient) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			for key, entry := range c.entries {
				if now.After(entry.expiresAt) {
					delete(c.entries, key)
				}
			}
			c.mu.Unlock()
		case <-c.stopCh:
			return
		}
	}
}

func queryHash(query string) string {
	normalized := strings.ToLower(strings.TrimSpace(query))
	h := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("emb:%x", h[:16])
}
