// Package tokens keeps the API key table in memory and refreshes it from its
// repository in the background.
package tokens

import (
	"context"
	"sync"
	"time"

	"pdfgateway/internal/infra/logging"
)

// Entry is the per-token configuration.
type Entry struct {
	RateLimit int
}

// Repository loads the full token table.
type Repository interface {
	LoadTokens(ctx context.Context) (map[string]Entry, error)
}

// Cache is a concurrency-safe token lookup table.
type Cache struct {
	mu    sync.RWMutex
	items map[string]Entry
}

func NewCache() *Cache { return &Cache{} }

// Replace swaps the whole table.
func (c *Cache) Replace(m map[string]Entry) {
	items := make(map[string]Entry, len(m))
	for k, v := range m {
		items[k] = v
	}
	c.mu.Lock()
	c.items = items
	c.mu.Unlock()
}

// Ready reports whether the table was loaded at least once.
func (c *Cache) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.items != nil
}

// Valid reports whether token exists.
func (c *Cache) Valid(token string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.items[token]
	return ok
}

// RateLimit returns the per-interval limit of token; 0 means unlimited or unknown.
func (c *Cache) RateLimit(token string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.items[token].RateLimit
}

// Reloader refreshes a Cache from a Repository.
type Reloader struct {
	repo     Repository
	cache    *Cache
	interval time.Duration
}

func NewReloader(repo Repository, cache *Cache, interval time.Duration) *Reloader {
	return &Reloader{repo: repo, cache: cache, interval: interval}
}

// LoadOnce replaces the cache; on error the previous table is kept.
func (r *Reloader) LoadOnce(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	m, err := r.repo.LoadTokens(ctx)
	if err != nil {
		return err
	}
	r.cache.Replace(m)
	return nil
}

// Start reloads every interval until ctx is done.
func (r *Reloader) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := r.LoadOnce(ctx); err != nil {
					logging.Error("Failed to reload API tokens", "error", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}
