// Package cache holds the two durable caches the source clients and the
// identifier resolver own: a 24h search-result cache flushed in batches,
// and a 7-day identifier cache flushed on every write because each entry
// cost an AI call. Both are plain JSON files so they survive restarts and
// stay inspectable. They are performance optimizations only; losing the
// tail of un-flushed insertions on crash is acceptable.
package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/resellkit/pricescope/internal/model"
)

const (
	// DefaultSearchTTL matches the upstream refresh cadence; marketplace
	// prices older than a day are stale for comparison purposes.
	DefaultSearchTTL = 24 * time.Hour

	// flushEvery batches durable writes: the file is rewritten at most
	// once per this many insertions.
	flushEvery = 10

	searchCacheSize = 4096
)

// SearchCache is a read-through cache of search results keyed by normalized
// query text. Exactly one source client owns each instance.
type SearchCache struct {
	mu      sync.Mutex
	mem     *expirable.LRU[string, model.SearchCacheEntry]
	path    string
	ttl     time.Duration
	pending int
	now     func() time.Time
}

// NewSearchCache loads (or lazily creates) the cache file at path. A load
// failure starts an empty cache rather than failing construction.
func NewSearchCache(path string, ttl time.Duration) *SearchCache {
	if ttl <= 0 {
		ttl = DefaultSearchTTL
	}
	c := &SearchCache{
		mem:  expirable.NewLRU[string, model.SearchCacheEntry](searchCacheSize, nil, ttl),
		path: path,
		ttl:  ttl,
		now:  time.Now,
	}
	c.load()
	return c
}

// NormalizeKey lower-cases and trims a query into its cache key.
func NormalizeKey(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}

// Get returns the cached results for query if present and unexpired.
func (c *SearchCache) Get(query string) ([]model.ProductRecord, bool) {
	entry, ok := c.mem.Get(NormalizeKey(query))
	if !ok {
		return nil, false
	}
	// Entries re-loaded from disk keep their original fetch time; the LRU
	// TTL alone would grant them a fresh lease.
	if c.now().Sub(entry.FetchedAt) >= c.ttl {
		return nil, false
	}
	return entry.Results, true
}

// Put stores results for query and flushes the file every flushEvery
// insertions.
func (c *SearchCache) Put(query string, results []model.ProductRecord) {
	c.mem.Add(NormalizeKey(query), model.SearchCacheEntry{
		Results:   results,
		FetchedAt: c.now(),
	})

	c.mu.Lock()
	c.pending++
	flush := c.pending >= flushEvery
	if flush {
		c.pending = 0
	}
	c.mu.Unlock()

	if flush {
		if err := c.Flush(); err != nil {
			zap.L().Warn("search cache flush failed",
				zap.String("path", c.path), zap.Error(err))
		}
	}
}

// Len reports the number of live in-memory entries.
func (c *SearchCache) Len() int { return c.mem.Len() }

// Flush rewrites the durable file from the in-memory state.
func (c *SearchCache) Flush() error {
	if c.path == "" {
		return nil
	}
	snapshot := make(map[string]model.SearchCacheEntry, c.mem.Len())
	for _, k := range c.mem.Keys() {
		if v, ok := c.mem.Peek(k); ok {
			snapshot[k] = v
		}
	}
	return writeJSONFile(c.path, snapshot)
}

// Close flushes any pending insertions.
func (c *SearchCache) Close() error { return c.Flush() }

func (c *SearchCache) load() {
	if c.path == "" {
		return
	}
	raw, err := os.ReadFile(c.path)
	if err != nil {
		if !os.IsNotExist(err) {
			zap.L().Warn("search cache load failed",
				zap.String("path", c.path), zap.Error(err))
		}
		return
	}
	var entries map[string]model.SearchCacheEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		zap.L().Warn("search cache corrupt, starting empty",
			zap.String("path", c.path), zap.Error(err))
		return
	}
	loaded := 0
	for k, v := range entries {
		if c.now().Sub(v.FetchedAt) < c.ttl {
			c.mem.Add(k, v)
			loaded++
		}
	}
	zap.L().Debug("search cache loaded",
		zap.String("path", c.path), zap.Int("entries", loaded))
}

// writeJSONFile writes atomically via temp file + rename.
func writeJSONFile(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "cache: mkdir")
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return eris.Wrap(err, "cache: marshal")
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return eris.Wrap(err, "cache: write temp")
	}
	if err := os.Rename(tmp, path); err != nil {
		return eris.Wrap(err, "cache: rename")
	}
	return nil
}
