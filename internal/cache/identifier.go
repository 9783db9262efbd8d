package cache

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/resellkit/pricescope/internal/model"
)

// DefaultIdentifierTTL keeps resolved JAN codes for a week. Barcodes do not
// change, but a wrong AI answer should eventually age out.
const DefaultIdentifierTTL = 7 * 24 * time.Hour

// IdentifierCache maps marketplace identifiers (model numbers) to resolved
// JAN codes. Every write flushes immediately: entries are rare and each one
// cost an AI lookup.
type IdentifierCache struct {
	mu      sync.Mutex
	entries map[string]model.IdentifierCacheEntry
	path    string
	ttl     time.Duration
	now     func() time.Time
}

// NewIdentifierCache loads (or lazily creates) the cache file at path.
func NewIdentifierCache(path string, ttl time.Duration) *IdentifierCache {
	if ttl <= 0 {
		ttl = DefaultIdentifierTTL
	}
	c := &IdentifierCache{
		entries: make(map[string]model.IdentifierCacheEntry),
		path:    path,
		ttl:     ttl,
		now:     time.Now,
	}
	c.load()
	return c
}

// Get returns the cached JAN code for a marketplace identifier.
func (c *IdentifierCache) Get(marketplaceID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[NormalizeKey(marketplaceID)]
	if !ok || c.now().Sub(entry.ResolvedAt) >= c.ttl {
		return "", false
	}
	return entry.JAN, true
}

// Put stores a resolution and flushes to disk.
func (c *IdentifierCache) Put(marketplaceID, jan string) {
	c.mu.Lock()
	c.entries[NormalizeKey(marketplaceID)] = model.IdentifierCacheEntry{
		JAN:        jan,
		ResolvedAt: c.now(),
	}
	snapshot := c.snapshotLocked()
	c.mu.Unlock()

	if c.path == "" {
		return
	}
	if err := writeJSONFile(c.path, snapshot); err != nil {
		zap.L().Warn("identifier cache flush failed",
			zap.String("path", c.path), zap.Error(err))
	}
}

// Cleanup drops entries older than maxAge and flushes if anything changed.
func (c *IdentifierCache) Cleanup(maxAge time.Duration) int {
	c.mu.Lock()
	removed := 0
	for k, v := range c.entries {
		if c.now().Sub(v.ResolvedAt) > maxAge {
			delete(c.entries, k)
			removed++
		}
	}
	var snapshot map[string]model.IdentifierCacheEntry
	if removed > 0 {
		snapshot = c.snapshotLocked()
	}
	c.mu.Unlock()

	if removed > 0 && c.path != "" {
		if err := writeJSONFile(c.path, snapshot); err != nil {
			zap.L().Warn("identifier cache flush failed",
				zap.String("path", c.path), zap.Error(err))
		}
	}
	return removed
}

// Len reports the number of stored entries, expired or not.
func (c *IdentifierCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *IdentifierCache) snapshotLocked() map[string]model.IdentifierCacheEntry {
	snapshot := make(map[string]model.IdentifierCacheEntry, len(c.entries))
	for k, v := range c.entries {
		snapshot[k] = v
	}
	return snapshot
}

func (c *IdentifierCache) load() {
	if c.path == "" {
		return
	}
	raw, err := os.ReadFile(c.path)
	if err != nil {
		if !os.IsNotExist(err) {
			zap.L().Warn("identifier cache load failed",
				zap.String("path", c.path), zap.Error(err))
		}
		return
	}
	if err := json.Unmarshal(raw, &c.entries); err != nil {
		zap.L().Warn("identifier cache corrupt, starting empty",
			zap.String("path", c.path), zap.Error(err))
		c.entries = make(map[string]model.IdentifierCacheEntry)
	}
}
