// Package cache keeps recently validated API keys in memory so that repeated
// requests with the same key skip the database lookup.
package cache

import (
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/rs/zerolog/log"

	"github.com/try-veil/veil-gateway/internal/config"
	"github.com/try-veil/veil-gateway/internal/constants"
	"github.com/try-veil/veil-gateway/internal/models"
)

// KeyCache is a TTL cache of stored key records indexed by key digest.
// Entries are copies; callers may modify what Get returns.
//
// Every Invalidate or Clear advances an epoch. A record read from storage is
// cached only if no invalidation happened since the reader took the epoch, so
// a lookup racing a revoke cannot put the pre-revoke record back.
type KeyCache struct {
	cache *ristretto.Cache[string, *models.APIKey]
	ttl   time.Duration

	mu    sync.Mutex
	epoch uint64
}

// NewKeyCache creates a key cache sized from the API key settings.
//
// Parameters:
//   - cfg: API key settings; CacheMaxKeys bounds the entries and CacheTTL their lifetime
//
// Returns:
//   - The cache, or an error if ristretto rejects the configuration
func NewKeyCache(cfg *config.APIKeySettings) (*KeyCache, error) {
	maxKeys := cfg.CacheMaxKeys
	if maxKeys <= 0 {
		maxKeys = constants.DefaultCacheMaxKeys
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = constants.DefaultKeyCacheTTL
	}

	c, err := ristretto.NewCache(&ristretto.Config[string, *models.APIKey]{
		NumCounters: maxKeys * 10,
		MaxCost:     maxKeys,
		BufferItems: 64,
		// Cost counts entries, not bytes
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create key cache: %w", err)
	}

	log.Info().
		Int64("max_keys", maxKeys).
		Dur("ttl", ttl).
		Msg("API key cache initialized")

	return &KeyCache{cache: c, ttl: ttl}, nil
}

// Get returns a copy of the key cached under digest.
func (c *KeyCache) Get(digest string) (*models.APIKey, bool) {
	key, ok := c.cache.Get(digest)
	if !ok || key == nil {
		return nil, false
	}
	cp := *key
	return &cp, true
}

// Epoch returns the current invalidation epoch. Take it before reading the
// record that will be passed to Set.
func (c *KeyCache) Epoch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch
}

// Set caches a copy of key under its digest for the configured TTL, unless an
// invalidation happened after epoch was taken.
// Ristretto may drop the write under contention; a miss only costs a lookup.
//
// Returns:
//   - false if the record was stale and not cached
func (c *KeyCache) Set(key *models.APIKey, epoch uint64) bool {
	if key == nil || key.KeyDigest == "" {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch != c.epoch {
		return false
	}

	cp := *key
	c.cache.SetWithTTL(key.KeyDigest, &cp, 1, c.ttl)
	return true
}

// Invalidate removes the entry for digest.
func (c *KeyCache) Invalidate(digest string) {
	if digest == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	c.cache.Del(digest)
}

// Clear removes every entry.
func (c *KeyCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	c.cache.Clear()
}

// Wait blocks until buffered writes are applied.
func (c *KeyCache) Wait() {
	c.cache.Wait()
}

// Close stops the cache's background goroutines.
func (c *KeyCache) Close() {
	c.cache.Close()
}
