package spatial

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
)

// TileCache fronts a Store with an in-process LRU tier and an optional
// shared Redis tier, so repeated requests for the same popular tile never
// re-run ST_AsMVT. Lookups check the LRU first, then Redis, then fall
// through to the caller's Store.GetTile; both cache tiers are populated
// on a miss.
type TileCache struct {
	local *lru.Cache[string, []byte]
	redis *redis.Client
	ttl   time.Duration
}

// NewTileCache builds a TileCache with an LRU tier of size entries. redisClient
// may be nil to run LRU-only (e.g. in tests or single-instance deployments).
func NewTileCache(size int, redisClient *redis.Client, ttl time.Duration) (*TileCache, error) {
	local, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, fmt.Errorf("spatial: new lru: %w", err)
	}
	return &TileCache{local: local, redis: redisClient, ttl: ttl}, nil
}

func tileCacheKey(id string, z, x, y int) string {
	return fmt.Sprintf("tile:%s:%d:%d:%d", id, z, x, y)
}

// Get returns a cached tile and true if present in either tier. A Redis
// hit is promoted into the local LRU so the next request for the same
// tile on this instance skips the network round trip entirely.
func (c *TileCache) Get(ctx context.Context, id string, z, x, y int) ([]byte, bool) {
	key := tileCacheKey(id, z, x, y)

	if tile, ok := c.local.Get(key); ok {
		return tile, true
	}

	if c.redis == nil {
		return nil, false
	}
	tile, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	c.local.Add(key, tile)
	return tile, true
}

// Set populates both cache tiers with tile for id/z/x/y.
func (c *TileCache) Set(ctx context.Context, id string, z, x, y int, tile []byte) {
	key := tileCacheKey(id, z, x, y)
	c.local.Add(key, tile)

	if c.redis == nil {
		return
	}
	// Best-effort: a failed Redis write just means the next request on
	// another instance falls through to the database, not a user-visible
	// error.
	_ = c.redis.Set(ctx, key, tile, c.ttl).Err()
}

// Invalidate evicts every cached tile for a layer. There is no pattern-
// based local-LRU eviction, so the LRU is purged wholesale, dropping the
// other layers' local entries too; only Redis keys are removed per layer.
func (c *TileCache) Invalidate(ctx context.Context, id string) {
	c.local.Purge()

	if c.redis == nil {
		return
	}
	pattern := fmt.Sprintf("tile:%s:*", id)
	iter := c.redis.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if len(keys) > 0 {
		_ = c.redis.Del(ctx, keys...).Err()
	}
}
