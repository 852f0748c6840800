// Package cache provides caching for whole-cell tiles and decoded Zarr chunks.
package cache

import (
	"context"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/allegro/bigcache/v3"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/joris-gentinetta/vizarr/internal/raster"
)

// Config contains cache configuration.
type Config struct {
	TileCacheSizeMB   int
	TileTTL           time.Duration
	ChunkCacheEntries int
}

// Manager manages tile and chunk caches.
type Manager struct {
	tileCache  *bigcache.BigCache
	chunkCache *lru.Cache[string, []byte]
}

// tileHeaderSize is the width/height prefix of an encoded tile.
const tileHeaderSize = 8

// NewManager creates a new cache manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.ChunkCacheEntries <= 0 {
		cfg.ChunkCacheEntries = 1024
	}

	// Few shards keep each shard large enough for whole-plane entries.
	tileCacheConfig := bigcache.Config{
		Shards:             16,
		LifeWindow:         cfg.TileTTL,
		CleanWindow:        cfg.TileTTL / 2,
		MaxEntriesInWindow: 10000,
		MaxEntrySize:       512 * 1024,
		HardMaxCacheSize:   cfg.TileCacheSizeMB,
		Verbose:            false,
	}

	tileCache, err := bigcache.New(context.Background(), tileCacheConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create tile cache: %w", err)
	}

	chunkCache, err := lru.New[string, []byte](cfg.ChunkCacheEntries)
	if err != nil {
		return nil, fmt.Errorf("failed to create chunk cache: %w", err)
	}

	return &Manager{
		tileCache:  tileCache,
		chunkCache: chunkCache,
	}, nil
}

// GetTile retrieves a tile from cache.
func (m *Manager) GetTile(key string) (raster.Tile, bool) {
	data, err := m.tileCache.Get(key)
	if err != nil || len(data) < tileHeaderSize {
		return raster.Tile{}, false
	}
	return raster.Tile{
		Width:  int(binary.LittleEndian.Uint32(data[0:4])),
		Height: int(binary.LittleEndian.Uint32(data[4:8])),
		Data:   data[tileHeaderSize:],
	}, true
}

// SetTile stores a tile in cache.
func (m *Manager) SetTile(key string, tile raster.Tile) error {
	buf := make([]byte, tileHeaderSize+len(tile.Data))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(tile.Width))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(tile.Height))
	copy(buf[tileHeaderSize:], tile.Data)
	return m.tileCache.Set(key, buf)
}

// GetChunk retrieves a decoded chunk from cache.
func (m *Manager) GetChunk(key string) ([]byte, bool) {
	return m.chunkCache.Get(key)
}

// SetChunk stores a decoded chunk in cache.
func (m *Manager) SetChunk(key string, data []byte) {
	m.chunkCache.Add(key, data)
}

// TileKey generates a cache key for a whole-plane read of a source.
func TileKey(sourceID string, selection []int) string {
	parts := make([]string, len(selection))
	for i, v := range selection {
		parts[i] = strconv.Itoa(v)
	}
	return "tile:" + sourceID + ":" + strings.Join(parts, ",")
}

// Stats returns cache statistics.
func (m *Manager) Stats() map[string]interface{} {
	stats := m.tileCache.Stats()
	return map[string]interface{}{
		"tile_cache_len":    m.tileCache.Len(),
		"tile_cache_cap":    m.tileCache.Capacity(),
		"tile_cache_hits":   stats.Hits,
		"tile_cache_misses": stats.Misses,
		"chunk_cache_len":   m.chunkCache.Len(),
	}
}

// Close closes the cache manager.
func (m *Manager) Close() error {
	return m.tileCache.Close()
}
