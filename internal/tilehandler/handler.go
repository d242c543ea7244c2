// Package tilehandler implements the read path of GET
// /layers/{id}/tiles/{z}/{x}/{y}: a cache lookup in front of the
// SpatialStore's MVT rendering.
package tilehandler

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/gridwalk-io/gridwalk/internal/metrics"
	"github.com/gridwalk-io/gridwalk/internal/spatial"
)

// Handler serves MVT tiles, checking the TileCache before falling
// through to SpatialStore.GetTile and populating the cache on a miss.
type Handler struct {
	Spatial spatial.Store
	Cache   *spatial.TileCache
	Metrics *metrics.Metrics
}

// Tile returns the raw MVT bytes for layer id at z/x/y, or a nil slice
// (not an error) if the tile has no intersecting features — the caller
// maps that to a 204, matching tiles.rs's empty-tile handling.
func (h *Handler) Tile(ctx context.Context, id uuid.UUID, z, x, y int) ([]byte, error) {
	if h.Cache != nil {
		if tile, ok := h.Cache.Get(ctx, id.String(), z, x, y); ok {
			if h.Metrics != nil {
				h.Metrics.TileCacheHits.Inc()
			}
			return tile, nil
		}
	}
	if h.Metrics != nil {
		h.Metrics.TileCacheMisses.Inc()
	}

	tile, err := h.Spatial.GetTile(ctx, id, z, x, y)
	if err != nil {
		return nil, fmt.Errorf("tilehandler: get tile: %w", err)
	}

	if h.Cache != nil && len(tile) > 0 {
		h.Cache.Set(ctx, id.String(), z, x, y, tile)
	}
	return tile, nil
}
