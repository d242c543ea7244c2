package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gridwalk-io/gridwalk/internal/spatial"
)

// GetTile implements GET /layers/{id}/tiles/{z}/{x}/{y}, mirroring
// tiles.rs: a 204 for a genuinely empty tile, the MVT content type and a
// cache-control header for a populated one.
func (a *API) GetTile(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, NewError("invalid_id", "layer id must be a UUID", http.StatusBadRequest))
		return
	}

	z, zErr := strconv.Atoi(chi.URLParam(r, "z"))
	x, xErr := strconv.Atoi(chi.URLParam(r, "x"))
	y, yErr := strconv.Atoi(chi.URLParam(r, "y"))
	if zErr != nil || xErr != nil || yErr != nil {
		writeError(w, NewError("invalid_tile", "z, x, and y must be integers", http.StatusBadRequest))
		return
	}

	tile, err := a.app.TileHandler.Tile(r.Context(), id, z, x, y)
	if err != nil {
		if errors.Is(err, spatial.ErrLayerNotFound) {
			a.app.Metrics.TileRequests.WithLabelValues("not_found").Inc()
			writeError(w, NewError("not_found", "layer not found", http.StatusNotFound))
			return
		}
		a.app.Metrics.TileRequests.WithLabelValues("error").Inc()
		writeError(w, NewError("internal_error", err.Error(), http.StatusInternalServerError))
		return
	}

	if len(tile) == 0 {
		a.app.Metrics.TileRequests.WithLabelValues("empty").Inc()
		w.WriteHeader(http.StatusNoContent)
		return
	}

	a.app.Metrics.TileRequests.WithLabelValues("ok").Inc()
	w.Header().Set("Content-Type", "application/vnd.mapbox-vector-tile")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(tile)
}
