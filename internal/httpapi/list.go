package httpapi

import (
	"net/http"
	"strconv"
)

// ListLayers implements GET /layers, mirroring get_layers.rs's
// pagination-by-limit-and-offset.
func (a *API) ListLayers(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	layers, err := a.app.Layers.List(r.Context(), limit, offset)
	if err != nil {
		writeError(w, NewError("internal_error", err.Error(), http.StatusInternalServerError))
		return
	}

	writeJSON(w, http.StatusOK, layers)
}
