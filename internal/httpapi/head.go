package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gridwalk-io/gridwalk/internal/layer"
)

// HeadLayer implements HEAD /layers/{id}: reports the current upload
// offset and deferred-length state so a client can resume, the endpoint
// the original Rust implementation left as a TODO (patch_tus.rs) and
// this expansion fills in.
func (a *API) HeadLayer(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, NewError("invalid_id", "layer id must be a UUID", http.StatusBadRequest))
		return
	}

	l, err := a.app.Layers.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, layer.ErrNotFound) {
			writeError(w, NewError("not_found", "layer not found", http.StatusNotFound))
			return
		}
		writeError(w, NewError("internal_error", err.Error(), http.StatusInternalServerError))
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Upload-Offset", strconv.FormatInt(l.CurrentOffset, 10))
	if l.SizeKnown() {
		w.Header().Set("Upload-Length", strconv.FormatInt(*l.TotalSize, 10))
	} else {
		w.Header().Set("Upload-Defer-Length", "1")
	}
	w.WriteHeader(http.StatusOK)
}

// GetLayer implements GET /layers/{id}: returns the layer's current
// metadata record, for polling ingestion status after AppendChunk
// completes an upload.
func (a *API) GetLayer(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, NewError("invalid_id", "layer id must be a UUID", http.StatusBadRequest))
		return
	}

	l, err := a.app.Layers.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, layer.ErrNotFound) {
			writeError(w, NewError("not_found", "layer not found", http.StatusNotFound))
			return
		}
		writeError(w, NewError("internal_error", err.Error(), http.StatusInternalServerError))
		return
	}

	writeJSON(w, http.StatusOK, l)
}
