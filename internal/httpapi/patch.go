package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gridwalk-io/gridwalk/internal/layer"
	"github.com/gridwalk-io/gridwalk/internal/upload"
)

const maxPatchBody = 512 << 20 // 512 MiB per chunk, matching tusd's sane-default chunk sizing

// AppendChunk implements PATCH /layers/{id}: it appends one chunk to an
// in-progress upload and, on the chunk that completes it, triggers
// ingestion synchronously before responding — mirroring patch_tus.rs,
// which runs GDAL processing and the database insert inline on the
// request that completes the upload.
func (a *API) AppendChunk(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, NewError("invalid_id", "layer id must be a UUID", http.StatusBadRequest))
		return
	}

	if err := a.app.Locker.Lock(r.Context(), id); err != nil {
		writeError(w, NewError("lock_timeout", "timed out waiting for exclusive access to this upload", http.StatusConflict))
		return
	}
	defer a.app.Locker.Unlock(id)

	if ct := r.Header.Get("Content-Type"); ct != "application/offset+octet-stream" {
		writeError(w, NewError("invalid_content_type", "Content-Type must be application/offset+octet-stream", http.StatusBadRequest))
		return
	}

	offsetHeader := r.Header.Get("Upload-Offset")
	offset, err := strconv.ParseInt(offsetHeader, 10, 64)
	if err != nil {
		writeError(w, NewError("invalid_offset", "Upload-Offset must be a valid integer", http.StatusBadRequest))
		return
	}

	if lengthHeader := r.Header.Get("Upload-Length"); lengthHeader != "" {
		total, err := strconv.ParseInt(lengthHeader, 10, 64)
		if err != nil || total < 0 {
			writeError(w, NewError("invalid_length", "Upload-Length must be a non-negative integer", http.StatusBadRequest))
			return
		}
		if _, err := a.app.StateMachine.DeclareLength(r.Context(), id, total); err != nil && !errors.Is(err, upload.ErrLengthAlreadyDeclared) {
			writeError(w, mapUploadError(err))
			return
		}
	}

	body := http.MaxBytesReader(w, r.Body, maxPatchBody)
	l, err := a.app.StateMachine.AppendChunk(r.Context(), id, offset, body)
	if err != nil {
		writeError(w, mapUploadError(err))
		return
	}
	a.app.Metrics.BytesReceived.Add(float64(l.CurrentOffset - offset))

	w.Header().Set("Upload-Offset", strconv.FormatInt(l.CurrentOffset, 10))
	w.WriteHeader(http.StatusNoContent)
}

func mapUploadError(err error) APIError {
	var mismatch *upload.OffsetMismatchError
	switch {
	case errors.Is(err, layer.ErrNotFound):
		return NewError("not_found", "layer not found", http.StatusNotFound)
	case errors.Is(err, upload.ErrNotUploading):
		return NewError("conflict", "layer is not in uploading state", http.StatusConflict)
	case errors.As(err, &mismatch):
		return NewErrorWithFields("offset_mismatch", err.Error(), http.StatusConflict, map[string]any{
			"expected": mismatch.Expected,
			"received": mismatch.Received,
		})
	case errors.Is(err, upload.ErrExceedsDeclaredSize):
		return NewError("too_large", "chunk would exceed declared upload size", http.StatusRequestEntityTooLarge)
	case errors.Is(err, io.ErrUnexpectedEOF):
		return NewError("incomplete_body", "request body ended unexpectedly", http.StatusBadRequest)
	default:
		return NewError("internal_error", err.Error(), http.StatusInternalServerError)
	}
}
