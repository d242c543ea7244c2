package httpapi

import (
	"encoding/base64"
	"net/http"
	"strconv"
	"strings"

	"github.com/gridwalk-io/gridwalk/internal/upload"
)

// CreateLayer implements POST /layers: it creates a Layer in
// StatusUploading and returns its location, mirroring post_tus.rs and
// unrouted_handler.go's PostFile.
func (a *API) CreateLayer(w http.ResponseWriter, r *http.Request) {
	meta := parseUploadMetadata(r.Header.Get("Upload-Metadata"))

	deferLength := r.Header.Get("Upload-Defer-Length") == "1"
	lengthHeader := r.Header.Get("Upload-Length")

	var totalSize *int64
	if !deferLength {
		if lengthHeader == "" {
			writeError(w, NewError("invalid_length", "Upload-Length or Upload-Defer-Length is required", http.StatusBadRequest))
			return
		}
		n, err := strconv.ParseInt(lengthHeader, 10, 64)
		if err != nil || n < 0 {
			writeError(w, NewError("invalid_length", "Upload-Length must be a non-negative integer", http.StatusBadRequest))
			return
		}
		totalSize = &n
	}

	uploadType := meta["upload_type"]
	if uploadType == "" {
		uploadType = "geopackage"
	}

	l, err := a.app.StateMachine.Create(r.Context(), upload.CreateParams{
		Name:        meta["name"],
		TotalSize:   totalSize,
		DeferLength: deferLength,
		UploadType:  uploadType,
	})
	if err != nil {
		writeError(w, NewError("create_failed", err.Error(), http.StatusInternalServerError))
		return
	}

	a.app.Metrics.UploadsCreated.Inc()

	w.Header().Set("Location", "/layers/"+l.ID.String())
	w.Header().Set("Upload-Offset", "0")
	w.WriteHeader(http.StatusCreated)
}

// parseUploadMetadata decodes the tus Upload-Metadata header: a
// comma-separated list of "key base64value" pairs.
func parseUploadMetadata(header string) map[string]string {
	out := make(map[string]string)
	if header == "" {
		return out
	}
	for _, pair := range strings.Split(header, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), " ", 2)
		if len(parts) != 2 {
			continue
		}
		decoded, err := base64.StdEncoding.DecodeString(parts[1])
		if err != nil {
			continue
		}
		out[parts[0]] = string(decoded)
	}
	return out
}
