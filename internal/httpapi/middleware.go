package httpapi

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

// TusResumableVersion is the only tus protocol version this service
// speaks, echoed back on every response per the tus protocol's
// Tus-Resumable negotiation.
const TusResumableVersion = "1.0.0"

// TusResumable sets the Tus-Resumable response header on every request
// and rejects a client declaring an unsupported protocol version, the
// same negotiation unrouted_handler.go's Middleware performs.
func TusResumable(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Tus-Resumable", TusResumableVersion)

		v := r.Header.Get("Tus-Resumable")
		if v == "" {
			writeError(w, NewError("missing_tus_resumable", "Tus-Resumable header is required", http.StatusBadRequest))
			return
		}
		if v != TusResumableVersion {
			writeError(w, NewError("unsupported_version", "Tus-Resumable version not supported", http.StatusPreconditionFailed))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequestLogger logs each request's method, path, status, and duration
// with zerolog, the structured logger this service uses throughout.
func RequestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	h := hlog.NewHandler(logger)
	accessLog := hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Dur("duration", duration).
			Msg("request")
	})
	return func(next http.Handler) http.Handler {
		return h(accessLog(next))
	}
}
