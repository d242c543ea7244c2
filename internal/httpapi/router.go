// Package httpapi wires the tus-protocol upload endpoints and the tile
// read endpoint onto a chi router, the way routed_handler.go and
// unrouted_handler.go compose tusd's method dispatch.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/handlers"
	"github.com/gridwalk-io/gridwalk/internal/config"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// NewRouter builds the full HTTP route table for app.
func NewRouter(app *config.App, logger zerolog.Logger, metricsPath string) http.Handler {
	api := &API{app: app}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(logger))
	r.Use(handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "POST", "PATCH", "HEAD", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Tus-Resumable", "Upload-Length", "Upload-Defer-Length", "Upload-Offset", "Upload-Metadata", "Content-Type"}),
		handlers.ExposedHeaders([]string{"Tus-Resumable", "Upload-Offset", "Upload-Length", "Location"}),
	))

	r.Route("/layers", func(r chi.Router) {
		r.Use(TusResumable)
		r.Post("/", api.CreateLayer)
		r.Get("/", api.ListLayers)

		r.Route("/{id}", func(r chi.Router) {
			r.Patch("/", api.AppendChunk)
			r.Head("/", api.HeadLayer)
			r.Get("/", api.GetLayer)
			r.Get("/tiles/{z}/{x}/{y}", api.GetTile)
		})
	})

	r.Handle(metricsPath, promhttp.Handler())

	return r
}

// API holds the dependencies every handler method needs.
type API struct {
	app *config.App
}
