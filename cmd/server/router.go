package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/phrazzld/scribe-api/internal/api"
	apiMiddleware "github.com/phrazzld/scribe-api/internal/api/middleware"
)

// setupRouter creates the router with all routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.NewTraceMiddleware(app.logger))

	authMiddleware := apiMiddleware.NewAuthMiddleware(app.tokens)
	audioHandler := api.NewAudioHandler(app.jobs, app.logger)
	statusHandler := api.NewStatusHandler(app.notifier, app.config.Notifier.WriteTimeout, app.logger)

	healthHandler := api.NewHealthHandler(app.db)

	r.Get("/health", healthHandler.Check)

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)

			r.Post("/audio", audioHandler.Register)
			r.Post("/audio/{id}/process", audioHandler.Process)
			r.Get("/audio/{id}/status", audioHandler.Status)
			r.Get("/audio/{id}/summary", audioHandler.Summary)

			// Status stream
			r.Get("/status/sse", statusHandler.Stream)
			r.Get("/status/sse/connections", statusHandler.Connections)
		})
	})

	return r
}
