package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter wires every HTTP and websocket route to the app.
func NewRouter(app *App) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", app.HealthHandler)
	r.Get("/ping", app.PingHandler)

	r.Post("/upload", app.UploadHandler)
	r.Post("/process", app.ProcessHandler)
	r.Get("/videos", app.ListVideosHandler)
	r.Get("/videos/{id}", app.GetVideoHandler)
	r.Get("/videos/{id}/transcript", app.TranscriptHandler)
	r.Post("/search", app.SearchHandler)
	r.Get("/video/{filename}", app.ServeVideoHandler)
	r.Get("/ws/chat/{videoID}", app.ChatHandler)

	return r
}
