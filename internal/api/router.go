package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/dirstore/internal/tenant"
)

// EventSource streams the events of the partition chosen per request.
type EventSource interface {
	Handler(partitionOf func(*http.Request) string) http.Handler
}

// NewRouter creates a chi router with all API routes mounted.
// Admin routes are guarded by AuthMiddleware(auth); tenant routes log in per
// request with HTTP Basic credentials. events, if non-nil, is mounted at
// GET /events behind tenant auth.
func NewRouter(srv *tenant.Server, auth AuthConfig, events EventSource) chi.Router {
	h := NewHandler()
	ah := NewAdminHandler(srv)

	r := chi.NewRouter()

	r.Route("/admin", func(r chi.Router) {
		r.Use(AuthMiddleware(auth))
		r.Post("/users", ah.SignUp)
		r.Get("/users/{name}", ah.UserExists)
		r.Delete("/users/{name}", ah.DropUser)
	})

	r.Group(func(r chi.Router) {
		r.Use(TenantAuth(srv))

		r.Route("/fs", func(r chi.Router) {
			r.Get("/list/*", h.ListFiles)
			r.Get("/list", h.ListFiles)

			r.Get("/files/*", h.Download)
			r.Put("/files/*", h.Upload)
			r.Delete("/files/*", h.Remove)

			r.Post("/dirs/*", h.MakeDir)
			r.Delete("/dirs/*", h.RemoveDir)

			r.Post("/upload/*", h.UploadForm)
			r.Post("/move", h.MoveDir)
			r.Post("/rename", h.Rename)

			r.Get("/versions/*", h.Versions)
			r.Post("/prune/*", h.Prune)
		})

		if events != nil {
			r.Get("/events", events.Handler(partitionOf).ServeHTTP)
		}
	})

	return r
}
