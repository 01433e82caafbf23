package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router. The api
// middlewares wrap every /api/v1 route in the given order; nil entries are
// skipped.
func MountRoutes(r chi.Router, h *Handlers, api ...func(http.Handler) http.Handler) {
	r.Get("/health", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		for _, mw := range api {
			if mw != nil {
				r.Use(mw)
			}
		}

		r.Get("/", h.Root)

		// Projects
		r.Get("/projects", h.ListProjects)
		r.Post("/projects", h.CreateProject)
		r.Get("/projects/{id}", h.GetProject)
		r.Put("/projects/{id}", h.UpdateProject)
		r.Delete("/projects/{id}", h.DeleteProject)

		// Tasks (nested under projects)
		r.Get("/projects/{id}/tasks", h.ListTasks)
		r.Post("/projects/{id}/tasks", h.CreateTask)
		r.Get("/projects/{id}/tasks/{taskId}", h.GetTask)
		r.Put("/projects/{id}/tasks/{taskId}", h.UpdateTask)
		r.Patch("/projects/{id}/tasks/{taskId}", h.UpdateTask)
		r.Delete("/projects/{id}/tasks/{taskId}", h.DeleteTask)

		// Success factors
		r.Get("/success-factors", h.ListSuccessFactors)
		r.Post("/success-factors/refresh", h.RefreshSuccessFactors)
		r.Get("/success-factors/{id}", h.GetSuccessFactor)
	})
}
