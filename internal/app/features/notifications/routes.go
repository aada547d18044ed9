// internal/app/features/notifications/routes.go
package notifications

import (
	"github.com/go-chi/chi/v5"
	"github.com/mkn8rn/mk8.identity/internal/app/system/auth"
)

// Routes mounts all notification routes under the base path
// (typically "/notifications" from bootstrap). Every route is staff-only;
// within that, visibility is narrowed per viewer role in the handlers.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()

	r.Group(func(pr chi.Router) {
		pr.Use(auth.RequireSignedIn)
		pr.Use(auth.RequireStaff)
		pr.Get("/", h.ServeList)
		pr.Get("/unread-count", h.ServeUnreadCount)
		pr.Post("/read-all", h.HandleMarkAllRead)
		pr.Post("/{id}/read", h.HandleMarkRead)
		pr.Post("/{id}/complete", h.HandleMarkCompleted)
	})

	return r
}
