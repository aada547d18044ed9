// internal/app/features/memberships/routes.go
package memberships

import (
	"github.com/go-chi/chi/v5"
	"github.com/mkn8rn/mk8.identity/internal/app/system/auth"
	"github.com/mkn8rn/mk8.identity/internal/domain/models"
)

// Routes mounts all membership routes under the base path
// (typically "/memberships" from bootstrap).
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()

	// Member self-service
	r.Group(func(pr chi.Router) {
		pr.Use(auth.RequireSignedIn)
		pr.Get("/me/status", h.ServeMyStatus)
	})

	// Staff queries
	r.Group(func(pr chi.Router) {
		pr.Use(auth.RequireSignedIn)
		pr.Use(auth.RequireStaff)
		pr.Get("/", h.ServeList)
		pr.Get("/expiring", h.ServeExpiring)
		pr.Get("/{id}", h.ServeDetails)
		pr.Get("/{id}/privileges", h.ServePrivileges)
	})

	// Admin transitions and grants
	r.Group(func(pr chi.Router) {
		pr.Use(auth.RequireSignedIn)
		pr.Use(auth.RequireRole(models.RoleAdministrator))
		pr.Post("/user/{userID}/activate", h.HandleActivate)
		pr.Post("/user/{userID}/deactivate", h.HandleDeactivate)
		pr.Post("/{id}/voting-rights", h.HandleSetVotingRights)
	})

	return r
}
