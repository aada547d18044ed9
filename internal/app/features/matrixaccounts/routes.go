// internal/app/features/matrixaccounts/routes.go
package matrixaccounts

import (
	"github.com/go-chi/chi/v5"
	"github.com/mkn8rn/mk8.identity/internal/app/system/auth"
	"github.com/mkn8rn/mk8.identity/internal/domain/models"
)

// Routes mounts all matrix account routes under the base path
// (typically "/matrix-accounts" from bootstrap).
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()

	// Member self-service
	r.Group(func(pr chi.Router) {
		pr.Use(auth.RequireSignedIn)
		pr.Get("/mine", h.ServeMine)
	})

	// Admin directory management
	r.Group(func(pr chi.Router) {
		pr.Use(auth.RequireSignedIn)
		pr.Use(auth.RequireRole(models.RoleAdministrator))
		pr.Post("/", h.HandleCreate)
		pr.Get("/", h.ServeList)
		pr.Post("/{id}/disable", h.HandleDisable)
		pr.Post("/{id}/enable", h.HandleEnable)
	})

	return r
}
