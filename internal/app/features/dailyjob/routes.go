// internal/app/features/dailyjob/routes.go
package dailyjob

import (
	"github.com/go-chi/chi/v5"
	"github.com/mkn8rn/mk8.identity/internal/app/system/auth"
	"github.com/mkn8rn/mk8.identity/internal/domain/models"
)

// Routes mounts the manual trigger under the base path
// (typically "/admin/daily-job" from bootstrap).
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()

	r.Group(func(pr chi.Router) {
		pr.Use(auth.RequireSignedIn)
		pr.Use(auth.RequireRole(models.RoleAdministrator))
		pr.Post("/run", h.HandleRun)
	})

	return r
}
