// internal/app/features/contributions/routes.go
package contributions

import (
	"github.com/go-chi/chi/v5"
	"github.com/mkn8rn/mk8.identity/internal/app/system/auth"
	"github.com/mkn8rn/mk8.identity/internal/domain/models"
)

// Routes mounts all contribution routes under the base path
// (typically "/contributions" from bootstrap).
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()

	// Member self-service
	r.Group(func(pr chi.Router) {
		pr.Use(auth.RequireSignedIn)
		pr.Post("/", h.HandleSubmit)
		pr.Get("/mine", h.ServeMine)
	})

	// Assessor validation queue
	r.Group(func(pr chi.Router) {
		pr.Use(auth.RequireSignedIn)
		pr.Use(auth.RequireRole(models.RoleAssessor, models.RoleAdministrator))
		pr.Get("/pending", h.ServePending)
		pr.Post("/validated", h.HandleAssessorCreate)
		pr.Post("/{id}/validate", h.HandleValidate)
	})

	// Staff queries
	r.Group(func(pr chi.Router) {
		pr.Use(auth.RequireSignedIn)
		pr.Use(auth.RequireStaff)
		pr.Get("/", h.ServeList)
		pr.Get("/{id}", h.ServeGet)
	})

	// Admin: external payment entry
	r.Group(func(pr chi.Router) {
		pr.Use(auth.RequireSignedIn)
		pr.Use(auth.RequireRole(models.RoleAdministrator))
		pr.Post("/auto-verify", h.HandleAutoVerify)
	})

	return r
}
