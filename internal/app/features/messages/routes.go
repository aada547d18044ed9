// internal/app/features/messages/routes.go
package messages

import (
	"github.com/go-chi/chi/v5"
	"github.com/mkn8rn/mk8.identity/internal/app/system/auth"
	"github.com/mkn8rn/mk8.identity/internal/domain/models"
)

// Routes mounts all message routes under the base path
// (typically "/messages" from bootstrap).
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()

	// Member self-service
	r.Group(func(pr chi.Router) {
		pr.Use(auth.RequireSignedIn)
		pr.Post("/support", h.HandleSupportRequest)
		pr.Post("/matrix-request", h.HandleMatrixRequest)
		pr.Get("/mine", h.ServeMine)
	})

	// Staff handling
	r.Group(func(pr chi.Router) {
		pr.Use(auth.RequireSignedIn)
		pr.Use(auth.RequireStaff)
		pr.Get("/", h.ServeList)
		pr.Post("/{id}/status", h.HandleSetStatus)
	})

	// Admin: Matrix account provisioning
	r.Group(func(pr chi.Router) {
		pr.Use(auth.RequireSignedIn)
		pr.Use(auth.RequireRole(models.RoleAdministrator))
		pr.Post("/{id}/complete-matrix", h.HandleCompleteMatrix)
	})

	return r
}
