// internal/app/features/accounts/routes.go
package accounts

import (
	"github.com/go-chi/chi/v5"
	"github.com/mkn8rn/mk8.identity/internal/app/system/auth"
	"github.com/mkn8rn/mk8.identity/internal/domain/models"
)

// Routes mounts all account routes under the base path
// (typically "/accounts" from bootstrap).
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()

	// Public
	r.Post("/register", h.HandleRegister)
	r.Post("/login", h.HandleLogin)

	// Signed-in
	r.Group(func(pr chi.Router) {
		pr.Use(auth.RequireSignedIn)
		pr.Post("/logout", h.HandleLogout)
		pr.Get("/me", h.ServeMe)
	})

	// Staff
	r.Group(func(pr chi.Router) {
		pr.Use(auth.RequireSignedIn)
		pr.Use(auth.RequireStaff)
		pr.Get("/", h.ServeList)
	})

	// Admin role management
	r.Group(func(pr chi.Router) {
		pr.Use(auth.RequireSignedIn)
		pr.Use(auth.RequireRole(models.RoleAdministrator))
		pr.Post("/{id}/roles", h.HandleAssignRole)
		pr.Delete("/{id}/roles/{role}", h.HandleRemoveRole)
	})

	return r
}
