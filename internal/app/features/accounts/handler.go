// internal/app/features/accounts/handler.go
package accounts

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	membershipstore "github.com/mkn8rn/mk8.identity/internal/app/store/memberships"
	privilegesstore "github.com/mkn8rn/mk8.identity/internal/app/store/privileges"
	userstore "github.com/mkn8rn/mk8.identity/internal/app/store/users"
	"github.com/mkn8rn/mk8.identity/internal/app/system/auth"
	"github.com/mkn8rn/mk8.identity/internal/app/system/httpx"
	"github.com/mkn8rn/mk8.identity/internal/app/system/notify"
	"github.com/mkn8rn/mk8.identity/internal/domain/models"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLength = 8
	maxUsernameLength = 64
)

// Handler is the feature-level entry point for account management.
type Handler struct {
	Users       *userstore.Store
	Memberships *membershipstore.Store
	Privileges  *privilegesstore.Store
	Sink        notify.Sink
	Log         *zap.Logger
}

// NewHandler constructs an accounts handler.
func NewHandler(
	users *userstore.Store,
	memberships *membershipstore.Store,
	privileges *privilegesstore.Store,
	sink notify.Sink,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		Users:       users,
		Memberships: memberships,
		Privileges:  privileges,
		Sink:        sink,
		Log:         logger,
	}
}

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// HandleRegister creates a user, its inactive membership, and its
// privileges record, then notifies staff. POST /accounts/register.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || len(req.Username) > maxUsernameLength {
		httpx.Error(w, http.StatusUnprocessableEntity, "username is required and must be at most 64 characters")
		return
	}
	if len(req.Password) < minPasswordLength {
		httpx.Error(w, http.StatusUnprocessableEntity, "password must be at least 8 characters")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.Log.Error("register: password hash failed", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "registration failed")
		return
	}

	user, err := h.Users.Create(r.Context(), req.Username, string(hash))
	if err != nil {
		if errors.Is(err, userstore.ErrDuplicateUsername) {
			httpx.Error(w, http.StatusConflict, "username already taken")
			return
		}
		h.Log.Error("register: user create failed", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "registration failed")
		return
	}

	membership, err := h.Memberships.Create(r.Context(), user.ID)
	if err != nil {
		h.Log.Error("register: membership create failed",
			zap.String("user_id", user.ID.Hex()), zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "registration failed")
		return
	}

	if _, err := h.Privileges.GetOrCreateByMembership(r.Context(), membership.ID); err != nil {
		h.Log.Error("register: privileges create failed",
			zap.String("membership_id", membership.ID.Hex()), zap.Error(err))
	}

	if err := h.Sink.NewUserRegistered(r.Context(), user.ID, user.Username); err != nil {
		h.Log.Warn("register: notification failed",
			zap.String("username", user.Username), zap.Error(err))
	}

	httpx.JSON(w, http.StatusCreated, user)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// HandleLogin verifies credentials and starts a cookie session.
// POST /accounts/login.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	user, err := h.Users.GetByUsername(r.Context(), req.Username)
	if err != nil {
		if errors.Is(err, userstore.ErrNotFound) {
			httpx.Error(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		h.Log.Error("login: user lookup failed", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "login failed")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		httpx.Error(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	if err := auth.SignIn(w, r, user); err != nil {
		h.Log.Error("login: session write failed", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "login failed")
		return
	}

	httpx.JSON(w, http.StatusOK, user)
}

// HandleLogout clears the session. POST /accounts/logout.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if err := auth.SignOut(w, r); err != nil {
		h.Log.Error("logout: session clear failed", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "logout failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ServeMe returns the signed-in user's fresh record. GET /accounts/me.
func (h *Handler) ServeMe(w http.ResponseWriter, r *http.Request) {
	su, _ := auth.CurrentUser(r)

	user, err := h.Users.GetByID(r.Context(), su.ID)
	if err != nil {
		if errors.Is(err, userstore.ErrNotFound) {
			httpx.Error(w, http.StatusUnauthorized, "account no longer exists")
			return
		}
		h.Log.Error("me: user lookup failed", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	httpx.JSON(w, http.StatusOK, user)
}

// ServeList returns all users. GET /accounts (staff only).
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	users, err := h.Users.List(r.Context())
	if err != nil {
		h.Log.Error("accounts list failed", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "listing failed")
		return
	}
	httpx.JSON(w, http.StatusOK, users)
}

type roleRequest struct {
	Role string `json:"role"`
}

// HandleAssignRole grants a role to a user. POST /accounts/{id}/roles.
func (h *Handler) HandleAssignRole(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid user id")
		return
	}

	var req roleRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	role := models.ParseRole(req.Role)
	if role == models.RoleNone {
		httpx.Error(w, http.StatusUnprocessableEntity, "unknown role")
		return
	}

	if err := h.Users.AddRole(r.Context(), id, role); err != nil {
		if errors.Is(err, userstore.ErrNotFound) {
			httpx.Error(w, http.StatusNotFound, "user not found")
			return
		}
		h.Log.Error("role assign failed", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "role assignment failed")
		return
	}

	h.Log.Info("role assigned",
		zap.String("user_id", id.Hex()), zap.String("role", role.String()))
	w.WriteHeader(http.StatusNoContent)
}

// HandleRemoveRole revokes a role from a user.
// DELETE /accounts/{id}/roles/{role}.
func (h *Handler) HandleRemoveRole(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid user id")
		return
	}

	role := models.ParseRole(chi.URLParam(r, "role"))
	if role == models.RoleNone {
		httpx.Error(w, http.StatusUnprocessableEntity, "unknown role")
		return
	}

	if err := h.Users.RemoveRole(r.Context(), id, role); err != nil {
		if errors.Is(err, userstore.ErrNotFound) {
			httpx.Error(w, http.StatusNotFound, "user not found")
			return
		}
		h.Log.Error("role remove failed", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "role removal failed")
		return
	}

	h.Log.Info("role removed",
		zap.String("user_id", id.Hex()), zap.String("role", role.String()))
	w.WriteHeader(http.StatusNoContent)
}
