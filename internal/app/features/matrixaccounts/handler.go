// internal/app/features/matrixaccounts/handler.go
package matrixaccounts

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	matrixaccountstore "github.com/mkn8rn/mk8.identity/internal/app/store/matrixaccounts"
	membershipstore "github.com/mkn8rn/mk8.identity/internal/app/store/memberships"
	privilegesstore "github.com/mkn8rn/mk8.identity/internal/app/store/privileges"
	"github.com/mkn8rn/mk8.identity/internal/app/system/auth"
	"github.com/mkn8rn/mk8.identity/internal/app/system/httpx"
	"github.com/mkn8rn/mk8.identity/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Handler manages the Matrix account directory: admin-created records,
// member self-service listing, and enable/disable state.
type Handler struct {
	Accounts    *matrixaccountstore.Store
	Directory   *matrixaccountstore.Directory
	Privileges  *privilegesstore.Store
	Memberships *membershipstore.Store
	Homeserver  string
	Log         *zap.Logger
}

// NewHandler constructs a matrix accounts handler.
func NewHandler(
	accounts *matrixaccountstore.Store,
	directory *matrixaccountstore.Directory,
	privileges *privilegesstore.Store,
	memberships *membershipstore.Store,
	homeserver string,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		Accounts:    accounts,
		Directory:   directory,
		Privileges:  privileges,
		Memberships: memberships,
		Homeserver:  homeserver,
		Log:         logger,
	}
}

type createRequest struct {
	MembershipID string `json:"membership_id"`
	Username     string `json:"username"`
}

// HandleCreate records an account directly, outside of the message request
// flow. POST /matrix-accounts (admin).
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	su, _ := auth.CurrentUser(r)

	var req createRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" {
		httpx.Error(w, http.StatusUnprocessableEntity, "username is required")
		return
	}
	membershipID, err := primitive.ObjectIDFromHex(req.MembershipID)
	if err != nil {
		httpx.Error(w, http.StatusUnprocessableEntity, "membership_id must be a valid id")
		return
	}

	if _, err := h.Memberships.GetByID(r.Context(), membershipID); err != nil {
		if errors.Is(err, membershipstore.ErrNotFound) {
			httpx.Error(w, http.StatusNotFound, "membership not found")
			return
		}
		h.Log.Error("membership lookup failed", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	adminMembership, err := h.Memberships.GetByUserID(r.Context(), su.ID)
	if err != nil {
		h.Log.Error("admin membership lookup failed", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	privs, err := h.Privileges.GetOrCreateByMembership(r.Context(), membershipID)
	if err != nil {
		h.Log.Error("privileges lookup failed", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "creation failed")
		return
	}

	account, err := h.Accounts.Insert(r.Context(), models.MatrixAccount{
		AccountID:             fmt.Sprintf("@%s:%s", req.Username, h.Homeserver),
		Username:              req.Username,
		CreatedAt:             time.Now().UTC(),
		PrivilegesID:          privs.ID,
		CreatedByMembershipID: &adminMembership.ID,
	})
	if err != nil {
		if errors.Is(err, matrixaccountstore.ErrDuplicateUsername) {
			httpx.Error(w, http.StatusConflict, "matrix username already taken")
			return
		}
		h.Log.Error("matrix account insert failed", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "creation failed")
		return
	}

	httpx.JSON(w, http.StatusCreated, account)
}

// ServeList returns every account record. GET /matrix-accounts (admin).
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	list, err := h.Accounts.ListAll(r.Context())
	if err != nil {
		h.Log.Error("matrix account list failed", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "listing failed")
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

// ServeMine lists the signed-in member's own accounts.
// GET /matrix-accounts/mine.
func (h *Handler) ServeMine(w http.ResponseWriter, r *http.Request) {
	su, _ := auth.CurrentUser(r)

	m, err := h.Memberships.GetByUserID(r.Context(), su.ID)
	if err != nil {
		if errors.Is(err, membershipstore.ErrNotFound) {
			httpx.Error(w, http.StatusNotFound, "no membership for this user")
			return
		}
		h.Log.Error("membership lookup failed", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	list, err := h.Directory.ListForMembership(r.Context(), m.ID)
	if err != nil {
		h.Log.Error("matrix account list failed", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "listing failed")
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

// HandleDisable flags an account as disabled on the homeserver side.
// POST /matrix-accounts/{id}/disable (admin).
func (h *Handler) HandleDisable(w http.ResponseWriter, r *http.Request) {
	su, _ := auth.CurrentUser(r)

	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid account id")
		return
	}

	adminMembership, err := h.Memberships.GetByUserID(r.Context(), su.ID)
	if err != nil {
		h.Log.Error("admin membership lookup failed", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	if err := h.Accounts.Disable(r.Context(), id, adminMembership.ID); err != nil {
		if errors.Is(err, matrixaccountstore.ErrNotFound) {
			httpx.Error(w, http.StatusNotFound, "matrix account not found")
			return
		}
		h.Log.Error("matrix account disable failed", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "update failed")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleEnable re-enables a disabled account. The owning membership must be
// active. POST /matrix-accounts/{id}/enable (admin).
func (h *Handler) HandleEnable(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid account id")
		return
	}

	account, err := h.Accounts.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, matrixaccountstore.ErrNotFound) {
			httpx.Error(w, http.StatusNotFound, "matrix account not found")
			return
		}
		h.Log.Error("matrix account lookup failed", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	privs, err := h.Privileges.GetByID(r.Context(), account.PrivilegesID)
	if err != nil {
		h.Log.Error("privileges lookup failed", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	owner, err := h.Memberships.GetByID(r.Context(), privs.MembershipID)
	if err != nil {
		h.Log.Error("owner membership lookup failed", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	if !owner.IsActive {
		httpx.Error(w, http.StatusConflict, "owning membership is not active")
		return
	}

	if err := h.Accounts.Enable(r.Context(), id); err != nil {
		h.Log.Error("matrix account enable failed", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "update failed")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
