// internal/app/features/memberships/handler.go
package memberships

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	contributionstore "github.com/mkn8rn/mk8.identity/internal/app/store/contributions"
	membershipstore "github.com/mkn8rn/mk8.identity/internal/app/store/memberships"
	privilegesstore "github.com/mkn8rn/mk8.identity/internal/app/store/privileges"
	userstore "github.com/mkn8rn/mk8.identity/internal/app/store/users"
	"github.com/mkn8rn/mk8.identity/internal/app/system/auth"
	"github.com/mkn8rn/mk8.identity/internal/app/system/httpx"
	"github.com/mkn8rn/mk8.identity/internal/app/system/lifecycle"
	"github.com/mkn8rn/mk8.identity/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const defaultExpiringDays = 30

// Lifecycle is the slice of the membership state machine this feature
// drives: explicit admin transitions.
type Lifecycle interface {
	Activate(ctx context.Context, userID primitive.ObjectID) error
	Deactivate(ctx context.Context, userID primitive.ObjectID) error
}

// Handler is the feature-level entry point for membership queries and
// admin transitions.
type Handler struct {
	Memberships   *membershipstore.Store
	Contributions *contributionstore.Store
	Users         *userstore.Store
	Privileges    *privilegesstore.Store
	Lifecycle     Lifecycle
	Log           *zap.Logger

	// now is swapped out in tests.
	now func() time.Time
}

// NewHandler constructs a memberships handler.
func NewHandler(
	memberships *membershipstore.Store,
	contributions *contributionstore.Store,
	users *userstore.Store,
	privileges *privilegesstore.Store,
	lc Lifecycle,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		Memberships:   memberships,
		Contributions: contributions,
		Users:         users,
		Privileges:    privileges,
		Lifecycle:     lc,
		Log:           logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// statusResponse is the member-facing summary of membership standing.
type statusResponse struct {
	UserID            string     `json:"user_id"`
	Username          string     `json:"username"`
	IsActive          bool       `json:"is_active"`
	IsInGracePeriod   bool       `json:"is_in_grace_period"`
	YearsAsMember     int        `json:"years_as_member"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
	MonthsRemaining   int        `json:"months_remaining"`
	GraceMonthsEarned int        `json:"grace_months_earned"`
	GraceMonthsUsed   int        `json:"grace_months_used"`
	LastContribution  *time.Time `json:"last_contribution,omitempty"`
}

// ServeMyStatus reports the signed-in member's standing.
// GET /memberships/me/status.
func (h *Handler) ServeMyStatus(w http.ResponseWriter, r *http.Request) {
	su, _ := auth.CurrentUser(r)
	h.serveStatus(w, r, su.ID, su.Username)
}

func (h *Handler) serveStatus(w http.ResponseWriter, r *http.Request, userID primitive.ObjectID, username string) {
	m, err := h.Memberships.GetByUserID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, membershipstore.ErrNotFound) {
			httpx.Error(w, http.StatusNotFound, "no membership for this user")
			return
		}
		h.Log.Error("status: membership lookup failed", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	now := h.now()
	resp := statusResponse{
		UserID:            userID.Hex(),
		Username:          username,
		IsActive:          m.IsActive,
		IsInGracePeriod:   m.IsInGracePeriod,
		YearsAsMember:     lifecycle.YearsAsMember(m.StartDate, now),
		ExpiresAt:         m.ExpiresAt,
		GraceMonthsEarned: m.GracePeriodMonthsEarned,
		GraceMonthsUsed:   m.GracePeriodMonthsUsed,
	}
	if m.ExpiresAt != nil && m.ExpiresAt.After(now) {
		resp.MonthsRemaining = int(m.ExpiresAt.Sub(now).Hours() / 24 / 30)
	}

	last, err := h.Contributions.LatestQualifying(r.Context(), m.ID)
	if err != nil {
		h.Log.Warn("status: latest contribution lookup failed", zap.Error(err))
	} else if last != nil {
		resp.LastContribution = &last.PeriodEnd
	}

	httpx.JSON(w, http.StatusOK, resp)
}

// detailsResponse pairs the raw membership record with its owner.
type detailsResponse struct {
	Membership *models.Membership `json:"membership"`
	Username   string             `json:"username"`
}

// ServeDetails returns the full membership record including transition
// history. GET /memberships/{id} (staff).
func (h *Handler) ServeDetails(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid membership id")
		return
	}

	m, err := h.Memberships.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, membershipstore.ErrNotFound) {
			httpx.Error(w, http.StatusNotFound, "membership not found")
			return
		}
		h.Log.Error("details: membership lookup failed", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	resp := detailsResponse{Membership: m}
	if u, err := h.Users.GetByID(r.Context(), m.UserID); err == nil {
		resp.Username = u.Username
	}

	httpx.JSON(w, http.StatusOK, resp)
}

// ServeList returns memberships filtered by state.
// GET /memberships?state=active|inactive|grace (staff).
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	var (
		list []models.Membership
		err  error
	)
	switch r.URL.Query().Get("state") {
	case "active":
		list, err = h.Memberships.ListActive(r.Context())
	case "inactive":
		list, err = h.Memberships.ListInactive(r.Context())
	case "grace":
		list, err = h.Memberships.ListInGracePeriod(r.Context())
	case "":
		list, err = h.Memberships.List(r.Context())
	default:
		httpx.Error(w, http.StatusBadRequest, "state must be active, inactive, or grace")
		return
	}
	if err != nil {
		h.Log.Error("membership list failed", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "listing failed")
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

// ServeExpiring returns active memberships whose expiry falls within the
// given window. GET /memberships/expiring?days=N (staff).
func (h *Handler) ServeExpiring(w http.ResponseWriter, r *http.Request) {
	days := defaultExpiringDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httpx.Error(w, http.StatusBadRequest, "days must be a positive integer")
			return
		}
		days = n
	}

	cutoff := h.now().AddDate(0, 0, days)
	list, err := h.Memberships.ListExpiringBefore(r.Context(), cutoff)
	if err != nil {
		h.Log.Error("expiring list failed", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "listing failed")
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

// HandleActivate turns a membership on by admin action.
// POST /memberships/user/{userID}/activate.
func (h *Handler) HandleActivate(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, h.Lifecycle.Activate, lifecycle.ErrAlreadyActive, "membership already active")
}

// HandleDeactivate turns a membership off by admin action.
// POST /memberships/user/{userID}/deactivate.
func (h *Handler) HandleDeactivate(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, h.Lifecycle.Deactivate, lifecycle.ErrAlreadyInactive, "membership already inactive")
}

// ServePrivileges returns per-membership grants, creating the record
// lazily. GET /memberships/{id}/privileges (staff).
func (h *Handler) ServePrivileges(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid membership id")
		return
	}

	if _, err := h.Memberships.GetByID(r.Context(), id); err != nil {
		if errors.Is(err, membershipstore.ErrNotFound) {
			httpx.Error(w, http.StatusNotFound, "membership not found")
			return
		}
		h.Log.Error("privileges: membership lookup failed", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	p, err := h.Privileges.GetOrCreateByMembership(r.Context(), id)
	if err != nil {
		h.Log.Error("privileges lookup failed", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

type votingRightsRequest struct {
	Granted bool `json:"granted"`
}

// HandleSetVotingRights grants or revokes voting rights.
// POST /memberships/{id}/voting-rights (admin).
func (h *Handler) HandleSetVotingRights(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid membership id")
		return
	}

	var req votingRightsRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if _, err := h.Memberships.GetByID(r.Context(), id); err != nil {
		if errors.Is(err, membershipstore.ErrNotFound) {
			httpx.Error(w, http.StatusNotFound, "membership not found")
			return
		}
		h.Log.Error("voting rights: membership lookup failed", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	if _, err := h.Privileges.GetOrCreateByMembership(r.Context(), id); err != nil {
		h.Log.Error("privileges create failed", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "update failed")
		return
	}
	if err := h.Privileges.SetVotingRights(r.Context(), id, req.Granted); err != nil {
		h.Log.Error("voting rights update failed", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "update failed")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleTransition(
	w http.ResponseWriter,
	r *http.Request,
	op func(context.Context, primitive.ObjectID) error,
	already error,
	alreadyMsg string,
) {
	userID, err := httpx.IDParam(r, "userID")
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid user id")
		return
	}

	if err := op(r.Context(), userID); err != nil {
		switch {
		case errors.Is(err, already):
			httpx.Error(w, http.StatusConflict, alreadyMsg)
		case errors.Is(err, membershipstore.ErrNotFound):
			httpx.Error(w, http.StatusNotFound, "no membership for this user")
		default:
			h.Log.Error("membership transition failed",
				zap.String("user_id", userID.Hex()), zap.Error(err))
			httpx.Error(w, http.StatusInternalServerError, "transition failed")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
