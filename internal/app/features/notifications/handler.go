// internal/app/features/notifications/handler.go
package notifications

import (
	"context"
	"errors"
	"net/http"

	notificationstore "github.com/mkn8rn/mk8.identity/internal/app/store/notifications"
	"github.com/mkn8rn/mk8.identity/internal/app/system/auth"
	"github.com/mkn8rn/mk8.identity/internal/app/system/httpx"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Handler is the feature-level entry point for staff notifications.
// Visibility follows the viewer's highest role: a notification is shown
// when its minimum role requirement is met by that role.
type Handler struct {
	Notifications *notificationstore.Store
	Log           *zap.Logger
}

// NewHandler constructs a notifications handler.
func NewHandler(notifications *notificationstore.Store, logger *zap.Logger) *Handler {
	return &Handler{Notifications: notifications, Log: logger}
}

// ServeList returns notifications visible to the viewer.
// GET /notifications?unread=true (staff).
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	su, _ := auth.CurrentUser(r)
	unreadOnly := r.URL.Query().Get("unread") == "true"

	list, err := h.Notifications.ListForRole(r.Context(), su.HighestRole(), unreadOnly)
	if err != nil {
		h.Log.Error("notification list failed", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "listing failed")
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

type unreadCountResponse struct {
	Unread int64 `json:"unread"`
}

// ServeUnreadCount returns the viewer's unread badge count.
// GET /notifications/unread-count (staff).
func (h *Handler) ServeUnreadCount(w http.ResponseWriter, r *http.Request) {
	su, _ := auth.CurrentUser(r)

	n, err := h.Notifications.UnreadCountForRole(r.Context(), su.HighestRole())
	if err != nil {
		h.Log.Error("unread count failed", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "count failed")
		return
	}
	httpx.JSON(w, http.StatusOK, unreadCountResponse{Unread: n})
}

// HandleMarkRead marks one notification read.
// POST /notifications/{id}/read (staff).
func (h *Handler) HandleMarkRead(w http.ResponseWriter, r *http.Request) {
	h.markOne(w, r, h.Notifications.MarkRead)
}

// HandleMarkCompleted marks an action-required notification handled.
// POST /notifications/{id}/complete (staff).
func (h *Handler) HandleMarkCompleted(w http.ResponseWriter, r *http.Request) {
	h.markOne(w, r, h.Notifications.MarkActionCompleted)
}

type markAllResponse struct {
	Updated int64 `json:"updated"`
}

// HandleMarkAllRead marks every notification visible to the viewer read.
// POST /notifications/read-all (staff).
func (h *Handler) HandleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	su, _ := auth.CurrentUser(r)

	n, err := h.Notifications.MarkAllReadForRole(r.Context(), su.HighestRole())
	if err != nil {
		h.Log.Error("mark all read failed", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "update failed")
		return
	}
	httpx.JSON(w, http.StatusOK, markAllResponse{Updated: n})
}

func (h *Handler) markOne(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id primitive.ObjectID) error) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid notification id")
		return
	}

	if err := op(r.Context(), id); err != nil {
		if errors.Is(err, notificationstore.ErrNotFound) {
			httpx.Error(w, http.StatusNotFound, "notification not found")
			return
		}
		h.Log.Error("notification update failed",
			zap.String("id", id.Hex()), zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "update failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
