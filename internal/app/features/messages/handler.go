// internal/app/features/messages/handler.go
package messages

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	matrixaccountstore "github.com/mkn8rn/mk8.identity/internal/app/store/matrixaccounts"
	membershipstore "github.com/mkn8rn/mk8.identity/internal/app/store/memberships"
	messagestore "github.com/mkn8rn/mk8.identity/internal/app/store/messages"
	privilegesstore "github.com/mkn8rn/mk8.identity/internal/app/store/privileges"
	"github.com/mkn8rn/mk8.identity/internal/app/system/auth"
	"github.com/mkn8rn/mk8.identity/internal/app/system/httpx"
	"github.com/mkn8rn/mk8.identity/internal/app/system/notify"
	"github.com/mkn8rn/mk8.identity/internal/domain/models"
	"go.uber.org/zap"
)

const maxTitleLength = 200

// Handler is the feature-level entry point for member-to-staff messages:
// support requests and Matrix account provisioning requests.
type Handler struct {
	Messages       *messagestore.Store
	Memberships    *membershipstore.Store
	MatrixAccounts *matrixaccountstore.Store
	Privileges     *privilegesstore.Store
	Sink           notify.Sink
	Homeserver     string
	Log            *zap.Logger
}

// NewHandler constructs a messages handler.
func NewHandler(
	messages *messagestore.Store,
	memberships *membershipstore.Store,
	matrixAccounts *matrixaccountstore.Store,
	privileges *privilegesstore.Store,
	sink notify.Sink,
	homeserver string,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		Messages:       messages,
		Memberships:    memberships,
		MatrixAccounts: matrixAccounts,
		Privileges:     privileges,
		Sink:           sink,
		Homeserver:     homeserver,
		Log:            logger,
	}
}

type supportRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// HandleSupportRequest files a support message. POST /messages/support.
func (h *Handler) HandleSupportRequest(w http.ResponseWriter, r *http.Request) {
	su, _ := auth.CurrentUser(r)

	var req supportRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" || len(req.Title) > maxTitleLength {
		httpx.Error(w, http.StatusUnprocessableEntity, "title is required and must be at most 200 characters")
		return
	}

	m, err := h.Memberships.GetByUserID(r.Context(), su.ID)
	if err != nil {
		h.writeMembershipError(w, err)
		return
	}

	msg, err := h.Messages.Insert(r.Context(), models.Message{
		Type:               models.MessageSupportRequest,
		Status:             models.MessagePending,
		CreatedAt:          time.Now().UTC(),
		SenderMembershipID: m.ID,
		Title:              req.Title,
		Description:        req.Description,
	})
	if err != nil {
		h.Log.Error("support request insert failed", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "message could not be saved")
		return
	}

	httpx.JSON(w, http.StatusCreated, msg)
}

type matrixRequest struct {
	DesiredUsername string `json:"desired_username"`
}

// HandleMatrixRequest files a Matrix account provisioning request and
// notifies admins. POST /messages/matrix-request.
func (h *Handler) HandleMatrixRequest(w http.ResponseWriter, r *http.Request) {
	su, _ := auth.CurrentUser(r)

	var req matrixRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.DesiredUsername = strings.TrimSpace(req.DesiredUsername)
	if req.DesiredUsername == "" {
		httpx.Error(w, http.StatusUnprocessableEntity, "desired_username is required")
		return
	}

	m, err := h.Memberships.GetByUserID(r.Context(), su.ID)
	if err != nil {
		h.writeMembershipError(w, err)
		return
	}
	if !m.IsActive {
		httpx.Error(w, http.StatusForbidden, "only active members can request a Matrix account")
		return
	}

	msg, err := h.Messages.Insert(r.Context(), models.Message{
		Type:                  models.MessageMatrixAccountRequest,
		Status:                models.MessagePending,
		CreatedAt:             time.Now().UTC(),
		SenderMembershipID:    m.ID,
		DesiredMatrixUsername: req.DesiredUsername,
	})
	if err != nil {
		h.Log.Error("matrix request insert failed", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "message could not be saved")
		return
	}

	if err := h.Sink.MatrixAccountRequested(r.Context(), su.ID, su.Username, req.DesiredUsername); err != nil {
		h.Log.Warn("matrix request notification failed", zap.Error(err))
	}

	httpx.JSON(w, http.StatusCreated, msg)
}

// ServeMine lists the signed-in member's own messages. GET /messages/mine.
func (h *Handler) ServeMine(w http.ResponseWriter, r *http.Request) {
	su, _ := auth.CurrentUser(r)

	m, err := h.Memberships.GetByUserID(r.Context(), su.ID)
	if err != nil {
		h.writeMembershipError(w, err)
		return
	}

	list, err := h.Messages.ListForSender(r.Context(), m.ID)
	if err != nil {
		h.Log.Error("message list failed", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "listing failed")
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

// ServeList lists messages for staff, filterable by status and type.
// GET /messages?status=N&type=N (staff).
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	var f messagestore.ListFilter
	if raw := r.URL.Query().Get("status"); raw != "" {
		var st models.MessageStatus
		if _, err := fmt.Sscanf(raw, "%d", &st); err != nil {
			httpx.Error(w, http.StatusBadRequest, "status must be an integer")
			return
		}
		f.Status = &st
	}
	if raw := r.URL.Query().Get("type"); raw != "" {
		var mt models.MessageType
		if _, err := fmt.Sscanf(raw, "%d", &mt); err != nil {
			httpx.Error(w, http.StatusBadRequest, "type must be an integer")
			return
		}
		f.Type = &mt
	}

	list, err := h.Messages.List(r.Context(), f)
	if err != nil {
		h.Log.Error("message list failed", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "listing failed")
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

type statusRequest struct {
	Status models.MessageStatus `json:"status"`
}

// HandleSetStatus transitions a message between staff handling states.
// POST /messages/{id}/status (staff). Completion of Matrix requests goes
// through HandleCompleteMatrix instead.
func (h *Handler) HandleSetStatus(w http.ResponseWriter, r *http.Request) {
	su, _ := auth.CurrentUser(r)

	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid message id")
		return
	}

	var req statusRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	switch req.Status {
	case models.MessageInProgress, models.MessageCompleted, models.MessageRejected:
	default:
		httpx.Error(w, http.StatusUnprocessableEntity, "status must be in_progress (1), completed (2), or rejected (3)")
		return
	}

	handler, err := h.Memberships.GetByUserID(r.Context(), su.ID)
	if err != nil {
		h.writeMembershipError(w, err)
		return
	}

	current, err := h.Messages.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, messagestore.ErrNotFound) {
			httpx.Error(w, http.StatusNotFound, "message not found")
			return
		}
		h.Log.Error("message lookup failed", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	if current.Status == models.MessageCompleted || current.Status == models.MessageRejected {
		httpx.Error(w, http.StatusConflict, "message already resolved")
		return
	}
	if current.Type == models.MessageMatrixAccountRequest && req.Status == models.MessageCompleted {
		httpx.Error(w, http.StatusUnprocessableEntity, "matrix requests are completed via the complete-matrix operation")
		return
	}

	msg, err := h.Messages.SetStatus(r.Context(), id, req.Status, handler.ID)
	if err != nil {
		if errors.Is(err, messagestore.ErrNotFound) {
			httpx.Error(w, http.StatusNotFound, "message not found")
			return
		}
		h.Log.Error("message status update failed", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "update failed")
		return
	}

	httpx.JSON(w, http.StatusOK, msg)
}

type completeMatrixRequest struct {
	SpecialInstructions string `json:"special_instructions"`
}

// completeMatrixResponse returns the closed message; the temporary
// password travels only in this one response.
type completeMatrixResponse struct {
	Message *models.Message      `json:"message"`
	Account models.MatrixAccount `json:"account"`
}

// HandleCompleteMatrix closes a Matrix account request by creating the
// account record with generated temporary credentials.
// POST /messages/{id}/complete-matrix (admin).
func (h *Handler) HandleCompleteMatrix(w http.ResponseWriter, r *http.Request) {
	su, _ := auth.CurrentUser(r)

	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid message id")
		return
	}

	var req completeMatrixRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	msg, err := h.Messages.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, messagestore.ErrNotFound) {
			httpx.Error(w, http.StatusNotFound, "message not found")
			return
		}
		h.Log.Error("message lookup failed", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	if msg.Type != models.MessageMatrixAccountRequest {
		httpx.Error(w, http.StatusUnprocessableEntity, "not a matrix account request")
		return
	}
	if msg.Status == models.MessageCompleted || msg.Status == models.MessageRejected {
		httpx.Error(w, http.StatusConflict, "message already resolved")
		return
	}

	handler, err := h.Memberships.GetByUserID(r.Context(), su.ID)
	if err != nil {
		h.writeMembershipError(w, err)
		return
	}

	privs, err := h.Privileges.GetOrCreateByMembership(r.Context(), msg.SenderMembershipID)
	if err != nil {
		h.Log.Error("privileges lookup failed", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "completion failed")
		return
	}

	account, err := h.MatrixAccounts.Insert(r.Context(), models.MatrixAccount{
		AccountID:             fmt.Sprintf("@%s:%s", msg.DesiredMatrixUsername, h.Homeserver),
		Username:              msg.DesiredMatrixUsername,
		CreatedAt:             time.Now().UTC(),
		PrivilegesID:          privs.ID,
		CreatedByMembershipID: &handler.ID,
	})
	if err != nil {
		if errors.Is(err, matrixaccountstore.ErrDuplicateUsername) {
			httpx.Error(w, http.StatusConflict, "matrix username already taken")
			return
		}
		h.Log.Error("matrix account insert failed", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "completion failed")
		return
	}

	tempPassword := uuid.NewString()
	closed, err := h.Messages.CompleteMatrixRequest(r.Context(), id, handler.ID, account.ID, tempPassword, req.SpecialInstructions)
	if err != nil {
		h.Log.Error("matrix request completion failed", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "completion failed")
		return
	}

	h.Log.Info("matrix account provisioned",
		zap.String("account_id", account.AccountID),
		zap.String("message_id", id.Hex()))

	httpx.JSON(w, http.StatusOK, completeMatrixResponse{Message: closed, Account: account})
}

func (h *Handler) writeMembershipError(w http.ResponseWriter, err error) {
	if errors.Is(err, membershipstore.ErrNotFound) {
		httpx.Error(w, http.StatusNotFound, "no membership for this user")
		return
	}
	h.Log.Error("membership lookup failed", zap.Error(err))
	httpx.Error(w, http.StatusInternalServerError, "lookup failed")
}
