// internal/app/features/contributions/handler.go
package contributions

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	contributionstore "github.com/mkn8rn/mk8.identity/internal/app/store/contributions"
	membershipstore "github.com/mkn8rn/mk8.identity/internal/app/store/memberships"
	userstore "github.com/mkn8rn/mk8.identity/internal/app/store/users"
	"github.com/mkn8rn/mk8.identity/internal/app/system/auth"
	"github.com/mkn8rn/mk8.identity/internal/app/system/httpx"
	"github.com/mkn8rn/mk8.identity/internal/app/system/ledger"
	"github.com/mkn8rn/mk8.identity/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Ledger is the slice of the contribution ledger this feature exposes
// over HTTP.
type Ledger interface {
	SubmitMemberContribution(ctx context.Context, userID primitive.ObjectID, typ models.ContributionType, month, year int, description string) (*models.Contribution, error)
	AssessorCreateValidated(ctx context.Context, assessorUserID, targetUserID primitive.ObjectID, typ models.ContributionType, month, year int, description string) (*models.Contribution, error)
	Validate(ctx context.Context, assessorUserID, contributionID primitive.ObjectID, approved bool, notes string) (*models.Contribution, error)
	AutoVerify(ctx context.Context, userID primitive.ObjectID, typ models.ContributionType, month, year int, externalReference string) (*models.Contribution, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Contribution, error)
	ListForUser(ctx context.Context, userID primitive.ObjectID) ([]models.Contribution, error)
	ListPending(ctx context.Context) ([]models.Contribution, error)
	ListByMonth(ctx context.Context, month, year int) ([]models.Contribution, error)
	ListAll(ctx context.Context, f contributionstore.ListFilter) ([]models.Contribution, error)
}

// Handler is the feature-level entry point for the contribution ledger.
type Handler struct {
	Ledger Ledger
	Log    *zap.Logger
}

// NewHandler constructs a contributions handler.
func NewHandler(l Ledger, logger *zap.Logger) *Handler {
	return &Handler{Ledger: l, Log: logger}
}

type submitRequest struct {
	Type        models.ContributionType `json:"type"`
	Month       int                     `json:"month"`
	Year        int                     `json:"year"`
	Description string                  `json:"description"`
}

// HandleSubmit records a member-submitted contribution as Pending.
// POST /contributions.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	su, _ := auth.CurrentUser(r)

	var req submitRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	c, err := h.Ledger.SubmitMemberContribution(r.Context(), su.ID, req.Type, req.Month, req.Year, req.Description)
	if err != nil {
		h.writeLedgerError(w, err, "submit")
		return
	}
	httpx.JSON(w, http.StatusCreated, c)
}

type assessorCreateRequest struct {
	TargetUserID string                  `json:"target_user_id"`
	Type         models.ContributionType `json:"type"`
	Month        int                     `json:"month"`
	Year         int                     `json:"year"`
	Description  string                  `json:"description"`
}

// HandleAssessorCreate records an already-validated entry on behalf of a
// member. POST /contributions/validated (assessor).
func (h *Handler) HandleAssessorCreate(w http.ResponseWriter, r *http.Request) {
	su, _ := auth.CurrentUser(r)

	var req assessorCreateRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	target, err := primitive.ObjectIDFromHex(req.TargetUserID)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid target user id")
		return
	}

	c, err := h.Ledger.AssessorCreateValidated(r.Context(), su.ID, target, req.Type, req.Month, req.Year, req.Description)
	if err != nil {
		h.writeLedgerError(w, err, "assessor create")
		return
	}
	httpx.JSON(w, http.StatusCreated, c)
}

type validateRequest struct {
	Approved bool   `json:"approved"`
	Notes    string `json:"notes"`
}

// HandleValidate decides a pending contribution.
// POST /contributions/{id}/validate (assessor).
func (h *Handler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	su, _ := auth.CurrentUser(r)

	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid contribution id")
		return
	}

	var req validateRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	c, err := h.Ledger.Validate(r.Context(), su.ID, id, req.Approved, req.Notes)
	if err != nil {
		h.writeLedgerError(w, err, "validate")
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

type autoVerifyRequest struct {
	UserID            string                  `json:"user_id"`
	Type              models.ContributionType `json:"type"`
	Month             int                     `json:"month"`
	Year              int                     `json:"year"`
	ExternalReference string                  `json:"external_reference"`
}

// HandleAutoVerify records an externally verified entry, as the payment
// integrations would. POST /contributions/auto-verify (admin).
func (h *Handler) HandleAutoVerify(w http.ResponseWriter, r *http.Request) {
	var req autoVerifyRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	userID, err := primitive.ObjectIDFromHex(req.UserID)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid user id")
		return
	}

	c, err := h.Ledger.AutoVerify(r.Context(), userID, req.Type, req.Month, req.Year, req.ExternalReference)
	if err != nil {
		h.writeLedgerError(w, err, "auto-verify")
		return
	}
	httpx.JSON(w, http.StatusCreated, c)
}

// ServeMine returns the signed-in member's history.
// GET /contributions/mine.
func (h *Handler) ServeMine(w http.ResponseWriter, r *http.Request) {
	su, _ := auth.CurrentUser(r)

	list, err := h.Ledger.ListForUser(r.Context(), su.ID)
	if err != nil {
		h.writeLedgerError(w, err, "list mine")
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

// ServePending returns the validation queue, oldest first.
// GET /contributions/pending (assessor).
func (h *Handler) ServePending(w http.ResponseWriter, r *http.Request) {
	list, err := h.Ledger.ListPending(r.Context())
	if err != nil {
		h.writeLedgerError(w, err, "list pending")
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

// ServeGet returns one contribution. GET /contributions/{id} (staff).
func (h *Handler) ServeGet(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid contribution id")
		return
	}

	c, err := h.Ledger.GetByID(r.Context(), id)
	if err != nil {
		h.writeLedgerError(w, err, "get")
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

// ServeList returns entries filtered by month/year/status query params.
// GET /contributions (staff).
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var f contributionstore.ListFilter
	if raw := q.Get("month"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			httpx.Error(w, http.StatusBadRequest, "month must be an integer")
			return
		}
		f.Month = &n
	}
	if raw := q.Get("year"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			httpx.Error(w, http.StatusBadRequest, "year must be an integer")
			return
		}
		f.Year = &n
	}
	if raw := q.Get("status"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			httpx.Error(w, http.StatusBadRequest, "status must be an integer")
			return
		}
		st := models.ContributionStatus(n)
		f.Status = &st
	}

	// A fully specified month/year goes through the indexed period query.
	if f.Month != nil && f.Year != nil && f.Status == nil {
		list, err := h.Ledger.ListByMonth(r.Context(), *f.Month, *f.Year)
		if err != nil {
			h.writeLedgerError(w, err, "list by month")
			return
		}
		httpx.JSON(w, http.StatusOK, list)
		return
	}

	list, err := h.Ledger.ListAll(r.Context(), f)
	if err != nil {
		h.writeLedgerError(w, err, "list all")
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

// writeLedgerError maps ledger sentinels onto HTTP statuses.
func (h *Handler) writeLedgerError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, ledger.ErrInvalidType),
		errors.Is(err, ledger.ErrNotMemberSubmittable),
		errors.Is(err, ledger.ErrBadMonth):
		httpx.Error(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, contributionstore.ErrDuplicateContribution),
		errors.Is(err, ledger.ErrAlreadyDecided):
		httpx.Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, contributionstore.ErrNotFound),
		errors.Is(err, membershipstore.ErrNotFound),
		errors.Is(err, userstore.ErrNotFound):
		httpx.Error(w, http.StatusNotFound, err.Error())
	default:
		h.Log.Error("ledger operation failed", zap.String("op", op), zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "operation failed")
	}
}
