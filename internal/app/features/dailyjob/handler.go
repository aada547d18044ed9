// internal/app/features/dailyjob/handler.go
package dailyjob

import (
	"context"
	"net/http"

	"github.com/mkn8rn/mk8.identity/internal/app/system/auth"
	"github.com/mkn8rn/mk8.identity/internal/app/system/httpx"
	"github.com/mkn8rn/mk8.identity/internal/app/system/tasks"
	"go.uber.org/zap"
)

// Runner runs the daily batch and reports per-stage outcomes.
type Runner interface {
	Run(ctx context.Context) []tasks.StageResult
}

// Handler exposes a manual trigger for the daily batch, next to the
// scheduled worker.
type Handler struct {
	Job Runner
	Log *zap.Logger
}

// NewHandler constructs a daily job handler.
func NewHandler(job Runner, logger *zap.Logger) *Handler {
	return &Handler{Job: job, Log: logger}
}

type runResponse struct {
	Stages []tasks.StageResult `json:"stages"`
}

// HandleRun runs all batch stages immediately and returns their results.
// POST /admin/daily-job/run (admin).
func (h *Handler) HandleRun(w http.ResponseWriter, r *http.Request) {
	su, _ := auth.CurrentUser(r)
	h.Log.Info("daily job triggered manually", zap.String("username", su.Username))

	results := h.Job.Run(r.Context())

	httpx.JSON(w, http.StatusOK, runResponse{Stages: results})
}
