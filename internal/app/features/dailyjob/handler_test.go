package dailyjob_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mkn8rn/mk8.identity/internal/app/features/dailyjob"
	"github.com/mkn8rn/mk8.identity/internal/app/system/tasks"
	"github.com/mkn8rn/mk8.identity/internal/domain/models"
	"github.com/mkn8rn/mk8.identity/internal/testutil"
	"go.uber.org/zap"
)

type fakeRunner struct {
	calls   int
	results []tasks.StageResult
}

func (f *fakeRunner) Run(context.Context) []tasks.StageResult {
	f.calls++
	return f.results
}

func TestHandleRunReturnsStageResults(t *testing.T) {
	runner := &fakeRunner{results: []tasks.StageResult{
		{Name: "role_contributions", OK: true, Detail: "created 2"},
		{Name: "expiry_check", OK: false, Err: "database unavailable"},
	}}
	h := dailyjob.NewHandler(runner, zap.NewNop())

	req := httptest.NewRequest("POST", "/run", nil)
	req = testutil.WithUser(req, testutil.SessionUser("admin", models.RoleAdministrator))
	rec := httptest.NewRecorder()
	h.HandleRun(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	if runner.calls != 1 {
		t.Errorf("runner calls: got %d, want 1", runner.calls)
	}

	var resp struct {
		Stages []tasks.StageResult `json:"stages"`
	}
	testutil.DecodeJSON(t, rec, &resp)
	if len(resp.Stages) != 2 {
		t.Fatalf("stages: got %d, want 2", len(resp.Stages))
	}
	if resp.Stages[1].Err != "database unavailable" {
		t.Errorf("stage error: got %q", resp.Stages[1].Err)
	}
}
