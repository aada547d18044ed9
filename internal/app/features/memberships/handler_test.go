package memberships

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	contributionstore "github.com/mkn8rn/mk8.identity/internal/app/store/contributions"
	membershipstore "github.com/mkn8rn/mk8.identity/internal/app/store/memberships"
	privilegesstore "github.com/mkn8rn/mk8.identity/internal/app/store/privileges"
	userstore "github.com/mkn8rn/mk8.identity/internal/app/store/users"
	"github.com/mkn8rn/mk8.identity/internal/app/system/auth"
	"github.com/mkn8rn/mk8.identity/internal/app/system/lifecycle"
	"github.com/mkn8rn/mk8.identity/internal/domain/models"
	"github.com/mkn8rn/mk8.identity/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type fakeLifecycle struct {
	activateErr   error
	deactivateErr error
	calls         []string
}

func (f *fakeLifecycle) Activate(_ context.Context, userID primitive.ObjectID) error {
	f.calls = append(f.calls, "activate:"+userID.Hex())
	return f.activateErr
}

func (f *fakeLifecycle) Deactivate(_ context.Context, userID primitive.ObjectID) error {
	f.calls = append(f.calls, "deactivate:"+userID.Hex())
	return f.deactivateErr
}

func TestTransitionStatusCodes(t *testing.T) {
	userID := primitive.NewObjectID()

	cases := []struct {
		name     string
		path     string
		fake     *fakeLifecycle
		wantCode int
	}{
		{"activate ok", "activate", &fakeLifecycle{}, http.StatusNoContent},
		{"already active", "activate", &fakeLifecycle{activateErr: lifecycle.ErrAlreadyActive}, http.StatusConflict},
		{"deactivate ok", "deactivate", &fakeLifecycle{}, http.StatusNoContent},
		{"already inactive", "deactivate", &fakeLifecycle{deactivateErr: lifecycle.ErrAlreadyInactive}, http.StatusConflict},
		{"unknown user", "activate", &fakeLifecycle{activateErr: membershipstore.ErrNotFound}, http.StatusNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHandler(nil, nil, nil, nil, tc.fake, zap.NewNop())

			req := httptest.NewRequest("POST", "/user/"+userID.Hex()+"/"+tc.path, nil)
			req = testutil.WithChiURLParam(req, "userID", userID.Hex())
			rec := httptest.NewRecorder()

			if tc.path == "activate" {
				h.HandleActivate(rec, req)
			} else {
				h.HandleDeactivate(rec, req)
			}

			if rec.Code != tc.wantCode {
				t.Errorf("status: got %d, want %d (%s)", rec.Code, tc.wantCode, rec.Body.String())
			}
			if len(tc.fake.calls) != 1 {
				t.Errorf("lifecycle calls: got %v", tc.fake.calls)
			}
		})
	}
}

func TestTransitionRejectsBadID(t *testing.T) {
	fake := &fakeLifecycle{}
	h := NewHandler(nil, nil, nil, nil, fake, zap.NewNop())

	req := httptest.NewRequest("POST", "/user/nope/activate", nil)
	req = testutil.WithChiURLParam(req, "userID", "nope")
	rec := httptest.NewRecorder()
	h.HandleActivate(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if len(fake.calls) != 0 {
		t.Errorf("lifecycle must not be called on bad input, got %v", fake.calls)
	}
}

func TestMyStatusComputesSummary(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	users := userstore.New(db)
	memberships := membershipstore.New(db)
	contributions := contributionstore.New(db)

	user, err := users.Create(ctx, "status-user", "irrelevant-hash")
	if err != nil {
		t.Fatalf("user create: %v", err)
	}
	m, err := memberships.Create(ctx, user.ID)
	if err != nil {
		t.Fatalf("membership create: %v", err)
	}

	now := time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)
	expires := time.Date(2024, 8, 31, 23, 59, 59, 0, time.UTC)
	m.IsActive = true
	m.StartDate = now.AddDate(-3, 0, -1)
	m.GracePeriodMonthsEarned = 4
	m.ExpiresAt = &expires
	if err := memberships.Save(ctx, &m); err != nil {
		t.Fatalf("membership save: %v", err)
	}

	start, end := models.ContributionPeriod(3, 2024)
	if _, err := contributions.Insert(ctx, models.Contribution{
		MembershipID: m.ID,
		Type:         models.ContributionGithubSubscription,
		Status:       models.StatusAutoVerified,
		Month:        3,
		Year:         2024,
		PeriodStart:  start,
		PeriodEnd:    end,
		SubmittedAt:  now.AddDate(0, -2, 0),
	}); err != nil {
		t.Fatalf("contribution insert: %v", err)
	}

	h := NewHandler(memberships, contributions, users, privilegesstore.New(db), &fakeLifecycle{}, zap.NewNop())
	h.now = func() time.Time { return now }

	req := httptest.NewRequest("GET", "/me/status", nil)
	req = testutil.WithUser(req, &auth.SessionUser{ID: user.ID, Username: user.Username})
	rec := httptest.NewRecorder()
	h.ServeMyStatus(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Username         string     `json:"username"`
		IsActive         bool       `json:"is_active"`
		YearsAsMember    int        `json:"years_as_member"`
		MonthsRemaining  int        `json:"months_remaining"`
		LastContribution *time.Time `json:"last_contribution"`
	}
	testutil.DecodeJSON(t, rec, &resp)

	if !resp.IsActive {
		t.Error("expected active membership")
	}
	if resp.YearsAsMember != 3 {
		t.Errorf("years as member: got %d, want 3", resp.YearsAsMember)
	}
	// 2024-05-15 to 2024-08-31 is 108 days, or 3 thirty-day months.
	if resp.MonthsRemaining != 3 {
		t.Errorf("months remaining: got %d, want 3", resp.MonthsRemaining)
	}
	if resp.LastContribution == nil || !resp.LastContribution.Equal(end) {
		t.Errorf("last contribution: got %v, want %v", resp.LastContribution, end)
	}
}

func TestVotingRightsRoundTrip(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	users := userstore.New(db)
	memberships := membershipstore.New(db)
	h := NewHandler(memberships, contributionstore.New(db), users, privilegesstore.New(db), &fakeLifecycle{}, zap.NewNop())

	user, err := users.Create(ctx, "voter", "irrelevant-hash")
	if err != nil {
		t.Fatalf("user create: %v", err)
	}
	m, err := memberships.Create(ctx, user.ID)
	if err != nil {
		t.Fatalf("membership create: %v", err)
	}

	// Lazily created with no grants.
	req := httptest.NewRequest("GET", "/"+m.ID.Hex()+"/privileges", nil)
	req = testutil.WithChiURLParam(req, "id", m.ID.Hex())
	rec := httptest.NewRecorder()
	h.ServePrivileges(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("privileges: got %d: %s", rec.Code, rec.Body.String())
	}
	var privs models.Privileges
	testutil.DecodeJSON(t, rec, &privs)
	if privs.VotingRights {
		t.Error("fresh privileges should not grant voting rights")
	}

	req = testutil.NewJSONRequest(t, "POST", "/"+m.ID.Hex()+"/voting-rights", map[string]bool{"granted": true})
	req = testutil.WithChiURLParam(req, "id", m.ID.Hex())
	rec = httptest.NewRecorder()
	h.HandleSetVotingRights(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("grant: got %d: %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest("GET", "/"+m.ID.Hex()+"/privileges", nil)
	req = testutil.WithChiURLParam(req, "id", m.ID.Hex())
	rec = httptest.NewRecorder()
	h.ServePrivileges(rec, req)
	testutil.DecodeJSON(t, rec, &privs)
	if !privs.VotingRights {
		t.Error("voting rights should be granted")
	}

	// Unknown membership is a 404, not a lazily created record.
	ghost := primitive.NewObjectID()
	req = testutil.NewJSONRequest(t, "POST", "/"+ghost.Hex()+"/voting-rights", map[string]bool{"granted": true})
	req = testutil.WithChiURLParam(req, "id", ghost.Hex())
	rec = httptest.NewRecorder()
	h.HandleSetVotingRights(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown membership: got %d, want %d", rec.Code, http.StatusNotFound)
	}
}
