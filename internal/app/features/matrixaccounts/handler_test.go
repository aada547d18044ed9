package matrixaccounts_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mkn8rn/mk8.identity/internal/app/features/matrixaccounts"
	matrixaccountstore "github.com/mkn8rn/mk8.identity/internal/app/store/matrixaccounts"
	membershipstore "github.com/mkn8rn/mk8.identity/internal/app/store/memberships"
	privilegesstore "github.com/mkn8rn/mk8.identity/internal/app/store/privileges"
	userstore "github.com/mkn8rn/mk8.identity/internal/app/store/users"
	"github.com/mkn8rn/mk8.identity/internal/app/system/auth"
	"github.com/mkn8rn/mk8.identity/internal/domain/models"
	"github.com/mkn8rn/mk8.identity/internal/testutil"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

type fixture struct {
	handler     *matrixaccounts.Handler
	users       *userstore.Store
	memberships *membershipstore.Store
	accounts    *matrixaccountstore.Store
}

func newFixture(t *testing.T, db *mongo.Database) *fixture {
	t.Helper()
	f := &fixture{
		users:       userstore.New(db),
		memberships: membershipstore.New(db),
		accounts:    matrixaccountstore.New(db),
	}
	privileges := privilegesstore.New(db)
	f.handler = matrixaccounts.NewHandler(
		f.accounts,
		matrixaccountstore.NewDirectory(f.accounts, privileges),
		privileges,
		f.memberships,
		"matrix.example.org",
		zap.NewNop(),
	)
	return f
}

func (f *fixture) member(t *testing.T, username string, active bool, roles ...models.RoleType) (*auth.SessionUser, models.Membership) {
	t.Helper()
	ctx, cancel := testutil.TestContext()
	defer cancel()

	u, err := f.users.Create(ctx, username, "irrelevant-hash")
	if err != nil {
		t.Fatalf("user create: %v", err)
	}
	m, err := f.memberships.Create(ctx, u.ID)
	if err != nil {
		t.Fatalf("membership create: %v", err)
	}
	if active {
		m.IsActive = true
		if err := f.memberships.Save(ctx, &m); err != nil {
			t.Fatalf("membership save: %v", err)
		}
	}
	return &auth.SessionUser{ID: u.ID, Username: username, Roles: roles}, m
}

func (f *fixture) createAccount(t *testing.T, admin *auth.SessionUser, membershipID, username string) models.MatrixAccount {
	t.Helper()
	req := testutil.NewJSONRequest(t, "POST", "/", map[string]string{
		"membership_id": membershipID,
		"username":      username,
	})
	req = testutil.WithUser(req, admin)
	rec := httptest.NewRecorder()
	f.handler.HandleCreate(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: got %d: %s", rec.Code, rec.Body.String())
	}
	var account models.MatrixAccount
	testutil.DecodeJSON(t, rec, &account)
	return account
}

func TestCreateAndListMine(t *testing.T) {
	db := testutil.SetupTestDB(t)
	f := newFixture(t, db)

	admin, _ := f.member(t, "admin", true, models.RoleAdministrator)
	owner, ownerMembership := f.member(t, "owner", true)

	account := f.createAccount(t, admin, ownerMembership.ID.Hex(), "owner")
	if account.AccountID != "@owner:matrix.example.org" {
		t.Errorf("account id: got %q", account.AccountID)
	}
	if account.CreatedByMembershipID == nil {
		t.Error("creating admin membership should be recorded")
	}

	// Same username conflicts.
	req := testutil.NewJSONRequest(t, "POST", "/", map[string]string{
		"membership_id": ownerMembership.ID.Hex(),
		"username":      "owner",
	})
	req = testutil.WithUser(req, admin)
	rec := httptest.NewRecorder()
	f.handler.HandleCreate(rec, req)
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate: got %d, want %d", rec.Code, http.StatusConflict)
	}

	// The owner sees it under /mine; the admin does not.
	req = httptest.NewRequest("GET", "/mine", nil)
	req = testutil.WithUser(req, owner)
	rec = httptest.NewRecorder()
	f.handler.ServeMine(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("mine: got %d", rec.Code)
	}
	var mine []models.MatrixAccount
	testutil.DecodeJSON(t, rec, &mine)
	if len(mine) != 1 || mine[0].ID != account.ID {
		t.Errorf("mine: got %d accounts", len(mine))
	}

	req = httptest.NewRequest("GET", "/mine", nil)
	req = testutil.WithUser(req, admin)
	rec = httptest.NewRecorder()
	f.handler.ServeMine(rec, req)
	var adminMine []models.MatrixAccount
	testutil.DecodeJSON(t, rec, &adminMine)
	if len(adminMine) != 0 {
		t.Errorf("admin mine: got %d accounts, want 0", len(adminMine))
	}
}

func TestDisableEnableCycle(t *testing.T) {
	db := testutil.SetupTestDB(t)
	f := newFixture(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	admin, _ := f.member(t, "admin", true, models.RoleAdministrator)
	_, ownerMembership := f.member(t, "owner", true)
	account := f.createAccount(t, admin, ownerMembership.ID.Hex(), "owner")

	req := testutil.NewJSONRequest(t, "POST", "/"+account.ID.Hex()+"/disable", nil)
	req = testutil.WithChiURLParam(req, "id", account.ID.Hex())
	req = testutil.WithUser(req, admin)
	rec := httptest.NewRecorder()
	f.handler.HandleDisable(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("disable: got %d: %s", rec.Code, rec.Body.String())
	}

	got, err := f.accounts.GetByID(ctx, account.ID)
	if err != nil {
		t.Fatalf("account lookup: %v", err)
	}
	if !got.IsDisabled || got.DisabledAt == nil || got.DisabledByMembershipID == nil {
		t.Errorf("disable state not recorded: %+v", got)
	}

	req = testutil.NewJSONRequest(t, "POST", "/"+account.ID.Hex()+"/enable", nil)
	req = testutil.WithChiURLParam(req, "id", account.ID.Hex())
	req = testutil.WithUser(req, admin)
	rec = httptest.NewRecorder()
	f.handler.HandleEnable(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("enable: got %d: %s", rec.Code, rec.Body.String())
	}

	got, err = f.accounts.GetByID(ctx, account.ID)
	if err != nil {
		t.Fatalf("account lookup: %v", err)
	}
	if got.IsDisabled || got.DisabledAt != nil {
		t.Errorf("enable did not clear state: %+v", got)
	}
}

func TestEnableRequiresActiveOwner(t *testing.T) {
	db := testutil.SetupTestDB(t)
	f := newFixture(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	admin, adminMembership := f.member(t, "admin", true, models.RoleAdministrator)
	_, ownerMembership := f.member(t, "lapsed", true)
	account := f.createAccount(t, admin, ownerMembership.ID.Hex(), "lapsed")

	if err := f.accounts.Disable(ctx, account.ID, adminMembership.ID); err != nil {
		t.Fatalf("disable: %v", err)
	}
	ownerMembership.IsActive = false
	if err := f.memberships.Save(ctx, &ownerMembership); err != nil {
		t.Fatalf("membership save: %v", err)
	}

	req := testutil.NewJSONRequest(t, "POST", "/"+account.ID.Hex()+"/enable", nil)
	req = testutil.WithChiURLParam(req, "id", account.ID.Hex())
	req = testutil.WithUser(req, admin)
	rec := httptest.NewRecorder()
	f.handler.HandleEnable(rec, req)
	if rec.Code != http.StatusConflict {
		t.Errorf("enable with inactive owner: got %d, want %d", rec.Code, http.StatusConflict)
	}
}
