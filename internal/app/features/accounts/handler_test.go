package accounts_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mkn8rn/mk8.identity/internal/app/features/accounts"
	membershipstore "github.com/mkn8rn/mk8.identity/internal/app/store/memberships"
	privilegesstore "github.com/mkn8rn/mk8.identity/internal/app/store/privileges"
	userstore "github.com/mkn8rn/mk8.identity/internal/app/store/users"
	"github.com/mkn8rn/mk8.identity/internal/app/system/auth"
	"github.com/mkn8rn/mk8.identity/internal/domain/models"
	"github.com/mkn8rn/mk8.identity/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

type recordingSink struct {
	registered []string
}

func (s *recordingSink) NewUserRegistered(_ context.Context, _ primitive.ObjectID, username string) error {
	s.registered = append(s.registered, username)
	return nil
}

func (s *recordingSink) ContributionSubmitted(context.Context, primitive.ObjectID, string, models.ContributionType) error {
	return nil
}

func (s *recordingSink) GracePeriodUpdate(context.Context, primitive.ObjectID, string, int, int) error {
	return nil
}

func (s *recordingSink) MembershipDeactivated(context.Context, primitive.ObjectID, string) error {
	return nil
}

func (s *recordingSink) MatrixAccountRequested(context.Context, primitive.ObjectID, string, string) error {
	return nil
}

func (s *recordingSink) MatrixDisableRequired(context.Context, primitive.ObjectID, string, string) error {
	return nil
}

func newTestRouter(t *testing.T, db *mongo.Database) (http.Handler, *recordingSink) {
	t.Helper()
	if err := auth.InitSessionStore("test-session-key-0123456789ABCDEF", "", false, zap.NewNop()); err != nil {
		t.Fatalf("session store init: %v", err)
	}
	sink := &recordingSink{}
	h := accounts.NewHandler(
		userstore.New(db),
		membershipstore.New(db),
		privilegesstore.New(db),
		sink,
		zap.NewNop(),
	)
	return accounts.Routes(h), sink
}

func TestRegisterCreatesMembership(t *testing.T) {
	db := testutil.SetupTestDB(t)
	router, sink := newTestRouter(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	req := testutil.NewJSONRequest(t, "POST", "/register", map[string]string{
		"username": "alice",
		"password": "correct-horse",
	})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("register: got %d, want %d: %s", rec.Code, http.StatusCreated, rec.Body.String())
	}

	var created models.User
	testutil.DecodeJSON(t, rec, &created)
	if created.Username != "alice" {
		t.Errorf("username: got %q", created.Username)
	}

	m, err := membershipstore.New(db).GetByUserID(ctx, created.ID)
	if err != nil {
		t.Fatalf("membership lookup: %v", err)
	}
	if m.IsActive {
		t.Error("new membership should start inactive")
	}
	if _, err := privilegesstore.New(db).GetByMembership(ctx, m.ID); err != nil {
		t.Errorf("privileges lookup: %v", err)
	}
	if len(sink.registered) != 1 || sink.registered[0] != "alice" {
		t.Errorf("registration notification: got %v", sink.registered)
	}
}

func TestRegisterRejectsDuplicateAndWeakPassword(t *testing.T) {
	db := testutil.SetupTestDB(t)
	router, _ := newTestRouter(t, db)

	first := testutil.NewJSONRequest(t, "POST", "/register", map[string]string{
		"username": "bob", "password": "long-enough",
	})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, first)
	if rec.Code != http.StatusCreated {
		t.Fatalf("first register: got %d: %s", rec.Code, rec.Body.String())
	}

	dup := testutil.NewJSONRequest(t, "POST", "/register", map[string]string{
		"username": "bob", "password": "long-enough",
	})
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, dup)
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate register: got %d, want %d", rec.Code, http.StatusConflict)
	}

	weak := testutil.NewJSONRequest(t, "POST", "/register", map[string]string{
		"username": "carol", "password": "short",
	})
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, weak)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("weak password: got %d, want %d", rec.Code, http.StatusUnprocessableEntity)
	}
}

func TestLoginFlow(t *testing.T) {
	db := testutil.SetupTestDB(t)
	router, _ := newTestRouter(t, db)

	reg := testutil.NewJSONRequest(t, "POST", "/register", map[string]string{
		"username": "dave", "password": "swordfish-plus",
	})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, reg)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: got %d: %s", rec.Code, rec.Body.String())
	}

	wrong := testutil.NewJSONRequest(t, "POST", "/login", map[string]string{
		"username": "dave", "password": "not-it",
	})
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, wrong)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad password login: got %d, want %d", rec.Code, http.StatusUnauthorized)
	}

	login := testutil.NewJSONRequest(t, "POST", "/login", map[string]string{
		"username": "dave", "password": "swordfish-plus",
	})
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, login)
	if rec.Code != http.StatusOK {
		t.Fatalf("login: got %d: %s", rec.Code, rec.Body.String())
	}

	me := httptest.NewRequest("GET", "/me", nil)
	for _, c := range rec.Result().Cookies() {
		me.AddCookie(c)
	}
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, me)
	if rec.Code != http.StatusOK {
		t.Fatalf("me: got %d: %s", rec.Code, rec.Body.String())
	}

	var user models.User
	testutil.DecodeJSON(t, rec, &user)
	if user.Username != "dave" {
		t.Errorf("me username: got %q", user.Username)
	}
	if user.PasswordHash != "" {
		t.Error("password hash must never be serialized")
	}
}
