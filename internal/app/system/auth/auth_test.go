// internal/app/system/auth/auth_test.go
package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mkn8rn/mk8.identity/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

func initTestStore(t *testing.T) {
	t.Helper()
	if err := InitSessionStore("0123456789abcdef0123456789abcdef", "", false, zap.NewNop()); err != nil {
		t.Fatalf("init session store: %v", err)
	}
}

func signedInRequest(t *testing.T, user *models.User) *http.Request {
	t.Helper()

	rec := httptest.NewRecorder()
	signin := httptest.NewRequest(http.MethodPost, "/signin", nil)
	if err := SignIn(rec, signin, user); err != nil {
		t.Fatalf("sign in: %v", err)
	}

	r := httptest.NewRequest(http.MethodGet, "/protected", nil)
	for _, c := range rec.Result().Cookies() {
		r.AddCookie(c)
	}
	return r
}

func TestRequireSignedIn(t *testing.T) {
	initTestStore(t)

	called := false
	h := LoadSessionUser(RequireSignedIn(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/protected", nil))
	if rec.Code != http.StatusUnauthorized || called {
		t.Fatalf("anonymous: code=%d called=%v", rec.Code, called)
	}

	user := &models.User{ID: primitive.NewObjectID(), Username: "petra"}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, signedInRequest(t, user))
	if rec.Code != http.StatusOK || !called {
		t.Fatalf("signed in: code=%d called=%v", rec.Code, called)
	}
}

func TestRequireRole(t *testing.T) {
	initTestStore(t)

	var got *SessionUser
	h := LoadSessionUser(RequireRole(models.RoleAdministrator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = CurrentUser(r)
	})))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/protected", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous: code=%d", rec.Code)
	}

	member := &models.User{ID: primitive.NewObjectID(), Username: "petra"}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, signedInRequest(t, member))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("member without role: code=%d", rec.Code)
	}

	admin := &models.User{
		ID:       primitive.NewObjectID(),
		Username: "signe",
		Roles:    []models.RoleType{models.RoleAssessor, models.RoleAdministrator},
	}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, signedInRequest(t, admin))
	if rec.Code != http.StatusOK {
		t.Fatalf("admin: code=%d body=%s", rec.Code, rec.Body.String())
	}
	if got == nil || got.ID != admin.ID || !got.HasRole(models.RoleAdministrator) {
		t.Fatalf("session user = %+v", got)
	}
	if got.HighestRole() != models.RoleAdministrator {
		t.Fatalf("highest role = %v", got.HighestRole())
	}
}

func TestSignOut(t *testing.T) {
	initTestStore(t)

	h := LoadSessionUser(RequireSignedIn(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))

	user := &models.User{ID: primitive.NewObjectID(), Username: "petra"}
	r := signedInRequest(t, user)

	rec := httptest.NewRecorder()
	if err := SignOut(rec, r); err != nil {
		t.Fatalf("sign out: %v", err)
	}

	// Replaying with the cleared cookie must not authenticate.
	cleared := httptest.NewRequest(http.MethodGet, "/protected", nil)
	for _, c := range rec.Result().Cookies() {
		cleared.AddCookie(c)
	}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, cleared)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("after sign out: code=%d", rec.Code)
	}
}

func TestRoleRoundTrip(t *testing.T) {
	roles := []models.RoleType{models.RoleAdministrator, models.RoleSupport}
	decoded := decodeRoles(encodeRoles(roles))
	if len(decoded) != 2 || decoded[0] != models.RoleAdministrator || decoded[1] != models.RoleSupport {
		t.Fatalf("round trip = %v", decoded)
	}
	if decodeRoles("") != nil {
		t.Fatal("empty string should decode to nil")
	}
}
