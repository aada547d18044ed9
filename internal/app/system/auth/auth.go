// internal/app/system/auth/auth.go

// Package auth holds the cookie-session middleware. The API is JSON-only,
// so unauthenticated and unauthorized requests get status codes rather
// than redirects.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"github.com/mkn8rn/mk8.identity/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const (
	SessionName = "mk8-identity-session"

	isAuthKey   = "is_authenticated"
	userIDKey   = "user_id"
	userNameKey = "user_name"
	userRoleKey = "user_roles"
)

// Store is initialised once via InitSessionStore.
var Store *sessions.CookieStore

// SessionUser is what we cache in the session & inject into r.Context().
type SessionUser struct {
	ID       primitive.ObjectID
	Username string
	Roles    []models.RoleType
}

// HasRole reports whether the session user holds the given role.
func (u *SessionUser) HasRole(role models.RoleType) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HighestRole is the role used for notification visibility.
func (u *SessionUser) HighestRole() models.RoleType {
	return models.HighestRole(u.Roles)
}

type ctxKey string

const currentUserKey ctxKey = "currentUser"

// CurrentUser returns the user & "found?" flag.
func CurrentUser(r *http.Request) (*SessionUser, bool) {
	u, ok := r.Context().Value(currentUserKey).(*SessionUser)
	return u, ok
}

// SignIn stores the user in the session cookie.
func SignIn(w http.ResponseWriter, r *http.Request, user *models.User) error {
	sess, _ := Store.Get(r, SessionName)
	sess.Values[isAuthKey] = true
	sess.Values[userIDKey] = user.ID.Hex()
	sess.Values[userNameKey] = user.Username
	sess.Values[userRoleKey] = encodeRoles(user.Roles)
	return sess.Save(r, w)
}

// SignOut clears the session cookie.
func SignOut(w http.ResponseWriter, r *http.Request) error {
	sess, _ := Store.Get(r, SessionName)
	sess.Values = map[interface{}]interface{}{}
	sess.Options.MaxAge = -1
	return sess.Save(r, w)
}

// LoadSessionUser injects the user into context if they are logged in.
// If the session store has not been initialized yet, it is a no-op.
func LoadSessionUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if Store == nil {
			next.ServeHTTP(w, r)
			return
		}

		sess, err := Store.Get(r, SessionName)
		if err != nil {
			// A cookie signed with a rotated key decodes as garbage;
			// treat the request as signed out rather than failing it.
			if scErr, ok := err.(securecookie.Error); ok && scErr.IsDecode() {
				next.ServeHTTP(w, r)
				return
			}
		}

		if isAuth, _ := sess.Values[isAuthKey].(bool); isAuth {
			id, err := primitive.ObjectIDFromHex(getString(sess, userIDKey))
			if err == nil {
				r = withUser(r, &SessionUser{
					ID:       id,
					Username: getString(sess, userNameKey),
					Roles:    decodeRoles(getString(sess, userRoleKey)),
				})
			}
		}
		next.ServeHTTP(w, r)
	})
}

// RequireSignedIn ensures there is a user in context (set by
// LoadSessionUser). Otherwise 401.
func RequireSignedIn(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := CurrentUser(r); ok {
			next.ServeHTTP(w, r)
			return
		}
		writeStatus(w, http.StatusUnauthorized, "unauthorized")
	})
}

// RequireRole ensures the user in context holds one of the allowed roles.
// Not signed in is 401; signed in without the role is 403.
func RequireRole(allowed ...models.RoleType) func(http.Handler) http.Handler {
	set := make(map[models.RoleType]struct{}, len(allowed))
	for _, role := range allowed {
		set[role] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, ok := CurrentUser(r)
			if !ok {
				writeStatus(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			for _, role := range u.Roles {
				if _, has := set[role]; has {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeStatus(w, http.StatusForbidden, "forbidden")
		})
	}
}

// RequireStaff admits any user with at least one staff role.
func RequireStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := CurrentUser(r)
		if !ok {
			writeStatus(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if len(u.Roles) == 0 {
			writeStatus(w, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// InitSessionStore initializes the global session Store using the provided
// session key and domain. The `secure` flag controls whether cookies are
// marked Secure and which SameSite mode is used.
func InitSessionStore(sessionKey, domain string, secure bool, logger *zap.Logger) error {
	if sessionKey == "" {
		return fmt.Errorf("session key is empty; provide ≥32 random chars")
	}
	if len(sessionKey) < 32 {
		logger.Warn("session key is short; 32+ chars recommended",
			zap.Int("length", len(sessionKey)))
	}

	store := sessions.NewCookieStore([]byte(sessionKey))
	opts := &sessions.Options{
		Domain:   domain,
		Path:     "/",
		Secure:   secure,
		HttpOnly: true,
	}

	if secure {
		opts.SameSite = http.SameSiteNoneMode
	} else {
		opts.SameSite = http.SameSiteLaxMode
	}

	store.Options = opts
	Store = store

	logger.Info("session store initialized",
		zap.Bool("secure", secure),
		zap.String("domain", domain))

	return nil
}

// WithTestUser injects a SessionUser directly into the request context,
// bypassing the session middleware. For handler tests only.
func WithTestUser(r *http.Request, u *SessionUser) *http.Request {
	return withUser(r, u)
}

// helpers

func withUser(r *http.Request, u *SessionUser) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), currentUserKey, u))
}

// getString safely extracts a string from a session value.
func getString(s *sessions.Session, key string) string {
	if v, ok := s.Values[key].(string); ok {
		return v
	}
	return ""
}

// Roles are stored in the cookie as comma-joined names so the session map
// only ever holds strings and bools.
func encodeRoles(roles []models.RoleType) string {
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		if r != models.RoleNone {
			names = append(names, r.String())
		}
	}
	return strings.Join(names, ",")
}

func decodeRoles(s string) []models.RoleType {
	if s == "" {
		return nil
	}
	var roles []models.RoleType
	for _, name := range strings.Split(s, ",") {
		if r := models.ParseRole(name); r != models.RoleNone {
			roles = append(roles, r)
		}
	}
	return roles
}

func writeStatus(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"error":%q}`+"\n", msg)
}
