// internal/app/bootstrap/routes.go
package bootstrap

import (
	"net/http"

	"github.com/dalemusser/waffle/config"
	"github.com/go-chi/chi/v5"
	accountsfeature "github.com/mkn8rn/mk8.identity/internal/app/features/accounts"
	contributionsfeature "github.com/mkn8rn/mk8.identity/internal/app/features/contributions"
	dailyjobfeature "github.com/mkn8rn/mk8.identity/internal/app/features/dailyjob"
	healthfeature "github.com/mkn8rn/mk8.identity/internal/app/features/health"
	matrixaccountsfeature "github.com/mkn8rn/mk8.identity/internal/app/features/matrixaccounts"
	membershipsfeature "github.com/mkn8rn/mk8.identity/internal/app/features/memberships"
	messagesfeature "github.com/mkn8rn/mk8.identity/internal/app/features/messages"
	notificationsfeature "github.com/mkn8rn/mk8.identity/internal/app/features/notifications"
	"github.com/mkn8rn/mk8.identity/internal/app/system/auth"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// the Startup hook have completed, so the shared services built in Startup
// are available. The service is a JSON API: every feature router speaks
// JSON and relies on the cookie-session middleware for identity.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	// Secure cookies are enabled in production mode.
	secure := coreCfg.Env == "prod"
	if err := auth.InitSessionStore(appCfg.SessionKey, appCfg.SessionDomain, secure, logger); err != nil {
		logger.Error("session store init failed", zap.Error(err))
		return nil, err
	}

	r := chi.NewRouter()

	// Global auth middleware: loads SessionUser into context if logged in.
	r.Use(auth.LoadSessionUser)

	// Health check endpoint for load balancers and orchestrators.
	healthHandler := healthfeature.NewHandler(deps.MongoClient, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))

	// Registration, login, and role administration.
	accountsHandler := accountsfeature.NewHandler(svc.users, svc.memberships, svc.privileges, svc.notifier, logger)
	r.Mount("/accounts", accountsfeature.Routes(accountsHandler))

	// Membership status, lists, and admin activate/deactivate.
	membershipsHandler := membershipsfeature.NewHandler(svc.memberships, svc.contributions, svc.users, svc.privileges, svc.lifecycle, logger)
	r.Mount("/memberships", membershipsfeature.Routes(membershipsHandler))

	// The contribution ledger.
	contributionsHandler := contributionsfeature.NewHandler(svc.ledger, logger)
	r.Mount("/contributions", contributionsfeature.Routes(contributionsHandler))

	// Staff notifications.
	notificationsHandler := notificationsfeature.NewHandler(svc.notifications, logger)
	r.Mount("/notifications", notificationsfeature.Routes(notificationsHandler))

	// Support and Matrix-account request messages.
	messagesHandler := messagesfeature.NewHandler(
		svc.messages, svc.memberships, svc.matrixAccounts, svc.privileges,
		svc.notifier, appCfg.MatrixHomeserver, logger)
	r.Mount("/messages", messagesfeature.Routes(messagesHandler))

	// Matrix account records.
	matrixHandler := matrixaccountsfeature.NewHandler(
		svc.matrixAccounts, svc.matrixDir, svc.privileges, svc.memberships,
		appCfg.MatrixHomeserver, logger)
	r.Mount("/matrix-accounts", matrixaccountsfeature.Routes(matrixHandler))

	// Manual daily job trigger for admins.
	dailyJobHandler := dailyjobfeature.NewHandler(svc.dailyJob, logger)
	r.Mount("/admin/daily-job", dailyjobfeature.Routes(dailyJobHandler))

	return r, nil
}
