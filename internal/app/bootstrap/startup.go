// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"
	"time"

	"github.com/dalemusser/waffle/config"
	contributionstore "github.com/mkn8rn/mk8.identity/internal/app/store/contributions"
	matrixaccountstore "github.com/mkn8rn/mk8.identity/internal/app/store/matrixaccounts"
	membershipstore "github.com/mkn8rn/mk8.identity/internal/app/store/memberships"
	messagestore "github.com/mkn8rn/mk8.identity/internal/app/store/messages"
	notificationstore "github.com/mkn8rn/mk8.identity/internal/app/store/notifications"
	privilegesstore "github.com/mkn8rn/mk8.identity/internal/app/store/privileges"
	userstore "github.com/mkn8rn/mk8.identity/internal/app/store/users"
	"github.com/mkn8rn/mk8.identity/internal/app/system/ledger"
	"github.com/mkn8rn/mk8.identity/internal/app/system/lifecycle"
	"github.com/mkn8rn/mk8.identity/internal/app/system/notify"
	"github.com/mkn8rn/mk8.identity/internal/app/system/tasks"
	"go.uber.org/zap"
)

// services bundles the stores and domain services shared between Startup,
// BuildHandler, and Shutdown.
type services struct {
	users          *userstore.Store
	memberships    *membershipstore.Store
	contributions  *contributionstore.Store
	notifications  *notificationstore.Store
	messages       *messagestore.Store
	matrixAccounts *matrixaccountstore.Store
	matrixDir      *matrixaccountstore.Directory
	privileges     *privilegesstore.Store

	notifier  *notify.Notifier
	lifecycle *lifecycle.Service
	ledger    *ledger.Service
	dailyJob  *tasks.DailyJob
}

// svc is populated once in Startup, before BuildHandler runs.
var svc *services

// dailyWorker runs the maintenance job on an interval; stopped in Shutdown.
var dailyWorker *tasks.Worker

// Startup runs one-time application initialization after DB connections and
// schema setup are complete, but before the HTTP handler is built. It wires
// the stores into the domain services and starts the daily job worker.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	db := deps.MongoDatabase

	s := &services{
		users:          userstore.New(db),
		memberships:    membershipstore.New(db),
		contributions:  contributionstore.New(db),
		notifications:  notificationstore.New(db),
		messages:       messagestore.New(db),
		matrixAccounts: matrixaccountstore.New(db),
		privileges:     privilegesstore.New(db),
	}
	s.matrixDir = matrixaccountstore.NewDirectory(s.matrixAccounts, s.privileges)
	s.notifier = notify.NewNotifier(s.notifications, s.memberships, logger)

	s.lifecycle = lifecycle.NewService(
		s.memberships,
		s.contributions,
		s.users,
		s.matrixDir,
		s.notifier,
		logger,
	)
	s.ledger = ledger.NewService(
		s.contributions,
		s.memberships,
		s.users,
		s.users,
		s.lifecycle,
		s.notifier,
		logger,
	)

	retention := time.Duration(appCfg.NotificationRetentionDays) * 24 * time.Hour
	s.dailyJob = tasks.NewDailyJob(s.ledger, s.lifecycle, s.notifications, retention, logger)

	svc = s

	dailyWorker = tasks.NewWorker(s.dailyJob, logger, appCfg.DailyJobInterval, appCfg.DailyJobTimeout)
	dailyWorker.Start()
	logger.Info("daily job worker started",
		zap.Duration("interval", appCfg.DailyJobInterval))

	return nil
}
