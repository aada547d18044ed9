// internal/app/system/tasks/dailyjob.go

// Package tasks runs the daily maintenance batch: role-based contribution
// assignment, external subscription processing, the membership check, and
// notification purging, in that order.
package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/mkn8rn/mk8.identity/internal/app/system/lifecycle"
	"go.uber.org/zap"
)

// Ledger is the slice of the contribution ledger the job drives.
type Ledger interface {
	AssignRoleBasedContributions(ctx context.Context) (int, error)
	ProcessGitHubSubscriptions(ctx context.Context) (int, error)
}

// MembershipChecker runs the batch state machine pass.
type MembershipChecker interface {
	RunDailyCheck(ctx context.Context) ([]lifecycle.CheckResult, error)
}

// NotificationPurger deletes old handled notifications.
type NotificationPurger interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// StageResult reports one stage's outcome. A failed stage never stops the
// stages after it.
type StageResult struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
	Err    string `json:"error,omitempty"`
}

// DailyJob sequences the batch stages.
type DailyJob struct {
	ledger        Ledger
	memberships   MembershipChecker
	notifications NotificationPurger
	retention     time.Duration
	log           *zap.Logger

	// now is swapped out in tests.
	now func() time.Time
}

func NewDailyJob(
	ledger Ledger,
	memberships MembershipChecker,
	notifications NotificationPurger,
	retention time.Duration,
	logger *zap.Logger,
) *DailyJob {
	return &DailyJob{
		ledger:        ledger,
		memberships:   memberships,
		notifications: notifications,
		retention:     retention,
		log:           logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Run executes every stage once and returns the per-stage summary. It never
// returns an error: failures are captured in the results.
func (j *DailyJob) Run(ctx context.Context) []StageResult {
	results := make([]StageResult, 0, 4)

	results = append(results, j.stage("role_contributions", func() (string, error) {
		created, err := j.ledger.AssignRoleBasedContributions(ctx)
		return fmt.Sprintf("created %d contributions", created), err
	}))

	results = append(results, j.stage("github_subscriptions", func() (string, error) {
		verified, err := j.ledger.ProcessGitHubSubscriptions(ctx)
		return fmt.Sprintf("verified %d subscriptions", verified), err
	}))

	results = append(results, j.stage("membership_check", func() (string, error) {
		checks, err := j.memberships.RunDailyCheck(ctx)
		var activated, entered, deactivated int
		for _, c := range checks {
			if !c.WasActive && c.IsNowActive {
				activated++
			}
			if c.EnteredGracePeriod {
				entered++
			}
			if c.WasDeactivated {
				deactivated++
			}
		}
		detail := fmt.Sprintf("checked %d memberships: %d activated, %d entered grace, %d deactivated",
			len(checks), activated, entered, deactivated)
		return detail, err
	}))

	results = append(results, j.stage("notification_purge", func() (string, error) {
		deleted, err := j.notifications.DeleteOlderThan(ctx, j.now().Add(-j.retention))
		return fmt.Sprintf("deleted %d notifications", deleted), err
	}))

	return results
}

func (j *DailyJob) stage(name string, fn func() (string, error)) StageResult {
	detail, err := fn()
	if err != nil {
		j.log.Error("daily job stage failed", zap.String("stage", name), zap.Error(err))
		return StageResult{Name: name, Detail: detail, Err: err.Error()}
	}
	j.log.Info("daily job stage done", zap.String("stage", name), zap.String("detail", detail))
	return StageResult{Name: name, OK: true, Detail: detail}
}
