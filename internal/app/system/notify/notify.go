// internal/app/system/notify/notify.go

// Package notify is the staff notification sink. The ledger and lifecycle
// services emit structured events through the Sink interface; the
// store-backed Notifier renders them into persisted notification records.
// Hosts embedding the core can swap in their own Sink.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	membershipstore "github.com/mkn8rn/mk8.identity/internal/app/store/memberships"
	notificationstore "github.com/mkn8rn/mk8.identity/internal/app/store/notifications"
	"github.com/mkn8rn/mk8.identity/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Sink receives the events the core emits. Implementations must be safe
// for concurrent use.
type Sink interface {
	NewUserRegistered(ctx context.Context, userID primitive.ObjectID, username string) error
	ContributionSubmitted(ctx context.Context, userID primitive.ObjectID, username string, typ models.ContributionType) error

	// GracePeriodUpdate covers both first entry (graceMonth == 1) and the
	// monthly reminders that follow.
	GracePeriodUpdate(ctx context.Context, userID primitive.ObjectID, username string, graceMonth, monthsRemaining int) error

	MembershipDeactivated(ctx context.Context, userID primitive.ObjectID, username string) error
	MatrixAccountRequested(ctx context.Context, userID primitive.ObjectID, username, desiredUsername string) error
	MatrixDisableRequired(ctx context.Context, userID primitive.ObjectID, username, matrixUsername string) error
}

// Notifier persists events as notification records visible to staff.
type Notifier struct {
	notifications *notificationstore.Store
	memberships   *membershipstore.Store
	log           *zap.Logger
}

var _ Sink = (*Notifier)(nil)

func NewNotifier(notifications *notificationstore.Store, memberships *membershipstore.Store, logger *zap.Logger) *Notifier {
	return &Notifier{
		notifications: notifications,
		memberships:   memberships,
		log:           logger,
	}
}

func (n *Notifier) NewUserRegistered(ctx context.Context, userID primitive.ObjectID, username string) error {
	return n.create(ctx, userID, models.Notification{
		Type:            models.NotificationNewUserRegistered,
		Priority:        models.PriorityNormal,
		Title:           "New User Registered",
		Message:         fmt.Sprintf("A new user '%s' has registered an account.", username),
		MinRoleRequired: models.RoleAssessor,
	})
}

func (n *Notifier) ContributionSubmitted(ctx context.Context, userID primitive.ObjectID, username string, typ models.ContributionType) error {
	return n.create(ctx, userID, models.Notification{
		Type:             models.NotificationContributionSubmitted,
		Priority:         models.PriorityNormal,
		Title:            "Contribution Submitted for Review",
		Message:          fmt.Sprintf("User '%s' has submitted a %s contribution for validation.", username, typ),
		IsActionRequired: true,
		MinRoleRequired:  models.RoleAssessor,
	})
}

func (n *Notifier) GracePeriodUpdate(ctx context.Context, userID primitive.ObjectID, username string, graceMonth, monthsRemaining int) error {
	var message string
	priority := models.PriorityNormal

	if graceMonth == 1 {
		message = fmt.Sprintf("Member '%s' has entered their grace period. They have %d months remaining before account disablement.", username, monthsRemaining)
	} else {
		message = fmt.Sprintf("Member '%s' has started month %d of their grace period. They have %d more months left.", username, graceMonth, monthsRemaining)
		if monthsRemaining <= 2 {
			priority = models.PriorityHigh
		}
	}

	month := graceMonth
	remaining := monthsRemaining
	return n.create(ctx, userID, models.Notification{
		Type:                       models.NotificationGracePeriodReminder,
		Priority:                   priority,
		Title:                      fmt.Sprintf("Grace Period Update - %s", username),
		Message:                    message,
		MinRoleRequired:            models.RoleAssessor,
		GracePeriodMonth:           &month,
		GracePeriodMonthsRemaining: &remaining,
	})
}

func (n *Notifier) MembershipDeactivated(ctx context.Context, userID primitive.ObjectID, username string) error {
	return n.create(ctx, userID, models.Notification{
		Type:            models.NotificationMembershipDeactivated,
		Priority:        models.PriorityHigh,
		Title:           "Membership Deactivated",
		Message:         fmt.Sprintf("Member '%s' has been deactivated due to expired grace period.", username),
		MinRoleRequired: models.RoleAssessor,
	})
}

func (n *Notifier) MatrixAccountRequested(ctx context.Context, userID primitive.ObjectID, username, desiredUsername string) error {
	return n.create(ctx, userID, models.Notification{
		Type:             models.NotificationMatrixAccountCreationRequested,
		Priority:         models.PriorityNormal,
		Title:            "Matrix Account Requested",
		Message:          fmt.Sprintf("Member '%s' has requested a Matrix account (@%s). Please review and provision it.", username, desiredUsername),
		IsActionRequired: true,
		MinRoleRequired:  models.RoleAdministrator,
	})
}

func (n *Notifier) MatrixDisableRequired(ctx context.Context, userID primitive.ObjectID, username, matrixUsername string) error {
	return n.create(ctx, userID, models.Notification{
		Type:             models.NotificationMatrixAccountDisableRequired,
		Priority:         models.PriorityUrgent,
		Title:            "Matrix Account Requires Disablement",
		Message:          fmt.Sprintf("Member '%s' has been deactivated but has an active Matrix account (@%s). Please disable it.", username, matrixUsername),
		IsActionRequired: true,
		MinRoleRequired:  models.RoleAdministrator,
	})
}

// create resolves the related user to their membership and inserts the
// record. A missing membership is tolerated: the notification is still
// stored, just without the membership link.
func (n *Notifier) create(ctx context.Context, userID primitive.ObjectID, notification models.Notification) error {
	notification.CreatedAt = time.Now().UTC()

	m, err := n.memberships.GetByUserID(ctx, userID)
	switch {
	case err == nil:
		notification.RelatedMembershipID = &m.ID
	case errors.Is(err, membershipstore.ErrNotFound):
		n.log.Warn("notification for user without membership",
			zap.String("user_id", userID.Hex()),
			zap.Int("type", int(notification.Type)))
	default:
		return err
	}

	_, err = n.notifications.Insert(ctx, notification)
	return err
}
