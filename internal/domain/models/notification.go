// internal/domain/models/notification.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// NotificationType identifies the event a notification reports.
type NotificationType int

const (
	NotificationInvalid NotificationType = 0

	// User events.
	NotificationNewUserRegistered     NotificationType = 1
	NotificationContributionSubmitted NotificationType = 2

	// Membership events.
	NotificationMembershipActivated         NotificationType = 101
	NotificationGracePeriodStarted          NotificationType = 102
	NotificationGracePeriodReminder         NotificationType = 103
	NotificationMembershipDeactivated       NotificationType = 104

	// Matrix account events.
	NotificationMatrixAccountCreationRequested NotificationType = 201
	NotificationMatrixAccountDisableRequired   NotificationType = 202
)

// NotificationPriority orders staff attention.
type NotificationPriority int

const (
	PriorityLow    NotificationPriority = 0
	PriorityNormal NotificationPriority = 1
	PriorityHigh   NotificationPriority = 2
	PriorityUrgent NotificationPriority = 3
)

// Notification is a staff-facing event record. Visibility: a viewer with
// role value v sees notifications where min_role_required <= v.
type Notification struct {
	ID       primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	Type     NotificationType     `bson:"type" json:"type"`
	Priority NotificationPriority `bson:"priority" json:"priority"`
	Title    string               `bson:"title" json:"title"`
	Message  string               `bson:"message" json:"message"`

	CreatedAt time.Time  `bson:"created_at" json:"created_at"`
	IsRead    bool       `bson:"is_read" json:"is_read"`
	ReadAt    *time.Time `bson:"read_at,omitempty" json:"read_at,omitempty"`

	IsActionRequired  bool       `bson:"is_action_required" json:"is_action_required"`
	IsActionCompleted bool       `bson:"is_action_completed" json:"is_action_completed"`
	ActionCompletedAt *time.Time `bson:"action_completed_at,omitempty" json:"action_completed_at,omitempty"`

	// The membership this notification is about, if any.
	RelatedMembershipID *primitive.ObjectID `bson:"related_membership_id,omitempty" json:"related_membership_id,omitempty"`

	// Specific staff assignee; nil means visible to all staff gated by
	// MinRoleRequired.
	AssignedToMembershipID *primitive.ObjectID `bson:"assigned_to_membership_id,omitempty" json:"assigned_to_membership_id,omitempty"`

	MinRoleRequired RoleType `bson:"min_role_required" json:"min_role_required"`

	// Grace-period reminders track which month of grace and how many remain.
	GracePeriodMonth           *int `bson:"grace_period_month,omitempty" json:"grace_period_month,omitempty"`
	GracePeriodMonthsRemaining *int `bson:"grace_period_months_remaining,omitempty" json:"grace_period_months_remaining,omitempty"`
}
