// internal/domain/models/membership.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Membership is the per-user record tracking active/grace/expired status.
// Exactly one document per user (unique index on user_id). Created inactive
// at registration and mutated only by the lifecycle service or explicit
// admin activate/deactivate; never deleted in normal operation.
//
// Invariant: IsInGracePeriod implies IsActive.
type Membership struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID   primitive.ObjectID `bson:"user_id" json:"user_id"`
	IsActive bool               `bson:"is_active" json:"is_active"`

	// StartDate is set at registration and never changes; years of
	// membership (and therefore earned grace months) derive from it.
	StartDate time.Time `bson:"start_date" json:"start_date"`

	// Append-only audit trail of explicit and computed transitions.
	ActivationDates   []time.Time `bson:"activation_dates" json:"activation_dates"`
	DeactivationDates []time.Time `bson:"deactivation_dates" json:"deactivation_dates"`

	IsInGracePeriod         bool       `bson:"is_in_grace_period" json:"is_in_grace_period"`
	GracePeriodStartedAt    *time.Time `bson:"grace_period_started_at,omitempty" json:"grace_period_started_at,omitempty"`
	GracePeriodMonthsEarned int        `bson:"grace_period_months_earned" json:"grace_period_months_earned"`
	GracePeriodMonthsUsed   int        `bson:"grace_period_months_used" json:"grace_period_months_used"`

	// ExpiresAt = last qualifying contribution period end + 1 month + earned
	// grace months. Nil until the first recomputation with qualifying history.
	ExpiresAt *time.Time `bson:"expires_at,omitempty" json:"expires_at,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}
