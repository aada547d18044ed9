// internal/domain/models/matrixaccount.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MatrixAccount is the directory record of a chat account owned by a
// member. This service only tracks accounts and flags them for manual
// disablement; it never talks to a homeserver.
type MatrixAccount struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	AccountID string             `bson:"account_id" json:"account_id"` // @user:homeserver
	Username  string             `bson:"username" json:"username"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`

	IsDisabled bool       `bson:"is_disabled" json:"is_disabled"`
	DisabledAt *time.Time `bson:"disabled_at,omitempty" json:"disabled_at,omitempty"`

	// Ownership runs through the owner's privileges record.
	PrivilegesID primitive.ObjectID `bson:"privileges_id" json:"privileges_id"`

	CreatedByMembershipID  *primitive.ObjectID `bson:"created_by_membership_id,omitempty" json:"created_by_membership_id,omitempty"`
	DisabledByMembershipID *primitive.ObjectID `bson:"disabled_by_membership_id,omitempty" json:"disabled_by_membership_id,omitempty"`
}
