// internal/domain/models/message.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MessageType identifies member-to-staff workflows handled through messages.
type MessageType int

const (
	MessageInvalid              MessageType = 0
	MessageSupportRequest       MessageType = 1
	MessageMatrixAccountRequest MessageType = 2
)

// MessageStatus tracks staff handling of a message.
type MessageStatus int

const (
	MessagePending    MessageStatus = 0
	MessageInProgress MessageStatus = 1
	MessageCompleted  MessageStatus = 2
	MessageRejected   MessageStatus = 3
)

// Message is a member request routed to staff: a support question or a
// Matrix account provisioning request.
type Message struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Type      MessageType        `bson:"type" json:"type"`
	Status    MessageStatus      `bson:"status" json:"status"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`

	SenderMembershipID primitive.ObjectID `bson:"sender_membership_id" json:"sender_membership_id"`

	// Support requests.
	Title       string `bson:"title,omitempty" json:"title,omitempty"`
	Description string `bson:"description,omitempty" json:"description,omitempty"`

	// Matrix account creation requests.
	DesiredMatrixUsername string `bson:"desired_matrix_username,omitempty" json:"desired_matrix_username,omitempty"`

	// Staff handling.
	HandledByMembershipID *primitive.ObjectID `bson:"handled_by_membership_id,omitempty" json:"handled_by_membership_id,omitempty"`
	HandledAt             *time.Time          `bson:"handled_at,omitempty" json:"handled_at,omitempty"`
	TemporaryPassword     string              `bson:"temporary_password,omitempty" json:"temporary_password,omitempty"`
	SpecialInstructions   string              `bson:"special_instructions,omitempty" json:"special_instructions,omitempty"`

	// The Matrix account created from this request, if completed.
	CreatedMatrixAccountID *primitive.ObjectID `bson:"created_matrix_account_id,omitempty" json:"created_matrix_account_id,omitempty"`
}
