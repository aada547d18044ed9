// internal/domain/models/privileges.go
package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// Privileges holds per-membership grants. One document per membership,
// created lazily the first time a grant or Matrix account needs it.
type Privileges struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	MembershipID primitive.ObjectID `bson:"membership_id" json:"membership_id"`
	VotingRights bool               `bson:"voting_rights" json:"voting_rights"`
}
