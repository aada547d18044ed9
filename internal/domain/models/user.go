// internal/domain/models/user.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// RoleType identifies a staff role. Values are stable and stored as ints.
// Notification visibility compares these values directly: a notification is
// visible to a viewer when its MinRoleRequired <= the viewer's role value.
type RoleType int

const (
	RoleNone          RoleType = 0
	RoleAdministrator RoleType = 1
	RoleAssessor      RoleType = 2
	RoleModerator     RoleType = 101
	RoleSupport       RoleType = 102
)

// StaffRoles are the roles that earn an auto-assigned monthly contribution.
var StaffRoles = []RoleType{RoleAdministrator, RoleModerator, RoleSupport}

func (r RoleType) String() string {
	switch r {
	case RoleAdministrator:
		return "administrator"
	case RoleAssessor:
		return "assessor"
	case RoleModerator:
		return "moderator"
	case RoleSupport:
		return "support"
	default:
		return "none"
	}
}

// ParseRole maps a role name to its RoleType. Unknown names map to RoleNone.
func ParseRole(s string) RoleType {
	switch s {
	case "administrator":
		return RoleAdministrator
	case "assessor":
		return RoleAssessor
	case "moderator":
		return RoleModerator
	case "support":
		return RoleSupport
	default:
		return RoleNone
	}
}

// User is an account record. Membership state lives in the memberships
// collection (1:1 by user_id), never embedded here.
type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Username     string             `bson:"username" json:"username"`
	UsernameCI   string             `bson:"username_ci" json:"-"` // lowercase, diacritics-stripped
	PasswordHash string             `bson:"password_hash" json:"-"`
	Roles        []RoleType         `bson:"roles,omitempty" json:"roles,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// HasRole reports whether the user holds the given role.
func (u *User) HasRole(role RoleType) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsStaff reports whether the user holds any staff role.
func (u *User) IsStaff() bool {
	return len(u.Roles) > 0
}

// HighestRole picks the role used for notification visibility. Precedence
// is fixed: administrator, then assessor, then moderator, then support.
func HighestRole(roles []RoleType) RoleType {
	for _, want := range []RoleType{RoleAdministrator, RoleAssessor, RoleModerator, RoleSupport} {
		for _, r := range roles {
			if r == want {
				return want
			}
		}
	}
	return RoleNone
}
