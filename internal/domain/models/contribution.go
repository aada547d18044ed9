// internal/domain/models/contribution.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ContributionType classifies a contribution. Values are stable; the gaps
// group related kinds (1xx payment-sourced, 2xx member-submitted).
type ContributionType int

const (
	ContributionInvalid ContributionType = 0

	// Role-based, auto-assigned monthly while the user holds the role.
	ContributionAdministrator       ContributionType = 1
	ContributionCommunityModeration ContributionType = 2
	ContributionCommunitySupport    ContributionType = 3

	// Payment-sourced: external API or assessor manual entry.
	ContributionGithubSubscription ContributionType = 101
	ContributionPrivateDonation    ContributionType = 102

	// Member-submittable, requires assessor validation.
	ContributionExpertKnowledge      ContributionType = 201
	ContributionProjectCollaboration ContributionType = 202
)

func (t ContributionType) String() string {
	switch t {
	case ContributionAdministrator:
		return "Administrator"
	case ContributionCommunityModeration:
		return "CommunityModeration"
	case ContributionCommunitySupport:
		return "CommunitySupport"
	case ContributionGithubSubscription:
		return "GithubSubscription"
	case ContributionPrivateDonation:
		return "PrivateDonation"
	case ContributionExpertKnowledge:
		return "ExpertKnowledge"
	case ContributionProjectCollaboration:
		return "ProjectCollaboration"
	default:
		return "Invalid"
	}
}

// IsMemberSubmittable reports whether members may submit this type manually.
func (t ContributionType) IsMemberSubmittable() bool {
	return t == ContributionExpertKnowledge || t == ContributionProjectCollaboration
}

// IsRoleBased reports whether this type is auto-assigned from a staff role.
func (t ContributionType) IsRoleBased() bool {
	return t == ContributionAdministrator || t == ContributionCommunityModeration || t == ContributionCommunitySupport
}

// IsExternalAPI reports whether this type is auto-verified via an external API.
func (t ContributionType) IsExternalAPI() bool {
	return t == ContributionGithubSubscription
}

// IsAssessorOnly reports whether only assessors may record this type.
func (t ContributionType) IsAssessorOnly() bool {
	return t == ContributionPrivateDonation
}

// IsAutoAssigned reports whether this type is created without member action.
func (t ContributionType) IsAutoAssigned() bool {
	return t.IsRoleBased() || t.IsExternalAPI()
}

// RoleContributionType maps a staff role to the contribution type its
// holders earn each month. Returns ContributionInvalid for non-staff roles.
func RoleContributionType(role RoleType) ContributionType {
	switch role {
	case RoleAdministrator:
		return ContributionAdministrator
	case RoleModerator:
		return ContributionCommunityModeration
	case RoleSupport:
		return ContributionCommunitySupport
	default:
		return ContributionInvalid
	}
}

// ContributionStatus tracks the validation lifecycle. Pending entries move
// to Validated or Rejected exactly once; AutoVerified entries start terminal.
type ContributionStatus int

const (
	StatusPending      ContributionStatus = 0
	StatusValidated    ContributionStatus = 1
	StatusRejected     ContributionStatus = 2
	StatusAutoVerified ContributionStatus = 3
)

func (s ContributionStatus) String() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusValidated:
		return "Validated"
	case StatusRejected:
		return "Rejected"
	case StatusAutoVerified:
		return "AutoVerified"
	default:
		return "Unknown"
	}
}

// Qualifying reports whether a contribution with this status counts toward
// membership. Pending and Rejected never qualify.
func (s ContributionStatus) Qualifying() bool {
	return s == StatusValidated || s == StatusAutoVerified
}

// Contribution is a dated, typed record of member activity, payment, or
// role service counted toward membership renewal. At most one per
// (membership_id, month, year, type) tuple; enforced at creation time and
// backed by a unique index.
type Contribution struct {
	ID     primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Type   ContributionType   `bson:"type" json:"type"`
	Status ContributionStatus `bson:"status" json:"status"`

	SubmittedAt time.Time `bson:"submitted_at" json:"submitted_at"`

	// Calendar-month coverage window in UTC: first of the month through
	// one second before the next month.
	PeriodStart time.Time `bson:"period_start" json:"period_start"`
	PeriodEnd   time.Time `bson:"period_end" json:"period_end"`

	// Month/Year duplicate PeriodStart for querying.
	Month int `bson:"month" json:"month"` // 1-12
	Year  int `bson:"year" json:"year"`

	MembershipID            primitive.ObjectID  `bson:"membership_id" json:"membership_id"`
	SubmittedByMembershipID primitive.ObjectID  `bson:"submitted_by_membership_id" json:"submitted_by_membership_id"`
	ValidatedByMembershipID *primitive.ObjectID `bson:"validated_by_membership_id,omitempty" json:"validated_by_membership_id,omitempty"`
	ValidatedAt             *time.Time          `bson:"validated_at,omitempty" json:"validated_at,omitempty"`

	Description     string `bson:"description,omitempty" json:"description,omitempty"`
	ValidationNotes string `bson:"validation_notes,omitempty" json:"validation_notes,omitempty"`

	// ExternalReference ties auto-verified entries to their source
	// (e.g. a GitHub sponsorship transaction id).
	ExternalReference string `bson:"external_reference,omitempty" json:"external_reference,omitempty"`
}

// ContributionPeriod returns the UTC calendar-month window for month/year.
func ContributionPeriod(month, year int) (start, end time.Time) {
	start = time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	end = start.AddDate(0, 1, 0).Add(-time.Second)
	return start, end
}
