// internal/app/system/ledger/ledger.go

// Package ledger accepts and classifies contribution records and answers
// history queries. Every qualifying status transition is followed by an
// explicit recomputation call on the membership state machine; the ledger
// never mutates membership records itself.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	contributionstore "github.com/mkn8rn/mk8.identity/internal/app/store/contributions"
	membershipstore "github.com/mkn8rn/mk8.identity/internal/app/store/memberships"
	"github.com/mkn8rn/mk8.identity/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

var (
	// ErrInvalidType is returned when the contribution type is not a known
	// value.
	ErrInvalidType = errors.New("invalid contribution type")

	// ErrNotMemberSubmittable is returned when a member tries to submit a
	// type that is assigned automatically or by assessors.
	ErrNotMemberSubmittable = errors.New("this contribution type cannot be manually submitted")

	// ErrBadMonth is returned for months outside 1-12.
	ErrBadMonth = errors.New("invalid month")

	// ErrAlreadyDecided is returned when validating a contribution that has
	// already left Pending.
	ErrAlreadyDecided = errors.New("contribution has already been decided")
)

// ContributionStore is the persistence surface the ledger drives.
type ContributionStore interface {
	Insert(ctx context.Context, c models.Contribution) (models.Contribution, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Contribution, error)
	Exists(ctx context.Context, membershipID primitive.ObjectID, month, year int, typ models.ContributionType) (bool, error)
	SetValidation(ctx context.Context, id primitive.ObjectID, status models.ContributionStatus, validatorMembershipID primitive.ObjectID, at time.Time, notes string) (*models.Contribution, error)
	ListByMembership(ctx context.Context, membershipID primitive.ObjectID) ([]models.Contribution, error)
	ListPending(ctx context.Context) ([]models.Contribution, error)
	ListByMonth(ctx context.Context, month, year int) ([]models.Contribution, error)
	ListAll(ctx context.Context, f contributionstore.ListFilter) ([]models.Contribution, error)
	MembershipIDsWithRoleBasedEntries(ctx context.Context, month, year int) ([]primitive.ObjectID, error)
}

// MembershipSource resolves users to their membership records.
type MembershipSource interface {
	GetByUserID(ctx context.Context, userID primitive.ObjectID) (*models.Membership, error)
}

// UserDirectory resolves user ids for notification text.
type UserDirectory interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
}

// RoleDirectory lists the holders of a staff role for monthly
// auto-assignment.
type RoleDirectory interface {
	ListUserIDsWithRole(ctx context.Context, role models.RoleType) ([]primitive.ObjectID, error)
}

// Recomputer is the state machine operation the ledger triggers after a
// qualifying transition.
type Recomputer interface {
	RecomputeMembership(ctx context.Context, membershipID primitive.ObjectID) error
}

// Sink receives the events the ledger emits.
type Sink interface {
	ContributionSubmitted(ctx context.Context, userID primitive.ObjectID, username string, typ models.ContributionType) error
}

type Service struct {
	contributions ContributionStore
	memberships   MembershipSource
	users         UserDirectory
	roles         RoleDirectory
	recomputer    Recomputer
	sink          Sink
	log           *zap.Logger

	// now is swapped out in tests.
	now func() time.Time
}

func NewService(
	contributions ContributionStore,
	memberships MembershipSource,
	users UserDirectory,
	roles RoleDirectory,
	recomputer Recomputer,
	sink Sink,
	logger *zap.Logger,
) *Service {
	return &Service{
		contributions: contributions,
		memberships:   memberships,
		users:         users,
		roles:         roles,
		recomputer:    recomputer,
		sink:          sink,
		log:           logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// SubmitMemberContribution records a Pending entry for a member-submittable
// type and notifies assessors. At most one entry may exist per
// (membership, month, year, type).
func (s *Service) SubmitMemberContribution(ctx context.Context, userID primitive.ObjectID, typ models.ContributionType, month, year int, description string) (*models.Contribution, error) {
	if typ == models.ContributionInvalid {
		return nil, ErrInvalidType
	}
	if !typ.IsMemberSubmittable() {
		return nil, ErrNotMemberSubmittable
	}
	if month < 1 || month > 12 {
		return nil, ErrBadMonth
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	m, err := s.memberships.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	exists, err := s.contributions.Exists(ctx, m.ID, month, year, typ)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, contributionstore.ErrDuplicateContribution
	}

	start, end := models.ContributionPeriod(month, year)
	c, err := s.contributions.Insert(ctx, models.Contribution{
		Type:                    typ,
		Status:                  models.StatusPending,
		SubmittedAt:             s.now(),
		PeriodStart:             start,
		PeriodEnd:               end,
		Month:                   month,
		Year:                    year,
		MembershipID:            m.ID,
		SubmittedByMembershipID: m.ID,
		Description:             description,
	})
	if err != nil {
		return nil, err
	}

	if err := s.sink.ContributionSubmitted(ctx, user.ID, user.Username, typ); err != nil {
		s.log.Error("notification emit failed", zap.String("event", "contribution submitted"), zap.Error(err))
	}
	return &c, nil
}

// AssessorCreateValidated records an already-Validated entry on behalf of a
// member and immediately recomputes their membership state.
func (s *Service) AssessorCreateValidated(ctx context.Context, assessorUserID, targetUserID primitive.ObjectID, typ models.ContributionType, month, year int, description string) (*models.Contribution, error) {
	if typ == models.ContributionInvalid {
		return nil, ErrInvalidType
	}
	if month < 1 || month > 12 {
		return nil, ErrBadMonth
	}

	target, err := s.memberships.GetByUserID(ctx, targetUserID)
	if err != nil {
		return nil, err
	}
	assessor, err := s.memberships.GetByUserID(ctx, assessorUserID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	start, end := models.ContributionPeriod(month, year)
	c, err := s.contributions.Insert(ctx, models.Contribution{
		Type:                    typ,
		Status:                  models.StatusValidated,
		SubmittedAt:             now,
		PeriodStart:             start,
		PeriodEnd:               end,
		Month:                   month,
		Year:                    year,
		MembershipID:            target.ID,
		SubmittedByMembershipID: assessor.ID,
		ValidatedByMembershipID: &assessor.ID,
		ValidatedAt:             &now,
		Description:             description,
	})
	if err != nil {
		return nil, err
	}

	if err := s.recomputer.RecomputeMembership(ctx, target.ID); err != nil {
		s.log.Error("recompute after assessor-created contribution failed",
			zap.String("membership_id", target.ID.Hex()),
			zap.Error(err))
	}
	return &c, nil
}

// Validate decides a Pending contribution. Approval makes the entry
// qualifying, so the target membership is recomputed.
func (s *Service) Validate(ctx context.Context, assessorUserID, contributionID primitive.ObjectID, approved bool, notes string) (*models.Contribution, error) {
	c, err := s.contributions.GetByID(ctx, contributionID)
	if err != nil {
		return nil, err
	}
	if c.Status != models.StatusPending {
		return nil, ErrAlreadyDecided
	}

	assessor, err := s.memberships.GetByUserID(ctx, assessorUserID)
	if err != nil {
		return nil, err
	}

	status := models.StatusRejected
	if approved {
		status = models.StatusValidated
	}
	updated, err := s.contributions.SetValidation(ctx, contributionID, status, assessor.ID, s.now(), notes)
	if err != nil {
		// The entry was there a moment ago; losing the Pending filter race
		// means someone else decided it.
		if errors.Is(err, contributionstore.ErrNotFound) {
			return nil, ErrAlreadyDecided
		}
		return nil, err
	}

	if approved {
		if err := s.recomputer.RecomputeMembership(ctx, updated.MembershipID); err != nil {
			s.log.Error("recompute after validation failed",
				zap.String("membership_id", updated.MembershipID.Hex()),
				zap.Error(err))
		}
	}
	return updated, nil
}

// AutoVerify records an AutoVerified entry from an external integration and
// recomputes the membership.
func (s *Service) AutoVerify(ctx context.Context, userID primitive.ObjectID, typ models.ContributionType, month, year int, externalReference string) (*models.Contribution, error) {
	if typ == models.ContributionInvalid {
		return nil, ErrInvalidType
	}
	if month < 1 || month > 12 {
		return nil, ErrBadMonth
	}

	m, err := s.memberships.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	start, end := models.ContributionPeriod(month, year)
	c, err := s.contributions.Insert(ctx, models.Contribution{
		Type:                    typ,
		Status:                  models.StatusAutoVerified,
		SubmittedAt:             now,
		PeriodStart:             start,
		PeriodEnd:               end,
		Month:                   month,
		Year:                    year,
		MembershipID:            m.ID,
		SubmittedByMembershipID: m.ID,
		ValidatedAt:             &now,
		ExternalReference:       externalReference,
	})
	if err != nil {
		return nil, err
	}

	if err := s.recomputer.RecomputeMembership(ctx, m.ID); err != nil {
		s.log.Error("recompute after auto-verify failed",
			zap.String("membership_id", m.ID.Hex()),
			zap.Error(err))
	}
	return &c, nil
}

// AssignRoleBasedContributions creates this month's AutoVerified entry for
// every staff-role holder that does not have one yet, then recomputes each
// affected membership exactly once. Safe to run any number of times per
// month.
func (s *Service) AssignRoleBasedContributions(ctx context.Context) (int, error) {
	now := s.now()
	month, year := int(now.Month()), now.Year()
	start, end := models.ContributionPeriod(month, year)

	created := 0
	for _, role := range models.StaffRoles {
		typ := models.RoleContributionType(role)

		userIDs, err := s.roles.ListUserIDsWithRole(ctx, role)
		if err != nil {
			return created, err
		}

		for _, userID := range userIDs {
			m, err := s.memberships.GetByUserID(ctx, userID)
			if err != nil {
				if errors.Is(err, membershipstore.ErrNotFound) {
					continue
				}
				return created, err
			}

			exists, err := s.contributions.Exists(ctx, m.ID, month, year, typ)
			if err != nil {
				return created, err
			}
			if exists {
				continue
			}

			_, err = s.contributions.Insert(ctx, models.Contribution{
				Type:                    typ,
				Status:                  models.StatusAutoVerified,
				SubmittedAt:             now,
				PeriodStart:             start,
				PeriodEnd:               end,
				Month:                   month,
				Year:                    year,
				MembershipID:            m.ID,
				SubmittedByMembershipID: m.ID,
				ValidatedAt:             &now,
				Description:             fmt.Sprintf("Auto-assigned for %s role", role),
			})
			if err != nil {
				if errors.Is(err, contributionstore.ErrDuplicateContribution) {
					continue
				}
				return created, err
			}
			created++
		}
	}

	// One recomputation per affected membership, regardless of how many
	// entries were just created for it.
	affected, err := s.contributions.MembershipIDsWithRoleBasedEntries(ctx, month, year)
	if err != nil {
		return created, err
	}
	for _, membershipID := range affected {
		if err := s.recomputer.RecomputeMembership(ctx, membershipID); err != nil {
			s.log.Error("recompute after role assignment failed",
				zap.String("membership_id", membershipID.Hex()),
				zap.Error(err))
		}
	}

	return created, nil
}

// ProcessGitHubSubscriptions is the daily stage that will verify sponsor
// subscriptions against the GitHub API and AutoVerify an entry per active
// sponsor. With no API integration configured it processes zero entries;
// the stage slot keeps the batch order stable.
func (s *Service) ProcessGitHubSubscriptions(ctx context.Context) (int, error) {
	return 0, nil
}

// GetByID loads one contribution.
func (s *Service) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Contribution, error) {
	return s.contributions.GetByID(ctx, id)
}

// ListForUser returns a user's contribution history, newest period first.
func (s *Service) ListForUser(ctx context.Context, userID primitive.ObjectID) ([]models.Contribution, error) {
	m, err := s.memberships.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.contributions.ListByMembership(ctx, m.ID)
}

// ListPending returns the validation queue, oldest submission first.
func (s *Service) ListPending(ctx context.Context) ([]models.Contribution, error) {
	return s.contributions.ListPending(ctx)
}

// ListByMonth returns one period's entries, newest submission first.
func (s *Service) ListByMonth(ctx context.Context, month, year int) ([]models.Contribution, error) {
	if month < 1 || month > 12 {
		return nil, ErrBadMonth
	}
	return s.contributions.ListByMonth(ctx, month, year)
}

// ListAll returns all entries matching the filter.
func (s *Service) ListAll(ctx context.Context, f contributionstore.ListFilter) ([]models.Contribution, error) {
	return s.contributions.ListAll(ctx, f)
}
