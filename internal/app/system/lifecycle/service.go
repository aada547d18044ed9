// internal/app/system/lifecycle/service.go
package lifecycle

import (
	"context"
	"errors"
	"time"

	"github.com/mkn8rn/mk8.identity/internal/app/system/locks"
	"github.com/mkn8rn/mk8.identity/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

var (
	// ErrAlreadyActive is returned by Activate on an active membership.
	ErrAlreadyActive = errors.New("membership is already active")

	// ErrAlreadyInactive is returned by Deactivate on an inactive membership.
	ErrAlreadyInactive = errors.New("membership is already inactive")
)

// MembershipStore is the slice of the membership store the service needs.
type MembershipStore interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Membership, error)
	GetByUserID(ctx context.Context, userID primitive.ObjectID) (*models.Membership, error)
	Save(ctx context.Context, m *models.Membership) error
	List(ctx context.Context) ([]models.Membership, error)
}

// ContributionSource answers the one ledger question the state machine
// asks.
type ContributionSource interface {
	LatestQualifying(ctx context.Context, membershipID primitive.ObjectID) (*models.Contribution, error)
}

// UserDirectory resolves user ids for notification text.
type UserDirectory interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
}

// MatrixDirectory lists a member's enabled chat accounts. Consulted on
// deactivation only; the service never disables accounts itself.
type MatrixDirectory interface {
	ListEnabledForMembership(ctx context.Context, membershipID primitive.ObjectID) ([]models.MatrixAccount, error)
}

// Sink receives the events the state machine emits.
type Sink interface {
	GracePeriodUpdate(ctx context.Context, userID primitive.ObjectID, username string, graceMonth, monthsRemaining int) error
	MembershipDeactivated(ctx context.Context, userID primitive.ObjectID, username string) error
	MatrixDisableRequired(ctx context.Context, userID primitive.ObjectID, username, matrixUsername string) error
}

// CheckResult reports what one recomputation did to one membership.
type CheckResult struct {
	UserID             primitive.ObjectID `json:"user_id"`
	Username           string             `json:"username"`
	WasActive          bool               `json:"was_active"`
	IsNowActive        bool               `json:"is_now_active"`
	EnteredGracePeriod bool               `json:"entered_grace_period"`
	WasDeactivated     bool               `json:"was_deactivated"`

	GracePeriodMonth           int `json:"grace_period_month"`
	GracePeriodMonthsRemaining int `json:"grace_period_months_remaining"`
}

// Service owns all mutation of membership records. Transitions run under a
// per-membership lock so a batch run and an interactive validation cannot
// race on the same document.
type Service struct {
	memberships   MembershipStore
	contributions ContributionSource
	users         UserDirectory
	matrix        MatrixDirectory
	sink          Sink
	locks         *locks.Keyed
	log           *zap.Logger

	// now is swapped out in tests.
	now func() time.Time
}

func NewService(
	memberships MembershipStore,
	contributions ContributionSource,
	users UserDirectory,
	matrix MatrixDirectory,
	sink Sink,
	logger *zap.Logger,
) *Service {
	return &Service{
		memberships:   memberships,
		contributions: contributions,
		users:         users,
		matrix:        matrix,
		sink:          sink,
		locks:         locks.NewKeyed(),
		log:           logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Activate turns an inactive membership on by admin action, clearing any
// grace state. Fails with ErrAlreadyActive if nothing to do.
func (s *Service) Activate(ctx context.Context, userID primitive.ObjectID) error {
	m, err := s.memberships.GetByUserID(ctx, userID)
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(m.ID.Hex())
	defer unlock()

	m, err = s.memberships.GetByUserID(ctx, userID)
	if err != nil {
		return err
	}
	if m.IsActive {
		return ErrAlreadyActive
	}

	now := s.now()
	m.IsActive = true
	m.ActivationDates = append(m.ActivationDates, now)
	m.IsInGracePeriod = false
	m.GracePeriodStartedAt = nil
	m.GracePeriodMonthsUsed = 0

	return s.memberships.Save(ctx, m)
}

// Deactivate turns an active membership off by admin action and notifies
// staff. Fails with ErrAlreadyInactive if nothing to do.
func (s *Service) Deactivate(ctx context.Context, userID primitive.ObjectID) error {
	m, err := s.memberships.GetByUserID(ctx, userID)
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(m.ID.Hex())
	defer unlock()

	m, err = s.memberships.GetByUserID(ctx, userID)
	if err != nil {
		return err
	}
	if !m.IsActive {
		return ErrAlreadyInactive
	}

	m.IsActive = false
	m.IsInGracePeriod = false
	m.DeactivationDates = append(m.DeactivationDates, s.now())

	if err := s.memberships.Save(ctx, m); err != nil {
		return err
	}

	if user, err := s.users.GetByID(ctx, userID); err == nil {
		s.emit(ctx, "membership deactivated", func(ctx context.Context) error {
			return s.sink.MembershipDeactivated(ctx, user.ID, user.Username)
		})
	}
	return nil
}

// Recompute runs the state machine for one user's membership.
func (s *Service) Recompute(ctx context.Context, userID primitive.ObjectID) (CheckResult, error) {
	m, err := s.memberships.GetByUserID(ctx, userID)
	if err != nil {
		return CheckResult{}, err
	}
	return s.recompute(ctx, m.ID)
}

// RecomputeMembership runs the state machine for one membership by id. The
// ledger calls this after every qualifying status transition.
func (s *Service) RecomputeMembership(ctx context.Context, membershipID primitive.ObjectID) error {
	_, err := s.recompute(ctx, membershipID)
	return err
}

// RunDailyCheck recomputes every membership. A failure on one membership is
// logged and does not stop the rest; cancellation is honored between
// iterations.
func (s *Service) RunDailyCheck(ctx context.Context) ([]CheckResult, error) {
	memberships, err := s.memberships.List(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]CheckResult, 0, len(memberships))
	for i := range memberships {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := s.recompute(ctx, memberships[i].ID)
		if err != nil {
			s.log.Error("membership check failed",
				zap.String("membership_id", memberships[i].ID.Hex()),
				zap.Error(err))
			continue
		}
		results = append(results, res)
	}
	return results, nil
}

func (s *Service) recompute(ctx context.Context, membershipID primitive.ObjectID) (CheckResult, error) {
	unlock := s.locks.Lock(membershipID.Hex())
	defer unlock()

	m, err := s.memberships.GetByID(ctx, membershipID)
	if err != nil {
		return CheckResult{}, err
	}
	user, err := s.users.GetByID(ctx, m.UserID)
	if err != nil {
		return CheckResult{}, err
	}
	last, err := s.contributions.LatestQualifying(ctx, m.ID)
	if err != nil {
		return CheckResult{}, err
	}

	now := s.now()
	wasActive := m.IsActive
	d := Evaluate(m, last, now)

	changed := d.Action != ActionNone
	if d.ExpiresAt != nil {
		changed = changed ||
			m.GracePeriodMonthsEarned != d.MonthsEarned ||
			m.ExpiresAt == nil ||
			!m.ExpiresAt.Equal(*d.ExpiresAt)
	}

	Apply(m, d, now)

	if changed {
		if err := s.memberships.Save(ctx, m); err != nil {
			return CheckResult{}, err
		}
	}

	switch d.Action {
	case ActionEnterGrace, ActionGraceReminder:
		s.emit(ctx, "grace period update", func(ctx context.Context) error {
			return s.sink.GracePeriodUpdate(ctx, user.ID, user.Username, d.GraceMonth, d.GraceRemaining)
		})

	case ActionDeactivate:
		s.emit(ctx, "membership deactivated", func(ctx context.Context) error {
			return s.sink.MembershipDeactivated(ctx, user.ID, user.Username)
		})

		accounts, err := s.matrix.ListEnabledForMembership(ctx, m.ID)
		if err != nil {
			s.log.Error("listing matrix accounts failed",
				zap.String("membership_id", m.ID.Hex()),
				zap.Error(err))
			break
		}
		for _, account := range accounts {
			username := account.Username
			s.emit(ctx, "matrix disable required", func(ctx context.Context) error {
				return s.sink.MatrixDisableRequired(ctx, user.ID, user.Username, username)
			})
		}
	}

	return CheckResult{
		UserID:                     user.ID,
		Username:                   user.Username,
		WasActive:                  wasActive,
		IsNowActive:                m.IsActive,
		EnteredGracePeriod:         d.Action == ActionEnterGrace,
		WasDeactivated:             d.Action == ActionDeactivate,
		GracePeriodMonth:           m.GracePeriodMonthsUsed,
		GracePeriodMonthsRemaining: m.GracePeriodMonthsEarned - m.GracePeriodMonthsUsed,
	}, nil
}

// emit runs a sink call and logs instead of failing: membership state is
// already persisted by the time notifications go out.
func (s *Service) emit(ctx context.Context, what string, fn func(context.Context) error) {
	if err := fn(ctx); err != nil {
		s.log.Error("notification emit failed", zap.String("event", what), zap.Error(err))
	}
}
