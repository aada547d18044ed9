// internal/app/system/lifecycle/lifecycle.go

// Package lifecycle derives a membership's activation, grace, and expiry
// state from its qualifying contribution history. The decision core
// (Evaluate) is pure; the Service applies decisions through the stores and
// emits notifications.
package lifecycle

import (
	"time"

	"github.com/mkn8rn/mk8.identity/internal/domain/models"
)

const (
	baseGraceMonths = 1
	maxGraceMonths  = 24
)

// Day-count approximations, kept as-is because the notification cadence
// depends on their exact thresholds. Not calendar-aware.
const (
	daysPerYear  = 365.25
	daysPerMonth = 30
)

// Action is the state transition a recomputation calls for.
type Action int

const (
	ActionNone Action = iota
	ActionActivate
	ActionEnterGrace
	ActionGraceReminder
	ActionDeactivate
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionActivate:
		return "activate"
	case ActionEnterGrace:
		return "enter_grace"
	case ActionGraceReminder:
		return "grace_reminder"
	case ActionDeactivate:
		return "deactivate"
	default:
		return "unknown"
	}
}

// Decision is the outcome of evaluating one membership at one instant.
// MonthsEarned and ExpiresAt are always recomputed when qualifying history
// exists, even when no transition fires.
type Decision struct {
	Action       Action
	MonthsEarned int
	ExpiresAt    *time.Time

	// Set for EnterGrace and GraceReminder: which grace month the member
	// has started and how many remain after it.
	GraceMonth     int
	GraceRemaining int
}

// addMonths advances t by whole calendar months, clamping the day to the
// last day of the target month. Go's AddDate normalizes overflow instead
// (Mar 31 + 1 month = May 1), which would push every month-end expiry past
// the boundary; expiry arithmetic needs Mar 31 + 1 month = Apr 30.
func addMonths(t time.Time, months int) time.Time {
	y, mo, d := t.Date()
	hh, mm, ss := t.Clock()
	mo += time.Month(months)
	if last := time.Date(y, mo+1, 0, 0, 0, 0, 0, t.Location()).Day(); d > last {
		d = last
	}
	return time.Date(y, mo, d, hh, mm, ss, t.Nanosecond(), t.Location())
}

// YearsAsMember is the whole number of 365.25-day years since the
// membership started.
func YearsAsMember(start, now time.Time) int {
	return int(now.Sub(start).Hours() / 24 / daysPerYear)
}

// GraceMonthsEarned is one month plus one per year of membership, capped
// at 24.
func GraceMonthsEarned(start, now time.Time) int {
	earned := YearsAsMember(start, now) + baseGraceMonths
	if earned > maxGraceMonths {
		earned = maxGraceMonths
	}
	return earned
}

// Evaluate computes the transition for one membership given its latest
// qualifying contribution (nil when none exists). It never mutates its
// inputs; callers apply the decision.
//
// Repeated evaluation with identical inputs yields ActionNone after the
// first application, which is what makes the daily check idempotent.
func Evaluate(m *models.Membership, last *models.Contribution, now time.Time) Decision {
	if last == nil {
		if m.IsActive {
			return Decision{Action: ActionDeactivate}
		}
		return Decision{}
	}

	baseExpiry := addMonths(last.PeriodEnd, 1)
	earned := GraceMonthsEarned(m.StartDate, now)
	finalExpiry := addMonths(baseExpiry, earned)

	d := Decision{MonthsEarned: earned, ExpiresAt: &finalExpiry}

	switch {
	case !now.After(baseExpiry):
		// Good standing.
		if !m.IsActive {
			d.Action = ActionActivate
		}

	case !now.After(finalExpiry):
		// Grace window. An inactive member stays inactive here: grace is a
		// sub-state of active, and only good standing reactivates.
		if !m.IsActive {
			break
		}
		if !m.IsInGracePeriod {
			d.Action = ActionEnterGrace
			d.GraceMonth = 1
			d.GraceRemaining = earned - 1
			break
		}
		monthsInGrace := int(now.Sub(*m.GracePeriodStartedAt).Hours() / 24 / daysPerMonth)
		if monthsInGrace > m.GracePeriodMonthsUsed {
			d.Action = ActionGraceReminder
			d.GraceMonth = monthsInGrace
			d.GraceRemaining = earned - monthsInGrace
		}

	default:
		if m.IsActive {
			d.Action = ActionDeactivate
		}
	}

	return d
}

// Apply mutates the membership per the decision. Notification emission and
// persistence are the Service's job.
func Apply(m *models.Membership, d Decision, now time.Time) {
	if d.ExpiresAt != nil {
		m.GracePeriodMonthsEarned = d.MonthsEarned
		m.ExpiresAt = d.ExpiresAt
	}

	switch d.Action {
	case ActionActivate:
		m.IsActive = true
		m.ActivationDates = append(m.ActivationDates, now)
		m.IsInGracePeriod = false
		m.GracePeriodStartedAt = nil
		m.GracePeriodMonthsUsed = 0

	case ActionEnterGrace:
		m.IsInGracePeriod = true
		started := now
		m.GracePeriodStartedAt = &started
		m.GracePeriodMonthsUsed = 1

	case ActionGraceReminder:
		m.GracePeriodMonthsUsed = d.GraceMonth

	case ActionDeactivate:
		m.IsActive = false
		m.IsInGracePeriod = false
		m.DeactivationDates = append(m.DeactivationDates, now)
	}
}
