// internal/app/system/lifecycle/lifecycle_test.go
package lifecycle

import (
	"testing"
	"time"

	"github.com/mkn8rn/mk8.identity/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func mustParse(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return ts
}

func qualifying(periodEnd time.Time) *models.Contribution {
	return &models.Contribution{
		ID:        primitive.NewObjectID(),
		Type:      models.ContributionExpertKnowledge,
		Status:    models.StatusValidated,
		PeriodEnd: periodEnd,
	}
}

func TestEvaluateNoQualifyingContribution(t *testing.T) {
	now := mustParse(t, "2024-05-15T12:00:00Z")

	inactive := &models.Membership{StartDate: now.AddDate(-1, 0, 0)}
	if d := Evaluate(inactive, nil, now); d.Action != ActionNone {
		t.Fatalf("inactive member with no history: got %v, want none", d.Action)
	}

	active := &models.Membership{IsActive: true, StartDate: now.AddDate(-1, 0, 0)}
	if d := Evaluate(active, nil, now); d.Action != ActionDeactivate {
		t.Fatalf("active member with no history: got %v, want deactivate", d.Action)
	}
}

func TestEvaluateActivatesInGoodStanding(t *testing.T) {
	now := mustParse(t, "2024-04-10T00:00:00Z")
	m := &models.Membership{StartDate: now.AddDate(0, -6, 0)}
	last := qualifying(mustParse(t, "2024-03-31T23:59:59Z"))

	d := Evaluate(m, last, now)
	if d.Action != ActionActivate {
		t.Fatalf("got %v, want activate", d.Action)
	}
	if d.MonthsEarned != 1 {
		t.Fatalf("months earned = %d, want 1", d.MonthsEarned)
	}

	Apply(m, d, now)
	if !m.IsActive {
		t.Fatal("not active after apply")
	}
	if len(m.ActivationDates) != 1 || !m.ActivationDates[0].Equal(now) {
		t.Fatalf("activation dates = %v", m.ActivationDates)
	}

	// Same inputs again: nothing further to do.
	if d := Evaluate(m, last, now); d.Action != ActionNone {
		t.Fatalf("second evaluation: got %v, want none", d.Action)
	}
}

func TestEvaluateGraceEntry(t *testing.T) {
	// Three years of membership earns 4 grace months. A March contribution
	// covers through end of April; mid-May is one grace month in with three
	// remaining.
	now := mustParse(t, "2024-05-15T00:00:00Z")
	m := &models.Membership{
		IsActive:  true,
		StartDate: mustParse(t, "2021-05-15T00:00:00Z"),
	}
	last := qualifying(mustParse(t, "2024-03-31T23:59:59Z"))

	d := Evaluate(m, last, now)
	if d.Action != ActionEnterGrace {
		t.Fatalf("got %v, want enter_grace", d.Action)
	}
	if d.MonthsEarned != 4 {
		t.Fatalf("months earned = %d, want 4", d.MonthsEarned)
	}
	if d.GraceMonth != 1 || d.GraceRemaining != 3 {
		t.Fatalf("notification pair = (%d, %d), want (1, 3)", d.GraceMonth, d.GraceRemaining)
	}

	Apply(m, d, now)
	if !m.IsInGracePeriod || m.GracePeriodMonthsUsed != 1 {
		t.Fatalf("after apply: inGrace=%v used=%d", m.IsInGracePeriod, m.GracePeriodMonthsUsed)
	}
	if m.GracePeriodStartedAt == nil || !m.GracePeriodStartedAt.Equal(now) {
		t.Fatalf("grace started at = %v", m.GracePeriodStartedAt)
	}

	// Entry fires once per expiry crossing.
	if d := Evaluate(m, last, now); d.Action != ActionNone {
		t.Fatalf("second evaluation: got %v, want none", d.Action)
	}
}

func TestEvaluateGraceReminder(t *testing.T) {
	now := mustParse(t, "2024-07-20T00:00:00Z")
	started := mustParse(t, "2024-05-15T00:00:00Z")
	m := &models.Membership{
		IsActive:                true,
		StartDate:               mustParse(t, "2021-05-15T00:00:00Z"),
		IsInGracePeriod:         true,
		GracePeriodStartedAt:    &started,
		GracePeriodMonthsEarned: 4,
		GracePeriodMonthsUsed:   1,
	}
	last := qualifying(mustParse(t, "2024-03-31T23:59:59Z"))

	// 66 days into grace is month 2 by 30-day arithmetic.
	d := Evaluate(m, last, now)
	if d.Action != ActionGraceReminder {
		t.Fatalf("got %v, want grace_reminder", d.Action)
	}
	if d.GraceMonth != 2 || d.GraceRemaining != 2 {
		t.Fatalf("notification pair = (%d, %d), want (2, 2)", d.GraceMonth, d.GraceRemaining)
	}

	Apply(m, d, now)
	if m.GracePeriodMonthsUsed != 2 {
		t.Fatalf("months used = %d, want 2", m.GracePeriodMonthsUsed)
	}
	if d := Evaluate(m, last, now); d.Action != ActionNone {
		t.Fatalf("same day again: got %v, want none", d.Action)
	}
}

func TestEvaluateDeactivatesPastFinalExpiry(t *testing.T) {
	now := mustParse(t, "2024-09-15T00:00:00Z")
	started := mustParse(t, "2024-05-15T00:00:00Z")
	m := &models.Membership{
		IsActive:                true,
		StartDate:               mustParse(t, "2021-05-15T00:00:00Z"),
		IsInGracePeriod:         true,
		GracePeriodStartedAt:    &started,
		GracePeriodMonthsEarned: 4,
		GracePeriodMonthsUsed:   1,
	}
	last := qualifying(mustParse(t, "2024-03-31T23:59:59Z"))

	d := Evaluate(m, last, now)
	if d.Action != ActionDeactivate {
		t.Fatalf("got %v, want deactivate", d.Action)
	}

	Apply(m, d, now)
	if m.IsActive || m.IsInGracePeriod {
		t.Fatalf("after apply: active=%v inGrace=%v", m.IsActive, m.IsInGracePeriod)
	}
	if len(m.DeactivationDates) != 1 {
		t.Fatalf("deactivation dates = %v", m.DeactivationDates)
	}
	if d := Evaluate(m, last, now); d.Action != ActionNone {
		t.Fatalf("second evaluation: got %v, want none", d.Action)
	}
}

func TestEvaluateInactiveMemberSkipsGraceWindow(t *testing.T) {
	// An admin-deactivated member inside the grace window must not enter
	// grace: grace is a sub-state of active.
	now := mustParse(t, "2024-05-15T00:00:00Z")
	m := &models.Membership{
		IsActive:  false,
		StartDate: mustParse(t, "2021-05-15T00:00:00Z"),
	}
	last := qualifying(mustParse(t, "2024-03-31T23:59:59Z"))

	d := Evaluate(m, last, now)
	if d.Action != ActionNone {
		t.Fatalf("got %v, want none", d.Action)
	}
	Apply(m, d, now)
	if m.IsInGracePeriod {
		t.Fatal("inactive member entered grace")
	}
	// Earned months and expiry are still recorded.
	if m.GracePeriodMonthsEarned != 4 || m.ExpiresAt == nil {
		t.Fatalf("earned=%d expiresAt=%v", m.GracePeriodMonthsEarned, m.ExpiresAt)
	}
}

func TestGraceMonthsEarnedCap(t *testing.T) {
	now := mustParse(t, "2024-05-15T00:00:00Z")

	cases := []struct {
		years int
		want  int
	}{
		{0, 1},
		{1, 2},
		{3, 4},
		{23, 24},
		{30, 24},
	}
	for _, tc := range cases {
		start := now.AddDate(-tc.years, 0, -tc.years/4)
		if got := GraceMonthsEarned(start, now); got != tc.want {
			t.Errorf("years=%d: earned = %d, want %d", tc.years, got, tc.want)
		}
	}
}

func TestEvaluateClampsMonthEndExpiry(t *testing.T) {
	// A January contribution covers through the end of February. The month
	// addition must clamp to the short month (Feb 29 in 2024), not
	// normalize Jan 31 + 1 month into March.
	m := &models.Membership{IsActive: true, StartDate: mustParse(t, "2023-01-01T00:00:00Z")}
	last := qualifying(mustParse(t, "2024-01-31T23:59:59Z"))

	// Exactly at the clamped base expiry: still in good standing.
	if d := Evaluate(m, last, mustParse(t, "2024-02-29T23:59:59Z")); d.Action != ActionNone {
		t.Fatalf("at base expiry: got %v, want none", d.Action)
	}

	// A second past it: grace begins.
	d := Evaluate(m, last, mustParse(t, "2024-03-01T00:00:00Z"))
	if d.Action != ActionEnterGrace {
		t.Fatalf("past base expiry: got %v, want enter_grace", d.Action)
	}

	// The clamp applies to the grace extension too: a December contribution
	// expires Jan 31, and one earned month lands on Feb 28, not Mar 3.
	fresh := &models.Membership{IsActive: true, StartDate: mustParse(t, "2024-11-01T00:00:00Z")}
	d = Evaluate(fresh, qualifying(mustParse(t, "2024-12-31T23:59:59Z")), mustParse(t, "2025-01-15T00:00:00Z"))
	if d.ExpiresAt == nil {
		t.Fatal("no expiry computed")
	}
	if want := mustParse(t, "2025-02-28T23:59:59Z"); !d.ExpiresAt.Equal(want) {
		t.Fatalf("expiresAt = %v, want %v", d.ExpiresAt, want)
	}
}

func TestEvaluateComputesExpiry(t *testing.T) {
	now := mustParse(t, "2024-04-10T00:00:00Z")
	m := &models.Membership{IsActive: true, StartDate: mustParse(t, "2021-05-15T00:00:00Z")}
	last := qualifying(mustParse(t, "2024-03-31T23:59:59Z"))

	d := Evaluate(m, last, now)
	if d.ExpiresAt == nil {
		t.Fatal("no expiry computed")
	}
	// baseExpiry 2024-04-30T23:59:59Z plus 3 earned months (two full years
	// of membership at this point, plus the base month).
	want := mustParse(t, "2024-07-30T23:59:59Z")
	if !d.ExpiresAt.Equal(want) {
		t.Fatalf("expiresAt = %v, want %v", d.ExpiresAt, want)
	}
	if d.MonthsEarned != 3 {
		t.Fatalf("months earned = %d, want 3", d.MonthsEarned)
	}
}
