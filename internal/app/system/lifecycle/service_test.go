// internal/app/system/lifecycle/service_test.go
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	membershipstore "github.com/mkn8rn/mk8.identity/internal/app/store/memberships"
	userstore "github.com/mkn8rn/mk8.identity/internal/app/store/users"
	"github.com/mkn8rn/mk8.identity/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type fakeMemberships struct {
	byID  map[primitive.ObjectID]*models.Membership
	saves int
}

func newFakeMemberships(ms ...*models.Membership) *fakeMemberships {
	f := &fakeMemberships{byID: map[primitive.ObjectID]*models.Membership{}}
	for _, m := range ms {
		f.byID[m.ID] = m
	}
	return f
}

func (f *fakeMemberships) GetByID(_ context.Context, id primitive.ObjectID) (*models.Membership, error) {
	m, ok := f.byID[id]
	if !ok {
		return nil, membershipstore.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (f *fakeMemberships) GetByUserID(_ context.Context, userID primitive.ObjectID) (*models.Membership, error) {
	for _, m := range f.byID {
		if m.UserID == userID {
			cp := *m
			return &cp, nil
		}
	}
	return nil, membershipstore.ErrNotFound
}

func (f *fakeMemberships) Save(_ context.Context, m *models.Membership) error {
	if _, ok := f.byID[m.ID]; !ok {
		return membershipstore.ErrNotFound
	}
	cp := *m
	f.byID[m.ID] = &cp
	f.saves++
	return nil
}

func (f *fakeMemberships) List(_ context.Context) ([]models.Membership, error) {
	out := make([]models.Membership, 0, len(f.byID))
	for _, m := range f.byID {
		out = append(out, *m)
	}
	return out, nil
}

type fakeContributions struct {
	latest map[primitive.ObjectID]*models.Contribution
}

func (f *fakeContributions) LatestQualifying(_ context.Context, membershipID primitive.ObjectID) (*models.Contribution, error) {
	return f.latest[membershipID], nil
}

type fakeUsers struct {
	byID map[primitive.ObjectID]*models.User
}

func (f *fakeUsers) GetByID(_ context.Context, id primitive.ObjectID) (*models.User, error) {
	u, ok := f.byID[id]
	if !ok {
		return nil, userstore.ErrNotFound
	}
	return u, nil
}

type fakeMatrix struct {
	enabled map[primitive.ObjectID][]models.MatrixAccount
}

func (f *fakeMatrix) ListEnabledForMembership(_ context.Context, membershipID primitive.ObjectID) ([]models.MatrixAccount, error) {
	return f.enabled[membershipID], nil
}

type sinkEvent struct {
	kind     string
	username string
	month    int
	left     int
	matrix   string
}

type fakeSink struct {
	events []sinkEvent
}

func (f *fakeSink) GracePeriodUpdate(_ context.Context, _ primitive.ObjectID, username string, month, left int) error {
	f.events = append(f.events, sinkEvent{kind: "grace", username: username, month: month, left: left})
	return nil
}

func (f *fakeSink) MembershipDeactivated(_ context.Context, _ primitive.ObjectID, username string) error {
	f.events = append(f.events, sinkEvent{kind: "deactivated", username: username})
	return nil
}

func (f *fakeSink) MatrixDisableRequired(_ context.Context, _ primitive.ObjectID, username, matrixUsername string) error {
	f.events = append(f.events, sinkEvent{kind: "matrix_disable", username: username, matrix: matrixUsername})
	return nil
}

type fixture struct {
	svc           *Service
	memberships   *fakeMemberships
	contributions *fakeContributions
	users         *fakeUsers
	matrix        *fakeMatrix
	sink          *fakeSink
}

func newFixture(now time.Time, ms ...*models.Membership) *fixture {
	f := &fixture{
		memberships:   newFakeMemberships(ms...),
		contributions: &fakeContributions{latest: map[primitive.ObjectID]*models.Contribution{}},
		users:         &fakeUsers{byID: map[primitive.ObjectID]*models.User{}},
		matrix:        &fakeMatrix{enabled: map[primitive.ObjectID][]models.MatrixAccount{}},
		sink:          &fakeSink{},
	}
	f.svc = NewService(f.memberships, f.contributions, f.users, f.matrix, f.sink, zap.NewNop())
	f.svc.now = func() time.Time { return now }
	return f
}

func (f *fixture) addUser(username string) *models.User {
	u := &models.User{ID: primitive.NewObjectID(), Username: username}
	f.users.byID[u.ID] = u
	return u
}

func member(userID primitive.ObjectID, start time.Time, active bool) *models.Membership {
	return &models.Membership{
		ID:                primitive.NewObjectID(),
		UserID:            userID,
		IsActive:          active,
		StartDate:         start,
		ActivationDates:   []time.Time{},
		DeactivationDates: []time.Time{},
	}
}

func TestServiceActivateDeactivate(t *testing.T) {
	now := mustParse(t, "2024-05-15T00:00:00Z")
	f := newFixture(now)
	u := f.addUser("rainer")
	m := member(u.ID, now.AddDate(-1, 0, 0), false)
	f.memberships.byID[m.ID] = m

	ctx := context.Background()

	if err := f.svc.Activate(ctx, u.ID); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if err := f.svc.Activate(ctx, u.ID); !errors.Is(err, ErrAlreadyActive) {
		t.Fatalf("second activate: got %v, want ErrAlreadyActive", err)
	}

	got, _ := f.memberships.GetByUserID(ctx, u.ID)
	if !got.IsActive || len(got.ActivationDates) != 1 {
		t.Fatalf("after activate: active=%v dates=%v", got.IsActive, got.ActivationDates)
	}

	if err := f.svc.Deactivate(ctx, u.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if err := f.svc.Deactivate(ctx, u.ID); !errors.Is(err, ErrAlreadyInactive) {
		t.Fatalf("second deactivate: got %v, want ErrAlreadyInactive", err)
	}
	if len(f.sink.events) != 1 || f.sink.events[0].kind != "deactivated" {
		t.Fatalf("sink events = %+v", f.sink.events)
	}

	if err := f.svc.Activate(ctx, primitive.NewObjectID()); !errors.Is(err, membershipstore.ErrNotFound) {
		t.Fatalf("unknown user: got %v, want ErrNotFound", err)
	}
}

func TestServiceDailyCheckIdempotent(t *testing.T) {
	now := mustParse(t, "2024-05-15T00:00:00Z")
	f := newFixture(now)
	u := f.addUser("devika")
	m := member(u.ID, mustParse(t, "2021-05-15T00:00:00Z"), true)
	f.memberships.byID[m.ID] = m
	f.contributions.latest[m.ID] = qualifying(mustParse(t, "2024-03-31T23:59:59Z"))

	ctx := context.Background()

	results, err := f.svc.RunDailyCheck(ctx)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	r := results[0]
	if !r.EnteredGracePeriod || r.GracePeriodMonth != 1 || r.GracePeriodMonthsRemaining != 3 {
		t.Fatalf("first run result = %+v", r)
	}
	if len(f.sink.events) != 1 {
		t.Fatalf("sink events after first run = %+v", f.sink.events)
	}
	if ev := f.sink.events[0]; ev.kind != "grace" || ev.month != 1 || ev.left != 3 {
		t.Fatalf("grace event = %+v", ev)
	}

	savesAfterFirst := f.memberships.saves

	// Nothing changed: a second run must do nothing at all.
	if _, err := f.svc.RunDailyCheck(ctx); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if f.memberships.saves != savesAfterFirst {
		t.Fatalf("second run saved %d more times", f.memberships.saves-savesAfterFirst)
	}
	if len(f.sink.events) != 1 {
		t.Fatalf("second run emitted: %+v", f.sink.events[1:])
	}
}

func TestServiceDeactivationEmitsMatrixDisable(t *testing.T) {
	now := mustParse(t, "2024-09-15T00:00:00Z")
	f := newFixture(now)
	u := f.addUser("matti")
	started := mustParse(t, "2024-05-15T00:00:00Z")
	m := member(u.ID, mustParse(t, "2021-05-15T00:00:00Z"), true)
	m.IsInGracePeriod = true
	m.GracePeriodStartedAt = &started
	m.GracePeriodMonthsEarned = 4
	m.GracePeriodMonthsUsed = 1
	f.memberships.byID[m.ID] = m
	f.contributions.latest[m.ID] = qualifying(mustParse(t, "2024-03-31T23:59:59Z"))
	f.matrix.enabled[m.ID] = []models.MatrixAccount{
		{ID: primitive.NewObjectID(), Username: "matti"},
		{ID: primitive.NewObjectID(), Username: "matti_work"},
	}

	res, err := f.svc.Recompute(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if !res.WasDeactivated || res.IsNowActive {
		t.Fatalf("result = %+v", res)
	}

	kinds := map[string]int{}
	for _, ev := range f.sink.events {
		kinds[ev.kind]++
	}
	if kinds["deactivated"] != 1 || kinds["matrix_disable"] != 2 {
		t.Fatalf("sink events = %+v", f.sink.events)
	}
}

func TestServiceDailyCheckIsolatesFailures(t *testing.T) {
	now := mustParse(t, "2024-05-15T00:00:00Z")
	f := newFixture(now)

	// First membership points at a user that no longer resolves; the
	// second is fine and must still be processed.
	orphan := member(primitive.NewObjectID(), now.AddDate(-1, 0, 0), false)
	f.memberships.byID[orphan.ID] = orphan

	u := f.addUser("zoe")
	m := member(u.ID, now.AddDate(0, -2, 0), false)
	f.memberships.byID[m.ID] = m
	f.contributions.latest[m.ID] = qualifying(mustParse(t, "2024-04-30T23:59:59Z"))

	results, err := f.svc.RunDailyCheck(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(results) != 1 || results[0].Username != "zoe" {
		t.Fatalf("results = %+v", results)
	}
	if !results[0].IsNowActive {
		t.Fatal("good-standing member not activated")
	}
}

func TestServiceDailyCheckHonorsCancellation(t *testing.T) {
	now := mustParse(t, "2024-05-15T00:00:00Z")
	f := newFixture(now)
	for i := 0; i < 5; i++ {
		u := f.addUser(fmt.Sprintf("user%d", i))
		m := member(u.ID, now.AddDate(-1, 0, 0), false)
		f.memberships.byID[m.ID] = m
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := f.svc.RunDailyCheck(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(results) != 0 {
		t.Fatalf("results = %d, want 0", len(results))
	}
}
