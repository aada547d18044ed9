// internal/app/store/contributions/contributionstore.go
package contributionstore

import (
	"context"
	"errors"
	"time"

	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/mkn8rn/mk8.identity/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	// ErrDuplicateContribution is returned when an entry already exists for
	// the same (membership, month, year, type) tuple.
	ErrDuplicateContribution = errors.New("contribution for this period and type already exists")

	// ErrNotFound is returned when no contribution matches the lookup.
	ErrNotFound = errors.New("contribution not found")
)

// ListFilter narrows ListAll. Nil fields are ignored.
type ListFilter struct {
	Month  *int
	Year   *int
	Status *models.ContributionStatus
}

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("contributions")}
}

// Insert stores a new contribution. The unique index on
// (membership_id, month, year, type) backs the one-per-period invariant.
func (s *Store) Insert(ctx context.Context, c models.Contribution) (models.Contribution, error) {
	if c.ID.IsZero() {
		c.ID = primitive.NewObjectID()
	}
	if _, err := s.c.InsertOne(ctx, c); err != nil {
		if wafflemongo.IsDup(err) {
			return models.Contribution{}, ErrDuplicateContribution
		}
		return models.Contribution{}, err
	}
	return c, nil
}

// GetByID loads a contribution by id.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Contribution, error) {
	var c models.Contribution
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&c); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// Exists reports whether an entry exists for the tuple.
func (s *Store) Exists(ctx context.Context, membershipID primitive.ObjectID, month, year int, typ models.ContributionType) (bool, error) {
	err := s.c.FindOne(ctx, bson.M{
		"membership_id": membershipID,
		"month":         month,
		"year":          year,
		"type":          typ,
	}).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// SetValidation records the one-time Pending -> Validated|Rejected
// transition. The filter requires Pending so a decided entry is never
// overwritten; no match on a live id means it was already decided.
func (s *Store) SetValidation(ctx context.Context, id primitive.ObjectID, status models.ContributionStatus, validatorMembershipID primitive.ObjectID, at time.Time, notes string) (*models.Contribution, error) {
	set := bson.M{
		"status":                     status,
		"validated_by_membership_id": validatorMembershipID,
		"validated_at":               at,
	}
	if notes != "" {
		set["validation_notes"] = notes
	}
	after := options.After
	res := s.c.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": models.StatusPending},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(after),
	)
	var c models.Contribution
	if err := res.Decode(&c); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// LatestQualifying returns the Validated/AutoVerified contribution with the
// greatest period end, or nil when the membership has none. This is the
// single input the expiry computation needs.
func (s *Store) LatestQualifying(ctx context.Context, membershipID primitive.ObjectID) (*models.Contribution, error) {
	var c models.Contribution
	err := s.c.FindOne(ctx,
		bson.M{
			"membership_id": membershipID,
			"status":        bson.M{"$in": []models.ContributionStatus{models.StatusValidated, models.StatusAutoVerified}},
		},
		options.FindOne().SetSort(bson.D{{Key: "period_end", Value: -1}}),
	).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListByMembership returns a member's history, newest period first.
func (s *Store) ListByMembership(ctx context.Context, membershipID primitive.ObjectID) ([]models.Contribution, error) {
	return s.find(ctx, bson.M{"membership_id": membershipID},
		bson.D{{Key: "year", Value: -1}, {Key: "month", Value: -1}})
}

// ListPending returns all Pending entries, oldest submission first, the
// order assessors work the queue in.
func (s *Store) ListPending(ctx context.Context) ([]models.Contribution, error) {
	return s.find(ctx, bson.M{"status": models.StatusPending},
		bson.D{{Key: "submitted_at", Value: 1}})
}

// ListByMonth returns all entries for a calendar month, newest submission first.
func (s *Store) ListByMonth(ctx context.Context, month, year int) ([]models.Contribution, error) {
	return s.find(ctx, bson.M{"month": month, "year": year},
		bson.D{{Key: "submitted_at", Value: -1}})
}

// ListAll returns entries matching the filter, ordered year desc, month
// desc, submission desc.
func (s *Store) ListAll(ctx context.Context, f ListFilter) ([]models.Contribution, error) {
	filter := bson.M{}
	if f.Month != nil {
		filter["month"] = *f.Month
	}
	if f.Year != nil {
		filter["year"] = *f.Year
	}
	if f.Status != nil {
		filter["status"] = *f.Status
	}
	return s.find(ctx, filter,
		bson.D{{Key: "year", Value: -1}, {Key: "month", Value: -1}, {Key: "submitted_at", Value: -1}})
}

// MembershipIDsWithRoleBasedEntries returns the distinct memberships that
// hold a role-based entry for the month; the auto-assignment recomputes
// each exactly once.
func (s *Store) MembershipIDsWithRoleBasedEntries(ctx context.Context, month, year int) ([]primitive.ObjectID, error) {
	roleTypes := []models.ContributionType{
		models.ContributionAdministrator,
		models.ContributionCommunityModeration,
		models.ContributionCommunitySupport,
	}
	raw, err := s.c.Distinct(ctx, "membership_id", bson.M{
		"month": month,
		"year":  year,
		"type":  bson.M{"$in": roleTypes},
	})
	if err != nil {
		return nil, err
	}
	ids := make([]primitive.ObjectID, 0, len(raw))
	for _, v := range raw {
		if id, ok := v.(primitive.ObjectID); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *Store) find(ctx context.Context, filter bson.M, sort bson.D) ([]models.Contribution, error) {
	cur, err := s.c.Find(ctx, filter, options.Find().SetSort(sort))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var contributions []models.Contribution
	if err := cur.All(ctx, &contributions); err != nil {
		return nil, err
	}
	return contributions, nil
}
