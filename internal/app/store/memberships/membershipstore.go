// internal/app/store/memberships/membershipstore.go
package membershipstore

import (
	"context"
	"errors"
	"time"

	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/mkn8rn/mk8.identity/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

var (
	// ErrDuplicateMembership is returned when a user already has a
	// membership record (1:1, unique index on user_id).
	ErrDuplicateMembership = errors.New("user already has a membership")

	// ErrNotFound is returned when no membership matches the lookup.
	ErrNotFound = errors.New("membership not found")
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("memberships")}
}

// Create inserts the initial inactive membership for a user. StartDate is
// fixed here and never changes afterwards.
func (s *Store) Create(ctx context.Context, userID primitive.ObjectID) (models.Membership, error) {
	now := time.Now().UTC()
	m := models.Membership{
		ID:                primitive.NewObjectID(),
		UserID:            userID,
		IsActive:          false,
		StartDate:         now,
		ActivationDates:   []time.Time{},
		DeactivationDates: []time.Time{},
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if _, err := s.c.InsertOne(ctx, m); err != nil {
		if wafflemongo.IsDup(err) {
			return models.Membership{}, ErrDuplicateMembership
		}
		return models.Membership{}, err
	}
	return m, nil
}

// GetByID loads a membership by its own id.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Membership, error) {
	var m models.Membership
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&m); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

// GetByUserID loads the membership owned by a user.
func (s *Store) GetByUserID(ctx context.Context, userID primitive.ObjectID) (*models.Membership, error) {
	var m models.Membership
	if err := s.c.FindOne(ctx, bson.M{"user_id": userID}).Decode(&m); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

// Save replaces the whole membership document. The lifecycle service loads,
// mutates, and saves under a per-membership lock; partial updates would
// invite drift between the grace fields.
func (s *Store) Save(ctx context.Context, m *models.Membership) error {
	m.UpdatedAt = time.Now().UTC()
	res, err := s.c.ReplaceOne(ctx, bson.M{"_id": m.ID}, m)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns every membership. The daily check iterates this.
func (s *Store) List(ctx context.Context) ([]models.Membership, error) {
	return s.find(ctx, bson.M{})
}

// ListActive returns memberships with is_active set.
func (s *Store) ListActive(ctx context.Context) ([]models.Membership, error) {
	return s.find(ctx, bson.M{"is_active": true})
}

// ListInactive returns memberships with is_active unset.
func (s *Store) ListInactive(ctx context.Context) ([]models.Membership, error) {
	return s.find(ctx, bson.M{"is_active": false})
}

// ListInGracePeriod returns memberships currently in their grace period.
func (s *Store) ListInGracePeriod(ctx context.Context) ([]models.Membership, error) {
	return s.find(ctx, bson.M{"is_in_grace_period": true})
}

// ListExpiringBefore returns active memberships whose computed expiry falls
// on or before the cutoff.
func (s *Store) ListExpiringBefore(ctx context.Context, cutoff time.Time) ([]models.Membership, error) {
	return s.find(ctx, bson.M{
		"is_active":  true,
		"expires_at": bson.M{"$ne": nil, "$lte": cutoff},
	})
}

func (s *Store) find(ctx context.Context, filter bson.M) ([]models.Membership, error) {
	cur, err := s.c.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var memberships []models.Membership
	if err := cur.All(ctx, &memberships); err != nil {
		return nil, err
	}
	return memberships, nil
}
