// internal/app/store/privileges/privilegesstore.go
package privilegesstore

import (
	"context"
	"errors"

	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/mkn8rn/mk8.identity/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// ErrNotFound is returned when no privileges record matches the lookup.
var ErrNotFound = errors.New("privileges not found")

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("privileges")}
}

// GetByID loads a privileges record by its id.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Privileges, error) {
	var p models.Privileges
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&p); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// GetByMembership loads the privileges record owned by a membership.
func (s *Store) GetByMembership(ctx context.Context, membershipID primitive.ObjectID) (*models.Privileges, error) {
	var p models.Privileges
	if err := s.c.FindOne(ctx, bson.M{"membership_id": membershipID}).Decode(&p); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// GetOrCreateByMembership loads the membership's privileges, creating the
// record (no grants) on first use. Safe under concurrent first use: the
// unique index on membership_id turns the losing insert into a re-read.
func (s *Store) GetOrCreateByMembership(ctx context.Context, membershipID primitive.ObjectID) (*models.Privileges, error) {
	p, err := s.GetByMembership(ctx, membershipID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	fresh := models.Privileges{
		ID:           primitive.NewObjectID(),
		MembershipID: membershipID,
		VotingRights: false,
	}
	if _, err := s.c.InsertOne(ctx, fresh); err != nil {
		if wafflemongo.IsDup(err) {
			return s.GetByMembership(ctx, membershipID)
		}
		return nil, err
	}
	return &fresh, nil
}

// SetVotingRights grants or revokes voting rights.
func (s *Store) SetVotingRights(ctx context.Context, membershipID primitive.ObjectID, granted bool) error {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"membership_id": membershipID},
		bson.M{"$set": bson.M{"voting_rights": granted}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
