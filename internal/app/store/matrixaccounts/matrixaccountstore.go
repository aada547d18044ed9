// internal/app/store/matrixaccounts/matrixaccountstore.go
package matrixaccountstore

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
	// ErrDuplicateUsername is returned when the Matrix username is taken.
	ErrDuplicateUsername = errors.New("matrix username already exists")

	// ErrNotFound is returned when no account matches the lookup.
	ErrNotFound = errors.New("matrix account not found")
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("matrix_accounts")}
}

// Insert stores a new account record.
func (s *Store) Insert(ctx context.Context, a models.MatrixAccount) (models.MatrixAccount, error) {
	if a.ID.IsZero() {
		a.ID = primitive.NewObjectID()
	}
	if _, err := s.c.InsertOne(ctx, a); err != nil {
		if wafflemongo.IsDup(err) {
			return models.MatrixAccount{}, ErrDuplicateUsername
		}
		return models.MatrixAccount{}, err
	}
	return a, nil
}

// GetByID loads an account by id.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (*models.MatrixAccount, error) {
	var a models.MatrixAccount
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&a); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// GetByUsername loads an account by its Matrix username.
func (s *Store) GetByUsername(ctx context.Context, username string) (*models.MatrixAccount, error) {
	var a models.MatrixAccount
	if err := s.c.FindOne(ctx, bson.M{"username": username}).Decode(&a); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// ListAll returns every account, newest first.
func (s *Store) ListAll(ctx context.Context) ([]models.MatrixAccount, error) {
	return s.find(ctx, bson.M{})
}

// ListByPrivileges returns the accounts owned through a privileges record.
func (s *Store) ListByPrivileges(ctx context.Context, privilegesID primitive.ObjectID) ([]models.MatrixAccount, error) {
	return s.find(ctx, bson.M{"privileges_id": privilegesID})
}

// ListEnabledByPrivileges returns the owner's accounts that are not
// disabled; deactivation flags each of these for manual disablement.
func (s *Store) ListEnabledByPrivileges(ctx context.Context, privilegesID primitive.ObjectID) ([]models.MatrixAccount, error) {
	return s.find(ctx, bson.M{"privileges_id": privilegesID, "is_disabled": false})
}

// Disable marks an account disabled and records who did it.
func (s *Store) Disable(ctx context.Context, id, adminMembershipID primitive.ObjectID) error {
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{
			"is_disabled":               true,
			"disabled_at":               time.Now().UTC(),
			"disabled_by_membership_id": adminMembershipID,
		},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Enable clears the disabled state.
func (s *Store) Enable(ctx context.Context, id primitive.ObjectID) error {
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set":   bson.M{"is_disabled": false},
		"$unset": bson.M{"disabled_at": "", "disabled_by_membership_id": ""},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) find(ctx context.Context, filter bson.M) ([]models.MatrixAccount, error) {
	cur, err := s.c.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var accounts []models.MatrixAccount
	if err := cur.All(ctx, &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}
