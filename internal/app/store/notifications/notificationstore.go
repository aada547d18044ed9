// internal/app/store/notifications/notificationstore.go
package notificationstore

import (
	"context"
	"errors"
	"time"

	"github.com/mkn8rn/mk8.identity/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrNotFound is returned when no notification matches the lookup.
var ErrNotFound = errors.New("notification not found")

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("notifications")}
}

// Insert stores a new notification.
func (s *Store) Insert(ctx context.Context, n models.Notification) (models.Notification, error) {
	if n.ID.IsZero() {
		n.ID = primitive.NewObjectID()
	}
	if _, err := s.c.InsertOne(ctx, n); err != nil {
		return models.Notification{}, err
	}
	return n, nil
}

// GetByID loads a notification by id.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Notification, error) {
	var n models.Notification
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&n); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &n, nil
}

// ListForRole returns notifications visible to a viewer with the given
// role, newest first. Visibility is min_role_required <= viewer role value.
func (s *Store) ListForRole(ctx context.Context, role models.RoleType, unreadOnly bool) ([]models.Notification, error) {
	filter := bson.M{"min_role_required": bson.M{"$lte": role}}
	if unreadOnly {
		filter["is_read"] = false
	}
	return s.find(ctx, filter)
}

// ListForMembership returns notifications assigned to a specific
// membership, newest first.
func (s *Store) ListForMembership(ctx context.Context, membershipID primitive.ObjectID, unreadOnly bool) ([]models.Notification, error) {
	filter := bson.M{"assigned_to_membership_id": membershipID}
	if unreadOnly {
		filter["is_read"] = false
	}
	return s.find(ctx, filter)
}

// UnreadCountForRole returns the number of unread notifications visible to
// the role.
func (s *Store) UnreadCountForRole(ctx context.Context, role models.RoleType) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{
		"min_role_required": bson.M{"$lte": role},
		"is_read":           false,
	})
}

// MarkRead flags a notification as read.
func (s *Store) MarkRead(ctx context.Context, id primitive.ObjectID) error {
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{"is_read": true, "read_at": time.Now().UTC()},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkActionCompleted flags an action-required notification as handled.
func (s *Store) MarkActionCompleted(ctx context.Context, id primitive.ObjectID) error {
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{"is_action_completed": true, "action_completed_at": time.Now().UTC()},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkAllReadForRole marks every unread notification visible to the role as
// read. Returns the number updated.
func (s *Store) MarkAllReadForRole(ctx context.Context, role models.RoleType) (int64, error) {
	res, err := s.c.UpdateMany(ctx,
		bson.M{"min_role_required": bson.M{"$lte": role}, "is_read": false},
		bson.M{"$set": bson.M{"is_read": true, "read_at": time.Now().UTC()}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

// DeleteOlderThan purges read notifications created before the cutoff whose
// action, if any was required, has been completed. Returns the number deleted.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.c.DeleteMany(ctx, bson.M{
		"created_at": bson.M{"$lt": cutoff},
		"is_read":    true,
		"$or": []bson.M{
			{"is_action_required": false},
			{"is_action_completed": true},
		},
	})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (s *Store) find(ctx context.Context, filter bson.M) ([]models.Notification, error) {
	cur, err := s.c.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var notifications []models.Notification
	if err := cur.All(ctx, &notifications); err != nil {
		return nil, err
	}
	return notifications, nil
}
