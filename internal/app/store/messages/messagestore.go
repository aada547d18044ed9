// internal/app/store/messages/messagestore.go
package messagestore

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

// ErrNotFound is returned when no message matches the lookup.
var ErrNotFound = errors.New("message not found")

// ListFilter narrows List. Nil fields are ignored.
type ListFilter struct {
	Type   *models.MessageType
	Status *models.MessageStatus
}

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("messages")}
}

// Insert stores a new message.
func (s *Store) Insert(ctx context.Context, m models.Message) (models.Message, error) {
	if m.ID.IsZero() {
		m.ID = primitive.NewObjectID()
	}
	if _, err := s.c.InsertOne(ctx, m); err != nil {
		return models.Message{}, err
	}
	return m, nil
}

// GetByID loads a message by id.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Message, error) {
	var m models.Message
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&m); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

// List returns messages matching the filter, newest first.
func (s *Store) List(ctx context.Context, f ListFilter) ([]models.Message, error) {
	filter := bson.M{}
	if f.Type != nil {
		filter["type"] = *f.Type
	}
	if f.Status != nil {
		filter["status"] = *f.Status
	}
	return s.find(ctx, filter)
}

// ListForSender returns a member's own messages, newest first.
func (s *Store) ListForSender(ctx context.Context, membershipID primitive.ObjectID) ([]models.Message, error) {
	return s.find(ctx, bson.M{"sender_membership_id": membershipID})
}

// SetStatus records a staff status transition along with who handled it.
func (s *Store) SetStatus(ctx context.Context, id primitive.ObjectID, status models.MessageStatus, handlerMembershipID primitive.ObjectID) (*models.Message, error) {
	after := options.After
	res := s.c.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{
			"status":                   status,
			"handled_by_membership_id": handlerMembershipID,
			"handled_at":               time.Now().UTC(),
		}},
		options.FindOneAndUpdate().SetReturnDocument(after),
	)
	var m models.Message
	if err := res.Decode(&m); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

// CompleteMatrixRequest closes a Matrix account request: records the
// handler, the created account, the temporary credentials handed to the
// member, and any special instructions.
func (s *Store) CompleteMatrixRequest(ctx context.Context, id, handlerMembershipID, accountID primitive.ObjectID, tempPassword, instructions string) (*models.Message, error) {
	after := options.After
	res := s.c.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "type": models.MessageMatrixAccountRequest},
		bson.M{"$set": bson.M{
			"status":                    models.MessageCompleted,
			"handled_by_membership_id":  handlerMembershipID,
			"handled_at":                time.Now().UTC(),
			"created_matrix_account_id": accountID,
			"temporary_password":        tempPassword,
			"special_instructions":      instructions,
		}},
		options.FindOneAndUpdate().SetReturnDocument(after),
	)
	var m models.Message
	if err := res.Decode(&m); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

// PendingCount returns the number of messages awaiting staff attention.
func (s *Store) PendingCount(ctx context.Context) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{"status": models.MessagePending})
}

func (s *Store) find(ctx context.Context, filter bson.M) ([]models.Message, error) {
	cur, err := s.c.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var messages []models.Message
	if err := cur.All(ctx, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}
