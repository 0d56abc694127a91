package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"civicsync-api/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoConversationStore keeps conversations in MongoDB. Expiry is enforced
// by a TTL index on updatedAt as well as by PurgeExpired.
type MongoConversationStore struct {
	conversations *mongo.Collection
	timeout       time.Duration
	now           func() time.Time
}

func NewMongoConversationStore(db *mongo.Database) *MongoConversationStore {
	return &MongoConversationStore{
		conversations: db.Collection("conversations"),
		timeout:       defaultTimeout,
		now:           time.Now,
	}
}

func (s *MongoConversationStore) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.conversations.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "isActive", Value: 1}, {Key: "updatedAt", Value: -1}}},
		{
			Keys:    bson.D{{Key: "updatedAt", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(models.ConversationTTL / time.Second)),
		},
	})
	if err != nil {
		return fmt.Errorf("conversation indexes: %w", err)
	}
	return nil
}

func (s *MongoConversationStore) GetOrCreateActive(ctx context.Context, userID string) (*models.Conversation, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var conv models.Conversation
	err := s.conversations.FindOne(ctx,
		bson.M{"userId": userID, "isActive": true},
		options.FindOne().SetSort(bson.D{{Key: "updatedAt", Value: -1}}),
	).Decode(&conv)
	if err == nil {
		return &conv, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("find conversation: %w", err)
	}

	created := models.NewConversation(userID, s.now())
	if _, err := s.conversations.InsertOne(ctx, created); err != nil {
		return nil, fmt.Errorf("insert conversation: %w", err)
	}
	return created, nil
}

func (s *MongoConversationStore) Append(ctx context.Context, conv *models.Conversation, msg models.Message) error {
	conv.Messages = append(conv.Messages, msg)
	return s.Save(ctx, conv)
}

func (s *MongoConversationStore) Save(ctx context.Context, conv *models.Conversation) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	conv.Trim(models.MaxConversationMessages)
	conv.UpdatedAt = s.now()

	_, err := s.conversations.ReplaceOne(ctx,
		bson.M{"_id": conv.ID},
		conv,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}
	return nil
}

func (s *MongoConversationStore) Deactivate(ctx context.Context, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.conversations.UpdateMany(ctx,
		bson.M{"userId": userID, "isActive": true},
		bson.M{"$set": bson.M{"isActive": false, "updatedAt": s.now()}},
	)
	if err != nil {
		return fmt.Errorf("deactivate conversations: %w", err)
	}
	return nil
}

func (s *MongoConversationStore) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.conversations.DeleteMany(ctx, bson.M{"updatedAt": bson.M{"$lt": cutoff}})
	if err != nil {
		return 0, fmt.Errorf("purge conversations: %w", err)
	}
	return res.DeletedCount, nil
}
