package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"civicsync-api/models"

	bolt "go.etcd.io/bbolt"
)

var (
	conversationsBucket = []byte("conversations")
	activeBucket        = []byte("active")
)

// BoltConversationStore keeps conversations in a local bbolt file. Records
// are JSON encoded and keyed by conversation id; the active bucket maps a
// user id to that user's active conversation.
type BoltConversationStore struct {
	db  *bolt.DB
	now func() time.Time
}

func NewBoltConversationStore(path string) (*BoltConversationStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(conversationsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(activeBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltConversationStore{db: db, now: time.Now}, nil
}

func getConversation(tx *bolt.Tx, id []byte) (*models.Conversation, error) {
	v := tx.Bucket(conversationsBucket).Get(id)
	if v == nil {
		return nil, nil
	}
	var conv models.Conversation
	if err := json.Unmarshal(v, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

func putConversation(tx *bolt.Tx, conv *models.Conversation) error {
	data, err := json.Marshal(conv)
	if err != nil {
		return err
	}
	key := []byte(conv.ID.Hex())
	if err := tx.Bucket(conversationsBucket).Put(key, data); err != nil {
		return err
	}
	if conv.IsActive {
		return tx.Bucket(activeBucket).Put([]byte(conv.UserID), key)
	}
	active := tx.Bucket(activeBucket)
	if string(active.Get([]byte(conv.UserID))) == conv.ID.Hex() {
		return active.Delete([]byte(conv.UserID))
	}
	return nil
}

func (s *BoltConversationStore) GetOrCreateActive(_ context.Context, userID string) (*models.Conversation, error) {
	var conv *models.Conversation
	err := s.db.Update(func(tx *bolt.Tx) error {
		if id := tx.Bucket(activeBucket).Get([]byte(userID)); id != nil {
			found, err := getConversation(tx, id)
			if err != nil {
				return err
			}
			if found != nil && found.IsActive {
				conv = found
				return nil
			}
		}
		conv = models.NewConversation(userID, s.now())
		return putConversation(tx, conv)
	})
	if err != nil {
		return nil, fmt.Errorf("get or create conversation: %w", err)
	}
	return conv, nil
}

func (s *BoltConversationStore) Append(ctx context.Context, conv *models.Conversation, msg models.Message) error {
	conv.Messages = append(conv.Messages, msg)
	return s.Save(ctx, conv)
}

func (s *BoltConversationStore) Save(_ context.Context, conv *models.Conversation) error {
	conv.Trim(models.MaxConversationMessages)
	conv.UpdatedAt = s.now()
	if err := s.db.Update(func(tx *bolt.Tx) error {
		return putConversation(tx, conv)
	}); err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}
	return nil
}

func (s *BoltConversationStore) Deactivate(_ context.Context, userID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		id := tx.Bucket(activeBucket).Get([]byte(userID))
		if id == nil {
			return nil
		}
		conv, err := getConversation(tx, id)
		if err != nil {
			return err
		}
		if conv == nil {
			return tx.Bucket(activeBucket).Delete([]byte(userID))
		}
		conv.IsActive = false
		conv.UpdatedAt = s.now()
		return putConversation(tx, conv)
	})
}

func (s *BoltConversationStore) PurgeExpired(_ context.Context, cutoff time.Time) (int64, error) {
	var purged int64
	err := s.db.Update(func(tx *bolt.Tx) error {
		convs := tx.Bucket(conversationsBucket)
		active := tx.Bucket(activeBucket)

		var expired []*models.Conversation
		err := convs.ForEach(func(_, v []byte) error {
			var conv models.Conversation
			if err := json.Unmarshal(v, &conv); err != nil {
				return err
			}
			if conv.UpdatedAt.Before(cutoff) {
				expired = append(expired, &conv)
			}
			return nil
		})
		if err != nil {
			return err
		}

		// Deleting inside ForEach is not allowed, so collect first.
		for _, conv := range expired {
			key := []byte(conv.ID.Hex())
			if err := convs.Delete(key); err != nil {
				return err
			}
			if string(active.Get([]byte(conv.UserID))) == conv.ID.Hex() {
				if err := active.Delete([]byte(conv.UserID)); err != nil {
					return err
				}
			}
			purged++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("purge conversations: %w", err)
	}
	return purged, nil
}

func (s *BoltConversationStore) Close() error {
	return s.db.Close()
}
