package models

import (
	"encoding/json"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	// MaxConversationMessages caps stored history; older messages are evicted first.
	MaxConversationMessages = 50
	// ConversationTTL is how long an untouched conversation survives.
	ConversationTTL = 7 * 24 * time.Hour
)

type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

type Message struct {
	Role      MessageRole `bson:"role" json:"role"`
	Content   string      `bson:"content" json:"content"`
	Timestamp time.Time   `bson:"timestamp" json:"timestamp"`
}

// ConversationContext is the cross-turn state carried by a conversation.
// Every field is optional; the zero value means "no context".
type ConversationContext struct {
	CreatingIssue bool `bson:"creatingIssue,omitempty" json:"creatingIssue,omitempty"`
}

// IsEmpty reports whether no context field is set.
func (c ConversationContext) IsEmpty() bool {
	return c == ConversationContext{}
}

// JSON renders the context for prompt injection.
func (c ConversationContext) JSON() string {
	b, err := json.Marshal(c)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// Conversation is a user's dialogue session with the assistant.
type Conversation struct {
	ID        primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	UserID    string              `bson:"userId" json:"userId"`
	Messages  []Message           `bson:"messages" json:"messages"`
	Context   ConversationContext `bson:"context" json:"context"`
	IsActive  bool                `bson:"isActive" json:"isActive"`
	CreatedAt time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time           `bson:"updatedAt" json:"updatedAt"`
}

// NewConversation returns an empty active conversation for userID.
func NewConversation(userID string, now time.Time) *Conversation {
	return &Conversation{
		ID:        primitive.NewObjectID(),
		UserID:    userID,
		Messages:  []Message{},
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Trim drops the oldest messages until at most max remain.
func (c *Conversation) Trim(max int) {
	if max < 0 || len(c.Messages) <= max {
		return
	}
	kept := make([]Message, max)
	copy(kept, c.Messages[len(c.Messages)-max:])
	c.Messages = kept
}

// Recent returns the last n messages.
func (c *Conversation) Recent(n int) []Message {
	if len(c.Messages) <= n {
		return c.Messages
	}
	return c.Messages[len(c.Messages)-n:]
}
