package domain

import (
	"context"
	"time"
)

// Conversation is a persisted chat thread.
type Conversation struct {
	ID        string    `json:"id"` // ULID
	UserID    string    `json:"-"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Turn is one persisted conversation turn. Position orders turns within
// a conversation; the orchestration loop only reads and appends.
type Turn struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Position       int       `json:"position"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// ConversationStore persists conversations and their turns, scoped to
// the owning user.
type ConversationStore interface {
	CreateConversation(ctx context.Context, userID, title string) (*Conversation, error)
	GetConversation(ctx context.Context, userID, id string) (*Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]Conversation, error)
	DeleteConversation(ctx context.Context, userID, id string) error
	AppendTurns(ctx context.Context, userID, conversationID string, turns []Turn) error
	Turns(ctx context.Context, userID, conversationID string) ([]Turn, error)
}
