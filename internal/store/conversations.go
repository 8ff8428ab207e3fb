package store

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"libraria/internal/domain"
)

func newConversationID(t time.Time) string {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// CreateConversation starts a new conversation for userID.
func (s *Store) CreateConversation(ctx context.Context, userID, title string) (*domain.Conversation, error) {
	now := time.Now()
	conv := &domain.Conversation{
		ID:        newConversationID(now),
		UserID:    userID,
		Title:     title,
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO conversations (id, user_id, title, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		conv.ID, userID, title, formatTime(now), formatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("insert conversation: %w", err)
	}
	return conv, nil
}

// GetConversation returns the caller's conversation by id.
func (s *Store) GetConversation(ctx context.Context, userID, id string) (*domain.Conversation, error) {
	var conv domain.Conversation
	var createdAt, updatedAt string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, user_id, title, created_at, updated_at FROM conversations WHERE id = ? AND user_id = ?",
		id, userID,
	).Scan(&conv.ID, &conv.UserID, &conv.Title, &createdAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	conv.CreatedAt = parseTime(createdAt)
	conv.UpdatedAt = parseTime(updatedAt)
	return &conv, nil
}

// ListConversations returns the caller's conversations, most recently
// updated first.
func (s *Store) ListConversations(ctx context.Context, userID string) ([]domain.Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, user_id, title, created_at, updated_at FROM conversations WHERE user_id = ? ORDER BY updated_at DESC",
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var convs []domain.Conversation
	for rows.Next() {
		var conv domain.Conversation
		var createdAt, updatedAt string
		if err := rows.Scan(&conv.ID, &conv.UserID, &conv.Title, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		conv.CreatedAt = parseTime(createdAt)
		conv.UpdatedAt = parseTime(updatedAt)
		convs = append(convs, conv)
	}
	return convs, rows.Err()
}

// DeleteConversation removes the caller's conversation and its turns.
func (s *Store) DeleteConversation(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM conversations WHERE id = ? AND user_id = ?", id, userID,
	)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// AppendTurns appends turns in order to the caller's conversation,
// assigning consecutive positions after the current maximum.
func (s *Store) AppendTurns(ctx context.Context, userID, conversationID string, turns []domain.Turn) error {
	if len(turns) == 0 {
		return nil
	}
	if _, err := s.GetConversation(ctx, userID, conversationID); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var next int
	if err := tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(position), -1) + 1 FROM conversation_turns WHERE conversation_id = ?",
		conversationID,
	).Scan(&next); err != nil {
		return fmt.Errorf("next position: %w", err)
	}

	now := time.Now()
	for i, turn := range turns {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO conversation_turns (id, conversation_id, position, role, content, created_at) VALUES (?, ?, ?, ?, ?, ?)",
			uuid.NewString(), conversationID, next+i, turn.Role, turn.Content, formatTime(now),
		)
		if err != nil {
			return fmt.Errorf("insert turn: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE conversations SET updated_at = ? WHERE id = ?", formatTime(now), conversationID,
	); err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	return tx.Commit()
}

// Turns returns the caller's conversation turns ordered by position.
func (s *Store) Turns(ctx context.Context, userID, conversationID string) ([]domain.Turn, error) {
	if _, err := s.GetConversation(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, conversation_id, position, role, content, created_at FROM conversation_turns WHERE conversation_id = ? ORDER BY position",
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	defer rows.Close()

	var turns []domain.Turn
	for rows.Next() {
		var turn domain.Turn
		var createdAt string
		if err := rows.Scan(&turn.ID, &turn.ConversationID, &turn.Position, &turn.Role, &turn.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		turn.CreatedAt = parseTime(createdAt)
		turns = append(turns, turn)
	}
	return turns, rows.Err()
}
