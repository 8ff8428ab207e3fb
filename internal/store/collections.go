package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"libraria/internal/domain"
)

// ListCollections returns the caller's collections with item counts,
// optionally filtered by a name substring.
func (s *Store) ListCollections(ctx context.Context, userID, query string, limit int) ([]domain.Collection, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	q := `
		SELECT c.id, c.user_id, c.name, c.color, c.created_at,
		       (SELECT COUNT(*) FROM collection_media cm WHERE cm.collection_id = c.id)
		FROM collections c
		WHERE c.user_id = ?`
	args := []any{userID}
	if query != "" {
		q += " AND c.name LIKE ? ESCAPE '\\'"
		args = append(args, "%"+escapeLike(query)+"%")
	}
	q += " ORDER BY c.created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	defer rows.Close()

	var cols []domain.Collection
	for rows.Next() {
		var c domain.Collection
		var createdAt string
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.Color, &createdAt, &c.ItemCount); err != nil {
			return nil, fmt.Errorf("scan collection: %w", err)
		}
		c.CreatedAt = parseTime(createdAt)
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// CreateCollection inserts a new collection and returns its id.
func (s *Store) CreateCollection(ctx context.Context, userID, name, color string) (string, error) {
	if color == "" {
		color = domain.DefaultCollectionColor
	}
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO collections (id, user_id, name, color, created_at) VALUES (?, ?, ?, ?, ?)",
		id, userID, name, color, formatTime(time.Now()),
	)
	if err != nil {
		return "", fmt.Errorf("insert collection: %w", err)
	}
	return id, nil
}

// AddToCollection upserts memberships for the caller's items into the
// caller's collection, keyed on (collection, item): repeating an add is
// a no-op. Items not owned by the caller are skipped. The returned
// count is the number of memberships actually inserted.
func (s *Store) AddToCollection(ctx context.Context, userID, collectionID string, itemIDs []string) (int, error) {
	if len(itemIDs) == 0 {
		return 0, nil
	}
	if err := s.ownsCollection(ctx, userID, collectionID); err != nil {
		return 0, err
	}

	// Membership rows are sourced from a SELECT over media_items so the
	// user_id filter screens out foreign ids in the same statement.
	query := fmt.Sprintf(`
		INSERT INTO collection_media (collection_id, media_item_id, added_at)
		SELECT ?, id, ? FROM media_items WHERE id IN (%s) AND user_id = ?
		ON CONFLICT (collection_id, media_item_id) DO NOTHING`,
		placeholders(len(itemIDs)),
	)
	args := append([]any{collectionID, formatTime(time.Now())}, toAnySlice(itemIDs)...)
	args = append(args, userID)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("add to collection: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// RemoveFromCollection deletes memberships from the caller's collection
// and returns the count removed.
func (s *Store) RemoveFromCollection(ctx context.Context, userID, collectionID string, itemIDs []string) (int, error) {
	if len(itemIDs) == 0 {
		return 0, nil
	}
	if err := s.ownsCollection(ctx, userID, collectionID); err != nil {
		return 0, err
	}

	query := fmt.Sprintf(
		"DELETE FROM collection_media WHERE collection_id = ? AND media_item_id IN (%s)",
		placeholders(len(itemIDs)),
	)
	res, err := s.db.ExecContext(ctx, query, append([]any{collectionID}, toAnySlice(itemIDs)...)...)
	if err != nil {
		return 0, fmt.Errorf("remove from collection: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// DeleteCollections removes the caller's collections among ids (their
// memberships cascade) and returns the count deleted.
func (s *Store) DeleteCollections(ctx context.Context, userID string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query := fmt.Sprintf("DELETE FROM collections WHERE id IN (%s) AND user_id = ?", placeholders(len(ids)))
	res, err := s.db.ExecContext(ctx, query, append(toAnySlice(ids), userID)...)
	if err != nil {
		return 0, fmt.Errorf("delete collections: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *Store) ownsCollection(ctx context.Context, userID, collectionID string) error {
	var one int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM collections WHERE id = ? AND user_id = ?", collectionID, userID,
	).Scan(&one)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.ErrNotFound
		}
		return fmt.Errorf("check collection owner: %w", err)
	}
	return nil
}
