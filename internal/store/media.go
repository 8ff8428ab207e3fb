package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"libraria/internal/domain"
)

const defaultSearchLimit = 20

const mediaColumns = `id, user_id, title, type, origin, author, release_year, rating,
	pub_status, user_status, tags, notes, cover_image_url, created_at, updated_at, completed_at`

// SearchMedia returns items matching the filter, newest-updated first,
// plus the total match count before the limit is applied.
func (s *Store) SearchMedia(ctx context.Context, userID string, filter domain.MediaFilter) ([]domain.MediaItem, int, error) {
	where, args := buildMediaWhere(userID, filter)

	var total int
	countQuery := "SELECT COUNT(*) FROM media_items WHERE " + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count media: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	query := fmt.Sprintf(
		"SELECT %s FROM media_items WHERE %s ORDER BY updated_at DESC LIMIT ?",
		mediaColumns, where,
	)
	rows, err := s.db.QueryContext(ctx, query, append(args, limit)...)
	if err != nil {
		return nil, 0, fmt.Errorf("search media: %w", err)
	}
	defer rows.Close()

	var items []domain.MediaItem
	for rows.Next() {
		item, err := scanMedia(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, *item)
	}
	return items, total, rows.Err()
}

func buildMediaWhere(userID string, filter domain.MediaFilter) (string, []any) {
	clauses := []string{"user_id = ?"}
	args := []any{userID}

	if filter.Query != "" {
		clauses = append(clauses, "title LIKE ? ESCAPE '\\'")
		args = append(args, "%"+escapeLike(filter.Query)+"%")
	}
	for col, vals := range map[string][]string{
		"type":        filter.Types,
		"origin":      filter.Origins,
		"pub_status":  filter.PubStatus,
		"user_status": filter.UserStatus,
	} {
		if len(vals) > 0 {
			clauses = append(clauses, fmt.Sprintf("%s IN (%s)", col, placeholders(len(vals))))
			args = append(args, toAnySlice(vals)...)
		}
	}
	if len(filter.Tags) > 0 {
		// Tags are stored as a JSON array of strings; an item matches
		// when any requested tag appears in it.
		sub := make([]string, len(filter.Tags))
		for i, tag := range filter.Tags {
			sub[i] = "tags LIKE ? ESCAPE '\\'"
			quoted, _ := json.Marshal(tag)
			args = append(args, "%"+escapeLike(string(quoted))+"%")
		}
		clauses = append(clauses, "("+strings.Join(sub, " OR ")+")")
	}
	if filter.RatingMin != nil {
		clauses = append(clauses, "rating >= ?")
		args = append(args, *filter.RatingMin)
	}
	if filter.RatingMax != nil {
		clauses = append(clauses, "rating <= ?")
		args = append(args, *filter.RatingMax)
	}
	return strings.Join(clauses, " AND "), args
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	return strings.ReplaceAll(s, "_", `\_`)
}

// CreateMedia inserts a new item owned by userID and returns its id.
func (s *Store) CreateMedia(ctx context.Context, userID string, item domain.MediaItem) (string, error) {
	id := uuid.NewString()
	now := time.Now()

	tags, err := json.Marshal(append([]string{}, item.Tags...))
	if err != nil {
		return "", fmt.Errorf("marshal tags: %w", err)
	}
	var completedAt any
	if item.UserStatus == "completed" {
		completedAt = formatTime(now)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO media_items
			(id, user_id, title, type, origin, author, release_year, rating,
			 pub_status, user_status, tags, notes, cover_image_url,
			 created_at, updated_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, userID, item.Title, item.Type, item.Origin, item.Author,
		item.ReleaseYear, item.Rating, item.PubStatus, item.UserStatus,
		string(tags), item.Notes, item.CoverImageURL,
		formatTime(now), formatTime(now), completedAt,
	)
	if err != nil {
		return "", fmt.Errorf("insert media: %w", err)
	}
	return id, nil
}

// UpdateMedia applies a partial update to an item owned by userID.
// Returns domain.ErrNotFound when the id does not exist or belongs to
// another user.
func (s *Store) UpdateMedia(ctx context.Context, userID, id string, patch domain.MediaPatch) error {
	sets := []string{"updated_at = ?"}
	args := []any{formatTime(time.Now())}

	add := func(col string, val any) {
		sets = append(sets, col+" = ?")
		args = append(args, val)
	}
	if patch.Title != nil {
		add("title", *patch.Title)
	}
	if patch.Type != nil {
		add("type", *patch.Type)
	}
	if patch.Origin != nil {
		add("origin", *patch.Origin)
	}
	if patch.Author != nil {
		add("author", *patch.Author)
	}
	if patch.ReleaseYear != nil {
		add("release_year", *patch.ReleaseYear)
	}
	if patch.Rating != nil {
		add("rating", *patch.Rating)
	}
	if patch.PubStatus != nil {
		add("pub_status", *patch.PubStatus)
	}
	if patch.UserStatus != nil {
		add("user_status", *patch.UserStatus)
		if *patch.UserStatus == "completed" {
			add("completed_at", formatTime(time.Now()))
		} else {
			add("completed_at", nil)
		}
	}
	if patch.Tags != nil {
		tags, err := json.Marshal(*patch.Tags)
		if err != nil {
			return fmt.Errorf("marshal tags: %w", err)
		}
		add("tags", string(tags))
	}
	if patch.Notes != nil {
		add("notes", *patch.Notes)
	}
	if patch.CoverImageURL != nil {
		add("cover_image_url", *patch.CoverImageURL)
	}

	query := fmt.Sprintf("UPDATE media_items SET %s WHERE id = ? AND user_id = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, append(args, id, userID)...)
	if err != nil {
		return fmt.Errorf("update media: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// DeleteMedia removes the caller's rows among ids and returns the count
// actually deleted. Ids that do not exist, or that belong to another
// user, are skipped without error.
func (s *Store) DeleteMedia(ctx context.Context, userID string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query := fmt.Sprintf("DELETE FROM media_items WHERE id IN (%s) AND user_id = ?", placeholders(len(ids)))
	res, err := s.db.ExecContext(ctx, query, append(toAnySlice(ids), userID)...)
	if err != nil {
		return 0, fmt.Errorf("delete media: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMedia(row rowScanner) (*domain.MediaItem, error) {
	var (
		item        domain.MediaItem
		rating      sql.NullFloat64
		tags        string
		createdAt   string
		updatedAt   string
		completedAt sql.NullString
	)
	err := row.Scan(
		&item.ID, &item.UserID, &item.Title, &item.Type, &item.Origin,
		&item.Author, &item.ReleaseYear, &rating, &item.PubStatus,
		&item.UserStatus, &tags, &item.Notes, &item.CoverImageURL,
		&createdAt, &updatedAt, &completedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scan media: %w", err)
	}
	if rating.Valid {
		item.Rating = &rating.Float64
	}
	if err := json.Unmarshal([]byte(tags), &item.Tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	item.CreatedAt = parseTime(createdAt)
	item.UpdatedAt = parseTime(updatedAt)
	if completedAt.Valid {
		t := parseTime(completedAt.String)
		item.CompletedAt = &t
	}
	return &item, nil
}
