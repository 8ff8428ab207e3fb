package tool

import (
	"context"
	"encoding/json"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"libraria/internal/domain"
	"libraria/internal/infra/tracer"
)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 50
)

// LibraryTools returns the media CRUD tool group bound to store.
func LibraryTools(store domain.LibraryStore, logger *slog.Logger) []domain.Tool {
	return []domain.Tool{
		&SearchMediaTool{store: store, logger: logger},
		&CreateMediaTool{store: store, logger: logger},
		&UpdateMediaTool{store: store, logger: logger},
		&DeleteMediaTool{store: store, logger: logger},
	}
}

// notAuthenticated is the structured result data-touching tools return
// when the context carries no caller identity. The loop keeps running
// and the model can surface the condition to the user.
func notAuthenticated() (*domain.ToolResult, error) {
	return ErrResult("not authenticated")
}

// --- search_media ---

// SearchMediaTool searches and filters the caller's library.
type SearchMediaTool struct {
	store  domain.LibraryStore
	logger *slog.Logger
}

func (t *SearchMediaTool) Name() string { return "search_media" }

func (t *SearchMediaTool) Description() string {
	return "Search and filter media items in the user's library"
}

func (t *SearchMediaTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {"type": "string", "description": "Search query for title"},
				"type": {"type": "array", "items": {"type": "string", "enum": ["movie", "book", "comic", "game", "music"]}},
				"origin": {"type": "array", "items": {"type": "string", "enum": ["vn", "cn", "jp", "kr", "us", "uk", "eu", "other"]}},
				"pub_status": {"type": "array", "items": {"type": "string", "enum": ["planning", "ongoing", "completed", "dropped"]}},
				"user_status": {"type": "array", "items": {"type": "string", "enum": ["planning", "ongoing", "completed", "dropped"]}},
				"tags": {"type": "array", "items": {"type": "string"}},
				"rating_min": {"type": "number", "minimum": 0, "maximum": 10},
				"rating_max": {"type": "number", "minimum": 0, "maximum": 10},
				"limit": {"type": "integer", "minimum": 1, "maximum": 50, "description": "Max results (default 20)"}
			}
		}`),
	}
}

type searchMediaResult struct {
	Items []domain.MediaItem `json:"items"`
	Total int                `json:"total"`
}

func (t *SearchMediaTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.search_media", t.logger, params,
		func(ctx context.Context, span trace.Span, p domain.MediaFilter) (any, error) {
			userID := domain.UserIDFromContext(ctx)
			if userID == "" {
				return notAuthenticated()
			}

			p.Limit = clampLimit(p.Limit, defaultSearchLimit, maxSearchLimit)

			items, total, err := t.store.SearchMedia(ctx, userID, p)
			if err != nil {
				return nil, err
			}
			if items == nil {
				items = []domain.MediaItem{}
			}

			span.SetAttributes(tracer.IntAttr("tool.results", total))
			return searchMediaResult{Items: items, Total: total}, nil
		})
}

// --- create_media ---

// CreateMediaTool adds one media item to the caller's library.
type CreateMediaTool struct {
	store  domain.LibraryStore
	logger *slog.Logger
}

func (t *CreateMediaTool) Name() string { return "create_media" }

func (t *CreateMediaTool) Description() string {
	return "Add a new media item to the library"
}

func (t *CreateMediaTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"title": {"type": "string", "description": "Title of the media"},
				"type": {"type": "string", "enum": ["movie", "book", "comic", "game", "music"]},
				"origin": {"type": "string", "enum": ["vn", "cn", "jp", "kr", "us", "uk", "eu", "other"]},
				"author": {"type": "string"},
				"release_year": {"type": "integer"},
				"rating": {"type": "number", "minimum": 0, "maximum": 10},
				"pub_status": {"type": "string", "enum": ["planning", "ongoing", "completed", "dropped"]},
				"user_status": {"type": "string", "enum": ["planning", "ongoing", "completed", "dropped"]},
				"tags": {"type": "array", "items": {"type": "string"}},
				"cover_image_url": {"type": "string"},
				"notes": {"type": "string"}
			},
			"required": ["title", "type"]
		}`),
	}
}

type createMediaParams struct {
	Title         string   `json:"title"`
	Type          string   `json:"type"`
	Origin        string   `json:"origin,omitempty"`
	Author        string   `json:"author,omitempty"`
	ReleaseYear   int      `json:"release_year,omitempty"`
	Rating        *float64 `json:"rating,omitempty"`
	PubStatus     string   `json:"pub_status,omitempty"`
	UserStatus    string   `json:"user_status,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	CoverImageURL string   `json:"cover_image_url,omitempty"`
	Notes         string   `json:"notes,omitempty"`
}

type createResult struct {
	ID      string `json:"id"`
	Created bool   `json:"created"`
}

func (t *CreateMediaTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.create_media", t.logger, params,
		func(ctx context.Context, span trace.Span, p createMediaParams) (any, error) {
			userID := domain.UserIDFromContext(ctx)
			if userID == "" {
				return notAuthenticated()
			}

			if err := ValidateAll(
				RequireField("title", p.Title),
				RequireField("type", p.Type),
				ValidateEnum("type", p.Type, domain.MediaTypes),
				ValidateEnum("origin", p.Origin, domain.MediaOrigins),
				ValidateEnum("pub_status", p.PubStatus, domain.Statuses),
				ValidateEnum("user_status", p.UserStatus, domain.Statuses),
				ValidateRating("rating", p.Rating),
			); err != nil {
				return ErrResult("%v", err)
			}

			id, err := t.store.CreateMedia(ctx, userID, domain.MediaItem{
				Title:         p.Title,
				Type:          p.Type,
				Origin:        p.Origin,
				Author:        p.Author,
				ReleaseYear:   p.ReleaseYear,
				Rating:        p.Rating,
				PubStatus:     p.PubStatus,
				UserStatus:    p.UserStatus,
				Tags:          p.Tags,
				CoverImageURL: p.CoverImageURL,
				Notes:         p.Notes,
			})
			if err != nil {
				return nil, err
			}

			span.SetAttributes(tracer.StringAttr("tool.media_id", id))
			return createResult{ID: id, Created: true}, nil
		})
}

// --- update_media ---

// UpdateMediaTool applies a partial update to one media item.
type UpdateMediaTool struct {
	store  domain.LibraryStore
	logger *slog.Logger
}

func (t *UpdateMediaTool) Name() string { return "update_media" }

func (t *UpdateMediaTool) Description() string {
	return "Update an existing media item (partial update)"
}

func (t *UpdateMediaTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"id": {"type": "string", "description": "Media item ID"},
				"title": {"type": "string"},
				"type": {"type": "string", "enum": ["movie", "book", "comic", "game", "music"]},
				"origin": {"type": "string", "enum": ["vn", "cn", "jp", "kr", "us", "uk", "eu", "other"]},
				"author": {"type": "string"},
				"release_year": {"type": "integer"},
				"rating": {"type": "number", "minimum": 0, "maximum": 10},
				"pub_status": {"type": "string", "enum": ["planning", "ongoing", "completed", "dropped"]},
				"user_status": {"type": "string", "enum": ["planning", "ongoing", "completed", "dropped"]},
				"tags": {"type": "array", "items": {"type": "string"}},
				"cover_image_url": {"type": "string"},
				"notes": {"type": "string"}
			},
			"required": ["id"]
		}`),
	}
}

type updateMediaParams struct {
	ID string `json:"id"`
	domain.MediaPatch
}

type updateResult struct {
	ID      string `json:"id"`
	Updated bool   `json:"updated"`
}

func (t *UpdateMediaTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.update_media", t.logger, params,
		func(ctx context.Context, span trace.Span, p updateMediaParams) (any, error) {
			userID := domain.UserIDFromContext(ctx)
			if userID == "" {
				return notAuthenticated()
			}

			if err := ValidateAll(
				RequireField("id", p.ID),
				ValidateEnum("type", deref(p.Type), domain.MediaTypes),
				ValidateEnum("origin", deref(p.Origin), domain.MediaOrigins),
				ValidateEnum("pub_status", deref(p.PubStatus), domain.Statuses),
				ValidateEnum("user_status", deref(p.UserStatus), domain.Statuses),
				ValidateRating("rating", p.Rating),
			); err != nil {
				return ErrResult("%v", err)
			}

			span.SetAttributes(tracer.StringAttr("tool.media_id", p.ID))

			if err := t.store.UpdateMedia(ctx, userID, p.ID, p.MediaPatch); err != nil {
				if domain.ErrorCodeOf(err) == domain.CodeNotFound {
					return ErrResult("media item %q not found", p.ID)
				}
				return nil, err
			}
			return updateResult{ID: p.ID, Updated: true}, nil
		})
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// --- delete_media ---

// DeleteMediaTool deletes one or more media items. Ids not owned by the
// caller (or already deleted) are skipped; the count reflects rows
// actually removed.
type DeleteMediaTool struct {
	store  domain.LibraryStore
	logger *slog.Logger
}

func (t *DeleteMediaTool) Name() string { return "delete_media" }

func (t *DeleteMediaTool) Description() string {
	return "Delete one or more media items"
}

func (t *DeleteMediaTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"ids": {"type": "array", "items": {"type": "string"}, "description": "Array of media item IDs to delete"}
			},
			"required": ["ids"]
		}`),
	}
}

type deleteParams struct {
	IDs []string `json:"ids"`
}

type deleteResult struct {
	DeletedCount int `json:"deleted_count"`
}

func (t *DeleteMediaTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.delete_media", t.logger, params,
		func(ctx context.Context, span trace.Span, p deleteParams) (any, error) {
			userID := domain.UserIDFromContext(ctx)
			if userID == "" {
				return notAuthenticated()
			}
			if len(p.IDs) == 0 {
				return ErrResult("'ids' is required")
			}

			count, err := t.store.DeleteMedia(ctx, userID, p.IDs)
			if err != nil {
				return nil, err
			}

			span.SetAttributes(tracer.IntAttr("tool.deleted", count))
			return deleteResult{DeletedCount: count}, nil
		})
}
