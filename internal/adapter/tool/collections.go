package tool

import (
	"context"
	"encoding/json"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"libraria/internal/domain"
	"libraria/internal/infra/tracer"
)

// CollectionTools returns the collection management tool group bound to store.
func CollectionTools(store domain.CollectionStore, logger *slog.Logger) []domain.Tool {
	return []domain.Tool{
		&SearchCollectionsTool{store: store, logger: logger},
		&CreateCollectionTool{store: store, logger: logger},
		&AddToCollectionTool{store: store, logger: logger},
		&RemoveFromCollectionTool{store: store, logger: logger},
		&DeleteCollectionTool{store: store, logger: logger},
	}
}

// --- search_collections ---

// SearchCollectionsTool lists the caller's collections with item counts.
type SearchCollectionsTool struct {
	store  domain.CollectionStore
	logger *slog.Logger
}

func (t *SearchCollectionsTool) Name() string { return "search_collections" }

func (t *SearchCollectionsTool) Description() string {
	return "Search and list collections"
}

func (t *SearchCollectionsTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {"type": "string", "description": "Search by collection name"},
				"limit": {"type": "integer", "minimum": 1, "maximum": 50, "description": "Max results (default 20)"}
			}
		}`),
	}
}

type searchCollectionsParams struct {
	Query string `json:"query,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

type searchCollectionsResult struct {
	Collections []domain.Collection `json:"collections"`
}

func (t *SearchCollectionsTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.search_collections", t.logger, params,
		func(ctx context.Context, span trace.Span, p searchCollectionsParams) (any, error) {
			userID := domain.UserIDFromContext(ctx)
			if userID == "" {
				return notAuthenticated()
			}

			limit := clampLimit(p.Limit, defaultSearchLimit, maxSearchLimit)

			cols, err := t.store.ListCollections(ctx, userID, p.Query, limit)
			if err != nil {
				return nil, err
			}
			if cols == nil {
				cols = []domain.Collection{}
			}

			span.SetAttributes(tracer.IntAttr("tool.results", len(cols)))
			return searchCollectionsResult{Collections: cols}, nil
		})
}

// --- create_collection ---

// CreateCollectionTool creates a named, colored collection.
type CreateCollectionTool struct {
	store  domain.CollectionStore
	logger *slog.Logger
}

func (t *CreateCollectionTool) Name() string { return "create_collection" }

func (t *CreateCollectionTool) Description() string {
	return "Create a new collection"
}

func (t *CreateCollectionTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"name": {"type": "string", "description": "Collection name"},
				"color": {"type": "string", "description": "Color hex from predefined palette"}
			},
			"required": ["name"]
		}`),
	}
}

type createCollectionParams struct {
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

func (t *CreateCollectionTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.create_collection", t.logger, params,
		func(ctx context.Context, span trace.Span, p createCollectionParams) (any, error) {
			userID := domain.UserIDFromContext(ctx)
			if userID == "" {
				return notAuthenticated()
			}
			if err := RequireField("name", p.Name); err != nil {
				return ErrResult("%v", err)
			}

			id, err := t.store.CreateCollection(ctx, userID, p.Name, p.Color)
			if err != nil {
				return nil, err
			}

			span.SetAttributes(tracer.StringAttr("tool.collection_id", id))
			return createResult{ID: id, Created: true}, nil
		})
}

// --- add_media_to_collection ---

// AddToCollectionTool adds media items to a collection. Membership is an
// upsert keyed on (collection, item), so repeating an add is a no-op.
type AddToCollectionTool struct {
	store  domain.CollectionStore
	logger *slog.Logger
}

func (t *AddToCollectionTool) Name() string { return "add_media_to_collection" }

func (t *AddToCollectionTool) Description() string {
	return "Add media items to a collection"
}

func (t *AddToCollectionTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  membershipSchema,
	}
}

var membershipSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"collection_id": {"type": "string", "description": "Collection ID"},
		"media_ids": {"type": "array", "items": {"type": "string"}, "description": "Array of media item IDs"}
	},
	"required": ["collection_id", "media_ids"]
}`)

type membershipParams struct {
	CollectionID string   `json:"collection_id"`
	MediaIDs     []string `json:"media_ids"`
}

func (p membershipParams) validate() error {
	if err := RequireField("collection_id", p.CollectionID); err != nil {
		return err
	}
	if len(p.MediaIDs) == 0 {
		return RequireField("media_ids", "")
	}
	return nil
}

type addResult struct {
	AddedCount int `json:"added_count"`
}

func (t *AddToCollectionTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.add_media_to_collection", t.logger, params,
		func(ctx context.Context, span trace.Span, p membershipParams) (any, error) {
			userID := domain.UserIDFromContext(ctx)
			if userID == "" {
				return notAuthenticated()
			}
			if err := p.validate(); err != nil {
				return ErrResult("%v", err)
			}

			count, err := t.store.AddToCollection(ctx, userID, p.CollectionID, p.MediaIDs)
			if err != nil {
				if domain.ErrorCodeOf(err) == domain.CodeNotFound {
					return ErrResult("collection %q not found", p.CollectionID)
				}
				return nil, err
			}

			span.SetAttributes(tracer.IntAttr("tool.added", count))
			return addResult{AddedCount: count}, nil
		})
}

// --- remove_media_from_collection ---

// RemoveFromCollectionTool removes media items from a collection.
type RemoveFromCollectionTool struct {
	store  domain.CollectionStore
	logger *slog.Logger
}

func (t *RemoveFromCollectionTool) Name() string { return "remove_media_from_collection" }

func (t *RemoveFromCollectionTool) Description() string {
	return "Remove media items from a collection"
}

func (t *RemoveFromCollectionTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  membershipSchema,
	}
}

type removeResult struct {
	RemovedCount int `json:"removed_count"`
}

func (t *RemoveFromCollectionTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.remove_media_from_collection", t.logger, params,
		func(ctx context.Context, span trace.Span, p membershipParams) (any, error) {
			userID := domain.UserIDFromContext(ctx)
			if userID == "" {
				return notAuthenticated()
			}
			if err := p.validate(); err != nil {
				return ErrResult("%v", err)
			}

			count, err := t.store.RemoveFromCollection(ctx, userID, p.CollectionID, p.MediaIDs)
			if err != nil {
				if domain.ErrorCodeOf(err) == domain.CodeNotFound {
					return ErrResult("collection %q not found", p.CollectionID)
				}
				return nil, err
			}

			span.SetAttributes(tracer.IntAttr("tool.removed", count))
			return removeResult{RemovedCount: count}, nil
		})
}

// --- delete_collection ---

// DeleteCollectionTool deletes collections. Memberships go with them;
// media items themselves are untouched.
type DeleteCollectionTool struct {
	store  domain.CollectionStore
	logger *slog.Logger
}

func (t *DeleteCollectionTool) Name() string { return "delete_collection" }

func (t *DeleteCollectionTool) Description() string {
	return "Delete a collection"
}

func (t *DeleteCollectionTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"ids": {"type": "array", "items": {"type": "string"}, "description": "Array of collection IDs to delete"}
			},
			"required": ["ids"]
		}`),
	}
}

func (t *DeleteCollectionTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.delete_collection", t.logger, params,
		func(ctx context.Context, span trace.Span, p deleteParams) (any, error) {
			userID := domain.UserIDFromContext(ctx)
			if userID == "" {
				return notAuthenticated()
			}
			if len(p.IDs) == 0 {
				return ErrResult("'ids' is required")
			}

			count, err := t.store.DeleteCollections(ctx, userID, p.IDs)
			if err != nil {
				return nil, err
			}

			span.SetAttributes(tracer.IntAttr("tool.deleted", count))
			return deleteResult{DeletedCount: count}, nil
		})
}
