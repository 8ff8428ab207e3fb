package domain

import "context"

// LibraryStore is the row-scoped Data Access Facade for media items.
// Every operation is restricted to rows owned by userID; bulk operations
// silently skip non-owned ids and report the count of rows actually
// affected.
type LibraryStore interface {
	SearchMedia(ctx context.Context, userID string, filter MediaFilter) ([]MediaItem, int, error)
	CreateMedia(ctx context.Context, userID string, item MediaItem) (string, error)
	UpdateMedia(ctx context.Context, userID, id string, patch MediaPatch) error
	// DeleteMedia is idempotent per id: deleting an already-deleted id
	// is a no-op reflected only in the returned count.
	DeleteMedia(ctx context.Context, userID string, ids []string) (int, error)
}

// CollectionStore manages collections and collection membership.
type CollectionStore interface {
	ListCollections(ctx context.Context, userID, query string, limit int) ([]Collection, error)
	CreateCollection(ctx context.Context, userID, name, color string) (string, error)
	// AddToCollection upserts memberships keyed on (collection, item);
	// repeating an add is a no-op.
	AddToCollection(ctx context.Context, userID, collectionID string, itemIDs []string) (int, error)
	RemoveFromCollection(ctx context.Context, userID, collectionID string, itemIDs []string) (int, error)
	DeleteCollections(ctx context.Context, userID string, ids []string) (int, error)
}

// Profile holds per-user settings, including the encrypted credential
// bundle for third-party APIs.
type Profile struct {
	UserID                 string `json:"user_id"`
	DisplayName            string `json:"display_name,omitempty"`
	PreferredModel         string `json:"preferred_model,omitempty"`
	AICredentialsEncrypted string `json:"-"`
}

// ProfileStore persists profiles and their encrypted credential blobs.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*Profile, error)
	UpsertProfile(ctx context.Context, p Profile) error
	// SetCredentials stores the already-encrypted bundle blob.
	SetCredentials(ctx context.Context, userID, encryptedBlob string) error
}
