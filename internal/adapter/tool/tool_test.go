package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"libraria/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func userCtx(userID string) context.Context {
	return domain.ContextWithUserID(context.Background(), userID)
}

// fakeLibrary is an in-memory LibraryStore scoped by user id.
type fakeLibrary struct {
	items  map[string]domain.MediaItem // id -> item
	nextID int
	err    error
}

func newFakeLibrary() *fakeLibrary {
	return &fakeLibrary{items: make(map[string]domain.MediaItem)}
}

func (f *fakeLibrary) add(userID string, item domain.MediaItem) string {
	f.nextID++
	id := fmt.Sprintf("item-%d", f.nextID)
	item.ID = id
	item.UserID = userID
	f.items[id] = item
	return id
}

func (f *fakeLibrary) SearchMedia(ctx context.Context, userID string, filter domain.MediaFilter) ([]domain.MediaItem, int, error) {
	if f.err != nil {
		return nil, 0, f.err
	}
	var out []domain.MediaItem
	for _, item := range f.items {
		if item.UserID != userID {
			continue
		}
		if filter.Query != "" && !strings.Contains(strings.ToLower(item.Title), strings.ToLower(filter.Query)) {
			continue
		}
		out = append(out, item)
	}
	return out, len(out), nil
}

func (f *fakeLibrary) CreateMedia(ctx context.Context, userID string, item domain.MediaItem) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.add(userID, item), nil
}

func (f *fakeLibrary) UpdateMedia(ctx context.Context, userID, id string, patch domain.MediaPatch) error {
	if f.err != nil {
		return f.err
	}
	item, ok := f.items[id]
	if !ok || item.UserID != userID {
		return domain.NewDomainError("fake.UpdateMedia", domain.ErrNotFound, id)
	}
	if patch.Title != nil {
		item.Title = *patch.Title
	}
	if patch.Rating != nil {
		item.Rating = patch.Rating
	}
	f.items[id] = item
	return nil
}

func (f *fakeLibrary) DeleteMedia(ctx context.Context, userID string, ids []string) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	count := 0
	for _, id := range ids {
		if item, ok := f.items[id]; ok && item.UserID == userID {
			delete(f.items, id)
			count++
		}
	}
	return count, nil
}

// fakeCollections is an in-memory CollectionStore.
type fakeCollections struct {
	cols    map[string]domain.Collection
	members map[string]map[string]bool // collection id -> item id set
	nextID  int
}

func newFakeCollections() *fakeCollections {
	return &fakeCollections{
		cols:    make(map[string]domain.Collection),
		members: make(map[string]map[string]bool),
	}
}

func (f *fakeCollections) ListCollections(ctx context.Context, userID, query string, limit int) ([]domain.Collection, error) {
	var out []domain.Collection
	for _, c := range f.cols {
		if c.UserID != userID {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(c.Name), strings.ToLower(query)) {
			continue
		}
		c.ItemCount = len(f.members[c.ID])
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeCollections) CreateCollection(ctx context.Context, userID, name, color string) (string, error) {
	f.nextID++
	id := fmt.Sprintf("col-%d", f.nextID)
	if color == "" {
		color = domain.DefaultCollectionColor
	}
	f.cols[id] = domain.Collection{ID: id, UserID: userID, Name: name, Color: color}
	f.members[id] = make(map[string]bool)
	return id, nil
}

func (f *fakeCollections) AddToCollection(ctx context.Context, userID, collectionID string, itemIDs []string) (int, error) {
	col, ok := f.cols[collectionID]
	if !ok || col.UserID != userID {
		return 0, domain.NewDomainError("fake.AddToCollection", domain.ErrNotFound, collectionID)
	}
	count := 0
	for _, id := range itemIDs {
		if !f.members[collectionID][id] {
			f.members[collectionID][id] = true
			count++
		}
	}
	return count, nil
}

func (f *fakeCollections) RemoveFromCollection(ctx context.Context, userID, collectionID string, itemIDs []string) (int, error) {
	col, ok := f.cols[collectionID]
	if !ok || col.UserID != userID {
		return 0, domain.NewDomainError("fake.RemoveFromCollection", domain.ErrNotFound, collectionID)
	}
	count := 0
	for _, id := range itemIDs {
		if f.members[collectionID][id] {
			delete(f.members[collectionID], id)
			count++
		}
	}
	return count, nil
}

func (f *fakeCollections) DeleteCollections(ctx context.Context, userID string, ids []string) (int, error) {
	count := 0
	for _, id := range ids {
		if col, ok := f.cols[id]; ok && col.UserID == userID {
			delete(f.cols, id)
			delete(f.members, id)
			count++
		}
	}
	return count, nil
}

// fakeCreds returns a fixed bundle or error.
type fakeCreds struct {
	bundle domain.CredentialBundle
	err    error
}

func (f *fakeCreds) Credentials(ctx context.Context, userID string) (domain.CredentialBundle, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.bundle, nil
}

// fakeBackend records calls and returns canned results.
type fakeBackend struct {
	results []SearchResult
	err     error
	calls   int
	lastKey string
}

func (f *fakeBackend) Search(ctx context.Context, apiKey, query string, maxResults int) ([]SearchResult, error) {
	f.calls++
	f.lastKey = apiKey
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func (f *fakeBackend) Name() string { return "tavily" }

// run executes a tool and decodes its JSON content into out.
func run(t *testing.T, ctx context.Context, tl domain.Tool, params string, out any) *domain.ToolResult {
	t.Helper()
	res, err := tl.Execute(ctx, json.RawMessage(params))
	if err != nil {
		t.Fatalf("%s: %v", tl.Name(), err)
	}
	if out != nil && !res.IsError {
		if err := json.Unmarshal([]byte(res.Content), out); err != nil {
			t.Fatalf("%s: decode result %q: %v", tl.Name(), res.Content, err)
		}
	}
	return res
}
