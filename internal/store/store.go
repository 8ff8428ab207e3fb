package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Store implements the row-scoped Data Access Facade, the profile store
// and the Conversation Store on a single SQLite database. All mutation
// queries carry the owner's user_id in their WHERE clause; that filter,
// not the caller, is the ownership boundary.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at dbPath and runs the
// schema migration.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// WAL mode for better concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate db: %w", err)
	}
	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS media_items (
			id              TEXT PRIMARY KEY,
			user_id         TEXT NOT NULL,
			title           TEXT NOT NULL,
			type            TEXT NOT NULL,
			origin          TEXT NOT NULL DEFAULT '',
			author          TEXT NOT NULL DEFAULT '',
			release_year    INTEGER NOT NULL DEFAULT 0,
			rating          REAL,
			pub_status      TEXT NOT NULL DEFAULT '',
			user_status     TEXT NOT NULL DEFAULT '',
			tags            TEXT NOT NULL DEFAULT '[]',
			notes           TEXT NOT NULL DEFAULT '',
			cover_image_url TEXT NOT NULL DEFAULT '',
			created_at      TEXT NOT NULL,
			updated_at      TEXT NOT NULL,
			completed_at    TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_media_user ON media_items(user_id, updated_at);

		CREATE TABLE IF NOT EXISTS collections (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			name       TEXT NOT NULL,
			color      TEXT NOT NULL,
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_collections_user ON collections(user_id);

		CREATE TABLE IF NOT EXISTS collection_media (
			collection_id TEXT NOT NULL REFERENCES collections(id) ON DELETE CASCADE,
			media_item_id TEXT NOT NULL REFERENCES media_items(id) ON DELETE CASCADE,
			added_at      TEXT NOT NULL,
			PRIMARY KEY (collection_id, media_item_id)
		);

		CREATE TABLE IF NOT EXISTS profiles (
			user_id                  TEXT PRIMARY KEY,
			display_name             TEXT NOT NULL DEFAULT '',
			preferred_model          TEXT NOT NULL DEFAULT '',
			ai_credentials_encrypted TEXT NOT NULL DEFAULT '',
			created_at               TEXT NOT NULL,
			updated_at               TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS conversations (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			title      TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations(user_id, updated_at);

		CREATE TABLE IF NOT EXISTS conversation_turns (
			id              TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			position        INTEGER NOT NULL,
			role            TEXT NOT NULL,
			content         TEXT NOT NULL,
			created_at      TEXT NOT NULL,
			UNIQUE (conversation_id, position)
		);
	`)
	return err
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

// placeholders returns "?, ?, ..." for n parameters.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// toAnySlice converts string ids to driver arguments.
func toAnySlice(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
