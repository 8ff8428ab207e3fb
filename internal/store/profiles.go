package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"libraria/internal/domain"
)

// GetProfile returns the user's profile, or domain.ErrNotFound when the
// user has no profile row yet.
func (s *Store) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	var p domain.Profile
	err := s.db.QueryRowContext(ctx,
		"SELECT user_id, display_name, preferred_model, ai_credentials_encrypted FROM profiles WHERE user_id = ?",
		userID,
	).Scan(&p.UserID, &p.DisplayName, &p.PreferredModel, &p.AICredentialsEncrypted)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &p, nil
}

// UpsertProfile creates or updates the user's profile row. The encrypted
// credential blob is managed separately through SetCredentials.
func (s *Store) UpsertProfile(ctx context.Context, p domain.Profile) error {
	now := formatTime(time.Now())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (user_id, display_name, preferred_model, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			display_name = excluded.display_name,
			preferred_model = excluded.preferred_model,
			updated_at = excluded.updated_at`,
		p.UserID, p.DisplayName, p.PreferredModel, now, now,
	)
	return domain.WrapOp("upsert profile", err)
}

// SetCredentials stores the already-encrypted credential bundle blob,
// creating the profile row if needed.
func (s *Store) SetCredentials(ctx context.Context, userID, encryptedBlob string) error {
	now := formatTime(time.Now())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (user_id, ai_credentials_encrypted, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			ai_credentials_encrypted = excluded.ai_credentials_encrypted,
			updated_at = excluded.updated_at`,
		userID, encryptedBlob, now, now,
	)
	return domain.WrapOp("set credentials", err)
}
