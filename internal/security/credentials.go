package security

import (
	"context"

	"libraria/internal/domain"
)

// CredentialService resolves a caller's decrypted credential bundle from
// their profile. Bundles are decrypted per call and never cached, so no
// long-lived plaintext key material is held.
type CredentialService struct {
	profiles domain.ProfileStore
	vault    *Vault
}

// NewCredentialService creates a credential service.
func NewCredentialService(profiles domain.ProfileStore, vault *Vault) *CredentialService {
	return &CredentialService{profiles: profiles, vault: vault}
}

// Credentials returns the decrypted bundle for userID.
// Returns ErrNoCredentials when the profile is missing or has no stored
// blob, and ErrDecryption when the blob cannot be decrypted.
func (s *CredentialService) Credentials(ctx context.Context, userID string) (domain.CredentialBundle, error) {
	profile, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		if domain.ErrorCodeOf(err) == domain.CodeNotFound {
			return nil, domain.WrapOp("CredentialService.Credentials", domain.ErrNoCredentials)
		}
		return nil, domain.WrapOp("CredentialService.Credentials", err)
	}
	if profile.AICredentialsEncrypted == "" {
		return nil, domain.WrapOp("CredentialService.Credentials", domain.ErrNoCredentials)
	}

	return s.vault.DecryptBundle(profile.AICredentialsEncrypted)
}

// Store encrypts and persists a bundle, merging it over any keys the
// profile already has so updating one key keeps the others.
func (s *CredentialService) Store(ctx context.Context, userID string, bundle domain.CredentialBundle) error {
	existing, err := s.Credentials(ctx, userID)
	if err == nil {
		for k, v := range bundle {
			existing[k] = v
		}
		bundle = existing
	}

	blob, err := s.vault.EncryptBundle(bundle)
	if err != nil {
		return err
	}
	return s.profiles.SetCredentials(ctx, userID, blob)
}
