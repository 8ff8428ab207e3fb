package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"

	"libraria/internal/domain"
)

// Key-derivation parameters. The salt is a fixed application constant:
// the blob format carries no per-blob salt, so both sides must agree on it.
const (
	kdfSalt       = "libraria-salt"
	kdfIterations = 100_000
	keyLen        = 32 // AES-256
	nonceLen      = 12 // standard GCM nonce
)

// Vault performs envelope encryption of per-user credential bundles
// with AES-256-GCM under a key derived from the application secret via
// PBKDF2-SHA256. The secret is injected at construction; keys are
// re-derived on every call rather than cached, trading CPU for not
// holding long-lived key material.
type Vault struct {
	secret string
}

// NewVault creates a vault from the application secret.
// Returns error if the secret is empty.
func NewVault(secret string) (*Vault, error) {
	if secret == "" {
		return nil, fmt.Errorf("encryption secret must not be empty")
	}
	return &Vault{secret: secret}, nil
}

func (v *Vault) deriveKey() []byte {
	return pbkdf2.Key([]byte(v.secret), []byte(kdfSalt), kdfIterations, keyLen, sha256.New)
}

// Encrypt encrypts plaintext and returns base64(nonce + ciphertext).
// A fresh random nonce is generated per call, so re-encrypting the same
// plaintext yields uncorrelated blobs.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	gcm, err := v.newGCM()
	if err != nil {
		return "", domain.NewDomainError("Vault.Encrypt", domain.ErrEncryption, err.Error())
	}

	nonce := make([]byte, nonceLen)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", domain.NewDomainError("Vault.Encrypt", domain.ErrEncryption, "generate nonce: "+err.Error())
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. The GCM authentication tag detects a wrong
// secret, a corrupted blob, or tampering; any of those fail with
// domain.ErrDecryption rather than returning garbage.
func (v *Vault) Decrypt(blob string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", domain.NewDomainError("Vault.Decrypt", domain.ErrDecryption, "base64 decode: "+err.Error())
	}
	if len(data) < nonceLen {
		return "", domain.NewDomainError("Vault.Decrypt", domain.ErrDecryption, "blob too short")
	}

	gcm, err := v.newGCM()
	if err != nil {
		return "", domain.NewDomainError("Vault.Decrypt", domain.ErrDecryption, err.Error())
	}

	nonce, sealed := data[:nonceLen], data[nonceLen:]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", domain.NewDomainError("Vault.Decrypt", domain.ErrDecryption, "authentication failed")
	}
	return string(plaintext), nil
}

// DecryptBundle decrypts a stored blob and decodes it as a credential
// bundle (provider key -> secret).
func (v *Vault) DecryptBundle(blob string) (domain.CredentialBundle, error) {
	plaintext, err := v.Decrypt(blob)
	if err != nil {
		return nil, err
	}
	var bundle domain.CredentialBundle
	if err := json.Unmarshal([]byte(plaintext), &bundle); err != nil {
		return nil, domain.NewDomainError("Vault.DecryptBundle", domain.ErrDecryption, "decode bundle: "+err.Error())
	}
	return bundle, nil
}

// EncryptBundle encodes and encrypts a credential bundle.
func (v *Vault) EncryptBundle(bundle domain.CredentialBundle) (string, error) {
	data, err := json.Marshal(bundle)
	if err != nil {
		return "", domain.NewDomainError("Vault.EncryptBundle", domain.ErrEncryption, "encode bundle: "+err.Error())
	}
	return v.Encrypt(string(data))
}

func (v *Vault) newGCM() (cipher.AEAD, error) {
	block, err := aes.NewCipher(v.deriveKey())
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}
