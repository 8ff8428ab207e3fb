package domain

// Credential provider keys within a bundle.
const (
	CredentialGemini = "gemini_key"
	CredentialTavily = "tavily_key"
)

// CredentialBundle maps a provider key to its secret. Bundles are stored
// encrypted as a single opaque blob per profile and decrypted into memory
// only for the duration of a request; they must never be logged.
type CredentialBundle map[string]string

// Get returns the secret for a provider key, or "" when absent.
func (b CredentialBundle) Get(key string) string {
	if b == nil {
		return ""
	}
	return b[key]
}
