package gateway

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"libraria/internal/domain"
)

type authEntry struct {
	token  []byte
	userID string
}

// StaticTokenAuth maps bearer tokens to user IDs using constant-time
// comparison to prevent timing attacks.
type StaticTokenAuth struct {
	entries []authEntry
}

// NewStaticTokenAuth builds an authenticator from a token -> user ID map.
func NewStaticTokenAuth(tokens map[string]string) *StaticTokenAuth {
	a := &StaticTokenAuth{entries: make([]authEntry, 0, len(tokens))}
	for token, userID := range tokens {
		a.entries = append(a.entries, authEntry{token: []byte(token), userID: userID})
	}
	return a
}

// Authenticate returns the user ID for a valid token.
func (a *StaticTokenAuth) Authenticate(token string) (string, error) {
	tokenBytes := []byte(token)
	for _, e := range a.entries {
		if subtle.ConstantTimeCompare(tokenBytes, e.token) == 1 {
			return e.userID, nil
		}
	}
	return "", domain.ErrUnauthorized
}

// bearerToken extracts the token from an Authorization header, falling
// back to the token query parameter for WebSocket clients that cannot
// set headers.
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// requireAuth authenticates the request and injects the user ID into the
// request context. Every data-touching handler sits behind this.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := s.auth.Authenticate(bearerToken(r))
		if err != nil {
			writeError(w, http.StatusUnauthorized, domain.CodeUnauthorized, "invalid or missing token")
			return
		}
		if !s.allowRequest(userID) {
			writeError(w, http.StatusTooManyRequests, domain.CodeRateLimit, "rate limit exceeded")
			return
		}
		next(w, r.WithContext(domain.ContextWithUserID(r.Context(), userID)))
	}
}
