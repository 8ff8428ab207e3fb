package gateway

import (
	"net/http"

	"libraria/internal/domain"
)

// handleGetCredentials reports which provider keys are configured.
// Secret values never leave the vault through this endpoint.
func (s *Server) handleGetCredentials(w http.ResponseWriter, r *http.Request) {
	userID := domain.UserIDFromContext(r.Context())

	configured := map[string]bool{
		domain.CredentialGemini: false,
		domain.CredentialTavily: false,
	}
	bundle, err := s.deps.Credentials.Credentials(r.Context(), userID)
	if err != nil && domain.ErrorCodeOf(err) != domain.CodeNoCredentials {
		writeError(w, http.StatusInternalServerError, domain.ErrorCodeOf(err), "failed to load credentials")
		return
	}
	for key := range configured {
		configured[key] = bundle.Get(key) != ""
	}
	writeJSON(w, http.StatusOK, map[string]any{"configured": configured})
}

// handlePutCredentials stores new API keys. Omitted keys keep their
// existing values.
func (s *Server) handlePutCredentials(w http.ResponseWriter, r *http.Request) {
	var p struct {
		GeminiKey string `json:"gemini_key,omitempty"`
		TavilyKey string `json:"tavily_key,omitempty"`
	}
	if err := decodeJSON(r, &p); err != nil {
		writeError(w, http.StatusBadRequest, domain.CodeInvalidInput, "invalid request body")
		return
	}

	bundle := domain.CredentialBundle{}
	if p.GeminiKey != "" {
		bundle[domain.CredentialGemini] = p.GeminiKey
	}
	if p.TavilyKey != "" {
		bundle[domain.CredentialTavily] = p.TavilyKey
	}
	if len(bundle) == 0 {
		writeError(w, http.StatusBadRequest, domain.CodeInvalidInput, "no keys provided")
		return
	}

	userID := domain.UserIDFromContext(r.Context())
	if err := s.deps.Credentials.Store(r.Context(), userID, bundle); err != nil {
		writeError(w, http.StatusInternalServerError, domain.ErrorCodeOf(err), "failed to store credentials")
		return
	}

	s.deps.Logger.Info("credentials updated", "user_id", userID, "keys", len(bundle))
	writeJSON(w, http.StatusOK, map[string]any{"updated": true})
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	userID := domain.UserIDFromContext(r.Context())

	profile, err := s.deps.Profiles.GetProfile(r.Context(), userID)
	if err != nil {
		if domain.ErrorCodeOf(err) == domain.CodeNotFound {
			writeJSON(w, http.StatusOK, domain.Profile{UserID: userID})
			return
		}
		writeError(w, http.StatusInternalServerError, domain.ErrorCodeOf(err), "failed to load profile")
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) handlePutProfile(w http.ResponseWriter, r *http.Request) {
	var p struct {
		DisplayName    string `json:"display_name,omitempty"`
		PreferredModel string `json:"preferred_model,omitempty"`
	}
	if err := decodeJSON(r, &p); err != nil {
		writeError(w, http.StatusBadRequest, domain.CodeInvalidInput, "invalid request body")
		return
	}

	userID := domain.UserIDFromContext(r.Context())
	profile := domain.Profile{
		UserID:         userID,
		DisplayName:    p.DisplayName,
		PreferredModel: p.PreferredModel,
	}
	if err := s.deps.Profiles.UpsertProfile(r.Context(), profile); err != nil {
		writeError(w, http.StatusInternalServerError, domain.ErrorCodeOf(err), "failed to save profile")
		return
	}
	writeJSON(w, http.StatusOK, profile)
}
