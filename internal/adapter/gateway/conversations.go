package gateway

import (
	"net/http"

	"libraria/internal/domain"
)

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	userID := domain.UserIDFromContext(r.Context())
	convs, err := s.deps.Conversations.ListConversations(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, domain.ErrorCodeOf(err), "failed to list conversations")
		return
	}
	if convs == nil {
		convs = []domain.Conversation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": convs})
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var p struct {
		Title string `json:"title"`
	}
	if err := decodeJSON(r, &p); err != nil {
		writeError(w, http.StatusBadRequest, domain.CodeInvalidInput, "invalid request body")
		return
	}
	if p.Title == "" {
		p.Title = "New conversation"
	}

	userID := domain.UserIDFromContext(r.Context())
	conv, err := s.deps.Conversations.CreateConversation(r.Context(), userID, p.Title)
	if err != nil {
		writeError(w, http.StatusInternalServerError, domain.ErrorCodeOf(err), "failed to create conversation")
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

// handleGetConversation returns the conversation together with its turns.
func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	userID := domain.UserIDFromContext(r.Context())
	id := r.PathValue("id")

	conv, err := s.deps.Conversations.GetConversation(r.Context(), userID, id)
	if err != nil {
		writeError(w, http.StatusNotFound, domain.CodeNotFound, "conversation not found")
		return
	}
	turns, err := s.deps.Conversations.Turns(r.Context(), userID, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, domain.ErrorCodeOf(err), "failed to load turns")
		return
	}
	if turns == nil {
		turns = []domain.Turn{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"conversation": conv,
		"turns":        turns,
	})
}

func (s *Server) handleListTurns(w http.ResponseWriter, r *http.Request) {
	userID := domain.UserIDFromContext(r.Context())
	id := r.PathValue("id")

	if _, err := s.deps.Conversations.GetConversation(r.Context(), userID, id); err != nil {
		writeError(w, http.StatusNotFound, domain.CodeNotFound, "conversation not found")
		return
	}
	turns, err := s.deps.Conversations.Turns(r.Context(), userID, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, domain.ErrorCodeOf(err), "failed to load turns")
		return
	}
	if turns == nil {
		turns = []domain.Turn{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"turns": turns})
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	userID := domain.UserIDFromContext(r.Context())
	id := r.PathValue("id")

	if err := s.deps.Conversations.DeleteConversation(r.Context(), userID, id); err != nil {
		if domain.ErrorCodeOf(err) == domain.CodeNotFound {
			writeError(w, http.StatusNotFound, domain.CodeNotFound, "conversation not found")
			return
		}
		writeError(w, http.StatusInternalServerError, domain.ErrorCodeOf(err), "failed to delete conversation")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}
