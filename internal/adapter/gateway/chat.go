package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"unicode/utf8"

	"libraria/internal/domain"
	"libraria/internal/usecase"
)

const titleMaxLen = 60

type chatParams struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Message        string `json:"message"`
	Model          string `json:"model,omitempty"`
}

// apiError carries an HTTP status alongside the error envelope fields.
type apiError struct {
	status  int
	code    domain.ErrorCode
	message string
}

func (e *apiError) Error() string { return e.message }

// handleChat runs one turn and streams its events as SSE.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var p chatParams
	if err := decodeJSON(r, &p); err != nil {
		writeError(w, http.StatusBadRequest, domain.CodeInvalidInput, "invalid request body")
		return
	}

	ctx := r.Context()
	turn, provider, apiErr := s.prepareTurn(ctx, &p)
	if apiErr != nil {
		writeError(w, apiErr.status, apiErr.code, apiErr.message)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, domain.CodeUnknown, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Conversation-ID", turn.ConversationID)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	s.metrics.TurnsTotal.Add(1)
	emit := func(ev domain.TurnEvent) {
		s.countEvent(ev)
		data, err := json.Marshal(ev)
		if err != nil {
			return
		}
		w.Write([]byte("data: "))
		w.Write(data)
		w.Write([]byte("\n\n"))
		flusher.Flush()
	}

	if err := s.deps.Agent.HandleTurn(ctx, provider, *turn, emit); err != nil {
		// The stream already carries the error event; nothing more can
		// be written once SSE has started.
		s.deps.Logger.Warn("turn failed",
			"conversation_id", turn.ConversationID,
			"error_code", domain.ErrorCodeOf(err),
		)
	}
}

// prepareTurn validates the request, resolves the caller's Gemini key
// and model preference, and creates the conversation when the client
// did not supply one. Runs entirely before the response stream starts
// so failures still get a proper HTTP status.
func (s *Server) prepareTurn(ctx context.Context, p *chatParams) (*usecase.TurnRequest, domain.LLMProvider, *apiError) {
	userID := domain.UserIDFromContext(ctx)

	if strings.TrimSpace(p.Message) == "" {
		return nil, nil, &apiError{http.StatusBadRequest, domain.CodeInvalidInput, "message is required"}
	}

	bundle, err := s.deps.Credentials.Credentials(ctx, userID)
	if err != nil {
		switch domain.ErrorCodeOf(err) {
		case domain.CodeNoCredentials:
			return nil, nil, &apiError{http.StatusBadRequest, domain.CodeNoCredentials,
				"No Gemini API key configured. Please add it in Settings."}
		case domain.CodeDecryption:
			return nil, nil, &apiError{http.StatusBadRequest, domain.CodeDecryption,
				"failed to decrypt API keys"}
		default:
			return nil, nil, &apiError{http.StatusInternalServerError, domain.ErrorCodeOf(err),
				"failed to load credentials"}
		}
	}
	apiKey := bundle.Get(domain.CredentialGemini)
	if apiKey == "" {
		return nil, nil, &apiError{http.StatusBadRequest, domain.CodeNoCredentials,
			"No Gemini API key configured. Please add it in Settings."}
	}

	model := s.resolveModel(ctx, userID, p.Model)

	conversationID := p.ConversationID
	if conversationID == "" {
		conv, err := s.deps.Conversations.CreateConversation(ctx, userID, titleFromMessage(p.Message))
		if err != nil {
			return nil, nil, &apiError{http.StatusInternalServerError, domain.ErrorCodeOf(err),
				"failed to create conversation"}
		}
		conversationID = conv.ID
	} else if _, err := s.deps.Conversations.GetConversation(ctx, userID, conversationID); err != nil {
		return nil, nil, &apiError{http.StatusNotFound, domain.CodeNotFound, "conversation not found"}
	}

	turn := &usecase.TurnRequest{
		UserID:         userID,
		ConversationID: conversationID,
		Message:        p.Message,
		Model:          model,
	}
	return turn, s.deps.Provider(apiKey, model), nil
}

// resolveModel picks the request's model, falling back to the profile
// preference and then the configured default.
func (s *Server) resolveModel(ctx context.Context, userID, requested string) string {
	if requested != "" {
		return requested
	}
	if profile, err := s.deps.Profiles.GetProfile(ctx, userID); err == nil && profile.PreferredModel != "" {
		return profile.PreferredModel
	}
	return s.deps.DefaultModel
}

func (s *Server) countEvent(ev domain.TurnEvent) {
	switch ev.Type {
	case domain.EventToolCall:
		s.metrics.ToolCallsTotal.Add(1)
	case domain.EventTurnError:
		s.metrics.TurnErrorsTotal.Add(1)
	}
}

func titleFromMessage(msg string) string {
	title := strings.TrimSpace(msg)
	if utf8.RuneCountInString(title) <= titleMaxLen {
		return title
	}
	runes := []rune(title)
	return string(runes[:titleMaxLen])
}
