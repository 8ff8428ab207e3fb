package gateway

import (
	"context"
	"net/http"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"libraria/internal/domain"
)

// eventConversation is a gateway-level frame announcing which
// conversation a turn is running in. It precedes the turn's own events.
const eventConversation domain.TurnEventType = "conversation"

// handleWebSocket serves turns over a WebSocket connection. The client
// sends one chat request per turn and receives the ordered event stream
// back; the connection stays open for follow-up turns.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{
			"localhost",
			"localhost:*",
			"127.0.0.1",
			"127.0.0.1:*",
			"[::1]",
			"[::1]:*",
		},
	})
	if err != nil {
		s.deps.Logger.Warn("websocket accept failed", "error", err)
		return
	}
	defer ws.Close(websocket.StatusNormalClosure, "")

	ctx := r.Context()
	s.deps.Logger.Info("websocket client connected",
		"user_id", domain.UserIDFromContext(ctx))

	for {
		var p chatParams
		if err := wsjson.Read(ctx, ws, &p); err != nil {
			return // connection closed or client gone
		}

		turn, provider, apiErr := s.prepareTurn(ctx, &p)
		if apiErr != nil {
			s.writeWSEvent(ws, r, domain.TurnEvent{
				Type:    domain.EventTurnError,
				Content: apiErr.message,
			})
			continue
		}

		// Announce the conversation so clients that started without an
		// ID can continue the thread.
		s.writeWSEvent(ws, r, domain.TurnEvent{
			Type:    eventConversation,
			Content: turn.ConversationID,
		})

		s.metrics.TurnsTotal.Add(1)
		emit := func(ev domain.TurnEvent) {
			s.countEvent(ev)
			s.writeWSEvent(ws, r, ev)
		}

		if err := s.deps.Agent.HandleTurn(ctx, provider, *turn, emit); err != nil {
			s.deps.Logger.Warn("websocket turn failed",
				"conversation_id", turn.ConversationID,
				"error_code", domain.ErrorCodeOf(err),
			)
		}
	}
}

func (s *Server) writeWSEvent(ws *websocket.Conn, r *http.Request, ev domain.TurnEvent) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	if err := wsjson.Write(ctx, ws, ev); err != nil {
		s.deps.Logger.Debug("websocket write failed", "error", err)
	}
}
