package server

import (
	"context"
	"net/http"

	"github.com/coder/websocket"

	"github.com/chattrain/chattrain/internal/ratelimit"
)

// Close codes sent on the websocket when the connection itself is
// refused, distinct from per-message rejections which ride as frames.
const (
	closeRateLimited   websocket.StatusCode = 4429
	closeInternalError websocket.StatusCode = 4500
)

const maxFrameBytes = 64 * 1024

// wsWire adapts a coder/websocket connection to the registry's Wire.
type wsWire struct {
	conn *websocket.Conn
}

func (w *wsWire) Write(ctx context.Context, data []byte) error {
	return w.conn.Write(ctx, websocket.MessageText, data)
}

func (w *wsWire) Close() error {
	return w.conn.Close(websocket.StatusNormalClosure, "")
}

// handleWebSocket upgrades the request, applies the connect-time rate
// check, registers the connection, and runs its read loop. Messages
// are processed strictly in order of arrival per connection.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session")
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = "anonymous"
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  s.config.Server.AllowedOrigins,
		CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		s.logger.Warn(r.Context(), err, "websocket upgrade failed", "session_id", sessionID)
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error(r.Context(), nil, "websocket handler panicked",
				"session_id", sessionID, "panic", rec)
			_ = conn.Close(closeInternalError, "internal error")
		}
	}()

	// The connect itself spends a websocket_message token. The handshake
	// has already succeeded, so refusal is an application close code the
	// client can distinguish from transport failures.
	if _, err := s.limiter.Check(userID, ratelimit.EndpointWebSocketMessage); err != nil {
		s.logger.Warn(r.Context(), err, "connection rate limited",
			"session_id", sessionID, "user_id", userID)
		_ = conn.Close(closeRateLimited, "rate limit exceeded")
		return
	}

	c := s.registry.Connect(r.Context(), sessionID, userID, &wsWire{conn: conn})
	defer s.registry.Disconnect(c)

	for {
		_, data, err := conn.Read(c.Context())
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				s.logger.Debug(c.Context(), "websocket closed",
					"session_id", sessionID, "user_id", userID)
			} else if c.Context().Err() == nil {
				s.logger.Warn(c.Context(), err, "websocket read failed",
					"session_id", sessionID, "user_id", userID)
			}
			return
		}

		s.orchestrator.Handle(c.Context(), c, sessionID, userID, data)
	}
}
