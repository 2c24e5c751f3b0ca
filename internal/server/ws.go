package server

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
)

const wsWriteTimeout = 5 * time.Second

// handleWebSocket streams store events as JSON text messages. It accepts the
// same ?types= filter as the SSE endpoint. Messages sent by the client are
// discarded.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	types, err := parseEventTypes(r.URL.Query().Get("types"))
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
		CompressionMode:    websocket.CompressionDisabled,
	})
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", "error", err)
		return
	}
	defer conn.CloseNow()

	ctx := conn.CloseRead(r.Context())
	clientID := uuid.New().String()
	client := s.broker.Subscribe(ctx, clientID, types)
	s.logger.Debug("WebSocket client connected", "client", clientID)

	if err := s.wsWrite(ctx, conn, map[string]string{"type": "connected", "client_id": clientID}); err != nil {
		return
	}

	for ev := range client.Events {
		if err := s.wsWrite(ctx, conn, ev); err != nil {
			s.logger.Debug("WebSocket write failed", "client", clientID, "error", err)
			return
		}
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

func (s *Server) wsWrite(ctx context.Context, conn *websocket.Conn, v interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, v)
}
