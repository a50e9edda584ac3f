package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	echo "github.com/labstack/echo/v5"

	"github.com/queryflow/queryflow/pkg/events"
)

// wsWriteTimeout bounds each WebSocket send so one stalled peer cannot
// pin the stream goroutine.
const wsWriteTimeout = 10 * time.Second

// wsSessionHandler handles GET /api/v1/sessions/:id/ws — the WebSocket
// variant of the event stream. Delivery semantics are identical to the SSE
// endpoint: connected handshake, historical replay, then live events with
// heartbeats.
func (s *Server) wsSessionHandler(c *echo.Context) error {
	sessionID := c.Param("id")
	if sessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session id is required")
	}

	// Verify and register before upgrading so an unknown session still
	// gets a plain 404.
	sub, err := s.sessions.Subscribe(sessionID)
	if err != nil {
		return respondServiceError(c, err)
	}
	defer s.sessions.Unsubscribe(sessionID, sub)

	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// CloseRead surfaces peer disconnect through ctx; we never expect
	// client messages on this stream.
	ctx := conn.CloseRead(c.Request().Context())

	if err := wsSend(ctx, conn, events.Connected(sessionID)); err != nil {
		return nil
	}

	for _, ev := range s.sessions.Replay(sessionID, s.cfg.ReplayLimit) {
		if err := wsSend(ctx, conn, events.Envelope{StepEvent: ev, IsHistorical: true}); err != nil {
			return nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-sub.Events():
			if !ok {
				return nil
			}
			if err := wsSend(ctx, conn, events.Envelope{StepEvent: ev, IsHistorical: false}); err != nil {
				return nil
			}

		case <-time.After(s.cfg.HeartbeatInterval):
			if err := wsSend(ctx, conn, events.Heartbeat(sessionID)); err != nil {
				return nil
			}
		}
	}
}

// wsSend marshals and sends one stream payload with a write timeout.
func wsSend(ctx context.Context, conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
