package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/queryflow/queryflow/pkg/events"
)

// streamSessionHandler handles GET /api/v1/sessions/:id/stream. It serves
// the session's events as a server-sent event stream: a synthetic connected
// event, then up to ReplayLimit stored events tagged historical, then live
// events with heartbeat pulses while idle. The subscriber is unregistered
// on every exit path.
func (s *Server) streamSessionHandler(c *echo.Context) error {
	sessionID := c.Param("id")
	if sessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session id is required")
	}

	sub, err := s.sessions.Subscribe(sessionID)
	if err != nil {
		return respondServiceError(c, err)
	}
	defer s.sessions.Unsubscribe(sessionID, sub)

	w, err := echo.UnwrapResponse(c.Response())
	if err != nil {
		return err
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if err := writeSSE(w, events.Connected(sessionID)); err != nil {
		return nil
	}
	w.Flush()

	// Replay recent history to this subscriber only.
	for _, ev := range s.sessions.Replay(sessionID, s.cfg.ReplayLimit) {
		if err := writeSSE(w, events.Envelope{StepEvent: ev, IsHistorical: true}); err != nil {
			return nil
		}
	}
	w.Flush()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			// Peer disconnected.
			slog.Debug("Stream client disconnected", "session_id", sessionID)
			return nil

		case ev, ok := <-sub.Events():
			if !ok {
				// Dropped by the bus (overflow) — nothing left to deliver.
				return nil
			}
			if err := writeSSE(w, events.Envelope{StepEvent: ev, IsHistorical: false}); err != nil {
				return nil
			}
			w.Flush()

		case <-time.After(s.cfg.HeartbeatInterval):
			if err := writeSSE(w, events.Heartbeat(sessionID)); err != nil {
				return nil
			}
			w.Flush()
		}
	}
}

// writeSSE encodes one event in SSE framing. The event name is the
// event_type so clients can use named listeners, matching the JSON body.
func writeSSE(w io.Writer, v any) error {
	name, data, err := encodeStreamEvent(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	return err
}

// encodeStreamEvent marshals a stream payload and extracts its event type.
func encodeStreamEvent(v any) (string, []byte, error) {
	var name string
	switch ev := v.(type) {
	case events.StepEvent:
		name = ev.EventType
	case events.Envelope:
		name = ev.EventType
	default:
		name = "message"
	}

	data, err := json.Marshal(v)
	if err != nil {
		return "", nil, err
	}
	return name, data, nil
}
