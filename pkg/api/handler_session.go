package api

import (
	"fmt"
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v5"

	"github.com/queryflow/queryflow/pkg/models"
)

func streamURL(sessionID string) string {
	return fmt.Sprintf("/api/v1/sessions/%s/stream", sessionID)
}

func parsePositiveInt(v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("not a positive integer: %q", v)
	}
	return n, nil
}

// bindSessionRequest binds and validates the shared create/continue body.
func bindSessionRequest(c *echo.Context) (*CreateSessionRequest, models.QueryType, error) {
	var req CreateSessionRequest
	if err := c.Bind(&req); err != nil {
		return nil, "", echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Query == "" {
		return nil, "", echo.NewHTTPError(http.StatusBadRequest, "query is required")
	}
	queryType := models.QueryType(req.QueryType)
	if !queryType.Valid() {
		return nil, "", echo.NewHTTPError(http.StatusBadRequest,
			"invalid queryType: must be chat, research, or docs")
	}
	return &req, queryType, nil
}

// createSessionHandler handles POST /api/v1/sessions. The session is
// created and its execution starts in the background; the returned
// stream_url is where the caller observes progress.
func (s *Server) createSessionHandler(c *echo.Context) error {
	req, queryType, err := bindSessionRequest(c)
	if err != nil {
		return err
	}

	sess, err := s.sessions.Create(req.Query, queryType, req.RepoName)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(http.StatusCreated, &SessionResponse{
		SessionID: sess.ID,
		Status:    string(sess.Status),
		CreatedAt: sess.CreatedAt,
		StreamURL: streamURL(sess.ID),
	})
}

// continueSessionHandler handles POST /api/v1/sessions/:id/messages. The
// session is reset to pending and a new execution starts; conflicts while
// the previous execution is still running surface as 409.
func (s *Server) continueSessionHandler(c *echo.Context) error {
	sessionID := c.Param("id")
	if sessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session id is required")
	}

	req, queryType, err := bindSessionRequest(c)
	if err != nil {
		return err
	}

	sess, err := s.sessions.Continue(sessionID, req.Query, queryType, req.RepoName)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(http.StatusOK, &SessionResponse{
		SessionID: sess.ID,
		Status:    string(sess.Status),
		CreatedAt: sess.CreatedAt,
		StreamURL: streamURL(sess.ID),
	})
}

// getSessionHandler handles GET /api/v1/sessions/:id.
func (s *Server) getSessionHandler(c *echo.Context) error {
	sessionID := c.Param("id")
	if sessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session id is required")
	}

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(http.StatusOK, &sess)
}

// sessionEventsHandler handles GET /api/v1/sessions/:id/events.
func (s *Server) sessionEventsHandler(c *echo.Context) error {
	sessionID := c.Param("id")
	if sessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session id is required")
	}

	limit := 50
	if v := c.QueryParam("limit"); v != "" {
		n, err := parsePositiveInt(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit: must be a positive integer")
		}
		limit = n
	}

	evts, err := s.sessions.Events(sessionID, limit)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(http.StatusOK, &EventsResponse{
		SessionID:   sessionID,
		Events:      evts,
		TotalEvents: len(evts),
	})
}

// deleteSessionHandler handles DELETE /api/v1/sessions/:id. Removal is
// deferred while subscribers remain connected; both outcomes confirm.
func (s *Server) deleteSessionHandler(c *echo.Context) error {
	sessionID := c.Param("id")
	if sessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session id is required")
	}

	removed, err := s.sessions.Delete(sessionID)
	if err != nil {
		return respondServiceError(c, err)
	}

	msg := "session deleted"
	if !removed {
		msg = "session deletion scheduled; subscribers still connected"
	}
	return c.JSON(http.StatusOK, &DeleteResponse{
		SessionID: sessionID,
		Message:   msg,
	})
}
