package api

import (
	"net/http"
	"strconv"

	"github.com/coder/websocket"
	echo "github.com/labstack/echo/v5"
)

// progressHandler handles GET /api/v1/tasks/:id/progress, upgrading the
// connection and delegating to the progress hub, mirroring the teacher's
// wsHandler/ConnectionManager split.
//
// Origin validation is left at InsecureSkipVerify, the same posture the
// teacher's own wsHandler documents and defers: this server is intended to
// sit behind a reverse proxy or run on a trusted operator network, not be
// exposed directly to the public internet.
func (s *Server) progressHandler(c *echo.Context) error {
	taskID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "task id must be numeric")
	}

	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		return err
	}

	s.hub.serve(c.Request().Context(), taskID, conn)
	return nil
}
