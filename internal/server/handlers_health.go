package server

import (
	"time"

	"github.com/labstack/echo/v4"

	apperrors "github.com/pokemonrocks9/thinking-of-you-backend/internal/errors"
	"github.com/pokemonrocks9/thinking-of-you-backend/internal/version"
)

func (s *Server) handleHealth(c echo.Context) error {
	count, err := s.relay.SessionCount(c.Request().Context())
	if err != nil {
		return apperrors.InternalError("failed to count sessions", err)
	}

	return writeJSON(c, 200, map[string]any{
		"status":            "ok",
		"activeConnections": count,
	})
}

func (s *Server) handleLiveness(c echo.Context) error {
	uptime := time.Since(s.startTime).Seconds()
	return writeJSON(c, 200, map[string]any{
		"status": "ok",
		"uptime": uptime,
	})
}

func (s *Server) handleVersion(c echo.Context) error {
	return writeJSON(c, 200, version.Get())
}
